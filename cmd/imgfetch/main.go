package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/smingko/taxinomitis/internal/config"
	"github.com/smingko/taxinomitis/internal/download"
	"github.com/smingko/taxinomitis/internal/metrics"
	"github.com/smingko/taxinomitis/internal/trainingzip"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		imageURL = flag.String("url", "", "image URL to fetch")
		outPath  = flag.String("out", "", "destination file for the fetched image")
		width    = flag.Int("width", 0, "target width in pixels; leave 0 to download the image unmodified")
		height   = flag.Int("height", 0, "target height in pixels; leave 0 to download the image unmodified")
		manifest = flag.String("manifest", "", "file with one training image URL per line")
		zipPath  = flag.String("zip", "", "destination file for the training archive")
	)
	flag.Parse()

	cfg := config.GetConfig()
	logger := config.GetLogger()

	logger.Info().
		Str("user_agent", cfg.UserAgent).
		Str("download_timeout", cfg.DownloadTimeout).
		Str("cache_provider", cfg.Cache.Provider).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("Application started with configuration")

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Error().Err(err).Msg("Failed to initialize Sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Start Prometheus metrics HTTP server
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewHTTPServer(cfg.Metrics.Port)
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("Starting Prometheus metrics HTTP server")
			if err := metricsServer.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
				logger.Fatal().Err(err).Msg("Failed to serve metrics")
			}
		}()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown metrics server")
			}
		}()
	}

	// Interrupts cancel the context, which aborts in-flight downloads.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	downloader := download.NewImageDownloader(cfg)
	defer func() {
		if err := downloader.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close downloader")
		}
	}()

	var opErr error
	switch {
	case *imageURL != "" && *outPath != "":
		opErr = fetchOne(ctx, downloader, *imageURL, *outPath, *width, *height)
	case *manifest != "" && *zipPath != "":
		opErr = buildArchive(ctx, downloader, *manifest, *zipPath)
	default:
		fmt.Fprintln(os.Stderr, "Usage: imgfetch -url URL -out FILE [-width W -height H]")
		fmt.Fprintln(os.Stderr, "       imgfetch -manifest FILE -zip FILE")
		flag.PrintDefaults()
		return 2
	}

	stats := downloader.Stats()
	logger.Info().
		Int64("attempts", stats.Attempts()).
		Int64("failures", stats.Failures()).
		Msg("Download statistics")

	if opErr != nil {
		logger.Error().Err(opErr).Msg("Operation failed")
		return 1
	}
	return 0
}

// fetchOne downloads a single image, resized when both target dimensions are set.
func fetchOne(ctx context.Context, downloader download.ImageDownloader, imageURL, outPath string, width, height int) error {
	if (width > 0) != (height > 0) {
		return fmt.Errorf("width and height must be set together")
	}
	if width > 0 {
		return downloader.DownloadResized(ctx, imageURL, width, height, outPath)
	}
	return downloader.DownloadFile(ctx, imageURL, outPath)
}

// buildArchive downloads every image listed in the manifest and packs them
// into a training archive.
func buildArchive(ctx context.Context, downloader download.ImageDownloader, manifestPath, zipPath string) error {
	urls, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	builder := trainingzip.NewBuilder(downloader)
	summary, err := builder.CreateZip(ctx, urls, zipPath)
	if err != nil {
		return err
	}

	config.GetLogger().Info().
		Int("images", summary.Images).
		Int64("bytes", summary.Bytes).
		Str("zip", zipPath).
		Msg("Training archive ready")
	return nil
}

// readManifest reads image URLs from a file, one per line. Blank lines and
// lines starting with # are skipped.
func readManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return urls, nil
}
