package download

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/getsentry/sentry-go"

	"github.com/smingko/taxinomitis/internal/apperrors"
	"github.com/smingko/taxinomitis/internal/cache"
	"github.com/smingko/taxinomitis/internal/config"
	"github.com/smingko/taxinomitis/internal/metrics"
)

const (
	// defaultDownloadTimeout bounds connecting to the host and receiving
	// response headers. Body streaming is never bounded; large images on slow
	// connections are allowed to take as long as they need.
	defaultDownloadTimeout = 10 * time.Second

	// defaultMaxImageBytes is the largest image the resize pipeline will buffer.
	defaultMaxImageBytes int64 = 8 * 1024 * 1024

	// acceptHeader mirrors what a browser sends when fetching an image element.
	acceptHeader = "image/png,image/jpeg,image/*;q=0.8,*/*;q=0.5"

	acceptLanguageHeader = "en-US,en;q=0.5"
)

// defaultImageDownloader implements ImageDownloader
type defaultImageDownloader struct {
	httpClient    *http.Client
	fetchExec     failsafe.Executor[*http.Response]
	probeCache    cache.Cache
	stats         *Stats
	resizeMu      sync.Mutex
	maxImageBytes int64
}

// cacheLogger adapts the application logger to the cache.Logger interface.
type cacheLogger struct{}

func (cacheLogger) Error(msg string, err error) {
	config.GetLogger().Error().Err(err).Msg(msg)
}

// NewImageDownloader creates a downloader configured from cfg.
func NewImageDownloader(cfg *config.Config) ImageDownloader {
	logger := config.GetLogger()

	// Parse timeout duration
	fetchTimeout := defaultDownloadTimeout
	if cfg.DownloadTimeout != "" {
		if parsedTimeout, err := time.ParseDuration(cfg.DownloadTimeout); err != nil {
			logger.Warn().Err(err).Str("timeout", cfg.DownloadTimeout).Msg("Invalid timeout duration, using default 10s")
		} else {
			fetchTimeout = parsedTimeout
		}
	}

	// Clone DefaultTransport to preserve all its settings (timeouts, connection pooling, HTTP/2, etc.)
	baseTransport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.InsecureSkipVerify {
		// Students paste image URLs from all over the web, and projects should
		// not break because a host serves a broken certificate chain.
		if baseTransport.TLSClientConfig == nil {
			baseTransport.TLSClientConfig = &tls.Config{}
		}
		baseTransport.TLSClientConfig.InsecureSkipVerify = true
	}

	// No http.Client.Timeout here: the failsafe timeout policy in fetch()
	// bounds the initial network operation, while body streaming stays unbounded.
	httpClient := &http.Client{
		Transport: newDecompressionTransport(baseTransport),
	}

	maxImageBytes := cfg.MaxImageBytes
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}

	cacheTTL := time.Hour
	if cfg.Cache.TTL != "" {
		if parsedTTL, err := time.ParseDuration(cfg.Cache.TTL); err != nil {
			logger.Warn().Err(err).Str("ttl", cfg.Cache.TTL).Msg("Invalid cache TTL, using default 1h")
		} else {
			cacheTTL = parsedTTL
		}
	}

	providerConfig := cache.ProviderConfig{
		Size:          cfg.Cache.Size,
		TTL:           cacheTTL,
		Logger:        cacheLogger{},
		RedisAddress:  cfg.Cache.Redis.Address,
		RedisPassword: cfg.Cache.Redis.Password,
		RedisDB:       cfg.Cache.Redis.DB,
		Group:         "probe",
	}

	probeCache, err := cache.New(cfg.Cache.Provider, providerConfig)
	if err != nil {
		// A missing Redis must not take image fetching down with it.
		logger.Warn().Err(err).Str("provider", cfg.Cache.Provider).Msg("Cache provider unavailable, falling back to in-memory cache")
		probeCache, err = cache.New("memory", providerConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create in-memory probe cache")
		}
	}

	return &defaultImageDownloader{
		httpClient:    httpClient,
		fetchExec:     failsafe.NewExecutor[*http.Response](timeout.With[*http.Response](fetchTimeout)),
		probeCache:    probeCache,
		stats:         &Stats{},
		maxImageBytes: maxImageBytes,
	}
}

// Stats returns the process-wide attempt/failure counters.
func (d *defaultImageDownloader) Stats() *Stats {
	return d.stats
}

// Close releases the probe cache, such as Redis connections.
func (d *defaultImageDownloader) Close() error {
	return d.probeCache.Close()
}

// DownloadFile fetches the image at rawURL and streams it to destPath unmodified.
func (d *defaultImageDownloader) DownloadFile(ctx context.Context, rawURL string, destPath string) error {
	d.stats.RecordAttempt()
	logger := config.GetLogger()
	logger.Debug().
		Str("url", rawURL).
		Str("dest", destPath).
		Msg("Downloading image")

	// The destination is opened before the request goes out, so an unwritable
	// path fails without touching the network.
	dest, err := os.Create(destPath)
	if err != nil {
		return d.downloadFailed(rawURL, apperrors.NewDownloadFailedError(rawURL, err))
	}

	resp, err := d.fetch(ctx, rawURL)
	if err != nil {
		discardDest(dest, destPath)
		return d.downloadFailed(rawURL, apperrors.NewDownloadFailedError(rawURL, err))
	}
	defer resp.Body.Close()

	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		discardDest(dest, destPath)
		return d.downloadFailed(rawURL, err)
	}

	written, err := writeBodyToFile(dest, destPath, resp.Body)
	if err != nil {
		return d.downloadFailed(rawURL, apperrors.NewDownloadFailedError(rawURL, err))
	}

	metrics.ImageDownloadsTotal.WithLabelValues("success").Inc()
	// Successes stay below the default log level; a busy project fetches
	// thousands of images.
	logger.Debug().
		Str("url", rawURL).
		Int64("bytes", written).
		Msg("Image downloaded")
	return nil
}

// fetch issues a GET with browser-identifying headers. The failsafe timeout
// policy cancels the request if connecting and receiving headers takes longer
// than the configured download timeout.
func (d *defaultImageDownloader) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	return d.fetchExec.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		req, err := http.NewRequestWithContext(exec.Context(), http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", config.GetUserAgent())
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("Accept-Language", acceptLanguageHeader)
		return d.httpClient.Do(req)
	})
}

// downloadFailed records a failed download in the stats counters and metrics,
// logs it at the right severity, and returns err unchanged.
func (d *defaultImageDownloader) downloadFailed(rawURL string, err error) error {
	d.stats.RecordFailure()
	metrics.ImageDownloadsTotal.WithLabelValues(statusLabel(err)).Inc()
	d.logFailure("download", rawURL, err)
	return err
}

// httpStatusError records a non-OK upstream status so severity decisions can
// tell client-class failures apart from server-class ones.
type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// checkStatus maps a response status to the failure taxonomy: 401/403 mean the
// host refuses to serve the image, anything else non-OK is a download failure.
func checkStatus(rawURL string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.NewForbiddenError(rawURL)
	default:
		return apperrors.NewDownloadFailedError(rawURL, &httpStatusError{code: code})
	}
}

// statusLabel maps an operation outcome to the Prometheus status label.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, &apperrors.ErrForbidden{}):
		return "forbidden"
	case errors.Is(err, &apperrors.ErrUnsupportedFormat{}):
		return "unsupported_format"
	default:
		return "error"
	}
}

// isTimeout reports whether err stems from the initial network operation
// running out of time.
func isTimeout(err error) bool {
	if errors.Is(err, timeout.ErrExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// unexpectedFailure reports whether a failure points at the platform rather
// than at the student-supplied URL. Refusals, unsupported formats, timeouts,
// and upstream client-class statuses are everyday outcomes of fetching images
// from arbitrary websites; everything else deserves attention.
func unexpectedFailure(err error) bool {
	if errors.Is(err, &apperrors.ErrForbidden{}) || errors.Is(err, &apperrors.ErrUnsupportedFormat{}) {
		return false
	}
	if isTimeout(err) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= 500
	}
	return true
}

// logFailure logs a failed operation with the running counters, raising
// unexpected failures to error level and forwarding them to Sentry when it
// is configured.
func (d *defaultImageDownloader) logFailure(op string, rawURL string, err error) {
	logger := config.GetLogger()

	event := logger.Warn()
	if unexpectedFailure(err) {
		event = logger.Error()
		if hub := sentry.CurrentHub(); hub.Client() != nil {
			hub.CaptureException(err)
		}
	}

	event.
		Err(err).
		Str("url", rawURL).
		Int64("attempts", d.stats.Attempts()).
		Int64("failures", d.stats.Failures()).
		Msg("Image " + op + " failed")
}

// writeBodyToFile streams body into the already-open destination. A failed
// write removes the destination so a broken download never leaves truncated
// bytes behind.
func writeBodyToFile(dest *os.File, destPath string, body io.Reader) (int64, error) {
	written, err := io.Copy(dest, body)
	if err != nil {
		discardDest(dest, destPath)
		return written, err
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(destPath)
		return written, err
	}
	return written, nil
}

// discardDest closes and removes a destination that will not be written.
func discardDest(dest *os.File, destPath string) {
	_ = dest.Close()
	_ = os.Remove(destPath)
}
