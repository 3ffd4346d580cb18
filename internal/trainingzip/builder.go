// Package trainingzip bundles a project's training images into the archive
// the upstream ML service trains from.
package trainingzip

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smingko/taxinomitis/internal/apperrors"
	"github.com/smingko/taxinomitis/internal/config"
	"github.com/smingko/taxinomitis/internal/download"
	"github.com/smingko/taxinomitis/internal/models"
)

const (
	// trainingWidth and trainingHeight are the dimensions the upstream ML
	// service trains on. Every image in the archive is stretched to this size.
	trainingWidth  = 224
	trainingHeight = 224

	// maxParallelDownloads bounds how many images are fetched at once.
	maxParallelDownloads = 3

	// maxDownloadRetries is how many times a failed download is retried
	// before the build is abandoned. Refused and unsupported images are
	// never retried.
	maxDownloadRetries = 2
)

// Summary describes a finished training archive.
type Summary struct {
	// Images is the number of entries in the archive.
	Images int
	// Bytes is the size of the archive file on disk.
	Bytes int64
}

// Builder downloads training images and packs them into a zip archive.
type Builder struct {
	fetcher download.ImageDownloader
	retry   retrypolicy.RetryPolicy[*models.ImageInfo]
}

// NewBuilder creates a Builder that fetches images through fetcher.
func NewBuilder(fetcher download.ImageDownloader) *Builder {
	// Only download failures are worth retrying. A host that refuses the
	// request or an image in a format we cannot train on will not change
	// its mind on a second attempt.
	retry := retrypolicy.Builder[*models.ImageInfo]().
		HandleIf(func(_ *models.ImageInfo, err error) bool {
			return errors.Is(err, &apperrors.ErrDownloadFailed{})
		}).
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(maxDownloadRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*models.ImageInfo]) {
			config.GetLogger().Warn().
				Err(e.LastError()).
				Int("attempts", e.Attempts()).
				Msg("Retrying image download")
		}).
		Build()

	return &Builder{
		fetcher: fetcher,
		retry:   retry,
	}
}

// CreateZip downloads every URL resized to the training dimensions and writes
// them to a zip archive at zipPath. The first image that permanently fails
// aborts the build; no archive is left behind on failure.
func (b *Builder) CreateZip(ctx context.Context, urls []string, zipPath string) (*Summary, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no training image urls provided")
	}

	logger := config.GetLogger()
	logger.Info().
		Int("images", len(urls)).
		Str("zip", zipPath).
		Msg("Building training archive")

	tempDir, err := os.MkdirTemp("", "trainingzip-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Download in parallel into uniquely named temp files. The group context
	// cancels in-flight downloads as soon as one image fails for good.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)

	tempPaths := make([]string, len(urls))
	entryExts := make([]string, len(urls))

	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			destPath := filepath.Join(tempDir, uuid.New().String())
			info, err := b.downloadOne(gctx, rawURL, destPath)
			if err != nil {
				return fmt.Errorf("failed to add %s to training archive: %w", rawURL, err)
			}

			tempPaths[i] = destPath
			entryExts[i] = info.Type.Ext()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeArchive(tempPaths, entryExts, zipPath); err != nil {
		return nil, err
	}

	stat, err := os.Stat(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat training archive: %w", err)
	}

	summary := &Summary{
		Images: len(urls),
		Bytes:  stat.Size(),
	}
	logger.Info().
		Int("images", summary.Images).
		Int64("bytes", summary.Bytes).
		Str("zip", zipPath).
		Msg("Training archive built")
	return summary, nil
}

// downloadOne fetches a single training image with retries on download
// failures, and reports the probed image info for naming the archive entry.
func (b *Builder) downloadOne(ctx context.Context, rawURL string, destPath string) (*models.ImageInfo, error) {
	return failsafe.NewExecutor[*models.ImageInfo](b.retry).WithContext(ctx).Get(func() (*models.ImageInfo, error) {
		info, err := b.fetcher.Probe(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if err := b.fetcher.DownloadResized(ctx, rawURL, trainingWidth, trainingHeight, destPath); err != nil {
			return nil, err
		}
		return info, nil
	})
}

// writeArchive packs the downloaded files into a zip at zipPath. Entries are
// stored uncompressed; the images are already compressed formats and deflating
// them again buys nothing. A failed write removes the archive.
func writeArchive(tempPaths []string, entryExts []string, zipPath string) error {
	zipFile, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create training archive: %w", err)
	}

	if err := writeEntries(zipFile, tempPaths, entryExts); err != nil {
		_ = zipFile.Close()
		_ = os.Remove(zipPath)
		return err
	}
	if err := zipFile.Close(); err != nil {
		_ = os.Remove(zipPath)
		return err
	}
	return nil
}

func writeEntries(zipFile *os.File, tempPaths []string, entryExts []string) error {
	zw := zip.NewWriter(zipFile)

	for i, tempPath := range tempPaths {
		header := &zip.FileHeader{
			Name:   fmt.Sprintf("image-%d.%s", i+1, entryExts[i]),
			Method: zip.Store,
		}

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to create archive entry: %w", err)
		}

		f, err := os.Open(tempPath)
		if err != nil {
			return fmt.Errorf("failed to open downloaded image: %w", err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write archive entry: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	return zw.Close()
}
