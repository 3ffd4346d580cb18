package download

import (
	"context"

	"github.com/smingko/taxinomitis/internal/models"
)

// ImageDownloader defines the interface for fetching training images to local disk
type ImageDownloader interface {
	// DownloadFile fetches the image at url and writes its bytes to destPath
	// exactly as the host sent them, with no decoding or re-encoding.
	DownloadFile(ctx context.Context, url string, destPath string) error

	// DownloadResized fetches the image at url, stretches it to exactly
	// width x height pixels, and writes it to destPath in its original format.
	// Only PNG and JPEG images can be resized.
	DownloadResized(ctx context.Context, url string, width, height int, destPath string) error

	// Probe reads just enough of the image at url to report its format and
	// dimensions without downloading the whole file. Successful probes are cached.
	Probe(ctx context.Context, url string) (*models.ImageInfo, error)

	// Stats returns the process-wide attempt/failure counters.
	Stats() *Stats

	// Close releases any resources held by the downloader (e.g., cache connections).
	Close() error
}
