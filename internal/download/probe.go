package download

import (
	"context"
	"errors"
	"image"
	"io"

	// Register the decoders the probe can recognize. PNG and JPEG are the
	// formats the platform accepts; the rest let the probe name what it saw.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/smingko/taxinomitis/internal/apperrors"
	"github.com/smingko/taxinomitis/internal/config"
	"github.com/smingko/taxinomitis/internal/metrics"
	"github.com/smingko/taxinomitis/internal/models"
)

// Probe reports the format and dimensions of the image at rawURL.
func (d *defaultImageDownloader) Probe(ctx context.Context, rawURL string) (*models.ImageInfo, error) {
	info, err := d.probe(ctx, rawURL)
	if err != nil {
		d.logFailure("probe", rawURL, err)
		return nil, err
	}
	return info, nil
}

// probe checks the cache, then reads just the image header off the wire.
// Successful probes of any recognized format are cached; failures never are,
// so a host that was down gets retried on the next attempt.
func (d *defaultImageDownloader) probe(ctx context.Context, rawURL string) (*models.ImageInfo, error) {
	logger := config.GetLogger()

	if info, found := d.probeCache.Get(rawURL); found {
		logger.Debug().
			Str("url", rawURL).
			Msg("Probe served from cache")
		metrics.ImageProbesTotal.WithLabelValues("success").Inc()
		return info, nil
	}

	resp, err := d.fetch(ctx, rawURL)
	if err != nil {
		return nil, d.probeFailed(apperrors.NewDownloadFailedError(rawURL, err))
	}
	// Closing the body early aborts the rest of the transfer; the probe never
	// reads more than the decoder asks for.
	defer resp.Body.Close()

	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		return nil, d.probeFailed(err)
	}

	imgConfig, format, err := image.DecodeConfig(io.LimitReader(resp.Body, d.maxImageBytes))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, d.probeFailed(apperrors.NewUnsupportedFormatError(models.ImageTypeUnknown.String()))
		}
		return nil, d.probeFailed(apperrors.NewDownloadFailedError(rawURL, err))
	}

	info := &models.ImageInfo{
		Type:   models.ParseImageType(format),
		Width:  imgConfig.Width,
		Height: imgConfig.Height,
	}

	metrics.ImageProbesTotal.WithLabelValues("success").Inc()
	d.probeCache.Set(rawURL, info)

	logger.Debug().
		Str("url", rawURL).
		Str("type", info.Type.String()).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("Probed image")
	return info, nil
}

// probeFailed records the probe outcome metric and returns err unchanged.
func (d *defaultImageDownloader) probeFailed(err error) error {
	metrics.ImageProbesTotal.WithLabelValues(statusLabel(err)).Inc()
	return err
}
