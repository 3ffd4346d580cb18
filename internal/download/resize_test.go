package download

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/smingko/taxinomitis/internal/apperrors"
	"github.com/smingko/taxinomitis/internal/testutil"
)

// decodeSavedImage reports the format name and dimensions of the image file at path.
func decodeSavedImage(t *testing.T, path string) (string, int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open resized file: %v", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Failed to decode resized file: %v", err)
	}
	return format, cfg.Width, cfg.Height
}

func TestDownloadResized_ExactDimensions(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		width          int
		height         int
		expectedFormat string
	}{
		{"png downscale", testutil.PNGImage(64, 48), 50, 40, "png"},
		{"jpeg downscale", testutil.JPEGImage(60, 60), 30, 30, "jpeg"},
		{"png upscale", testutil.PNGImage(10, 10), 100, 80, "png"},
		{"jpeg stretch ignores aspect ratio", testutil.JPEGImage(400, 100), 50, 200, "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(tt.data)
			}))
			defer server.Close()

			downloader := newTestDownloader(t, nil)
			destPath := filepath.Join(t.TempDir(), "resized")

			err := downloader.DownloadResized(context.Background(), server.URL, tt.width, tt.height, destPath)
			if err != nil {
				t.Fatalf("DownloadResized failed: %v", err)
			}

			format, width, height := decodeSavedImage(t, destPath)
			if format != tt.expectedFormat {
				t.Errorf("Expected format %q, got %q", tt.expectedFormat, format)
			}
			if width != tt.width || height != tt.height {
				t.Errorf("Expected dimensions %dx%d, got %dx%d", tt.width, tt.height, width, height)
			}
		})
	}
}

func TestDownloadResized_UnsupportedFormats(t *testing.T) {
	tests := []struct {
		name            string
		data            []byte
		expectedMessage string
	}{
		{"gif", testutil.GIFImage(32, 32), "Unsupported file type gif"},
		{"bmp", testutil.BMPImage(32, 32), "Unsupported file type bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(tt.data)
			}))
			defer server.Close()

			downloader := newTestDownloader(t, nil)
			destPath := filepath.Join(t.TempDir(), "resized")

			err := downloader.DownloadResized(context.Background(), server.URL, 24, 24, destPath)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, &apperrors.ErrUnsupportedFormat{}) {
				t.Errorf("Expected ErrUnsupportedFormat, got %T", err)
			}
			if err.Error() != tt.expectedMessage {
				t.Errorf("Expected error message %q, got %q", tt.expectedMessage, err.Error())
			}

			if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
				t.Errorf("Expected no file at dest, got stat error %v", statErr)
			}
			if downloader.Stats().Attempts() != 1 || downloader.Stats().Failures() != 1 {
				t.Errorf("Expected 1 attempt and 1 failure, got %d and %d",
					downloader.Stats().Attempts(), downloader.Stats().Failures())
			}
		})
	}
}

func TestDownloadResized_InvalidDimensions(t *testing.T) {
	downloader := newTestDownloader(t, nil)
	destPath := filepath.Join(t.TempDir(), "resized")

	for _, dims := range []struct{ width, height int }{
		{0, 40},
		{50, 0},
		{-1, 40},
		{50, -1},
	} {
		err := downloader.DownloadResized(context.Background(), "http://example.test/image.png", dims.width, dims.height, destPath)
		if err == nil {
			t.Fatalf("Expected error for %dx%d, got nil", dims.width, dims.height)
		}
		if !errors.Is(err, &apperrors.ErrDownloadFailed{}) {
			t.Errorf("Expected ErrDownloadFailed for %dx%d, got %T", dims.width, dims.height, err)
		}
	}

	// Rejected requests never count as attempts.
	if downloader.Stats().Attempts() != 0 {
		t.Errorf("Expected 0 attempts, got %d", downloader.Stats().Attempts())
	}
}

func TestDownloadResized_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	downloader := newTestDownloader(t, nil)
	destPath := filepath.Join(t.TempDir(), "resized")

	err := downloader.DownloadResized(context.Background(), server.URL+"/locked.png", 24, 24, destPath)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, &apperrors.ErrForbidden{}) {
		t.Errorf("Expected ErrForbidden, got %T", err)
	}

	expected := "127.0.0.1 would not allow machinelearningforkids.co.uk to use that image"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
	if downloader.Stats().Failures() != 1 {
		t.Errorf("Expected 1 failure, got %d", downloader.Stats().Failures())
	}
}

func TestDownloadResized_TooLarge(t *testing.T) {
	// The probe reads the header within the byte limit, but buffering the full
	// image for resizing trips it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testutil.PNGImage(64, 48))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxImageBytes = 64
	downloader := newTestDownloader(t, cfg)
	destPath := filepath.Join(t.TempDir(), "resized")

	err := downloader.DownloadResized(context.Background(), server.URL, 24, 24, destPath)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var dlErr *apperrors.ErrDownloadFailed
	if !errors.As(err, &dlErr) {
		t.Fatalf("Expected ErrDownloadFailed, got %T", err)
	}
	if dlErr.Err == nil || !strings.Contains(dlErr.Err.Error(), "64 byte limit") {
		t.Errorf("Expected cause to name the byte limit, got %v", dlErr.Err)
	}

	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Errorf("Expected no file at dest, got stat error %v", statErr)
	}
}

func TestDownloadResized_UsesProbeCache(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(testutil.PNGImage(32, 32))
	}))
	defer server.Close()

	downloader := newTestDownloader(t, nil)
	url := server.URL + "/cached.png"

	if _, err := downloader.Probe(context.Background(), url); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	destPath := filepath.Join(t.TempDir(), "resized")
	if err := downloader.DownloadResized(context.Background(), url, 16, 16, destPath); err != nil {
		t.Fatalf("DownloadResized failed: %v", err)
	}

	// One request for the probe, one for the image body. The resize's own
	// probe is served from cache.
	if requests.Load() != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", requests.Load())
	}
}
