package apperrors

import (
	"fmt"
	"net/url"
)

// ErrForbidden is returned when the hosting website refuses to serve the image (HTTP 401/403).
type ErrForbidden struct {
	Host string
	URL  string
}

// Error implements the error interface.
func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("%s would not allow machinelearningforkids.co.uk to use that image", e.Host)
}

// Is allows for error checking with errors.Is().
func (e *ErrForbidden) Is(target error) bool {
	_, ok := target.(*ErrForbidden)
	return ok
}

// NewForbiddenError creates a new ErrForbidden, naming the refusing host in the message.
func NewForbiddenError(rawURL string) *ErrForbidden {
	host := "this website"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &ErrForbidden{
		Host: host,
		URL:  rawURL,
	}
}

// ErrUnsupportedFormat is returned when an image is not in a format the resize pipeline accepts.
type ErrUnsupportedFormat struct {
	FileType string
}

// Error implements the error interface.
func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("Unsupported file type %s", e.FileType)
}

// Is allows for error checking with errors.Is().
func (e *ErrUnsupportedFormat) Is(target error) bool {
	_, ok := target.(*ErrUnsupportedFormat)
	return ok
}

// NewUnsupportedFormatError creates a new ErrUnsupportedFormat.
func NewUnsupportedFormatError(fileType string) *ErrUnsupportedFormat {
	return &ErrUnsupportedFormat{
		FileType: fileType,
	}
}

// ErrDownloadFailed is returned when an image cannot be fetched or processed for any other reason.
type ErrDownloadFailed struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ErrDownloadFailed) Error() string {
	return fmt.Sprintf("Unable to download image from %s", e.URL)
}

// Is allows for error checking with errors.Is().
func (e *ErrDownloadFailed) Is(target error) bool {
	_, ok := target.(*ErrDownloadFailed)
	return ok
}

// Unwrap returns the underlying cause so it stays reachable through errors.Is/As.
func (e *ErrDownloadFailed) Unwrap() error {
	return e.Err
}

// NewDownloadFailedError creates a new ErrDownloadFailed wrapping the underlying cause.
func NewDownloadFailedError(url string, cause error) *ErrDownloadFailed {
	return &ErrDownloadFailed{
		URL: url,
		Err: cause,
	}
}
