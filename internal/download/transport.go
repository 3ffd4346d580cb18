package download

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// decoderFunc wraps a compressed response body in its decoder.
type decoderFunc func(io.ReadCloser) (io.ReadCloser, error)

// decoders maps Content-Encoding tokens to body decoders. Image hosts rarely
// compress image payloads, but CDNs sitting in front of them sometimes do.
var decoders = map[string]decoderFunc{
	"gzip": func(body io.ReadCloser) (io.ReadCloser, error) {
		return gzip.NewReader(body)
	},
	"br": func(body io.ReadCloser) (io.ReadCloser, error) {
		return io.NopCloser(brotli.NewReader(body)), nil
	},
	"zstd": func(body io.ReadCloser) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	},
}

// decompressionTransport wraps an http.RoundTripper to transparently undo
// gzip, brotli, and zstd content encodings, so saved files always hold the
// image bytes themselves rather than a compressed wrapper.
type decompressionTransport struct {
	transport http.RoundTripper
}

// newDecompressionTransport creates a transport that handles automatic decompression.
func newDecompressionTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decompressionTransport{transport: base}
}

// RoundTrip executes a single HTTP transaction, advertising the supported
// encodings and decompressing the response when the server used one.
func (t *decompressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	req = cloneRequest(req)

	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br, zstd")
	}

	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Nothing to decompress for bodyless responses (HEAD, 204, 304).
	if resp.Body == nil || resp.Body == http.NoBody {
		return resp, nil
	}

	encoding := parseContentEncoding(resp.Header.Get("Content-Encoding"))
	decode, ok := decoders[encoding]
	if !ok {
		// Identity or unknown encoding: hand the body over untouched.
		return resp, nil
	}

	reader, err := decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	// Wrap the reader to close both the decompressor and original body
	resp.Body = &decompressReadCloser{
		reader:       reader,
		originalBody: resp.Body,
	}

	// The body is now the decoded payload, so the encoding headers and length
	// no longer describe it.
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1

	return resp, nil
}

// decompressReadCloser wraps a decompressor reader and ensures both
// the decompressor and the original body are closed
type decompressReadCloser struct {
	reader       io.ReadCloser
	originalBody io.ReadCloser
}

func (d *decompressReadCloser) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReadCloser) Close() error {
	readerErr := d.reader.Close()
	bodyErr := d.originalBody.Close()

	if readerErr != nil {
		return readerErr
	}
	return bodyErr
}

// cloneRequest creates a shallow copy of the request with its own header map.
func cloneRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req

	r.Header = make(http.Header, len(req.Header))
	for k, v := range req.Header {
		r.Header[k] = append([]string(nil), v...)
	}

	return r
}

// parseContentEncoding extracts the encoding to undo from a Content-Encoding
// header. For comma-separated lists the last token names the outermost coding,
// which must be removed first. Returns the token normalized to lowercase, or
// an empty string for an identity response.
func parseContentEncoding(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ",")
	return strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
}
