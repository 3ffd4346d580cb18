package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
)

// solidImage builds a width x height image filled with a flat color.
func solidImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 40, G: 120, B: 200, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

// PNGImage returns a PNG-encoded width x height image.
// This is a test helper and should not be used in production code.
func PNGImage(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGImage returns a JPEG-encoded width x height image.
// This is a test helper and should not be used in production code.
func JPEGImage(width, height int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solidImage(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIFImage returns a GIF-encoded width x height image.
// This is a test helper and should not be used in production code.
func GIFImage(width, height int) []byte {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, solidImage(width, height), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BMPImage returns a BMP-encoded width x height image.
// This is a test helper and should not be used in production code.
func BMPImage(width, height int) []byte {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, solidImage(width, height)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
