package models

import "strings"

// ImageType represents the detected format of a downloaded image
type ImageType int

const (
	ImageTypeUnknown ImageType = iota
	ImageTypePNG
	ImageTypeJPEG
	ImageTypeGIF
	ImageTypeWebP
	ImageTypeBMP
	ImageTypeTIFF
)

// String returns the format name as registered with the image package
func (t ImageType) String() string {
	switch t {
	case ImageTypePNG:
		return "png"
	case ImageTypeJPEG:
		return "jpeg"
	case ImageTypeGIF:
		return "gif"
	case ImageTypeWebP:
		return "webp"
	case ImageTypeBMP:
		return "bmp"
	case ImageTypeTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// ParseImageType converts a format name to ImageType enum
func ParseImageType(formatStr string) ImageType {
	switch strings.ToLower(formatStr) {
	case "png":
		return ImageTypePNG
	case "jpeg", "jpg":
		return ImageTypeJPEG
	case "gif":
		return ImageTypeGIF
	case "webp":
		return ImageTypeWebP
	case "bmp":
		return ImageTypeBMP
	case "tiff":
		return ImageTypeTIFF
	default:
		return ImageTypeUnknown
	}
}

// IsSupported reports whether the resize pipeline can process the format
func (t ImageType) IsSupported() bool {
	return t == ImageTypePNG || t == ImageTypeJPEG
}

// Ext returns the file extension used when writing the image to disk
func (t ImageType) Ext() string {
	switch t {
	case ImageTypeJPEG:
		return "jpg"
	case ImageTypeUnknown:
		return "bin"
	default:
		return t.String()
	}
}

// MarshalJSON implements json.Marshaler interface
func (t ImageType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler interface
func (t *ImageType) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	*t = ParseImageType(str)
	return nil
}
