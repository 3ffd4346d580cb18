package models

// ImageInfo describes an image without holding its pixel data
type ImageInfo struct {
	Type   ImageType `json:"type"`   // Detected image format
	Width  int       `json:"width"`  // Width in pixels
	Height int       `json:"height"` // Height in pixels
}
