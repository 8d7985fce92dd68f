package analyzer

import (
	"errors"
	"fmt"
	"image"
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("empty image")

// Block is a detected region of interest in frame pixels.
type Block struct {
	Rect image.Rectangle
	// Confidence is the share of edge pixels inside Rect, 0..1.
	Confidence float64
}

// Detector finds regions worth zooming into.
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// NewDetector creates a detector based on the specified variant
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}
