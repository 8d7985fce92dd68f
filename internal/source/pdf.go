package source

import (
	"image"
	"math"

	"github.com/gen2brain/go-fitz"
)

const defaultDPI = 150

// NewPDFSource presents each page of a PDF for pageDuration seconds,
// rendered at dpi. The frame size is the first page's, rounded to even
// dimensions for the H.264 encoder.
func NewPDFSource(path string, pageDuration float64, dpi int) (VideoSource, error) {
	if pageDuration <= 0 {
		return nil, notReady("page duration must be positive, got %v", pageDuration)
	}
	if dpi <= 0 {
		dpi = defaultDPI
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}

	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, notReady("pdf %s has no pages", path)
	}

	bound, err := doc.Bound(0)
	if err != nil {
		doc.Close()
		return nil, err
	}
	// Bound is in points (1/72 inch)
	scale := float64(dpi) / 72
	w := evenPixels(float64(bound.Dx()) * scale)
	h := evenPixels(float64(bound.Dy()) * scale)

	return &stillSource{
		count:  pages,
		each:   pageDuration,
		width:  w,
		height: h,
		render: func(index int) (image.Image, error) {
			return doc.ImageDPI(index, float64(dpi))
		},
		closeFn: doc.Close,
	}, nil
}

func evenPixels(v float64) int {
	n := int(math.Round(v))
	if n%2 == 1 {
		n++
	}
	if n < 2 {
		n = 2
	}
	return n
}
