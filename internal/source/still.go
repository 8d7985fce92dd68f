package source

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
)

// stillSource presents a list of still pictures, each for a fixed duration.
// Decoded pictures are letterboxed into the frame size of the first one.
type stillSource struct {
	count    int
	each     float64
	width    int
	height   int
	render   func(index int) (image.Image, error)
	closeFn  func() error
	mu       sync.Mutex
	curIndex int
	current  *image.RGBA
}

func (s *stillSource) Duration() float64 {
	return float64(s.count) * s.each
}

func (s *stillSource) Size() (int, int) {
	return s.width, s.height
}

// indexAt maps t to a picture index, clamped to the valid range.
func (s *stillSource) indexAt(t float64) int {
	if s.each <= 0 || math.IsNaN(t) || t <= 0 {
		return 0
	}
	idx := int(math.Floor(t/s.each + 1e-9))
	if idx >= s.count {
		idx = s.count - 1
	}
	return idx
}

func (s *stillSource) Seek(ctx context.Context, t float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexAt(t)
	if s.current != nil && idx == s.curIndex {
		return nil
	}
	img, err := s.render(idx)
	if err != nil {
		return err
	}
	s.current = letterbox(img, s.width, s.height)
	s.curIndex = idx
	return nil
}

func (s *stillSource) ReadCurrentFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, notReady("no frame presented yet")
	}
	return s.current, nil
}

func (s *stillSource) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// letterbox fits img into w×h, preserving aspect ratio, centred on black.
func letterbox(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return toRGBA(img)
	}
	fitted := imaging.Fit(img, w, h, imaging.Lanczos)
	canvas := imaging.New(w, h, color.Black)
	return toRGBA(imaging.PasteCenter(canvas, fitted))
}
