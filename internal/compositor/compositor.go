package compositor

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/zoomreel/internal/timeline"
)

// ErrInvalidFrame is returned for base frames with no pixels.
var ErrInvalidFrame = errors.New("invalid frame")

// Compositor turns one base frame plus a visual state and text overlays into
// an output frame. It holds no per-frame state and may be shared between
// goroutines.
type Compositor struct {
	fonts  *FontBook
	interp draw.Interpolator
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithInterpolator overrides the resampling kernel used for zoom.
func WithInterpolator(i draw.Interpolator) Option {
	return func(c *Compositor) { c.interp = i }
}

// New creates a compositor. A nil font book gets the bundled Go fonts only.
func New(fonts *FontBook, opts ...Option) *Compositor {
	if fonts == nil {
		fonts = NewFontBook()
	}
	c := &Compositor{fonts: fonts, interp: draw.BiLinear}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders into a freshly allocated frame of the same size as base.
// base is never modified.
func (c *Compositor) Compose(base *image.RGBA, state timeline.VisualState, overlays []timeline.TextOverlayKeyframe) (*image.RGBA, error) {
	if err := checkFrame(base); err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, base.Rect.Dx(), base.Rect.Dy()))
	if err := c.ComposeInto(dst, base, state, overlays); err != nil {
		return nil, err
	}
	return dst, nil
}

// ComposeInto renders into dst, which must have base's dimensions and must
// not alias it. Used with pooled buffers.
func (c *Compositor) ComposeInto(dst, base *image.RGBA, state timeline.VisualState, overlays []timeline.TextOverlayKeyframe) error {
	if err := checkFrame(base); err != nil {
		return err
	}
	if dst == nil || dst.Rect.Dx() != base.Rect.Dx() || dst.Rect.Dy() != base.Rect.Dy() {
		return fmt.Errorf("%w: destination does not match base %dx%d", ErrInvalidFrame, base.Rect.Dx(), base.Rect.Dy())
	}

	copyPixels(dst, base)

	if !state.IsIdentity() {
		c.zoom(dst, base, state)
	}

	for _, o := range overlays {
		if err := c.drawOverlay(dst, o); err != nil {
			return fmt.Errorf("overlay %q: %w", o.ID, err)
		}
	}
	return nil
}

// zoom applies translate -> scale -> translate-back around the frame centre,
// shifted by the pivot offset so the authored point stays put.
func (c *Compositor) zoom(dst, base *image.RGBA, state timeline.VisualState) {
	w, h := base.Rect.Dx(), base.Rect.Dy()
	dx, dy := state.Offsets(w, h)
	cx, cy := float64(w)/2, float64(h)/2
	s := state.Scale

	// dst = c + s*(src - c) + offset, with src in base's coordinate space.
	ox, oy := float64(base.Rect.Min.X), float64(base.Rect.Min.Y)
	m := f64.Aff3{
		s, 0, cx - s*cx + dx - s*ox,
		0, s, cy - s*cy + dy - s*oy,
	}
	c.interp.Transform(dst, m, base, base.Rect, draw.Src, nil)
}

func checkFrame(f *image.RGBA) error {
	if f == nil || f.Rect.Dx() <= 0 || f.Rect.Dy() <= 0 {
		return fmt.Errorf("%w: zero width or height", ErrInvalidFrame)
	}
	return nil
}

// copyPixels copies src into dst (origin 0,0), row by row when strides differ.
func copyPixels(dst, src *image.RGBA) {
	if dst.Stride == src.Stride && src.Rect.Min == (image.Point{}) && len(dst.Pix) == len(src.Pix) {
		copy(dst.Pix, src.Pix)
		return
	}
	draw.Copy(dst, image.Point{}, src, src.Rect, draw.Src, nil)
}
