package timeline

import (
	"errors"
	"fmt"
)

// TransitionKind controls how a zoom keyframe is entered and left.
type TransitionKind string

const (
	TransitionSmooth  TransitionKind = "smooth"
	TransitionInstant TransitionKind = "instant"
)

// KeyframeOrigin records where a keyframe came from. It is carried through
// project files for the editor and never affects evaluation.
type KeyframeOrigin struct {
	Source string `yaml:"source,omitempty"` // "manual", "import", ...
	Label  string `yaml:"label,omitempty"`
}

// ZoomKeyframe anchors a pan/zoom target to a time range.
type ZoomKeyframe struct {
	ID         string          `yaml:"id"`
	StartTime  float64         `yaml:"start"` // seconds
	EndTime    float64         `yaml:"end"`   // seconds
	X          float64         `yaml:"x"`     // percent of frame width, 0..100
	Y          float64         `yaml:"y"`     // percent of frame height, 0..100
	Scale      float64         `yaml:"scale"` // 1..5
	Transition TransitionKind  `yaml:"transition,omitempty"`
	Origin     *KeyframeOrigin `yaml:"origin,omitempty"`
}

// TextOverlayKeyframe is a block of text shown between StartTime and EndTime.
type TextOverlayKeyframe struct {
	ID              string  `yaml:"id"`
	StartTime       float64 `yaml:"start"`
	EndTime         float64 `yaml:"end"`
	X               float64 `yaml:"x"` // anchor, percent of frame width
	Y               float64 `yaml:"y"` // anchor, percent of frame height
	Text            string  `yaml:"text"`
	FontSize        float64 `yaml:"font_size"`
	Color           string  `yaml:"color"`
	FontFamily      string  `yaml:"font_family,omitempty"`
	BackgroundColor string  `yaml:"background_color,omitempty"`
	Padding         float64 `yaml:"padding,omitempty"`
	BorderRadius    float64 `yaml:"border_radius,omitempty"`
}

// Active reports whether the overlay is visible at t (both ends inclusive).
func (o TextOverlayKeyframe) Active(t float64) bool {
	return o.StartTime <= t && t <= o.EndTime
}

var ErrInvalidKeyframe = errors.New("invalid keyframe")

// Validate checks the authored ranges. Evaluation tolerates invalid
// keyframes; validation exists so editors and the CLI can reject them early.
func (k ZoomKeyframe) Validate() error {
	switch {
	case k.StartTime > k.EndTime:
		return fmt.Errorf("%w %q: start %.3f after end %.3f", ErrInvalidKeyframe, k.ID, k.StartTime, k.EndTime)
	case k.X < 0 || k.X > 100 || k.Y < 0 || k.Y > 100:
		return fmt.Errorf("%w %q: point (%.1f, %.1f) outside 0..100", ErrInvalidKeyframe, k.ID, k.X, k.Y)
	case k.Scale < 1 || k.Scale > 5:
		return fmt.Errorf("%w %q: scale %.2f outside 1..5", ErrInvalidKeyframe, k.ID, k.Scale)
	case k.Transition != "" && k.Transition != TransitionSmooth && k.Transition != TransitionInstant:
		return fmt.Errorf("%w %q: unknown transition %q", ErrInvalidKeyframe, k.ID, k.Transition)
	}
	return nil
}

func (o TextOverlayKeyframe) Validate() error {
	switch {
	case o.StartTime > o.EndTime:
		return fmt.Errorf("%w %q: start %.3f after end %.3f", ErrInvalidKeyframe, o.ID, o.StartTime, o.EndTime)
	case o.FontSize <= 0:
		return fmt.Errorf("%w %q: font size must be positive", ErrInvalidKeyframe, o.ID)
	case o.Padding < 0 || o.BorderRadius < 0:
		return fmt.Errorf("%w %q: negative padding or border radius", ErrInvalidKeyframe, o.ID)
	}
	return nil
}

// ValidateAll validates every keyframe and overlay, returning all problems joined.
func ValidateAll(zoom []ZoomKeyframe, text []TextOverlayKeyframe) error {
	var errs []error
	for _, k := range zoom {
		if err := k.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, o := range text {
		if err := o.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActiveOverlays returns the overlays visible at t in their original order,
// which is also their draw order.
func ActiveOverlays(t float64, overlays []TextOverlayKeyframe) []TextOverlayKeyframe {
	var active []TextOverlayKeyframe
	for _, o := range overlays {
		if o.Active(t) {
			active = append(active, o)
		}
	}
	return active
}
