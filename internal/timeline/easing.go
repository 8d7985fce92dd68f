package timeline

import (
	"errors"
	"fmt"
	"strings"
)

// Easing maps blend progress in [0,1] onto [0,1]. Implementations must be
// monotonic and satisfy f(0)=0, f(1)=1 so cross-fades never overshoot.
type Easing func(p float64) float64

// Linear is the default blend curve.
func Linear(p float64) float64 {
	return p
}

// EaseInOutCubic applies smooth easing
func EaseInOutCubic(p float64) float64 {
	if p < 0.5 {
		return 4 * p * p * p
	}
	q := -2*p + 2
	return 1 - q*q*q/2
}

func EaseOutCubic(p float64) float64 {
	q := 1 - p
	return 1 - q*q*q
}

func SmoothStep(p float64) float64 {
	return p * p * (3 - 2*p)
}

// ErrUnknownEasing is returned by ParseEasing for names it does not know.
var ErrUnknownEasing = errors.New("unknown easing")

// ParseEasing resolves a curve name as written in project files. The empty
// name is Linear.
func ParseEasing(name string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear, nil
	case "ease-in-out-cubic", "cubic":
		return EaseInOutCubic, nil
	case "ease-out-cubic":
		return EaseOutCubic, nil
	case "smoothstep":
		return SmoothStep, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEasing, name)
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
