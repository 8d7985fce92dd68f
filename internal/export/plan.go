package export

import (
	"math"

	"github.com/ivlev/zoomreel/internal/timeline"
)

// Sample is one timestamp to composite, with everything the compositor needs
// resolved up front.
type Sample struct {
	Index    int
	Time     float64
	State    timeline.VisualState
	Overlays []timeline.TextOverlayKeyframe
}

// SamplePlan is the full list of samples of one export.
type SamplePlan struct {
	FPS      int
	Duration float64
	Samples  []Sample
}

// SampleCount is floor(duration × fps). The epsilon absorbs float error so
// that 3 s at 30 fps yields 90 samples.
func SampleCount(duration float64, fps int) int {
	if fps <= 0 || duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return int(math.Floor(duration*float64(fps) + 1e-9))
}

// BuildPlan evaluates the timeline once per sample. Sample i sits at i/fps.
func BuildPlan(duration float64, fps int, tl *timeline.Timeline, overlays []timeline.TextOverlayKeyframe) SamplePlan {
	n := SampleCount(duration, fps)
	plan := SamplePlan{FPS: fps, Duration: duration, Samples: make([]Sample, n)}
	for i := range plan.Samples {
		t := float64(i) / float64(fps)
		plan.Samples[i] = Sample{
			Index:    i,
			Time:     t,
			State:    tl.At(t),
			Overlays: timeline.ActiveOverlays(t, overlays),
		}
	}
	return plan
}

// Batches splits n samples into [start,end) ranges of at most size.
func Batches(n, size int) [][2]int {
	if size < 1 {
		size = 1
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
