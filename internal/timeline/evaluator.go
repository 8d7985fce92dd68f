package timeline

import (
	"math"
	"sort"
)

const (
	// MaxTransition caps how long a keyframe spends easing in or out (seconds).
	MaxTransition = 1.2
	// TransitionDivisor bounds the share of a short keyframe spent easing.
	TransitionDivisor = 2.5
)

// StateKind tags how a VisualState was produced.
type StateKind string

const (
	StateExact     StateKind = "exact"
	StateSynthetic StateKind = "synthetic-transition"
	StateDefault   StateKind = "default"
)

// VisualState is the resolved transform at one instant.
type VisualState struct {
	X     float64
	Y     float64
	Scale float64
	Kind  StateKind
	// KeyframeIDs names the keyframes the state was derived from. Only UI
	// indicators read it.
	KeyframeIDs []string
}

// DefaultState is the untransformed view: centered, scale 1.
func DefaultState() VisualState {
	return VisualState{X: 50, Y: 50, Scale: 1, Kind: StateDefault}
}

// IsIdentity reports whether compositing this state leaves the frame
// untouched. With scale 1 the pivot offset vanishes for every point.
func (s VisualState) IsIdentity() bool {
	return s.Scale == 1
}

// TransitionDuration returns how long k eases in and out. Instant and
// degenerate keyframes never blend.
func TransitionDuration(k ZoomKeyframe) float64 {
	if k.Transition == TransitionInstant {
		return 0
	}
	span := k.EndTime - k.StartTime
	if !(span > 0) {
		return 0
	}
	return math.Min(MaxTransition, span/TransitionDivisor)
}

// Evaluator walks a keyframe list with a configurable blend curve.
type Evaluator struct {
	Easing Easing
}

// Timeline is an immutable, sorted snapshot of zoom keyframes. Preview and
// export both resolve states through At, which is what makes an exported
// frame match what was scrubbed.
type Timeline struct {
	keyframes []ZoomKeyframe
	durations []float64
	// pred[i] and succ[i] are the keyframes i may cross-fade with, -1 if none.
	pred   []int
	succ   []int
	easing Easing
}

// NewTimeline snapshots keyframes with the default (linear) curve.
func NewTimeline(keyframes []ZoomKeyframe) *Timeline {
	return Evaluator{}.Timeline(keyframes)
}

// Timeline copies and stably sorts keyframes by start time. The input slice
// is never modified.
func (e Evaluator) Timeline(keyframes []ZoomKeyframe) *Timeline {
	sorted := make([]ZoomKeyframe, len(keyframes))
	copy(sorted, keyframes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	durations := make([]float64, len(sorted))
	for i, k := range sorted {
		durations[i] = TransitionDuration(k)
	}

	easing := e.Easing
	if easing == nil {
		easing = Linear
	}
	tl := &Timeline{keyframes: sorted, durations: durations, easing: easing}
	tl.link()
	return tl
}

// link resolves each keyframe's neighbours. succ is the earliest keyframe
// starting at or after its end; pred is the keyframe with the latest end at
// or before its start. Nested and partially overlapping keyframes are never
// neighbours.
func (tl *Timeline) link() {
	n := len(tl.keyframes)
	tl.pred = make([]int, n)
	tl.succ = make([]int, n)
	for i, k := range tl.keyframes {
		tl.succ[i] = -1
		for j := i + 1; j < n; j++ {
			if tl.keyframes[j].StartTime >= k.EndTime {
				tl.succ[i] = j
				break
			}
		}
		tl.pred[i] = tl.lastEndingBefore(k.StartTime, i, true)
	}
}

// lastEndingBefore returns the keyframe other than skip with the latest end
// before t (or at t when inclusive). Ties go to the earliest start.
func (tl *Timeline) lastEndingBefore(t float64, skip int, inclusive bool) int {
	best := -1
	for j, k := range tl.keyframes {
		if j == skip || k.EndTime > t || !inclusive && k.EndTime == t {
			continue
		}
		if best < 0 || k.EndTime > tl.keyframes[best].EndTime {
			best = j
		}
	}
	return best
}

// Evaluate resolves the state at t with this evaluator's curve.
func (e Evaluator) Evaluate(t float64, keyframes []ZoomKeyframe) VisualState {
	return e.Timeline(keyframes).At(t)
}

// Evaluate resolves the visual state at t using linear blending. It is pure
// and total: every real t, including values outside all keyframes, yields a state.
func Evaluate(t float64, keyframes []ZoomKeyframe) VisualState {
	return NewTimeline(keyframes).At(t)
}

// Keyframes returns a copy of the sorted snapshot.
func (tl *Timeline) Keyframes() []ZoomKeyframe {
	out := make([]ZoomKeyframe, len(tl.keyframes))
	copy(out, tl.keyframes)
	return out
}

// Len returns the number of keyframes in the snapshot.
func (tl *Timeline) Len() int {
	return len(tl.keyframes)
}

// At resolves the visual state at t.
func (tl *Timeline) At(t float64) VisualState {
	kfs := tl.keyframes
	if len(kfs) == 0 || math.IsNaN(t) {
		return DefaultState()
	}

	// Earliest start wins when ranges overlap.
	for i, k := range kfs {
		if k.StartTime <= t && t <= k.EndTime {
			return tl.inside(i, t)
		}
	}

	if t < kfs[0].StartTime {
		return DefaultState()
	}

	// No keyframe contains t: fade between the last one to end before t and
	// the first one to start after it, when they are linked.
	prev := tl.lastEndingBefore(t, -1, false)
	next := sort.Search(len(kfs), func(i int) bool { return kfs[i].StartTime > t })
	if prev < 0 || next >= len(kfs) {
		return DefaultState()
	}
	if tl.adjacent(prev, next) {
		return tl.crossfade(prev, next, t)
	}
	return DefaultState()
}

func (tl *Timeline) inside(i int, t float64) VisualState {
	k := tl.keyframes[i]
	d := tl.durations[i]
	if d == 0 {
		return exact(k)
	}

	if t < k.StartTime+d {
		if p := tl.pred[i]; p >= 0 && tl.adjacent(p, i) {
			return tl.crossfade(p, i, t)
		}
		p := (t - k.StartTime) / d
		return tl.mix(defaultTarget, targetOf(k), p, k.ID)
	}

	if t > k.EndTime-d {
		if n := tl.succ[i]; n >= 0 && tl.adjacent(i, n) {
			return tl.crossfade(i, n, t)
		}
		p := (t - (k.EndTime - d)) / d
		return tl.mix(targetOf(k), defaultTarget, p, k.ID)
	}

	return exact(k)
}

// adjacent reports whether b directly follows a with a gap short enough to
// cross-fade instead of returning to the default view in between.
func (tl *Timeline) adjacent(a, b int) bool {
	if tl.succ[a] != b || tl.pred[b] != a {
		return false
	}
	gap := tl.keyframes[b].StartTime - tl.keyframes[a].EndTime
	return gap >= 0 && gap <= tl.durations[a]+tl.durations[b]
}

// crossfade blends a's target into b's over a single window made of a's exit
// ramp, the gap and b's entry ramp, so the fade is monotonic across the gap.
func (tl *Timeline) crossfade(a, b int, t float64) VisualState {
	ka, kb := tl.keyframes[a], tl.keyframes[b]
	from := ka.EndTime - tl.durations[a]
	to := kb.StartTime + tl.durations[b]

	var p float64
	switch {
	case to > from:
		p = (t - from) / (to - from)
	case t >= from:
		p = 1
	}
	return tl.mix(targetOf(ka), targetOf(kb), p, ka.ID, kb.ID)
}

func (tl *Timeline) mix(from, to target, p float64, ids ...string) VisualState {
	e := clamp01(tl.easing(clamp01(p)))
	return VisualState{
		X:           lerp(from.x, to.x, e),
		Y:           lerp(from.y, to.y, e),
		Scale:       lerp(from.scale, to.scale, e),
		Kind:        StateSynthetic,
		KeyframeIDs: ids,
	}
}

type target struct {
	x, y, scale float64
}

var defaultTarget = target{x: 50, y: 50, scale: 1}

func targetOf(k ZoomKeyframe) target {
	return target{x: k.X, y: k.Y, scale: k.Scale}
}

func exact(k ZoomKeyframe) VisualState {
	return VisualState{
		X:           k.X,
		Y:           k.Y,
		Scale:       k.Scale,
		Kind:        StateExact,
		KeyframeIDs: []string{k.ID},
	}
}
