package director

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ivlev/zoomreel/internal/analyzer"
	"github.com/ivlev/zoomreel/internal/source"
	"github.com/ivlev/zoomreel/internal/timeline"
)

// OriginAuto marks keyframes placed by the director.
const OriginAuto = "auto"

var (
	ErrNoRegions      = errors.New("no regions detected")
	ErrWindowTooShort = errors.New("window too short for a keyframe")
)

// Director turns detected regions into zoom keyframes
type Director struct {
	MinDwell   float64 // seconds per region
	MaxDwell   float64
	MinScale   float64
	MaxScale   float64
	Fill       float64 // share of the frame a region may fill
	MaxRegions int
	// Margin is the default-view time kept at each end of a window.
	Margin float64
	Logger zerolog.Logger
}

// NewDirector creates a new Director with default settings
func NewDirector() *Director {
	return &Director{
		MinDwell:   1.0,
		MaxDwell:   3.0,
		MinScale:   1.0,
		MaxScale:   3.0,
		Fill:       0.9,
		MaxRegions: 4,
		Margin:     1.0,
		Logger:     zerolog.Nop(),
	}
}

// Plan lays one keyframe per region across [start, end) of a w x h frame.
// Keyframes are back to back so the evaluator cross-fades between them.
func (d *Director) Plan(blocks []analyzer.Block, w, h int, start, end float64, idPrefix string) ([]timeline.ZoomKeyframe, error) {
	if len(blocks) == 0 {
		return nil, ErrNoRegions
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
	}

	margin := math.Min(d.Margin, (end-start)/6)
	available := end - start - 2*margin
	n := min(len(blocks), d.MaxRegions)
	if d.MinDwell > 0 {
		n = min(n, int(available/d.MinDwell))
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %.2fs", ErrWindowTooShort, end-start)
	}

	dwell := math.Min(available/float64(n), d.MaxDwell)
	regions := readingOrder(largest(blocks, n), h)

	keyframes := make([]timeline.ZoomKeyframe, 0, n)
	t := start + margin
	for i, b := range regions {
		keyframes = append(keyframes, timeline.ZoomKeyframe{
			ID:         fmt.Sprintf("%s-%d", idPrefix, i+1),
			StartTime:  round(t, 1000),
			EndTime:    round(t+dwell, 1000),
			X:          round(100*float64(b.Rect.Min.X+b.Rect.Dx()/2)/float64(w), 100),
			Y:          round(100*float64(b.Rect.Min.Y+b.Rect.Dy()/2)/float64(h), 100),
			Scale:      round(d.scaleFor(b.Rect, w, h), 100),
			Transition: timeline.TransitionSmooth,
			Origin: &timeline.KeyframeOrigin{
				Source: OriginAuto,
				Label:  fmt.Sprintf("region %d", i+1),
			},
		})
		t += dwell
	}
	return keyframes, nil
}

// Suggest splits the source into windows, detects regions in the frame at
// the middle of each window and plans keyframes for them. Windows without
// usable regions are skipped.
func (d *Director) Suggest(ctx context.Context, src source.VideoSource, det analyzer.Detector, window float64) ([]timeline.ZoomKeyframe, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %v", window)
	}
	duration := src.Duration()
	w, h := src.Size()

	var out []timeline.ZoomKeyframe
	for i := 0; float64(i)*window < duration; i++ {
		start := float64(i) * window
		end := math.Min(start+window, duration)

		if err := src.Seek(ctx, (start+end)/2); err != nil {
			return nil, err
		}
		frame, err := src.ReadCurrentFrame()
		if err != nil {
			return nil, err
		}
		blocks, err := det.Detect(frame)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i+1, err)
		}

		keyframes, err := d.Plan(blocks, w, h, start, end, fmt.Sprintf("auto-%d", i+1))
		if errors.Is(err, ErrNoRegions) || errors.Is(err, ErrWindowTooShort) {
			d.Logger.Debug().Int("window", i+1).Err(err).Msg("window skipped")
			continue
		}
		if err != nil {
			return nil, err
		}
		d.Logger.Debug().Int("window", i+1).Int("regions", len(blocks)).Int("keyframes", len(keyframes)).Msg("window planned")
		out = append(out, keyframes...)
	}
	return out, nil
}

// scaleFor fits the region into Fill of the frame, clamped.
func (d *Director) scaleFor(r image.Rectangle, w, h int) float64 {
	if r.Dx() == 0 || r.Dy() == 0 {
		return d.MinScale
	}
	scaleX := d.Fill * float64(w) / float64(r.Dx())
	scaleY := d.Fill * float64(h) / float64(r.Dy())
	return math.Max(d.MinScale, math.Min(d.MaxScale, math.Min(scaleX, scaleY)))
}

// largest keeps the n biggest blocks.
func largest(blocks []analyzer.Block, n int) []analyzer.Block {
	sorted := append([]analyzer.Block(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return area(sorted[i].Rect) > area(sorted[j].Rect)
	})
	return sorted[:n]
}

// readingOrder sorts top-to-bottom, then left-to-right within a row. Rows
// are tops closer than 3% of the frame height.
func readingOrder(blocks []analyzer.Block, frameH int) []analyzer.Block {
	threshold := max(1, frameH*3/100)
	sort.SliceStable(blocks, func(i, j int) bool {
		yDiff := blocks[i].Rect.Min.Y - blocks[j].Rect.Min.Y
		if abs(yDiff) > threshold {
			return yDiff < 0
		}
		return blocks[i].Rect.Min.X < blocks[j].Rect.Min.X
	})
	return blocks
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

func round(v, unit float64) float64 {
	return math.Round(v*unit) / unit
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
