package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ivlev/zoomreel/internal/system"
)

// RunStats describes the last run of a pipeline.
type RunStats struct {
	Samples    int
	Width      int
	Height     int
	BatchSize  int
	Capture    time.Duration
	Processing time.Duration
	Encoding   time.Duration
	Total      time.Duration
	// PeakRSS is the highest resident set size sampled at batch boundaries.
	PeakRSS uint64
	// PeakBuffers is the highest number of pooled frame buffers in use.
	PeakBuffers int64
}

// EffectiveFPS is samples per second of wall time.
func (s RunStats) EffectiveFPS() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Samples) / s.Total.Seconds()
}

// WriteReport prints the performance report.
func (s RunStats) WriteReport(w io.Writer, build string) {
	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Frames: %d (%dx%d, batch %d)\n"+
			"Total Time: %.2fs\n"+
			"Capture: %.2fs\n"+
			"Processing: %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"Peak RSS: %.1f MiB | Peak buffers: %d\n"+
			"----------------------------\n",
		build, s.Samples, s.Width, s.Height, s.BatchSize,
		s.Total.Seconds(), s.Capture.Seconds(), s.Processing.Seconds(), s.Encoding.Seconds(),
		s.EffectiveFPS(), float64(s.PeakRSS)/(1<<20), s.PeakBuffers,
	)
}

// AppendBenchmark appends a one-line summary to the log at path.
func (s RunStats) AppendBenchmark(path, build, input string) error {
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Frames: %d | Total: %.2fs | Capture: %.2fs | Processing: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build,
		filepath.Base(input),
		s.Samples,
		s.Total.Seconds(),
		s.Capture.Seconds(),
		s.Processing.Seconds(),
		s.Encoding.Seconds(),
		s.EffectiveFPS(),
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}

// rssTracker samples process memory at batch boundaries.
type rssTracker struct {
	mu   sync.Mutex
	peak uint64
}

func (t *rssTracker) sample() {
	rss, err := system.ProcessRSS()
	if err != nil {
		return
	}
	t.mu.Lock()
	if rss > t.peak {
		t.peak = rss
	}
	t.mu.Unlock()
}

func (t *rssTracker) value() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}
