package export

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ivlev/zoomreel/internal/source"
	"github.com/ivlev/zoomreel/internal/video"
)

// fakeSource renders a deterministic pattern per frame index at a native
// rate of 30 fps.
type fakeSource struct {
	w, h     int
	duration float64

	mu       sync.Mutex
	current  *image.RGBA
	seeks    []float64
	inflight atomic.Int32
	overlap  atomic.Bool

	// hooks
	seekHook  func(ctx context.Context, t float64) error
	frameHook func(*image.RGBA) *image.RGBA
}

func newFakeSource(w, h int, duration float64) *fakeSource {
	return &fakeSource{w: w, h: h, duration: duration}
}

func (s *fakeSource) Duration() float64 { return s.duration }
func (s *fakeSource) Size() (int, int)  { return s.w, s.h }
func (s *fakeSource) Close() error      { return nil }

func (s *fakeSource) Seek(ctx context.Context, t float64) error {
	if s.inflight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inflight.Add(-1)

	if s.seekHook != nil {
		if err := s.seekHook(ctx, t); err != nil {
			return err
		}
	}
	frame := patternFrame(s.w, s.h, int(math.Round(t*30)))
	s.mu.Lock()
	s.seeks = append(s.seeks, t)
	s.current = frame
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) ReadCurrentFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, source.ErrNotReady
	}
	if s.frameHook != nil {
		return s.frameHook(s.current), nil
	}
	return s.current, nil
}

func (s *fakeSource) seekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeks)
}

func patternFrame(w, h, index int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o+0] = uint8(index)
			img.Pix[o+1] = uint8(x * 255 / w)
			img.Pix[o+2] = uint8(y * 255 / h)
			img.Pix[o+3] = 255
		}
	}
	return img
}

// audioSource adds an audio track to fakeSource.
type audioSource struct {
	*fakeSource
	data []byte
	err  error
}

func (s *audioSource) ExtractAudio(ctx context.Context) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.data, "aac", nil
}

// fakeEncoder is an in-memory Encoder.
type fakeEncoder struct {
	mu       sync.Mutex
	files    map[string][]byte
	args     [][]string
	progress func(video.Progress)

	exitCode int
	output   []byte
	writeErr error
	execErr  error
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{files: make(map[string][]byte), output: []byte("MP4DATA")}
}

func (e *fakeEncoder) WriteInput(ctx context.Context, name string, data []byte) error {
	if e.writeErr != nil {
		return e.writeErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = append([]byte(nil), data...)
	return nil
}

func (e *fakeEncoder) Execute(ctx context.Context, args []string) (int, error) {
	e.mu.Lock()
	e.args = append(e.args, args)
	progress := e.progress
	e.mu.Unlock()

	if e.execErr != nil {
		return -1, e.execErr
	}
	if progress != nil {
		frames := len(e.frameNames())
		progress(video.Progress{Frame: frames / 2})
		progress(video.Progress{Frame: frames / 4}) // out of order on purpose
		progress(video.Progress{Frame: frames, Done: true})
	}
	if e.exitCode != 0 {
		return e.exitCode, nil
	}
	e.mu.Lock()
	e.files[video.OutputName] = e.output
	e.mu.Unlock()
	return 0, nil
}

func (e *fakeEncoder) ReadOutput(ctx context.Context, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("no output %s", name)
	}
	return data, nil
}

func (e *fakeEncoder) OnProgress(fn func(video.Progress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

func (e *fakeEncoder) frameNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for name := range e.files {
		if strings.HasPrefix(name, "frame_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *fakeEncoder) file(name string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files[name]
}
