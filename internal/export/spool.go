package export

import (
	"bufio"
	"compress/flate"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Spool holds composited frames between capture and processing, and
// payloads between processing and encoding, so that only one batch of raw
// buffers lives in memory.
type Spool interface {
	PutFrame(index int, frame *image.RGBA) error
	// ReadFrame fills dst, which must have the spooled frame's size.
	ReadFrame(index int, dst *image.RGBA) error
	DropFrame(index int)
	PutPayload(index int, data []byte) error
	ReadPayload(index int) ([]byte, error)
	Close() error
}

// DiskSpool stores frames deflate-compressed and payloads verbatim in a
// private temporary directory.
type DiskSpool struct {
	dir string
}

func NewDiskSpool(parent string) (*DiskSpool, error) {
	dir, err := os.MkdirTemp(parent, "zoomreel-spool-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &DiskSpool{dir: dir}, nil
}

func (s *DiskSpool) framePath(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.raw", i))
}

func (s *DiskSpool) payloadPath(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("payload_%06d", i))
}

func (s *DiskSpool) PutFrame(index int, frame *image.RGBA) error {
	f, err := os.Create(s.framePath(index))
	if err != nil {
		return fmt.Errorf("spool frame %d: %w", index, err)
	}
	bw := bufio.NewWriter(f)
	zw, err := flate.NewWriter(bw, flate.BestSpeed)
	if err != nil {
		f.Close()
		return err
	}

	werr := eachRow(frame, func(row []byte) error {
		_, err := zw.Write(row)
		return err
	})
	if werr == nil {
		werr = zw.Close()
	}
	if werr == nil {
		werr = bw.Flush()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("spool frame %d: %w", index, werr)
	}
	return nil
}

func (s *DiskSpool) ReadFrame(index int, dst *image.RGBA) error {
	f, err := os.Open(s.framePath(index))
	if err != nil {
		return fmt.Errorf("read spooled frame %d: %w", index, err)
	}
	defer f.Close()
	zr := flate.NewReader(bufio.NewReader(f))
	defer zr.Close()

	if err := eachRow(dst, func(row []byte) error {
		_, err := io.ReadFull(zr, row)
		return err
	}); err != nil {
		return fmt.Errorf("read spooled frame %d: %w", index, err)
	}
	return nil
}

func (s *DiskSpool) DropFrame(index int) {
	os.Remove(s.framePath(index))
}

func (s *DiskSpool) PutPayload(index int, data []byte) error {
	if err := os.WriteFile(s.payloadPath(index), data, 0644); err != nil {
		return fmt.Errorf("spool payload %d: %w", index, err)
	}
	return nil
}

func (s *DiskSpool) ReadPayload(index int) ([]byte, error) {
	data, err := os.ReadFile(s.payloadPath(index))
	if err != nil {
		return nil, fmt.Errorf("read spooled payload %d: %w", index, err)
	}
	return data, nil
}

func (s *DiskSpool) Close() error {
	return os.RemoveAll(s.dir)
}

// ErrSpoolFull is returned by a bounded MemorySpool holding its maximum
// number of raw frames.
var ErrSpoolFull = errors.New("frame spool full")

// MemorySpool keeps copies in memory. Raw frames stay resident from capture
// until processing, so it is bounded to maxFrames and only suits exports
// that fit in one batch.
type MemorySpool struct {
	mu        sync.Mutex
	maxFrames int
	frames    map[int][]byte
	payloads  map[int][]byte
}

// NewMemorySpool creates a spool holding at most maxFrames raw frames at a
// time; zero or less means unbounded.
func NewMemorySpool(maxFrames int) *MemorySpool {
	return &MemorySpool{maxFrames: maxFrames, frames: make(map[int][]byte), payloads: make(map[int][]byte)}
}

func (s *MemorySpool) PutFrame(index int, frame *image.RGBA) error {
	s.mu.Lock()
	_, replacing := s.frames[index]
	full := s.maxFrames > 0 && !replacing && len(s.frames) >= s.maxFrames
	s.mu.Unlock()
	if full {
		return fmt.Errorf("%w: frame %d exceeds %d resident frames", ErrSpoolFull, index, s.maxFrames)
	}

	buf := make([]byte, 0, frame.Rect.Dx()*frame.Rect.Dy()*4)
	eachRow(frame, func(row []byte) error {
		buf = append(buf, row...)
		return nil
	})
	s.mu.Lock()
	s.frames[index] = buf
	s.mu.Unlock()
	return nil
}

func (s *MemorySpool) ReadFrame(index int, dst *image.RGBA) error {
	s.mu.Lock()
	buf, ok := s.frames[index]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no spooled frame %d", index)
	}
	if len(buf) != dst.Rect.Dx()*dst.Rect.Dy()*4 {
		return fmt.Errorf("spooled frame %d does not match %v", index, dst.Rect)
	}
	off := 0
	return eachRow(dst, func(row []byte) error {
		off += copy(row, buf[off:])
		return nil
	})
}

func (s *MemorySpool) DropFrame(index int) {
	s.mu.Lock()
	delete(s.frames, index)
	s.mu.Unlock()
}

func (s *MemorySpool) PutPayload(index int, data []byte) error {
	s.mu.Lock()
	s.payloads[index] = data
	s.mu.Unlock()
	return nil
}

func (s *MemorySpool) ReadPayload(index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.payloads[index]
	if !ok {
		return nil, fmt.Errorf("no spooled payload %d", index)
	}
	return data, nil
}

func (s *MemorySpool) Close() error {
	s.mu.Lock()
	s.frames, s.payloads = map[int][]byte{}, map[int][]byte{}
	s.mu.Unlock()
	return nil
}

// eachRow calls fn with the pixel bytes of every row of img, top to bottom.
func eachRow(img *image.RGBA, fn func(row []byte) error) error {
	w := img.Rect.Dx() * 4
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		off := img.PixOffset(img.Rect.Min.X, y)
		if err := fn(img.Pix[off : off+w]); err != nil {
			return err
		}
	}
	return nil
}
