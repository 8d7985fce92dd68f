package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// ErrNotReady is returned when a source has no usable duration or frame size.
var ErrNotReady = errors.New("source not ready")

// VideoSource is a seekable frame provider. Seeks are issued one at a time
// and never overlap.
type VideoSource interface {
	// Duration is the playable length in seconds.
	Duration() float64
	// Size is the frame size in pixels.
	Size() (width, height int)
	// Seek returns once the frame at t (seconds) is the current frame.
	Seek(ctx context.Context, t float64) error
	// ReadCurrentFrame returns the current frame. Callers must not modify it.
	ReadCurrentFrame() (*image.RGBA, error)
	Close() error
}

// AudioSource is implemented by sources that carry an audio track.
// ExtractAudio returns the encoded track and its file extension, or a nil
// slice when the source has no audio.
type AudioSource interface {
	ExtractAudio(ctx context.Context) ([]byte, string, error)
}

// Options tunes Open.
type Options struct {
	FFmpeg FFmpegOptions
	// StillDuration is how long one PDF page or one image stays on screen.
	StillDuration float64
	DPI           int
}

// Open picks a source implementation from the input path: a PDF deck, a
// directory (or single file) of images, or anything ffprobe understands.
func Open(ctx context.Context, path string, opts Options) (VideoSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case fi.IsDir() || isImageExt(ext):
		return NewImageSequence(path, opts.StillDuration)
	case ext == ".pdf":
		return NewPDFSource(path, opts.StillDuration, opts.DPI)
	default:
		return NewFFmpegSource(ctx, path, opts.FFmpeg)
	}
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

// toRGBA returns img as an *image.RGBA anchored at the origin, copying
// only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

func notReady(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotReady, fmt.Sprintf(format, args...))
}
