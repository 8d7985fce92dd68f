package export

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
)

// Codec compresses one composited frame into an image payload the encoder
// can read as part of an image sequence.
type Codec interface {
	// Ext is the file extension of the payloads, without the dot.
	Ext() string
	Encode(w io.Writer, img image.Image) error
}

// PNGCodec is lossless; it is the default so exported frames match the
// composited pixels exactly before the video encoder runs.
type PNGCodec struct {
	encoder png.Encoder
}

func NewPNGCodec() *PNGCodec {
	return &PNGCodec{encoder: png.Encoder{CompressionLevel: png.BestSpeed}}
}

func (c *PNGCodec) Ext() string { return "png" }

func (c *PNGCodec) Encode(w io.Writer, img image.Image) error {
	return c.encoder.Encode(w, img)
}

type JPEGCodec struct {
	Quality int
}

func (c JPEGCodec) Ext() string { return "jpg" }

func (c JPEGCodec) Encode(w io.Writer, img image.Image) error {
	q := c.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

// WebPCodec writes lossless WebP, smaller than PNG at a higher CPU cost.
type WebPCodec struct{}

func (WebPCodec) Ext() string { return "webp" }

func (WebPCodec) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, &webp.Options{Lossless: true})
}

// CodecByName resolves a configured codec name.
func CodecByName(name string, jpegQuality int) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return NewPNGCodec(), nil
	case "jpg", "jpeg":
		return JPEGCodec{Quality: jpegQuality}, nil
	case "webp":
		return WebPCodec{}, nil
	}
	return nil, fmt.Errorf("unknown frame codec %q", name)
}
