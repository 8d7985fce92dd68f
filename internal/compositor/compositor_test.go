package compositor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/zoomreel/internal/timeline"
)

var (
	red  = color.RGBA{255, 0, 0, 255}
	blue = color.RGBA{0, 0, 255, 255}
)

// quadrantFrame is red in the top-left quadrant and blue elsewhere.
func quadrantFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 && y < h/2 {
				img.SetRGBA(x, y, red)
			} else {
				img.SetRGBA(x, y, blue)
			}
		}
	}
	return img
}

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestComposeDefaultStateIsPixelIdentical(t *testing.T) {
	base := quadrantFrame(64, 48)
	out, err := New(nil).Compose(base, timeline.DefaultState(), nil)
	require.NoError(t, err)
	assert.Equal(t, base.Rect, out.Rect)
	assert.True(t, bytes.Equal(base.Pix, out.Pix))
	assert.NotSame(t, &base.Pix[0], &out.Pix[0])
}

func TestComposeInvalidFrame(t *testing.T) {
	c := New(nil)
	_, err := c.Compose(image.NewRGBA(image.Rect(0, 0, 0, 10)), timeline.DefaultState(), nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
	_, err = c.Compose(nil, timeline.DefaultState(), nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	err = c.ComposeInto(image.NewRGBA(image.Rect(0, 0, 5, 5)), quadrantFrame(10, 10), timeline.DefaultState(), nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestComposeZoomPivotsAroundPoint(t *testing.T) {
	base := quadrantFrame(100, 100)
	before := append([]byte(nil), base.Pix...)

	state := timeline.VisualState{X: 25, Y: 25, Scale: 2, Kind: timeline.StateExact}
	out, err := New(nil).Compose(base, state, nil)
	require.NoError(t, err)

	assert.Equal(t, before, base.Pix, "base frame must not be modified")

	// The authored point stays where it was.
	assert.Equal(t, red, out.RGBAAt(25, 25))
	// (60,60) samples source ~(42.75,42.75): still the red quadrant. A
	// centre-anchored zoom would have sampled ~(55,55), which is blue.
	assert.Equal(t, red, out.RGBAAt(60, 60))
	assert.Equal(t, blue, out.RGBAAt(95, 95))
}

func TestComposeCentreZoom(t *testing.T) {
	base := quadrantFrame(100, 100)
	state := timeline.VisualState{X: 50, Y: 50, Scale: 4}
	out, err := New(nil).Compose(base, state, nil)
	require.NoError(t, err)

	// src = 50 + (dst+0.5-50)/4
	assert.Equal(t, red, out.RGBAAt(10, 10))
	assert.Equal(t, blue, out.RGBAAt(90, 90))
	assert.Equal(t, blue, out.RGBAAt(10, 90))
}

func TestOverlayBoxGeometry(t *testing.T) {
	face, err := NewFontBook().Face("sans-serif", 20)
	require.NoError(t, err)
	defer face.Close()

	o := timeline.TextOverlayKeyframe{X: 50, Y: 25, Text: "first line\nsecond", FontSize: 20, Padding: 10}
	block := layout(face, o, 400, 200)

	require.Len(t, block.lines, 2)
	assert.Greater(t, block.widths[0], block.widths[1])
	assert.InDelta(t, 2*20*1.2+20, block.box.h, 1e-9)
	assert.InDelta(t, block.widths[0]+20, block.box.w, 1e-9)
	// centred on (50%, 25%)
	assert.InDelta(t, 200, block.box.x+block.box.w/2, 1e-9)
	assert.InDelta(t, 50, block.box.y+block.box.h/2, 1e-9)
}

func TestOverlayDrawsTextAndBackground(t *testing.T) {
	black := color.RGBA{0, 0, 0, 255}
	base := solidFrame(200, 100, black)
	overlay := timeline.TextOverlayKeyframe{
		ID: "title", X: 50, Y: 50, Text: "Hi", FontSize: 24,
		Color: "#ffffff", BackgroundColor: "rgba(0, 128, 0, 1)", Padding: 8, BorderRadius: 6,
	}

	out, err := New(nil).Compose(base, timeline.DefaultState(), []timeline.TextOverlayKeyframe{overlay})
	require.NoError(t, err)

	assert.Equal(t, black, out.RGBAAt(0, 0), "pixels outside the box stay untouched")
	assert.Equal(t, black, out.RGBAAt(199, 99))

	var white, green int
	for y := 20; y < 80; y++ {
		for x := 60; x < 140; x++ {
			switch out.RGBAAt(x, y) {
			case color.RGBA{255, 255, 255, 255}:
				white++
			case color.RGBA{0, 128, 0, 255}:
				green++
			}
		}
	}
	assert.Positive(t, white, "text fill drawn")
	assert.Positive(t, green, "background drawn")
}

func TestOverlayDrawOrder(t *testing.T) {
	base := solidFrame(100, 100, color.RGBA{0, 0, 0, 255})
	overlays := []timeline.TextOverlayKeyframe{
		{ID: "under", X: 50, Y: 50, FontSize: 10, BackgroundColor: "red", Padding: 20},
		{ID: "over", X: 50, Y: 50, FontSize: 10, BackgroundColor: "#00f", Padding: 20},
	}
	out, err := New(nil).Compose(base, timeline.DefaultState(), overlays)
	require.NoError(t, err)
	assert.Equal(t, blue, out.RGBAAt(50, 50))
}

func TestOverlayBadColor(t *testing.T) {
	base := solidFrame(10, 10, red)
	_, err := New(nil).Compose(base, timeline.DefaultState(), []timeline.TextOverlayKeyframe{
		{ID: "x", Text: "a", FontSize: 8, Color: "not-a-colour"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `overlay "x"`)
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#fff", color.NRGBA{255, 255, 255, 255}},
		{"#FF000080", color.NRGBA{255, 0, 0, 128}},
		{"#0a0b0c", color.NRGBA{10, 11, 12, 255}},
		{"#0f08", color.NRGBA{0, 255, 0, 136}},
		{"rgb(1, 2, 3)", color.NRGBA{1, 2, 3, 255}},
		{"rgba(10,20,30,0.5)", color.NRGBA{10, 20, 30, 128}},
		{" White ", color.NRGBA{255, 255, 255, 255}},
		{"transparent", color.NRGBA{}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "#12", "#ggg", "rgb(1,2)", "rgba(1,2,3,7)", "chartreuse-ish"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestFontBookFallback(t *testing.T) {
	book := NewFontBook()
	face, err := book.Face("'Some Font', Nonexistent", 12)
	require.NoError(t, err)
	face.Close()

	mono, err := book.Face("monospace", 12)
	require.NoError(t, err)
	defer mono.Close()
	// monospace advances are equal for every glyph
	iw, _ := mono.GlyphAdvance('i')
	mw, _ := mono.GlyphAdvance('m')
	assert.Equal(t, iw, mw)

	assert.Error(t, book.RegisterFile("brand", "/nonexistent/font.ttf"))
}

func TestRoundedRectMask(t *testing.T) {
	m := roundedRectMask{r: rect{x: 0, y: 0, w: 40, h: 20}, radius: 10}
	assert.Equal(t, color.Alpha{}, m.At(0, 0), "corner cut away")
	assert.Equal(t, color.Alpha{A: 255}, m.At(20, 10), "interior covered")
	assert.Equal(t, color.Alpha{A: 255}, m.At(20, 0), "straight edge covered")

	square := roundedRectMask{r: rect{x: 0, y: 0, w: 40, h: 20}}
	assert.Equal(t, color.Alpha{A: 255}, square.At(0, 0))
}
