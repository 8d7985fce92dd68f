package compositor

import (
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/zoomreel/internal/timeline"
)

const lineHeightFactor = 1.2

var outlineColor = color.NRGBA{0, 0, 0, 255}

// textBlock is the measured layout of one overlay in frame pixels.
type textBlock struct {
	lines      []string
	widths     []float64
	lineHeight float64
	box        rect // background box, padding included
	centerX    float64
	centerY    float64
}

type rect struct {
	x, y, w, h float64
}

func (r rect) bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.x)), int(math.Floor(r.y)),
		int(math.Ceil(r.x+r.w)), int(math.Ceil(r.y+r.h)),
	)
}

// splitLines splits on explicit line breaks only; no wrapping is applied.
func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

func layout(face font.Face, o timeline.TextOverlayKeyframe, frameW, frameH int) textBlock {
	lines := splitLines(o.Text)
	widths := make([]float64, len(lines))
	maxWidth := 0.0
	for i, line := range lines {
		widths[i] = fixedToFloat(font.MeasureString(face, line))
		maxWidth = math.Max(maxWidth, widths[i])
	}

	lineHeight := o.FontSize * lineHeightFactor
	boxW := maxWidth + 2*o.Padding
	boxH := float64(len(lines))*lineHeight + 2*o.Padding
	cx := o.X / 100 * float64(frameW)
	cy := o.Y / 100 * float64(frameH)

	return textBlock{
		lines:      lines,
		widths:     widths,
		lineHeight: lineHeight,
		box:        rect{x: cx - boxW/2, y: cy - boxH/2, w: boxW, h: boxH},
		centerX:    cx,
		centerY:    cy,
	}
}

func (c *Compositor) drawOverlay(dst *image.RGBA, o timeline.TextOverlayKeyframe) error {
	if o.FontSize <= 0 || (strings.TrimSpace(o.Text) == "" && o.BackgroundColor == "") {
		return nil
	}

	fill := color.NRGBA{255, 255, 255, 255}
	if o.Color != "" {
		var err error
		if fill, err = ParseColor(o.Color); err != nil {
			return err
		}
	}

	face, err := c.fonts.Face(o.FontFamily, o.FontSize)
	if err != nil {
		return err
	}
	defer face.Close()

	block := layout(face, o, dst.Rect.Dx(), dst.Rect.Dy())

	if o.BackgroundColor != "" {
		bg, err := ParseColor(o.BackgroundColor)
		if err != nil {
			return err
		}
		fillRoundedRect(dst, block.box, o.BorderRadius, bg)
	}

	metrics := face.Metrics()
	ascent := fixedToFloat(metrics.Ascent)
	descent := fixedToFloat(metrics.Descent)
	top := block.centerY - float64(len(block.lines))*block.lineHeight/2
	stroke := outlineWidth(o.FontSize)

	for i, line := range block.lines {
		if line == "" {
			continue
		}
		mid := top + (float64(i)+0.5)*block.lineHeight
		dot := fixed.Point26_6{
			X: floatToFixed(block.centerX - block.widths[i]/2),
			Y: floatToFixed(mid + (ascent-descent)/2),
		}
		drawOutlined(dst, face, line, dot, stroke, fill)
	}
	return nil
}

// drawOutlined strokes the glyphs by stamping them around a ring in the
// outline colour, then fills them on top.
func drawOutlined(dst *image.RGBA, face font.Face, s string, dot fixed.Point26_6, stroke int, fill color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(outlineColor), Face: face}
	for oy := -stroke; oy <= stroke; oy++ {
		for ox := -stroke; ox <= stroke; ox++ {
			if ox == 0 && oy == 0 || ox*ox+oy*oy > stroke*stroke {
				continue
			}
			d.Dot = fixed.Point26_6{X: dot.X + fixed.I(ox), Y: dot.Y + fixed.I(oy)}
			d.DrawString(s)
		}
	}

	d.Src = image.NewUniform(fill)
	d.Dot = dot
	d.DrawString(s)
}

func outlineWidth(fontSize float64) int {
	w := int(math.Round(fontSize / 16))
	if w < 1 {
		return 1
	}
	return w
}

// roundedRectMask is an alpha mask covering a rectangle with rounded corners.
type roundedRectMask struct {
	r      rect
	radius float64
}

func (m roundedRectMask) ColorModel() color.Model { return color.AlphaModel }

func (m roundedRectMask) Bounds() image.Rectangle { return m.r.bounds() }

func (m roundedRectMask) At(x, y int) color.Color {
	// sample at the pixel centre
	px, py := float64(x)+0.5, float64(y)+0.5
	r := m.r
	if px < r.x || px > r.x+r.w || py < r.y || py > r.y+r.h {
		return color.Alpha{}
	}

	rad := math.Min(m.radius, math.Min(r.w, r.h)/2)
	if rad <= 0 {
		return color.Alpha{A: 255}
	}

	// distance from the nearest corner circle centre, if in a corner region
	cx := math.Min(math.Max(px, r.x+rad), r.x+r.w-rad)
	cy := math.Min(math.Max(py, r.y+rad), r.y+r.h-rad)
	dist := math.Hypot(px-cx, py-cy)
	switch {
	case dist <= rad-0.5:
		return color.Alpha{A: 255}
	case dist >= rad+0.5:
		return color.Alpha{}
	default:
		return color.Alpha{A: uint8((rad + 0.5 - dist) * 255)}
	}
}

func fillRoundedRect(dst *image.RGBA, r rect, radius float64, c color.Color) {
	mask := roundedRectMask{r: r, radius: radius}
	area := mask.Bounds().Intersect(dst.Rect)
	if area.Empty() {
		return
	}
	draw.DrawMask(dst, area, image.NewUniform(c), image.Point{}, mask, area.Min, draw.Over)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
