package analyzer

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var (
	sobelX = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	sobelY = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}
)

// ContrastDetector finds regions by Sobel edges, dilation and connected
// components. Work happens on a copy downscaled to MaxWidth.
type ContrastDetector struct {
	MinBlockArea  int     // in source pixels
	EdgeThreshold float64 // gradient magnitude, 0..360
	MaxWidth      int
	DilateRadius  int
	Iterations    int
	// MaxCoverage drops blocks larger than this share of the frame.
	MaxCoverage float64
}

func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,
		EdgeThreshold: 30.0,
		MaxWidth:      480,
		DilateRadius:  2,
		Iterations:    2,
		MaxCoverage:   0.9,
	}
}

func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	bounds := img.Bounds()

	work := image.Image(img)
	factor := 1.0
	if d.MaxWidth > 0 && bounds.Dx() > d.MaxWidth {
		work = imaging.Resize(img, d.MaxWidth, 0, imaging.Linear)
		factor = float64(bounds.Dx()) / float64(work.Bounds().Dx())
	}

	gray := imaging.Grayscale(work)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 3 || h < 3 {
		return nil, fmt.Errorf("%w: %dx%d is too small to analyse", ErrEmptyImage, w, h)
	}

	edges := sobel(gray, d.EdgeThreshold)
	mask := edges
	for i := 0; i < d.Iterations; i++ {
		mask = dilate(mask, w, h, d.DilateRadius)
	}

	frameArea := float64(bounds.Dx() * bounds.Dy())
	var blocks []Block
	for _, c := range components(mask, w, h) {
		rect := image.Rect(
			bounds.Min.X+int(float64(c.rect.Min.X)*factor),
			bounds.Min.Y+int(float64(c.rect.Min.Y)*factor),
			bounds.Min.X+int(math.Ceil(float64(c.rect.Max.X)*factor)),
			bounds.Min.Y+int(math.Ceil(float64(c.rect.Max.Y)*factor)),
		).Intersect(bounds)

		area := rect.Dx() * rect.Dy()
		if area < d.MinBlockArea || float64(area) > d.MaxCoverage*frameArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:       rect,
			Confidence: density(edges, w, c.rect),
		})
	}
	return blocks, nil
}

// sobel thresholds the gradient magnitude of a grayscale NRGBA image.
func sobel(gray *image.NRGBA, threshold float64) []bool {
	opts := &imaging.ConvolveOptions{Abs: true}
	gx := imaging.Convolve3x3(gray, sobelX, opts)
	gy := imaging.Convolve3x3(gray, sobelY, opts)

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ix := gx.PixOffset(x, y)
			iy := gy.PixOffset(x, y)
			edges[y*w+x] = math.Hypot(float64(gx.Pix[ix]), float64(gy.Pix[iy])) > threshold
		}
	}
	return edges
}

// dilate grows the mask by a square of the given radius.
func dilate(mask []bool, w, h, radius int) []bool {
	if radius <= 0 {
		return mask
	}
	// separable: rows then columns
	rows := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := max(0, x-radius); k <= min(w-1, x+radius); k++ {
				if mask[y*w+k] {
					rows[y*w+x] = true
					break
				}
			}
		}
	}
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := max(0, y-radius); k <= min(h-1, y+radius); k++ {
				if rows[k*w+x] {
					out[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

type component struct {
	rect image.Rectangle
}

// components returns the bounding boxes of 4-connected set regions.
func components(mask []bool, w, h int) []component {
	visited := make([]bool, len(mask))
	var out []component
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] || visited[y*w+x] {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			stack = append(stack[:0], image.Point{X: x, Y: y})
			visited[y*w+x] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				minX, maxX = min(minX, p.X), max(maxX, p.X)
				minY, maxY = min(minY, p.Y), max(maxY, p.Y)

				for _, n := range [4]image.Point{{X: p.X + 1, Y: p.Y}, {X: p.X - 1, Y: p.Y}, {X: p.X, Y: p.Y + 1}, {X: p.X, Y: p.Y - 1}} {
					if n.X < 0 || n.X >= w || n.Y < 0 || n.Y >= h {
						continue
					}
					i := n.Y*w + n.X
					if mask[i] && !visited[i] {
						visited[i] = true
						stack = append(stack, n)
					}
				}
			}
			out = append(out, component{rect: image.Rect(minX, minY, maxX+1, maxY+1)})
		}
	}
	return out
}

func density(edges []bool, w int, r image.Rectangle) float64 {
	area := r.Dx() * r.Dy()
	if area == 0 {
		return 0
	}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges[y*w+x] {
				n++
			}
		}
	}
	return float64(n) / float64(area)
}
