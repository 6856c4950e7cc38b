package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"neuropeaks/internal/spatial"
)

// Accumulation decides how overlapping marks combine.
type Accumulation int

const (
	// Density sums marks and rescales so the busiest pixel is hottest.
	Density Accumulation = iota
	// Intensity keeps the strongest mark per pixel; weights are in [0,1].
	Intensity
)

// HeatmapOptions tunes rendering.
type HeatmapOptions struct {
	Radius int     // mark radius in base image pixels
	Sigma  float64 // Gaussian blur applied to the mask
	Alpha  float64 // overlay opacity
	Mode   Accumulation
	// Uniform blends the colored mask over the whole image at Alpha.
	// Otherwise opacity follows the mask so cold areas stay clear.
	Uniform bool
	// Scale renders the mask at a fraction of the base size, then upscales it.
	Scale float64
}

// DefaultHeatmapOptions draws 10 pixel marks blurred like a 13 pixel kernel.
var DefaultHeatmapOptions = HeatmapOptions{Radius: 10, Sigma: 11, Alpha: 0.5, Mode: Density, Scale: 1}

// Heatmap draws points over base. weights may be nil for unit weights.
// Points off the image are clamped to its edge.
func Heatmap(base image.Image, points []spatial.Point, weights []float64, opts HeatmapOptions) (*image.RGBA, error) {
	if weights != nil && len(weights) != len(points) {
		return nil, fmt.Errorf("got %d weights for %d points", len(weights), len(points))
	}
	if opts.Radius <= 0 {
		opts.Radius = DefaultHeatmapOptions.Radius
	}
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = 1
	}

	bounds := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)
	if len(points) == 0 {
		return out, nil
	}

	w := max(1, int(math.Round(float64(bounds.Dx())*opts.Scale)))
	h := max(1, int(math.Round(float64(bounds.Dy())*opts.Scale)))
	radius := max(1, int(math.Round(float64(opts.Radius)*opts.Scale)))

	mask := make([]float64, w*h)
	for i, p := range points {
		weight := 1.0
		if weights != nil {
			weight = weights[i]
		}
		if math.IsNaN(weight) || weight <= 0 {
			continue
		}
		cx := clamp(int(p.X*opts.Scale), 0, w-1)
		cy := clamp(int(p.Y*opts.Scale), 0, h-1)
		stamp(mask, w, h, cx, cy, radius, weight, opts.Mode)
	}

	gray := toGray(mask, w, h, opts.Mode)
	if opts.Sigma > 0 {
		gray = imaging.Blur(gray, opts.Sigma*opts.Scale)
	}

	overlay := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := gray.Pix[y*gray.Stride+x*4]
			a := opts.Alpha
			if !opts.Uniform {
				a *= float64(v) / 255
			}
			c := Jet(float64(v) / 255)
			c.A = uint8(math.Round(a * 255))
			overlay.SetNRGBA(x, y, c)
		}
	}

	if w != bounds.Dx() || h != bounds.Dy() {
		overlay = upscale(overlay, out.Bounds())
	}
	draw.Draw(out, out.Bounds(), overlay, image.Point{}, draw.Over)
	return out, nil
}

// upscale stretches the overlay bilinearly so it never rings past its sources.
func upscale(overlay *image.NRGBA, r image.Rectangle) *image.NRGBA {
	scaled := image.NewNRGBA(r)
	draw.BiLinear.Scale(scaled, scaled.Bounds(), overlay, overlay.Bounds(), draw.Src, nil)
	return scaled
}

func stamp(mask []float64, w, h, cx, cy, r int, weight float64, mode Accumulation) {
	for y := max(0, cy-r); y <= min(h-1, cy+r); y++ {
		for x := max(0, cx-r); x <= min(w-1, cx+r); x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy > r*r {
				continue
			}
			i := y*w + x
			if mode == Intensity {
				mask[i] = math.Max(mask[i], math.Min(weight, 1))
			} else {
				mask[i] += weight
			}
		}
	}
}

func toGray(mask []float64, w, h int, mode Accumulation) *image.NRGBA {
	scale := 1.0
	if mode == Density {
		peak := 0.0
		for _, v := range mask {
			peak = math.Max(peak, v)
		}
		if peak > 0 {
			scale = 1 / peak
		}
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range mask {
		g := uint8(math.Round(math.Min(v*scale, 1) * 255))
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = g, g, g, 0xff
	}
	return img
}

// Jet maps v in [0,1] from dark blue through green to dark red.
func Jet(v float64) color.NRGBA {
	v = math.Max(0, math.Min(1, v))
	channel := func(offset float64) uint8 {
		c := 1.5 - math.Abs(4*v-offset)
		return uint8(math.Round(math.Max(0, math.Min(1, c)) * 255))
	}
	return color.NRGBA{R: channel(3), G: channel(2), B: channel(1), A: 0xff}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// WritePNG saves img, creating the folder if needed.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Open decodes an image file.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}
