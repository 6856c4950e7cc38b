package video

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// Plane is a grayscale image with 0-255 samples.
type Plane struct {
	Width, Height int
	Pix           []float64
}

// Luma converts img to a blurred grayscale plane. A positive width first
// downsizes the image, keeping its aspect ratio.
func Luma(img image.Image, blurSigma float64, width int) *Plane {
	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Box)
	}
	gray := imaging.Grayscale(img)
	if blurSigma > 0 {
		gray = imaging.Blur(gray, blurSigma)
	}
	b := gray.Bounds()
	p := &Plane{Width: b.Dx(), Height: b.Dy(), Pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.Height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < p.Width; x++ {
			p.Pix[y*p.Width+x] = float64(row[x*4])
		}
	}
	return p
}

const (
	ssimWindow = 7
	ssimRange  = 255.0
)

var (
	ssimC1 = math.Pow(0.01*ssimRange, 2)
	ssimC2 = math.Pow(0.03*ssimRange, 2)
)

// SSIM is the mean structural similarity of two planes of equal size over
// 7x7 windows with sample statistics. Identical planes score 1. Planes
// smaller than a window are compared as a whole.
func SSIM(a, b *Plane) float64 {
	if a.Width != b.Width || a.Height != b.Height {
		return 0
	}
	if a.Width < ssimWindow || a.Height < ssimWindow {
		return globalSSIM(a.Pix, b.Pix)
	}

	sx := integral(a, b, func(x, _ float64) float64 { return x })
	sy := integral(a, b, func(_, y float64) float64 { return y })
	sxx := integral(a, b, func(x, _ float64) float64 { return x * x })
	syy := integral(a, b, func(_, y float64) float64 { return y * y })
	sxy := integral(a, b, func(x, y float64) float64 { return x * y })

	n := float64(ssimWindow * ssimWindow)
	norm := n / (n - 1)
	w := a.Width + 1
	scores := make([]float64, 0, (a.Width-ssimWindow+1)*(a.Height-ssimWindow+1))
	for y0 := 0; y0+ssimWindow <= a.Height; y0++ {
		for x0 := 0; x0+ssimWindow <= a.Width; x0++ {
			box := func(s []float64) float64 {
				x1, y1 := x0+ssimWindow, y0+ssimWindow
				return s[y1*w+x1] - s[y0*w+x1] - s[y1*w+x0] + s[y0*w+x0]
			}
			ux, uy := box(sx)/n, box(sy)/n
			vx := (box(sxx)/n - ux*ux) * norm
			vy := (box(syy)/n - uy*uy) * norm
			cov := (box(sxy)/n - ux*uy) * norm
			scores = append(scores, ssimScore(ux, uy, vx, vy, cov))
		}
	}
	return stat.Mean(scores, nil)
}

func globalSSIM(x, y []float64) float64 {
	ux, vx := stat.MeanVariance(x, nil)
	uy, vy := stat.MeanVariance(y, nil)
	if len(x) < 2 {
		vx, vy = 0, 0
	}
	cov := 0.0
	if len(x) >= 2 {
		cov = stat.Covariance(x, y, nil)
	}
	return ssimScore(ux, uy, vx, vy, cov)
}

func ssimScore(ux, uy, vx, vy, cov float64) float64 {
	return ((2*ux*uy + ssimC1) * (2*cov + ssimC2)) /
		((ux*ux + uy*uy + ssimC1) * (vx + vy + ssimC2))
}

// integral builds the summed-area table of f over both planes.
func integral(a, b *Plane, f func(x, y float64) float64) []float64 {
	w := a.Width + 1
	s := make([]float64, w*(a.Height+1))
	for y := 0; y < a.Height; y++ {
		rowSum := 0.0
		for x := 0; x < a.Width; x++ {
			i := y*a.Width + x
			rowSum += f(a.Pix[i], b.Pix[i])
			s[(y+1)*w+x+1] = s[y*w+x+1] + rowSum
		}
	}
	return s
}
