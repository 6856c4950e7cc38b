// Package spatial maps gaze coordinates onto rendered stimulus pixels.
package spatial

import (
	"math"

	"neuropeaks/domain/stream"
)

// Point is a 2D coordinate, in pixels or as fractions of a reference size.
type Point struct {
	X, Y float64
}

// Size is a width and height in pixels.
type Size struct {
	Width, Height int
}

// ReferenceScreen is the tracker's screen resolution when none is configured.
var ReferenceScreen = Size{Width: 1920, Height: 1080}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool { return s.Width > 0 && s.Height > 0 }

// MeanGaze averages the two eyes. A missing eye yields the other one.
func MeanGaze(left, right float64) float64 {
	switch {
	case math.IsNaN(left):
		return right
	case math.IsNaN(right):
		return left
	default:
		return (left + right) / 2
	}
}

// Normalize converts gaze pixels on the reference screen to fractions.
func Normalize(px Point, reference Size) Point {
	if !reference.Valid() {
		reference = ReferenceScreen
	}
	return Point{X: px.X / float64(reference.Width), Y: px.Y / float64(reference.Height)}
}

// Project places a normalized gaze point on a stimulus of the given size.
// scroll is the page scroll as a fraction of the stimulus height and shifts
// the point down by that many screen heights. Nothing is clamped here.
func Project(norm Point, dims Size, scroll float64) Point {
	return Point{
		X: norm.X * float64(dims.Width),
		Y: norm.Y*float64(dims.Height) + scroll*float64(dims.Height),
	}
}

// GazeColumns names the per-eye gaze columns of a frame.
type GazeColumns struct {
	LeftX, LeftY, RightX, RightY string
}

// ProjectOptions controls ProjectSamples.
type ProjectOptions struct {
	Gaze      GazeColumns
	Reference Size   // tracker screen, defaults to ReferenceScreen
	Scroll    string // scroll fraction column, optional
	// AbsY folds negative vertical gaze back onto the page.
	AbsY bool
}

// ProjectSamples projects every row of a frame with a usable mean gaze.
// Rows where either mean coordinate is missing are skipped.
func ProjectSamples(frame *stream.Frame, dims Size, opts ProjectOptions) []Point {
	lx, _ := frame.Column(opts.Gaze.LeftX)
	ly, _ := frame.Column(opts.Gaze.LeftY)
	rx, _ := frame.Column(opts.Gaze.RightX)
	ry, _ := frame.Column(opts.Gaze.RightY)
	scroll, hasScroll := frame.Column(opts.Scroll)

	at := func(col []float64, i int) float64 {
		if i < len(col) {
			return col[i]
		}
		return math.NaN()
	}

	points := make([]Point, 0, frame.Len())
	for i := 0; i < frame.Len(); i++ {
		x := MeanGaze(at(lx, i), at(rx, i))
		y := MeanGaze(at(ly, i), at(ry, i))
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		if opts.AbsY {
			y = math.Abs(y)
		}
		s := 0.0
		if hasScroll {
			if v := scroll[i]; !math.IsNaN(v) {
				s = v
			}
		}
		points = append(points, Project(Normalize(Point{X: x, Y: y}, opts.Reference), dims, s))
	}
	return points
}
