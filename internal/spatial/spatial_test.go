package spatial

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"neuropeaks/domain/stream"
)

func assertPoint(t *testing.T, want, got Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-6)
	assert.InDelta(t, want.Y, got.Y, 1e-6)
}

func TestProject(t *testing.T) {
	assert.Equal(t, Point{X: 960, Y: 540}, Project(Point{X: 0.5, Y: 0.5}, Size{Width: 1920, Height: 1080}, 0))
	assert.Equal(t, Point{X: 960, Y: 1620}, Project(Point{X: 0.5, Y: 0.5}, Size{Width: 1920, Height: 1080}, 1))
	// not clamped
	assertPoint(t, Point{X: -192, Y: 1188}, Project(Point{X: -0.1, Y: 1.1}, Size{Width: 1920, Height: 1080}, 0))
}

func TestMeanGaze(t *testing.T) {
	assert.Equal(t, 15.0, MeanGaze(10, 20))
	assert.Equal(t, 20.0, MeanGaze(math.NaN(), 20))
	assert.Equal(t, 10.0, MeanGaze(10, math.NaN()))
	assert.True(t, math.IsNaN(MeanGaze(math.NaN(), math.NaN())))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, Point{X: 0.5, Y: 0.25}, Normalize(Point{X: 960, Y: 270}, ReferenceScreen))
	assert.Equal(t, Point{X: 0.5, Y: 0.25}, Normalize(Point{X: 960, Y: 270}, Size{}))
	assert.Equal(t, Point{X: 1, Y: 1}, Normalize(Point{X: 1280, Y: 1024}, Size{Width: 1280, Height: 1024}))
}

func TestProjectSamples(t *testing.T) {
	nan := math.NaN()
	times := []time.Time{{}, {}, {}}
	frame := stream.NewFrame(times)
	frame.SetNumeric("lx", []float64{960, nan, 100})
	frame.SetNumeric("rx", []float64{960, nan, 300})
	frame.SetNumeric("ly", []float64{540, 10, -270})
	frame.SetNumeric("ry", []float64{540, 10, nan})
	frame.SetNumeric("scroll", []float64{0.5, 0, nan})

	points := ProjectSamples(frame, Size{Width: 1000, Height: 2000}, ProjectOptions{
		Gaze:   GazeColumns{LeftX: "lx", LeftY: "ly", RightX: "rx", RightY: "ry"},
		Scroll: "scroll",
		AbsY:   true,
	})

	if assert.Len(t, points, 2) {
		assertPoint(t, Point{X: 500, Y: 2000}, points[0])
		assertPoint(t, Point{X: 104.1666667, Y: 500}, points[1])
	}
}
