package video

import (
	"context"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "sample_rate": "48000"},
    {"index": 1, "codec_type": "video", "width": 1280, "height": 720,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001",
     "duration": "10.010000", "nb_frames": "300"}
  ],
  "format": {"duration": "10.050000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := ParseProbe([]byte(probeJSON))
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.001)
	assert.Equal(t, 300, info.Frames)
	assert.Equal(t, 10010*time.Millisecond, info.Duration)
}

func TestParseProbe_FrameCountFallback(t *testing.T) {
	raw := `{"streams":[{"codec_type":"video","width":640,"height":480,"r_frame_rate":"25/1"}],"format":{"duration":"4.0"}}`
	info, err := ParseProbe([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, info.Frames)
	assert.Equal(t, 4*time.Second, info.Duration)
}

func TestParseProbe_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"not json": `ffprobe: error`,
		"no video": `{"streams":[{"codec_type":"audio"}]}`,
		"bad rate": `{"streams":[{"codec_type":"video","width":1,"height":1,"r_frame_rate":"0/0","avg_frame_rate":"x"}]}`,
		"no size":  `{"streams":[{"codec_type":"video","r_frame_rate":"25"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProbe([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestProbe_MissingFile(t *testing.T) {
	_, err := DefaultTools.Probe(context.Background(), filepath.Join(t.TempDir(), "none.mp4"))
	assert.Error(t, err)
}

func solid(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{v, v, v, 0xff})
		}
	}
	return img
}

func stripes(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x/4)%2 == 0 {
				v = 0xff
			}
			img.Set(x, y, color.RGBA{v, v, v, 0xff})
		}
	}
	return img
}

func TestSSIM(t *testing.T) {
	a := Luma(stripes(32, 24), 0, 0)
	assert.InDelta(t, 1.0, SSIM(a, a), 1e-9)

	b := Luma(solid(32, 24, 128), 0, 0)
	assert.Less(t, SSIM(a, b), 0.9)

	small := Luma(solid(4, 4, 10), 0, 0)
	assert.InDelta(t, 1.0, SSIM(small, small), 1e-9)
	assert.Equal(t, 0.0, SSIM(a, small))
}

type sliceSource struct {
	frames []image.Image
	closed bool
}

func (s *sliceSource) Next() (image.Image, error) {
	if len(s.frames) == 0 {
		return nil, io.EOF
	}
	img := s.frames[0]
	s.frames = s.frames[1:]
	return img, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func TestDetectSceneChanges(t *testing.T) {
	dir := t.TempDir()
	src := &sliceSource{frames: []image.Image{
		solid(32, 24, 20),
		solid(32, 24, 21),
		stripes(32, 24),
		stripes(32, 24),
		solid(32, 24, 200),
	}}

	artifacts, err := DetectSceneChanges(context.Background(), src, 25, dir, SceneOptions{Threshold: 0.9, BlurSigma: 1})
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	assert.Equal(t, []int{0, 2, 4}, []int{artifacts[0].Frame, artifacts[1].Frame, artifacts[2].Frame})
	assert.Equal(t, 80*time.Millisecond, artifacts[1].Timestamp)
	assert.Equal(t, filepath.Join(dir, "frame_2.png"), artifacts[1].Path)
	for _, a := range artifacts {
		assert.FileExists(t, a.Path)
	}
}

func TestDetectSceneChanges_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DetectSceneChanges(ctx, &sliceSource{frames: []image.Image{solid(8, 8, 0)}}, 25, t.TempDir(), DefaultSceneOptions)
	assert.ErrorIs(t, err, context.Canceled)
}
