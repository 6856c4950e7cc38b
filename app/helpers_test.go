package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuropeaks/adapters/render"
	"neuropeaks/adapters/video"
	"neuropeaks/adapters/web"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/testkit"
)

// MockVideoPort implements ports.VideoPort
type MockVideoPort struct {
	mock.Mock
}

func (m *MockVideoPort) Probe(ctx context.Context, path string) (*video.Info, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*video.Info), args.Error(1)
}

func (m *MockVideoPort) ExtractScenes(ctx context.Context, path, dir string, opts video.SceneOptions) (*video.Info, []stream.FrameArtifact, error) {
	args := m.Called(ctx, path, dir, opts)
	var info *video.Info
	if v := args.Get(0); v != nil {
		info = v.(*video.Info)
	}
	var artifacts []stream.FrameArtifact
	if v := args.Get(1); v != nil {
		artifacts = v.([]stream.FrameArtifact)
	}
	return info, artifacts, args.Error(2)
}

// MockCapturePort implements ports.CapturePort
type MockCapturePort struct {
	mock.Mock
}

func (m *MockCapturePort) Capture(ctx context.Context, url string) (*web.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*web.Page), args.Error(1)
}

// testPipelineConfig writes under a temp root with quick retries and the
// built-in profiles plus any extra ones.
func testPipelineConfig(t *testing.T, extra ...config.Profile) PipelineConfig {
	t.Helper()
	profiles := config.DefaultProfiles()
	for _, p := range extra {
		profiles[p.Name] = p
	}
	heatmap := render.DefaultHeatmapOptions
	heatmap.Sigma = 2
	return PipelineConfig{
		OutputRoot: t.TempDir(),
		Retry:      web.RetryPolicy{Attempts: 2, Timeout: time.Second},
		Scene:      video.DefaultSceneOptions,
		Heatmap:    heatmap,
		Profiles:   profiles,
	}
}

func quietLogger() *internal.Logger {
	return internal.NewNopLogger()
}

// writeExport generates a raw export and writes it as CSV.
func writeExport(t *testing.T, dir, name string, cfg testkit.ExportGeneratorConfig) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, testkit.WriteCSV(f, testkit.NewExportGenerator(cfg).Generate()))
	return path
}

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h, color.White)))
	return buf.Bytes()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pngBytes(t, w, h), 0o644))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
