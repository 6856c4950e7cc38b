package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuropeaks/adapters/render"
	"neuropeaks/adapters/web"
	"neuropeaks/internal/config"
	apperrors "neuropeaks/internal/errors"
	"neuropeaks/internal/session"
	"neuropeaks/internal/testkit"
)

const browsingLog = `Time (UTC),Event,Scroll Position,Scroll Percentage,Mouse X,Mouse Y,URL
2024-03-14T10:00:00.000Z,load,,,,,https://shop.example.com
2024-03-14T10:00:00.300Z,scroll,200,20,,,https://shop.example.com
2024-03-14T10:00:00.600Z,mouse,,,40,50,https://shop.example.com
2024-03-14T10:00:01.000Z,load,,,,,https://shop.example.com/cart
2024-03-14T10:00:01.500Z,scroll,400,50,,,https://shop.example.com/cart
`

func webProfile() config.Profile {
	p := config.DefaultProfiles()["gaze"]
	p.Name = "web"
	p.Signals = []string{"Joy", "Anger"}
	return p
}

func websiteFixture(t *testing.T) (PipelineConfig, WebsiteRequest) {
	t.Helper()
	cfg := testPipelineConfig(t, webProfile())
	inputs := t.TempDir()

	exportCfg := testkit.DefaultExportConfig()
	exportCfg.Signals = []string{"Joy", "Anger"}
	exportCfg.Gaze = true
	exportPath := writeExport(t, inputs, "P07.csv", exportCfg)

	logPath := filepath.Join(inputs, "P07_web.csv")
	require.NoError(t, os.WriteFile(logPath, []byte(browsingLog), 0o644))

	return cfg, WebsiteRequest{
		Experiment: "shop",
		LogPath:    logPath,
		ExportPath: exportPath,
		Profile:    "web",
	}
}

func TestWebsiteService_Run(t *testing.T) {
	cfg, req := websiteFixture(t)
	capture := new(MockCapturePort)
	capture.On("Capture", mock.Anything, "https://shop.example.com").Return(&web.Page{PNG: pngBytes(t, 120, 240)}, nil).Once()
	capture.On("Capture", mock.Anything, "https://shop.example.com/cart").Return(&web.Page{PNG: pngBytes(t, 120, 180)}, nil).Once()

	sess, err := NewWebsiteService(cfg, capture, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)
	capture.AssertExpectations(t)

	sum := sess.Summary()
	assert.Equal(t, session.StatusSucceeded, sum.Status)
	assert.Equal(t, "P07", string(sum.Participant))

	out := sess.OutputDir()
	assert.FileExists(t, filepath.Join(out, WebPagesDir, WebDataFile))
	assert.FileExists(t, filepath.Join(out, WebPagesDir, web.IndexFile))
	assert.FileExists(t, filepath.Join(out, WebPagesDir, "shop.example.com", web.ScreenshotFile))
	assert.FileExists(t, filepath.Join(out, MergedFile))
	assert.FileExists(t, filepath.Join(out, URLDatasetsDir, "shop.example.com.csv"))
	assert.FileExists(t, filepath.Join(out, URLDatasetsDir, "shop.example.com_cart.csv"))

	require.Len(t, sum.Heatmaps, 2)
	cart := filepath.Join(out, WebHeatmapsDir, "shop.example.com_cart", WebHeatmapPrefix+web.ScreenshotFile)
	assert.Equal(t, cart, sum.Heatmaps[1])
	img, err := render.Open(cart)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())
}

func TestWebsiteService_MergedGaze(t *testing.T) {
	cfg, req := websiteFixture(t)
	capture := new(MockCapturePort)
	capture.On("Capture", mock.Anything, mock.Anything).Return(&web.Page{PNG: pngBytes(t, 64, 64)}, nil)

	sess, err := NewWebsiteService(cfg, capture, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	merged := sess.Aligned("web")
	require.NotNil(t, merged)
	require.Equal(t, 5, merged.Len(), "one row per log event")

	x, ok := merged.Column(ColMeanGazeX)
	require.True(t, ok)
	fraction, ok := merged.Column(ColScrollFraction)
	require.True(t, ok)
	for i := 0; i < merged.Len(); i++ {
		assert.False(t, math.IsNaN(x[i]), "gaze is filled on row %d", i)
		assert.True(t, x[i] >= 200 && x[i] <= 1700, "mean of generated gaze, got %v", x[i])
	}
	assert.InDelta(t, 0.2, fraction[1], 1e-9)
	assert.InDelta(t, 0.5, fraction[4], 1e-9)
}

func TestWebsiteService_GeneratedLogCustomPagesDir(t *testing.T) {
	cfg, req := websiteFixture(t)
	cfg.PagesDir = "captures"

	logCfg := testkit.DefaultBrowsingConfig()
	var buf bytes.Buffer
	require.NoError(t, testkit.WriteCSV(&buf, testkit.NewBrowsingGenerator(logCfg).Generate()))
	require.NoError(t, os.WriteFile(req.LogPath, buf.Bytes(), 0o644))

	capture := new(MockCapturePort)
	capture.On("Capture", mock.Anything, mock.Anything).Return(&web.Page{PNG: pngBytes(t, 64, 128)}, nil)

	sess, err := NewWebsiteService(cfg, capture, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	out := sess.OutputDir()
	assert.FileExists(t, filepath.Join(out, "captures", WebDataFile))
	assert.NoDirExists(t, filepath.Join(out, WebPagesDir))
	assert.Equal(t, len(logCfg.URLs)*logCfg.EventsPerPage, sess.Aligned("web").Len())
	assert.Len(t, sess.Summary().Heatmaps, len(logCfg.URLs))
	capture.AssertNumberOfCalls(t, "Capture", len(logCfg.URLs))
}

func TestWebsiteService_UsesCachedScreenshots(t *testing.T) {
	cfg, req := websiteFixture(t)
	cfg.LibraryDir = t.TempDir()
	writePNG(t, filepath.Join(cfg.LibraryDir, "shop.example.com", web.ScreenshotFile), 50, 80)
	writePNG(t, filepath.Join(cfg.LibraryDir, "nested", "shop.example.com_cart", web.ScreenshotFile), 50, 60)

	capture := new(MockCapturePort)
	sess, err := NewWebsiteService(cfg, capture, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)
	capture.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything)
	assert.Len(t, sess.Summary().Heatmaps, 2)
}

func TestWebsiteService_CaptureFails(t *testing.T) {
	cfg, req := websiteFixture(t)
	capture := new(MockCapturePort)
	capture.On("Capture", mock.Anything, mock.Anything).Return(nil, errors.New("net::ERR_NAME_NOT_RESOLVED"))

	sess, err := NewWebsiteService(cfg, capture, quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCaptureError, apperrors.GetCode(err))
	capture.AssertNumberOfCalls(t, "Capture", cfg.Retry.Attempts)
	assert.Equal(t, session.StatusFailed, sess.Summary().Status)
}

func TestWebsiteService_EmptyLog(t *testing.T) {
	cfg, req := websiteFixture(t)
	require.NoError(t, os.WriteFile(req.LogPath, []byte("Time (UTC),Event,Scroll Position,Scroll Percentage,Mouse X,Mouse Y,URL\n"), 0o644))

	_, err := NewWebsiteService(cfg, new(MockCapturePort), quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSchemaError, apperrors.GetCode(err))
}

func TestWebsiteService_WrongProfileKind(t *testing.T) {
	cfg, req := websiteFixture(t)
	req.Profile = "emotion"

	sess, err := NewWebsiteService(cfg, new(MockCapturePort), quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, sess)
}
