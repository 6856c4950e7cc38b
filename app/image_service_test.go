package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuropeaks/adapters/render"
	"neuropeaks/internal/config"
	apperrors "neuropeaks/internal/errors"
	"neuropeaks/internal/session"
	"neuropeaks/internal/testkit"
)

func pictureProfile() config.Profile {
	p := config.DefaultProfiles()["image"]
	p.Name = "pictures"
	p.Signals = []string{"Joy", "Anger"}
	return p
}

func imageFixture(t *testing.T) (PipelineConfig, ImageRequest) {
	t.Helper()
	cfg := testPipelineConfig(t, pictureProfile())
	inputs := t.TempDir()

	exportCfg := testkit.DefaultExportConfig()
	exportCfg.Participant = "P03"
	exportCfg.Signals = []string{"Joy", "Anger"}
	exportCfg.Stimuli = []string{"beach.jpg", "forest"}
	exportCfg.Gaze = true
	exportPath := writeExport(t, inputs, "P03.csv", exportCfg)

	imageDir := filepath.Join(inputs, "stimuli")
	writePNG(t, filepath.Join(imageDir, "beach.png"), 96, 54)
	defaultImage := filepath.Join(inputs, "default.png")
	writePNG(t, defaultImage, 48, 27)

	return cfg, ImageRequest{
		Experiment:   "pictures",
		ExportPath:   exportPath,
		ImageDir:     imageDir,
		DefaultImage: defaultImage,
		Profile:      "pictures",
	}
}

func TestImageService_Run(t *testing.T) {
	cfg, req := imageFixture(t)

	sess, err := NewImageService(cfg, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	sum := sess.Summary()
	assert.Equal(t, session.StatusSucceeded, sum.Status)
	out := sess.OutputDir()
	assert.FileExists(t, filepath.Join(out, "P03.xlsx"))

	want := []string{
		filepath.Join(out, ImagesDir, "beach.jpg", "beach.jpg_Joy_0_plot.png"),
		filepath.Join(out, ImagesDir, "beach.jpg", "beach.jpg_Anger_1_plot.png"),
		filepath.Join(out, ImagesDir, "forest", "forest_Joy_2_plot.png"),
		filepath.Join(out, ImagesDir, "forest", "forest_Anger_3_plot.png"),
	}
	assert.Equal(t, want, sum.Heatmaps)

	beach, err := render.Open(want[0])
	require.NoError(t, err)
	assert.Equal(t, 96, beach.Bounds().Dx(), "stimulus picture matched by stem")
	forest, err := render.Open(want[2])
	require.NoError(t, err)
	assert.Equal(t, 48, forest.Bounds().Dx(), "default picture used")

	var cleaned bool
	for _, a := range sum.Artifacts {
		if strings.HasPrefix(a, filepath.Join(out, CleanedDir)) {
			cleaned = true
		}
	}
	assert.True(t, cleaned, "cleaned export is kept")
}

func TestImageService_MissingSignal(t *testing.T) {
	cfg, req := imageFixture(t)
	req.Signals = []string{"Joy", "Fear"}

	sess, err := NewImageService(cfg, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	sum := sess.Summary()
	require.Len(t, sum.Heatmaps, 2)
	for i, sheet := range []string{"beach.jpg", "forest"} {
		assert.Equal(t, fmt.Sprintf("%s_Joy_%d_plot.png", sheet, i), filepath.Base(sum.Heatmaps[i]))
	}
	assert.Contains(t, strings.Join(sum.Warnings, "\n"), "no Fear column")
}

func TestImageService_BlankCanvas(t *testing.T) {
	cfg, req := imageFixture(t)
	req.ImageDir = ""
	req.DefaultImage = ""
	req.Signals = []string{"Joy"}

	sess, err := NewImageService(cfg, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	heatmaps := sess.Summary().Heatmaps
	require.NotEmpty(t, heatmaps)
	img, err := render.Open(heatmaps[0])
	require.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 1080, img.Bounds().Dy())
}

func TestImageService_NeedsGazeProfile(t *testing.T) {
	p := pictureProfile()
	p.Gaze = config.GazeColumns{}
	cfg, req := imageFixture(t)
	cfg.Profiles[p.Name] = p

	sess, err := NewImageService(cfg, quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}
