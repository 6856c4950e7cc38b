package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuropeaks/adapters/video"
	"neuropeaks/domain/stream"
	"neuropeaks/internal/config"
	apperrors "neuropeaks/internal/errors"
	"neuropeaks/internal/peaks"
	"neuropeaks/internal/session"
	"neuropeaks/internal/testkit"
)

func faceProfile() config.Profile {
	p := config.DefaultProfiles()["emotion"]
	p.Name = "face"
	p.Signals = []string{"Joy", "Anger", "Engagement", "Contempt"}
	return p
}

func videoFixture(t *testing.T) (PipelineConfig, VideoPeaksRequest, string) {
	t.Helper()
	cfg := testPipelineConfig(t, faceProfile())
	inputs := t.TempDir()
	exportPath := writeExport(t, inputs, "P01.csv", testkit.DefaultExportConfig())
	videoPath := filepath.Join(inputs, "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("not really a video"), 0o644))

	req := VideoPeaksRequest{
		Experiment: "exp1",
		ExportPath: exportPath,
		VideoPath:  videoPath,
		Profiles:   []string{"face"},
		Signal:     "Joy",
	}
	framesDir := filepath.Join(cfg.OutputRoot, "exp1", "P01", FramesDir)
	return cfg, req, framesDir
}

func TestVideoPeaksService_Run(t *testing.T) {
	cfg, req, framesDir := videoFixture(t)

	artifacts := []stream.FrameArtifact{
		{Frame: 0, Timestamp: 0, Path: filepath.Join(framesDir, "frame_0.png")},
		{Frame: 15, Timestamp: 500 * time.Millisecond, Path: filepath.Join(framesDir, "frame_15.png")},
	}
	port := new(MockVideoPort)
	port.On("ExtractScenes", mock.Anything, req.VideoPath, framesDir, cfg.Scene).
		Run(func(mock.Arguments) {
			for _, a := range artifacts {
				writePNG(t, a.Path, 16, 12)
			}
		}).
		Return(&video.Info{Width: 16, Height: 12, FPS: 30, Frames: 30, Duration: time.Second}, artifacts, nil)

	svc := NewVideoPeaksService(cfg, port, quietLogger())
	sess, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	port.AssertExpectations(t)

	sum := sess.Summary()
	assert.Equal(t, session.StatusSucceeded, sum.Status)
	assert.Equal(t, "P01", string(sum.Participant))
	require.Len(t, sum.Peaks, 9, "three peaks for each signal present in the export")

	out := sess.OutputDir()
	for _, name := range []string{"clip.mp4", "P01.csv", PeaksFile, SummaryFile, "face_aligned.csv", "run_manifest.json",
		filepath.Join(FramesDir, FrameIndexFile)} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	summary, err := os.ReadFile(filepath.Join(out, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "face,Joy,")
	assert.Contains(t, string(summary), "face,Engagement,")
	assert.NotContains(t, string(summary), "Contempt")

	var organized int
	for _, p := range sum.Peaks {
		assert.NotEqual(t, "Contempt", p.Signal)
		// the stream starts between bin boundaries; every bin still sees a frame
		require.NotEmpty(t, p.ArtifactPath, "peak %s at %v has no frame", p.Signal, p.Timestamp)
		assert.False(t, math.IsNaN(p.IndexValue))
		assert.FileExists(t, p.ArtifactPath)
		if p.Signal == "Joy" {
			assert.True(t, strings.HasPrefix(p.ArtifactPath, filepath.Join(out, peaks.EmotionsDir, "Joy")))
			organized++
		} else {
			assert.True(t, strings.HasPrefix(p.ArtifactPath, framesDir), "only the selected signal is organized")
		}
	}
	assert.Greater(t, organized, 0)
	assert.NoDirExists(t, filepath.Join(out, peaks.EmotionsDir, "Anger"))

	found := false
	for _, w := range sum.Warnings {
		if strings.Contains(w, "Contempt") {
			found = true
		}
	}
	assert.True(t, found, "missing signal is reported")
}

func TestVideoPeaksService_KeepsEveryGroupAligned(t *testing.T) {
	cfg, req, framesDir := videoFixture(t)
	mood := faceProfile()
	mood.Name = "mood"
	mood.Signals = []string{"Anger", "Engagement"}
	cfg.Profiles[mood.Name] = mood
	req.Profiles = []string{"face", "mood"}

	port := new(MockVideoPort)
	port.On("ExtractScenes", mock.Anything, req.VideoPath, framesDir, cfg.Scene).
		Return(&video.Info{FPS: 30, Frames: 30}, nil, nil)

	sess, err := NewVideoPeaksService(cfg, port, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"face", "mood"}, sess.AlignedGroups())
	face, mooded := sess.Aligned("face"), sess.Aligned("mood")
	require.NotNil(t, face)
	require.NotNil(t, mooded)
	_, ok := face.Column("Joy")
	assert.True(t, ok)
	_, ok = mooded.Column("Joy")
	assert.False(t, ok, "each group keeps its own columns")
	_, ok = mooded.Column("Anger")
	assert.True(t, ok)
	for _, name := range []string{"face_aligned.csv", "mood_aligned.csv"} {
		assert.FileExists(t, filepath.Join(sess.OutputDir(), name))
	}
}

func TestVideoPeaksService_RanksByMagnitude(t *testing.T) {
	cfg, req, framesDir := videoFixture(t)
	port := new(MockVideoPort)
	port.On("ExtractScenes", mock.Anything, req.VideoPath, framesDir, cfg.Scene).
		Return(&video.Info{FPS: 30, Frames: 30}, nil, nil)

	sess, err := NewVideoPeaksService(cfg, port, quietLogger()).Run(context.Background(), req)
	require.NoError(t, err)

	bySignal := make(map[string][]stream.PeakRecord)
	for _, p := range sess.Peaks() {
		bySignal[p.Signal] = append(bySignal[p.Signal], p)
	}
	for signal, ps := range bySignal {
		for i := 1; i < len(ps); i++ {
			assert.GreaterOrEqual(t, ps[i-1].Magnitude, ps[i].Magnitude, signal)
			assert.Equal(t, i+1, ps[i].Rank)
		}
	}
	assert.Contains(t, strings.Join(sess.Summary().Warnings, "\n"), "no scene frames")
}

func TestVideoPeaksService_SceneFailure(t *testing.T) {
	cfg, req, framesDir := videoFixture(t)
	port := new(MockVideoPort)
	port.On("ExtractScenes", mock.Anything, req.VideoPath, framesDir, cfg.Scene).
		Return(nil, nil, errors.New("ffmpeg: not found"))

	sess, err := NewVideoPeaksService(cfg, port, quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extracting scene frames")
	require.NotNil(t, sess)
	assert.Equal(t, session.StatusFailed, sess.Summary().Status)
}

func TestVideoPeaksService_RejectsProfiles(t *testing.T) {
	cfg, req, _ := videoFixture(t)
	svc := NewVideoPeaksService(cfg, new(MockVideoPort), quietLogger())

	for _, profiles := range [][]string{{"nope"}, {"gaze"}} {
		req.Profiles = profiles
		sess, err := svc.Run(context.Background(), req)
		require.Error(t, err)
		assert.Nil(t, sess)
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
	}
}

func TestVideoPeaksService_MissingExport(t *testing.T) {
	cfg, req, _ := videoFixture(t)
	req.ExportPath = filepath.Join(t.TempDir(), "P02.csv")

	sess, err := NewVideoPeaksService(cfg, new(MockVideoPort), quietLogger()).Run(context.Background(), req)
	require.Error(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, session.StatusFailed, sess.Summary().Status)
}
