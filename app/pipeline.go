package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neuropeaks/adapters/imotions"
	"neuropeaks/adapters/render"
	"neuropeaks/adapters/stats/temporal"
	"neuropeaks/adapters/video"
	"neuropeaks/adapters/web"
	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/errors"
	"neuropeaks/internal/session"
)

// CodeVersion is recorded in every run manifest.
const CodeVersion = "0.3.0"

// PipelineConfig is what every experiment pipeline shares.
type PipelineConfig struct {
	OutputRoot string // experiments/
	LibraryDir string // shared screenshot library, optional
	PagesDir   string // per-run screenshot cache, WebPagesDir when empty
	Retry      web.RetryPolicy
	Scene      video.SceneOptions
	Heatmap    render.HeatmapOptions
	Profiles   map[string]config.Profile
}

// NewPipelineConfig derives pipeline settings from the application config.
func NewPipelineConfig(cfg *config.Config, profiles map[string]config.Profile) PipelineConfig {
	scene := video.DefaultSceneOptions
	scene.Threshold = cfg.Video.SceneThreshold
	return PipelineConfig{
		OutputRoot: cfg.Paths.OutputDir,
		LibraryDir: cfg.Paths.ScreenshotLibraryDir,
		PagesDir:   cfg.Paths.ScreenshotCacheDir,
		Retry:      web.RetryPolicy{Attempts: cfg.Capture.Attempts, Timeout: cfg.Capture.Timeout},
		Scene:      scene,
		Heatmap:    render.DefaultHeatmapOptions,
		Profiles:   profiles,
	}
}

// profile looks up a profile of the expected kind.
func (c PipelineConfig) profile(name, kind string) (config.Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return config.Profile{}, errors.InvalidInput(fmt.Sprintf("unknown profile %q", name))
	}
	if p.Kind != kind {
		return config.Profile{}, errors.InvalidInput(fmt.Sprintf("profile %q is for %s experiments, not %s", name, p.Kind, kind))
	}
	return p, nil
}

// startRun opens a session, writes its manifest and returns both. Inputs
// map a role ("export", "video", ...) to a file path.
func startRun(cfg PipelineConfig, kind run.Kind, experiment string, participant core.ParticipantID,
	profiles []config.Profile, inputs map[string]string) (*session.Session, error) {

	names := make([]string, len(profiles))
	settings := make(map[string]interface{})
	for i, p := range profiles {
		names[i] = p.Name
		settings[p.Name+".signals"] = p.Signals
		settings[p.Name+".bin_width"] = p.BinWidth
		settings[p.Name+".top_n"] = p.TopN
		settings[p.Name+".direction"] = p.Direction
		settings[p.Name+".stimulus"] = p.Stimulus
		settings[p.Name+".fill"] = p.Fill.Policy
	}
	settings["scene.threshold"] = cfg.Scene.Threshold

	sess, err := session.New(kind, experiment, participant, names, cfg.OutputRoot)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "invalid run request")
	}
	manifest, err := run.NewManifest(sess.ID(), kind, experiment, participant, names, inputs, settings, CodeVersion)
	if err != nil {
		return sess, err
	}
	sess.SetManifest(manifest)
	path, err := manifest.Write(sess.OutputDir())
	if err != nil {
		return sess, err
	}
	sess.AddArtifact(path)
	return sess, nil
}

// participantOf falls back to the export file name.
func participantOf(participant, exportPath string) core.ParticipantID {
	if participant != "" {
		return core.ParticipantID(participant)
	}
	return core.ParticipantFromFilename(exportPath)
}

// cleanExport cleans a raw export against a profile, optionally for another
// stimulus than the profile's.
func cleanExport(cleaner *imotions.Cleaner, raw stream.RawTable, participant core.ParticipantID, p config.Profile, stimulus string) (*stream.CleanedStream, error) {
	schema := imotions.SchemaFromProfile(p)
	if stimulus != "" {
		schema.Stimulus = stimulus
	}
	cleaned, err := cleaner.Clean(raw, participant, schema)
	if err != nil {
		return nil, errors.Wrapf(err, "cleaning %s data", p.Name)
	}
	return cleaned, nil
}

// fillPolicy reads a profile's gap-filling policy.
func fillPolicy(p config.Profile) (temporal.FillPolicy, error) {
	if p.Fill.Policy == "" {
		return temporal.FillPolicy{Strategy: temporal.FillNone}, nil
	}
	strategy, err := temporal.ParseFillStrategy(p.Fill.Policy)
	if err != nil {
		return temporal.FillPolicy{}, errors.Wrap(errors.ConfigInvalid(err.Error()), "profile "+p.Name)
	}
	return temporal.FillPolicy{Strategy: strategy, Limit: p.Fill.Limit}, nil
}

func direction(p config.Profile) (temporal.Direction, error) {
	dir, err := temporal.ParseDirection(p.Direction)
	if err != nil {
		return "", errors.Wrap(errors.ConfigInvalid(err.Error()), "profile "+p.Name)
	}
	return dir, nil
}

// copyInto copies src into dir, keeping its name.
func copyInto(src, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if filepath.Clean(dst) == filepath.Clean(src) {
		return dst, nil
	}
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return dst, out.Close()
}

// finish closes a session, logging the outcome.
func finish(logger *internal.Logger, prefix string, sess *session.Session, err error) {
	if sess == nil {
		return
	}
	sess.Finish(err)
	sum := sess.Summary()
	if err != nil {
		logger.Error("%s run %s failed: %v", prefix, sum.RunID, err)
		return
	}
	logger.Info("%s run %s done: %d peaks, %d heatmaps, %d warnings", prefix, sum.RunID, len(sum.Peaks), len(sum.Heatmaps), len(sum.Warnings))
}
