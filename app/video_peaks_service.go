package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"neuropeaks/adapters/csvout"
	"neuropeaks/adapters/imotions"
	"neuropeaks/adapters/stats/temporal"
	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/errors"
	"neuropeaks/internal/peaks"
	"neuropeaks/internal/profiling"
	"neuropeaks/internal/session"
	"neuropeaks/ports"
)

// Output names of a video run, relative to its output directory.
const (
	FramesDir      = "output"
	FrameIndexFile = "frames.csv"
	PeaksFile      = "peaks.csv"
	SummaryFile    = "signal_summary.csv"
)

// DefaultVideoProfiles are the signal groups ranked against a video.
var DefaultVideoProfiles = []string{"emotion", "gsr", "heart_rate"}

// VideoPeaksService finds the video frames shown at each signal's peaks
type VideoPeaksService struct {
	cfg       PipelineConfig
	videoPort ports.VideoPort
	cleaner   *imotions.Cleaner
	extractor *peaks.Extractor
	logger    *internal.Logger
}

// VideoPeaksRequest defines the inputs of a video experiment run
type VideoPeaksRequest struct {
	Experiment  string   `json:"experiment" binding:"required"`
	Participant string   `json:"participant"` // defaults to the export's name
	ExportPath  string   `json:"export_path" binding:"required"`
	VideoPath   string   `json:"video_path" binding:"required"`
	Profiles    []string `json:"profiles"` // defaults to DefaultVideoProfiles
	Stimulus    string   `json:"stimulus"` // overrides the profiles' stimulus
	// Signal limits the organized emotions folder to one signal; empty organizes all.
	Signal string `json:"signal"`
}

// NewVideoPeaksService creates a video peaks service
func NewVideoPeaksService(cfg PipelineConfig, videoPort ports.VideoPort, logger *internal.Logger) *VideoPeaksService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &VideoPeaksService{
		cfg:       cfg,
		videoPort: videoPort,
		cleaner:   imotions.NewCleaner(logger),
		extractor: peaks.NewExtractor(logger),
		logger:    logger,
	}
}

// Run cleans the export once per signal group, resamples each group, lays
// the video's frames on its clock, ranks the top peaks and points every
// peak at the nearest saved scene frame.
func (s *VideoPeaksService) Run(ctx context.Context, req VideoPeaksRequest) (sess *session.Session, err error) {
	startTime := time.Now()
	names := req.Profiles
	if len(names) == 0 {
		names = DefaultVideoProfiles
	}
	profiles := make([]config.Profile, 0, len(names))
	for _, name := range names {
		p, err := s.cfg.profile(name, config.KindVideo)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	participant := participantOf(req.Participant, req.ExportPath)
	sess, err = startRun(s.cfg, run.KindVideo, req.Experiment, participant, profiles,
		map[string]string{"export": req.ExportPath, "video": req.VideoPath})
	if err != nil {
		return sess, err
	}
	defer func() { finish(s.logger, "[VideoPeaks]", sess, err) }()

	outDir := sess.OutputDir()
	for _, input := range []string{req.VideoPath, req.ExportPath} {
		if _, err := copyInto(input, outDir); err != nil {
			return sess, err
		}
	}

	raw, err := imotions.NewDataReader(req.ExportPath).ReadRaw()
	if err != nil {
		return sess, err
	}
	cleaned := make([]*stream.CleanedStream, len(profiles))
	for i, p := range profiles {
		if cleaned[i], err = cleanExport(s.cleaner, raw, participant, p, req.Stimulus); err != nil {
			return sess, err
		}
		sess.AddWarnings(cleaned[i].Warnings)
	}

	framesDir := filepath.Join(outDir, FramesDir)
	info, artifacts, err := s.videoPort.ExtractScenes(ctx, req.VideoPath, framesDir, s.cfg.Scene)
	if err != nil {
		return sess, errors.Wrap(err, "extracting scene frames")
	}
	s.logger.Info("[VideoPeaks] %s: %d frames at %.3f fps, %d scene frames", req.VideoPath, info.Frames, info.FPS, len(artifacts))
	if len(artifacts) == 0 {
		sess.Warn("no scene frames were saved from %s", req.VideoPath)
	}
	indexPath := filepath.Join(framesDir, FrameIndexFile)
	if err := csvout.WriteFile(indexPath, func(w io.Writer) error { return csvout.WriteFrameIndex(w, artifacts) }); err != nil {
		return sess, err
	}
	sess.AddArtifact(indexPath)

	var (
		all     []stream.PeakRecord
		summary []profiling.SignalProfile
	)
	for i, p := range profiles {
		if err := ctx.Err(); err != nil {
			return sess, err
		}
		found, described, err := s.rankGroup(sess, p, cleaned[i], info.Frames, info.FPS)
		if err != nil {
			return sess, err
		}
		all = append(all, found...)
		summary = append(summary, described...)
	}
	summaryPath := filepath.Join(outDir, SummaryFile)
	if err := csvout.WriteFile(summaryPath, func(w io.Writer) error { return profiling.WriteCSV(w, summary) }); err != nil {
		return sess, err
	}
	sess.AddArtifact(summaryPath)

	all = peaks.AttachArtifacts(all, artifacts)
	all, err = peaks.Organize(all, outDir, req.Signal)
	if err != nil {
		return sess, err
	}
	sess.SetPeaks(all)

	peaksPath := filepath.Join(outDir, PeaksFile)
	if err := csvout.WriteFile(peaksPath, func(w io.Writer) error { return csvout.WritePeaks(w, all) }); err != nil {
		return sess, err
	}
	sess.AddArtifact(peaksPath)

	s.logger.Info("[VideoPeaks] %d peaks over %d groups in %v", len(all), len(profiles), time.Since(startTime))
	return sess, nil
}

// rankGroup resamples one signal group, aligns it backward with the frame
// timeline starting at the group's first sample and extracts its peaks. It
// also returns the distribution of each aligned signal.
func (s *VideoPeaksService) rankGroup(sess *session.Session, p config.Profile, cleaned *stream.CleanedStream, frames int, fps float64) ([]stream.PeakRecord, []profiling.SignalProfile, error) {
	series, err := temporal.Resample(cleaned, cleaned.Origin, p.BinWidth)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resampling %s data", p.Name)
	}
	minTs, _ := cleaned.MinTimestamp()
	timeline, err := temporal.FrameTimeline(frames, fps, core.AtMillis(cleaned.Origin, minTs))
	if err != nil {
		return nil, nil, errors.Wrap(err, "building frame timeline")
	}
	dir, err := direction(p)
	if err != nil {
		return nil, nil, err
	}
	aligned, err := temporal.Align(series, timeline, dir, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "aligning %s data with the video", p.Name)
	}
	// resampling at a fine width leaves most bins empty
	aligned = aligned.DropEmptyRows(p.Signals)
	sess.SetAligned(p.Name, aligned)

	alignedPath := filepath.Join(sess.OutputDir(), fmt.Sprintf("%s_aligned.csv", p.Name))
	if err := csvout.WriteFile(alignedPath, func(w io.Writer) error { return csvout.WriteAligned(w, aligned) }); err != nil {
		return nil, nil, err
	}
	sess.AddArtifact(alignedPath)

	found, err := s.extractor.TopN(aligned, p.Signals, p.TopN)
	if err != nil {
		return nil, nil, err
	}
	for _, signal := range p.Signals {
		if !aligned.Has(signal) {
			sess.Warn("signal %s of profile %s is not in the export", signal, p.Name)
		}
	}
	return found, profiling.ProfileFrame(aligned.Frame, p.Name, p.Signals), nil
}
