package app

import (
	"context"
	"io"
	"math"
	"path/filepath"

	"neuropeaks/adapters/csvout"
	"neuropeaks/adapters/imotions"
	"neuropeaks/adapters/render"
	"neuropeaks/adapters/stats/temporal"
	"neuropeaks/adapters/web"
	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/errors"
	"neuropeaks/internal/session"
	"neuropeaks/internal/spatial"
	"neuropeaks/ports"
)

// Output names of a website run, relative to its output directory.
const (
	WebPagesDir      = "web_pages"
	WebDataFile      = "web_data_filled.csv"
	MergedFile       = "merged_data.csv"
	URLDatasetsDir   = "url_datasets"
	WebHeatmapsDir   = "output_scatter_full_web_images"
	WebHeatmapPrefix = "heatmap_"
)

// Derived columns of the merged website frame.
const (
	ColMeanGazeX      = "MeanGazeX"
	ColMeanGazeY      = "MeanGazeY"
	ColScrollFraction = "Scroll Fraction"
)

// DefaultWebsiteProfile is used when a request names none.
const DefaultWebsiteProfile = "gaze"

// WebsiteService overlays gaze on screenshots of the pages a participant browsed
type WebsiteService struct {
	cfg         PipelineConfig
	capturePort ports.CapturePort
	cleaner     *imotions.Cleaner
	logger      *internal.Logger
}

// WebsiteRequest defines the inputs of a website experiment run
type WebsiteRequest struct {
	Experiment  string `json:"experiment" binding:"required"`
	Participant string `json:"participant"`
	LogPath     string `json:"log_path" binding:"required"`    // browser extension event log
	ExportPath  string `json:"export_path" binding:"required"` // tracking platform export
	Profile     string `json:"profile"`
}

// NewWebsiteService creates a website service
func NewWebsiteService(cfg PipelineConfig, capturePort ports.CapturePort, logger *internal.Logger) *WebsiteService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &WebsiteService{
		cfg:         cfg,
		capturePort: capturePort,
		cleaner:     imotions.NewCleaner(logger),
		logger:      logger,
	}
}

// Run fills the web log, resolves a screenshot per URL, moves the gaze
// stream onto the browser clock, merges it nearest-in-time into the log
// and renders one heatmap per URL.
func (s *WebsiteService) Run(ctx context.Context, req WebsiteRequest) (sess *session.Session, err error) {
	name := req.Profile
	if name == "" {
		name = DefaultWebsiteProfile
	}
	p, err := s.cfg.profile(name, config.KindWebsite)
	if err != nil {
		return nil, err
	}

	participant := participantOf(req.Participant, req.ExportPath)
	sess, err = startRun(s.cfg, run.KindWebsite, req.Experiment, participant, []config.Profile{p},
		map[string]string{"log": req.LogPath, "export": req.ExportPath})
	if err != nil {
		return sess, err
	}
	defer func() { finish(s.logger, "[Website]", sess, err) }()
	outDir := sess.OutputDir()

	webFrame, err := web.ReadLog(req.LogPath)
	if err != nil {
		return sess, err
	}
	web.ApplyFillPolicy(webFrame)
	pagesName := s.cfg.PagesDir
	if pagesName == "" {
		pagesName = WebPagesDir
	}
	pagesDir := filepath.Join(outDir, pagesName)
	if err := s.writeFrame(sess, filepath.Join(pagesDir, WebDataFile), webFrame); err != nil {
		return sess, err
	}

	cache := web.NewScreenshotCache(pagesDir, s.cfg.LibraryDir, s.capturePort, s.cfg.Retry)
	entries, err := cache.Resolve(ctx, web.UniqueURLs(webFrame))
	if err != nil {
		return sess, errors.Wrap(err, "resolving page screenshots")
	}
	screenshots := make(map[string]string, len(entries))
	for _, e := range entries {
		screenshots[e.URL] = e.Path
	}
	sess.AddArtifact(filepath.Join(pagesDir, web.IndexFile))

	raw, err := imotions.NewDataReader(req.ExportPath).ReadRaw()
	if err != nil {
		return sess, err
	}
	cleaned, err := cleanExport(s.cleaner, raw, participant, p, "")
	if err != nil {
		return sess, err
	}
	sess.AddWarnings(cleaned.Warnings)

	merged, err := s.merge(webFrame, cleaned, p)
	if err != nil {
		return sess, err
	}
	sess.SetAligned(p.Name, merged)
	mergedPath := filepath.Join(outDir, MergedFile)
	if err := csvout.WriteFile(mergedPath, func(w io.Writer) error { return csvout.WriteAligned(w, merged) }); err != nil {
		return sess, err
	}
	sess.AddArtifact(mergedPath)

	opts := spatial.ProjectOptions{
		Gaze:      gazeColumns(p),
		Reference: spatial.Size{Width: p.ReferenceWidth, Height: p.ReferenceHeight},
		Scroll:    ColScrollFraction,
		AbsY:      true,
	}
	heatmap := s.cfg.Heatmap
	heatmap.Mode = render.Density

	for _, segment := range web.SplitByURL(merged.Frame) {
		if err := ctx.Err(); err != nil {
			return sess, err
		}
		key := web.NormalizeURL(segment.URL)
		if err := s.writeFrame(sess, filepath.Join(outDir, URLDatasetsDir, key+".csv"), segment.Frame); err != nil {
			return sess, err
		}

		shot, ok := screenshots[segment.URL]
		if !ok {
			sess.Warn("no screenshot for %s", segment.URL)
			continue
		}
		base, err := render.Open(shot)
		if err != nil {
			return sess, err
		}
		dims := spatial.Size{Width: base.Bounds().Dx(), Height: base.Bounds().Dy()}
		points := spatial.ProjectSamples(segment.Frame, dims, opts)
		if len(points) == 0 {
			sess.Warn("no gaze recorded on %s", segment.URL)
		}
		img, err := render.Heatmap(base, points, nil, heatmap)
		if err != nil {
			return sess, err
		}
		out := filepath.Join(outDir, WebHeatmapsDir, key, WebHeatmapPrefix+web.ScreenshotFile)
		if err := render.WritePNG(out, img); err != nil {
			return sess, err
		}
		sess.AddHeatmap(out)
	}
	return sess, nil
}

// merge shifts the gaze stream so it starts with the web log, matches every
// log event with the nearest gaze sample, then fills the merged gaps.
func (s *WebsiteService) merge(webFrame *stream.Frame, cleaned *stream.CleanedStream, p config.Profile) (*stream.AlignedFrame, error) {
	gaze := temporal.StreamFrame(cleaned, cleaned.Origin)
	if gaze.Len() == 0 {
		return nil, errors.Wrap(core.ErrEmptySecondary, "merging gaze with the web log")
	}
	gaze.Times = temporal.ShiftClock(gaze.Times, temporal.ClockOffset(webFrame.Times[0], gaze.Times[0]))

	dir, err := direction(p)
	if err != nil {
		return nil, err
	}
	merged, err := temporal.MergeAsOf(webFrame, gaze, dir, 0)
	if err != nil {
		return nil, errors.Wrap(err, "merging gaze with the web log")
	}

	policy, err := fillPolicy(p)
	if err != nil {
		return nil, err
	}
	gazeCols := p.Gaze.Columns()
	temporal.FillFrame(merged.Frame, gazeCols, policy)
	temporal.FillFrame(merged.Frame, nil, temporal.FillPolicy{Strategy: temporal.FillForwardBackward})

	cols := gazeColumns(p)
	lx, _ := merged.Column(cols.LeftX)
	ly, _ := merged.Column(cols.LeftY)
	rx, _ := merged.Column(cols.RightX)
	ry, _ := merged.Column(cols.RightY)
	percent, _ := merged.Column(web.ColScrollPercent)

	n := merged.Len()
	meanX, meanY, fraction := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		meanX[i] = spatial.MeanGaze(valueAt(lx, i), valueAt(rx, i))
		meanY[i] = spatial.MeanGaze(valueAt(ly, i), valueAt(ry, i))
		fraction[i] = valueAt(percent, i) / 100
	}
	merged.SetNumeric(ColMeanGazeX, meanX)
	merged.SetNumeric(ColMeanGazeY, meanY)
	merged.SetNumeric(ColScrollFraction, fraction)
	s.logger.Debug("[Website] merged %d events with %d gaze samples", n, gaze.Len())
	return merged, nil
}

func (s *WebsiteService) writeFrame(sess *session.Session, path string, frame *stream.Frame) error {
	if err := csvout.WriteFile(path, func(w io.Writer) error { return csvout.WriteFrame(w, frame) }); err != nil {
		return err
	}
	sess.AddArtifact(path)
	return nil
}

func gazeColumns(p config.Profile) spatial.GazeColumns {
	return spatial.GazeColumns{LeftX: p.Gaze.LeftX, LeftY: p.Gaze.LeftY, RightX: p.Gaze.RightX, RightY: p.Gaze.RightY}
}

// valueAt reads a column that may be absent.
func valueAt(col []float64, i int) float64 {
	if i < len(col) {
		return col[i]
	}
	return math.NaN()
}
