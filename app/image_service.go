package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strings"

	"neuropeaks/adapters/excel"
	"neuropeaks/adapters/imotions"
	"neuropeaks/adapters/render"
	"neuropeaks/adapters/stats/temporal"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/errors"
	"neuropeaks/internal/session"
	"neuropeaks/internal/spatial"
)

// Output names of an image run, relative to its output directory.
const (
	CleanedDir = "cleaned"
	ImagesDir  = "images"
)

// DefaultImageProfile is used when a request names none.
const DefaultImageProfile = "image"

// imageExtensions are tried, in order, when looking up a stimulus picture.
var imageExtensions = []string{".png", ".jpg", ".jpeg"}

// ImageService renders per-stimulus signal heatmaps of an image experiment
type ImageService struct {
	cfg     PipelineConfig
	cleaner *imotions.Cleaner
	logger  *internal.Logger
}

// ImageRequest defines the inputs of an image experiment run
type ImageRequest struct {
	Experiment  string `json:"experiment" binding:"required"`
	Participant string `json:"participant"`
	ExportPath  string `json:"export_path" binding:"required"`
	// ImageDir holds the stimulus pictures, named after the stimulus.
	ImageDir string `json:"image_dir"`
	// DefaultImage is drawn under stimuli without a picture of their own.
	DefaultImage string   `json:"default_image"`
	Profile      string   `json:"profile"`
	Signals      []string `json:"signals"` // defaults to the profile's signals
}

// NewImageService creates an image service
func NewImageService(cfg PipelineConfig, logger *internal.Logger) *ImageService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ImageService{cfg: cfg, cleaner: imotions.NewCleaner(logger), logger: logger}
}

// Run cleans every stimulus of the export, writes the participant workbook
// and renders, per sheet and per signal, the gaze weighted by the signal
// over the stimulus picture.
func (s *ImageService) Run(ctx context.Context, req ImageRequest) (sess *session.Session, err error) {
	name := req.Profile
	if name == "" {
		name = DefaultImageProfile
	}
	p, err := s.cfg.profile(name, config.KindImage)
	if err != nil {
		return nil, err
	}
	if !p.Gaze.Enabled() {
		return nil, errors.InvalidInput(fmt.Sprintf("profile %q has no gaze columns", name))
	}

	participant := participantOf(req.Participant, req.ExportPath)
	sess, err = startRun(s.cfg, run.KindImage, req.Experiment, participant, []config.Profile{p},
		map[string]string{"export": req.ExportPath, "default_image": req.DefaultImage})
	if err != nil {
		return sess, err
	}
	defer func() { finish(s.logger, "[Images]", sess, err) }()
	outDir := sess.OutputDir()

	raw, err := imotions.NewDataReader(req.ExportPath).ReadRaw()
	if err != nil {
		return sess, err
	}
	cleaned, err := cleanExport(s.cleaner, raw, participant, p, "")
	if err != nil {
		return sess, err
	}
	sess.AddWarnings(cleaned.Warnings)

	cleanedPath, err := imotions.WriteCleanedFile(filepath.Join(outDir, CleanedDir), cleaned)
	if err != nil {
		return sess, err
	}
	sess.AddArtifact(cleanedPath)

	extra := append(append([]string{}, p.Optional...), p.Gaze.Columns()...)
	workbook, err := excel.WriteWorkbook(outDir, cleaned, excel.DefaultWorkbookConfig(p.Signals, extra))
	if err != nil {
		return sess, err
	}
	sess.AddArtifact(workbook)

	signals := req.Signals
	if len(signals) == 0 {
		signals = p.Signals
	}
	reader := excel.NewDataReader(workbook)
	sheets, err := reader.Sheets()
	if err != nil {
		return sess, err
	}

	plotIndex := 0
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return sess, err
		}
		n, err := s.renderSheet(sess, reader, sheet, cleaned, p, signals, req, plotIndex)
		if err != nil {
			return sess, err
		}
		plotIndex += n
	}
	return sess, nil
}

// renderSheet reads one stimulus back from the workbook, resamples it and
// renders a heatmap per signal. It returns the number of heatmaps written.
func (s *ImageService) renderSheet(sess *session.Session, reader *excel.DataReader, sheet string,
	cleaned *stream.CleanedStream, p config.Profile, signals []string, req ImageRequest, plotIndex int) (int, error) {

	data, err := reader.ReadSheet(sheet)
	if err != nil {
		return 0, err
	}
	frame, err := excel.Frame(data, cleaned.Origin)
	if err != nil {
		return 0, err
	}
	series, err := temporal.ResampleFrame(frame, p.BinWidth)
	if err != nil {
		return 0, errors.Wrapf(err, "resampling sheet %s", sheet)
	}

	stimulus := sheet
	if ids := frame.Text[stream.ColStimulus]; len(ids) > 0 && ids[0] != "" {
		stimulus = ids[0]
	}
	base, err := s.stimulusImage(req, stimulus, p)
	if err != nil {
		return 0, err
	}
	dims := spatial.Size{Width: base.Bounds().Dx(), Height: base.Bounds().Dy()}
	cols := gazeColumns(p)
	opts := spatial.ProjectOptions{
		Gaze:      cols,
		Reference: spatial.Size{Width: p.ReferenceWidth, Height: p.ReferenceHeight},
	}
	heatmap := s.cfg.Heatmap
	heatmap.Mode = render.Intensity

	written := 0
	for _, signal := range signals {
		values, ok := series.Column(signal)
		if !ok {
			sess.Warn("sheet %s has no %s column", sheet, signal)
			continue
		}
		rows := gazedRows(series.Frame, cols, values)
		if len(rows) == 0 {
			sess.Warn("sheet %s has no gaze with %s values", sheet, signal)
			continue
		}
		selected := series.Select(rows)
		points := spatial.ProjectSamples(selected, dims, opts)
		weights := normalizeWeights(selected.Numeric[signal])

		img, err := render.Heatmap(base, points, weights, heatmap)
		if err != nil {
			return written, err
		}
		out := filepath.Join(sess.OutputDir(), ImagesDir, sheet, fmt.Sprintf("%s_%s_%d_plot.png", sheet, signal, plotIndex+written))
		if err := render.WritePNG(out, img); err != nil {
			return written, err
		}
		sess.AddHeatmap(out)
		written++
	}
	s.logger.Info("[Images] sheet %s: %d heatmaps", sheet, written)
	return written, nil
}

// gazedRows lists the rows with a usable mean gaze and a signal value.
func gazedRows(frame *stream.Frame, cols spatial.GazeColumns, values []float64) []int {
	lx, _ := frame.Column(cols.LeftX)
	ly, _ := frame.Column(cols.LeftY)
	rx, _ := frame.Column(cols.RightX)
	ry, _ := frame.Column(cols.RightY)

	var rows []int
	for i := range values {
		x := spatial.MeanGaze(valueAt(lx, i), valueAt(rx, i))
		y := spatial.MeanGaze(valueAt(ly, i), valueAt(ry, i))
		if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(values[i]) {
			continue
		}
		rows = append(rows, i)
	}
	return rows
}

// normalizeWeights scales values into [0,1] by their maximum.
func normalizeWeights(values []float64) []float64 {
	peak := 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(values))
	if peak <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = math.Max(0, v/peak)
	}
	return out
}

// stimulusImage finds the picture shown for a stimulus: a file in ImageDir
// named after it, the request's default image, or a blank screen.
func (s *ImageService) stimulusImage(req ImageRequest, stimulus string, p config.Profile) (image.Image, error) {
	if req.ImageDir != "" {
		stem := strings.TrimSuffix(stimulus, filepath.Ext(stimulus))
		candidates := []string{filepath.Join(req.ImageDir, stimulus)}
		for _, ext := range imageExtensions {
			candidates = append(candidates, filepath.Join(req.ImageDir, stem+ext))
		}
		for _, path := range candidates {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return render.Open(path)
			}
		}
	}
	if req.DefaultImage != "" {
		return render.Open(req.DefaultImage)
	}
	blank := image.NewRGBA(image.Rect(0, 0, p.ReferenceWidth, p.ReferenceHeight))
	draw.Draw(blank, blank.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return blank, nil
}
