package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// SceneOptions tunes scene change detection.
type SceneOptions struct {
	// Threshold is the similarity below which a frame counts as a change.
	Threshold float64
	// BlurSigma smooths frames before comparing them, hiding compression noise.
	BlurSigma float64
	// AnalysisWidth downsizes frames for comparison; 0 keeps full size.
	AnalysisWidth int
}

// DefaultSceneOptions matches a 21 pixel Gaussian kernel at full size.
var DefaultSceneOptions = SceneOptions{Threshold: 0.9, BlurSigma: 3.5}

// DetectSceneChanges walks the frames of src and saves the first frame and
// every frame whose similarity to its predecessor falls below the threshold
// as <dir>/frame_<n>.png, n being the frame number.
func DetectSceneChanges(ctx context.Context, src FrameSource, fps float64, dir string, opts SceneOptions) ([]stream.FrameArtifact, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultSceneOptions.Threshold
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frame folder: %w", err)
	}

	var (
		artifacts []stream.FrameArtifact
		prev      *Plane
		start     = time.Now()
	)
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return artifacts, fmt.Errorf("failed to decode frame %d: %w", n, err)
		}

		cur := Luma(img, opts.BlurSigma, opts.AnalysisWidth)
		changed := prev == nil
		if !changed {
			changed = SSIM(prev, cur) < opts.Threshold
		}
		prev = cur
		if !changed {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("frame_%d.png", n))
		if err := imaging.Save(img, path); err != nil {
			return artifacts, fmt.Errorf("failed to save frame %d: %w", n, err)
		}
		artifacts = append(artifacts, stream.FrameArtifact{
			Frame:     n,
			Timestamp: time.Duration(math.Round(float64(n) / fps * float64(time.Second))),
			Path:      path,
		})
	}

	internal.DefaultLogger.Info("[Video] %d scene frames saved to %s in %s", len(artifacts), dir, time.Since(start).Round(time.Millisecond))
	return artifacts, nil
}

// ExtractScenes probes a video, decodes it and saves its scene frames.
func (t Tools) ExtractScenes(ctx context.Context, path, dir string, opts SceneOptions) (*Info, []stream.FrameArtifact, error) {
	info, err := t.Probe(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	src, err := t.OpenFrames(ctx, path, info)
	if err != nil {
		return info, nil, err
	}
	artifacts, err := DetectSceneChanges(ctx, src, info.FPS, dir, opts)
	closeErr := src.Close()
	if err != nil {
		return info, artifacts, err
	}
	if closeErr != nil {
		return info, artifacts, fmt.Errorf("ffmpeg: %w", closeErr)
	}
	return info, artifacts, nil
}
