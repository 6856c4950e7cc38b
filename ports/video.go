package ports

import (
	"context"

	"neuropeaks/adapters/video"
	"neuropeaks/domain/stream"
)

// VideoPort probes recordings and saves the frames where the scene changes.
type VideoPort interface {
	Probe(ctx context.Context, path string) (*video.Info, error)
	ExtractScenes(ctx context.Context, path, dir string, opts video.SceneOptions) (*video.Info, []stream.FrameArtifact, error)
}
