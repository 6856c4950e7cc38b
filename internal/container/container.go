package container

import (
	"context"
	"fmt"

	"neuropeaks/adapters/video"
	"neuropeaks/adapters/web"
	"neuropeaks/app"
	"neuropeaks/internal"
	"neuropeaks/internal/config"
	"neuropeaks/internal/session"
	"neuropeaks/ui"
)

// sessionLimit bounds how many finished runs the API remembers.
const sessionLimit = 200

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config   *config.Config
	Logger   *internal.Logger
	Profiles map[string]config.Profile
	Pipeline app.PipelineConfig

	// External tools
	VideoTools video.Tools
	Capturer   *web.ChromeCapturer

	// Pipelines
	VideoPeaks *app.VideoPeaksService
	Website    *app.WebsiteService
	Images     *app.ImageService

	// Presentation
	Sessions  *session.Store
	Artifacts *session.ArtifactStore
	Metrics   *ui.Metrics
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		Logger: internal.NewConfiguredLogger(cfg.Log.Level, cfg.Log.Format),
	}
	internal.DefaultLogger = c.Logger

	if err := c.initProfiles(); err != nil {
		return nil, err
	}
	c.initPipelines()
	return c, nil
}

func (c *Container) initProfiles() error {
	profiles, err := config.LoadProfiles(c.Config.Paths.ProfilesFile)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	c.Profiles = profiles
	source := c.Config.Paths.ProfilesFile
	if source == "" {
		source = "built-in defaults"
	}
	c.Logger.Info("[Container] profiles %v from %s", config.ProfileNames(profiles), source)
	return nil
}

func (c *Container) initPipelines() {
	c.Pipeline = app.NewPipelineConfig(c.Config, c.Profiles)
	c.VideoTools = video.Tools{FFprobe: c.Config.Video.FFprobeBin, FFmpeg: c.Config.Video.FFmpegBin}
	c.Capturer = web.NewChromeCapturer(web.ChromeOptions{
		Width:  c.Config.Capture.WindowWidth,
		Height: c.Config.Capture.WindowHeight,
	})

	c.VideoPeaks = app.NewVideoPeaksService(c.Pipeline, c.VideoTools, c.Logger)
	c.Website = app.NewWebsiteService(c.Pipeline, c.Capturer, c.Logger)
	c.Images = app.NewImageService(c.Pipeline, c.Logger)
}

// InitPresentation prepares the session store, the artifact store over the
// experiments folder and the metrics registry.
func (c *Container) InitPresentation() error {
	artifacts, err := session.NewArtifactStore(c.Config.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}
	c.Artifacts = artifacts
	c.Sessions = session.NewStore(sessionLimit)
	c.Metrics = ui.NewMetrics()
	return nil
}

// Server builds the presentation API over the container's services.
func (c *Container) Server() (*ui.Server, error) {
	if c.Artifacts == nil {
		if err := c.InitPresentation(); err != nil {
			return nil, err
		}
	}
	return ui.NewServer(ui.Options{
		Video:     c.VideoPeaks,
		Website:   c.Website,
		Images:    c.Images,
		Store:     c.Sessions,
		Artifacts: c.Artifacts,
		Metrics:   c.Metrics,
		Logger:    c.Logger,
	}), nil
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	_ = c.Logger.Sync()
	return nil
}
