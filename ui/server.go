package ui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"neuropeaks/app"
	"neuropeaks/internal"
	"neuropeaks/internal/session"
)

// VideoRunner runs video experiments
type VideoRunner interface {
	Run(ctx context.Context, req app.VideoPeaksRequest) (*session.Session, error)
}

// WebsiteRunner runs website experiments
type WebsiteRunner interface {
	Run(ctx context.Context, req app.WebsiteRequest) (*session.Session, error)
}

// ImageRunner runs image experiments
type ImageRunner interface {
	Run(ctx context.Context, req app.ImageRequest) (*session.Session, error)
}

// Options wires a Server. Nil runners leave their route answering 503.
type Options struct {
	Video     VideoRunner
	Website   WebsiteRunner
	Images    ImageRunner
	Store     *session.Store
	Artifacts *session.ArtifactStore
	Metrics   *Metrics
	Logger    *internal.Logger
}

// Server is the presentation API: it starts runs, keeps their sessions
// and serves what they wrote.
type Server struct {
	router    *gin.Engine
	video     VideoRunner
	website   WebsiteRunner
	images    ImageRunner
	store     *session.Store
	artifacts *session.ArtifactStore
	metrics   *Metrics
	logger    *internal.Logger

	// runs never overlap
	runMu sync.Mutex
}

// NewServer creates the server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = internal.DefaultLogger
	}
	if opts.Store == nil {
		opts.Store = session.NewStore(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	s := &Server{
		router:    gin.New(),
		video:     opts.Video,
		website:   opts.Website,
		images:    opts.Images,
		store:     opts.Store,
		artifacts: opts.Artifacts,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	s.router.Use(gin.Recovery(), requestLogger(s.logger), s.metrics.Middleware())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api/runs")
	{
		api.GET("", s.handleListRuns)
		api.POST("/video", s.handleVideoRun)
		api.POST("/website", s.handleWebsiteRun)
		api.POST("/image", s.handleImageRun)
		api.GET("/:id", s.handleGetRun)
		api.GET("/:id/peaks", s.handleGetPeaks)
		api.GET("/:id/heatmaps/current", s.handleHeatmap(navCurrent))
		api.GET("/:id/heatmaps/next", s.handleHeatmap(navNext))
		api.GET("/:id/heatmaps/prev", s.handleHeatmap(navPrev))
		api.GET("/:id/artifact", s.handleArtifact)
	}
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[API] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("[API] shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
