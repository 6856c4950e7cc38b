package ui

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"neuropeaks/app"
	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/internal/errors"
	"neuropeaks/internal/session"
)

// RunResponse is a session summary with its heatmaps as artifact keys.
type RunResponse struct {
	session.Summary
	HeatmapKeys []string `json:"heatmap_keys,omitempty"`
}

// HeatmapResponse answers heatmap navigation.
type HeatmapResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
	// Moved is false when the cursor was already at the end it moved towards.
	Moved bool `json:"moved"`
}

func (s *Server) handleVideoRun(c *gin.Context) {
	var req app.VideoPeaksRequest
	if s.video == nil {
		respondUnavailable(c, run.KindVideo)
		return
	}
	if !bindRequest(c, &req) {
		return
	}
	s.startRun(c, run.KindVideo, func(ctx context.Context) (*session.Session, error) {
		return s.video.Run(ctx, req)
	})
}

func (s *Server) handleWebsiteRun(c *gin.Context) {
	var req app.WebsiteRequest
	if s.website == nil {
		respondUnavailable(c, run.KindWebsite)
		return
	}
	if !bindRequest(c, &req) {
		return
	}
	s.startRun(c, run.KindWebsite, func(ctx context.Context) (*session.Session, error) {
		return s.website.Run(ctx, req)
	})
}

func (s *Server) handleImageRun(c *gin.Context) {
	var req app.ImageRequest
	if s.images == nil {
		respondUnavailable(c, run.KindImage)
		return
	}
	if !bindRequest(c, &req) {
		return
	}
	s.startRun(c, run.KindImage, func(ctx context.Context) (*session.Session, error) {
		return s.images.Run(ctx, req)
	})
}

// startRun executes one run at a time. A run that got as far as opening a
// session is kept even when it fails, so its warnings and partial outputs
// stay inspectable.
func (s *Server) startRun(c *gin.Context, kind run.Kind, fn func(context.Context) (*session.Session, error)) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	sess, err := fn(c.Request.Context())
	elapsed := time.Since(start)

	var sum *session.Summary
	if sess != nil {
		s.store.Put(sess)
		snapshot := sess.Summary()
		sum = &snapshot
	}
	s.metrics.ObserveRun(string(kind), sum, err, elapsed)

	if err != nil {
		s.logger.Error("[API] %s run failed after %v: %v", kind, elapsed, err)
		body := errorBody(err)
		if sum != nil {
			body["run_id"] = sum.RunID
		}
		c.JSON(errors.HTTPStatus(err), body)
		return
	}
	s.logger.Info("[API] %s run %s finished in %v", kind, sum.RunID, elapsed)
	c.JSON(http.StatusCreated, s.runResponse(*sum))
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.store.List()})
}

func (s *Server) handleGetRun(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.runResponse(sess.Summary()))
}

func (s *Server) handleGetPeaks(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": sess.ID(), "peaks": sess.Peaks()})
}

type navigation int

const (
	navCurrent navigation = iota
	navNext
	navPrev
)

func (s *Server) handleHeatmap(nav navigation) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.session(c)
		if !ok {
			return
		}
		var (
			path  string
			moved bool
		)
		switch nav {
		case navNext:
			path, moved = sess.Next()
		case navPrev:
			path, moved = sess.Prev()
		}
		if !moved {
			var has bool
			if path, has = sess.Current(); !has {
				respondError(c, errors.NotFound("heatmap"))
				return
			}
		}
		key := s.artifactKey(path)
		c.JSON(http.StatusOK, HeatmapResponse{
			Key:   key,
			URL:   fmt.Sprintf("/api/runs/%s/artifact?path=%s", sess.ID(), url.QueryEscape(key)),
			Moved: moved || nav == navCurrent,
		})
	}
}

// handleArtifact serves a file a run wrote. Only keys inside the run's own
// output directory are served.
func (s *Server) handleArtifact(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if s.artifacts == nil {
		respondError(c, errors.ConfigInvalid("no artifact store configured"))
		return
	}
	key := c.Query("path")
	if key == "" {
		respondError(c, errors.InvalidInput("path is required"))
		return
	}
	path, err := s.artifacts.Path(key)
	if err != nil {
		respondError(c, errors.InvalidInput(err.Error()))
		return
	}
	if !within(sess.OutputDir(), path) {
		respondError(c, errors.NotFound("artifact "+key))
		return
	}

	ctx := c.Request.Context()
	info, err := s.artifacts.Stat(ctx, key)
	if err != nil {
		respondError(c, err)
		return
	}
	body, err := s.artifacts.Open(ctx, key)
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, body, nil)
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput(fmt.Sprintf("invalid run id %q", c.Param("id"))))
		return nil, false
	}
	sess, err := s.store.Get(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) runResponse(sum session.Summary) RunResponse {
	resp := RunResponse{Summary: sum}
	for _, h := range sum.Heatmaps {
		resp.HeatmapKeys = append(resp.HeatmapKeys, s.artifactKey(h))
	}
	return resp
}

// artifactKey turns a written path into a store key; without a store, or
// for paths outside it, the path itself is returned.
func (s *Server) artifactKey(path string) string {
	if s.artifacts == nil {
		return path
	}
	key, err := s.artifacts.Key(path)
	if err != nil {
		return path
	}
	return key
}

func bindRequest(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, errors.Wrap(errors.InvalidInput(err.Error()), "invalid request body"))
		return false
	}
	return true
}

func respondUnavailable(c *gin.Context, kind run.Kind) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   errors.CodeConfigInvalid,
		"message": fmt.Sprintf("%s runs are not configured", kind),
	})
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(errors.HTTPStatus(err), errorBody(err))
}

func errorBody(err error) gin.H {
	code := errors.GetCode(err)
	if code == "UNKNOWN" {
		code = errors.CodeInternalError
	}
	return gin.H{"error": code, "message": err.Error()}
}

func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
