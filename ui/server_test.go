package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neuropeaks/app"
	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
	"neuropeaks/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockVideoRunner struct {
	mock.Mock
}

func (m *MockVideoRunner) Run(ctx context.Context, req app.VideoPeaksRequest) (*session.Session, error) {
	args := m.Called(ctx, req)
	sess, _ := args.Get(0).(*session.Session)
	return sess, args.Error(1)
}

type MockWebsiteRunner struct {
	mock.Mock
}

func (m *MockWebsiteRunner) Run(ctx context.Context, req app.WebsiteRequest) (*session.Session, error) {
	args := m.Called(ctx, req)
	sess, _ := args.Get(0).(*session.Session)
	return sess, args.Error(1)
}

type testServer struct {
	*Server
	root    string
	video   *MockVideoRunner
	website *MockWebsiteRunner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	artifacts, err := session.NewArtifactStore(root)
	require.NoError(t, err)
	video, website := new(MockVideoRunner), new(MockWebsiteRunner)
	srv := NewServer(Options{
		Video:     video,
		Website:   website,
		Artifacts: artifacts,
		Logger:    internal.NewNopLogger(),
	})
	return &testServer{Server: srv, root: root, video: video, website: website}
}

// finishedSession fakes a completed website run with two heatmaps on disk.
func (ts *testServer) finishedSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(run.KindWebsite, "shop", "P07", []string{"gaze"}, ts.root)
	require.NoError(t, err)
	for _, name := range []string{"a.png", "b.png"} {
		path := filepath.Join(sess.OutputDir(), "heatmaps", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("png:"+name), 0o644))
		sess.AddHeatmap(path)
	}
	sess.SetPeaks([]stream.PeakRecord{{Signal: "Joy", Rank: 1, Magnitude: 0.9, Timestamp: time.Unix(0, 0).UTC()}})
	sess.Finish(nil)
	return sess
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestWebsiteRun_StoresSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.finishedSession(t)
	req := app.WebsiteRequest{Experiment: "shop", LogPath: "log.csv", ExportPath: "P07.csv"}
	ts.website.On("Run", mock.Anything, req).Return(sess, nil).Once()

	w := ts.do(t, http.MethodPost, "/api/runs/website", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp RunResponse
	decode(t, w, &resp)
	assert.Equal(t, sess.ID(), resp.RunID)
	assert.Equal(t, []string{"shop/P07/heatmaps/a.png", "shop/P07/heatmaps/b.png"}, resp.HeatmapKeys)

	got, err := ts.store.Get(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RunsTotal.WithLabelValues("website", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.PeaksTotal.WithLabelValues("Joy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.HeatmapsTotal.WithLabelValues("website")))
	ts.website.AssertExpectations(t)
}

func TestVideoRun_ValidatesBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/runs/video", map[string]string{"experiment": "exp1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "INVALID_INPUT", body["error"])
	ts.video.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestVideoRun_FailureKeepsSession(t *testing.T) {
	ts := newTestServer(t)
	sess, err := session.New(run.KindVideo, "exp1", "P01", []string{"emotion"}, ts.root)
	require.NoError(t, err)
	failure := core.NewAlignmentError("video has no frames")
	sess.Finish(failure)

	req := app.VideoPeaksRequest{Experiment: "exp1", ExportPath: "P01.csv", VideoPath: "clip.mp4"}
	ts.video.On("Run", mock.Anything, req).Return(sess, failure).Once()

	w := ts.do(t, http.MethodPost, "/api/runs/video", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "ALIGNMENT_ERROR", body["error"])
	assert.Equal(t, sess.ID().String(), body["run_id"])

	w = ts.do(t, http.MethodGet, "/api/runs/"+sess.ID().String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp RunResponse
	decode(t, w, &resp)
	assert.Equal(t, session.StatusFailed, resp.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RunsTotal.WithLabelValues("video", "failed")))
}

func TestImageRun_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/runs/image", app.ImageRequest{Experiment: "x", ExportPath: "y"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetRun_Errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/runs/"+core.NewRunID().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestListAndPeaks(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.finishedSession(t)
	ts.store.Put(sess)

	w := ts.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []session.Summary `json:"runs"`
	}
	decode(t, w, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, sess.ID(), list.Runs[0].RunID)

	w = ts.do(t, http.MethodGet, "/api/runs/"+sess.ID().String()+"/peaks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var peaks struct {
		Peaks []stream.PeakRecord `json:"peaks"`
	}
	decode(t, w, &peaks)
	require.Len(t, peaks.Peaks, 1)
	assert.Equal(t, "Joy", peaks.Peaks[0].Signal)
}

func TestHeatmapNavigation(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.finishedSession(t)
	ts.store.Put(sess)
	base := "/api/runs/" + sess.ID().String() + "/heatmaps/"

	steps := []struct {
		nav   string
		key   string
		moved bool
	}{
		{"current", "shop/P07/heatmaps/a.png", true},
		{"prev", "shop/P07/heatmaps/a.png", false},
		{"next", "shop/P07/heatmaps/b.png", true},
		{"next", "shop/P07/heatmaps/b.png", false},
		{"prev", "shop/P07/heatmaps/a.png", true},
	}
	for _, step := range steps {
		w := ts.do(t, http.MethodGet, base+step.nav, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp HeatmapResponse
		decode(t, w, &resp)
		assert.Equal(t, step.key, resp.Key, step.nav)
		assert.Equal(t, step.moved, resp.Moved, step.nav)
		assert.True(t, strings.HasSuffix(resp.URL, "artifact?path="+url.QueryEscape(step.key)))
	}
}

func TestHeatmapNavigation_NoHeatmaps(t *testing.T) {
	ts := newTestServer(t)
	sess, err := session.New(run.KindVideo, "exp1", "P01", nil, ts.root)
	require.NoError(t, err)
	ts.store.Put(sess)

	w := ts.do(t, http.MethodGet, "/api/runs/"+sess.ID().String()+"/heatmaps/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArtifact(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.finishedSession(t)
	ts.store.Put(sess)
	other, err := session.New(run.KindWebsite, "shop", "P08", nil, ts.root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(other.OutputDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(other.OutputDir(), "x.png"), []byte("other"), 0o644))

	base := "/api/runs/" + sess.ID().String() + "/artifact?path="
	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"own heatmap", "shop/P07/heatmaps/b.png", http.StatusOK},
		{"missing file", "shop/P07/heatmaps/c.png", http.StatusNotFound},
		{"other run", "shop/P08/x.png", http.StatusNotFound},
		{"traversal", "../secret", http.StatusBadRequest},
		{"no path", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, base+url.QueryEscape(tt.key), nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, "png:b.png", w.Body.String())
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHeatmapURL_EscapesKey(t *testing.T) {
	ts := newTestServer(t)
	sess, err := session.New(run.KindImage, "pics", "P09", []string{"image"}, ts.root)
	require.NoError(t, err)
	path := filepath.Join(sess.OutputDir(), "images", "beach #1 & co.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("png:beach"), 0o644))
	sess.AddHeatmap(path)
	sess.Finish(nil)
	ts.store.Put(sess)

	w := ts.do(t, http.MethodGet, "/api/runs/"+sess.ID().String()+"/heatmaps/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HeatmapResponse
	decode(t, w, &resp)
	assert.Equal(t, "pics/P09/images/beach #1 & co.png", resp.Key)
	assert.NotContains(t, resp.URL, "#")
	assert.NotContains(t, resp.URL, " ")

	w = ts.do(t, http.MethodGet, resp.URL, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "png:beach", w.Body.String())
}

func TestRunsAreSerialized(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.finishedSession(t)

	running := make(chan struct{})
	release := make(chan struct{})
	var active, maxActive int
	ts.website.On("Run", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		active++
		if active > maxActive {
			maxActive = active
		}
		select {
		case running <- struct{}{}:
		default:
		}
		<-release
		active--
	}).Return(sess, nil)

	req := app.WebsiteRequest{Experiment: "shop", LogPath: "log.csv", ExportPath: "P07.csv"}
	done := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- ts.do(t, http.MethodPost, "/api/runs/website", req).Code }()
	}
	<-running
	close(release)
	assert.Equal(t, http.StatusCreated, <-done)
	assert.Equal(t, http.StatusCreated, <-done)
	assert.Equal(t, 1, maxActive)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.metrics.ObserveRun("video", nil, errors.New("boom"), time.Second)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `neuropeaks_runs_total{kind="video",status="failed"} 1`)
}
