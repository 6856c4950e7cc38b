// Package session holds the state of pipeline runs: what was produced, what
// went wrong and where a viewer is in the list of rendered heatmaps.
package session

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"neuropeaks/domain/core"
	"neuropeaks/domain/run"
	"neuropeaks/domain/stream"
)

// Status of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Session is one pipeline run. It replaces the window-global state of a
// desktop tool: every run gets its own, and runs never share one.
type Session struct {
	mu sync.RWMutex

	id          core.RunID
	kind        run.Kind
	experiment  string
	participant core.ParticipantID
	profiles    []string
	outputDir   string

	status     Status
	err        string
	startedAt  time.Time
	finishedAt time.Time

	warnings  []string
	peaks     []stream.PeakRecord
	artifacts []string
	heatmaps  []string
	cursor    int
	aligned   map[string]*stream.AlignedFrame
	manifest  *run.Manifest
}

// Summary is a point-in-time copy of a session, safe to encode.
type Summary struct {
	RunID       core.RunID          `json:"run_id"`
	Kind        run.Kind            `json:"kind"`
	Experiment  string              `json:"experiment"`
	Participant core.ParticipantID  `json:"participant"`
	Profiles    []string            `json:"profiles"`
	OutputDir   string              `json:"output_dir"`
	Status      Status              `json:"status"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at,omitempty"`
	Warnings    []string            `json:"warnings"`
	Peaks       []stream.PeakRecord `json:"peaks"`
	Artifacts   []string            `json:"artifacts"`
	Heatmaps    []string            `json:"heatmaps"`
	Fingerprint core.Hash           `json:"fingerprint,omitempty"`
}

// New starts a session writing under <root>/<experiment>/<participant>.
func New(kind run.Kind, experiment string, participant core.ParticipantID, profiles []string, root string) (*Session, error) {
	if err := validName("experiment", experiment); err != nil {
		return nil, err
	}
	if err := validName("participant", string(participant)); err != nil {
		return nil, err
	}
	return &Session{
		id:          core.NewRunID(),
		kind:        kind,
		experiment:  experiment,
		participant: participant,
		profiles:    profiles,
		outputDir:   filepath.Join(root, experiment, string(participant)),
		status:      StatusRunning,
		startedAt:   time.Now(),
	}, nil
}

// validName rejects names that would escape the experiments folder.
func validName(what, name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("invalid %s name %q", what, name)
	}
	return nil
}

func (s *Session) ID() core.RunID { return s.id }

func (s *Session) Kind() run.Kind { return s.kind }

// OutputDir is the experiments/<exp>/<participant> folder of the run.
func (s *Session) OutputDir() string { return s.outputDir }

// Warn records a recoverable problem.
func (s *Session) Warn(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// AddWarnings records warnings produced elsewhere, e.g. by cleaning.
func (s *Session) AddWarnings(warnings []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, warnings...)
}

// SetPeaks replaces the peaks, e.g. once artifacts are attached.
func (s *Session) SetPeaks(peaks []stream.PeakRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peaks = peaks
}

// AddArtifact records a file the run wrote.
func (s *Session) AddArtifact(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, path)
}

// AddHeatmap records a rendered heatmap; it is also an artifact.
func (s *Session) AddHeatmap(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heatmaps = append(s.heatmaps, path)
	s.artifacts = append(s.artifacts, path)
}

// SetAligned keeps the aligned frame of one signal group, replacing an
// earlier frame of the same group.
func (s *Session) SetAligned(group string, aligned *stream.AlignedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aligned == nil {
		s.aligned = make(map[string]*stream.AlignedFrame)
	}
	s.aligned[group] = aligned
}

// Aligned returns the aligned frame of a group, nil before its alignment.
func (s *Session) Aligned(group string) *stream.AlignedFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aligned[group]
}

// AlignedGroups lists the groups with an aligned frame, sorted.
func (s *Session) AlignedGroups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]string, 0, len(s.aligned))
	for g := range s.aligned {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// SetManifest attaches the run manifest.
func (s *Session) SetManifest(m *run.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = m
}

// Finish closes the session; a nil error marks success.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = time.Now()
	if err != nil {
		s.status = StatusFailed
		s.err = err.Error()
		return
	}
	s.status = StatusSucceeded
}

// Peaks returns a copy of the extracted peaks.
func (s *Session) Peaks() []stream.PeakRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]stream.PeakRecord(nil), s.peaks...)
}

// Current returns the heatmap being viewed.
func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.heatmaps) == 0 {
		return "", false
	}
	return s.heatmaps[s.cursor], true
}

// Next moves to the following heatmap and returns it. At the last heatmap
// the cursor stays put and false is returned.
func (s *Session) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor+1 >= len(s.heatmaps) {
		return "", false
	}
	s.cursor++
	return s.heatmaps[s.cursor], true
}

// Prev moves to the preceding heatmap; at the first one it returns false.
func (s *Session) Prev() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == 0 || len(s.heatmaps) == 0 {
		return "", false
	}
	s.cursor--
	return s.heatmaps[s.cursor], true
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{
		RunID:       s.id,
		Kind:        s.kind,
		Experiment:  s.experiment,
		Participant: s.participant,
		Profiles:    append([]string(nil), s.profiles...),
		OutputDir:   s.outputDir,
		Status:      s.status,
		Error:       s.err,
		StartedAt:   s.startedAt,
		FinishedAt:  s.finishedAt,
		Warnings:    append([]string{}, s.warnings...),
		Peaks:       append([]stream.PeakRecord{}, s.peaks...),
		Artifacts:   append([]string{}, s.artifacts...),
		Heatmaps:    append([]string{}, s.heatmaps...),
	}
	if s.manifest != nil {
		sum.Fingerprint = s.manifest.Fingerprint.Fingerprint
	}
	return sum
}
