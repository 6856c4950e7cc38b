package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"neuropeaks/domain/core"
)

// ManifestFile is written into every run's output directory.
const ManifestFile = "run_manifest.json"

// Manifest records what a run was asked to do. It is written before any
// output so a failed run still documents its inputs.
type Manifest struct {
	RunID       core.RunID         `json:"run_id"`
	Kind        Kind               `json:"kind"`
	Experiment  string             `json:"experiment"`
	Participant core.ParticipantID `json:"participant"`
	Profiles    []string           `json:"profiles"`
	Inputs      map[string]string  `json:"inputs"` // role -> path
	Settings    map[string]any     `json:"settings"`
	Fingerprint Fingerprint        `json:"fingerprint"`
	CreatedAt   core.Timestamp     `json:"created_at"`
}

// NewManifest hashes every input file and fingerprints the run.
func NewManifest(
	runID core.RunID,
	kind Kind,
	experiment string,
	participant core.ParticipantID,
	profiles []string,
	inputs map[string]string,
	settings map[string]any,
	codeVersion string,
) (*Manifest, error) {
	hashes := make(map[string]core.Hash, len(inputs))
	for role, path := range inputs {
		if path == "" {
			continue
		}
		h, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		hashes[role] = h
	}

	return &Manifest{
		RunID:       runID,
		Kind:        kind,
		Experiment:  experiment,
		Participant: participant,
		Profiles:    profiles,
		Inputs:      inputs,
		Settings:    settings,
		Fingerprint: NewFingerprint(hashes, core.ComputeSettingsHash(settings), codeVersion),
		CreatedAt:   core.Now(),
	}, nil
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return fmt.Errorf("run manifest: run_id cannot be empty")
	}
	if _, err := ParseKind(string(m.Kind)); err != nil {
		return fmt.Errorf("run manifest: %w", err)
	}
	if m.Experiment == "" {
		return fmt.Errorf("run manifest: experiment cannot be empty")
	}
	if core.ID(m.Participant).IsEmpty() {
		return fmt.Errorf("run manifest: participant cannot be empty")
	}
	if m.Fingerprint.Fingerprint.IsEmpty() {
		return fmt.Errorf("run manifest: fingerprint not computed")
	}
	return nil
}

// Write saves the manifest as indented JSON in dir.
func (m *Manifest) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
