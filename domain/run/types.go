package run

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"neuropeaks/domain/core"
)

// Kind is the experiment type a run processes.
type Kind string

const (
	KindVideo   Kind = "video"
	KindWebsite Kind = "website"
	KindImage   Kind = "image"
)

// ParseKind validates an experiment kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindVideo, KindWebsite, KindImage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown experiment kind %q", s)
	}
}

// Fingerprint identifies a run by what went into it, so reruns over the
// same recordings and settings can be recognised.
type Fingerprint struct {
	Inputs       map[string]core.Hash `json:"inputs"` // role -> content hash
	SettingsHash core.Hash            `json:"settings_hash"`
	CodeVersion  string               `json:"code_version"`
	Fingerprint  core.Hash            `json:"fingerprint"` // Hash of all above
}

// NewFingerprint combines input hashes, settings hash and code version.
func NewFingerprint(inputs map[string]core.Hash, settings core.Hash, codeVersion string) Fingerprint {
	return Fingerprint{
		Inputs:       inputs,
		SettingsHash: settings,
		CodeVersion:  codeVersion,
		Fingerprint:  computeFingerprint(inputs, settings, codeVersion),
	}
}

// computeFingerprint hashes a deterministic rendering of the inputs
func computeFingerprint(inputs map[string]core.Hash, settings core.Hash, codeVersion string) core.Hash {
	roles := make([]string, 0, len(inputs))
	for role := range inputs {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var b strings.Builder
	for _, role := range roles {
		fmt.Fprintf(&b, "input:%s=%s|", role, inputs[role])
	}
	fmt.Fprintf(&b, "settings:%s|code:%s", settings, codeVersion)
	return core.NewHash([]byte(b.String()))
}

// HashFile returns the SHA-256 of a file's content.
func HashFile(path string) (core.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", core.NewNotFoundError("input", path)
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return core.Hash(hex.EncodeToString(h.Sum(nil))), nil
}
