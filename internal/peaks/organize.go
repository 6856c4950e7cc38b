package peaks

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neuropeaks/domain/stream"
)

// EmotionsDir is the folder under a participant's output holding one
// sub-folder of peak frames per signal.
const EmotionsDir = "emotions"

// Organize copies each peak's artifact into <baseDir>/emotions/<signal>/
// and returns the peaks pointing at the copies. When signals are given only
// their peaks are organized. Other peaks are returned unchanged.
func Organize(peaks []stream.PeakRecord, baseDir string, signals ...string) ([]stream.PeakRecord, error) {
	only := make(map[string]bool, len(signals))
	for _, s := range signals {
		if s != "" {
			only[s] = true
		}
	}
	out := append([]stream.PeakRecord(nil), peaks...)
	for i, p := range out {
		if p.ArtifactPath == "" || (len(only) > 0 && !only[p.Signal]) {
			continue
		}
		dir := filepath.Join(baseDir, EmotionsDir, p.Signal)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		dst := filepath.Join(dir, filepath.Base(p.ArtifactPath))
		if err := copyFile(p.ArtifactPath, dst); err != nil {
			return nil, err
		}
		out[i].ArtifactPath = dst
	}
	return out, nil
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
