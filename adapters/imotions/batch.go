package imotions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
)

// FileResult is the outcome of cleaning one export in a batch.
type FileResult struct {
	Path        string
	Participant core.ParticipantID
	Output      string
	Stream      *stream.CleanedStream
	Err         error
}

// CleanDir cleans every CSV export in inDir and writes the cleaned files to
// outDir. Files are independent, so up to workers of them are cleaned at
// once; a failing file is reported in its result and does not stop the rest.
// Exports naming the same participant would write the same cleaned file, so
// all of them fail with ErrDuplicateInput and none is cleaned.
func (c *Cleaner) CleanDir(ctx context.Context, inDir, outDir string, schema Schema, workers int64) ([]FileResult, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", inDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(inDir, entry.Name()))
	}
	sort.Strings(paths)

	results := make([]FileResult, len(paths))
	byParticipant := make(map[core.ParticipantID][]string, len(paths))
	for i, path := range paths {
		results[i] = FileResult{Path: path, Participant: core.ParticipantFromFilename(path)}
		byParticipant[results[i].Participant] = append(byParticipant[results[i].Participant], filepath.Base(path))
	}
	for i := range results {
		if names := byParticipant[results[i].Participant]; len(names) > 1 {
			results[i].Err = fmt.Errorf("%w: %s from %s", core.ErrDuplicateInput, results[i].Participant, strings.Join(names, ", "))
			c.logger.Error("[Cleaner] %s: %v", results[i].Path, results[i].Err)
		}
	}

	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	var wg sync.WaitGroup

	for i := range results {
		if results[i].Err != nil {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(results); j++ {
				if results[j].Err == nil {
					results[j].Err = err
				}
			}
			break
		}
		wg.Add(1)
		go func(res *FileResult) {
			defer wg.Done()
			defer sem.Release(1)
			res.Stream, res.Output, res.Err = c.cleanFile(res.Path, res.Participant, outDir, schema)
			if res.Err != nil {
				c.logger.Error("[Cleaner] %s: %v", res.Path, res.Err)
			}
		}(&results[i])
	}
	wg.Wait()

	c.logger.Info("[Cleaner] cleaned %d exports from %s", len(results), inDir)
	return results, nil
}

func (c *Cleaner) cleanFile(path string, participant core.ParticipantID, outDir string, schema Schema) (*stream.CleanedStream, string, error) {
	raw, err := NewDataReader(path).ReadRaw()
	if err != nil {
		return nil, "", err
	}
	cleaned, err := c.Clean(raw, participant, schema)
	if err != nil {
		return nil, "", err
	}
	out, err := WriteCleanedFile(outDir, cleaned)
	if err != nil {
		return cleaned, "", err
	}
	return cleaned, out, nil
}
