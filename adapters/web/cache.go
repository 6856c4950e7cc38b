package web

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"neuropeaks/internal"
)

const (
	// ScreenshotFile is the name of a cached page screenshot.
	ScreenshotFile = "webpage_screenshot.png"
	// PageSourceFile holds the page HTML next to its screenshot.
	PageSourceFile = "webpage.html"
	// IndexFile lists the URL and screenshot of every resolved page.
	IndexFile = "screenshot_data.csv"
)

// NormalizeURL turns a URL into a cache key: the scheme is dropped and
// slashes become underscores.
func NormalizeURL(url string) string {
	key := strings.Replace(url, "https://", "", 1)
	key = strings.Replace(key, "http://", "", 1)
	return strings.ReplaceAll(key, "/", "_")
}

// CacheEntry is a resolved screenshot.
type CacheEntry struct {
	URL    string
	Path   string
	Cached bool // served without capturing
}

// ScreenshotCache stores one screenshot per URL under Root. A shared
// library folder, when set, is searched before capturing and receives every
// new capture. Entries are never invalidated.
type ScreenshotCache struct {
	Root     string
	Library  string
	capturer Capturer
	policy   RetryPolicy
	logger   *internal.Logger
}

// NewScreenshotCache creates a cache capturing misses with c.
func NewScreenshotCache(root, library string, c Capturer, policy RetryPolicy) *ScreenshotCache {
	return &ScreenshotCache{
		Root:     root,
		Library:  library,
		capturer: c,
		policy:   policy,
		logger:   internal.DefaultLogger,
	}
}

// Path returns where the screenshot of url is stored.
func (c *ScreenshotCache) Path(url string) string {
	return filepath.Join(c.Root, NormalizeURL(url), ScreenshotFile)
}

// Get returns the screenshot of url, capturing it on a miss.
func (c *ScreenshotCache) Get(ctx context.Context, url string) (CacheEntry, error) {
	entry := CacheEntry{URL: url, Path: c.Path(url)}
	if fileExists(entry.Path) {
		entry.Cached = true
		return entry, nil
	}
	if err := os.MkdirAll(filepath.Dir(entry.Path), 0o755); err != nil {
		return entry, fmt.Errorf("failed to create cache folder: %w", err)
	}

	if shared, ok := c.findInLibrary(url); ok {
		c.logger.Info("[ScreenshotCache] %s matched in library: %s", url, shared)
		if err := copyFile(shared, entry.Path); err != nil {
			return entry, err
		}
		entry.Cached = true
		return entry, nil
	}

	c.logger.Info("[ScreenshotCache] no screenshot of %s yet, loading the page", url)
	page, err := CaptureWithRetry(ctx, c.capturer, url, c.policy)
	if err != nil {
		return entry, err
	}
	if err := writePage(filepath.Dir(entry.Path), page); err != nil {
		return entry, err
	}
	if c.Library != "" {
		if err := writePage(filepath.Join(c.Library, NormalizeURL(url)), page); err != nil {
			c.logger.Warn("[ScreenshotCache] failed to share %s: %v", url, err)
		}
	}
	return entry, nil
}

// Resolve gets the screenshot of every URL in order and writes the index
// file under Root. The first failure stops the run.
func (c *ScreenshotCache) Resolve(ctx context.Context, urls []string) ([]CacheEntry, error) {
	entries := make([]CacheEntry, 0, len(urls))
	for _, url := range urls {
		entry, err := c.Get(ctx, url)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	if err := c.writeIndex(entries); err != nil {
		return entries, err
	}
	return entries, nil
}

// findInLibrary looks for a folder named after the key anywhere under the
// library that holds a screenshot.
func (c *ScreenshotCache) findInLibrary(url string) (string, bool) {
	if c.Library == "" {
		return "", false
	}
	key := NormalizeURL(url)
	direct := filepath.Join(c.Library, key, ScreenshotFile)
	if fileExists(direct) {
		return direct, true
	}

	var found string
	_ = filepath.WalkDir(c.Library, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == ScreenshotFile && filepath.Base(filepath.Dir(path)) == key {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found, found != ""
}

func (c *ScreenshotCache) writeIndex(entries []CacheEntry) error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create cache folder: %w", err)
	}
	f, err := os.Create(filepath.Join(c.Root, IndexFile))
	if err != nil {
		return fmt.Errorf("failed to create screenshot index: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{ColURL, ColImagePath})
	for _, e := range entries {
		_ = w.Write([]string{e.URL, e.Path})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write screenshot index: %w", err)
	}
	return f.Close()
}

func writePage(dir string, page *Page) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ScreenshotFile), page.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	if page.HTML != "" {
		if err := os.WriteFile(filepath.Join(dir, PageSourceFile), []byte(page.HTML), 0o644); err != nil {
			return fmt.Errorf("failed to save page source: %w", err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Join(fmt.Errorf("failed to copy %s", src), err)
	}
	return out.Close()
}
