package web

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"neuropeaks/domain/core"
	"neuropeaks/internal"
)

// Page is the rendered state of a URL.
type Page struct {
	PNG  []byte // full-page screenshot
	HTML string // document source after load
}

// Capturer renders web pages
type Capturer interface {
	Capture(ctx context.Context, url string) (*Page, error)
}

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	ExecPath string // browser binary, empty to let chromedp find one
	Width    int
	Height   int
}

// ChromeCapturer renders pages in headless Chrome
type ChromeCapturer struct {
	opts ChromeOptions
}

// NewChromeCapturer creates a capturer with a window of the given size.
func NewChromeCapturer(opts ChromeOptions) *ChromeCapturer {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	return &ChromeCapturer{opts: opts}
}

// Capture loads url in a fresh browser and screenshots the whole document.
func (c *ChromeCapturer) Capture(ctx context.Context, url string) (*Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(c.opts.Width, c.opts.Height),
	)
	if c.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	page := &Page{}
	start := time.Now()
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.FullScreenshot(&page.PNG, 100),
		chromedp.OuterHTML("html", &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", url, err)
	}
	internal.DefaultLogger.Info("[Capture] %s loaded in %s", url, time.Since(start).Round(time.Millisecond))
	return page, nil
}

// RetryPolicy bounds page capture. Attempts are made back to back.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration // per attempt
}

// DefaultRetryPolicy allows five one-minute attempts.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Timeout: 60 * time.Second}

// CaptureWithRetry captures url, retrying failed or timed out attempts. When
// every attempt fails the last failure is returned as a capture error.
// Cancelling ctx stops the retries.
func CaptureWithRetry(ctx context.Context, c Capturer, url string, policy RetryPolicy) (*Page, error) {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultRetryPolicy.Attempts
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryPolicy.Timeout
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		page, err := c.Capture(attemptCtx, url)
		cancel()
		if err == nil {
			return page, nil
		}
		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			internal.DefaultLogger.Warn("[Capture] %s: loading took longer than %s, retrying (%d/%d)", url, policy.Timeout, attempt, policy.Attempts)
		} else {
			internal.DefaultLogger.Warn("[Capture] %s: attempt %d/%d failed: %v", url, attempt, policy.Attempts, err)
		}
		if ctx.Err() != nil {
			return nil, core.NewCaptureError(url, attempt, ctx.Err())
		}
	}
	return nil, core.NewCaptureError(url, policy.Attempts, lastErr)
}
