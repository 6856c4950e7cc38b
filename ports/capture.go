package ports

import (
	"context"

	"neuropeaks/adapters/web"
)

// CapturePort renders a web page to a full-length screenshot.
type CapturePort interface {
	Capture(ctx context.Context, url string) (*web.Page, error)
}
