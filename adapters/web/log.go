package web

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"neuropeaks/adapters/stats/temporal"
	"neuropeaks/domain/core"
	"neuropeaks/domain/stream"
	"neuropeaks/internal"
)

// Columns of the browsing log, in file order after the time column.
const (
	ColEvent          = "Event"
	ColScrollPosition = "Scroll Position"
	ColScrollPercent  = "Scroll Percentage"
	ColMouseX         = "Mouse X"
	ColMouseY         = "Mouse Y"
	ColURL            = "URL"
	ColImagePath      = "Image_Path"
)

var logTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ReadLog reads a browsing log recorded alongside an eye tracking session.
func ReadLog(path string) (*stream.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("browsing log", path)
		}
		return nil, fmt.Errorf("failed to open browsing log: %w", err)
	}
	defer f.Close()
	return ParseLog(f, path)
}

// ParseLog parses a browsing log. The header line is skipped and columns are
// taken by position: time (UTC), event, scroll position, scroll percentage,
// mouse x, mouse y and URL. Rows without a readable time are dropped except
// the last one, which takes its predecessor's time.
func ParseLog(r io.Reader, name string) (*stream.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, core.NewParseError(name, err)
	}
	if len(records) < 2 {
		return nil, core.NewSchemaError(name, "browsing log has no rows")
	}

	var (
		times                             []time.Time
		events, urls                      []string
		position, percent, mouseX, mouseY []float64
		dropped                           int
	)
	body := records[1:]
	for i, rec := range body {
		field := func(k int) string {
			if k < len(rec) {
				return strings.TrimSpace(rec[k])
			}
			return ""
		}
		ts, ok := parseLogTime(field(0))
		if !ok && i < len(body)-1 {
			dropped++
			continue
		}
		times = append(times, ts)
		events = append(events, field(1))
		position = append(position, parseNumber(field(2)))
		percent = append(percent, parseNumber(field(3)))
		mouseX = append(mouseX, parseNumber(field(4)))
		mouseY = append(mouseY, parseNumber(field(5)))
		urls = append(urls, field(6))
	}
	if len(times) == 0 {
		return nil, core.NewSchemaError(name, "browsing log has no timed rows")
	}
	times = temporal.RepairTail(times)
	if times[len(times)-1].IsZero() {
		return nil, core.NewParseError(name, fmt.Errorf("no readable time in the last row"))
	}

	frame := stream.NewFrame(times)
	frame.SetText(ColEvent, events)
	frame.SetNumeric(ColScrollPosition, position)
	frame.SetNumeric(ColScrollPercent, percent)
	frame.SetNumeric(ColMouseX, mouseX)
	frame.SetNumeric(ColMouseY, mouseY)
	frame.SetText(ColURL, urls)

	internal.DefaultLogger.Info("[WebLog] %s: %d rows, %d without time dropped", name, frame.Len(), dropped)
	return frame, nil
}

func parseLogTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range logTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseNumber(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ApplyFillPolicy fills the gaps of a browsing log in place. The first gap
// in scroll percentage of every run of the same URL becomes 0, remaining
// gaps carry the last value forward. Scroll position and mouse coordinates
// are filled forward, then backward.
func ApplyFillPolicy(frame *stream.Frame) {
	if percent, ok := frame.Numeric[ColScrollPercent]; ok {
		urls := frame.Text[ColURL]
		out := append([]float64(nil), percent...)
		filled := false
		for i := range out {
			if i == 0 || (i < len(urls) && urls[i] != urls[i-1]) {
				filled = false
			}
			if math.IsNaN(out[i]) && !filled {
				out[i] = 0
				filled = true
			}
		}
		frame.Numeric[ColScrollPercent] = temporal.FillColumn(out, temporal.FillPolicy{Strategy: temporal.FillForward})
	}
	temporal.FillFrame(frame, []string{ColScrollPosition, ColMouseX, ColMouseY},
		temporal.FillPolicy{Strategy: temporal.FillForwardBackward})
}

// UniqueURLs lists the visited URLs in first-visit order.
func UniqueURLs(frame *stream.Frame) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range frame.Text[ColURL] {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// URLSegment is every row of a frame recorded on one URL.
type URLSegment struct {
	URL   string
	Frame *stream.Frame
}

// SplitByURL groups the rows of a frame by URL, in first-visit order.
func SplitByURL(frame *stream.Frame) []URLSegment {
	urls := frame.Text[ColURL]
	rows := make(map[string][]int)
	for i, u := range urls {
		if u != "" {
			rows[u] = append(rows[u], i)
		}
	}
	var out []URLSegment
	for _, u := range UniqueURLs(frame) {
		out = append(out, URLSegment{URL: u, Frame: frame.Select(rows[u])})
	}
	return out
}
