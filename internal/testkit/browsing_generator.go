package testkit

import (
	"math/rand"
	"strconv"
	"time"

	"neuropeaks/domain/stream"
)

// BrowsingHeader is the header line of a browsing log.
var BrowsingHeader = []string{"Time (UTC)", "Event", "Scroll Position", "Scroll Percentage", "Mouse X", "Mouse Y", "URL"}

// BrowsingGeneratorConfig configures the synthetic browsing log generator
type BrowsingGeneratorConfig struct {
	URLs          []string      `json:"urls"`
	EventsPerPage int           `json:"events_per_page"`
	Step          time.Duration `json:"step"`
	Start         time.Time     `json:"start"`
	PageHeight    float64       `json:"page_height"`
	Seed          int64         `json:"seed"`
}

// DefaultBrowsingConfig visits two pages of a shop, starting at the same
// instant as DefaultExportConfig's recording.
func DefaultBrowsingConfig() BrowsingGeneratorConfig {
	return BrowsingGeneratorConfig{
		URLs:          []string{"https://shop.example.com", "https://shop.example.com/cart"},
		EventsPerPage: 6,
		Step:          250 * time.Millisecond,
		Start:         time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
		PageHeight:    2400,
		Seed:          42,
	}
}

// BrowsingGenerator builds browsing logs
type BrowsingGenerator struct {
	config BrowsingGeneratorConfig
	rng    *rand.Rand
}

// NewBrowsingGenerator creates a new browsing log generator
func NewBrowsingGenerator(config BrowsingGeneratorConfig) *BrowsingGenerator {
	return &BrowsingGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate returns a browsing log with the header line first. Every page
// opens with a load event and then alternates scroll and mouse events.
// Scrolling only moves down the page, and the scroll columns are left empty
// on rows that do not scroll, as the logging extension writes them.
func (g *BrowsingGenerator) Generate() stream.RawTable {
	raw := stream.RawTable{append([]string(nil), BrowsingHeader...)}
	ts := g.config.Start
	for _, url := range g.config.URLs {
		percent := 0.0
		for i := 0; i < g.config.EventsPerPage; i++ {
			row := make([]string, len(BrowsingHeader))
			row[0] = ts.UTC().Format("2006-01-02T15:04:05.000Z")
			row[6] = url
			switch {
			case i == 0:
				row[1] = "load"
			case i%2 == 1:
				row[1] = "scroll"
				percent += (100 - percent) * (0.1 + 0.3*g.rng.Float64())
				row[2] = strconv.FormatFloat(percent/100*g.config.PageHeight, 'f', 0, 64)
				row[3] = strconv.FormatFloat(percent, 'f', 1, 64)
			default:
				row[1] = "mouse"
				row[4] = strconv.Itoa(g.rng.Intn(1280))
				row[5] = strconv.Itoa(g.rng.Intn(720))
			}
			raw = append(raw, row)
			ts = ts.Add(g.config.Step)
		}
	}
	return raw
}
