package profiling

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"neuropeaks/domain/stream"
)

// SignalProfile summarises the distribution of one signal over a run.
type SignalProfile struct {
	Signal   string  `json:"signal"`
	Group    string  `json:"group,omitempty"`
	Count    int     `json:"count"`
	Missing  int     `json:"missing"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess
	Outliers int     `json:"outliers"` // outside 1.5 IQR
}

// ProfileSignal describes the present values of a signal. Missing values
// are counted but otherwise ignored; a signal without values is an error.
func ProfileSignal(name string, values []float64) (SignalProfile, error) {
	p := SignalProfile{Signal: name}
	data := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			p.Missing++
			continue
		}
		data = append(data, v)
	}
	p.Count = len(data)
	if p.Count == 0 {
		return p, fmt.Errorf("signal %q has no values", name)
	}

	var err error
	if p.Mean, err = data.Mean(); err != nil {
		return p, err
	}
	if p.Min, err = data.Min(); err != nil {
		return p, err
	}
	if p.Max, err = data.Max(); err != nil {
		return p, err
	}
	if p.Median, err = data.Median(); err != nil {
		return p, err
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	p.Q25 = stat.Quantile(0.25, stat.Empirical, sorted, nil)
	p.Q75 = stat.Quantile(0.75, stat.Empirical, sorted, nil)
	if p.Count > 1 {
		if p.StdDev, err = data.StandardDeviationSample(); err != nil {
			return p, err
		}
	}
	if p.StdDev > 0 {
		p.Skewness = stat.Skew(data, nil)
		if p.Count > 3 {
			p.Kurtosis = stat.ExKurtosis(data, nil)
		}
	}
	p.Outliers = countOutliers(data, p.Q25, p.Q75)
	return p, nil
}

// ProfileFrame profiles every listed signal the frame holds, in order.
func ProfileFrame(frame *stream.Frame, group string, signals []string) []SignalProfile {
	var out []SignalProfile
	for _, name := range signals {
		values, ok := frame.Column(name)
		if !ok {
			continue
		}
		p, err := ProfileSignal(name, values)
		if err != nil {
			continue
		}
		p.Group = group
		out = append(out, p)
	}
	return out
}

// countOutliers uses the IQR rule.
func countOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lower, upper := q25-1.5*iqr, q75+1.5*iqr
	n := 0
	for _, x := range data {
		if x < lower || x > upper {
			n++
		}
	}
	return n
}

// Header is the column row of WriteCSV.
var Header = []string{"Group", "Signal", "Count", "Missing", "Mean", "StdDev", "Min", "Q25", "Median", "Q75", "Max", "Skewness", "Kurtosis", "Outliers"}

// WriteCSV writes one row per profile.
func WriteCSV(w io.Writer, profiles []SignalProfile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, p := range profiles {
		row := []string{
			p.Group, p.Signal, strconv.Itoa(p.Count), strconv.Itoa(p.Missing),
			f(p.Mean), f(p.StdDev), f(p.Min), f(p.Q25), f(p.Median), f(p.Q75), f(p.Max),
			f(p.Skewness), f(p.Kurtosis), strconv.Itoa(p.Outliers),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
