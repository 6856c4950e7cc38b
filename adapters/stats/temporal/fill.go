package temporal

import (
	"fmt"
	"math"
	"strings"

	"neuropeaks/domain/stream"
)

// FillStrategy defines how gaps (NaN) in a column are filled
type FillStrategy string

const (
	FillNone            FillStrategy = "none"     // Leave gaps as NaN
	FillForward         FillStrategy = "forward"  // Carry the last value forward
	FillBackward        FillStrategy = "backward" // Carry the next value backward
	FillForwardBackward FillStrategy = "forward_backward"
	FillZero            FillStrategy = "zero"
	FillLinear          FillStrategy = "linear" // Interpolate between neighbours, hold the last value at the tail
)

// FillPolicy is a strategy plus the longest run of consecutive gaps it may
// fill. Limit 0 means unlimited.
type FillPolicy struct {
	Strategy FillStrategy
	Limit    int
}

// ParseFillStrategy accepts the strategy names used in profiles.
func ParseFillStrategy(s string) (FillStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FillNone, nil
	case "forward", "ffill":
		return FillForward, nil
	case "backward", "bfill":
		return FillBackward, nil
	case "forward_backward", "ffill_bfill":
		return FillForwardBackward, nil
	case "zero":
		return FillZero, nil
	case "linear":
		return FillLinear, nil
	default:
		return "", fmt.Errorf("unknown fill strategy %q", s)
	}
}

// FillColumn returns a filled copy of values.
func FillColumn(values []float64, policy FillPolicy) []float64 {
	out := append([]float64(nil), values...)
	switch policy.Strategy {
	case FillForward:
		forwardFill(out, policy.Limit)
	case FillBackward:
		backwardFill(out, policy.Limit)
	case FillForwardBackward:
		forwardFill(out, policy.Limit)
		backwardFill(out, policy.Limit)
	case FillZero:
		constantFill(out, 0, policy.Limit)
	case FillLinear:
		linearFill(out, policy.Limit)
	}
	return out
}

// FillFrame fills the named numeric columns of a frame in place. An empty
// column list fills every numeric column.
func FillFrame(frame *stream.Frame, columns []string, policy FillPolicy) {
	if policy.Strategy == FillNone || policy.Strategy == "" {
		return
	}
	if len(columns) == 0 {
		columns = frame.Order
	}
	for _, name := range columns {
		if values, ok := frame.Numeric[name]; ok {
			frame.Numeric[name] = FillColumn(values, policy)
		}
	}
}

// FillTextForward carries the last non-empty value forward.
func FillTextForward(values []string) []string {
	out := append([]string(nil), values...)
	last := ""
	for i, v := range out {
		if v == "" {
			out[i] = last
		} else {
			last = v
		}
	}
	return out
}

func forwardFill(values []float64, limit int) {
	last, run := math.NaN(), 0
	for i, v := range values {
		if !math.IsNaN(v) {
			last, run = v, 0
			continue
		}
		run++
		if !math.IsNaN(last) && (limit <= 0 || run <= limit) {
			values[i] = last
		}
	}
}

func backwardFill(values []float64, limit int) {
	next, run := math.NaN(), 0
	for i := len(values) - 1; i >= 0; i-- {
		if v := values[i]; !math.IsNaN(v) {
			next, run = v, 0
			continue
		}
		run++
		if !math.IsNaN(next) && (limit <= 0 || run <= limit) {
			values[i] = next
		}
	}
}

func constantFill(values []float64, c float64, limit int) {
	run := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			run = 0
			continue
		}
		run++
		if limit <= 0 || run <= limit {
			values[i] = c
		}
	}
}

// linearFill interpolates interior gaps by position. Leading gaps stay
// NaN and trailing gaps hold the last value.
func linearFill(values []float64, limit int) {
	prev := -1
	for i := 0; i <= len(values); i++ {
		if i < len(values) && math.IsNaN(values[i]) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			for k := prev + 1; k < i; k++ {
				if limit > 0 && k-prev > limit {
					break
				}
				if i == len(values) {
					values[k] = values[prev]
					continue
				}
				frac := float64(k-prev) / float64(i-prev)
				values[k] = values[prev] + frac*(values[i]-values[prev])
			}
		}
		prev = i
	}
}
