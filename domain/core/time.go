package core

import (
	"math"
	"time"
)

// Timestamp represents a point in time with timezone awareness
type Timestamp time.Time

// Now returns the current timestamp
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Time returns the underlying time.Time
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero checks if the timestamp is zero
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// JSON marshaling for Timestamp
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).MarshalJSON()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var tm time.Time
	if err := tm.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = Timestamp(tm)
	return nil
}

// Millis converts a stream-local millisecond offset into a duration,
// keeping sub-millisecond precision.
func Millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}

// AtMillis places a stream-local millisecond offset on an absolute clock.
func AtMillis(origin time.Time, ms float64) time.Time {
	return origin.Add(Millis(ms))
}

// ToMillis is the inverse of AtMillis.
func ToMillis(origin, t time.Time) float64 {
	return float64(t.Sub(origin)) / float64(time.Millisecond)
}

// UnixOrigin is the origin used when an export carries no recording start;
// millisecond timestamps are then read as offsets from the Unix epoch.
var UnixOrigin = time.Unix(0, 0).UTC()
