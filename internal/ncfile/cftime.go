package ncfile

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var refLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// DecodeTimes converts numeric CF time values with units of the form
// "<unit> since <reference>" to UTC times. NaN values decode to the zero
// time.
func DecodeTimes(values []float64, units string) ([]time.Time, error) {
	unit, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out[i] = ref.Add(time.Duration(math.Round(v * float64(unit))))
	}
	return out, nil
}

// ParseTimeUnits splits CF time units into the step duration and the
// reference time.
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("time units %q: expected \"<unit> since <reference>\"", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	case "milliseconds", "millisecond", "msec", "ms":
		step = time.Millisecond
	default:
		return 0, time.Time{}, fmt.Errorf("time units %q: unsupported unit %q", units, parts[0])
	}

	refText := strings.TrimSpace(parts[1])
	refText = strings.TrimSuffix(refText, " UTC")
	for _, layout := range refLayouts {
		if ref, err := time.Parse(layout, refText); err == nil {
			return step, ref.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: cannot parse reference %q", units, refText)
}
