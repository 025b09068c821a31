// Package timespan parses the compact duration tokens used for session and
// cookie lifetimes ("15m", "30d", "2w").
//
// Unlike time.ParseDuration, tokens carry exactly one integer and one unit,
// and the unit set includes days and weeks.
package timespan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// ErrFormat is returned for any token that does not match (\d+)(ms|s|m|h|d|w).
var ErrFormat = errors.New("invalid time span format, expected (\\d+)(ms|s|m|h|d|w)")

var tokenPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h|d|w)$`)

var units = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// TimeSpan is the structured form of a duration: a count of units.
type TimeSpan struct {
	Value int    `json:"value" yaml:"value"`
	Unit  string `json:"unit" yaml:"unit"`
}

// Duration converts the span, failing on unknown units, negative values and
// spans too long to represent.
func (t TimeSpan) Duration() (time.Duration, error) {
	unit, ok := units[t.Unit]
	if !ok || t.Value < 0 || int64(t.Value) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: {value: %d, unit: %q}", ErrFormat, t.Value, t.Unit)
	}
	return time.Duration(t.Value) * unit, nil
}

func (t TimeSpan) String() string {
	return strconv.Itoa(t.Value) + t.Unit
}

// Parse parses a compact token such as "15m" or "30d".
func Parse(s string) (time.Duration, error) {
	m := tokenPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrFormat, s)
	}
	return TimeSpan{Value: n, Unit: m[2]}.Duration()
}

// Duration is a time.Duration that unmarshals from either a compact token
// ("15m") or a structured span ({"value": 15, "unit": "m"}).
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		parsed, err := Parse(token)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var span TimeSpan
	if err := json.Unmarshal(data, &span); err != nil {
		return fmt.Errorf("%w: %s", ErrFormat, data)
	}
	parsed, err := span.Duration()
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration as a compact token using the largest unit
// that divides it exactly.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(Format(time.Duration(d)))
}

// Format renders a duration as a compact token. Durations that are not a
// whole number of milliseconds are truncated.
func Format(d time.Duration) string {
	for _, unit := range []string{"w", "d", "h", "m", "s"} {
		size := units[unit]
		if d >= size && d%size == 0 {
			return strconv.FormatInt(int64(d/size), 10) + unit
		}
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
