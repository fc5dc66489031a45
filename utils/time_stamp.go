package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamps inside the pipeline are float64 seconds since the Unix epoch.
// These helpers convert at the boundaries: config, CSV files, logs.

// TimeToEpoch converts t to epoch seconds.
func TimeToEpoch(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseEpoch accepts an RFC3339 timestamp, a bare date or datetime (UTC),
// or a plain number of epoch seconds.
func ParseEpoch(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), fmt.Errorf("empty timestamp")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return TimeToEpoch(t), nil
		}
	}
	return math.NaN(), fmt.Errorf("unrecognised timestamp %q", s)
}

// OutputName returns the base name of a variant's output files:
//
//	<deployment>-<variant>
func OutputName(deployment, variant string) string {
	return fmt.Sprintf("%s-%s", deployment, variant)
}
