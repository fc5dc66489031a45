package models

import (
	"math"
	"strconv"
	"time"
)

// ─── shared formatting helpers (package-private) ────────────────────────

func itoa(v int) string { return strconv.Itoa(v) }

// ftoa renders missing (NaN) values as empty cells.
func ftoa(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// ttoa renders epoch seconds as an RFC3339 UTC timestamp with nanoseconds.
func ttoa(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return ""
	}
	whole, frac := math.Modf(sec)
	ns := int64(math.Round(frac * 1e9))
	return time.Unix(int64(whole), ns).UTC().Format(time.RFC3339Nano)
}

// FormatTime renders epoch seconds the way every output file does.
func FormatTime(sec float64) string { return ttoa(sec) }

// CSVRowWriter is the interface every persisted record must satisfy.
type CSVRowWriter interface {
	CSVHeader() []string
	CSVRow() []string
}

// IsAssigned reports whether a per-sample profile_index value denotes a real
// profile: strictly positive and integral.
func IsAssigned(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && p == math.Trunc(p)
}
