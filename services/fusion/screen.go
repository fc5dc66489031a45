package fusion

import (
	"math"
	"sort"

	"glider-processor/models"
)

// MaxValidTime is the sanity ceiling for timestamps (year 2172).
const MaxValidTime = 6.4e9

// DeepDropThreshold is the depth below which a row dropped for a missing
// required channel is worth a warning.
const DeepDropThreshold = 5.0

// ScreenReport lists every record removed by Screen, by input index.
type ScreenReport struct {
	NonFinite       []int
	AboveCeiling    []int
	BeforeMin       []int
	AllMissing      []int
	MissingRequired []int
	Duplicates      []int

	// DeepRequired counts MissingRequired rows whose depth was at or below
	// DeepDropThreshold.
	DeepRequired int
}

// Dropped returns the total number of removed records.
func (r ScreenReport) Dropped() int {
	return len(r.NonFinite) + len(r.AboveCeiling) + len(r.BeforeMin) +
		len(r.AllMissing) + len(r.MissingRequired) + len(r.Duplicates)
}

type screenConfig struct {
	minTime  float64
	required []string
	depth    string
	missing  []string
}

// ScreenOption customises Screen.
type ScreenOption func(*screenConfig)

// WithMinTime drops records strictly earlier than t.
func WithMinTime(t float64) ScreenOption {
	return func(c *screenConfig) { c.minTime = t }
}

// WithRequired drops records where any of the named channels is missing.
func WithRequired(names ...string) ScreenOption {
	return func(c *screenConfig) { c.required = append(c.required, names...) }
}

// WithDepth names the channel used to flag deep MissingRequired drops.
func WithDepth(name string) ScreenOption {
	return func(c *screenConfig) { c.depth = name }
}

// WithMissingOver restricts the all-missing test to the named channels.
// By default every data channel is considered.
func WithMissingOver(names ...string) ScreenOption {
	return func(c *screenConfig) { c.missing = append(c.missing, names...) }
}

// Screen removes invalid records and returns a dataset whose timestamps are
// finite, unique and non-decreasing. Duplicated timestamps keep the record
// that appeared first in the input. Screening already screened data is a
// no-op.
func Screen(ds *models.Dataset, opts ...ScreenOption) (*models.Dataset, ScreenReport, error) {
	cfg := screenConfig{minTime: math.Inf(-1)}
	for _, o := range opts {
		o(&cfg)
	}

	var rep ScreenReport
	if ds.Len() == 0 {
		return nil, rep, models.NewProcessingError(models.KindEmptyStream, "no records to screen").
			WithContext(ds.Deployment, ds.Variant)
	}

	var depth []float64
	if cfg.depth != "" {
		depth = ds.Values(cfg.depth)
	}

	keep := make([]int, 0, ds.Len())
	for i, t := range ds.Time {
		switch {
		case !isFinite(t):
			rep.NonFinite = append(rep.NonFinite, i)
		case t >= MaxValidTime:
			rep.AboveCeiling = append(rep.AboveCeiling, i)
		case t < cfg.minTime:
			rep.BeforeMin = append(rep.BeforeMin, i)
		case ds.MissingAt(i, cfg.missing...):
			rep.AllMissing = append(rep.AllMissing, i)
		case missingAny(ds, i, cfg.required):
			rep.MissingRequired = append(rep.MissingRequired, i)
			if depth != nil && depth[i] >= DeepDropThreshold {
				rep.DeepRequired++
			}
		default:
			keep = append(keep, i)
		}
	}

	sort.SliceStable(keep, func(a, b int) bool { return ds.Time[keep[a]] < ds.Time[keep[b]] })

	rows := keep[:0:0]
	for j, i := range keep {
		if j > 0 && ds.Time[i] == ds.Time[keep[j-1]] {
			rep.Duplicates = append(rep.Duplicates, i)
			continue
		}
		rows = append(rows, i)
	}
	sort.Ints(rep.Duplicates)

	if len(rows) == 0 {
		return nil, rep, models.NewProcessingError(models.KindEmptyStream,
			"all %d records removed by screening", ds.Len()).
			At(0, ds.Time[0]).
			WithContext(ds.Deployment, ds.Variant)
	}
	if rep.Dropped() == 0 {
		return ds, rep, nil
	}
	return ds.Select(rows), rep, nil
}

// DropRanges removes records inside any of the closed ranges. The returned
// slice holds the number of records removed by each range.
func DropRanges(ds *models.Dataset, ranges []models.TimeRange) (*models.Dataset, []int, error) {
	counts := make([]int, len(ranges))
	if len(ranges) == 0 {
		return ds, counts, nil
	}
	keep := make([]int, 0, ds.Len())
	for i, t := range ds.Time {
		hit := false
		for k, r := range ranges {
			if r.Contains(t) {
				counts[k]++
				hit = true
				break
			}
		}
		if !hit {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, counts, models.NewProcessingError(models.KindEmptyStream,
			"all %d records fall inside dropped time ranges", ds.Len()).
			WithContext(ds.Deployment, ds.Variant)
	}
	if len(keep) == ds.Len() {
		return ds, counts, nil
	}
	return ds.Select(keep), counts, nil
}

func missingAny(ds *models.Dataset, i int, names []string) bool {
	for _, n := range names {
		// channels absent from the dataset are not required of it
		v := ds.Values(n)
		if v != nil && math.IsNaN(v[i]) {
			return true
		}
	}
	return false
}
