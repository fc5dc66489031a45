package fusion

import (
	"fmt"
	"math"
	"sort"

	"glider-processor/models"
)

// Merged is the raw dataset on the unified axis plus the mapping from every
// source sample to its position on that axis.
type Merged struct {
	Dataset *models.Dataset

	// Index[g][k] is the union position of sample k of group g, or -1 when
	// the source timestamp was not finite.
	Index map[models.Group][]int

	NonFinite  int // source samples with NaN/Inf timestamps, left out of the axis
	Duplicates int // repeated timestamps within a group; first occurrence kept
}

// Merge joins the engineering and science groups onto the sorted union of
// their timestamps. Values are copied, never inferred: a channel is NaN at
// every union position its own group did not sample.
//
// Sources sharing a group must carry the identical time array; anything else
// is a third time base and fails with TooManyTimeBases.
func Merge(deployment string, sources []models.Source) (*Merged, error) {
	groups := make(map[models.Group]models.Source, 2)
	var order []models.Group

	for i, s := range sources {
		if !s.Group.Valid() {
			return nil, models.NewProcessingError(models.KindTooManyTimeBases,
				"source %d has time base %q, want eng or sci", i, s.Group).
				WithContext(deployment, models.VariantRaw)
		}
		for _, c := range s.Channels {
			if len(c.Values) != len(s.Time) {
				return nil, fmt.Errorf("merge: channel %s has %d values for %d timestamps", c.Name, len(c.Values), len(s.Time))
			}
		}
		prev, seen := groups[s.Group]
		if !seen {
			groups[s.Group] = models.Source{Group: s.Group, Time: s.Time, Channels: append([]*models.Channel(nil), s.Channels...)}
			order = append(order, s.Group)
			continue
		}
		if k, ok := sameTimes(prev.Time, s.Time); !ok {
			return nil, models.NewProcessingError(models.KindTooManyTimeBases,
				"group %s carries more than one timestamp set", s.Group).
				At(k, timeAt(s.Time, k)).
				WithContext(deployment, models.VariantRaw)
		}
		prev.Channels = append(prev.Channels, s.Channels...)
		groups[s.Group] = prev
	}

	// ── union ────────────────────────────────────────────────────────
	var all []float64
	nonFinite := 0
	for _, g := range order {
		for _, t := range groups[g].Time {
			if isFinite(t) {
				all = append(all, t)
			} else {
				nonFinite++
			}
		}
	}
	sort.Float64s(all)
	axis := all[:0:0]
	for i, t := range all {
		if i == 0 || t != all[i-1] {
			axis = append(axis, t)
		}
	}

	// ── index mapping and value placement ────────────────────────────
	out := &Merged{
		Dataset:   models.NewDataset(deployment, models.VariantRaw, axis),
		Index:     make(map[models.Group][]int, len(order)),
		NonFinite: nonFinite,
	}
	for _, g := range order {
		src := groups[g]
		idx := make([]int, len(src.Time))
		first := make(map[int]bool, len(src.Time))
		for k, t := range src.Time {
			if !isFinite(t) {
				idx[k] = -1
				continue
			}
			p := sort.SearchFloat64s(axis, t)
			idx[k] = p
			if first[p] {
				out.Duplicates++
			}
			first[p] = true
		}
		out.Index[g] = idx

		for _, c := range src.Channels {
			vals := make([]float64, len(axis))
			for i := range vals {
				vals[i] = math.NaN()
			}
			placed := make([]bool, len(axis))
			for k, p := range idx {
				if p < 0 || placed[p] {
					continue
				}
				vals[p] = c.Values[k]
				placed[p] = true
			}
			mc := &models.Channel{Name: c.Name, Group: g, Values: vals, Attrs: c.Attrs}
			if err := out.Dataset.AddChannel(mc); err != nil {
				return nil, fmt.Errorf("merge: %w", err)
			}
		}
	}
	return out, nil
}

// sameTimes compares two time arrays, treating NaN as equal to NaN. On
// mismatch it returns the first differing position.
func sameTimes(a, b []float64) (int, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return i, false
		}
	}
	if len(a) != len(b) {
		return n, false
	}
	return -1, true
}

func timeAt(t []float64, i int) float64 {
	if i < 0 || i >= len(t) {
		return math.NaN()
	}
	return t[i]
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
