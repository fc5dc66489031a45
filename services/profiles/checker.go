package profiles

import (
	"fmt"
	"math"

	"glider-processor/models"
)

// CheckSummary validates the structure of a profile summary: at least one
// profile, indices 1..N without gaps or repeats, strictly alternating
// directions, positive durations and no profile starting before its
// predecessor ends. Every violation is reported.
func CheckSummary(summary models.ProfileSummary) error {
	if err := violationsError(checkSummary(summary), summary); err != nil {
		return err
	}
	return nil
}

// Check validates the summary against the dataset it was derived from. On
// top of CheckSummary it requires every profile to own at least one sample
// of ds and, when depthChannel is present, the depth to move monotonically
// within each profile. A counter-move is a violation when it reaches
// p.MinExcursion metres from the running extremum and lasts p.MinDuration
// seconds, the same test the segmenter applies before keeping a reversal.
func Check(ds *models.Dataset, summary models.ProfileSummary, depthChannel string, p Params) error {
	vs := checkSummary(summary)

	index := ds.Values(models.ProfileIndexName)
	if index == nil {
		vs = append(vs, models.Violation{Reason: "dataset has no profile assignment"})
		return violationsError(vs, summary).WithContext(ds.Deployment, ds.Variant)
	}

	counts := make(map[int]int, len(summary))
	for _, p := range index {
		if models.IsAssigned(p) {
			counts[int(p)]++
		}
	}
	for _, rec := range summary {
		if counts[rec.Index] == 0 {
			vs = append(vs, models.Violation{ProfileIndex: rec.Index, Reason: "no samples"})
		}
	}

	if depth := ds.Values(depthChannel); depth != nil {
		vs = append(vs, checkMonotonic(ds.Time, index, depth, summary, p)...)
	}

	if err := violationsError(vs, summary); err != nil {
		return err.WithContext(ds.Deployment, ds.Variant)
	}
	return nil
}

func checkSummary(summary models.ProfileSummary) []models.Violation {
	var vs []models.Violation
	if len(summary) == 0 {
		return append(vs, models.Violation{Reason: "no profiles"})
	}
	for i, rec := range summary {
		if rec.Index != i+1 {
			vs = append(vs, models.Violation{
				ProfileIndex: rec.Index,
				Reason:       fmt.Sprintf("expected index %d", i+1),
			})
		}
		if rec.Direction != models.DirectionDive && rec.Direction != models.DirectionClimb {
			vs = append(vs, models.Violation{
				ProfileIndex: rec.Index,
				Reason:       fmt.Sprintf("invalid direction %d", int(rec.Direction)),
			})
		} else if i > 0 && rec.Direction == summary[i-1].Direction {
			vs = append(vs, models.Violation{
				ProfileIndex: rec.Index,
				Reason:       fmt.Sprintf("%s follows %s profile %d", rec.Direction, summary[i-1].Direction, summary[i-1].Index),
			})
		}
		if !(rec.EndTime > rec.StartTime) {
			vs = append(vs, models.Violation{
				ProfileIndex: rec.Index,
				Reason:       "end time not after start time",
			})
		}
		if i > 0 && rec.StartTime < summary[i-1].EndTime {
			vs = append(vs, models.Violation{
				ProfileIndex: rec.Index,
				Reason:       fmt.Sprintf("starts before profile %d ends", summary[i-1].Index),
			})
		}
	}
	return vs
}

// counterMove follows one profile in the direction of travel: depths are
// negated for climbs so the extremum is always a maximum.
type counterMove struct {
	ext      float64
	after    float64 // time of the first sample past ext
	counter  float64 // deepest retreat from ext
	counterT float64
}

// checkMonotonic walks each profile's valid depths in time order.
func checkMonotonic(t, index, depth []float64, summary models.ProfileSummary, p Params) []models.Violation {
	dirs := make(map[int]models.Direction, len(summary))
	for _, rec := range summary {
		dirs[rec.Index] = rec.Direction
	}

	var vs []models.Violation
	moves := make(map[int]*counterMove, len(summary))
	reported := make(map[int]bool)
	for i, pi := range index {
		if !models.IsAssigned(pi) || math.IsNaN(depth[i]) {
			continue
		}
		k := int(pi)
		dir, ok := dirs[k]
		if !ok || reported[k] || (dir != models.DirectionDive && dir != models.DirectionClimb) {
			continue
		}
		u := depth[i]
		if dir == models.DirectionClimb {
			u = -u
		}
		m, seen := moves[k]
		if !seen {
			moves[k] = &counterMove{ext: u, after: math.NaN(), counter: math.NaN()}
			continue
		}
		if u > m.ext {
			m.ext, m.after, m.counter = u, math.NaN(), math.NaN()
			continue
		}
		if math.IsNaN(m.after) {
			m.after = t[i]
		}
		if math.IsNaN(m.counter) || u < m.counter {
			m.counter, m.counterT = u, t[i]
		}
		dev, dur := m.ext-m.counter, m.counterT-m.after
		if dev >= p.MinExcursion && dur > 0 && dur >= p.MinDuration {
			reason := fmt.Sprintf("dive rises %.2f m over %.0f s", dev, dur)
			if dir == models.DirectionClimb {
				reason = fmt.Sprintf("climb sinks %.2f m over %.0f s", dev, dur)
			}
			vs = append(vs, models.Violation{ProfileIndex: k, Reason: reason})
			reported[k] = true
		}
	}
	return vs
}

func violationsError(vs []models.Violation, summary models.ProfileSummary) *models.ProcessingError {
	if len(vs) == 0 {
		return nil
	}
	err := models.NewProcessingError(models.KindProfileConsistency, "%d violation(s)", len(vs))
	err.Violations = vs
	first := vs[0].ProfileIndex
	for _, rec := range summary {
		if rec.Index == first {
			err.At(first, rec.StartTime)
			break
		}
	}
	return err
}
