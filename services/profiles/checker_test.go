package profiles

import (
	"errors"
	"math"
	"strings"
	"testing"

	"glider-processor/models"
)

func record(idx int, dir models.Direction, start, end float64) models.ProfileRecord {
	return models.ProfileRecord{Index: idx, Direction: dir, StartTime: start, EndTime: end, StartDepth: nan, EndDepth: nan, Samples: 1}
}

func consistencyError(t *testing.T, err error) *models.ProcessingError {
	t.Helper()
	if !errors.Is(err, models.ErrProfileConsistency) {
		t.Fatalf("err = %v, want ProfileConsistency", err)
	}
	var pe *models.ProcessingError
	errors.As(err, &pe)
	return pe
}

func TestCheckSummaryAcceptsAlternatingProfiles(t *testing.T) {
	s := models.ProfileSummary{
		record(1, models.DirectionDive, 0, 10),
		record(2, models.DirectionClimb, 10, 20),
		record(3, models.DirectionDive, 20, 30),
	}
	if err := CheckSummary(s); err != nil {
		t.Fatalf("CheckSummary: %v", err)
	}
}

func TestCheckSummaryRejectsIndexGap(t *testing.T) {
	s := models.ProfileSummary{
		record(1, models.DirectionDive, 0, 10),
		record(3, models.DirectionClimb, 10, 20),
	}
	pe := consistencyError(t, CheckSummary(s))
	if len(pe.Violations) != 1 || pe.Violations[0].ProfileIndex != 3 {
		t.Fatalf("violations = %v, want one naming profile 3", pe.Violations)
	}
	if !strings.Contains(pe.Error(), "profile 3") {
		t.Errorf("message does not name the index: %q", pe.Error())
	}
	if pe.Index != 3 || pe.Timestamp != 10 {
		t.Errorf("location = %d @ %v, want 3 @ 10", pe.Index, pe.Timestamp)
	}
}

func TestCheckSummaryRejectsConsecutiveDives(t *testing.T) {
	s := models.ProfileSummary{
		record(1, models.DirectionDive, 0, 10),
		record(2, models.DirectionDive, 10, 20),
	}
	pe := consistencyError(t, CheckSummary(s))
	if pe.Violations[0].ProfileIndex != 2 {
		t.Fatalf("violations = %v, want profile 2", pe.Violations)
	}
	if !strings.Contains(pe.Error(), "profile 2") {
		t.Errorf("message does not name the index: %q", pe.Error())
	}
}

func TestCheckSummaryListsEveryViolation(t *testing.T) {
	s := models.ProfileSummary{
		record(1, models.DirectionDive, 0, 10),
		record(2, models.DirectionDive, 10, 10),
		record(2, models.DirectionClimb, 20, 30),
	}
	pe := consistencyError(t, CheckSummary(s))
	// profile 2: same direction, zero duration; second profile 2: index repeat
	if len(pe.Violations) != 3 {
		t.Fatalf("violations = %v, want 3", pe.Violations)
	}
}

func TestCheckSummaryRejectsOverlap(t *testing.T) {
	s := models.ProfileSummary{
		record(1, models.DirectionDive, 0, 10),
		record(2, models.DirectionClimb, 10, 20),
		record(3, models.DirectionDive, 15, 30),
	}
	pe := consistencyError(t, CheckSummary(s))
	if len(pe.Violations) != 1 || pe.Violations[0].ProfileIndex != 3 {
		t.Fatalf("violations = %v, want one naming profile 3", pe.Violations)
	}
	if pe.Violations[0].Reason != "starts before profile 2 ends" {
		t.Errorf("reason = %q", pe.Violations[0].Reason)
	}
}

func TestCheckSummaryRejectsEmpty(t *testing.T) {
	pe := consistencyError(t, CheckSummary(nil))
	if pe.Violations[0].Reason != "no profiles" {
		t.Errorf("violations = %v", pe.Violations)
	}
}

func TestCheckFlagsDepthReversal(t *testing.T) {
	depth := sawtooth(1)
	ds := depthSeries(t, depth)
	idx := make([]float64, len(depth))
	dir := make([]float64, len(depth))
	for i := range idx {
		idx[i], dir[i] = 1, 1
	}
	ds, _ = ds.WithChannel(&models.Channel{Name: models.ProfileIndexName, Values: idx})
	ds, _ = ds.WithChannel(&models.Channel{Name: models.ProfileDirectionName, Values: dir})

	summary, err := Summarize(ds, "depth")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if err := Check(ds, summary, "depth", DefaultParams()); err != nil {
		t.Fatalf("monotonic dive rejected: %v", err)
	}

	// a brief 8 m dip is tolerated
	dipped := append([]float64(nil), depth...)
	dipped[10], dipped[11] = 14, 10
	ds2, _ := ds.WithChannel(&models.Channel{Name: "depth", Group: models.GroupEngineering, Values: dipped})
	if err := Check(ds2, summary, "depth", DefaultParams()); err != nil {
		t.Fatalf("20 s dip rejected: %v", err)
	}

	// a steady 16 m rise over 70 s in the middle of the dive
	bumped := append([]float64(nil), depth...)
	for i := 10; i <= 17; i++ {
		bumped[i] = 16 - float64(i-10)*2
	}
	ds2, _ = ds.WithChannel(&models.Channel{Name: "depth", Group: models.GroupEngineering, Values: bumped})
	pe := consistencyError(t, Check(ds2, summary, "depth", DefaultParams()))
	if pe.Violations[0].ProfileIndex != 1 || !strings.Contains(pe.Violations[0].Reason, "rises") {
		t.Errorf("violations = %v", pe.Violations)
	}
	if pe.Deployment != "unit" || pe.Variant != models.VariantRaw {
		t.Errorf("context = %s/%s", pe.Deployment, pe.Variant)
	}
}

func TestCheckRequiresSamples(t *testing.T) {
	ds := depthSeries(t, sawtooth(1))
	summary, _ := Summarize(mustSegment(t, ds), "depth")
	summary = append(summary, record(2, models.DirectionClimb, 1e6, 1e6+10))

	pe := consistencyError(t, Check(mustSegment(t, ds), summary, "depth", DefaultParams()))
	found := false
	for _, v := range pe.Violations {
		if v.ProfileIndex == 2 && v.Reason == "no samples" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %v, want profile 2 without samples", pe.Violations)
	}
}

func TestSummarize(t *testing.T) {
	depth := sawtooth(2)
	depth[0] = nan
	ds := mustSegment(t, depthSeries(t, depth))
	s, err := Summarize(ds, "depth")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(s) != 2 {
		t.Fatalf("%d profiles, want 2", len(s))
	}
	dive, climb := s[0], s[1]
	if dive.EndTime != 200 || dive.EndDepth != 40 || dive.Direction != models.DirectionDive {
		t.Errorf("dive = %+v", dive)
	}
	if climb.StartTime != 210 || climb.StartDepth != 38 || climb.EndDepth != 0 || climb.Samples != 20 {
		t.Errorf("climb = %+v", climb)
	}
	if math.IsNaN(dive.StartDepth) {
		t.Errorf("dive start depth missing: %+v", dive)
	}
	if _, err := Summarize(depthSeries(t, depth), "depth"); err == nil {
		t.Error("Summarize without assignment: want error")
	}
}

func mustSegment(t *testing.T, ds *models.Dataset) *models.Dataset {
	t.Helper()
	out, err := Segment(ds, "depth", DefaultParams())
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	return out
}
