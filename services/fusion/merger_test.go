package fusion

import (
	"errors"
	"math"
	"testing"

	"glider-processor/models"
)

var nan = math.NaN()

func channel(name string, g models.Group, vals ...float64) *models.Channel {
	return &models.Channel{Name: name, Group: g, Values: vals}
}

func e2eSources() []models.Source {
	return []models.Source{
		{
			Group: models.GroupEngineering,
			Time:  []float64{0, 1, 2, 5, 6},
			Channels: []*models.Channel{
				channel("depth", models.GroupEngineering, 0, 1, 2, 5, 6),
				channel("battery", models.GroupEngineering, 10, nan, nan, nan, 16),
			},
		},
		{
			Group: models.GroupScience,
			Time:  []float64{0.5, 1.5, 4, 6.5},
			Channels: []*models.Channel{
				channel("temperature", models.GroupScience, 20, 21, 22, 23),
				channel("chlorophyll", models.GroupScience, 0, nan, nan, 6),
			},
		},
	}
}

func equalTimes(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeUnion(t *testing.T) {
	srcs := e2eSources()
	m, err := Merge("unit", srcs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := []float64{0, 0.5, 1, 1.5, 2, 4, 5, 6, 6.5}
	if !equalTimes(m.Dataset.Time, want) {
		t.Fatalf("axis = %v, want %v", m.Dataset.Time, want)
	}
	for i := 1; i < len(m.Dataset.Time); i++ {
		if m.Dataset.Time[i] <= m.Dataset.Time[i-1] {
			t.Fatalf("axis not strictly increasing at %d", i)
		}
	}

	// every source timestamp is recoverable through the index mapping
	for _, s := range srcs {
		idx := m.Index[s.Group]
		if len(idx) != len(s.Time) {
			t.Fatalf("%s: %d mapped indices for %d samples", s.Group, len(idx), len(s.Time))
		}
		for k, p := range idx {
			if m.Dataset.Time[p] != s.Time[k] {
				t.Errorf("%s[%d]: axis[%d]=%v, want %v", s.Group, k, p, m.Dataset.Time[p], s.Time[k])
			}
		}
	}

	depth := m.Dataset.Values("depth")
	temp := m.Dataset.Values("temperature")
	for i, ts := range m.Dataset.Time {
		isEng := ts == math.Trunc(ts) && ts != 4
		if isEng == math.IsNaN(depth[i]) {
			t.Errorf("depth at t=%v = %v", ts, depth[i])
		}
		if isEng != math.IsNaN(temp[i]) {
			t.Errorf("temperature at t=%v = %v", ts, temp[i])
		}
	}
	if m.NonFinite != 0 || m.Duplicates != 0 {
		t.Errorf("non_finite=%d duplicates=%d, want 0/0", m.NonFinite, m.Duplicates)
	}
}

func TestMergeRejectsThirdTimeBase(t *testing.T) {
	srcs := append(e2eSources(), models.Source{
		Group:    "gps",
		Time:     []float64{0.25},
		Channels: []*models.Channel{channel("lat", "gps", 45)},
	})
	_, err := Merge("unit", srcs)
	if !errors.Is(err, models.ErrTooManyTimeBases) {
		t.Fatalf("err = %v, want TooManyTimeBases", err)
	}
	var pe *models.ProcessingError
	if !errors.As(err, &pe) || pe.Deployment != "unit" {
		t.Fatalf("error does not carry the deployment: %v", err)
	}
}

func TestMergeGroupWithTwoTimeSets(t *testing.T) {
	srcs := append(e2eSources(), models.Source{
		Group:    models.GroupScience,
		Time:     []float64{0.5, 1.5, 4.5, 6.5},
		Channels: []*models.Channel{channel("oxygen", models.GroupScience, 1, 2, 3, 4)},
	})
	_, err := Merge("unit", srcs)
	if !errors.Is(err, models.ErrTooManyTimeBases) {
		t.Fatalf("err = %v, want TooManyTimeBases", err)
	}
	var pe *models.ProcessingError
	if errors.As(err, &pe) && pe.Index != 2 {
		t.Errorf("first differing index = %d, want 2", pe.Index)
	}
}

func TestMergeSameGroupSharedTimes(t *testing.T) {
	srcs := append(e2eSources(), models.Source{
		Group:    models.GroupScience,
		Time:     []float64{0.5, 1.5, 4, 6.5},
		Channels: []*models.Channel{channel("oxygen", models.GroupScience, 1, 2, 3, 4)},
	})
	m, err := Merge("unit", srcs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got := m.Dataset.Values("oxygen"); got == nil || got[1] != 1 {
		t.Fatalf("oxygen not merged: %v", got)
	}
}

func TestMergeSkipsNonFiniteAndDuplicateTimes(t *testing.T) {
	srcs := []models.Source{
		{
			Group:    models.GroupEngineering,
			Time:     []float64{1, nan, 2, 2, math.Inf(1)},
			Channels: []*models.Channel{channel("depth", models.GroupEngineering, 10, 11, 12, 13, 14)},
		},
	}
	m, err := Merge("unit", srcs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !equalTimes(m.Dataset.Time, []float64{1, 2}) {
		t.Fatalf("axis = %v", m.Dataset.Time)
	}
	if m.NonFinite != 2 || m.Duplicates != 1 {
		t.Errorf("non_finite=%d duplicates=%d, want 2/1", m.NonFinite, m.Duplicates)
	}
	idx := m.Index[models.GroupEngineering]
	if idx[1] != -1 || idx[4] != -1 {
		t.Errorf("non-finite samples mapped to %d/%d, want -1", idx[1], idx[4])
	}
	if got := m.Dataset.Values("depth")[1]; got != 12 {
		t.Errorf("duplicate kept %v, want first occurrence 12", got)
	}
}
