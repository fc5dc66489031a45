package fusion

import (
	"errors"
	"reflect"
	"testing"

	"glider-processor/models"
)

func dataset(t *testing.T, times []float64, cols map[string][]float64) *models.Dataset {
	t.Helper()
	ds := models.NewDataset("unit", models.VariantRaw, times)
	for _, name := range []string{"depth", "pressure", "temperature"} {
		vals, ok := cols[name]
		if !ok {
			continue
		}
		g := models.GroupScience
		if name == "depth" {
			g = models.GroupEngineering
		}
		if err := ds.AddChannel(channel(name, g, vals...)); err != nil {
			t.Fatalf("AddChannel: %v", err)
		}
	}
	return ds
}

func TestScreenDrops(t *testing.T) {
	ds := dataset(t,
		[]float64{5, nan, 3, 3, 7e9, -2, 4},
		map[string][]float64{
			"depth":       {50, 10, 30, 31, 70, 20, nan},
			"temperature": {15, 11, 13, 13, 17, 12, nan},
		})

	out, rep, err := Screen(ds, WithMinTime(0))
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !equalTimes(out.Time, []float64{3, 5}) {
		t.Fatalf("time = %v, want [3 5]", out.Time)
	}
	if got := out.Values("depth"); got[0] != 30 || got[1] != 50 {
		t.Errorf("depth = %v, want [30 50]", got)
	}

	checks := []struct {
		name string
		got  []int
		want []int
	}{
		{"non_finite", rep.NonFinite, []int{1}},
		{"above_ceiling", rep.AboveCeiling, []int{4}},
		{"before_min", rep.BeforeMin, []int{5}},
		{"all_missing", rep.AllMissing, []int{6}},
		{"duplicates", rep.Duplicates, []int{3}},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if rep.Dropped() != 5 {
		t.Errorf("dropped = %d, want 5", rep.Dropped())
	}
}

func TestScreenIdempotent(t *testing.T) {
	ds := dataset(t,
		[]float64{4, 1, 2, 2, 3, nan},
		map[string][]float64{"depth": {4, 1, 2, 9, 3, 0}})

	once, _, err := Screen(ds, WithMinTime(0))
	if err != nil {
		t.Fatalf("first Screen: %v", err)
	}
	twice, rep, err := Screen(once, WithMinTime(0))
	if err != nil {
		t.Fatalf("second Screen: %v", err)
	}
	if rep.Dropped() != 0 {
		t.Errorf("second pass dropped %d records", rep.Dropped())
	}
	if !equalTimes(once.Time, twice.Time) || !reflect.DeepEqual(once.Values("depth"), twice.Values("depth")) {
		t.Errorf("second pass changed the data: %v -> %v", once.Time, twice.Time)
	}
	if !equalTimes(once.Time, []float64{1, 2, 3, 4}) {
		t.Errorf("time = %v, want [1 2 3 4]", once.Time)
	}
	if got := once.Values("depth")[1]; got != 2 {
		t.Errorf("duplicate kept %v, want first occurrence 2", got)
	}
}

func TestScreenMinTimeIsInclusive(t *testing.T) {
	ds := dataset(t, []float64{9.5, 10, 11}, map[string][]float64{"depth": {1, 2, 3}})
	out, rep, err := Screen(ds, WithMinTime(10))
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !equalTimes(out.Time, []float64{10, 11}) || len(rep.BeforeMin) != 1 {
		t.Errorf("time = %v before_min = %v", out.Time, rep.BeforeMin)
	}
}

func TestScreenEmptyStream(t *testing.T) {
	empty := dataset(t, nil, map[string][]float64{"depth": {}})
	if _, _, err := Screen(empty); !errors.Is(err, models.ErrEmptyStream) {
		t.Errorf("empty input: err = %v, want EmptyStream", err)
	}

	old := dataset(t, []float64{1, 2}, map[string][]float64{"depth": {1, 2}})
	_, rep, err := Screen(old, WithMinTime(100))
	if !errors.Is(err, models.ErrEmptyStream) {
		t.Fatalf("all removed: err = %v, want EmptyStream", err)
	}
	if len(rep.BeforeMin) != 2 {
		t.Errorf("report still lists drops: %v", rep.BeforeMin)
	}
}

func TestScreenRequiredChannel(t *testing.T) {
	ds := dataset(t,
		[]float64{1, 2, 3, 4},
		map[string][]float64{
			"depth":       {1, 8, 2, 3},
			"pressure":    {0.1, nan, nan, 0.3},
			"temperature": {10, 11, 12, 13},
		})
	out, rep, err := Screen(ds, WithRequired("pressure"), WithDepth("depth"))
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !equalTimes(out.Time, []float64{1, 4}) {
		t.Errorf("time = %v, want [1 4]", out.Time)
	}
	if !reflect.DeepEqual(rep.MissingRequired, []int{1, 2}) || rep.DeepRequired != 1 {
		t.Errorf("missing_required=%v deep=%d", rep.MissingRequired, rep.DeepRequired)
	}
}

func TestScreenMissingOverSubset(t *testing.T) {
	ds := dataset(t,
		[]float64{1, 2, 3},
		map[string][]float64{
			"depth":       {1, 2, 3},
			"temperature": {10, nan, 12},
		})
	out, rep, err := Screen(ds, WithMissingOver("temperature"))
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if !equalTimes(out.Time, []float64{1, 3}) || !reflect.DeepEqual(rep.AllMissing, []int{1}) {
		t.Errorf("time = %v all_missing = %v", out.Time, rep.AllMissing)
	}
}

func TestDropRanges(t *testing.T) {
	ds := dataset(t, []float64{1, 2, 3, 4, 5, 6}, map[string][]float64{"depth": {1, 2, 3, 4, 5, 6}})
	out, counts, err := DropRanges(ds, []models.TimeRange{{Start: 2, End: 3}, {Start: 5, End: 5}})
	if err != nil {
		t.Fatalf("DropRanges: %v", err)
	}
	if !equalTimes(out.Time, []float64{1, 4, 6}) {
		t.Errorf("time = %v, want [1 4 6]", out.Time)
	}
	if !reflect.DeepEqual(counts, []int{2, 1}) {
		t.Errorf("counts = %v, want [2 1]", counts)
	}

	if _, _, err := DropRanges(ds, []models.TimeRange{{Start: 0, End: 10}}); !errors.Is(err, models.ErrEmptyStream) {
		t.Errorf("err = %v, want EmptyStream", err)
	}
}
