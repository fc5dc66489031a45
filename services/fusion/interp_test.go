package fusion

import (
	"math"
	"testing"

	"glider-processor/models"
)

func table(t *testing.T) *models.ChannelTable {
	t.Helper()
	tbl, err := models.NewChannelTable([]models.ChannelSpec{
		{Name: "depth", Source: "m_depth", Group: models.GroupEngineering},
		{Name: "battery", Source: "m_battery", Group: models.GroupEngineering},
		{Name: "temperature", Source: "sci_water_temp", Group: models.GroupScience},
		{Name: "chlorophyll", Source: "sci_chlor", Group: models.GroupScience, NonNegative: true},
	})
	if err != nil {
		t.Fatalf("NewChannelTable: %v", err)
	}
	return tbl
}

func TestInterpolateChannelKeepsPointsInsideHalfGap(t *testing.T) {
	got, masked := InterpolateChannel([]float64{0, 100}, []float64{0, 100}, []float64{76}, 50)
	if masked != 0 || got[0] != 76 {
		t.Fatalf("t=76: value %v masked %d, want 76 kept", got[0], masked)
	}
}

func TestInterpolateChannelGapEdges(t *testing.T) {
	// a 10 s gap with maxGap 4: only the middle is masked
	got, masked := InterpolateChannel([]float64{0, 10}, []float64{0, 10}, []float64{1, 2, 5, 8, 9}, 4)
	want := []float64{1, 2, nan, 8, 9}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(got[i]) || (!math.IsNaN(want[i]) && got[i] != want[i]) {
			t.Errorf("t=%v: got %v, want %v", []float64{1, 2, 5, 8, 9}[i], got[i], want[i])
		}
	}
	if masked != 1 {
		t.Errorf("masked = %d, want 1", masked)
	}

	// a gap of exactly maxGap is filled
	got, masked = InterpolateChannel([]float64{0, 4}, []float64{0, 4}, []float64{2}, 4)
	if masked != 0 || got[0] != 2 {
		t.Errorf("t=2: value %v masked %d, want 2 kept", got[0], masked)
	}
}

func TestInterpolateChannelMasksLongGap(t *testing.T) {
	var target []float64
	for x := 51.0; x <= 149; x++ {
		target = append(target, x)
	}
	got, masked := InterpolateChannel([]float64{0, 200}, []float64{1, 3}, target, 50)
	for i, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("t=%v: %v, want missing", target[i], v)
		}
	}
	if masked != len(target) {
		t.Errorf("masked = %d, want %d", masked, len(target))
	}
}

func TestInterpolateChannelNoExtrapolation(t *testing.T) {
	got, _ := InterpolateChannel([]float64{10, 20}, []float64{1, 2}, []float64{5, 10, 15, 20, 25}, 0)
	want := []float64{nan, 1, 1.5, 2, nan}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(got[i]) || (!math.IsNaN(want[i]) && got[i] != want[i]) {
			t.Errorf("t=%v: got %v, want %v", []float64{5, 10, 15, 20, 25}[i], got[i], want[i])
		}
	}
}

func TestInterpolateChannelUsesOnlyValidSamples(t *testing.T) {
	got, _ := InterpolateChannel(
		[]float64{0, 1, 2, 3, 4},
		[]float64{0, nan, nan, nan, 4},
		[]float64{2}, 0)
	if got[0] != 2 {
		t.Fatalf("got %v, want 2", got[0])
	}
}

// End to end: engineering at [0,1,2,5,6], science at [0.5,1.5,4,6.5], a
// science channel valid only at 0.5 and 6.5 and max gap 2.
func TestInterpolateEndToEnd(t *testing.T) {
	m, err := Merge("unit", e2eSources())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	ds, rep, err := Screen(m.Dataset, WithMinTime(-1))
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if rep.Dropped() != 0 {
		t.Fatalf("screen dropped %d records", rep.Dropped())
	}
	axis := []float64{0, 0.5, 1, 1.5, 2, 4, 5, 6, 6.5}
	if !equalTimes(ds.Time, axis) {
		t.Fatalf("axis = %v, want %v", ds.Time, axis)
	}

	out, irep, err := Interpolate(ds, ds.Time, table(t), 2)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	chl := out.Values("chlorophyll")
	want := []float64{nan, 0, 0.5, 1, nan, nan, nan, 5.5, 6}
	for i := range axis {
		if math.IsNaN(want[i]) != math.IsNaN(chl[i]) || (!math.IsNaN(want[i]) && math.Abs(chl[i]-want[i]) > 1e-12) {
			t.Errorf("chlorophyll at t=%v = %v, want %v", axis[i], chl[i], want[i])
		}
	}
	if irep.GapMasked["chlorophyll"] != 3 {
		t.Errorf("gap masked = %d, want 3", irep.GapMasked["chlorophyll"])
	}

	// engineering channels are filled without a gap mask
	bat := out.Values("battery")
	if math.IsNaN(bat[5]) || math.Abs(bat[5]-14) > 1e-12 {
		t.Errorf("battery at t=4 = %v, want 14", bat[5])
	}
	for _, c := range out.Channels() {
		if c.Attrs[AttrMethod] != models.MethodLinearFill {
			t.Errorf("%s: method = %q", c.Name, c.Attrs[AttrMethod])
		}
	}
	if c, _ := out.Channel("battery"); c.Attrs[AttrMaxGap] != "" {
		t.Errorf("battery carries maxgap %q", c.Attrs[AttrMaxGap])
	}
}

func TestInterpolateScreensNegativeNonNegativeChannels(t *testing.T) {
	ds := models.NewDataset("unit", models.VariantScience, []float64{0, 2})
	_ = ds.AddChannel(channel("chlorophyll", models.GroupScience, -1, 1))
	_ = ds.AddChannel(channel("temperature", models.GroupScience, -1, 1))

	out, rep, err := Interpolate(ds, []float64{0.5, 1.5}, table(t), 10)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if chl := out.Values("chlorophyll"); !math.IsNaN(chl[0]) || chl[1] != 0.5 {
		t.Errorf("chlorophyll = %v, want [NaN 0.5]", chl)
	}
	if tmp := out.Values("temperature"); tmp[0] != -0.5 {
		t.Errorf("temperature = %v, negative values must survive", tmp)
	}
	if rep.Negative["chlorophyll"] != 1 {
		t.Errorf("negative = %v", rep.Negative)
	}
}
