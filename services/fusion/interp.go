package fusion

import (
	"math"
	"sort"
	"strconv"

	"glider-processor/models"
)

// Channel attribute keys written by Interpolate.
const (
	AttrMethod = "method"
	AttrMaxGap = "maxgap"
)

// InterpReport counts, per channel, the values discarded after
// interpolation. These are expected data conditions, not errors.
type InterpReport struct {
	GapMasked map[string]int
	Negative  map[string]int
}

// Total returns the number of gap-masked and negative-screened points.
func (r InterpReport) Total() (masked, negative int) {
	for _, n := range r.GapMasked {
		masked += n
	}
	for _, n := range r.Negative {
		negative += n
	}
	return masked, negative
}

// Interpolate resamples every data channel of src onto target.
//
// Each channel is interpolated linearly from its own valid samples only and
// is missing outside its first and last valid sample. Science channels are
// additionally gap masked against maxGap (disabled when maxGap <= 0) and,
// when the channel table marks them non-negative, negative results are set
// missing. Engineering channels are linearly filled without a gap mask.
func Interpolate(src *models.Dataset, target []float64, table *models.ChannelTable, maxGap float64) (*models.Dataset, InterpReport, error) {
	rep := InterpReport{GapMasked: map[string]int{}, Negative: map[string]int{}}
	if len(target) == 0 {
		return nil, rep, models.NewProcessingError(models.KindEmptyStream, "empty interpolation target").
			WithContext(src.Deployment, src.Variant)
	}

	axis := make([]float64, len(target))
	copy(axis, target)
	out := models.NewDataset(src.Deployment, src.Variant, axis)

	for _, c := range src.DataChannels() {
		science := c.Group == models.GroupScience
		gap := 0.0
		if science {
			gap = maxGap
		}
		vals, masked := InterpolateChannel(src.Time, c.Values, axis, gap)

		attrs := make(map[string]string, len(c.Attrs)+2)
		for k, v := range c.Attrs {
			attrs[k] = v
		}
		attrs[AttrMethod] = models.MethodLinearFill

		if science {
			if gap > 0 {
				attrs[AttrMaxGap] = strconv.FormatFloat(gap, 'g', -1, 64)
				if masked > 0 {
					rep.GapMasked[c.Name] = masked
				}
			}
			if spec, ok := table.Lookup(c.Name); ok && spec.NonNegative {
				neg := 0
				for i, v := range vals {
					if v < 0 {
						vals[i] = math.NaN()
						neg++
					}
				}
				if neg > 0 {
					rep.Negative[c.Name] = neg
				}
			}
		}

		if err := out.AddChannel(&models.Channel{Name: c.Name, Group: c.Group, Values: vals, Attrs: attrs}); err != nil {
			return nil, rep, err
		}
	}
	return out, rep, nil
}

// InterpolateChannel linearly interpolates the valid (non-NaN, finite-time)
// samples of (t, v) onto target, which must be sorted. Targets outside the
// first and last valid sample are NaN. With maxGap > 0, a target whose
// nearest valid sample is more than maxGap/2 away is NaN: the gap window of
// width maxGap is centred on the target. This is not the same as masking
// every target inside a bracketing interval wider than maxGap. Targets
// within maxGap/2 of either edge of a wide gap are still filled, and a gap
// of exactly maxGap is filled throughout. It returns the number of targets
// discarded by the gap mask.
func InterpolateChannel(t, v, target []float64, maxGap float64) ([]float64, int) {
	xs := make([]float64, 0, len(t))
	ys := make([]float64, 0, len(t))
	order := make([]int, 0, len(t))
	for i := range t {
		if isFinite(t[i]) && !math.IsNaN(v[i]) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return t[order[a]] < t[order[b]] })
	for _, i := range order {
		if n := len(xs); n > 0 && xs[n-1] == t[i] {
			continue
		}
		xs = append(xs, t[i])
		ys = append(ys, v[i])
	}

	out := make([]float64, len(target))
	masked := 0
	half := maxGap / 2
	for k, x := range target {
		out[k] = math.NaN()
		if len(xs) == 0 || !(x >= xs[0] && x <= xs[len(xs)-1]) {
			continue
		}
		j := sort.SearchFloat64s(xs, x)
		if xs[j] == x {
			out[k] = ys[j]
			continue
		}
		x0, x1 := xs[j-1], xs[j]
		if maxGap > 0 && math.Min(x-x0, x1-x) > half {
			masked++
			continue
		}
		out[k] = ys[j-1] + (ys[j]-ys[j-1])*(x-x0)/(x1-x0)
	}
	return out, masked
}
