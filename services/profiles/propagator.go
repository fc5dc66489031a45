package profiles

import (
	"math"
	"sort"

	"glider-processor/models"
)

// Propagate assigns every timestamp of ds the profile of summary whose
// closed interval [StartTime, EndTime] contains it. A timestamp on the
// boundary shared by two profiles goes to the earlier one. Timestamps
// outside every interval are unassigned. summary must have passed
// CheckSummary, so its intervals are ordered.
func Propagate(ds *models.Dataset, summary models.ProfileSummary) (*models.Dataset, error) {
	index := make([]float64, ds.Len())
	dir := make([]float64, ds.Len())

	for i, t := range ds.Time {
		k := sort.Search(len(summary), func(j int) bool { return summary[j].EndTime >= t })
		if k < len(summary) && summary[k].StartTime <= t {
			index[i] = float64(summary[k].Index)
			dir[i] = float64(summary[k].Direction)
			continue
		}
		last := 0
		if k > 0 {
			last = summary[k-1].Index
		}
		index[i] = unassigned(last)
		dir[i] = math.NaN()
	}

	out, err := ds.WithChannel(&models.Channel{Name: models.ProfileIndexName, Values: index})
	if err != nil {
		return nil, err
	}
	return out.WithChannel(&models.Channel{Name: models.ProfileDirectionName, Values: dir})
}
