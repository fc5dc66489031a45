package profiles

import (
	"fmt"
	"math"
	"sort"

	"glider-processor/models"
)

// Summarize aggregates the per-sample profile assignment of ds into one
// record per profile, ordered by index. Start and end depth are the first
// and last valid values of depthChannel inside the profile; NaN when the
// channel is absent or never valid there.
func Summarize(ds *models.Dataset, depthChannel string) (models.ProfileSummary, error) {
	index := ds.Values(models.ProfileIndexName)
	if index == nil {
		return nil, fmt.Errorf("summarize %s/%s: no %s channel", ds.Deployment, ds.Variant, models.ProfileIndexName)
	}
	dir := ds.Values(models.ProfileDirectionName)
	depth := ds.Values(depthChannel)

	byIndex := make(map[int]*models.ProfileRecord)
	for i, p := range index {
		if !models.IsAssigned(p) {
			continue
		}
		k := int(p)
		rec, ok := byIndex[k]
		if !ok {
			rec = &models.ProfileRecord{
				Index:      k,
				StartTime:  ds.Time[i],
				StartDepth: math.NaN(),
				EndDepth:   math.NaN(),
			}
			if dir != nil && !math.IsNaN(dir[i]) {
				rec.Direction = models.Direction(int(dir[i]))
			}
			byIndex[k] = rec
		}
		rec.EndTime = ds.Time[i]
		rec.Samples++
		if depth != nil && !math.IsNaN(depth[i]) {
			if math.IsNaN(rec.StartDepth) {
				rec.StartDepth = depth[i]
			}
			rec.EndDepth = depth[i]
		}
	}

	out := make(models.ProfileSummary, 0, len(byIndex))
	for _, rec := range byIndex {
		out = append(out, *rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out, nil
}
