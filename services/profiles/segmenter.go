package profiles

import (
	"math"

	"glider-processor/models"
)

// Params are the noise-filter thresholds of the segmenter.
type Params struct {
	// MinExcursion is the depth change, in metres, away from the current
	// extremum that is accepted as motion or as a reversal.
	MinExcursion float64
	// MinDuration is the shortest profile, in seconds, that is kept.
	MinDuration float64
}

// DefaultParams are used when the deployment does not override them.
func DefaultParams() Params {
	return Params{MinExcursion: 3.0, MinDuration: 60}
}

type state int

const (
	surface state = iota
	diving
	climbing
)

// segment spans valid-depth positions [first, last].
type segment struct {
	first, last int
	dir         models.Direction
}

// Segment splits the depth channel of ds into alternating dive and climb
// profiles and returns a snapshot carrying profile_index and
// profile_direction. ds must be screened (time ordered).
//
// The turning sample of a reversal belongs to the profile it ends. A profile
// still open at the end of the stream ends at its last extremum and is kept
// when it meets MinDuration; samples after that extremum are unassigned.
// A climb that stays within MinExcursion of its shallowest depth for
// MinDuration has reached the surface: it ends there and the samples up to
// the next dive are unassigned. Segments shorter than MinDuration are
// discarded and the profiles on either side of them merge.
func Segment(ds *models.Dataset, depthChannel string, p Params) (*models.Dataset, error) {
	depth := ds.Values(depthChannel)
	if depth == nil {
		return nil, models.NewProcessingError(models.KindDegenerateSegmentation,
			"depth channel %s not present", depthChannel).
			WithContext(ds.Deployment, ds.Variant)
	}

	valid := make([]int, 0, len(depth))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, d := range depth {
		if math.IsNaN(d) {
			continue
		}
		valid = append(valid, i)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	if len(valid) == 0 {
		return nil, models.NewProcessingError(models.KindDegenerateSegmentation,
			"depth channel %s is entirely missing", depthChannel).
			WithContext(ds.Deployment, ds.Variant)
	}
	if lo == hi {
		return nil, models.NewProcessingError(models.KindDegenerateSegmentation,
			"depth channel %s is constant at %.3f", depthChannel, lo).
			At(valid[0], ds.Time[valid[0]]).
			WithContext(ds.Deployment, ds.Variant)
	}

	segs := detect(ds.Time, depth, valid, p)
	index, dir := assign(len(depth), valid, segs)

	out, err := ds.WithChannel(&models.Channel{Name: models.ProfileIndexName, Values: index})
	if err != nil {
		return nil, err
	}
	return out.WithChannel(&models.Channel{Name: models.ProfileDirectionName, Values: dir})
}

// detect runs the hysteresis state machine over the valid depth samples.
// Positions in the returned segments index into valid. Consecutive kept
// segments always alternate in direction.
func detect(t, depth []float64, valid []int, p Params) []segment {
	d := func(k int) float64 { return depth[valid[k]] }

	var (
		segs    []segment
		st      = surface
		first   int // first position of the open segment
		ext     int // extremum candidate of the open segment
		arrive  int // start of the climb's run within MinExcursion of ext
		minPos  int
		maxPos  int
		minimum = math.Inf(1)
		maximum = math.Inf(-1)
	)

	closeAt := func(last int, dir models.Direction) {
		dur := t[valid[last]] - t[valid[first]]
		if !(dur > 0 && dur >= p.MinDuration) {
			return
		}
		if n := len(segs); n > 0 && segs[n-1].dir == dir {
			segs[n-1].last = last
			return
		}
		segs = append(segs, segment{first: first, last: last, dir: dir})
	}

	// track keeps the surface extrema; the latest of equal values wins so
	// the next profile starts from the last sample at the surface.
	track := func(k int) {
		if v := d(k); v <= minimum {
			minimum, minPos = v, k
		}
		if v := d(k); v >= maximum {
			maximum, maxPos = v, k
		}
	}

	reach := func() {
		arrive = ext
		for arrive > first && d(arrive-1) < d(ext)+p.MinExcursion {
			arrive--
		}
	}

	for k := 0; k < len(valid); k++ {
		v := d(k)
		switch st {
		case surface:
			track(k)
			switch {
			case v-minimum >= p.MinExcursion && k > minPos:
				st, first, ext = diving, minPos, k
			case maximum-v >= p.MinExcursion && k > maxPos:
				st, first, ext = climbing, maxPos, k
				reach()
			}
		case diving:
			if v > d(ext) {
				ext = k
			} else if d(ext)-v >= p.MinExcursion {
				closeAt(ext, models.DirectionDive)
				st, first, ext = climbing, ext+1, k
				reach()
			}
		case climbing:
			if v < d(ext) {
				ext = k
				reach()
			} else if v-d(ext) >= p.MinExcursion {
				closeAt(ext, models.DirectionClimb)
				st, first, ext = diving, ext+1, k
			} else if p.MinDuration > 0 && t[valid[k]]-t[valid[arrive]] >= p.MinDuration {
				closeAt(ext, models.DirectionClimb)
				st = surface
				minimum, maximum = math.Inf(1), math.Inf(-1)
				for j := ext + 1; j <= k; j++ {
					track(j)
				}
			}
		}
	}

	switch st {
	case diving:
		closeAt(ext, models.DirectionDive)
	case climbing:
		closeAt(ext, models.DirectionClimb)
	}
	return segs
}

// assign expands segments to per-sample values. Samples without a valid
// depth inherit the profile of their valid neighbours when both belong to
// the same profile.
func assign(n int, valid []int, segs []segment) (index, dir []float64) {
	index = make([]float64, n)
	dir = make([]float64, n)
	prof := make([]int, n) // 0 = unassigned
	pdir := make([]models.Direction, n)

	for s, seg := range segs {
		for k := seg.first; k <= seg.last; k++ {
			prof[valid[k]] = s + 1
			pdir[valid[k]] = seg.dir
		}
	}

	// fill missing-depth samples lying strictly inside one profile
	for k := 1; k < len(valid); k++ {
		a, b := valid[k-1], valid[k]
		if prof[a] == 0 || prof[a] != prof[b] {
			continue
		}
		for i := a + 1; i < b; i++ {
			prof[i] = prof[a]
			pdir[i] = pdir[a]
		}
	}

	last := 0
	for i := 0; i < n; i++ {
		if prof[i] > 0 {
			last = prof[i]
			index[i] = float64(prof[i])
			dir[i] = float64(pdir[i])
			continue
		}
		index[i] = unassigned(last)
		dir[i] = math.NaN()
	}
	return index, dir
}

// unassigned encodes a sample outside every profile: 0 before the first
// profile, k+0.5 after profile k.
func unassigned(last int) float64 {
	if last == 0 {
		return 0
	}
	return float64(last) + 0.5
}
