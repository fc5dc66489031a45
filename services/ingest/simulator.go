package ingest

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"

	"glider-processor/models"
	"glider-processor/utils"
)

// Simulator fabricates a deterministic glider deployment: a sawtooth dive
// pattern sampled by two independent clocks, with the defects real decoded
// data carries (science dropouts, repeated flight-computer ticks, a few
// timestamps from before the clock was set).
type Simulator struct {
	cfg utils.SimulationConfig
	dc  *models.DeploymentContext
	rng *rand.Rand

	produced uint64
	defects  uint64
}

// NewSimulator fills unset simulation fields with usable defaults.
func NewSimulator(cfg utils.SimulationConfig, dc *models.DeploymentContext) *Simulator {
	if cfg.DurationSeconds <= 0 {
		cfg.DurationSeconds = 6 * 3600
	}
	if cfg.EngPeriodSec <= 0 {
		cfg.EngPeriodSec = 4
	}
	if cfg.SciPeriodSec <= 0 {
		cfg.SciPeriodSec = 3
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 200
	}
	if cfg.VerticalSpeed <= 0 {
		cfg.VerticalSpeed = 0.2
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return &Simulator{
		cfg: cfg,
		dc:  dc,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Start returns the simulated deployment start in epoch seconds.
func (s *Simulator) Start() float64 {
	if s.cfg.Start != "" {
		if t, err := utils.ParseEpoch(s.cfg.Start); err == nil {
			return t
		}
		utils.L().Warn("simulator: bad start %q, using default", s.cfg.Start)
	}
	return s.dc.MinValidTime + 86400
}

// LegSeconds is the duration of one dive or climb.
func (s *Simulator) LegSeconds() float64 { return s.cfg.MaxDepth / s.cfg.VerticalSpeed }

// Depth is the noiseless simulated depth at t.
func (s *Simulator) Depth(t float64) float64 {
	leg := s.LegSeconds()
	phase := math.Mod(t-s.Start(), 2*leg)
	if phase < 0 {
		phase += 2 * leg
	}
	if phase <= leg {
		return phase * s.cfg.VerticalSpeed
	}
	return (2*leg - phase) * s.cfg.VerticalSpeed
}

// Generate builds the engineering and science sources.
func (s *Simulator) Generate(ctx context.Context) ([]models.Source, error) {
	start := s.Start()
	end := start + float64(s.cfg.DurationSeconds)

	eng := s.group(models.GroupEngineering, start, end, s.cfg.EngPeriodSec)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sci := s.group(models.GroupScience, start+s.cfg.SciPeriodSec/2, end, s.cfg.SciPeriodSec)

	s.injectEngDefects(&eng)
	s.injectSciDropout(&sci, start, end)

	utils.L().Info("simulator generated    (eng=%d, sci=%d, legs=%.1f, defects=%d)",
		eng.Len(), sci.Len(), float64(s.cfg.DurationSeconds)/s.LegSeconds(), atomic.LoadUint64(&s.defects))
	return []models.Source{eng, sci}, nil
}

func (s *Simulator) group(g models.Group, start, end, period float64) models.Source {
	src := models.Source{Group: g}
	for t := start; t <= end; t += period {
		src.Time = append(src.Time, t)
	}
	for _, spec := range s.dc.Channels.Specs() {
		if spec.Group != g {
			continue
		}
		vals := make([]float64, len(src.Time))
		for i, t := range src.Time {
			vals[i] = s.value(spec, t)
		}
		src.Channels = append(src.Channels, &models.Channel{Name: spec.Name, Group: g, Values: vals})
	}
	atomic.AddUint64(&s.produced, uint64(len(src.Time)))
	return src
}

// value synthesises one reading. Depth channels follow the sawtooth; every
// other channel is a smooth function of depth plus noise.
func (s *Simulator) value(spec models.ChannelSpec, t float64) float64 {
	z := s.Depth(t)
	noise := s.rng.NormFloat64()
	name := strings.ToLower(spec.Name)
	switch {
	case spec.Name == s.dc.DepthChannel || spec.Name == s.dc.ScienceDepthChannel || strings.Contains(name, "depth"):
		return math.Max(0, z+0.05*noise)
	case strings.Contains(name, "pressure"):
		return math.Max(0, z/10.0+0.005*noise) // bar
	case strings.Contains(name, "temp"):
		return 18 - 10*(1-math.Exp(-z/60)) + 0.02*noise
	case strings.Contains(name, "cond"):
		return 4.2 - 0.3*(1-math.Exp(-z/60)) + 0.002*noise
	case strings.Contains(name, "sal"):
		return 35 + 0.5*(1-math.Exp(-z/80)) + 0.01*noise
	case strings.Contains(name, "oxygen"):
		return 250 - 0.4*z + noise
	}
	if spec.NonNegative {
		// decays to zero at depth; noise pushes some readings negative
		return 2*math.Exp(-z/25) + 0.05*noise
	}
	return math.Sin(z/20) + 0.01*noise
}

// injectEngDefects repeats a few ticks and stamps a few rows with
// pre-deployment timestamps.
func (s *Simulator) injectEngDefects(src *models.Source) {
	n := src.Len()
	if n < 20 {
		return
	}
	for k := 0; k < 3; k++ {
		i := 10 + s.rng.Intn(n-20)
		src.Time[i+1] = src.Time[i]
		atomic.AddUint64(&s.defects, 1)
	}
	for k := 0; k < 2; k++ {
		i := 1 + s.rng.Intn(n-2)
		src.Time[i] = 86400 * float64(k+1) // 1970
		atomic.AddUint64(&s.defects, 1)
	}
}

// injectSciDropout blanks every science channel for a window in the middle
// of the deployment, longer than the deployment's max gap.
func (s *Simulator) injectSciDropout(src *models.Source, start, end float64) {
	width := 4 * s.dc.MaxGapSeconds
	if width >= (end-start)/4 {
		return
	}
	from := start + (end-start)/2
	to := from + width
	for i, t := range src.Time {
		if t < from || t > to {
			continue
		}
		for _, c := range src.Channels {
			c.Values[i] = math.NaN()
		}
		atomic.AddUint64(&s.defects, 1)
	}
}

// Stats returns the generated samples and injected defects.
func (s *Simulator) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&s.produced), atomic.LoadUint64(&s.defects)
}
