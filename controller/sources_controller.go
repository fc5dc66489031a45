package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glider-processor/models"
	"glider-processor/services/ingest"
	"glider-processor/utils"
)

// SourcesController produces the two decoded instrument groups of a
// deployment, either from decoded CSV files or from the simulator.
type SourcesController struct {
	eng *ingest.CSVReader
	sci *ingest.CSVReader
	sim *ingest.Simulator
}

// NewSourcesController picks the simulator when simulate is set, otherwise
// CSV readers for engPath and sciPath.
func NewSourcesController(dc *models.DeploymentContext, simCfg utils.SimulationConfig, engPath, sciPath string, simulate bool) (*SourcesController, error) {
	sc := &SourcesController{}
	if simulate || simCfg.Enabled {
		sc.sim = ingest.NewSimulator(simCfg, dc)
		return sc, nil
	}
	if engPath == "" || sciPath == "" {
		return nil, fmt.Errorf("both -eng and -sci decoded files are required unless simulating")
	}
	sc.eng = ingest.NewCSVReader(engPath, models.GroupEngineering, dc.Channels)
	sc.sci = ingest.NewCSVReader(sciPath, models.GroupScience, dc.Channels)
	return sc, nil
}

// Load returns the engineering and science sources. The two decoded files
// are read concurrently, one goroutine per group.
func (sc *SourcesController) Load(ctx context.Context) ([]models.Source, error) {
	if sc.sim != nil {
		return sc.sim.Generate(ctx)
	}

	readers := []*ingest.CSVReader{sc.eng, sc.sci}
	out := make([]models.Source, len(readers))
	errs := make([]error, len(readers))

	var wg sync.WaitGroup
	for i, r := range readers {
		wg.Add(1)
		go func(i int, r *ingest.CSVReader) {
			defer wg.Done()
			out[i], errs[i] = r.Read(ctx)
		}(i, r)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	utils.L().Info("sources controller: both decoded groups loaded")
	return out, nil
}

// LogStats prints produce/defect counters for the active source.
func (sc *SourcesController) LogStats() {
	if sc.sim != nil {
		p, d := sc.sim.Stats()
		utils.L().Info("  simulator  produced=%d  defects=%d", p, d)
		return
	}
	if sc.eng != nil {
		r, b := sc.eng.Stats()
		utils.L().Info("  eng        rows=%d  bad_cells=%d  skipped=%v", r, b, sc.eng.Skipped())
	}
	if sc.sci != nil {
		r, b := sc.sci.Stats()
		utils.L().Info("  sci        rows=%d  bad_cells=%d  skipped=%v", r, b, sc.sci.Skipped())
	}
}
