package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"glider-processor/models"
	"glider-processor/repository"
	"glider-processor/services/fusion"
	"glider-processor/services/profiles"
	"glider-processor/utils"
)

// DepthMismatchThreshold is the median |segmentation depth - science depth|,
// in metres, above which the two depth sensors are reported as disagreeing.
const DepthMismatchThreshold = 5.0

// Result is what one run of a deployment produced.
type Result struct {
	RunID     string
	Datasets  map[models.Variant]*models.Dataset
	Summaries map[models.Variant]models.ProfileSummary
	Warnings  []string
}

// DeploymentController runs the raw -> eng -> sci pipeline of one deployment.
// Each run owns its datasets; nothing is shared between runs.
type DeploymentController struct {
	dc         *models.DeploymentContext
	sources    *SourcesController
	storageCfg *utils.StorageConfig
	repo       repository.ProfileRepository
	pub        repository.Publisher
	variants   map[models.Variant]bool
}

// NewDeploymentController wires a deployment to its sources and outputs.
// An empty variants list runs all three.
func NewDeploymentController(dc *models.DeploymentContext, sources *SourcesController, storageCfg *utils.StorageConfig,
	repo repository.ProfileRepository, pub repository.Publisher, variants []models.Variant) (*DeploymentController, error) {

	if err := dc.Validate(); err != nil {
		return nil, fmt.Errorf("deployment %s: %w", dc.Name, err)
	}
	want := make(map[models.Variant]bool, 3)
	for _, v := range variants {
		switch v {
		case models.VariantRaw, models.VariantEngineering, models.VariantScience:
			want[v] = true
		default:
			return nil, fmt.Errorf("unknown variant %q", v)
		}
	}
	if len(want) == 0 {
		want[models.VariantRaw] = true
		want[models.VariantEngineering] = true
		want[models.VariantScience] = true
	}
	return &DeploymentController{
		dc:         dc,
		sources:    sources,
		storageCfg: storageCfg,
		repo:       repo,
		pub:        pub,
		variants:   want,
	}, nil
}

// ParseVariants splits a "raw,eng,sci" flag value.
func ParseVariants(s string) ([]models.Variant, error) {
	var out []models.Variant
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v := models.Variant(f)
		if v != models.VariantRaw && v != models.VariantEngineering && v != models.VariantScience {
			return nil, fmt.Errorf("unknown variant %q (want raw, eng or sci)", f)
		}
		out = append(out, v)
	}
	return out, nil
}

// Run processes the deployment once. A failure to build the screened time
// base aborts the run. A failure of raw (or of its stored summary) skips
// sci, which propagates it; eng does not depend on raw and still runs. Every
// variant failure is returned after the remaining variants are processed.
func (c *DeploymentController) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Datasets:  map[models.Variant]*models.Dataset{},
		Summaries: map[models.Variant]models.ProfileSummary{},
	}
	log := utils.L().With(fmt.Sprintf("deployment=%s run=%s", c.dc.Name, res.RunID[:8]))
	log.Info("processing started  (variants=%s)", c.variantList())

	rec, err := NewRecordingController(c.storageCfg, c.dc.Name, res.RunID, c.repo, c.pub)
	if err != nil {
		return nil, err
	}

	sources, err := c.sources.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	c.sources.LogStats()

	base, err := c.screenedBase(ctx, sources, log.With("variant=raw"))
	if err != nil {
		return nil, c.fail(log, models.VariantRaw, err)
	}

	var (
		errs       []error
		rawSummary models.ProfileSummary
		rawFailed  bool
	)

	// ── raw ──────────────────────────────────────────────────────────
	if c.variants[models.VariantRaw] {
		raw, summary, err := c.raw(ctx, base, log.With("variant=raw"))
		if err == nil {
			err = rec.Record(ctx, raw, summary, "merged eng+sci time bases; validity screened")
		}
		if err != nil {
			errs = append(errs, c.fail(log, models.VariantRaw, err))
			rawFailed = true
		} else {
			rawSummary = summary
			res.Datasets[models.VariantRaw] = raw
			res.Summaries[models.VariantRaw] = summary
			start, end := summary.Span()
			log.Info("performed %d dives  (%s .. %s)", summary.Dives(), models.FormatTime(start), models.FormatTime(end))
		}
	} else if c.variants[models.VariantScience] {
		s, err := rec.StoredSummary(models.VariantRaw)
		if err == nil {
			err = profiles.CheckSummary(s)
		}
		if err != nil {
			errs = append(errs, c.fail(log, models.VariantRaw, err))
			rawFailed = true
		} else {
			rawSummary = s
		}
	}

	// ── eng ──────────────────────────────────────────────────────────
	if c.variants[models.VariantEngineering] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eng, summary, err := c.engineering(ctx, base, log.With("variant=eng"))
		if err == nil {
			err = rec.Record(ctx, eng, summary, models.MethodLinearFill)
		}
		if err != nil {
			errs = append(errs, c.fail(log, models.VariantEngineering, err))
		} else {
			res.Datasets[models.VariantEngineering] = eng
			res.Summaries[models.VariantEngineering] = summary
		}
	}

	// ── sci ──────────────────────────────────────────────────────────
	if c.variants[models.VariantScience] && rawFailed {
		log.With("variant=sci").Warn("skipped: no raw profile summary")
	} else if c.variants[models.VariantScience] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sci, summary, err := c.science(ctx, base, rawSummary, log.With("variant=sci"))
		if err == nil {
			note := fmt.Sprintf("%s; maxgap=%gs", models.MethodLinearFill, c.dc.MaxGapSeconds)
			err = rec.Record(ctx, sci, summary, note)
		}
		if err != nil {
			errs = append(errs, c.fail(log, models.VariantScience, err))
		} else {
			res.Datasets[models.VariantScience] = sci
			res.Summaries[models.VariantScience] = summary
		}
	}

	res.Warnings = c.crossCheck(res, log)

	if err := rec.Publish(ctx); err != nil {
		errs = append(errs, err)
	}
	log.Info("processing finished  (rows_written=%d, files=%d, warnings=%d, failed_variants=%d)",
		rec.RowsWritten(), len(rec.Committed()), len(res.Warnings), len(errs))
	return res, errors.Join(errs...)
}

// screenedBase merges the two time bases, screens the unified axis and
// removes reviewed time ranges. The result carries no profile assignment.
func (c *DeploymentController) screenedBase(ctx context.Context, sources []models.Source, log *utils.Logger) (*models.Dataset, error) {
	merged, err := fusion.Merge(c.dc.Name, sources)
	if err != nil {
		return nil, err
	}
	log.Info("merged %d time bases onto %d timestamps  (non_finite=%d, duplicates=%d)",
		len(merged.Index), merged.Dataset.Len(), merged.NonFinite, merged.Duplicates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, rep, err := fusion.Screen(merged.Dataset, fusion.WithMinTime(c.dc.MinValidTime))
	if err != nil {
		return nil, err
	}
	logScreen(log, rep)

	ds, counts, err := fusion.DropRanges(ds, c.dc.DropRanges)
	if err != nil {
		return nil, err
	}
	for i, n := range counts {
		r := c.dc.DropRanges[i]
		log.Info("dropped %d record(s) in reviewed range %s .. %s", n, models.FormatTime(r.Start), models.FormatTime(r.End))
	}
	return ds, nil
}

func (c *DeploymentController) params() profiles.Params {
	return profiles.Params{MinExcursion: c.dc.MinDepthExcursion, MinDuration: c.dc.MinProfileDuration}
}

// raw segments the merged, uninterpolated dataset.
func (c *DeploymentController) raw(ctx context.Context, base *models.Dataset, log *utils.Logger) (*models.Dataset, models.ProfileSummary, error) {
	ds, err := profiles.Segment(base.WithVariant(models.VariantRaw), c.dc.DepthChannel, c.params())
	if err != nil {
		return nil, nil, err
	}
	return c.summarize(ctx, ds, c.dc.DepthChannel, log)
}

// engineering keeps the flight-computer channels on their own rows, fills
// their gaps linearly and segments independently of raw.
func (c *DeploymentController) engineering(ctx context.Context, base *models.Dataset, log *utils.Logger) (*models.Dataset, models.ProfileSummary, error) {
	names := c.dc.Channels.Names(models.GroupEngineering)
	ds, rep, err := fusion.Screen(base.Only(names...).WithVariant(models.VariantEngineering),
		fusion.WithMinTime(c.dc.MinValidTime))
	if err != nil {
		return nil, nil, err
	}
	logScreen(log, rep)

	ds, _, err = fusion.Interpolate(ds, ds.Time, c.dc.Channels, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ds, err = profiles.Segment(ds, c.dc.DepthChannel, c.params())
	if err != nil {
		return nil, nil, err
	}
	return c.summarize(ctx, ds, c.dc.DepthChannel, log)
}

// science interpolates every channel onto the unified axis with the gap mask,
// keeps rows where some science channel has a value and propagates the raw
// profile numbering.
func (c *DeploymentController) science(ctx context.Context, base *models.Dataset, rawSummary models.ProfileSummary, log *utils.Logger) (*models.Dataset, models.ProfileSummary, error) {
	if len(rawSummary) == 0 {
		return nil, nil, models.NewProcessingError(models.KindProfileConsistency, "no raw profile summary to propagate")
	}

	ds, rep, err := fusion.Interpolate(base.WithVariant(models.VariantScience), base.Time, c.dc.Channels, c.dc.MaxGapSeconds)
	if err != nil {
		return nil, nil, err
	}
	masked, negative := rep.Total()
	log.Info("interpolated %d channels  (gap_masked=%d, negative_screened=%d)", len(ds.Channels()), masked, negative)
	for name, n := range rep.GapMasked {
		log.Debug("  %s: %d point(s) masked across gaps > %gs", name, n, c.dc.MaxGapSeconds)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sciNames := c.dc.Channels.Names(models.GroupScience)
	ds, srep, err := fusion.Screen(ds,
		fusion.WithMinTime(c.dc.MinValidTime),
		fusion.WithMissingOver(sciNames...),
		fusion.WithRequired(c.dc.RequiredScience...),
		fusion.WithDepth(c.dc.DepthChannel),
	)
	if err != nil {
		return nil, nil, err
	}
	logScreen(log, srep)

	ds, err = profiles.Propagate(ds, rawSummary)
	if err != nil {
		return nil, nil, err
	}
	depth := c.dc.ScienceDepthChannel
	if depth == "" || ds.Values(depth) == nil {
		depth = c.dc.DepthChannel
	}
	return c.summarize(ctx, ds, depth, log)
}

func (c *DeploymentController) summarize(ctx context.Context, ds *models.Dataset, depth string, log *utils.Logger) (*models.Dataset, models.ProfileSummary, error) {
	summary, err := profiles.Summarize(ds, depth)
	if err != nil {
		return nil, nil, err
	}
	if err := profiles.Check(ds, summary, depth, c.params()); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	log.Info("%d profile(s) over %d record(s)", len(summary), ds.Len())
	return ds, summary, nil
}

// crossCheck compares the variants of one run. Disagreements are warnings.
func (c *DeploymentController) crossCheck(res *Result, log *utils.Logger) []string {
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		log.Warn("%s", msg)
	}

	eng, okEng := res.Summaries[models.VariantEngineering]
	sci, okSci := res.Summaries[models.VariantScience]
	if okEng && okSci && math.Abs(float64(eng.MaxIndex()-sci.MaxIndex())) > 0.5 {
		warn("eng and sci profile counts differ: eng=%s sci=%s", indexRange(eng), indexRange(sci))
	}

	if ds, ok := res.Datasets[models.VariantScience]; ok && c.dc.ScienceDepthChannel != "" {
		if med, n := medianDepthDifference(ds, c.dc.DepthChannel, c.dc.ScienceDepthChannel); n > 0 && med > DepthMismatchThreshold {
			warn("%s and %s differ by a median of %.2f m over %d records", c.dc.DepthChannel, c.dc.ScienceDepthChannel, med, n)
		}
	}
	return warnings
}

func (c *DeploymentController) fail(log *utils.Logger, v models.Variant, err error) error {
	err = models.AttachContext(err, c.dc.Name, v)
	log.Error("variant %s aborted: %v", v, err)
	return fmt.Errorf("variant %s: %w", v, err)
}

func (c *DeploymentController) variantList() string {
	var out []string
	for _, v := range []models.Variant{models.VariantRaw, models.VariantEngineering, models.VariantScience} {
		if c.variants[v] {
			out = append(out, string(v))
		}
	}
	return strings.Join(out, ",")
}

func logScreen(log *utils.Logger, rep fusion.ScreenReport) {
	if rep.Dropped() == 0 {
		return
	}
	log.Info("screen dropped %d record(s)  (non_finite=%d, above_ceiling=%d, before_min=%d, all_missing=%d, missing_required=%d, duplicates=%d)",
		rep.Dropped(), len(rep.NonFinite), len(rep.AboveCeiling), len(rep.BeforeMin),
		len(rep.AllMissing), len(rep.MissingRequired), len(rep.Duplicates))
	if len(rep.Duplicates) > 0 {
		log.Debug("duplicate timestamps at input indices %v", rep.Duplicates)
	}
	if rep.DeepRequired > 0 {
		log.Warn("%d record(s) deeper than %.0f m dropped for missing required channels", rep.DeepRequired, fusion.DeepDropThreshold)
	}
}

func indexRange(s models.ProfileSummary) string {
	if len(s) == 0 {
		return "[]"
	}
	return fmt.Sprintf("[%d..%d]", s[0].Index, s.MaxIndex())
}

// medianDepthDifference returns the median absolute difference between two
// depth channels over rows where both are valid, and that row count.
func medianDepthDifference(ds *models.Dataset, a, b string) (float64, int) {
	va, vb := ds.Values(a), ds.Values(b)
	if va == nil || vb == nil {
		return math.NaN(), 0
	}
	var diffs []float64
	for i := range va {
		if math.IsNaN(va[i]) || math.IsNaN(vb[i]) {
			continue
		}
		diffs = append(diffs, math.Abs(va[i]-vb[i]))
	}
	if len(diffs) == 0 {
		return math.NaN(), 0
	}
	sort.Float64s(diffs)
	n := len(diffs)
	if n%2 == 1 {
		return diffs[n/2], n
	}
	return (diffs[n/2-1] + diffs[n/2]) / 2, n
}
