package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"glider-processor/models"
	"glider-processor/repository"
	"glider-processor/utils"
	"glider-processor/views"
)

// RecordingController is the final stage of every variant. It persists:
//   - the dataset CSV           <deployment>-<variant>.csv
//   - the profile summary CSV   <deployment>-<variant>-profiles.csv
//   - the side file             <deployment>-<variant>.meta.yaml
//   - the summary in the profile database (optional)
//
// A variant is recorded all-or-nothing: files are written under a part name
// and renamed once complete; the database row is saved last and a failure
// there removes the renamed files again.
type RecordingController struct {
	storageCfg *utils.StorageConfig
	deployment string
	outDir     string
	runID      string

	repo repository.ProfileRepository
	pub  repository.Publisher

	committed   []string
	rowsWritten uint64
}

// NewRecordingController prepares the deployment's output directory. repo
// and pub may be nil.
func NewRecordingController(storageCfg *utils.StorageConfig, deployment, runID string,
	repo repository.ProfileRepository, pub repository.Publisher) (*RecordingController, error) {

	outDir := filepath.Join(storageCfg.Storage.BaseDir, deployment)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &RecordingController{
		storageCfg: storageCfg,
		deployment: deployment,
		outDir:     outDir,
		runID:      runID,
		repo:       repo,
		pub:        pub,
	}, nil
}

// Paths returns the dataset, summary and side-file paths of a variant.
func (rc *RecordingController) Paths(variant models.Variant) (dataset, summary, meta string) {
	base := filepath.Join(rc.outDir, utils.OutputName(rc.deployment, string(variant)))
	return base + ".csv", base + "-profiles.csv", base + ".meta.yaml"
}

// Record persists one finished variant.
func (rc *RecordingController) Record(ctx context.Context, ds *models.Dataset, summary models.ProfileSummary, processing string) error {
	dsPath, sumPath, metaPath := rc.Paths(ds.Variant)

	if !rc.storageCfg.Storage.Overwrite {
		if _, err := os.Stat(dsPath); err == nil {
			return fmt.Errorf("%s already exists (overwrite=false)", dsPath)
		}
	}

	csvCfg := rc.storageCfg.Storage.CSV
	bufSize := csvCfg.BufferSizeKB * 1024

	dsWriter, err := views.NewCSVWriter(dsPath, bufSize, csvCfg.WriteHeader, views.DatasetHeader(ds))
	if err != nil {
		return err
	}
	defer dsWriter.Abort()

	// the summary schema is fixed; its header is always written
	sumWriter, err := views.NewCSVWriter(sumPath, bufSize, true, views.SummaryColumns)
	if err != nil {
		return err
	}
	defer sumWriter.Abort()

	for i := 0; i < ds.Len(); i++ {
		if i%50000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		dsWriter.WriteRow(views.DatasetRow(ds, i))
	}
	for _, p := range summary {
		sumWriter.WriteRecord(p)
	}
	if err := dsWriter.Flush(); err != nil {
		return err
	}
	if err := sumWriter.Flush(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := sumWriter.Commit(); err != nil {
		return err
	}
	if err := dsWriter.Commit(); err != nil {
		os.Remove(sumPath)
		return err
	}

	meta := views.BuildMeta(rc.runID, ds, summary, processing, time.Now().UTC().Format(time.RFC3339))
	if err := views.WriteMeta(metaPath, meta); err != nil {
		os.Remove(sumPath)
		os.Remove(dsPath)
		return err
	}

	if rc.repo != nil {
		if err := rc.repo.SaveSummary(rc.runID, rc.deployment, ds.Variant, summary); err != nil {
			os.Remove(metaPath)
			os.Remove(sumPath)
			os.Remove(dsPath)
			return fmt.Errorf("store %s summary: %w", ds.Variant, err)
		}
	}

	rc.committed = append(rc.committed, dsPath, sumPath, metaPath)
	atomic.AddUint64(&rc.rowsWritten, dsWriter.Rows())
	utils.L().Info("recorded %s  (rows=%d, profiles=%d, run=%s)", dsWriter.Path(), dsWriter.Rows(), sumWriter.Rows(), rc.runID)
	return nil
}

// StoredSummary returns a previously committed summary of variant, from the
// profile database when configured, otherwise from its summary CSV.
func (rc *RecordingController) StoredSummary(variant models.Variant) (models.ProfileSummary, error) {
	if rc.repo != nil {
		s, runID, err := rc.repo.LoadSummary(rc.deployment, variant)
		if err == nil {
			utils.L().Info("loaded stored %s summary  (profiles=%d, run=%s)", variant, len(s), runID)
			return s, nil
		}
		if !errors.Is(err, repository.ErrNoSummary) {
			return nil, err
		}
	}
	_, sumPath, _ := rc.Paths(variant)
	s, err := views.LoadSummary(sumPath)
	if err != nil {
		return nil, fmt.Errorf("no stored %s summary: %w", variant, err)
	}
	utils.L().Info("loaded %s  (profiles=%d)", sumPath, len(s))
	return s, nil
}

// Publish uploads every file committed by this controller.
func (rc *RecordingController) Publish(ctx context.Context) error {
	if rc.pub == nil || len(rc.committed) == 0 {
		return nil
	}
	if err := rc.pub.PublishDeployment(ctx, rc.deployment, rc.committed); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	utils.L().Info("published %d file(s) of %s", len(rc.committed), rc.deployment)
	return nil
}

// Committed returns the files written so far.
func (rc *RecordingController) Committed() []string {
	return append([]string(nil), rc.committed...)
}

// RowsWritten returns the total number of dataset rows persisted.
func (rc *RecordingController) RowsWritten() uint64 {
	return atomic.LoadUint64(&rc.rowsWritten)
}
