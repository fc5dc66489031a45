package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/robfig/cron/v3"

	"glider-processor/controller"
	"glider-processor/models"
	"glider-processor/repository"
	"glider-processor/utils"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	deploymentPath := flag.String("deployment", "config/deployment.yaml", "path to deployment.yaml")
	storagePath := flag.String("storage", "config/storage.yaml", "path to storage.yaml")
	envPath := flag.String("env", ".env", "optional .env file with bucket credentials")
	engPath := flag.String("eng", "", "decoded engineering (flight computer) CSV")
	sciPath := flag.String("sci", "", "decoded science computer CSV")
	simulate := flag.Bool("simulate", false, "process a simulated deployment instead of decoded files")
	variantsFlag := flag.String("variants", "raw,eng,sci", "comma-separated variants to produce")
	logFile := flag.String("log", "", "optional log file path (stdout is always included)")
	logLevel := flag.String("loglevel", "info", "debug, info, warn or error")
	cronSpec := flag.String("cron", "", "reprocess on this cron schedule until interrupted, e.g. \"*/30 * * * *\"")
	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────
	lvl, err := utils.ParseLevel(*logLevel)
	logger := utils.InitLogger(lvl, *logFile)
	defer logger.Close()
	if err != nil {
		utils.L().Warn("%v, using INFO", err)
	}

	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  glider-processor  ·  multi-rate fusion & profiles")
	utils.L().Info("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	// ── Load configs ─────────────────────────────────────────────────
	if err := utils.LoadEnv(*envPath); err != nil {
		utils.L().Fatal("%v", err)
	}
	deploymentCfg, err := utils.LoadDeploymentConfig(*deploymentPath)
	if err != nil {
		utils.L().Fatal("load deployment config: %v", err)
	}
	storageCfg, err := utils.LoadStorageConfig(*storagePath)
	if err != nil {
		utils.L().Fatal("load storage config: %v", err)
	}
	dc, err := deploymentCfg.Context()
	if err != nil {
		utils.L().Fatal("deployment context: %v", err)
	}
	variants, err := controller.ParseVariants(*variantsFlag)
	if err != nil {
		utils.L().Fatal("%v", err)
	}

	// Resolve relative base_dir to absolute.
	if !filepath.IsAbs(storageCfg.Storage.BaseDir) {
		abs, _ := filepath.Abs(storageCfg.Storage.BaseDir)
		storageCfg.Storage.BaseDir = abs
	}

	// ── Outputs ──────────────────────────────────────────────────────
	var repo repository.ProfileRepository
	if p := storageCfg.Storage.Database.Path; p != "" {
		r, err := repository.NewSQLiteProfileRepository(p)
		if err != nil {
			utils.L().Fatal("open profile database: %v", err)
		}
		defer r.Close()
		repo = r
		utils.L().Info("profile database: %s", r.DBPath)
	}

	var pub repository.Publisher
	if b := storageCfg.Storage.Bucket; b.Enabled {
		p, err := repository.NewBucketPublisher(b.Endpoint, b.AccessKey, b.SecretKey, b.Bucket, b.Prefix, b.Secure)
		if err != nil {
			utils.L().Fatal("bucket: %v", err)
		}
		pub = p
		utils.L().Info("publishing to %s/%s", b.Endpoint, b.Bucket)
	}

	// ── Pipeline assembly ────────────────────────────────────────────
	//
	//  eng CSV ─┐                       ┌─► raw  (segment)            ─┐
	//           ├─► merge ─► screen ────┼─► eng  (fill, segment)       ├─► RecordingController
	//  sci CSV ─┘                       └─► sci  (gap fill, propagate) ─┘        │
	//                                                              CSV + meta + sqlite + bucket
	sources, err := controller.NewSourcesController(dc, deploymentCfg.Simulation, *engPath, *sciPath, *simulate)
	if err != nil {
		utils.L().Fatal("sources: %v", err)
	}
	deployment, err := controller.NewDeploymentController(dc, sources, storageCfg, repo, pub, variants)
	if err != nil {
		utils.L().Fatal("init deployment controller: %v", err)
	}

	// ── Context with OS signal cancellation ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		utils.L().Info("received signal: %v, shutting down", sig)
		cancel()
	}()

	runOnce := func() error {
		res, err := deployment.Run(ctx)
		if res != nil {
			for v, s := range res.Summaries {
				utils.L().Info("  %-4s profiles=%d dives=%d", v, len(s), s.Dives())
			}
		}
		return err
	}

	if *cronSpec == "" {
		if err := runOnce(); err != nil {
			reportFailure(err)
			os.Exit(1)
		}
		fmt.Println("\n✓ glider-processor finished. Output at:", filepath.Join(storageCfg.Storage.BaseDir, dc.Name))
		return
	}

	// ── Scheduled reprocessing ───────────────────────────────────────
	if !storageCfg.Storage.Overwrite {
		utils.L().Warn("cron runs rewrite the same files; storage.overwrite=false will fail every run after the first")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(*cronSpec, func() {
		if err := runOnce(); err != nil {
			reportFailure(err)
		}
	})
	if err != nil {
		utils.L().Fatal("cron schedule %q: %v", *cronSpec, err)
	}
	utils.L().Info("reprocessing scheduled (%s), press Ctrl+C to stop", *cronSpec)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	utils.L().Info("scheduler stopped")
}

// reportFailure logs the kind of every fatal processing error in err.
func reportFailure(err error) {
	var pe *models.ProcessingError
	if errors.As(err, &pe) {
		utils.L().Error("%s (deployment=%s variant=%s)", pe.Kind, pe.Deployment, pe.Variant)
	}
	utils.L().Error("run failed: %v", err)
}
