package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/docpipe/pkg/api"
	"github.com/cuemby/docpipe/pkg/auth"
	"github.com/cuemby/docpipe/pkg/cleanup"
	"github.com/cuemby/docpipe/pkg/config"
	"github.com/cuemby/docpipe/pkg/filestore"
	"github.com/cuemby/docpipe/pkg/finalizer"
	"github.com/cuemby/docpipe/pkg/jobstore"
	"github.com/cuemby/docpipe/pkg/log"
	"github.com/cuemby/docpipe/pkg/metrics"
	"github.com/cuemby/docpipe/pkg/processor"
	"github.com/cuemby/docpipe/pkg/scheduler"
	"github.com/cuemby/docpipe/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "docpipe - multi-tenant PDF processing service",
	Long: `docpipe is an HTTP service that accepts PDF and office-document
processing jobs (compress, merge, split, convert, and more) from
authenticated tenants, enforces per-tenant quotas, and runs them through
a bounded worker pool backed by local subprocess tooling.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"docpipe version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides DOCPIPE_LOG_LEVEL")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format; overrides DOCPIPE_LOG_JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if json, _ := cmd.Flags().GetBool("log-json"); json {
		cfg.LogJSON = true
	}
	return cfg, nil
}

func initLogging(cfg config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docpipe HTTP API server",
	Long: `serve starts the HTTP API, the background worker pool, the job
Finalizer, and the Cleanup Service, and blocks until interrupted.`,
	RunE: runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Ensure the Job Store's on-disk buckets exist and seed default plans",
	Long: `migrate opens the bbolt Job Store (creating it if missing), which
provisions every bucket the store needs, then seeds the built-in "free"
plan if it is not already present. Safe to run repeatedly.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogging(cfg)

	store, err := jobstore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	if _, err := store.GetPlan("free"); err != nil {
		if err := store.PutPlan(defaultFreePlan()); err != nil {
			return fmt.Errorf("seed default plan: %w", err)
		}
		log.Logger.Info().Msg("seeded default free plan")
	}
	log.Logger.Info().Str("data_dir", cfg.DataDir).Msg("migration complete")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initLogging(cfg)
	metrics.SetVersion(Version)

	store, err := jobstore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("jobstore", true, "")

	if _, err := store.GetPlan("free"); err != nil {
		if err := store.PutPlan(defaultFreePlan()); err != nil {
			return fmt.Errorf("seed default plan: %w", err)
		}
	}

	files, err := filestore.New(cfg.StorageBasePath)
	if err != nil {
		return fmt.Errorf("open filestore: %w", err)
	}
	metrics.RegisterComponent("filestore", true, "")

	collector := metrics.NewCollector(files.Root)
	collector.Start()
	defer collector.Stop()

	registry := processor.NewRegistry(processor.Config{
		SofficePath:        cfg.SofficePath,
		WkhtmltopdfPath:    cfg.WkhtmltopdfPath,
		DefaultOCRLanguage: cfg.DefaultOCRLanguage,
	})

	final := finalizer.New(store, files)

	sched := scheduler.New(store, files, registry, final, scheduler.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		ProcessingTimeout: cfg.ProcessingTimeout(),
	})
	sched.Start()
	defer sched.Stop()
	metrics.RegisterComponent("scheduler", true, "")

	sweeper := cleanup.New(store, files, cleanup.Config{
		MaxFileAge:           cfg.MaxFileAge(),
		MaxTempFileAge:       cfg.MaxTempFileAge(),
		TerminalJobRetention: cfg.TerminalJobRetention(),
	})
	sweeper.Start()
	defer sweeper.Stop()

	authenticator, err := auth.New(store, auth.Config{
		SecretKey:       cfg.SecretKey,
		AccessTokenTTL:  cfg.AccessTokenTTL(),
		RefreshTokenTTL: cfg.RefreshTokenTTL(),
	})
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	server := api.NewServer(api.Config{
		Store:       store,
		Files:       files,
		Scheduler:   sched,
		Auth:        authenticator,
		CORSOrigins: cfg.CORSOrigins,
	})
	metrics.RegisterComponent("api", true, "")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		log.Logger.Info().Msg("shutting down")
	}
	return nil
}

func defaultFreePlan() *types.Plan {
	return &types.Plan{
		ID:                "free",
		Name:              "Free",
		MaxFilesPerPeriod: 50,
		MaxFileSizeBytes:  25 << 20,
		Active:            true,
	}
}
