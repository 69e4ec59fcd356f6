package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jgoulah/espisync/internal/database"
	"github.com/jgoulah/espisync/internal/influx"
	"github.com/jgoulah/espisync/internal/metrics"
	"github.com/jgoulah/espisync/internal/pipeline"
	"github.com/jgoulah/espisync/internal/scraper"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the usage feed and write electric readings to InfluxDB",
	Long: `Downloads the configured ESPI feed, converts every "Electric readings" interval
to UTC and kWh, and writes one energy_usage point per reading.

The whole feed is parsed before any sink is contacted: a malformed document or a
reading with a missing field writes nothing. Writing stops at the first rejected
point.

Exit status: 0 on success, 2 if the feed could not be fetched, 3 if it could not
be parsed, 4 if a sink could not be reached or a write failed, 1 for anything else.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Fetch and parse only; print readings instead of writing them")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireSource(); err != nil {
		return err
	}
	if !syncDryRun {
		if err := cfg.RequireSinks(); err != nil {
			return err
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := newLogger(cfg).With("run_id", runID)
	started := time.Now()
	log.Info("sync started", "source", cfg.Source.URL, "timezone", cfg.Timezone, "dry_run", syncDryRun)

	// The archive also holds the run log, so it is opened before the fetch.
	var db *database.DB
	if !syncDryRun && cfg.Archive.Enabled {
		db, err = openDB(cfg)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer db.Close()
		if err := db.StartRun(ctx, runID, started); err != nil {
			return err
		}
	}

	rec := metrics.New()
	opts := pipeline.Options{
		Fetcher:  scraper.NewFeedScraper(cfg.Source, log.Logger),
		Location: loc,
		Logger:   log.Logger,
		Metrics:  rec,
	}
	if !syncDryRun {
		sinks := &sinkConnector{cfg: cfg, db: db, runID: runID, log: log}
		defer func() {
			if err := sinks.Close(); err != nil {
				log.Warn("closing sinks", "error", err)
			}
		}()
		opts.Connect = sinks.Connect
	}

	result, runErr := pipeline.New(opts).Run(ctx)
	finished := time.Now()

	rec.RunFinished(started, finished, string(pipeline.StageOf(runErr)))
	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("metrics not written", "error", err)
	}

	if db != nil {
		// Record the outcome even when the run was interrupted.
		written := result.Written[influx.SinkName]
		if err := db.FinishRun(context.WithoutCancel(ctx), runID, finished, len(result.Readings), written, runErr); err != nil {
			log.Warn("run not recorded", "error", err)
		}
	}

	if runErr != nil {
		log.Error("sync failed", "stage", pipeline.StageOf(runErr), "error", runErr)
		return runErr
	}

	if syncDryRun {
		printReadings(cmd.OutOrStdout(), result.Readings, loc)
	}

	log.Info("sync complete",
		"readings", len(result.Readings),
		"written", result.Written,
		"duration", finished.Sub(started).Round(time.Millisecond),
	)
	return nil
}
