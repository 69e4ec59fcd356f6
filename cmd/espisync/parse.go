package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jgoulah/espisync/internal/database"
	"github.com/jgoulah/espisync/internal/pipeline"
	"github.com/jgoulah/espisync/pkg/models"
)

var parseWrite bool

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Parse a saved feed document",
	Long: `Parses an ESPI feed saved to disk ("-" reads stdin) and prints the normalized
electric readings. With --write the readings are also written to the configured
sinks, which is useful for backfilling from a downloaded export.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&parseWrite, "write", false, "Write the readings to InfluxDB and any enabled sinks")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := newLogger(cfg).With("run_id", runID, "file", args[0])

	opts := pipeline.Options{
		Location: loc,
		Logger:   log.Logger,
	}
	if parseWrite {
		if err := cfg.RequireSinks(); err != nil {
			return err
		}
		var db *database.DB
		if cfg.Archive.Enabled {
			db, err = openDB(cfg)
			if err != nil {
				return fmt.Errorf("opening archive: %w", err)
			}
			defer db.Close()
		}
		sinks := &sinkConnector{cfg: cfg, db: db, runID: runID, log: log}
		defer func() {
			if err := sinks.Close(); err != nil {
				log.Warn("closing sinks", "error", err)
			}
		}()
		opts.Connect = sinks.Connect
	}

	p := pipeline.New(opts)
	result, err := p.Process(ctx, data)
	if err != nil {
		return err
	}

	printReadings(cmd.OutOrStdout(), result.Readings, loc)
	return nil
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}
	return data, nil
}

// printReadings writes a table of readings with UTC and local start times
func printReadings(w io.Writer, readings []models.Reading, loc *time.Location) {
	if len(readings) == 0 {
		fmt.Fprintln(w, "No electric readings found")
		return
	}

	fmt.Fprintln(w, "------------------------------------------------------------------")
	fmt.Fprintf(w, "%-20s  %-25s  %8s  %10s\n", "Start (UTC)", "Start (local)", "Seconds", "kWh")
	fmt.Fprintln(w, "------------------------------------------------------------------")

	var total float64
	for _, r := range readings {
		fmt.Fprintf(w, "%-20s  %-25s  %8d  %10.3f\n",
			r.Time().Format(time.RFC3339),
			r.Time().In(loc).Format(time.RFC3339),
			r.Duration,
			r.Value,
		)
		total += r.Value
	}

	fmt.Fprintln(w, "------------------------------------------------------------------")
	fmt.Fprintf(w, "Total: %.3f kWh (%s readings)\n", total, humanize.Comma(int64(len(readings))))
}
