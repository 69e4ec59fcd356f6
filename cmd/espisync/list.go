package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/espisync/pkg/models"
)

var (
	listLimit int
	listRuns  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived readings or sync runs",
	Long:  `Displays readings stored in the local archive, newest first. With --runs, shows the sync run history instead.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum rows to show (0 = no limit)")
	listCmd.Flags().BoolVar(&listRuns, "runs", false, "Show recorded sync runs instead of readings")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if listRuns {
		runs, err := db.ListRuns(ctx, listLimit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-16s  %-8s  %7s  %7s  %s\n", "Run", "Started", "Status", "Parsed", "Written", "Error")
		for _, run := range runs {
			fmt.Fprintf(out, "%-36s  %-16s  %-8s  %7d  %7d  %s\n",
				run.ID, humanize.Time(run.StartedAt), run.Status, run.Parsed, run.Written, run.Error)
		}
		return nil
	}

	readings, err := db.ListReadings(ctx, models.CategoryElectric, listLimit)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}
	total, err := db.CountReadings(ctx, models.CategoryElectric)
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		fmt.Fprintln(out, "No readings archived")
		return nil
	}

	fmt.Fprintln(out, "Electric readings:")
	fmt.Fprintln(out, "----------------------------------------------------")
	fmt.Fprintf(out, "%-25s  %8s  %10s\n", "Start (local)", "Seconds", "kWh")
	fmt.Fprintln(out, "----------------------------------------------------")
	for _, r := range readings {
		fmt.Fprintf(out, "%-25s  %8d  %10.3f\n", r.Time().In(loc).Format(time.RFC3339), r.Duration, r.Value)
	}
	fmt.Fprintln(out, "----------------------------------------------------")
	fmt.Fprintf(out, "Showing %s of %s archived readings\n", humanize.Comma(int64(len(readings))), humanize.Comma(int64(total)))

	return nil
}
