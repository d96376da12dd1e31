package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/cassnode/pkg/storage"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded apply runs",
	Long: `List the apply runs recorded in the state directory, newest first.

Examples:
  # The last 10 runs
  cassnode history --limit 10

  # The full report of one run
  cassnode history --run 1f0c6a0e-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stateDir, _ := cmd.Flags().GetString("state-dir")
		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")

		store, err := storage.NewBoltStore(stateDir, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to open state: %w", err)
		}
		defer store.Close()

		if runID != "" {
			rec, err := store.GetRun(runID)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s on %s (Cassandra %s, Java %s)\n\n", rec.ID, rec.Hostname, rec.CassandraVersion, rec.JavaVersion)
			printReport(os.Stdout, rec.Report, true, rec.Report.DryRun)
			return nil
		}

		records, err := store.ListRuns(limit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-12s  %-7s  %-8s  %s\n", "RUN", "STARTED", "CASSANDRA", "CHANGED", "FAILED", "RESULT")
		for _, rec := range records {
			fmt.Printf("%-36s  %-20s  %-12s  %-7d  %-8d  %s\n",
				rec.ID,
				rec.Report.StartedAt.Local().Format("2006-01-02 15:04:05"),
				rec.CassandraVersion,
				rec.Report.Count(types.OutcomeChanged),
				len(rec.Report.Failed()),
				runResult(rec),
			)
		}
		return nil
	},
}

func runResult(rec *types.RunRecord) string {
	if rec.Success {
		return green("success")
	}
	return red("failure")
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 lists every run)")
	historyCmd.Flags().String("run", "", "Show the full report of one run")

	rootCmd.AddCommand(historyCmd)
}
