package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/cuemby/cassnode/pkg/catalog"
	"github.com/cuemby/cassnode/pkg/events"
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/host"
	"github.com/cuemby/cassnode/pkg/host/fake"
	"github.com/cuemby/cassnode/pkg/log"
	"github.com/cuemby/cassnode/pkg/metrics"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/cuemby/cassnode/pkg/reconciler"
	"github.com/cuemby/cassnode/pkg/storage"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply -f PARAMS",
	Short: "Converge this host to the given parameters",
	Long: `Converge this host into a Cassandra node from a YAML or TOML parameter file.

Examples:
  # Converge the node
  cassnode apply -f /etc/cassnode/node.yaml

  # Show what would change without touching the host
  cassnode apply -f node.yaml --dry-run`,
	RunE: runApply,
}

var planCmd = &cobra.Command{
	Use:   "plan -f PARAMS",
	Short: "Show what apply would change",
	Long: `Observe this host and report, per artifact, what apply would do.
Nothing on the host is changed; guard probes still run.

Examples:
  # Plan with unified diffs of every file change
  cassnode plan -f node.yaml --diff

  # Plan against an empty host, listing every first-run action
  cassnode plan -f node.yaml --simulate`,
	RunE: runPlan,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Parameter file, YAML or TOML (required)")
	applyCmd.Flags().Bool("dry-run", false, "Report what would change without changing anything")
	applyCmd.Flags().Duration("lock-timeout", 10*time.Second, "How long to wait for another run to release the lock")
	applyCmd.Flags().Int("keep-runs", 100, "Number of runs kept in the history")
	_ = applyCmd.MarkFlagRequired("file")

	planCmd.Flags().StringP("file", "f", "", "Parameter file, YAML or TOML (required)")
	planCmd.Flags().Bool("diff", false, "Print unified diffs of file changes")
	planCmd.Flags().Bool("simulate", false, "Plan against an empty in-memory host")
	_ = planCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(planCmd)
}

// loadCatalog reads parameters, gathers host facts and builds the catalog
func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	filename, _ := cmd.Flags().GetString("file")
	root, _ := cmd.Flags().GetString("root")

	p, err := params.Load(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}

	f, err := facts.NewGatherer(root).Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather facts: %w", err)
	}

	cat, err := catalog.Build(p, f)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("catalog")
	logger.Debug().
		Str("os_family", cat.Facts.OSFamily).
		Int("os_major_release", cat.Facts.OSMajorRelease).
		Str("primary_ip", cat.Facts.PrimaryIP).
		Strs("features", featureNames(cat)).
		Int("artifacts", len(cat.Artifacts)).
		Msg("Catalog built")
	return cat, nil
}

func featureNames(cat *catalog.Catalog) []string {
	var names []string
	for _, f := range cat.Features.List() {
		names = append(names, string(f))
	}
	return names
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// reconcile runs one pass and prints progress as it goes
func reconcile(ctx context.Context, h *host.Host, cat *catalog.Catalog, dryRun bool, pending map[string][]string) *types.Report {
	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub {
			printEvent(event)
		}
	}()

	r := reconciler.NewReconciler(h, reconciler.Options{
		DryRun:         dryRun,
		Broker:         broker,
		Secrets:        cat.Secrets(),
		RunID:          uuid.New().String(),
		PendingRefresh: pending,
	})
	report := r.Reconcile(ctx, cat.Artifacts)

	broker.Stop()
	<-done
	return report
}

func runApply(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		return plan(cmd, false, false)
	}

	stateDir, _ := cmd.Flags().GetString("state-dir")
	root, _ := cmd.Flags().GetString("root")
	lockTimeout, _ := cmd.Flags().GetDuration("lock-timeout")
	keepRuns, _ := cmd.Flags().GetInt("keep-runs")
	textfile, _ := cmd.Flags().GetString("metrics-textfile")

	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	// The store is also the run lock, held until the run is recorded
	store, err := storage.NewBoltStore(stateDir, lockTimeout)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer store.Close()
	logger := log.WithComponent("apply")

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Converging %s (Cassandra %s, Java %s)\n", cat.Facts.Hostname, cat.Params.CassandraVersion, cat.Params.JavaVersion)
	fmt.Printf("  Features: %v\n", featureNames(cat))

	var pending map[string][]string
	previous, err := store.LatestRun()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read the previous run")
	} else if previous != nil && previous.Report != nil {
		pending = previous.Report.PendingRefresh
		fmt.Printf("  Previous run: %s at %s, %s\n",
			previous.ID,
			previous.Report.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runResult(previous))
		for _, id := range slices.Sorted(maps.Keys(pending)) {
			fmt.Printf("  %s %s pending refresh for %v\n", yellow("↻"), id, pending[id])
		}
	}
	fmt.Println()

	report := reconcile(ctx, host.NewLocal(root), cat, false, pending)

	record := &types.RunRecord{
		ID:               report.RunID,
		Hostname:         cat.Facts.Hostname,
		CassandraVersion: cat.Params.CassandraVersion,
		JavaVersion:      string(cat.Params.JavaVersion),
		Success:          report.Success(),
		Report:           report,
	}
	if err := store.SaveRun(record, cat.Secrets()); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run")
	}
	if removed, err := store.Prune(keepRuns); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune run history")
	} else if removed > 0 {
		logger.Debug().Int("removed", removed).Msg("Pruned run history")
	}

	if textfile != "" {
		if err := metrics.WriteTextfile(textfile); err != nil {
			logger.Warn().Err(err).Str("path", textfile).Msg("Failed to write metrics")
		}
	}

	fmt.Println()
	printReport(os.Stdout, report, false, false)

	if err := report.Err(); err != nil {
		return fmt.Errorf("run %s did not converge: %w", report.RunID, err)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	diff, _ := cmd.Flags().GetBool("diff")
	simulate, _ := cmd.Flags().GetBool("simulate")
	return plan(cmd, diff, simulate)
}

func plan(cmd *cobra.Command, diff, simulate bool) error {
	root, _ := cmd.Flags().GetString("root")

	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	h := host.NewLocal(root)
	if simulate {
		h, err = simulatedHost(cat, h)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	report := reconcile(ctx, h, cat, true, nil)
	fmt.Println()
	printReport(os.Stdout, report, diff, true)

	if err := report.Err(); err != nil {
		return fmt.Errorf("plan found artifacts that cannot converge: %w", err)
	}
	return nil
}

// simulatedHost is an empty host holding only the inputs read from the
// local host: files copied from files_dir and files edited in place. Every
// guard probe fails, so each exec shows up as a first-run action.
func simulatedHost(cat *catalog.Catalog, local *host.Host) (*host.Host, error) {
	sim := fake.New()
	for _, a := range cat.Artifacts {
		switch {
		case a.File != nil && a.File.Source != "":
			content, err := local.Files.ReadFile(a.File.Source)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", a.File.Source, err)
			}
			sim.SetFile(a.File.Source, content, 0644, "root", "root")
		case a.LineEdit != nil:
			if content, err := local.Files.ReadFile(a.LineEdit.Path); err == nil {
				sim.SetFile(a.LineEdit.Path, content, 0644, "root", "root")
			}
		case a.Exec != nil && a.Exec.Unless != "":
			sim.Handle(a.Exec.Unless, fake.Exit(1))
		}
	}
	return sim.Host(), nil
}
