package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/cassnode/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassnode_runs_total",
			Help: "Total number of convergence runs by result",
		},
		[]string{"result"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cassnode_run_duration_seconds",
			Help:    "Convergence run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cassnode_last_run_timestamp_seconds",
			Help: "Unix time the last convergence run finished",
		},
	)

	LastRunSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cassnode_last_run_success",
			Help: "Whether the last convergence run succeeded (1 = success, 0 = failure)",
		},
	)

	// Artifact metrics
	ArtifactsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cassnode_artifacts",
			Help: "Artifacts in the last run by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ArtifactActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassnode_artifact_actions_total",
			Help: "Total number of corrective actions taken by artifact kind",
		},
		[]string{"kind"},
	)

	ArtifactDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cassnode_artifact_duration_seconds",
			Help:    "Time taken to converge one artifact in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	GuardProbeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cassnode_guard_probe_errors_total",
			Help: "Total number of guard probes that could not be evaluated",
		},
	)

	ServiceRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassnode_service_refreshes_total",
			Help: "Total number of service restarts triggered by subscriptions",
		},
		[]string{"service"},
	)
)

var kinds = []types.ArtifactKind{
	types.KindFile, types.KindDirectory, types.KindLineEdit, types.KindPackage,
	types.KindService, types.KindExec, types.KindUser, types.KindGroup,
}

var outcomes = []types.Outcome{
	types.OutcomeUnchanged, types.OutcomeChanged, types.OutcomeFailed, types.OutcomeSkipped,
}

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(LastRunTimestamp)
	prometheus.MustRegister(LastRunSuccess)
	prometheus.MustRegister(ArtifactsTotal)
	prometheus.MustRegister(ArtifactActionsTotal)
	prometheus.MustRegister(ArtifactDuration)
	prometheus.MustRegister(GuardProbeErrorsTotal)
	prometheus.MustRegister(ServiceRefreshesTotal)
}

// RecordReport updates the run-level metrics from a finished report.
// Per-artifact durations and actions are observed by the reconciler as it
// goes.
func RecordReport(report *types.Report) {
	result := "success"
	success := 1.0
	if !report.Success() {
		result = "failure"
		success = 0
	}
	if report.DryRun {
		result = "dry_run"
	}
	RunsTotal.WithLabelValues(result).Inc()
	if !report.FinishedAt.IsZero() {
		RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	}
	if report.DryRun {
		return
	}
	LastRunSuccess.Set(success)

	counts := make(map[types.ArtifactKind]map[types.Outcome]int)
	for _, res := range report.Results {
		if counts[res.Kind] == nil {
			counts[res.Kind] = make(map[types.Outcome]int)
		}
		counts[res.Kind][res.Outcome]++
	}
	for _, kind := range kinds {
		for _, outcome := range outcomes {
			ArtifactsTotal.WithLabelValues(string(kind), string(outcome)).Set(float64(counts[kind][outcome]))
		}
	}
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for the node exporter textfile collector
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
