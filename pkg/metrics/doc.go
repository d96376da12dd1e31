/*
Package metrics provides Prometheus metrics for cassnode convergence runs.

cassnode is a one-shot command, not a daemon, so nothing is scraped over
HTTP. Instead the metrics live in the default Prometheus registry for the
duration of a run and are written to a node exporter textfile when the run
ends (the --metrics-textfile flag).

# Architecture

	┌──────────────────── METRICS FLOW ────────────────────────┐
	│                                                            │
	│  Reconciler ──Timer──▶ ArtifactDuration{kind}             │
	│      │      ──actions─▶ ArtifactActionsTotal{kind}        │
	│      │      ──refresh─▶ ServiceRefreshesTotal{service}    │
	│      │      ──probe──▶ GuardProbeErrorsTotal              │
	│      ▼                                                     │
	│  RecordReport(report)                                      │
	│      ├─▶ RunsTotal{result}, RunDuration                   │
	│      ├─▶ LastRunTimestamp, LastRunSuccess                 │
	│      └─▶ ArtifactsTotal{kind, outcome}                    │
	│      ▼                                                     │
	│  WriteTextfile(path) ──▶ /var/lib/node_exporter/*.prom    │
	└────────────────────────────────────────────────────────────┘

# Metric Catalog

	cassnode_runs_total{result}                 counter   success, failure, dry_run
	cassnode_run_duration_seconds               histogram
	cassnode_last_run_timestamp_seconds         gauge
	cassnode_last_run_success                   gauge     not updated by dry runs
	cassnode_artifacts{kind,outcome}            gauge     last run only
	cassnode_artifact_actions_total{kind}       counter
	cassnode_artifact_duration_seconds{kind}    histogram
	cassnode_guard_probe_errors_total           counter
	cassnode_service_refreshes_total{service}   counter

# Usage

	timer := metrics.NewTimer()
	// converge one artifact
	timer.ObserveDurationVec(metrics.ArtifactDuration, string(a.Kind))

	metrics.RecordReport(report)
	if err := metrics.WriteTextfile(path); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to write metrics")
	}

Labels are bounded: kinds, outcomes and service names come from the catalog,
never from parameters or host output.
*/
package metrics
