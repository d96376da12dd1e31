/*
Package reconciler converges a host to the artifact catalog of one run.

The reconciler walks the catalog in order, one artifact at a time. For each
artifact it observes the host, classifies the artifact as absent, divergent
or converged, and takes the smallest action that converges it. Nothing runs
in parallel and nothing loops: cassnode is invoked, converges once, and
exits.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                 Reconcile(ctx, artifacts)                  │
	└────────────────┬───────────────────────────────────────────┘
	                 │  for each artifact, in catalog order
	                 ▼
	      ctx cancelled? ──yes──▶ skipped ("run cancelled")
	                 │
	      a Requires failed? ──yes──▶ skipped ("dependency failed")
	                 │
	                 ▼
	  ┌──────────────────────────────┐
	  │ observe  (Stat, rpm -q,      │
	  │  systemctl, getent, unless)  │
	  └──────────────┬───────────────┘
	                 ▼
	   absent / divergent / converged
	                 │
	                 ▼
	  ┌──────────────────────────────┐
	  │ act      (write, chmod,      │──▶ changed / failed
	  │  install, start, restart,    │
	  │  run command, useradd)       │
	  └──────────────────────────────┘

# Subscriptions

An artifact's Subscribe list names artifacts whose change in the same run
triggers a refresh:

  - A running service restarts, unless this run just started it.
  - A refresh-only exec runs. Without a changed subscription it is left
    alone and reported unchanged.

# Guards

An exec with an Unless probe runs its command only when the probe exits
non-zero. A probe that cannot be evaluated (missing binary, timeout) is a
GuardProbeError: it is recorded on the result and the artifact is treated
as divergent. With VerifyAfter the probe runs again after the command; if
the artifact is still divergent the result fails with ErrNotConverged.

# Failures

Every failure is a ConvergenceError for that artifact alone. The run goes
on, and artifacts that require a failed or skipped artifact are skipped.
Report.Success is false only when a mandatory artifact (one without a
feature gate) failed or was skipped.

# Dry Run

With Options.DryRun every artifact is observed, guard probes run, and the
actions that would be taken are recorded, but nothing on the host changes.
File and line edit results carry a unified diff of the content change.

# Secrets

Commands of sensitive artifacts embed the Cassandra password. Errors,
diffs, guard messages, events and log lines all pass through types.Redact
before they leave the reconciler.
*/
package reconciler
