package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/cassnode/pkg/events"
	"github.com/cuemby/cassnode/pkg/host"
	"github.com/cuemby/cassnode/pkg/log"
	"github.com/cuemby/cassnode/pkg/metrics"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Reconciler
type Options struct {
	// DryRun observes every artifact and reports what would change without
	// mutating the host. Guard probes still run; they are read-only.
	DryRun bool

	// Broker receives progress events when set. It must be started.
	Broker *events.Broker

	// Secrets are redacted from every output in addition to the sensitive
	// values declared by artifacts
	Secrets []string

	// RunID identifies the run; a random UUID is used when empty
	RunID string

	// PendingRefresh carries the refreshes a previous run could not
	// complete, keyed by artifact ID. They fire as if the subscribed
	// artifacts changed in this run.
	PendingRefresh map[string][]string
}

// Reconciler converges a host to an ordered list of artifacts
type Reconciler struct {
	host *host.Host
	opts Options
}

// NewReconciler creates a new reconciler
func NewReconciler(h *host.Host, opts Options) *Reconciler {
	return &Reconciler{host: h, opts: opts}
}

// run is the state of one Reconcile call
type run struct {
	id      string
	logger  zerolog.Logger
	secrets []string
	report  *types.Report

	// changed holds the IDs that changed (or would change on a dry run)
	changed map[string]bool
	// failed holds the IDs that failed or were skipped
	failed map[string]bool
}

// Reconcile applies artifacts in order, one at a time. It never returns
// early: every artifact appears in the report exactly once. Cancelling ctx
// stops the run between artifacts and reports the remainder as skipped.
func (r *Reconciler) Reconcile(ctx context.Context, artifacts []*types.Artifact) *types.Report {
	timer := metrics.NewTimer()

	id := r.opts.RunID
	if id == "" {
		id = uuid.New().String()
	}
	rn := &run{
		id:      id,
		logger:  log.WithRunID(id),
		secrets: r.secrets(artifacts),
		report: &types.Report{
			RunID:     id,
			StartedAt: time.Now().UTC(),
			DryRun:    r.opts.DryRun,
		},
		changed: make(map[string]bool),
		failed:  make(map[string]bool),
	}

	rn.logger.Info().
		Int("artifacts", len(artifacts)).
		Bool("dry_run", r.opts.DryRun).
		Msg("Starting convergence run")
	r.publish(rn, &events.Event{Type: events.EventRunStarted, Message: fmt.Sprintf("%d artifacts", len(artifacts))})

	for _, a := range artifacts {
		res := r.step(ctx, rn, a)
		rn.report.Results = append(rn.report.Results, res)
		switch res.Outcome {
		case types.OutcomeChanged:
			rn.changed[a.ID] = true
		case types.OutcomeFailed, types.OutcomeSkipped:
			rn.failed[a.ID] = true
		}
	}

	rn.report.FinishedAt = time.Now().UTC()
	metrics.RecordReport(rn.report)

	event := rn.logger.Info()
	if !rn.report.Success() {
		event = rn.logger.Error()
	}
	event.
		Int("changed", rn.report.Count(types.OutcomeChanged)).
		Int("unchanged", rn.report.Count(types.OutcomeUnchanged)).
		Int("failed", rn.report.Count(types.OutcomeFailed)).
		Int("skipped", rn.report.Count(types.OutcomeSkipped)).
		Dur("duration", timer.Duration()).
		Bool("success", rn.report.Success()).
		Msg("Convergence run finished")
	r.publish(rn, &events.Event{
		Type: events.EventRunFinished,
		Metadata: map[string]string{
			"success": fmt.Sprintf("%t", rn.report.Success()),
		},
	})

	return rn.report
}

func (r *Reconciler) secrets(artifacts []*types.Artifact) []string {
	secrets := append([]string(nil), r.opts.Secrets...)
	for _, a := range artifacts {
		secrets = append(secrets, a.Sensitive()...)
	}
	return secrets
}

// step converges one artifact and returns its result
func (r *Reconciler) step(ctx context.Context, rn *run, a *types.Artifact) *types.ArtifactResult {
	res := &types.ArtifactResult{
		ID:        a.ID,
		Kind:      a.Kind,
		Feature:   a.Feature,
		Mandatory: a.Mandatory(),
		Observed:  types.StateUnknown,
	}
	logger := log.WithArtifact(rn.logger, a.ID, string(a.Kind))

	refresh := r.refresh(rn, a)

	if err := ctx.Err(); err != nil {
		r.skip(rn, res, fmt.Sprintf("run cancelled: %v", err))
		r.deferRefresh(rn, a.ID, refresh)
		return res
	}
	for _, dep := range a.Requires {
		if rn.failed[dep] {
			r.skip(rn, res, "dependency failed: "+dep)
			r.deferRefresh(rn, a.ID, refresh)
			logger.Warn().Str("dependency", dep).Msg("Skipping artifact, dependency did not converge")
			return res
		}
	}

	st := &state{runID: rn.id, a: a, res: res, logger: logger, secrets: rn.secrets, refresh: refresh}

	timer := metrics.NewTimer()
	err := r.converge(ctx, st)
	res.Duration = timer.Duration()
	timer.ObserveDurationVec(metrics.ArtifactDuration, string(a.Kind))

	if res.GuardProbe != "" {
		metrics.GuardProbeErrorsTotal.Inc()
		r.publish(rn, &events.Event{Type: events.EventGuardProbeFailed, ArtifactID: a.ID, Message: res.GuardProbe})
	}

	if err != nil {
		res.SetErr(types.RedactError(&ConvergenceError{ArtifactID: a.ID, Err: err}, rn.secrets))
		r.deferRefresh(rn, a.ID, refresh)
		logger.Error().Err(res.Err()).Strs("actions", res.Actions).Bool("mandatory", res.Mandatory).Msg("Artifact failed to converge")
		r.publish(rn, &events.Event{Type: events.EventArtifactFailed, ArtifactID: a.ID, Message: res.Error})
		return res
	}

	if len(res.Actions) == 0 {
		res.Outcome = types.OutcomeUnchanged
		logger.Debug().Str("observed", string(res.Observed)).Msg("Artifact converged")
		r.publish(rn, &events.Event{Type: events.EventArtifactObserved, ArtifactID: a.ID, Message: string(res.Observed)})
		return res
	}

	res.Outcome = types.OutcomeChanged
	if !r.opts.DryRun {
		metrics.ArtifactActionsTotal.WithLabelValues(string(a.Kind)).Add(float64(len(res.Actions)))
	}
	logger.Info().Str("observed", string(res.Observed)).Strs("actions", res.Actions).Bool("dry_run", r.opts.DryRun).Msg("Artifact changed")
	r.publish(rn, &events.Event{
		Type:       events.EventArtifactChanged,
		ArtifactID: a.ID,
		Message:    types.Redact(fmt.Sprint(res.Actions), rn.secrets),
		Metadata:   map[string]string{"observed": string(res.Observed)},
	})
	return res
}

// refresh lists the subscriptions of a that changed in this run, followed by
// those left pending by a previous run
func (r *Reconciler) refresh(rn *run, a *types.Artifact) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range a.Subscribe {
		if rn.changed[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for _, id := range r.opts.PendingRefresh[a.ID] {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	return ids
}

// deferRefresh records refreshes that did not happen so the next run replays them
func (r *Reconciler) deferRefresh(rn *run, id string, refresh []string) {
	if len(refresh) == 0 || r.opts.DryRun {
		return
	}
	if rn.report.PendingRefresh == nil {
		rn.report.PendingRefresh = make(map[string][]string)
	}
	rn.report.PendingRefresh[id] = refresh
	rn.logger.Warn().Str("artifact", id).Strs("changed", refresh).Msg("Refresh did not complete, it will be retried on the next run")
}

func (r *Reconciler) skip(rn *run, res *types.ArtifactResult, reason string) {
	res.Outcome = types.OutcomeSkipped
	res.Error = reason
	r.publish(rn, &events.Event{Type: events.EventArtifactSkipped, ArtifactID: res.ID, Message: reason})
}

func (r *Reconciler) publish(rn *run, event *events.Event) {
	if r.opts.Broker == nil {
		return
	}
	event.RunID = rn.id
	r.opts.Broker.Publish(event)
}
