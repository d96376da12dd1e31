package types

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ArtifactState is the observed state of an artifact relative to its desired state
type ArtifactState string

const (
	StateUnknown   ArtifactState = "unknown"
	StateAbsent    ArtifactState = "absent"
	StateDivergent ArtifactState = "divergent"
	StateConverged ArtifactState = "converged"
)

// Outcome is what a run did with an artifact
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// ArtifactResult records the convergence of one artifact in one run.
// All strings are already redacted.
type ArtifactResult struct {
	ID        string
	Kind      ArtifactKind
	Feature   Feature
	Mandatory bool
	Observed  ArtifactState
	Outcome   Outcome
	Actions   []string
	Error     string `json:",omitempty"`
	// GuardProbe is set when an unless probe could not be evaluated
	GuardProbe string        `json:",omitempty"`
	Duration   time.Duration
	// Diff is a unified diff of file content, populated on dry runs
	Diff string `json:",omitempty"`

	err error
}

// SetErr records err on the result. err must already be redacted.
func (r *ArtifactResult) SetErr(err error) {
	r.err = err
	r.Error = err.Error()
	r.Outcome = OutcomeFailed
}

// Err returns the error recorded by SetErr
func (r *ArtifactResult) Err() error {
	return r.err
}

// Report is the outcome of one convergence run
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Results    []*ArtifactResult

	// PendingRefresh maps an artifact ID to the changed subscriptions whose
	// refresh (restart, refresh-only exec) did not happen in this run. The
	// next run replays them.
	PendingRefresh map[string][]string `json:",omitempty"`
}

// Result returns the result for an artifact ID, or nil
func (r *Report) Result(id string) *ArtifactResult {
	for _, res := range r.Results {
		if res.ID == id {
			return res
		}
	}
	return nil
}

// Count returns the number of results with the given outcome
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the results that did not converge
func (r *Report) Failed() []*ArtifactResult {
	var failed []*ArtifactResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed || res.Outcome == OutcomeSkipped {
			failed = append(failed, res)
		}
	}
	return failed
}

// Converged reports whether every artifact was already in its desired state
func (r *Report) Converged() bool {
	for _, res := range r.Results {
		if res.Outcome != OutcomeUnchanged {
			return false
		}
	}
	return true
}

// Success reports whether every mandatory artifact converged
func (r *Report) Success() bool {
	for _, res := range r.Failed() {
		if res.Mandatory {
			return false
		}
	}
	return true
}

// Err aggregates the failures of mandatory artifacts. Failures of
// conditional artifacts are reported in Results but do not fail the run.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, res := range r.Failed() {
		if !res.Mandatory {
			continue
		}
		err := res.err
		if err == nil {
			err = fmt.Errorf("%s: %s", res.ID, res.Error)
		}
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// RunRecord is the persisted form of a run
type RunRecord struct {
	ID               string
	Hostname         string
	CassandraVersion string
	JavaVersion      string
	Success          bool
	Report           *Report
}
