package reconciler

import (
	"errors"
	"fmt"
)

// ErrNotConverged is wrapped by a ConvergenceError whose artifact was acted
// on but is still divergent afterwards
var ErrNotConverged = errors.New("artifact did not converge")

// ConvergenceError is the failure of one artifact. Failures are isolated:
// the run continues with artifacts that do not depend on the failed one.
type ConvergenceError struct {
	ArtifactID string
	Err        error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.ArtifactID, e.Err)
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// GuardProbeError is an unless probe that could not be evaluated (missing
// binary, timeout). The artifact is treated as divergent.
type GuardProbeError struct {
	Command string
	Err     error
}

func (e *GuardProbeError) Error() string {
	return fmt.Sprintf("guard probe %q could not be evaluated: %v", e.Command, e.Err)
}

func (e *GuardProbeError) Unwrap() error {
	return e.Err
}
