package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// ExecRunner runs commands with os/exec. Command lines are split with shell
// quoting rules but never passed to a shell, so pipes and redirections are
// not available.
type ExecRunner struct {
	// Env is appended to the environment of every command
	Env []string
}

// NewExecRunner creates a runner for the local host
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Split parses a command line into argv
func Split(command string) ([]string, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command line: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return argv, nil
}

// Run executes command and waits for it
func (r *ExecRunner) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	argv, err := Split(command)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s after %s: %w", argv[0], timeout, ErrTimeout)
		}
		return nil, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return nil, fmt.Errorf("%s: %w", argv[0], ErrCommandNotFound)
	}
	return nil, fmt.Errorf("failed to run %s: %w", argv[0], err)
}
