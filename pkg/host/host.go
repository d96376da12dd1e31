package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/cassnode/pkg/types"
)

var (
	// ErrCommandNotFound is returned when the executable of a command does
	// not exist on the host
	ErrCommandNotFound = errors.New("command not found")

	// ErrTimeout is returned when a command outlives its timeout
	ErrTimeout = errors.New("command timed out")
)

// DefaultTimeout bounds commands run without an explicit timeout
const DefaultTimeout = 5 * time.Minute

// Result is the outcome of a command that ran to completion
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited zero
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Err returns a *CommandError when the command exited non-zero
func (r *Result) Err(command string) error {
	if r.Success() {
		return nil
	}
	return &CommandError{Command: command, ExitCode: r.ExitCode, Stderr: strings.TrimSpace(r.Stderr)}
}

// CommandError is a command that ran and exited non-zero
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Runner executes command lines. A non-nil error means the command could not
// be evaluated (missing binary, timeout, cancelled context); a command that
// ran and failed returns a Result with a non-zero ExitCode and a nil error.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// FileInfo is the observed metadata of a path
type FileInfo struct {
	Mode  os.FileMode
	IsDir bool
	Owner string
	Group string
}

// Files reads and writes the host filesystem. Missing paths are reported
// with errors matching os.ErrNotExist.
type Files interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces the file atomically, creating parent directories
	WriteFile(path string, content []byte, mode os.FileMode) error
	Stat(path string) (*FileInfo, error)
	MkdirAll(path string, mode os.FileMode) error
	Chmod(path string, mode os.FileMode) error
	Chown(path, owner, group string) error
}

// Packages queries and installs system packages
type Packages interface {
	// InstalledVersion returns VERSION-RELEASE, or "" when not installed
	InstalledVersion(ctx context.Context, name string) (string, error)
	// Install installs name at version, or any version when version is empty
	Install(ctx context.Context, name, version string) error
}

// ServiceStatus is the supervisor state of a service
type ServiceStatus struct {
	Running bool
	Enabled bool
}

// Services drives the service supervisor
type Services interface {
	Status(ctx context.Context, name string) (ServiceStatus, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
}

// UserInfo is an existing local account
type UserInfo struct {
	Name  string
	Group string
	Home  string
	Shell string
}

// Accounts manages local users and groups
type Accounts interface {
	// LookupUser returns nil when the user does not exist
	LookupUser(ctx context.Context, name string) (*UserInfo, error)
	GroupExists(ctx context.Context, name string) (bool, error)
	CreateGroup(ctx context.Context, spec types.GroupSpec) error
	CreateUser(ctx context.Context, spec types.UserSpec) error
	ModifyUser(ctx context.Context, spec types.UserSpec) error
}

// Host bundles every collaborator the reconciler talks to
type Host struct {
	Files    Files
	Packages Packages
	Services Services
	Accounts Accounts
	Runner   Runner
}

// NewLocal returns a Host acting on the machine cassnode runs on. Files are
// resolved under root; commands always run against the live system.
func NewLocal(root string) *Host {
	runner := NewExecRunner()
	return &Host{
		Files:    NewLocalFiles(root),
		Packages: NewYum(runner),
		Services: NewSystemd(runner),
		Accounts: NewShadowAccounts(runner),
		Runner:   runner,
	}
}
