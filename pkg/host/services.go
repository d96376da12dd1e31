package host

import (
	"context"
	"time"
)

const systemctlTimeout = 2 * time.Minute

// Systemd is the Services port backed by systemctl
type Systemd struct {
	runner Runner
}

// NewSystemd creates a Services port
func NewSystemd(runner Runner) *Systemd {
	return &Systemd{runner: runner}
}

// Status reports whether the unit is active and enabled. Both queries exit
// non-zero for the negative answer, so only evaluation errors are returned.
func (s *Systemd) Status(ctx context.Context, name string) (ServiceStatus, error) {
	var status ServiceStatus

	res, err := s.runner.Run(ctx, "systemctl is-active --quiet "+name, systemctlTimeout)
	if err != nil {
		return status, err
	}
	status.Running = res.Success()

	res, err = s.runner.Run(ctx, "systemctl is-enabled --quiet "+name, systemctlTimeout)
	if err != nil {
		return status, err
	}
	status.Enabled = res.Success()

	return status, nil
}

func (s *Systemd) systemctl(ctx context.Context, verb, name string) error {
	command := "systemctl " + verb + " " + name
	res, err := s.runner.Run(ctx, command, systemctlTimeout)
	if err != nil {
		return err
	}
	return res.Err(command)
}

// Start starts the unit
func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.systemctl(ctx, "start", name)
}

// Stop stops the unit
func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.systemctl(ctx, "stop", name)
}

// Restart restarts the unit, starting it if stopped
func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.systemctl(ctx, "restart", name)
}

// Enable enables the unit at boot
func (s *Systemd) Enable(ctx context.Context, name string) error {
	return s.systemctl(ctx, "enable", name)
}

// Disable disables the unit at boot
func (s *Systemd) Disable(ctx context.Context, name string) error {
	return s.systemctl(ctx, "disable", name)
}
