package host

import (
	"context"
	"strings"
	"time"
)

// PackageTimeout bounds a single yum transaction
const PackageTimeout = 15 * time.Minute

// Yum is the Packages port on RPM based hosts
type Yum struct {
	runner Runner
}

// NewYum creates a Packages port that queries rpm and installs with yum
func NewYum(runner Runner) *Yum {
	return &Yum{runner: runner}
}

// InstalledVersion queries the rpm database
func (y *Yum) InstalledVersion(ctx context.Context, name string) (string, error) {
	command := "rpm -q --queryformat %{VERSION}-%{RELEASE} " + name
	res, err := y.runner.Run(ctx, command, time.Minute)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		// rpm -q exits 1 and prints "package X is not installed"
		if strings.Contains(res.Stdout+res.Stderr, "is not installed") {
			return "", nil
		}
		return "", res.Err(command)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Install installs name-version. yum refuses to replace a newer installed
// version with install, so a remaining mismatch is resolved with downgrade.
func (y *Yum) Install(ctx context.Context, name, version string) error {
	target := name
	if version != "" {
		target = name + "-" + version
	}

	command := "yum -y install " + target
	res, err := y.runner.Run(ctx, command, PackageTimeout)
	if err != nil {
		return err
	}
	if err := res.Err(command); err != nil {
		return err
	}
	if version == "" {
		return nil
	}

	installed, err := y.InstalledVersion(ctx, name)
	if err != nil {
		return err
	}
	if installed == version {
		return nil
	}

	command = "yum -y downgrade " + target
	res, err = y.runner.Run(ctx, command, PackageTimeout)
	if err != nil {
		return err
	}
	return res.Err(command)
}
