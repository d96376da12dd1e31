package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/cassnode/pkg/types"
)

const accountTimeout = time.Minute

// getent exits 2 when the key is not in the database
const getentNotFound = 2

// ShadowAccounts is the Accounts port backed by getent and the shadow-utils
// commands
type ShadowAccounts struct {
	runner Runner
}

// NewShadowAccounts creates an Accounts port
func NewShadowAccounts(runner Runner) *ShadowAccounts {
	return &ShadowAccounts{runner: runner}
}

// LookupUser reads the passwd entry and primary group of name
func (a *ShadowAccounts) LookupUser(ctx context.Context, name string) (*UserInfo, error) {
	command := "getent passwd " + name
	res, err := a.runner.Run(ctx, command, accountTimeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode == getentNotFound {
		return nil, nil
	}
	if err := res.Err(command); err != nil {
		return nil, err
	}

	info, err := ParsePasswd(res.Stdout)
	if err != nil {
		return nil, err
	}

	command = "id -gn " + name
	res, err = a.runner.Run(ctx, command, accountTimeout)
	if err != nil {
		return nil, err
	}
	if err := res.Err(command); err != nil {
		return nil, err
	}
	info.Group = strings.TrimSpace(res.Stdout)
	return info, nil
}

// ParsePasswd parses one passwd(5) line
func ParsePasswd(line string) (*UserInfo, error) {
	fields := strings.Split(strings.TrimSpace(line), ":")
	if len(fields) != 7 {
		return nil, fmt.Errorf("malformed passwd entry %q", line)
	}
	return &UserInfo{Name: fields[0], Home: fields[5], Shell: fields[6]}, nil
}

// GroupExists reports whether the group is known
func (a *ShadowAccounts) GroupExists(ctx context.Context, name string) (bool, error) {
	command := "getent group " + name
	res, err := a.runner.Run(ctx, command, accountTimeout)
	if err != nil {
		return false, err
	}
	if res.ExitCode == getentNotFound {
		return false, nil
	}
	if err := res.Err(command); err != nil {
		return false, err
	}
	return true, nil
}

// CreateGroup runs groupadd
func (a *ShadowAccounts) CreateGroup(ctx context.Context, spec types.GroupSpec) error {
	command := "groupadd "
	if spec.System {
		command += "-r "
	}
	return a.run(ctx, command+spec.Name)
}

// CreateUser runs useradd without creating the home directory
func (a *ShadowAccounts) CreateUser(ctx context.Context, spec types.UserSpec) error {
	command := "useradd -M"
	if spec.System {
		command += " -r"
	}
	return a.run(ctx, command+userFlags(spec)+" "+spec.Name)
}

// ModifyUser runs usermod to restore group, home and shell
func (a *ShadowAccounts) ModifyUser(ctx context.Context, spec types.UserSpec) error {
	return a.run(ctx, "usermod"+userFlags(spec)+" "+spec.Name)
}

func userFlags(spec types.UserSpec) string {
	var flags string
	if spec.Group != "" {
		flags += " -g " + spec.Group
	}
	if spec.Home != "" {
		flags += " -d " + spec.Home
	}
	if spec.Shell != "" {
		flags += " -s " + spec.Shell
	}
	return flags
}

func (a *ShadowAccounts) run(ctx context.Context, command string) error {
	res, err := a.runner.Run(ctx, command, accountTimeout)
	if err != nil {
		return err
	}
	return res.Err(command)
}
