package reconciler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/cuemby/cassnode/pkg/events"
	"github.com/cuemby/cassnode/pkg/host"
	"github.com/cuemby/cassnode/pkg/metrics"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
)

// state is the working set of one artifact being converged
type state struct {
	runID   string
	a       *types.Artifact
	res     *types.ArtifactResult
	logger  zerolog.Logger
	secrets []string

	// refresh lists the subscribed artifacts that changed in this run
	refresh []string
}

// do records action and performs it unless this is a dry run
func (r *Reconciler) do(st *state, action string, fn func() error) error {
	st.res.Actions = append(st.res.Actions, action)
	if r.opts.DryRun {
		return nil
	}
	return fn()
}

func (r *Reconciler) converge(ctx context.Context, st *state) error {
	switch st.a.Kind {
	case types.KindFile:
		return r.convergeFile(st)
	case types.KindDirectory:
		return r.convergeDirectory(st)
	case types.KindLineEdit:
		return r.convergeLineEdit(st)
	case types.KindPackage:
		return r.convergePackage(ctx, st)
	case types.KindService:
		return r.convergeService(ctx, st)
	case types.KindExec:
		return r.convergeExec(ctx, st)
	case types.KindUser:
		return r.convergeUser(ctx, st)
	case types.KindGroup:
		return r.convergeGroup(ctx, st)
	default:
		return fmt.Errorf("unknown artifact kind %q", st.a.Kind)
	}
}

func (r *Reconciler) convergeFile(st *state) error {
	spec := st.a.File
	files := r.host.Files

	desired := spec.Content
	if spec.Source != "" {
		content, err := files.ReadFile(spec.Source)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
		desired = content
	}

	info, err := files.Stat(spec.Path)
	absent := errors.Is(err, fs.ErrNotExist)
	if err != nil && !absent {
		return fmt.Errorf("failed to stat: %w", err)
	}
	if info != nil && info.IsDir {
		return fmt.Errorf("%s is a directory", spec.Path)
	}

	var observed []byte
	if !absent {
		observed, err = files.ReadFile(spec.Path)
		if err != nil {
			return fmt.Errorf("failed to read: %w", err)
		}
	}

	written := false
	switch {
	case absent:
		st.res.Observed = types.StateAbsent
	case !bytes.Equal(observed, desired) || info.Mode.Perm() != spec.Mode.Perm() || !ownedBy(info.Owner, info.Group, spec.Owner, spec.Group):
		st.res.Observed = types.StateDivergent
	default:
		st.res.Observed = types.StateConverged
		return nil
	}

	if absent || !bytes.Equal(observed, desired) {
		if r.opts.DryRun && spec.Source == "" {
			st.res.Diff = types.Redact(unifiedDiff(spec.Path, observed, desired), st.secrets)
		}
		if err := r.do(st, "write content", func() error {
			return files.WriteFile(spec.Path, desired, spec.Mode)
		}); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
		written = true

		// the write may have replaced the inode and its ownership
		if !r.opts.DryRun {
			if info, err = files.Stat(spec.Path); err != nil {
				return fmt.Errorf("failed to stat after write: %w", err)
			}
			absent = false
		}
	}

	if !written && info.Mode.Perm() != spec.Mode.Perm() {
		if err := r.do(st, fmt.Sprintf("chmod %04o", spec.Mode.Perm()), func() error {
			return files.Chmod(spec.Path, spec.Mode)
		}); err != nil {
			return fmt.Errorf("failed to chmod: %w", err)
		}
	}

	return r.chown(st, spec.Path, info, absent, spec.Owner, spec.Group)
}

func (r *Reconciler) convergeDirectory(st *state) error {
	spec := st.a.Directory
	files := r.host.Files

	info, err := files.Stat(spec.Path)
	absent := errors.Is(err, fs.ErrNotExist)
	if err != nil && !absent {
		return fmt.Errorf("failed to stat: %w", err)
	}
	if info != nil && !info.IsDir {
		return fmt.Errorf("%s exists and is not a directory", spec.Path)
	}

	switch {
	case absent:
		st.res.Observed = types.StateAbsent
		if err := r.do(st, "create", func() error {
			return files.MkdirAll(spec.Path, spec.Mode)
		}); err != nil {
			return fmt.Errorf("failed to create: %w", err)
		}
	case info.Mode.Perm() != spec.Mode.Perm() || !ownedBy(info.Owner, info.Group, spec.Owner, spec.Group):
		st.res.Observed = types.StateDivergent
		if info.Mode.Perm() != spec.Mode.Perm() {
			if err := r.do(st, fmt.Sprintf("chmod %04o", spec.Mode.Perm()), func() error {
				return files.Chmod(spec.Path, spec.Mode)
			}); err != nil {
				return fmt.Errorf("failed to chmod: %w", err)
			}
		}
	default:
		st.res.Observed = types.StateConverged
		return nil
	}

	return r.chown(st, spec.Path, info, absent, spec.Owner, spec.Group)
}

// chown fixes ownership of a path that was just created or is owned by
// someone else
func (r *Reconciler) chown(st *state, path string, info *host.FileInfo, absent bool, owner, group string) error {
	if owner == "" && group == "" {
		return nil
	}
	if !absent && ownedBy(info.Owner, info.Group, owner, group) {
		return nil
	}
	if err := r.do(st, "chown "+owner+":"+group, func() error {
		return r.host.Files.Chown(path, owner, group)
	}); err != nil {
		return fmt.Errorf("failed to chown: %w", err)
	}
	return nil
}

func ownedBy(owner, group, wantOwner, wantGroup string) bool {
	return (wantOwner == "" || owner == wantOwner) && (wantGroup == "" || group == wantGroup)
}

func (r *Reconciler) convergeLineEdit(st *state) error {
	spec := st.a.LineEdit
	files := r.host.Files

	observed, err := files.ReadFile(spec.Path)
	if errors.Is(err, fs.ErrNotExist) {
		// Nothing to edit
		st.res.Observed = types.StateAbsent
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}

	desired := spec.Edit(observed)
	if bytes.Equal(observed, desired) {
		st.res.Observed = types.StateConverged
		return nil
	}
	st.res.Observed = types.StateDivergent

	info, err := files.Stat(spec.Path)
	if err != nil {
		return fmt.Errorf("failed to stat: %w", err)
	}
	if r.opts.DryRun {
		st.res.Diff = types.Redact(unifiedDiff(spec.Path, observed, desired), st.secrets)
	}
	if err := r.do(st, "edit lines", func() error {
		return files.WriteFile(spec.Path, desired, info.Mode.Perm())
	}); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func (r *Reconciler) convergePackage(ctx context.Context, st *state) error {
	spec := st.a.Package

	installed, err := r.host.Packages.InstalledVersion(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to query package: %w", err)
	}

	action := "install"
	switch {
	case installed == "":
		st.res.Observed = types.StateAbsent
	case spec.Version != "" && installed != spec.Version:
		st.res.Observed = types.StateDivergent
		action = "install " + spec.Version + " (installed " + installed + ")"
	default:
		st.res.Observed = types.StateConverged
		return nil
	}
	if spec.Version != "" && installed == "" {
		action += " " + spec.Version
	}

	if err := r.do(st, action, func() error {
		return r.host.Packages.Install(ctx, spec.Name, spec.Version)
	}); err != nil {
		return fmt.Errorf("failed to install: %w", err)
	}
	return nil
}

func (r *Reconciler) convergeService(ctx context.Context, st *state) error {
	spec := st.a.Service
	services := r.host.Services

	status, err := services.Status(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to query service: %w", err)
	}
	if status.Running == spec.Running && status.Enabled == spec.Enabled {
		st.res.Observed = types.StateConverged
	} else {
		st.res.Observed = types.StateDivergent
	}

	if spec.Enabled != status.Enabled {
		verb, fn := "enable", services.Enable
		if !spec.Enabled {
			verb, fn = "disable", services.Disable
		}
		if err := r.do(st, verb, func() error { return fn(ctx, spec.Name) }); err != nil {
			return fmt.Errorf("failed to %s: %w", verb, err)
		}
	}

	started := false
	if spec.Running != status.Running {
		verb, fn := "start", services.Start
		if !spec.Running {
			verb, fn = "stop", services.Stop
		}
		if err := r.do(st, verb, func() error { return fn(ctx, spec.Name) }); err != nil {
			return fmt.Errorf("failed to %s: %w", verb, err)
		}
		started = spec.Running
	}

	// A service started in this run already reads the new configuration
	if spec.Running && !started && len(st.refresh) > 0 {
		if err := r.do(st, "restart", func() error { return services.Restart(ctx, spec.Name) }); err != nil {
			return fmt.Errorf("failed to restart: %w", err)
		}
		st.logger.Info().Strs("changed", st.refresh).Msg("Restarted service after subscribed artifacts changed")
		if !r.opts.DryRun {
			metrics.ServiceRefreshesTotal.WithLabelValues(spec.Name).Inc()
		}
		r.publishRefresh(st)
	}
	return nil
}

func (r *Reconciler) publishRefresh(st *state) {
	if r.opts.Broker == nil {
		return
	}
	r.opts.Broker.Publish(&events.Event{
		Type:       events.EventServiceRefreshed,
		RunID:      st.runID,
		ArtifactID: st.a.ID,
		Metadata:   map[string]string{"service": st.a.Service.Name},
	})
}

func (r *Reconciler) convergeExec(ctx context.Context, st *state) error {
	spec := st.a.Exec
	runner := r.host.Runner

	if spec.RefreshOnly && len(st.refresh) == 0 {
		st.res.Observed = types.StateConverged
		return nil
	}

	if spec.Unless != "" {
		passed, err := r.probe(ctx, st)
		if err != nil {
			// The probe says nothing about the host, assume the worst
			st.res.GuardProbe = types.Redact(err.Error(), st.secrets)
			st.logger.Warn().Str("error", st.res.GuardProbe).Msg("Guard probe could not be evaluated, treating as divergent")
		} else if passed {
			st.res.Observed = types.StateConverged
			return nil
		}
	}
	st.res.Observed = types.StateDivergent

	if err := r.do(st, "run", func() error {
		res, err := runner.Run(ctx, spec.Command, spec.Timeout)
		if err != nil {
			return err
		}
		return res.Err(spec.Command)
	}); err != nil {
		return err
	}

	if !spec.VerifyAfter || spec.Unless == "" || r.opts.DryRun {
		return nil
	}
	passed, err := r.probe(ctx, st)
	if err != nil {
		return fmt.Errorf("%w: verify: %w", ErrNotConverged, err)
	}
	if !passed {
		return fmt.Errorf("%w: guard probe still fails after the command ran", ErrNotConverged)
	}
	return nil
}

// probe runs the unless command. An error means the probe could not be
// evaluated and is always a *GuardProbeError.
func (r *Reconciler) probe(ctx context.Context, st *state) (bool, error) {
	spec := st.a.Exec
	res, err := r.host.Runner.Run(ctx, spec.Unless, spec.Timeout)
	if err != nil {
		return false, &GuardProbeError{Command: spec.Unless, Err: err}
	}
	return res.Success(), nil
}

func (r *Reconciler) convergeUser(ctx context.Context, st *state) error {
	spec := st.a.User
	accounts := r.host.Accounts

	info, err := accounts.LookupUser(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	switch {
	case info == nil:
		st.res.Observed = types.StateAbsent
		if err := r.do(st, "create", func() error { return accounts.CreateUser(ctx, *spec) }); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
	case (spec.Group != "" && info.Group != spec.Group) ||
		(spec.Home != "" && info.Home != spec.Home) ||
		(spec.Shell != "" && info.Shell != spec.Shell):
		st.res.Observed = types.StateDivergent
		if err := r.do(st, "modify", func() error { return accounts.ModifyUser(ctx, *spec) }); err != nil {
			return fmt.Errorf("failed to modify user: %w", err)
		}
	default:
		st.res.Observed = types.StateConverged
	}
	return nil
}

func (r *Reconciler) convergeGroup(ctx context.Context, st *state) error {
	spec := st.a.Group
	accounts := r.host.Accounts

	exists, err := accounts.GroupExists(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to look up group: %w", err)
	}
	if exists {
		st.res.Observed = types.StateConverged
		return nil
	}
	st.res.Observed = types.StateAbsent
	if err := r.do(st, "create", func() error { return accounts.CreateGroup(ctx, *spec) }); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func unifiedDiff(path string, observed, desired []byte) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(observed)),
		B:        difflib.SplitLines(string(desired)),
		FromFile: path,
		ToFile:   path + " (desired)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
