package reconciler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/user"
	"strings"
	"testing"

	"github.com/cuemby/cassnode/pkg/catalog"
	"github.com/cuemby/cassnode/pkg/events"
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/host"
	"github.com/cuemby/cassnode/pkg/host/fake"
	"github.com/cuemby/cassnode/pkg/log"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	password     = "TestPassword123!"
	swapProbe    = "awk 'NR > 1 { exit 1 }' /proc/swaps"
	swapoff      = "swapoff -a"
	sysctlApply  = "sysctl -p " + catalog.SysctlPath
	daemonReload = "systemctl daemon-reload"
)

var rhel8 = facts.Facts{OSFamily: facts.FamilyRedHat, OSMajorRelease: 8, PrimaryIP: "10.0.0.5", Hostname: "cass-1"}

const fstab = `UUID=0a1b /     xfs  defaults 0 0
/dev/mapper/rhel-swap swap swap defaults 0 0
`

func testParams(mutate func(p *params.Parameters)) *params.Parameters {
	p := params.Default()
	p.CassandraVersion = "4.1.10-1"
	p.JavaVersion = params.Java11
	p.ClusterName = "Test Cluster"
	p.Seeds = params.ParseSeeds("10.0.0.1,10.0.0.2")
	p.MaxHeapSize = "2G"
	p.Datacenter = "testdc"
	p.Rack = "testrack"
	p.CassandraPassword = password
	p.DisableSwapTuneOS = true
	if mutate != nil {
		mutate(&p)
	}
	return &p
}

func testCatalog(t *testing.T, p *params.Parameters) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Build(p, rhel8)
	require.NoError(t, err)
	return c
}

// node is a fresh RHEL host with swap active and the stock password in
// effect. Running swapoff or the password change flips the matching probe.
type node struct {
	*fake.Host
	swapActive    bool
	passwordValid bool
}

func newNode(t *testing.T, c *catalog.Catalog) *node {
	t.Helper()
	n := &node{Host: fake.New(), swapActive: true}
	n.SetFile(c.Params.FilesDir+"/"+catalog.JammJarName, []byte("jar"), 0644, "root", "root")
	n.SetFile(catalog.FstabPath, []byte(fstab), 0644, "root", "root")

	n.Handle(swapProbe, func(context.Context, string) (*host.Result, error) {
		if n.swapActive {
			return &host.Result{ExitCode: 1}, nil
		}
		return &host.Result{}, nil
	})
	n.Handle(swapoff, func(context.Context, string) (*host.Result, error) {
		n.swapActive = false
		return &host.Result{}, nil
	})

	p := c.Params
	n.Handle(catalog.PasswordProbeCommand(p.CassandraUser, p.CassandraPassword), func(context.Context, string) (*host.Result, error) {
		if n.passwordValid {
			return &host.Result{}, nil
		}
		return &host.Result{ExitCode: 1, Stderr: "AuthenticationFailed('Bad credentials')"}, nil
	})
	n.Handle(catalog.ChangePasswordCommand(p.CassandraUser, p.CassandraInitialPassword, p.CassandraPassword), func(context.Context, string) (*host.Result, error) {
		n.passwordValid = true
		return &host.Result{}, nil
	})
	return n
}

func apply(t *testing.T, n *node, c *catalog.Catalog, opts Options) *types.Report {
	t.Helper()
	opts.Secrets = c.Secrets()
	return NewReconciler(n.Host.Host(), opts).Reconcile(context.Background(), c.Artifacts)
}

func outcome(t *testing.T, report *types.Report, id string) types.Outcome {
	t.Helper()
	res := report.Result(id)
	require.NotNil(t, res, id)
	return res.Outcome
}

func TestReconcileFreshHostThenIdempotent(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)

	first := apply(t, n, c, Options{})
	require.NoError(t, first.Err())
	assert.True(t, first.Success())
	assert.Len(t, first.Results, len(c.Artifacts))
	assert.Zero(t, first.Count(types.OutcomeFailed))

	assert.Equal(t, "4.1.10-1", n.Package("cassandra"))
	assert.Equal(t, host.ServiceStatus{Running: true, Enabled: true}, n.Service("cassandra"))
	assert.Zero(t, n.Restarts("cassandra"), "a service started in this run is not restarted")
	assert.Equal(t, 1, n.CountCommand(swapoff))
	assert.Equal(t, 1, n.CountCommand(sysctlApply))
	assert.True(t, n.passwordValid)

	content, err := n.ReadFile(catalog.CassandraYAMLPath)
	require.NoError(t, err)
	want, err := c.RenderedFile(catalog.CassandraYAMLPath)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(content))

	info, err := n.Stat(catalog.CassandraYAMLPath)
	require.NoError(t, err)
	assert.Equal(t, "cassandra", info.Owner)

	n.Reset()
	second := apply(t, n, c, Options{})
	assert.True(t, second.Converged(), "second run must change nothing: %v", changedIDs(second))
	assert.Empty(t, n.Ops())
	assert.Zero(t, n.CountCommand(swapoff))
	assert.Zero(t, n.CountCommand(sysctlApply))
}

func changedIDs(report *types.Report) []string {
	var ids []string
	for _, res := range report.Results {
		if res.Outcome != types.OutcomeUnchanged {
			ids = append(ids, res.ID+"="+string(res.Outcome))
		}
	}
	return ids
}

func TestReconcileRestartsServiceOnConfigChange(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	require.True(t, apply(t, n, c, Options{}).Success())

	n.SetFile(catalog.CassandraYAMLPath, []byte("cluster_name: drifted\n"), 0644, "cassandra", "cassandra")
	n.Reset()

	report := apply(t, n, c, Options{})
	require.True(t, report.Success())
	assert.Equal(t, types.OutcomeChanged, outcome(t, report, "file:"+catalog.CassandraYAMLPath))
	assert.Equal(t, []string{"write content"}, report.Result("file:"+catalog.CassandraYAMLPath).Actions)

	svc := report.Result("service:cassandra")
	assert.Equal(t, types.OutcomeChanged, svc.Outcome)
	assert.Equal(t, []string{"restart"}, svc.Actions)
	assert.Equal(t, 1, n.Restarts("cassandra"))
}

// replacingFiles writes a new file owned by root, the way a rename over the
// target does when ownership is not carried over
type replacingFiles struct {
	*fake.Host
}

func (f replacingFiles) WriteFile(p string, content []byte, mode os.FileMode) error {
	if err := f.Host.WriteFile(p, content, mode); err != nil {
		return err
	}
	return f.Host.Chown(p, "root", "root")
}

func TestReconcileRestoresOwnerAfterWrite(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	require.True(t, apply(t, n, c, Options{}).Success())

	n.SetFile(catalog.CassandraYAMLPath, []byte("cluster_name: drifted\n"), 0644, "cassandra", "cassandra")
	n.Reset()

	h := n.Host.Host()
	h.Files = replacingFiles{n.Host}
	report := NewReconciler(h, Options{Secrets: c.Secrets()}).Reconcile(context.Background(), c.Artifacts)
	require.True(t, report.Success())
	assert.Equal(t, []string{"write content", "chown cassandra:cassandra"}, report.Result("file:"+catalog.CassandraYAMLPath).Actions)

	info, err := n.Stat(catalog.CassandraYAMLPath)
	require.NoError(t, err)
	assert.Equal(t, "cassandra", info.Owner)
	assert.Equal(t, "cassandra", info.Group)

	n.Reset()
	second := NewReconciler(h, Options{Secrets: c.Secrets()}).Reconcile(context.Background(), c.Artifacts)
	assert.True(t, second.Converged(), "second run must change nothing: %v", changedIDs(second))
}

func TestReconcileLocalFilesIdempotent(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		t.Skipf("no current group: %v", err)
	}

	files := host.NewLocalFiles(t.TempDir())
	require.NoError(t, files.WriteFile(catalog.CassandraYAMLPath, []byte("cluster_name: old\n"), 0644))

	artifacts := []*types.Artifact{
		types.NewFile(catalog.CassandraYAMLPath, []byte("cluster_name: new\n"), 0644, u.Username, g.Name),
	}
	h := &host.Host{Files: files}

	first := NewReconciler(h, Options{}).Reconcile(context.Background(), artifacts)
	require.NoError(t, first.Err())
	assert.Equal(t, []string{"write content"}, first.Results[0].Actions)

	second := NewReconciler(h, Options{}).Reconcile(context.Background(), artifacts)
	require.NoError(t, second.Err())
	assert.True(t, second.Converged(), "second run must change nothing: %v", changedIDs(second))
}

func TestReconcileReplaysFailedRefresh(t *testing.T) {
	t.Run("service restart", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		require.True(t, apply(t, n, c, Options{}).Success())

		n.SetFile(catalog.CassandraYAMLPath, []byte("cluster_name: drifted\n"), 0644, "cassandra", "cassandra")
		n.FailOn("restart cassandra", errors.New("Job for cassandra.service failed"))
		n.Reset()

		failed := apply(t, n, c, Options{})
		assert.Equal(t, types.OutcomeFailed, outcome(t, failed, "service:cassandra"))
		assert.Equal(t, map[string][]string{
			"service:cassandra": {"file:" + catalog.CassandraYAMLPath},
		}, failed.PendingRefresh)

		n.FailOn("restart cassandra", nil)
		n.Reset()

		replayed := apply(t, n, c, Options{PendingRefresh: failed.PendingRefresh})
		require.True(t, replayed.Success())
		assert.Equal(t, []string{"restart"}, replayed.Result("service:cassandra").Actions)
		assert.Equal(t, 1, n.Restarts("cassandra"))
		assert.Empty(t, replayed.PendingRefresh)

		n.Reset()
		assert.True(t, apply(t, n, c, Options{}).Converged())
	})

	t.Run("refresh-only exec", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		sysctlFails := true
		n.Handle(sysctlApply, func(context.Context, string) (*host.Result, error) {
			if sysctlFails {
				return &host.Result{ExitCode: 255, Stderr: "sysctl: permission denied"}, nil
			}
			return &host.Result{}, nil
		})

		first := apply(t, n, c, Options{})
		assert.Equal(t, types.OutcomeFailed, outcome(t, first, "exec:"+catalog.ExecApplySysctl))
		assert.Equal(t, []string{"file:" + catalog.SysctlPath}, first.PendingRefresh["exec:"+catalog.ExecApplySysctl])

		sysctlFails = false
		n.Reset()

		withoutReplay := apply(t, n, c, Options{DryRun: true})
		assert.Equal(t, types.OutcomeUnchanged, outcome(t, withoutReplay, "exec:"+catalog.ExecApplySysctl),
			"the sysctl file is unchanged, only the carried refresh triggers the exec")

		second := apply(t, n, c, Options{PendingRefresh: first.PendingRefresh})
		assert.Equal(t, types.OutcomeChanged, outcome(t, second, "exec:"+catalog.ExecApplySysctl))
		assert.Equal(t, 1, n.CountCommand(sysctlApply))
		assert.Empty(t, second.PendingRefresh)
	})

	t.Run("skipped artifacts keep their pending refresh", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		pending := map[string][]string{"service:cassandra": {"file:" + catalog.CassandraYAMLPath}}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report := NewReconciler(n.Host.Host(), Options{PendingRefresh: pending}).Reconcile(ctx, c.Artifacts)
		assert.Equal(t, types.OutcomeSkipped, outcome(t, report, "service:cassandra"))
		assert.Equal(t, pending, report.PendingRefresh)

		dry := NewReconciler(n.Host.Host(), Options{DryRun: true, PendingRefresh: pending}).Reconcile(ctx, c.Artifacts)
		assert.Empty(t, dry.PendingRefresh, "dry runs are never recorded")
	})
}

func TestReconcileRepairsDrift(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	require.True(t, apply(t, n, c, Options{}).Success())

	require.NoError(t, n.Chmod(catalog.LimitsPath, 0600))
	n.SetService("cassandra", host.ServiceStatus{Running: false, Enabled: true})
	n.Reset()

	report := apply(t, n, c, Options{})
	require.True(t, report.Success())

	limits := report.Result("file:" + catalog.LimitsPath)
	assert.Equal(t, types.StateDivergent, limits.Observed)
	assert.Equal(t, []string{"chmod 0644"}, limits.Actions)

	assert.Equal(t, []string{"start"}, report.Result("service:cassandra").Actions)
	assert.Equal(t, []string{"chmod " + catalog.LimitsPath, "start cassandra"}, n.Ops())
}

func TestReconcileSwapActions(t *testing.T) {
	t.Run("divergent run disables swap once", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)

		report := apply(t, n, c, Options{})
		assert.Equal(t, 1, n.CountCommand(swapoff))
		assert.Equal(t, types.OutcomeChanged, outcome(t, report, "exec:"+catalog.ExecSwapoff))
		assert.Equal(t, types.OutcomeChanged, outcome(t, report, "line_edit:"+catalog.FstabPath))

		content, err := n.ReadFile(catalog.FstabPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "# swap disabled: /dev/mapper/rhel-swap")
		assert.Contains(t, string(content), "UUID=0a1b /")
	})

	t.Run("swap already off", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		n.swapActive = false

		report := apply(t, n, c, Options{})
		assert.Zero(t, n.CountCommand(swapoff))
		assert.Equal(t, types.OutcomeUnchanged, outcome(t, report, "exec:"+catalog.ExecSwapoff))
	})

	t.Run("swap tuning disabled", func(t *testing.T) {
		c := testCatalog(t, testParams(func(p *params.Parameters) { p.DisableSwapTuneOS = false }))
		n := newNode(t, c)

		report := apply(t, n, c, Options{})
		assert.Zero(t, n.CountCommand(swapoff))
		assert.Zero(t, n.CountCommand(swapProbe))
		assert.Nil(t, report.Result("exec:"+catalog.ExecSwapoff))

		content, err := n.ReadFile(catalog.FstabPath)
		require.NoError(t, err)
		assert.Equal(t, fstab, string(content))
	})
}

func TestReconcileRangeRepair(t *testing.T) {
	c := testCatalog(t, testParams(func(p *params.Parameters) { p.EnableRangeRepairScript = true }))
	n := newNode(t, c)

	report := apply(t, n, c, Options{})
	require.True(t, report.Success())
	assert.Equal(t, types.OutcomeChanged, outcome(t, report, "file:"+catalog.RangeRepairUnitPath))
	assert.Equal(t, 1, n.CountCommand(daemonReload))
	assert.Equal(t, host.ServiceStatus{Running: true, Enabled: true}, n.Service(catalog.ServiceRangeRepair))

	info, err := n.Stat(catalog.RangeRepairScript)
	require.NoError(t, err)
	assert.Equal(t, "-rwxr-xr-x", info.Mode.String())

	n.Reset()
	second := apply(t, n, c, Options{})
	assert.True(t, second.Converged())
	assert.Zero(t, n.CountCommand(daemonReload))

	// the service is restated every run
	n.SetService(catalog.ServiceRangeRepair, host.ServiceStatus{})
	third := apply(t, n, c, Options{})
	assert.Equal(t, []string{"enable", "start"}, third.Result("service:"+catalog.ServiceRangeRepair).Actions)
}

func TestReconcileCredentialRotation(t *testing.T) {
	rotation := "exec:" + catalog.ExecChangePassword

	t.Run("probe passes", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		n.passwordValid = true

		report := apply(t, n, c, Options{})
		res := report.Result(rotation)
		assert.Equal(t, types.OutcomeUnchanged, res.Outcome)
		assert.Equal(t, types.StateConverged, res.Observed)
		assert.Zero(t, n.CountCommand(catalog.ChangePasswordCommand("cassandra", "cassandra", password)))
	})

	t.Run("probe fails then change succeeds", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)

		report := apply(t, n, c, Options{})
		res := report.Result(rotation)
		assert.Equal(t, types.OutcomeChanged, res.Outcome)
		assert.Equal(t, 1, n.CountCommand(catalog.ChangePasswordCommand("cassandra", "cassandra", password)))
		assert.Equal(t, 2, n.CountCommand(catalog.PasswordProbeCommand("cassandra", password)), "probe and verify")
	})

	t.Run("change runs but password still rejected", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		n.Handle(catalog.ChangePasswordCommand("cassandra", "cassandra", password), fake.Exit(0))

		report := apply(t, n, c, Options{})
		res := report.Result(rotation)
		require.Equal(t, types.OutcomeFailed, res.Outcome)
		assert.False(t, res.Mandatory)
		assert.ErrorIs(t, res.Err(), ErrNotConverged)

		var convErr *ConvergenceError
		require.True(t, errors.As(res.Err(), &convErr))
		assert.Equal(t, rotation, convErr.ArtifactID)
		assert.NotContains(t, res.Error, password)

		assert.True(t, report.Success(), "a conditional failure does not fail the run")
		assert.NoError(t, report.Err())
	})

	t.Run("change command exits non-zero", func(t *testing.T) {
		c := testCatalog(t, testParams(nil))
		n := newNode(t, c)
		n.Handle(catalog.ChangePasswordCommand("cassandra", "cassandra", password), func(context.Context, string) (*host.Result, error) {
			return &host.Result{ExitCode: 1, Stderr: "bad password " + password}, nil
		})

		res := apply(t, n, c, Options{}).Result(rotation)
		require.Equal(t, types.OutcomeFailed, res.Outcome)
		var cmdErr *host.CommandError
		require.True(t, errors.As(res.Err(), &cmdErr))
		assert.Equal(t, 1, cmdErr.ExitCode)
		assert.NotContains(t, res.Error, password)
		assert.Contains(t, res.Error, types.Redacted)
	})

	t.Run("no password configured", func(t *testing.T) {
		c := testCatalog(t, testParams(func(p *params.Parameters) { p.CassandraPassword = "" }))
		n := newNode(t, c)

		report := apply(t, n, c, Options{})
		assert.Nil(t, report.Result(rotation))
		for _, cmd := range n.Commands() {
			assert.False(t, strings.HasPrefix(cmd, "cqlsh"), cmd)
		}
	})
}

func TestReconcileGuardProbeError(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	n.Handle(catalog.PasswordProbeCommand("cassandra", password), fake.Fail(host.ErrCommandNotFound))

	report := apply(t, n, c, Options{})
	res := report.Result("exec:" + catalog.ExecChangePassword)
	require.NotNil(t, res)

	assert.Contains(t, res.GuardProbe, "command not found")
	assert.NotContains(t, res.GuardProbe, password)
	assert.Equal(t, types.StateDivergent, res.Observed)
	assert.Equal(t, 1, n.CountCommand(catalog.ChangePasswordCommand("cassandra", "cassandra", password)), "an unevaluable probe counts as divergent")

	// the verify probe cannot be evaluated either
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	var probeErr *GuardProbeError
	require.True(t, errors.As(res.Err(), &probeErr))
	assert.ErrorIs(t, res.Err(), host.ErrCommandNotFound)
	assert.NotContains(t, res.Error, password)
}

func TestReconcilePartialFailureSkipsDependents(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	n.FailOn("install cassandra-4.1.10-1", errors.New("No package cassandra-4.1.10-1 available"))

	report := apply(t, n, c, Options{})
	assert.False(t, report.Success())
	assert.Len(t, report.Results, len(c.Artifacts), "the run continues past a failure")

	assert.Equal(t, types.OutcomeFailed, outcome(t, report, "package:cassandra"))
	assert.Equal(t, types.OutcomeSkipped, outcome(t, report, "file:"+catalog.CassandraYAMLPath))
	assert.Equal(t, types.OutcomeSkipped, outcome(t, report, "service:cassandra"))
	assert.Equal(t, types.OutcomeSkipped, outcome(t, report, "exec:"+catalog.ExecChangePassword), "skips are transitive")
	assert.Equal(t, "dependency failed: package:cassandra", report.Result("service:cassandra").Error)

	// independent artifacts still converge
	assert.Equal(t, types.OutcomeChanged, outcome(t, report, "user:cassandra"))
	assert.Equal(t, types.OutcomeChanged, outcome(t, report, "file:"+catalog.SysctlPath))
	assert.Equal(t, types.OutcomeChanged, outcome(t, report, "exec:"+catalog.ExecSwapoff))

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package:cassandra: failed to install")
	assert.Zero(t, n.Restarts("cassandra"))
	assert.False(t, n.Service("cassandra").Running)
}

func TestReconcileConditionalFailureDoesNotFailRun(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	n.FailOn("write "+catalog.SysctlPath, errors.New("read-only file system"))

	report := apply(t, n, c, Options{})
	res := report.Result("file:" + catalog.SysctlPath)
	assert.Equal(t, types.OutcomeFailed, res.Outcome)
	assert.False(t, res.Mandatory)
	assert.Equal(t, types.OutcomeUnchanged, outcome(t, report, "exec:"+catalog.ExecApplySysctl))
	assert.True(t, report.Success())
	assert.NoError(t, report.Err())
	assert.Len(t, report.Failed(), 1)
}

func TestReconcileCancelledContext(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := NewReconciler(n.Host.Host(), Options{Secrets: c.Secrets()}).Reconcile(ctx, c.Artifacts)

	assert.Equal(t, len(c.Artifacts), report.Count(types.OutcomeSkipped))
	assert.Empty(t, n.Ops())
	assert.Empty(t, n.Commands())
	assert.False(t, report.Success())
}

func TestReconcileDryRun(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)

	report := apply(t, n, c, Options{DryRun: true})
	assert.True(t, report.DryRun)
	assert.Empty(t, n.Ops(), "a dry run never mutates the host")
	assert.Zero(t, n.CountCommand(swapoff))
	assert.Zero(t, n.CountCommand(catalog.ChangePasswordCommand("cassandra", "cassandra", password)))

	yamlRes := report.Result("file:" + catalog.CassandraYAMLPath)
	assert.Equal(t, types.OutcomeChanged, yamlRes.Outcome)
	assert.Equal(t, types.StateAbsent, yamlRes.Observed)
	assert.Contains(t, yamlRes.Diff, "+cluster_name: 'Test Cluster'")

	fstabRes := report.Result("line_edit:" + catalog.FstabPath)
	assert.Contains(t, fstabRes.Diff, "-/dev/mapper/rhel-swap")
	assert.Contains(t, fstabRes.Diff, "+# swap disabled: /dev/mapper/rhel-swap")

	// refresh-only execs fire when their subscription would change
	assert.Equal(t, []string{"run"}, report.Result("exec:"+catalog.ExecApplySysctl).Actions)

	for _, res := range report.Results {
		assert.NotContains(t, res.Diff, password, res.ID)
		assert.NotContains(t, res.Error, password, res.ID)
	}
}

func TestReconcilePublishesEvents(t *testing.T) {
	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()

	report := apply(t, n, c, Options{Broker: broker, RunID: "run-42"})
	broker.Stop()

	var got []*events.Event
	for event := range sub {
		got = append(got, event)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, events.EventRunStarted, got[0].Type)
	assert.Equal(t, events.EventRunFinished, got[len(got)-1].Type)
	assert.Equal(t, "run-42", report.RunID)

	changed := 0
	for _, event := range got {
		assert.Equal(t, "run-42", event.RunID)
		assert.NotContains(t, event.Message, password)
		if event.Type == events.EventArtifactChanged {
			changed++
		}
	}
	assert.Equal(t, report.Count(types.OutcomeChanged), changed)
}

func TestReconcileNeverLogsPassword(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true, Output: &buf})
	defer func() { log.Logger = zerolog.Nop() }()

	c := testCatalog(t, testParams(nil))
	n := newNode(t, c)
	n.Handle(catalog.ChangePasswordCommand("cassandra", "cassandra", password), func(context.Context, string) (*host.Result, error) {
		return &host.Result{ExitCode: 1, Stderr: "rejected " + password}, nil
	})
	n.Handle(catalog.PasswordProbeCommand("cassandra", password), fake.Fail(host.ErrTimeout))

	apply(t, n, c, Options{})
	require.NotZero(t, buf.Len())
	assert.NotContains(t, buf.String(), password)
	assert.Contains(t, buf.String(), types.Redacted)
}
