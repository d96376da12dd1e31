package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/cuemby/cassnode/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers commands from a table and records every call
type scriptedRunner struct {
	answers map[string]*Result
	calls   []string
}

func (r *scriptedRunner) Run(_ context.Context, command string, _ time.Duration) (*Result, error) {
	r.calls = append(r.calls, command)
	if res, ok := r.answers[command]; ok {
		return res, nil
	}
	return &Result{}, nil
}

func TestExecRunner(t *testing.T) {
	runner := NewExecRunner()
	ctx := context.Background()

	tests := []struct {
		name     string
		command  string
		wantExit int
		wantOut  string
		wantErr  error
	}{
		{name: "success", command: "echo 'hello world'", wantOut: "hello world\n"},
		{name: "non-zero exit", command: "sh -c 'exit 3'", wantExit: 3},
		{name: "missing binary", command: "cassnode-no-such-binary --flag", wantErr: ErrCommandNotFound},
		{name: "timeout", command: "sleep 5", wantErr: ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := runner.Run(ctx, tt.command, 200*time.Millisecond)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExit, res.ExitCode)
			assert.Equal(t, tt.wantOut, res.Stdout)
		})
	}
}

func TestExecRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecRunner().Run(ctx, "sleep 5", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplit(t *testing.T) {
	argv, err := Split(`cqlsh -u cassandra -p cassandra -e "ALTER USER cassandra WITH PASSWORD 'Pw1!';"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"cqlsh", "-u", "cassandra", "-p", "cassandra", "-e", "ALTER USER cassandra WITH PASSWORD 'Pw1!';"}, argv)

	_, err = Split("   ")
	assert.Error(t, err)
}

func TestResultErr(t *testing.T) {
	ok := &Result{}
	assert.NoError(t, ok.Err("true"))

	failed := &Result{ExitCode: 2, Stderr: "boom\n"}
	err := failed.Err("systemctl start cassandra")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Equal(t, "systemctl start cassandra: exit status 2: boom", err.Error())
}

func TestLocalFiles(t *testing.T) {
	root := t.TempDir()
	files := NewLocalFiles(root)

	_, err := files.ReadFile("/etc/cassandra/conf/cassandra.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, files.WriteFile("/etc/cassandra/conf/cassandra.yaml", []byte("cluster_name: x\n"), 0640))
	content, err := files.ReadFile("/etc/cassandra/conf/cassandra.yaml")
	require.NoError(t, err)
	assert.Equal(t, "cluster_name: x\n", string(content))

	_, err = os.Stat(filepath.Join(root, "etc/cassandra/conf/cassandra.yaml"))
	require.NoError(t, err, "paths resolve under the root")

	info, err := files.Stat("/etc/cassandra/conf/cassandra.yaml")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode)
	assert.False(t, info.IsDir)
	assert.NotEmpty(t, info.Owner)

	require.NoError(t, files.WriteFile("/etc/cassandra/conf/cassandra.yaml", []byte("cluster_name: y\n"), 0644))
	content, err = files.ReadFile("/etc/cassandra/conf/cassandra.yaml")
	require.NoError(t, err)
	assert.Equal(t, "cluster_name: y\n", string(content))

	entries, err := os.ReadDir(filepath.Join(root, "etc/cassandra/conf"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	require.NoError(t, files.MkdirAll("/var/lib/cassandra/data", 0750))
	info, err = files.Stat("/var/lib/cassandra/data")
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.Equal(t, os.FileMode(0750), info.Mode)

	require.NoError(t, files.Chmod("/var/lib/cassandra/data", 0700))
	info, err = files.Stat("/var/lib/cassandra/data")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode)
}

func TestLocalFilesWriteKeepsOwnership(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("changing file ownership requires root")
	}
	root := t.TempDir()
	files := NewLocalFiles(root)
	target := filepath.Join(root, "etc/cassandra/conf/cassandra.yaml")

	require.NoError(t, files.WriteFile("/etc/cassandra/conf/cassandra.yaml", []byte("cluster_name: x\n"), 0644))
	require.NoError(t, os.Chown(target, 65534, 65534))

	require.NoError(t, files.WriteFile("/etc/cassandra/conf/cassandra.yaml", []byte("cluster_name: y\n"), 0644))

	info, err := os.Stat(target)
	require.NoError(t, err)
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	assert.Equal(t, uint32(65534), st.Uid, "replacing the content keeps the owner")
	assert.Equal(t, uint32(65534), st.Gid, "replacing the content keeps the group")
}

func TestYumInstalledVersion(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]*Result{
		"rpm -q --queryformat %{VERSION}-%{RELEASE} cassandra": {Stdout: "4.1.10-1"},
		"rpm -q --queryformat %{VERSION}-%{RELEASE} java-11":   {ExitCode: 1, Stdout: "package java-11 is not installed\n"},
		"rpm -q --queryformat %{VERSION}-%{RELEASE} broken":    {ExitCode: 1, Stderr: "rpmdb open failed"},
	}}
	yum := NewYum(runner)
	ctx := context.Background()

	v, err := yum.InstalledVersion(ctx, "cassandra")
	require.NoError(t, err)
	assert.Equal(t, "4.1.10-1", v)

	v, err = yum.InstalledVersion(ctx, "java-11")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = yum.InstalledVersion(ctx, "broken")
	var cmdErr *CommandError
	assert.True(t, errors.As(err, &cmdErr))
}

func TestYumInstallDowngrades(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]*Result{
		"rpm -q --queryformat %{VERSION}-%{RELEASE} cassandra": {Stdout: "4.1.11-1"},
	}}
	require.NoError(t, NewYum(runner).Install(context.Background(), "cassandra", "4.1.10-1"))

	assert.Equal(t, []string{
		"yum -y install cassandra-4.1.10-1",
		"rpm -q --queryformat %{VERSION}-%{RELEASE} cassandra",
		"yum -y downgrade cassandra-4.1.10-1",
	}, runner.calls)
}

func TestSystemdStatus(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]*Result{
		"systemctl is-active --quiet cassandra":     {ExitCode: 3},
		"systemctl is-enabled --quiet range-repair": {ExitCode: 1},
	}}
	systemd := NewSystemd(runner)
	ctx := context.Background()

	status, err := systemd.Status(ctx, "cassandra")
	require.NoError(t, err)
	assert.Equal(t, ServiceStatus{Running: false, Enabled: true}, status)

	status, err = systemd.Status(ctx, "range-repair")
	require.NoError(t, err)
	assert.Equal(t, ServiceStatus{Running: true, Enabled: false}, status)

	require.NoError(t, systemd.Restart(ctx, "cassandra"))
	assert.Equal(t, "systemctl restart cassandra", runner.calls[len(runner.calls)-1])
}

func TestShadowAccounts(t *testing.T) {
	runner := &scriptedRunner{answers: map[string]*Result{
		"getent passwd cassandra": {Stdout: "cassandra:x:995:993::/var/lib/cassandra:/sbin/nologin\n"},
		"id -gn cassandra":        {Stdout: "cassandra\n"},
		"getent passwd ghost":     {ExitCode: 2},
		"getent group ghost":      {ExitCode: 2},
	}}
	accounts := NewShadowAccounts(runner)
	ctx := context.Background()

	info, err := accounts.LookupUser(ctx, "cassandra")
	require.NoError(t, err)
	assert.Equal(t, &UserInfo{Name: "cassandra", Group: "cassandra", Home: "/var/lib/cassandra", Shell: "/sbin/nologin"}, info)

	info, err = accounts.LookupUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, info)

	exists, err := accounts.GroupExists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, accounts.CreateGroup(ctx, types.GroupSpec{Name: "cassandra", System: true}))
	require.NoError(t, accounts.CreateUser(ctx, types.UserSpec{
		Name: "cassandra", Group: "cassandra", Home: "/var/lib/cassandra", Shell: "/sbin/nologin", System: true,
	}))
	assert.Equal(t, []string{
		"groupadd -r cassandra",
		"useradd -M -r -g cassandra -d /var/lib/cassandra -s /sbin/nologin cassandra",
	}, runner.calls[len(runner.calls)-2:])
}

func TestParsePasswd(t *testing.T) {
	_, err := ParsePasswd("cassandra:x:995")
	assert.Error(t, err)
}
