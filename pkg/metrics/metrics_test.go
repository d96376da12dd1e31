package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/cassnode/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(outcome types.Outcome, dryRun bool) *types.Report {
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return &types.Report{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		DryRun:     dryRun,
		Results: []*types.ArtifactResult{
			{ID: "file:/etc/cassandra/conf/cassandra.yaml", Kind: types.KindFile, Mandatory: true, Outcome: outcome},
			{ID: "file:/etc/sysctl.d/99-cassandra.conf", Kind: types.KindFile, Mandatory: true, Outcome: types.OutcomeUnchanged},
			{ID: "exec:swapoff", Kind: types.KindExec, Mandatory: false, Outcome: types.OutcomeChanged},
		},
	}
}

func TestRecordReport(t *testing.T) {
	successBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	failureBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("failure"))

	RecordReport(testReport(types.OutcomeChanged, false))
	assert.Equal(t, successBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LastRunSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("file", "changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("file", "unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("exec", "changed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("service", "failed")))
	assert.Equal(t, float64(testReport(types.OutcomeChanged, false).FinishedAt.Unix()), testutil.ToFloat64(LastRunTimestamp))

	RecordReport(testReport(types.OutcomeFailed, false))
	assert.Equal(t, failureBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(LastRunSuccess))
	assert.Equal(t, 0.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("file", "changed")), "gauges reflect the last run only")
	assert.Equal(t, 1.0, testutil.ToFloat64(ArtifactsTotal.WithLabelValues("file", "failed")))
}

func TestRecordReportDryRunKeepsLastRunSuccess(t *testing.T) {
	RecordReport(testReport(types.OutcomeChanged, false))
	dryBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("dry_run"))

	RecordReport(testReport(types.OutcomeFailed, true))
	assert.Equal(t, dryBefore+1, testutil.ToFloat64(RunsTotal.WithLabelValues("dry_run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(LastRunSuccess))
}

func TestWriteTextfile(t *testing.T) {
	RecordReport(testReport(types.OutcomeChanged, false))

	path := filepath.Join(t.TempDir(), "textfile", "cassnode.prom")
	require.NoError(t, WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.Contains(text, "cassnode_runs_total"))
	assert.True(t, strings.Contains(text, "cassnode_last_run_success 1"))
}
