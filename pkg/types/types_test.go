package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		secrets []string
		want    string
	}{
		{
			name:    "single occurrence",
			input:   "cqlsh -u cassandra -p 'TestPassword123!' -e 'exit'",
			secrets: []string{"TestPassword123!"},
			want:    "cqlsh -u cassandra -p '********' -e 'exit'",
		},
		{
			name:    "multiple occurrences",
			input:   "a=s3cret b=s3cret",
			secrets: []string{"s3cret"},
			want:    "a=******** b=********",
		},
		{
			name:    "empty secret ignored",
			input:   "nothing to hide",
			secrets: []string{""},
			want:    "nothing to hide",
		},
		{
			name:  "no secrets",
			input: "plain",
			want:  "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.input, tt.secrets))
		})
	}
}

func TestRedactErrorKeepsChain(t *testing.T) {
	sentinel := errors.New("probe failed")
	err := fmt.Errorf("running -p hunter2: %w", sentinel)

	redacted := RedactError(err, []string{"hunter2"})
	require.Error(t, redacted)
	assert.NotContains(t, redacted.Error(), "hunter2")
	assert.ErrorIs(t, redacted, sentinel)

	assert.Nil(t, RedactError(nil, []string{"x"}))
	assert.Same(t, err, RedactError(err, nil))
}

func TestReportSuccessIgnoresConditionalFailures(t *testing.T) {
	report := &Report{}

	ok := &ArtifactResult{ID: "file:/a", Mandatory: true, Outcome: OutcomeUnchanged}
	optional := &ArtifactResult{ID: "service:range-repair", Mandatory: false}
	optional.SetErr(errors.New("unit failed"))
	report.Results = []*ArtifactResult{ok, optional}

	assert.True(t, report.Success())
	assert.NoError(t, report.Err())
	assert.Len(t, report.Failed(), 1)
	assert.False(t, report.Converged())

	mandatory := &ArtifactResult{ID: "package:cassandra", Mandatory: true}
	mandatory.SetErr(errors.New("yum failed"))
	report.Results = append(report.Results, mandatory)

	assert.False(t, report.Success())
	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yum failed")
	assert.NotContains(t, err.Error(), "unit failed")
}

func TestReportConverged(t *testing.T) {
	report := &Report{Results: []*ArtifactResult{
		{ID: "a", Outcome: OutcomeUnchanged},
		{ID: "b", Outcome: OutcomeUnchanged},
	}}
	assert.True(t, report.Converged())
	assert.Equal(t, 2, report.Count(OutcomeUnchanged))
	assert.NotNil(t, report.Result("b"))
	assert.Nil(t, report.Result("c"))
}

func TestArtifactBuilders(t *testing.T) {
	a := NewExec("apply-sysctl-cassandra", ExecSpec{Command: "sysctl -p x", RefreshOnly: true}).
		WithFeature(FeatureOSTuning).
		WithSubscribe(ArtifactID(KindFile, "/etc/sysctl.d/99-cassandra.conf"))

	assert.Equal(t, "exec:apply-sysctl-cassandra", a.ID)
	assert.False(t, a.Mandatory())
	assert.Equal(t, []string{"file:/etc/sysctl.d/99-cassandra.conf"}, a.Subscribe)
	assert.True(t, NewPackage("cassandra", "4.1.10-1").Mandatory())
}
