package features

import (
	"testing"

	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *params.Parameters)
		facts  facts.Facts
		want   FeatureSet
	}{
		{
			name:  "defaults on rhel 8",
			facts: facts.Facts{OSFamily: facts.FamilyRedHat, OSMajorRelease: 8},
			want: FeatureSet{
				OSTuning:    true,
				Swap:        true,
				JavaPackage: true,
				Java:        params.Java11,
			},
		},
		{
			name:  "rhel 7 is the lowest tuned release",
			facts: facts.Facts{OSFamily: facts.FamilyRedHat, OSMajorRelease: 7},
			want: FeatureSet{
				OSTuning:    true,
				Swap:        true,
				JavaPackage: true,
				Java:        params.Java11,
			},
		},
		{
			name:  "rhel 6 gets no tuning",
			facts: facts.Facts{OSFamily: facts.FamilyRedHat, OSMajorRelease: 6},
			want:  FeatureSet{Swap: true, Java: params.Java11},
		},
		{
			name:  "debian gets no tuning",
			facts: facts.Facts{OSFamily: facts.FamilyDebian, OSMajorRelease: 12},
			want:  FeatureSet{Swap: true, Java: params.Java11},
		},
		{
			name: "swap gate independent of tuning gate",
			mutate: func(p *params.Parameters) {
				p.DisableSwapTuneOS = false
			},
			facts: facts.Facts{OSFamily: facts.FamilyRedHat, OSMajorRelease: 8},
			want: FeatureSet{
				OSTuning:    true,
				JavaPackage: true,
				Java:        params.Java11,
			},
		},
		{
			name: "range repair and rotation",
			mutate: func(p *params.Parameters) {
				p.EnableRangeRepairScript = true
				p.CassandraPassword = "pw"
				p.JavaVersion = params.Java8
			},
			facts: facts.Facts{OSFamily: facts.FamilyDebian},
			want: FeatureSet{
				Swap:               true,
				RangeRepair:        true,
				CredentialRotation: true,
				Java:               params.Java8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params.Default()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			assert.Equal(t, tt.want, Compute(&p, tt.facts))
		})
	}
}

func TestEnabled(t *testing.T) {
	fs := FeatureSet{Swap: true, RangeRepair: true}

	assert.True(t, fs.Enabled(types.FeatureNone))
	assert.True(t, fs.Enabled(types.FeatureSwap))
	assert.True(t, fs.Enabled(types.FeatureRangeRepair))
	assert.False(t, fs.Enabled(types.FeatureOSTuning))
	assert.False(t, fs.Enabled(types.Feature("bogus")))
	assert.Equal(t, []types.Feature{types.FeatureSwap, types.FeatureRangeRepair}, fs.List())
}
