// Package features computes which optional subsystems a run manages.
//
// The FeatureSet is computed once per run from parameters and host facts and
// threaded through derivation, rendering and the catalog, so gating
// decisions live in one place. A disabled feature means its artifacts do not
// exist in the catalog at all, not that they are managed as stopped.
package features

import (
	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/cuemby/cassnode/pkg/types"
)

// MinTunedRelease is the lowest RedHat major release that gets kernel and
// limits tuning and a managed Java package
const MinTunedRelease = 7

// FeatureSet holds the gate decisions of one run
type FeatureSet struct {
	OSTuning           bool
	Swap               bool
	RangeRepair        bool
	JavaPackage        bool
	CredentialRotation bool

	Java params.JavaVersion
}

// Compute evaluates every gate. The gates are independent of each other.
func Compute(p *params.Parameters, f facts.Facts) FeatureSet {
	modernRedHat := f.IsRedHat() && f.OSMajorRelease >= MinTunedRelease

	return FeatureSet{
		OSTuning:           modernRedHat,
		Swap:               p.DisableSwapTuneOS,
		RangeRepair:        p.EnableRangeRepairScript,
		JavaPackage:        modernRedHat,
		CredentialRotation: p.CassandraPassword != "",
		Java:               p.JavaVersion,
	}
}

// Enabled reports whether artifacts tagged with feature belong in the catalog.
// Mandatory artifacts (FeatureNone) are always enabled.
func (fs FeatureSet) Enabled(feature types.Feature) bool {
	switch feature {
	case types.FeatureNone:
		return true
	case types.FeatureOSTuning:
		return fs.OSTuning
	case types.FeatureSwap:
		return fs.Swap
	case types.FeatureRangeRepair:
		return fs.RangeRepair
	case types.FeatureJavaPackage:
		return fs.JavaPackage
	case types.FeatureCredentialRotation:
		return fs.CredentialRotation
	default:
		return false
	}
}

// List returns the enabled features in a fixed order
func (fs FeatureSet) List() []types.Feature {
	all := []types.Feature{
		types.FeatureJavaPackage,
		types.FeatureOSTuning,
		types.FeatureSwap,
		types.FeatureRangeRepair,
		types.FeatureCredentialRotation,
	}
	var enabled []types.Feature
	for _, f := range all {
		if fs.Enabled(f) {
			enabled = append(enabled, f)
		}
	}
	return enabled
}
