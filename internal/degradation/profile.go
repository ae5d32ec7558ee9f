package degradation

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ProfileName selects one of the fixed degradation profiles.
type ProfileName string

const (
	ProfileHealthy     ProfileName = "healthy"
	ProfileAccelerated ProfileName = "accelerated"
	ProfileFailing     ProfileName = "failing"
)

// Profile bundles the aging constants of one degradation class.
type Profile struct {
	Name                         ProfileName
	SOHDeclinePctPerYear         float64
	ResistanceIncreasePctPerYear float64
	CycleStressFactor            float64
	TempAccelerationFactor       float64
	// SuddenFailureProbability is the per-day probability before SOH escalation.
	SuddenFailureProbability float64
	Description              string
}

var profiles = map[ProfileName]Profile{
	ProfileHealthy: {
		Name:                         ProfileHealthy,
		SOHDeclinePctPerYear:         2.0,
		ResistanceIncreasePctPerYear: 5.0,
		CycleStressFactor:            1.0,
		TempAccelerationFactor:       1.0,
		SuddenFailureProbability:     0.0001,
		Description:                  "normal operation",
	},
	ProfileAccelerated: {
		Name:                         ProfileAccelerated,
		SOHDeclinePctPerYear:         8.0,
		ResistanceIncreasePctPerYear: 15.0,
		CycleStressFactor:            1.5,
		TempAccelerationFactor:       1.3,
		SuddenFailureProbability:     0.001,
		Description:                  "higher stress conditions",
	},
	ProfileFailing: {
		Name:                         ProfileFailing,
		SOHDeclinePctPerYear:         25.0,
		ResistanceIncreasePctPerYear: 40.0,
		CycleStressFactor:            2.0,
		TempAccelerationFactor:       1.5,
		SuddenFailureProbability:     0.01,
		Description:                  "approaching failure",
	},
}

// fleetShare is the categorical distribution used when no profile is assigned.
var fleetShare = []struct {
	name   ProfileName
	weight float64
}{
	{ProfileHealthy, 0.85},
	{ProfileAccelerated, 0.12},
	{ProfileFailing, 0.03},
}

// LookupProfile resolves a profile name.
func LookupProfile(name ProfileName) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Profiles returns all profiles ordered healthy, accelerated, failing.
func Profiles() []Profile {
	out := make([]Profile, 0, len(fleetShare))
	for _, s := range fleetShare {
		out = append(out, profiles[s.name])
	}
	return out
}

// DrawProfile samples a profile with the fleet share 85/12/3.
func DrawProfile(rng *rand.Rand) ProfileName {
	weights := make([]float64, len(fleetShare))
	for i, s := range fleetShare {
		weights[i] = s.weight
	}
	idx := int(distuv.NewCategorical(weights, rng).Rand())
	return fleetShare[idx].name
}

// FailureMode describes how a battery failed.
type FailureMode string

const (
	FailureNone           FailureMode = ""
	FailureThermalRunaway FailureMode = "thermal_runaway"
	FailureInternalShort  FailureMode = "internal_short"
	FailureDryOut         FailureMode = "dry_out"
	FailureGridCorrosion  FailureMode = "grid_corrosion"
	FailureSulfation      FailureMode = "sulfation"
)

var failureModes = []struct {
	mode   FailureMode
	weight float64
}{
	{FailureThermalRunaway, 0.05},
	{FailureInternalShort, 0.10},
	{FailureDryOut, 0.30},
	{FailureGridCorrosion, 0.35},
	{FailureSulfation, 0.20},
}

func drawFailureMode(rng *rand.Rand) FailureMode {
	weights := make([]float64, len(failureModes))
	for i, f := range failureModes {
		weights[i] = f.weight
	}
	idx := int(distuv.NewCategorical(weights, rng).Rand())
	return failureModes[idx].mode
}
