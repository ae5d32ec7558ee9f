// Package telemetry turns degradation and environment state into per-jar,
// per-string and per-location time series.
package telemetry

import "fleet_simulator/internal/model"

// Boost charging runs until the string is back above this SOC.
const (
	boostEntrySOCPct = 95.0
	boostExitSOCPct  = 99.0
)

// NextMode returns the operating mode for the coming step. It depends only on
// the previous mode, grid availability, the equalization schedule and the
// string's average SOC.
func NextMode(prev model.Mode, gridAvailable, equalizeScheduled bool, avgSOCPct float64) model.Mode {
	switch {
	case !gridAvailable:
		return model.ModeDischarge
	case equalizeScheduled:
		return model.ModeEqualize
	case prev == model.ModeDischarge && avgSOCPct < boostEntrySOCPct:
		return model.ModeBoost
	case prev == model.ModeBoost && avgSOCPct < boostExitSOCPct:
		return model.ModeBoost
	default:
		return model.ModeFloat
	}
}
