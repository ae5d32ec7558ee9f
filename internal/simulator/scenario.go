package simulator

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/telemetry"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrUnknownBattery  = errors.New("unknown battery")
)

// Scenario is a named set of forced conditions injected into a running site.
type Scenario string

const (
	ScenarioNormal             Scenario = "normal_operation"
	ScenarioHighTemperature    Scenario = "high_temperature"
	ScenarioPowerOutage        Scenario = "power_outage"
	ScenarioHVACFailure        Scenario = "hvac_failure"
	ScenarioBatteryDegradation Scenario = "battery_degradation"
	ScenarioThermalRunaway     Scenario = "thermal_runaway"
)

// Scenarios lists every scenario.
var Scenarios = []Scenario{
	ScenarioNormal,
	ScenarioHighTemperature,
	ScenarioPowerOutage,
	ScenarioHVACFailure,
	ScenarioBatteryDegradation,
	ScenarioThermalRunaway,
}

const (
	heatWaveOffsetC = 8.0
	runawayHotSpotC = 20.0
)

// Valid reports whether s is a known scenario.
func (s Scenario) Valid() bool {
	for _, known := range Scenarios {
		if s == known {
			return true
		}
	}
	return false
}

// ScenarioRequest selects a scenario and, for battery scenarios, its targets.
// With no targets the first jar of the first string is used.
type ScenarioRequest struct {
	Scenario   Scenario `json:"scenario"`
	BatteryIDs []string `json:"battery_ids,omitempty"`
}

// ApplyScenario switches site to req at time now. Site-level scenarios
// replace the overrides; battery scenarios keep them and act on the target
// jars. Returning to normal clears overrides and hot spots but cannot undo
// degradation or failures.
func ApplyScenario(site *telemetry.Site, req ScenarioRequest, now time.Time) error {
	if !req.Scenario.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, req.Scenario)
	}

	switch req.Scenario {
	case ScenarioNormal:
		site.SetOverrides(telemetry.Overrides{})
		for _, str := range site.Strings() {
			for _, j := range str.Jars() {
				j.TempOffsetC = 0
			}
		}
	case ScenarioHighTemperature:
		site.SetOverrides(telemetry.Overrides{AmbientOffsetC: heatWaveOffsetC})
	case ScenarioPowerOutage:
		site.SetOverrides(telemetry.Overrides{GridDown: true})
	case ScenarioHVACFailure:
		site.SetOverrides(telemetry.Overrides{HVACFault: true})
	case ScenarioBatteryDegradation:
		jars, err := targetJars(site, req.BatteryIDs)
		if err != nil {
			return err
		}
		for _, j := range jars {
			if err := j.Battery.SetProfile(degradation.ProfileFailing); err != nil {
				return err
			}
		}
	case ScenarioThermalRunaway:
		jars, err := targetJars(site, req.BatteryIDs)
		if err != nil {
			return err
		}
		for _, j := range jars {
			j.Battery.ForceFailure(now, degradation.FailureThermalRunaway)
			j.TempOffsetC = runawayHotSpotC
		}
	}

	log.WithFields(log.Fields{
		"location": site.Location().Code,
		"scenario": req.Scenario,
		"targets":  req.BatteryIDs,
	}).Info("Scenario applied")
	return nil
}

func targetJars(site *telemetry.Site, ids []string) ([]*telemetry.Jar, error) {
	strs := site.Strings()
	if len(ids) == 0 {
		if len(strs) == 0 || len(strs[0].Jars()) == 0 {
			return nil, fmt.Errorf("site %s has no batteries", site.Location().Code)
		}
		return []*telemetry.Jar{strs[0].Jars()[0]}, nil
	}

	byID := make(map[string]*telemetry.Jar)
	for _, str := range strs {
		for _, j := range str.Jars() {
			byID[j.Battery.ID()] = j
		}
	}
	out := make([]*telemetry.Jar, 0, len(ids))
	for _, id := range ids {
		j, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("site %s: %w %q", site.Location().Code, ErrUnknownBattery, id)
		}
		out = append(out, j)
	}
	return out, nil
}
