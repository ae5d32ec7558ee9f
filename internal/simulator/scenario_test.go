package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/telemetry"
)

func newSmallSite(t *testing.T, code string) *telemetry.Site {
	t.Helper()
	cfg, err := PlanSite(mustLocation(t, code), smallConfig(code))
	require.NoError(t, err)
	site, err := telemetry.NewSite(cfg)
	require.NoError(t, err)
	return site
}

func TestScenario_Valid(t *testing.T) {
	for _, s := range Scenarios {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Scenario("meteor").Valid())
}

func TestApplyScenario_SiteOverrides(t *testing.T) {
	site := newSmallSite(t, "DC-BKK-01")

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioHighTemperature}, t0))
	assert.Equal(t, telemetry.Overrides{AmbientOffsetC: 8}, site.Overrides())
	assert.Equal(t, 8.0, site.Environment().TempOffsetC)

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioPowerOutage}, t0))
	assert.Equal(t, telemetry.Overrides{GridDown: true}, site.Overrides())
	assert.Equal(t, 0.0, site.Environment().TempOffsetC)

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioHVACFailure}, t0))
	assert.Equal(t, telemetry.Overrides{HVACFault: true}, site.Overrides())

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioNormal}, t0))
	assert.Equal(t, telemetry.Overrides{}, site.Overrides())
}

func TestApplyScenario_BatteryDegradation(t *testing.T) {
	site := newSmallSite(t, "DC-BKK-01")
	target := site.Strings()[1].Jars()[1]

	req := ScenarioRequest{Scenario: ScenarioBatteryDegradation, BatteryIDs: []string{target.Battery.ID()}}
	require.NoError(t, ApplyScenario(site, req, t0))
	assert.Equal(t, degradation.ProfileFailing, target.Battery.Profile().Name)

	// Default target is the first jar of the first string.
	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioBatteryDegradation}, t0))
	assert.Equal(t, degradation.ProfileFailing, site.Strings()[0].Jars()[0].Battery.Profile().Name)
}

func TestApplyScenario_ThermalRunaway(t *testing.T) {
	site := newSmallSite(t, "DC-CNX-01")
	jar := site.Strings()[0].Jars()[0]

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioThermalRunaway}, t0))
	assert.True(t, jar.Battery.Failed)
	assert.Equal(t, degradation.FailureThermalRunaway, jar.Battery.FailureMode)
	assert.Equal(t, 20.0, jar.TempOffsetC)

	require.NoError(t, ApplyScenario(site, ScenarioRequest{Scenario: ScenarioNormal}, t0))
	assert.Equal(t, 0.0, jar.TempOffsetC)
	assert.True(t, jar.Battery.Failed, "failures are permanent")
}

func TestApplyScenario_Errors(t *testing.T) {
	site := newSmallSite(t, "DC-CNX-01")
	assert.ErrorIs(t, ApplyScenario(site, ScenarioRequest{Scenario: "meteor"}, t0), ErrUnknownScenario)
	err := ApplyScenario(site, ScenarioRequest{Scenario: ScenarioThermalRunaway, BatteryIDs: []string{"nope"}}, t0)
	assert.ErrorIs(t, err, ErrUnknownBattery)
	assert.False(t, site.Strings()[0].Jars()[0].Battery.Failed)
}
