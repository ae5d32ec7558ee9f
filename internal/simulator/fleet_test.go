package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/config"
	"fleet_simulator/internal/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// smallConfig is a two-hour, one-minute fleet with two jars per string.
func smallConfig(codes ...string) config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulation.Start = t0
	cfg.Simulation.End = t0.Add(2 * time.Hour)
	cfg.Simulation.SamplingInterval = time.Minute
	cfg.Fleet.Locations = codes
	cfg.Fleet.StringsPerRectifier = 1
	cfg.Fleet.StringsPerUPS = 1
	cfg.Fleet.JarsPerString = 2
	return cfg
}

func mustLocation(t *testing.T, code string) model.Location {
	t.Helper()
	loc, ok := model.LocationByCode(code)
	require.True(t, ok)
	return loc
}

func TestPlanSite_DefaultLayout(t *testing.T) {
	cfg := config.DefaultConfig()

	central, err := PlanSite(mustLocation(t, "DC-BKK-01"), cfg)
	require.NoError(t, err)
	require.Len(t, central.Strings, 15)
	assert.Equal(t, "DC-BKK-01-REC-01-S1", central.Strings[0].ID)
	assert.Equal(t, model.SystemRectifier, central.Strings[0].SystemType)
	assert.Equal(t, "DC-BKK-01-UPS-02-S6", central.Strings[14].ID)
	assert.Equal(t, model.SystemUPS, central.Strings[14].SystemType)
	require.Len(t, central.Strings[0].Batteries, 24)
	assert.Equal(t, "DC-BKK-01-REC-01-S1-J01", central.Strings[0].Batteries[0].ID)
	assert.Equal(t, "DC-BKK-01-REC-01-S1-J24", central.Strings[0].Batteries[23].ID)

	north, err := PlanSite(mustLocation(t, "DC-CNX-01"), cfg)
	require.NoError(t, err)
	assert.Len(t, north.Strings, 9)
}

func TestPlanSite_BatteryParameters(t *testing.T) {
	cfg := config.DefaultConfig()
	site, err := PlanSite(mustLocation(t, "DC-HDY-01"), cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg.Simulation.Start, site.Start)
	assert.Equal(t, cfg.Simulation.SamplingInterval, site.Interval)
	for _, spec := range site.Strings {
		bm := model.BatteryModels["HX12-120"]
		if spec.Batteries[0].InitialCapacityAh == 100 {
			bm = model.BatteryModels["GPL12-100"]
		}
		assert.Equal(t, bm.MaxChargeCurrentA, spec.MaxChargeCurrentA)
		for _, b := range spec.Batteries {
			assert.Equal(t, bm.CapacityAh, b.InitialCapacityAh, "one model per string")
			assert.InDelta(t, 3.5, b.InitialResistanceMOhm, 3.5*0.05)
			assert.Empty(t, b.Profile)
		}
	}
}

func TestPlanSite_Deterministic(t *testing.T) {
	cfg := config.DefaultConfig()
	loc := mustLocation(t, "DC-SRC-01")
	a, err := PlanSite(loc, cfg)
	require.NoError(t, err)
	b, err := PlanSite(loc, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Simulation.Seed++
	c, err := PlanSite(loc, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Strings[0].Batteries[0].InitialResistanceMOhm, c.Strings[0].Batteries[0].InitialResistanceMOhm)
}

func TestPlanSite_ProfileOverrideAndNoSpread(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fleet.Profile = "failing"
	cfg.Fleet.ResistanceSpreadPct = 0
	site, err := PlanSite(mustLocation(t, "DC-KKN-01"), cfg)
	require.NoError(t, err)
	for _, spec := range site.Strings {
		for _, b := range spec.Batteries {
			assert.EqualValues(t, "failing", b.Profile)
			assert.Equal(t, 3.5, b.InitialResistanceMOhm)
		}
	}
}

func TestPlanSite_UnknownRegion(t *testing.T) {
	_, err := PlanSite(model.Location{Code: "X", Region: "arctic"}, config.DefaultConfig())
	assert.Error(t, err)
}

func TestPlanFleet_ModelMix(t *testing.T) {
	sites, err := PlanFleet(config.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, sites, 9)

	var strings, hx int
	for _, s := range sites {
		for _, spec := range s.Strings {
			strings++
			if spec.Batteries[0].InitialCapacityAh == 120 {
				hx++
			}
		}
	}
	assert.Equal(t, 99, strings)
	frac := float64(hx) / float64(strings)
	assert.Greater(t, frac, 0.6)
	assert.Less(t, frac, 0.95)
}

func TestPlanFleet_Subset(t *testing.T) {
	sites, err := PlanFleet(smallConfig("DC-PKT-01", "DC-NTB-01"))
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "DC-PKT-01", sites[0].Location.Code)
	assert.Len(t, sites[0].Strings, 2)
	assert.Len(t, sites[1].Strings, 3)
}
