package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegionValid(t *testing.T) {
	assert.True(t, RegionSouthern.Valid())
	assert.False(t, Region("arctic").Valid())
}

func TestSystemTypeValid(t *testing.T) {
	assert.True(t, SystemUPS.Valid())
	assert.False(t, SystemType("DIESEL").Valid())
}

func TestLocationByCode(t *testing.T) {
	loc, ok := LocationByCode("DC-PKT-01")
	assert.True(t, ok)
	assert.Equal(t, RegionSouthern, loc.Region)

	_, ok = LocationByCode("DC-XXX-99")
	assert.False(t, ok)
}

func TestBatteryModels(t *testing.T) {
	hx, ok := BatteryModels["HX12-120"]
	assert.True(t, ok)
	assert.InDelta(t, 120, hx.CapacityAh, 0.001)
	assert.InDelta(t, 36, hx.MaxChargeCurrentA, 0.001)
}

func TestTimeRange(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: t0, End: t0.Add(time.Hour)}

	assert.True(t, tr.Contains(t0))
	assert.True(t, tr.Contains(t0.Add(59*time.Minute)))
	assert.False(t, tr.Contains(t0.Add(time.Hour)))
	assert.Equal(t, time.Hour, tr.Duration())
}

func TestChannelCatalogComplete(t *testing.T) {
	for ch, info := range ChannelCatalog {
		assert.NotEmpty(t, info.Name, "channel %s", ch)
		assert.NotEmpty(t, info.Unit, "channel %s", ch)
	}
}
