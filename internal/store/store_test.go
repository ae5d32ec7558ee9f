package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
)

var (
	batteryID = "DC-BKK-01-REC-01-S1-J01"
	startTime = time.Date(2024, 11, 21, 12, 0, 0, 0, time.UTC)
	minute    = time.Minute
)

func makeBatteryReadings(id string, socs []float64, start time.Time, interval time.Duration) []model.BatteryReading {
	readings := make([]model.BatteryReading, len(socs))
	for i, soc := range socs {
		readings[i] = model.BatteryReading{
			Timestamp: start.Add(time.Duration(i) * interval),
			BatteryID: id,
			VoltageV:  13.5,
			SOCPct:    soc,
			SOHPct:    100,
		}
	}
	return readings
}

func makeFrame(ts time.Time, soc float64) telemetry.Frame {
	return telemetry.Frame{
		Timestamp:   ts,
		Environment: model.EnvironmentReading{Timestamp: ts, LocationCode: "DC-BKK-01", IndoorTempC: 24},
		Strings:     []model.StringReading{{Timestamp: ts, StringID: "DC-BKK-01-REC-01-S1", Mode: model.ModeFloat}},
		Batteries:   makeBatteryReadings(batteryID, []float64{soc}, ts, 0),
	}
}

func TestStore_AddAndQuery(t *testing.T) {
	s := New()
	for _, r := range makeBatteryReadings(batteryID, []float64{100, 99, 98, 97, 96}, startTime, minute) {
		s.AddBattery(r)
	}

	assert.Equal(t, 5, s.BatteryCount(batteryID))
	assert.Equal(t, 0, s.BatteryCount("nonexistent"))
	assert.Equal(t, []string{batteryID}, s.BatteryIDs())

	latest, ok := s.LatestBattery(batteryID)
	require.True(t, ok)
	assert.Equal(t, 96.0, latest.SOCPct)
	_, ok = s.LatestBattery("nonexistent")
	assert.False(t, ok)
}

func TestStore_OutOfOrder(t *testing.T) {
	s := New()
	rs := makeBatteryReadings(batteryID, []float64{100, 99, 98}, startTime, minute)
	s.AddBattery(rs[2])
	s.AddBattery(rs[0])
	s.AddBattery(rs[1])

	got := s.BatteryReadingsInRange(batteryID, startTime, startTime.Add(time.Hour))
	require.Len(t, got, 3)
	assert.Equal(t, []float64{100, 99, 98}, []float64{got[0].SOCPct, got[1].SOCPct, got[2].SOCPct})
}

func TestStore_ReadingsInRange(t *testing.T) {
	s := New()
	for _, r := range makeBatteryReadings(batteryID, []float64{100, 99, 98, 97, 96}, startTime, minute) {
		s.AddBattery(r)
	}

	got := s.BatteryReadingsInRange(batteryID, startTime.Add(minute), startTime.Add(3*minute))
	require.Len(t, got, 2)
	assert.Equal(t, 99.0, got[0].SOCPct)
	assert.Equal(t, 98.0, got[1].SOCPct)

	assert.Nil(t, s.BatteryReadingsInRange(batteryID, startTime.Add(time.Hour), startTime.Add(2*time.Hour)))
	assert.Nil(t, s.BatteryReadingsInRange("nonexistent", startTime, startTime.Add(time.Hour)))

	// Returned slices are copies.
	got[0].SOCPct = -1
	again := s.BatteryReadingsInRange(batteryID, startTime.Add(minute), startTime.Add(2*minute))
	assert.Equal(t, 99.0, again[0].SOCPct)
}

func TestStore_BatteryAt(t *testing.T) {
	s := New()
	for _, r := range makeBatteryReadings(batteryID, []float64{100, 99, 98}, startTime, minute) {
		s.AddBattery(r)
	}

	r, ok := s.BatteryAt(batteryID, startTime.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 99.0, r.SOCPct)

	r, ok = s.BatteryAt(batteryID, startTime.Add(2*minute))
	require.True(t, ok)
	assert.Equal(t, 98.0, r.SOCPct)

	_, ok = s.BatteryAt(batteryID, startTime.Add(-time.Second))
	assert.False(t, ok)
}

func TestStore_Bounded(t *testing.T) {
	s := NewBounded(3)
	for _, r := range makeBatteryReadings(batteryID, []float64{100, 99, 98, 97, 96}, startTime, minute) {
		s.AddBattery(r)
	}
	assert.Equal(t, 3, s.BatteryCount(batteryID))
	got := s.BatteryReadingsInRange(batteryID, startTime, startTime.Add(time.Hour))
	assert.Equal(t, 98.0, got[0].SOCPct)
}

func TestStore_AddFrame(t *testing.T) {
	s := New()
	for i := range 3 {
		f := makeFrame(startTime.Add(time.Duration(i)*minute), 100-float64(i))
		if i == 2 {
			f.Failures = []degradation.State{{ID: batteryID, Failed: true, FailureMode: degradation.FailureDryOut}}
		}
		s.AddFrame(f)
	}

	assert.Equal(t, []string{"DC-BKK-01"}, s.LocationCodes())
	assert.Len(t, s.StringReadingsInRange("DC-BKK-01-REC-01-S1", startTime, startTime.Add(time.Hour)), 3)
	assert.Len(t, s.EnvironmentInRange("DC-BKK-01", startTime, startTime.Add(2*minute)), 2)

	env, ok := s.LatestEnvironment("DC-BKK-01")
	require.True(t, ok)
	assert.Equal(t, startTime.Add(2*minute), env.Timestamp)

	st, ok := s.BatteryState(batteryID)
	require.True(t, ok)
	assert.True(t, st.Failed)

	tr, ok := s.TimeRange()
	require.True(t, ok)
	assert.Equal(t, startTime, tr.Start)
	assert.Equal(t, startTime.Add(2*minute), tr.End)
}

func TestStore_EmptyTimeRange(t *testing.T) {
	_, ok := New().TimeRange()
	assert.False(t, ok)
	_, ok = New().BatteryState("x")
	assert.False(t, ok)
}

func TestStore_SetBatteryStates(t *testing.T) {
	s := New()
	s.SetBatteryStates([]degradation.State{{ID: "a", SOHPct: 95}, {ID: "b", SOHPct: 90}})
	s.SetBatteryStates([]degradation.State{{ID: "a", SOHPct: 94}})
	a, _ := s.BatteryState("a")
	b, _ := s.BatteryState("b")
	assert.Equal(t, 94.0, a.SOHPct)
	assert.Equal(t, 90.0, b.SOHPct)
}
