package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
)

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestSQLiteStore_FramesRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for i := range 5 {
		require.NoError(t, db.InsertFrame(ctx, makeFrame(startTime.Add(time.Duration(i)*minute), 100-float64(i))))
	}

	got, err := db.BatteryReadingsInRange(ctx, batteryID, startTime.Add(minute), startTime.Add(4*minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, startTime.Add(minute), got[0].Timestamp)
	assert.Equal(t, 99.0, got[0].SOCPct)
	assert.Equal(t, 13.5, got[0].VoltageV)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts["battery_telemetry"])
	assert.Equal(t, 5, counts["string_telemetry"])
	assert.Equal(t, 5, counts["environment_telemetry"])
	assert.Equal(t, 0, counts["outages"])
}

func TestSQLiteStore_Outages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	outages := []model.Outage{
		{Start: startTime.Add(time.Hour), End: startTime.Add(2 * time.Hour)},
		{Start: startTime, End: startTime.Add(30 * time.Minute)},
	}
	require.NoError(t, db.InsertOutages(ctx, "DC-PKT-01", outages))

	got, err := db.Outages(ctx, "DC-PKT-01")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, outages[1], got[0])

	none, err := db.Outages(ctx, "DC-CNX-01")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_BatteryState(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, ok, err := db.BatteryState(ctx, batteryID)
	require.NoError(t, err)
	assert.False(t, ok)

	st := degradation.State{
		ID:              batteryID,
		Profile:         degradation.ProfileHealthy,
		CapacityAh:      118,
		ResistanceMOhm:  3.6,
		SOHPct:          98.3,
		CalendarAgeDays: 365,
		RULDays:         3000,
	}
	require.NoError(t, db.UpsertBatteryStates(ctx, []degradation.State{st}))
	got, ok, err := db.BatteryState(ctx, batteryID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st, got)

	st.Failed = true
	st.FailedAt = startTime
	st.FailureMode = degradation.FailureSulfation
	st.SOHPct = 0
	require.NoError(t, db.UpsertBatteryStates(ctx, []degradation.State{st}))
	got, _, err = db.BatteryState(ctx, batteryID)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["battery_state"])
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 10 {
				f := makeFrame(startTime.Add(time.Duration(w*10+i)*minute), 90)
				assert.NoError(t, db.InsertFrame(ctx, f))
			}
		}()
	}
	wg.Wait()

	counts, err := db.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, counts["battery_telemetry"])
}
