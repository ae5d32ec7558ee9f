package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
)

func TestSQLiteStore_LocationSpans(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for i := range 4 {
		f := makeFrame(startTime.Add(time.Duration(i)*minute), 100)
		f.Environment.GridAvailable = i != 2
		require.NoError(t, db.InsertFrame(ctx, f))
	}
	require.NoError(t, db.InsertOutages(ctx, "DC-BKK-01", []model.Outage{
		{Start: startTime, End: startTime.Add(time.Hour)},
		{Start: startTime.Add(3 * time.Hour), End: startTime.Add(3*time.Hour + 30*time.Minute)},
	}))

	spans, err := db.LocationSpans(ctx)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "DC-BKK-01", s.LocationCode)
	assert.Equal(t, startTime, s.First)
	assert.Equal(t, startTime.Add(3*minute), s.Last)
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 1, s.GridDownRows)
	assert.Equal(t, 2, s.OutageCount)
	assert.InDelta(t, 1.5, s.OutageHours, 1e-9)
}

func TestSQLiteStore_LocationSpans_Empty(t *testing.T) {
	spans, err := openTestDB(t).LocationSpans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestSQLiteStore_ProfileStatsAndFailureModes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.UpsertBatteryStates(ctx, []degradation.State{
		{ID: "J01", Profile: degradation.ProfileHealthy, SOHPct: 98, RULDays: 3000},
		{ID: "J02", Profile: degradation.ProfileHealthy, SOHPct: 96, RULDays: 2000},
		{ID: "J03", Profile: degradation.ProfileFailing, SOHPct: 0, Failed: true, FailedAt: startTime,
			FailureMode: degradation.FailureDryOut},
		{ID: "J04", Profile: degradation.ProfileFailing, SOHPct: 0, Failed: true, FailedAt: startTime,
			FailureMode: degradation.FailureDryOut},
		{ID: "J05", Profile: degradation.ProfileAccelerated, SOHPct: 0, Failed: true, FailedAt: startTime,
			FailureMode: degradation.FailureInternalShort},
	}))

	stats, err := db.ProfileStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, "accelerated", stats[0].Profile)
	assert.Equal(t, "failing", stats[1].Profile)
	assert.Equal(t, 2, stats[1].Failed)
	healthy := stats[2]
	assert.Equal(t, "healthy", healthy.Profile)
	assert.Equal(t, 2, healthy.Batteries)
	assert.Equal(t, 0, healthy.Failed)
	assert.InDelta(t, 97, healthy.AvgSOHPct, 1e-9)
	assert.InDelta(t, 96, healthy.MinSOHPct, 1e-9)
	assert.InDelta(t, 2500, healthy.AvgRULDays, 1e-9)

	modes, err := db.FailureModes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dry_out": 2, "internal_short": 1}, modes)
}
