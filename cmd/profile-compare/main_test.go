package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/environment"
	"fleet_simulator/internal/model"
)

func testAgingConfig(years int) agingConfig {
	return agingConfig{
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, environment.Bangkok),
		Years:    years,
		Seed:     42,
		EOL:      80,
		Failures: false,
	}
}

func TestParseRegions(t *testing.T) {
	all, err := parseRegions(nil)
	require.NoError(t, err)
	assert.Equal(t, model.Regions, all)

	got, err := parseRegions([]string{"central, southern", "northern"})
	require.NoError(t, err)
	assert.Equal(t, []model.Region{model.RegionCentral, model.RegionSouthern, model.RegionNorthern}, got)

	_, err = parseRegions([]string{"arctic"})
	assert.ErrorIs(t, err, environment.ErrUnknownRegion)
}

func TestYearMarks(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, yearMarks(3))
	assert.Equal(t, []int{2, 4, 6, 8, 10}, yearMarks(10))
	assert.Equal(t, []int{1, 2, 4, 5, 7}, yearMarks(7))
}

func TestAge_ProfilesOrdered(t *testing.T) {
	cfg := testAgingConfig(3)
	var final []float64
	for _, p := range degradation.Profiles() {
		r, err := age(model.RegionCentral, p.Name, cfg)
		require.NoError(t, err)
		require.Len(t, r.SOHByYear, 3)
		assert.GreaterOrEqual(t, r.SOHByYear[0], r.SOHByYear[2])
		assert.InDelta(t, 24, r.AvgIndoorC, 4)
		final = append(final, r.SOHByYear[2])
	}
	assert.Greater(t, final[0], final[1], "healthy outlives accelerated")
	assert.Greater(t, final[1], final[2], "accelerated outlives failing")
}

func TestAge_Deterministic(t *testing.T) {
	cfg := testAgingConfig(2)
	a, err := age(model.RegionSouthern, degradation.ProfileAccelerated, cfg)
	require.NoError(t, err)
	b, err := age(model.RegionSouthern, degradation.ProfileAccelerated, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAge_FailingReachesEOL(t *testing.T) {
	r, err := age(model.RegionNorthern, degradation.ProfileFailing, testAgingConfig(2))
	require.NoError(t, err)
	assert.Greater(t, r.EOLDay, 0.0)
	assert.Less(t, r.EOLDay, 365.0)
	assert.Equal(t, 0.0, r.Final.RULDays)
}

func TestCompareAndPrint(t *testing.T) {
	cfg := testAgingConfig(2)
	regions := []model.Region{model.RegionCentral, model.RegionEastern}
	results, err := compare(context.Background(), regions, cfg)
	require.NoError(t, err)
	require.Len(t, results, 6)
	assert.Equal(t, model.RegionCentral, results[0].Region)
	assert.Equal(t, degradation.ProfileHealthy, results[0].Profile)
	assert.Equal(t, model.RegionEastern, results[5].Region)
	assert.Equal(t, degradation.ProfileFailing, results[5].Profile)

	var buf bytes.Buffer
	printTable(&buf, results, cfg)
	out := buf.String()
	assert.Contains(t, out, "SOH y2")
	assert.Equal(t, 6, strings.Count(out, "°C │"))
}

func TestCompare_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := compare(ctx, []model.Region{model.RegionCentral}, testAgingConfig(1))
	assert.ErrorIs(t, err, context.Canceled)
}
