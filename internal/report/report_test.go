package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testSites() []simulator.SiteSummary {
	return []simulator.SiteSummary{
		{
			Location: model.Location{Code: "DC-BKK-01", Region: model.RegionCentral},
			Frames:   288,
			Outages: []model.Outage{
				{Start: t0.Add(3 * time.Hour), End: t0.Add(4*time.Hour + 30*time.Minute)},
			},
			Batteries: []degradation.State{
				{ID: "DC-BKK-01-REC-01-S1-J01", Profile: degradation.ProfileHealthy, SOHPct: 99.5, RULDays: 3500},
				{ID: "DC-BKK-01-REC-01-S1-J02", Profile: degradation.ProfileFailing, SOHPct: 0, Failed: true,
					FailedAt: t0.Add(time.Hour), FailureMode: degradation.FailureSulfation},
			},
			Indoor:  simulator.TempStats{Mean: 24.123, Max: 27.456},
			Outdoor: simulator.TempStats{Mean: 31, Max: 36.5},
			JarMax:  29.987,
		},
		{
			Location: model.Location{Code: "DC-CNX-01", Region: model.RegionNorthern},
			Frames:   288,
			Batteries: []degradation.State{
				{ID: "DC-CNX-01-REC-01-S1-J01", Profile: degradation.ProfileAccelerated, SOHPct: 97.25},
			},
		},
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.xlsx")
	meta := Metadata{RunID: "run-1", GeneratedAt: t0, Start: t0, End: t0.Add(24 * time.Hour), Seed: 42}
	require.NoError(t, WriteFile(path, meta, testSites()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetBatteries, SheetOutages}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Run ID", "run-1"}, summary[0])
	assert.Equal(t, []string{"Seed", "42"}, summary[3])
	assert.Equal(t, summaryHeaders, summary[5])
	bkk := summary[6]
	assert.Equal(t, "DC-BKK-01", bkk[0])
	assert.Equal(t, "central", bkk[1])
	assert.Equal(t, "2", bkk[3], "batteries")
	assert.Equal(t, "1", bkk[4], "failed")
	assert.Equal(t, "49.75", bkk[5], "mean SOH")
	assert.Equal(t, "0", bkk[6], "min SOH")
	assert.Equal(t, "1.5", bkk[8], "outage hours")
	assert.Equal(t, "24.12", bkk[9])
	assert.Equal(t, "29.99", bkk[13])
	assert.Equal(t, "DC-CNX-01", summary[7][0])

	batteries, err := f.GetRows(SheetBatteries)
	require.NoError(t, err)
	require.Len(t, batteries, 4)
	assert.Equal(t, batteryHeaders, batteries[0])
	assert.Equal(t, "DC-BKK-01-REC-01-S1-J02", batteries[2][0])
	assert.Equal(t, "failing", batteries[2][2])
	assert.Equal(t, "2024-03-01T01:00:00Z", batteries[2][11])
	assert.Equal(t, "sulfation", batteries[2][12])
	assert.Equal(t, "97.25", batteries[3][3])

	outages, err := f.GetRows(SheetOutages)
	require.NoError(t, err)
	require.Len(t, outages, 2)
	assert.Equal(t, []string{"DC-BKK-01", "2024-03-01T03:00:00Z", "2024-03-01T04:30:00Z", "90"}, outages[1])
}

func TestBuild_Empty(t *testing.T) {
	f, err := Build(Metadata{RunID: "empty"}, nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetBatteries)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteFile_BadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "fleet.xlsx"), Metadata{}, testSites())
	assert.ErrorContains(t, err, "saving report")
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, round2(1.235000001))
	assert.Equal(t, -2.5, round2(-2.499))
	assert.Equal(t, 0.0, round2(0))
}
