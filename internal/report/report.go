// Package report renders the end-of-run fleet state as an Excel workbook.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat"

	"fleet_simulator/internal/simulator"
)

// Sheet names of the fleet workbook.
const (
	SheetSummary   = "Summary"
	SheetBatteries = "Batteries"
	SheetOutages   = "Outages"
)

// Metadata describes the run a report was built from.
type Metadata struct {
	RunID       string
	GeneratedAt time.Time
	Start       time.Time
	End         time.Time
	Seed        uint64
}

var (
	summaryHeaders = []string{
		"Location", "Region", "Frames", "Batteries", "Failed", "Mean SOH (%)", "Min SOH (%)",
		"Outages", "Outage Hours", "Indoor Mean (°C)", "Indoor Max (°C)", "Outdoor Mean (°C)",
		"Outdoor Max (°C)", "Jar Max (°C)",
	}
	batteryHeaders = []string{
		"Battery ID", "Location", "Profile", "SOH (%)", "Capacity (Ah)", "Resistance (mΩ)",
		"Ah Throughput", "Cycles", "Age (days)", "RUL (days)", "Failed", "Failed At", "Failure Mode",
	}
	outageHeaders = []string{"Location", "Start", "End", "Duration (min)"}
)

// Build creates the workbook. Callers own the returned file and must close it.
func Build(meta Metadata, sites []simulator.SiteSummary) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetDocProps(&excelize.DocProperties{
		Category:    "Battery Fleet Simulation",
		Created:     meta.GeneratedAt.Format(time.RFC3339),
		Creator:     "fleet_simulator",
		Description: "End-of-run battery state and site conditions",
		Title:       "Fleet Summary " + meta.RunID,
	})

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	failedStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"F4CCCC"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	steps := []func() error{
		func() error { return writeSummary(f, headerStyle, meta, sites) },
		func() error { return writeBatteries(f, headerStyle, failedStyle, sites) },
		func() error { return writeOutages(f, headerStyle, sites) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// WriteFile builds the workbook and saves it to path.
func WriteFile(path string, meta Metadata, sites []simulator.SiteSummary) error {
	f, err := Build(meta, sites)
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeHeader(f *excelize.File, sheet string, row, style int, headers []string) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := writeRow(f, sheet, row, values); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(headers), row)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

func writeSummary(f *excelize.File, style int, meta Metadata, sites []simulator.SiteSummary) error {
	sheet := SheetSummary
	metaRows := [][]any{
		{"Run ID", meta.RunID},
		{"Generated At", meta.GeneratedAt.Format(time.RFC3339)},
		{"Horizon", meta.Start.Format(time.RFC3339) + " to " + meta.End.Format(time.RFC3339)},
		{"Seed", meta.Seed},
	}
	for i, r := range metaRows {
		if err := writeRow(f, sheet, i+1, r); err != nil {
			return err
		}
	}

	headerRow := len(metaRows) + 2
	if err := writeHeader(f, sheet, headerRow, style, summaryHeaders); err != nil {
		return err
	}
	for i, s := range sites {
		soh := make([]float64, len(s.Batteries))
		failed := 0
		for k, b := range s.Batteries {
			soh[k] = b.SOHPct
			if b.Failed {
				failed++
			}
		}
		var meanSOH, minSOH float64
		if len(soh) > 0 {
			meanSOH = stat.Mean(soh, nil)
			minSOH = soh[0]
			for _, v := range soh {
				minSOH = min(minSOH, v)
			}
		}
		var outageHours float64
		for _, o := range s.Outages {
			outageHours += o.Duration().Hours()
		}
		row := []any{
			s.Location.Code, string(s.Location.Region), s.Frames, len(s.Batteries), failed,
			round2(meanSOH), round2(minSOH), len(s.Outages), round2(outageHours),
			round2(s.Indoor.Mean), round2(s.Indoor.Max), round2(s.Outdoor.Mean), round2(s.Outdoor.Max),
			round2(s.JarMax),
		}
		if err := writeRow(f, sheet, headerRow+1+i, row); err != nil {
			return err
		}
	}
	return nil
}

func writeBatteries(f *excelize.File, style, failedStyle int, sites []simulator.SiteSummary) error {
	sheet := SheetBatteries
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, 1, style, batteryHeaders); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	row := 2
	for _, s := range sites {
		for _, b := range s.Batteries {
			failedAt := ""
			if b.Failed {
				failedAt = b.FailedAt.Format(time.RFC3339)
			}
			values := []any{
				b.ID, s.Location.Code, string(b.Profile), round2(b.SOHPct), round2(b.CapacityAh),
				round2(b.ResistanceMOhm), round2(b.AhThroughput), round2(b.Cycles),
				round2(b.CalendarAgeDays), round2(b.RULDays), b.Failed, failedAt, string(b.FailureMode),
			}
			if err := writeRow(f, sheet, row, values); err != nil {
				return err
			}
			if b.Failed {
				first, _ := excelize.CoordinatesToCellName(1, row)
				last, _ := excelize.CoordinatesToCellName(len(batteryHeaders), row)
				if err := f.SetCellStyle(sheet, first, last, failedStyle); err != nil {
					return err
				}
			}
			row++
		}
	}
	return nil
}

func writeOutages(f *excelize.File, style int, sites []simulator.SiteSummary) error {
	sheet := SheetOutages
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := writeHeader(f, sheet, 1, style, outageHeaders); err != nil {
		return err
	}
	row := 2
	for _, s := range sites {
		for _, o := range s.Outages {
			values := []any{
				s.Location.Code, o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339),
				round2(o.Duration().Minutes()),
			}
			if err := writeRow(f, sheet, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
