// Package sink writes generated telemetry to files, databases and brokers.
package sink

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/telemetry"
)

// Column headers of the generated CSV files.
var (
	BatteryHeader = []string{
		"timestamp", "battery_id", "voltage_v", "temperature_c", "resistance_mohm",
		"conductance_s", "soc_pct", "soh_pct",
	}
	StringHeader = []string{
		"timestamp", "string_id", "voltage_v", "current_a", "mode", "ripple_voltage_rms_v",
		"ripple_current_rms_a", "equalize_flag", "generator_test_flag", "transfer_event_flag",
	}
	EnvironmentHeader = []string{
		"timestamp", "location_code", "outdoor_temp_c", "indoor_temp_c", "humidity_pct",
		"hvac_status", "grid_available",
	}
	OutageHeader       = []string{"start", "end", "duration_min"}
	BatteryStateHeader = []string{
		"battery_id", "profile", "capacity_ah", "resistance_mohm", "soh_pct", "ah_throughput",
		"cycles", "calendar_age_days", "failed", "failed_at", "failure_mode", "rul_days",
	}
)

// File name suffixes, prefixed by the location code.
const (
	BatteryFileSuffix      = "_battery.csv.gz"
	StringFileSuffix       = "_string.csv.gz"
	EnvironmentFileSuffix  = "_environment.csv.gz"
	OutageFileSuffix       = "_outages.csv"
	BatteryStateFileSuffix = "_battery_state.csv"
)

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func ts(t time.Time) string { return t.Format(time.RFC3339) }

// BatteryRow formats a jar row in BatteryHeader order.
func BatteryRow(r model.BatteryReading) []string {
	return []string{
		ts(r.Timestamp), r.BatteryID, ff(r.VoltageV), ff(r.TemperatureC), ff(r.ResistanceMOhm),
		ff(r.ConductanceS), ff(r.SOCPct), ff(r.SOHPct),
	}
}

// StringRow formats a string row in StringHeader order.
func StringRow(r model.StringReading) []string {
	return []string{
		ts(r.Timestamp), r.StringID, ff(r.VoltageV), ff(r.CurrentA), string(r.Mode),
		ff(r.RippleVoltageRMSV), ff(r.RippleCurrentRMSA), strconv.FormatBool(r.EqualizeFlag),
		strconv.FormatBool(r.GeneratorTestFlag), strconv.FormatBool(r.TransferEventFlag),
	}
}

// EnvironmentRow formats a location row in EnvironmentHeader order.
func EnvironmentRow(r model.EnvironmentReading) []string {
	return []string{
		ts(r.Timestamp), r.LocationCode, ff(r.OutdoorTempC), ff(r.IndoorTempC), ff(r.HumidityPct),
		string(r.HVACStatus), strconv.FormatBool(r.GridAvailable),
	}
}

// gzipCSV is one gzip-compressed CSV file.
type gzipCSV struct {
	f  *os.File
	gz *gzip.Writer
	w  *csv.Writer
}

func createGzipCSV(path string, header []string) (*gzipCSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &gzipCSV{f: f, gz: gz, w: w}, nil
}

func (g *gzipCSV) close() error {
	g.w.Flush()
	if err := g.w.Error(); err != nil {
		_ = g.f.Close()
		return err
	}
	if err := g.gz.Close(); err != nil {
		_ = g.f.Close()
		return err
	}
	return g.f.Close()
}

type locationFiles struct {
	mu          sync.Mutex
	battery     *gzipCSV
	str         *gzipCSV
	environment *gzipCSV
}

// CSVSink writes per-location gzip CSV files into a directory.
type CSVSink struct {
	dir   string
	mu    sync.Mutex
	files map[string]*locationFiles
}

// NewCSVSink creates dir if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &CSVSink{dir: dir, files: make(map[string]*locationFiles)}, nil
}

func (s *CSVSink) filesFor(code string) (*locationFiles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lf, ok := s.files[code]; ok {
		return lf, nil
	}

	lf := &locationFiles{}
	var err error
	if lf.battery, err = createGzipCSV(filepath.Join(s.dir, code+BatteryFileSuffix), BatteryHeader); err != nil {
		return nil, err
	}
	if lf.str, err = createGzipCSV(filepath.Join(s.dir, code+StringFileSuffix), StringHeader); err != nil {
		_ = lf.battery.close()
		return nil, err
	}
	if lf.environment, err = createGzipCSV(filepath.Join(s.dir, code+EnvironmentFileSuffix), EnvironmentHeader); err != nil {
		_ = lf.battery.close()
		_ = lf.str.close()
		return nil, err
	}
	s.files[code] = lf
	return lf, nil
}

func (s *CSVSink) WriteFrame(loc model.Location, f telemetry.Frame) error {
	lf, err := s.filesFor(loc.Code)
	if err != nil {
		return err
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if err := lf.environment.w.Write(EnvironmentRow(f.Environment)); err != nil {
		return err
	}
	for _, r := range f.Strings {
		if err := lf.str.w.Write(StringRow(r)); err != nil {
			return err
		}
	}
	for _, r := range f.Batteries {
		if err := lf.battery.w.Write(BatteryRow(r)); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary writes the outage list and final battery states as plain CSV.
func (s *CSVSink) WriteSummary(sum simulator.SiteSummary) error {
	code := sum.Location.Code
	outages := make([][]string, 0, len(sum.Outages))
	for _, o := range sum.Outages {
		outages = append(outages, []string{ts(o.Start), ts(o.End), ff(o.Duration().Minutes())})
	}
	if err := writeCSV(filepath.Join(s.dir, code+OutageFileSuffix), OutageHeader, outages); err != nil {
		return err
	}

	states := make([][]string, 0, len(sum.Batteries))
	for _, st := range sum.Batteries {
		failedAt := ""
		if !st.FailedAt.IsZero() {
			failedAt = ts(st.FailedAt)
		}
		states = append(states, []string{
			st.ID, string(st.Profile), ff(st.CapacityAh), ff(st.ResistanceMOhm), ff(st.SOHPct),
			ff(st.AhThroughput), ff(st.Cycles), ff(st.CalendarAgeDays), strconv.FormatBool(st.Failed),
			failedAt, string(st.FailureMode), ff(st.RULDays),
		})
	}
	return writeCSV(filepath.Join(s.dir, code+BatteryStateFileSuffix), BatteryStateHeader, states)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close flushes and closes every open file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for code, lf := range s.files {
		lf.mu.Lock()
		for _, g := range []*gzipCSV{lf.battery, lf.str, lf.environment} {
			if err := g.close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing %s files: %w", code, err)
			}
		}
		lf.mu.Unlock()
	}
	s.files = make(map[string]*locationFiles)
	return firstErr
}
