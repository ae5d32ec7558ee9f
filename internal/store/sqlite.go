package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
)

// SQLiteStore persists telemetry rows. Timestamps are stored as Unix
// milliseconds so range queries use the index.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers from concurrent sites.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS battery_telemetry (
			ts INTEGER NOT NULL,
			battery_id TEXT NOT NULL,
			voltage_v REAL NOT NULL,
			temperature_c REAL NOT NULL,
			resistance_mohm REAL NOT NULL,
			conductance_s REAL NOT NULL,
			soc_pct REAL NOT NULL,
			soh_pct REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_battery_telemetry ON battery_telemetry (battery_id, ts);
		CREATE TABLE IF NOT EXISTS string_telemetry (
			ts INTEGER NOT NULL,
			string_id TEXT NOT NULL,
			voltage_v REAL NOT NULL,
			current_a REAL NOT NULL,
			mode TEXT NOT NULL,
			ripple_voltage_rms_v REAL NOT NULL,
			ripple_current_rms_a REAL NOT NULL,
			equalize_flag INTEGER NOT NULL,
			generator_test_flag INTEGER NOT NULL,
			transfer_event_flag INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_string_telemetry ON string_telemetry (string_id, ts);
		CREATE TABLE IF NOT EXISTS environment_telemetry (
			ts INTEGER NOT NULL,
			location_code TEXT NOT NULL,
			outdoor_temp_c REAL NOT NULL,
			indoor_temp_c REAL NOT NULL,
			humidity_pct REAL NOT NULL,
			hvac_status TEXT NOT NULL,
			grid_available INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_environment_telemetry ON environment_telemetry (location_code, ts);
		CREATE TABLE IF NOT EXISTS outages (
			location_code TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS battery_state (
			battery_id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			capacity_ah REAL NOT NULL,
			resistance_mohm REAL NOT NULL,
			soh_pct REAL NOT NULL,
			ah_throughput REAL NOT NULL,
			cycles REAL NOT NULL,
			calendar_age_days REAL NOT NULL,
			failed INTEGER NOT NULL,
			failed_at INTEGER,
			failure_mode TEXT NOT NULL,
			rul_days REAL NOT NULL
		);
	`)
	return err
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// InsertFrame writes every row of a frame in one transaction.
func (s *SQLiteStore) InsertFrame(ctx context.Context, f telemetry.Frame) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	env := f.Environment
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO environment_telemetry (ts, location_code, outdoor_temp_c, indoor_temp_c, humidity_pct, hvac_status, grid_available)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, millis(env.Timestamp), env.LocationCode, env.OutdoorTempC, env.IndoorTempC, env.HumidityPct, string(env.HVACStatus), env.GridAvailable); err != nil {
		return fmt.Errorf("insert environment: %w", err)
	}

	for _, r := range f.Strings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO string_telemetry (ts, string_id, voltage_v, current_a, mode, ripple_voltage_rms_v, ripple_current_rms_a, equalize_flag, generator_test_flag, transfer_event_flag)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, millis(r.Timestamp), r.StringID, r.VoltageV, r.CurrentA, string(r.Mode), r.RippleVoltageRMSV, r.RippleCurrentRMSA,
			r.EqualizeFlag, r.GeneratorTestFlag, r.TransferEventFlag); err != nil {
			return fmt.Errorf("insert string %s: %w", r.StringID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO battery_telemetry (ts, battery_id, voltage_v, temperature_c, resistance_mohm, conductance_s, soc_pct, soh_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range f.Batteries {
		if _, err := stmt.ExecContext(ctx, millis(r.Timestamp), r.BatteryID, r.VoltageV, r.TemperatureC,
			r.ResistanceMOhm, r.ConductanceS, r.SOCPct, r.SOHPct); err != nil {
			return fmt.Errorf("insert battery %s: %w", r.BatteryID, err)
		}
	}
	return tx.Commit()
}

// InsertOutages records the outage schedule of a location.
func (s *SQLiteStore) InsertOutages(ctx context.Context, locationCode string, outages []model.Outage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, o := range outages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO outages (location_code, start_ts, end_ts) VALUES (?, ?, ?)`,
			locationCode, millis(o.Start), millis(o.End)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertBatteryStates stores the latest aging snapshot per jar.
func (s *SQLiteStore) UpsertBatteryStates(ctx context.Context, states []degradation.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, st := range states {
		var failedAt sql.NullInt64
		if !st.FailedAt.IsZero() {
			failedAt = sql.NullInt64{Int64: millis(st.FailedAt), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO battery_state (battery_id, profile, capacity_ah, resistance_mohm, soh_pct, ah_throughput, cycles, calendar_age_days, failed, failed_at, failure_mode, rul_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(battery_id) DO UPDATE SET
				profile = excluded.profile,
				capacity_ah = excluded.capacity_ah,
				resistance_mohm = excluded.resistance_mohm,
				soh_pct = excluded.soh_pct,
				ah_throughput = excluded.ah_throughput,
				cycles = excluded.cycles,
				calendar_age_days = excluded.calendar_age_days,
				failed = excluded.failed,
				failed_at = excluded.failed_at,
				failure_mode = excluded.failure_mode,
				rul_days = excluded.rul_days
		`, st.ID, string(st.Profile), st.CapacityAh, st.ResistanceMOhm, st.SOHPct, st.AhThroughput, st.Cycles,
			st.CalendarAgeDays, st.Failed, failedAt, string(st.FailureMode), st.RULDays); err != nil {
			return fmt.Errorf("upsert state %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// BatteryReadingsInRange returns jar rows between start (inclusive) and end (exclusive).
func (s *SQLiteStore) BatteryReadingsInRange(ctx context.Context, id string, start, end time.Time) ([]model.BatteryReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, battery_id, voltage_v, temperature_c, resistance_mohm, conductance_s, soc_pct, soh_pct
		FROM battery_telemetry
		WHERE battery_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts
	`, id, millis(start), millis(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BatteryReading
	for rows.Next() {
		var r model.BatteryReading
		var ts int64
		if err := rows.Scan(&ts, &r.BatteryID, &r.VoltageV, &r.TemperatureC, &r.ResistanceMOhm,
			&r.ConductanceS, &r.SOCPct, &r.SOHPct); err != nil {
			return nil, err
		}
		r.Timestamp = fromMillis(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outages returns the stored outages of a location in start order.
func (s *SQLiteStore) Outages(ctx context.Context, locationCode string) ([]model.Outage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_ts, end_ts FROM outages WHERE location_code = ? ORDER BY start_ts
	`, locationCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Outage
	for rows.Next() {
		var start, end int64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		out = append(out, model.Outage{Start: fromMillis(start), End: fromMillis(end)})
	}
	return out, rows.Err()
}

// BatteryState returns the stored aging snapshot of a jar.
func (s *SQLiteStore) BatteryState(ctx context.Context, id string) (degradation.State, bool, error) {
	var st degradation.State
	var profile, mode string
	var failedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT battery_id, profile, capacity_ah, resistance_mohm, soh_pct, ah_throughput, cycles, calendar_age_days, failed, failed_at, failure_mode, rul_days
		FROM battery_state WHERE battery_id = ?
	`, id).Scan(&st.ID, &profile, &st.CapacityAh, &st.ResistanceMOhm, &st.SOHPct, &st.AhThroughput, &st.Cycles,
		&st.CalendarAgeDays, &st.Failed, &failedAt, &mode, &st.RULDays)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return degradation.State{}, false, nil
		}
		return degradation.State{}, false, err
	}
	st.Profile = degradation.ProfileName(profile)
	st.FailureMode = degradation.FailureMode(mode)
	if failedAt.Valid {
		st.FailedAt = fromMillis(failedAt.Int64)
	}
	return st, true, nil
}

// TableCounts returns the row count of every telemetry table.
func (s *SQLiteStore) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"battery_telemetry", "string_telemetry", "environment_telemetry", "outages", "battery_state"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// DB exposes the underlying handle for ad hoc queries.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
