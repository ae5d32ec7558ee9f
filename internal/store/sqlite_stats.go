package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LocationSpan is the environment coverage of one location.
type LocationSpan struct {
	LocationCode string
	First        time.Time
	Last         time.Time
	Rows         int
	GridDownRows int
	OutageCount  int
	OutageHours  float64
}

// ProfileStats aggregates the battery_state table per degradation profile.
type ProfileStats struct {
	Profile    string
	Batteries  int
	Failed     int
	AvgSOHPct  float64
	MinSOHPct  float64
	AvgRULDays float64
}

const locationSpansQuery = `
SELECT e.location_code, MIN(e.ts), MAX(e.ts), COUNT(*),
       SUM(CASE WHEN e.grid_available = 0 THEN 1 ELSE 0 END),
       COALESCE(o.n, 0), COALESCE(o.ms, 0)
FROM environment_telemetry e
LEFT JOIN (
  SELECT location_code, COUNT(*) AS n, SUM(end_ts - start_ts) AS ms
  FROM outages GROUP BY location_code
) o ON o.location_code = e.location_code
GROUP BY e.location_code
ORDER BY e.location_code`

// LocationSpans returns the covered time span of every location with
// environment rows, sorted by code.
func (s *SQLiteStore) LocationSpans(ctx context.Context) ([]LocationSpan, error) {
	rows, err := s.db.QueryContext(ctx, locationSpansQuery)
	if err != nil {
		return nil, fmt.Errorf("location spans: %w", err)
	}
	defer rows.Close()

	var out []LocationSpan
	for rows.Next() {
		var span LocationSpan
		var first, last, outageMS int64
		if err := rows.Scan(&span.LocationCode, &first, &last, &span.Rows, &span.GridDownRows, &span.OutageCount, &outageMS); err != nil {
			return nil, err
		}
		span.First, span.Last = fromMillis(first), fromMillis(last)
		span.OutageHours = time.Duration(outageMS * int64(time.Millisecond)).Hours()
		out = append(out, span)
	}
	return out, rows.Err()
}

const profileStatsQuery = `
SELECT profile, COUNT(*), SUM(failed), AVG(soh_pct), MIN(soh_pct), AVG(rul_days)
FROM battery_state
GROUP BY profile
ORDER BY profile`

// ProfileStats summarizes the latest battery states per profile.
func (s *SQLiteStore) ProfileStats(ctx context.Context) ([]ProfileStats, error) {
	rows, err := s.db.QueryContext(ctx, profileStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}
	defer rows.Close()

	var out []ProfileStats
	for rows.Next() {
		var p ProfileStats
		if err := rows.Scan(&p.Profile, &p.Batteries, &p.Failed, &p.AvgSOHPct, &p.MinSOHPct, &p.AvgRULDays); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FailureModes counts failed batteries per failure mode.
func (s *SQLiteStore) FailureModes(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT failure_mode, COUNT(*) FROM battery_state WHERE failed = 1 GROUP BY failure_mode`)
	if err != nil {
		return nil, fmt.Errorf("failure modes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var mode sql.NullString
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		out[mode.String] = n
	}
	return out, rows.Err()
}
