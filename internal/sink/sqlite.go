package sink

import (
	"context"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/store"
	"fleet_simulator/internal/telemetry"
)

// SQLiteSink writes frames and summaries into a SQLite store.
type SQLiteSink struct {
	ctx context.Context
	db  *store.SQLiteStore
}

// NewSQLiteSink opens the database at path. ctx bounds every write.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := store.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{ctx: ctx, db: db}, nil
}

func (s *SQLiteSink) WriteFrame(_ model.Location, f telemetry.Frame) error {
	return s.db.InsertFrame(s.ctx, f)
}

func (s *SQLiteSink) WriteSummary(sum simulator.SiteSummary) error {
	if err := s.db.InsertOutages(s.ctx, sum.Location.Code, sum.Outages); err != nil {
		return err
	}
	return s.db.UpsertBatteryStates(s.ctx, sum.Batteries)
}

// Store returns the underlying database.
func (s *SQLiteSink) Store() *store.SQLiteStore { return s.db }

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
