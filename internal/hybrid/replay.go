package hybrid

import (
	"time"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/twin"
)

// ReplayRow is the twin state and fused RUL after one input sample.
type ReplayRow struct {
	Timestamp time.Time
	Snapshot  twin.Snapshot
	Fused     Result
}

// Replay feeds samples through the predictor's twin in order and fuses the
// RUL after each one with policy. The first sample is taken as the starting
// point and advances no time. startAgeDays is the jar's age at the first
// sample, used for oracle features.
func (p *Predictor) Replay(samples []model.TwinSample, policy Policy, useEKF bool, startAgeDays float64) []ReplayRow {
	rows := make([]ReplayRow, 0, len(samples))
	for i, s := range samples {
		var dt time.Duration
		if i > 0 {
			dt = s.Timestamp.Sub(samples[i-1].Timestamp)
		}
		snap := p.twin.Step(s.VoltageV, s.CurrentA, s.TemperatureC, dt, useEKF)
		age := startAgeDays + s.Timestamp.Sub(samples[0].Timestamp).Hours()/24
		rows = append(rows, ReplayRow{
			Timestamp: s.Timestamp,
			Snapshot:  snap,
			Fused:     p.Predict(policy, snap, age),
		})
	}
	return rows
}
