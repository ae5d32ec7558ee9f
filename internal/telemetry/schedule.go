package telemetry

import (
	"time"

	"fleet_simulator/internal/environment"
)

// EqualizationSchedule is a recurring maintenance overcharge window.
type EqualizationSchedule struct {
	First    time.Time
	Every    time.Duration
	Duration time.Duration
}

// NewEqualizationSchedule starts at 02:00 local on the start date and repeats
// every 90 days for 8 hours.
func NewEqualizationSchedule(start time.Time) EqualizationSchedule {
	local := start.In(environment.Bangkok)
	return EqualizationSchedule{
		First:    time.Date(local.Year(), local.Month(), local.Day(), 2, 0, 0, 0, environment.Bangkok),
		Every:    90 * 24 * time.Hour,
		Duration: 8 * time.Hour,
	}
}

// Active reports whether ts falls inside an equalization window.
func (e EqualizationSchedule) Active(ts time.Time) bool {
	if e.Every <= 0 || ts.Before(e.First) {
		return false
	}
	k := ts.Sub(e.First) / e.Every
	return ts.Sub(e.First.Add(k*e.Every)) < e.Duration
}

// Windows lists the equalization windows starting before end.
func (e EqualizationSchedule) Windows(end time.Time) []time.Time {
	if e.Every <= 0 {
		return nil
	}
	var out []time.Time
	for t := e.First; t.Before(end); t = t.Add(e.Every) {
		out = append(out, t)
	}
	return out
}
