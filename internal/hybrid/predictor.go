package hybrid

import (
	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/twin"
)

// Oracle is an external RUL model.
type Oracle interface {
	PredictRUL(f model.RULFeatures) (days, confidence float64, err error)
}

// DefaultTwinConfidence is the twin's confidence in a non-diverged step.
const DefaultTwinConfidence = 0.8

// Predictor pairs a twin with an optional oracle.
type Predictor struct {
	twin   *twin.Twin
	oracle Oracle

	EOLThreshold   float64
	TwinConfidence float64
}

// NewPredictor creates a predictor. oracle may be nil.
func NewPredictor(tw *twin.Twin, oracle Oracle) *Predictor {
	return &Predictor{
		twin:           tw,
		oracle:         oracle,
		EOLThreshold:   degradation.DefaultEOLThreshold,
		TwinConfidence: DefaultTwinConfidence,
	}
}

// Twin returns the wrapped twin.
func (p *Predictor) Twin() *twin.Twin { return p.twin }

// Features derives oracle inputs from a twin snapshot.
func (p *Predictor) Features(snap twin.Snapshot, ageDays float64) model.RULFeatures {
	return model.RULFeatures{
		SOHPct:          snap.SOHPct,
		ResistanceRatio: snap.R0 / twin.NominalR0,
		TemperatureC:    snap.TemperatureC,
		CycleCount:      snap.CycleCount,
		AgeDays:         ageDays,
	}
}

// Inputs gathers the twin and oracle estimates for the latest step. A
// diverged step halves the twin's confidence. Oracle errors fall back to the
// twin alone.
func (p *Predictor) Inputs(snap twin.Snapshot, ageDays float64) Inputs {
	conf := p.TwinConfidence
	if snap.Diverged {
		conf /= 2
	}
	in := Inputs{
		Twin:          Estimate{RULDays: p.twin.PredictRUL(p.EOLThreshold), Confidence: conf},
		VoltageErrorV: snap.VoltageErrorV,
	}
	if p.oracle == nil {
		return in
	}
	days, c, err := p.oracle.PredictRUL(p.Features(snap, ageDays))
	if err != nil {
		log.WithField("battery_id", snap.BatteryID).WithError(err).Warn("RUL oracle failed, using twin only")
		return in
	}
	in.ML = &Estimate{RULDays: days, Confidence: c}
	return in
}

// Predict fuses the twin and oracle with policy.
func (p *Predictor) Predict(policy Policy, snap twin.Snapshot, ageDays float64) Result {
	return policy.Fuse(p.Inputs(snap, ageDays))
}
