// Package twin is an online battery state estimator: a 2RC equivalent
// circuit model corrected by an extended Kalman filter on terminal voltage.
package twin

import (
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
)

var ErrInvalidCapacity = errors.New("nominal capacity must be positive")

// NominalR0 is the ohmic resistance of a new 12 V VRLA jar.
const NominalR0 = 0.0035

// Initial 2RC parameters for a 12 V VRLA jar.
const (
	initialR1 = 0.0015 // Ω, activation polarization
	initialC1 = 2000.0 // F
	initialR2 = 0.0010 // Ω, concentration polarization
	initialC2 = 5000.0 // F

	chargeEfficiency = 0.99

	// 2 %/year expressed per hour, as a fraction.
	calendarFadePerHour = 0.00000228
	thermalFadeCoeff    = 0.03

	divergeLowSOC  = -10.0
	divergeHighSOC = 110.0
)

// Config describes the monitored jar.
type Config struct {
	BatteryID         string
	NominalCapacityAh float64
	NominalVoltageV   float64
	InitialSOHPct     float64
	InitialSOCPct     float64
}

// DefaultConfig is an HX12-120 at full health and charge.
func DefaultConfig(id string) Config {
	return Config{
		BatteryID:         id,
		NominalCapacityAh: 120,
		NominalVoltageV:   12,
		InitialSOHPct:     100,
		InitialSOCPct:     100,
	}
}

// Tuning holds the filter covariances. State order is [SOC %, V1 V, V2 V].
type Tuning struct {
	P0 Mat3    // initial state covariance
	Q  Mat3    // process noise per step
	R  float64 // voltage measurement noise, V²
}

// DefaultTuning starts with SOC uncertain to ±10 % and trusts coulomb
// counting over a single noisy voltage sample.
func DefaultTuning() Tuning {
	return Tuning{
		P0: Diag3(100, 1e-3, 1e-3),
		Q:  Diag3(1e-3, 1e-6, 1e-6),
		R:  1e-2,
	}
}

// Snapshot is the twin state after one step.
type Snapshot struct {
	BatteryID         string  `json:"battery_id"`
	SOCPct            float64 `json:"soc"`
	SOHPct            float64 `json:"soh"`
	CapacityAh        float64 `json:"capacity_ah"`
	R0                float64 `json:"r0"`
	R1                float64 `json:"r1"`
	R2                float64 `json:"r2"`
	C1                float64 `json:"c1"`
	C2                float64 `json:"c2"`
	V1                float64 `json:"v1"`
	V2                float64 `json:"v2"`
	PredictedVoltageV float64 `json:"predicted_voltage"`
	VoltageErrorV     float64 `json:"voltage_error"`
	RULDays           float64 `json:"rul_days"`
	CycleCount        float64 `json:"cycle_count"`
	AhThroughput      float64 `json:"ah_throughput"`
	TemperatureC      float64 `json:"temperature_c"`
	Diverged          bool    `json:"diverged"`
}

// Twin tracks one battery. It is not safe for concurrent use; run one twin
// per battery stream.
type Twin struct {
	config Config
	tuning Tuning

	SOCPct     float64
	SOHPct     float64
	CapacityAh float64

	R0, R1, C1, R2, C2 float64
	V1, V2             float64

	TemperatureC float64
	CycleCount   float64
	AhThroughput float64

	P Mat3
}

// New creates a twin with DefaultTuning.
func New(cfg Config) (*Twin, error) {
	return NewWithTuning(cfg, DefaultTuning())
}

// NewWithTuning creates a twin with explicit filter covariances.
func NewWithTuning(cfg Config, tuning Tuning) (*Twin, error) {
	if cfg.NominalCapacityAh <= 0 {
		return nil, fmt.Errorf("twin %s: %w (got %v)", cfg.BatteryID, ErrInvalidCapacity, cfg.NominalCapacityAh)
	}
	if cfg.InitialSOHPct <= 0 || cfg.InitialSOHPct > 100 {
		cfg.InitialSOHPct = 100
	}
	cfg.InitialSOCPct = clamp(cfg.InitialSOCPct, 0, 100)

	t := &Twin{
		config:       cfg,
		tuning:       tuning,
		SOCPct:       cfg.InitialSOCPct,
		SOHPct:       cfg.InitialSOHPct,
		CapacityAh:   cfg.NominalCapacityAh * cfg.InitialSOHPct / 100,
		C1:           initialC1,
		C2:           initialC2,
		TemperatureC: degradation.ReferenceTempC,
		P:            tuning.P0,
	}
	t.scaleResistances()
	return t, nil
}

// Config returns the twin configuration.
func (t *Twin) Config() Config { return t.config }

// OpenCircuitVoltage returns OCV at socPct for the twin's SOH estimate.
func (t *Twin) OpenCircuitVoltage(socPct float64) float64 {
	return degradation.OpenCircuitVoltage(socPct, t.SOHPct)
}

// TerminalVoltage predicts the terminal voltage for a measured current,
// positive on charge, from the current state.
func (t *Twin) TerminalVoltage(currentA float64) float64 {
	discharge := -currentA
	return t.OpenCircuitVoltage(t.SOCPct) - discharge*t.effectiveR0() - t.V1 - t.V2
}

// Step ingests one measurement taken dt after the previous one and returns
// the updated state. currentA is positive on charge.
func (t *Twin) Step(measuredV, currentA, tempC float64, dt time.Duration, useEKF bool) Snapshot {
	t.TemperatureC = tempC
	seconds := math.Max(dt.Seconds(), 0)

	var diverged bool
	if useEKF {
		diverged = t.ekfUpdate(measuredV, currentA, seconds)
	} else {
		t.updateRC(currentA, seconds)
		t.coulombCount(currentA, seconds)
	}
	t.trackThroughput(currentA, seconds)
	t.UpdateSOH(seconds/3600, tempC)

	predicted := t.TerminalVoltage(currentA)
	snap := t.Snapshot()
	snap.PredictedVoltageV = predicted
	snap.VoltageErrorV = math.Abs(measuredV - predicted)
	snap.Diverged = diverged
	return snap
}

// predictState propagates [SOC, V1, V2] over seconds under a constant
// current and returns the state with the diagonal transition Jacobian.
func (t *Twin) predictState(currentA, seconds float64) (Vec3, Mat3) {
	discharge := -currentA
	a1 := math.Exp(-seconds / (t.R1 * t.C1))
	a2 := math.Exp(-seconds / (t.R2 * t.C2))

	soc := t.SOCPct
	if t.CapacityAh > 0 {
		soc += currentA * seconds / 3600 / t.CapacityAh * 100
	}
	x := Vec3{
		soc,
		t.V1*a1 + t.R1*discharge*(1-a1),
		t.V2*a2 + t.R2*discharge*(1-a2),
	}
	return x, Diag3(1, a1, a2)
}

// ekfUpdate runs one predict/correct cycle and reports filter divergence.
func (t *Twin) ekfUpdate(measuredV, currentA, seconds float64) bool {
	x, F := t.predictState(currentA, seconds)
	P := F.Mul(t.P).Mul(F.T()).Add(t.tuning.Q)

	discharge := -currentA
	predicted := t.OpenCircuitVoltage(x[0]) - discharge*t.effectiveR0() - x[1] - x[2]
	H := Vec3{degradation.OCVSlope(x[0], t.SOHPct), -1, -1}

	PHt := P.MulVec(H)
	S := H.Dot(PHt) + t.tuning.R
	if S <= 1e-12 || math.IsNaN(S) {
		log.WithField("battery_id", t.config.BatteryID).Warn("Singular innovation covariance, skipping correction")
		t.setState(x)
		t.P = P
		return true
	}

	K := PHt.Scale(1 / S)
	x = x.Add(K.Scale(measuredV - predicted))

	// Joseph form: (I−KH)P(I−KH)ᵀ + K·R·Kᵀ.
	IKH := Identity3().Sub(Outer(K, H))
	t.P = IKH.Mul(P).Mul(IKH.T()).Add(Outer(K, K).Scale(t.tuning.R)).Symmetric()

	diverged := x[0] < divergeLowSOC || x[0] > divergeHighSOC || math.IsNaN(x[0])
	if diverged {
		log.WithFields(log.Fields{
			"battery_id": t.config.BatteryID,
			"soc":        x[0],
		}).Warn("SOC estimate diverged, clamping")
		if math.IsNaN(x[0]) {
			x[0] = t.SOCPct
		}
	}
	t.setState(x)
	return diverged
}

func (t *Twin) setState(x Vec3) {
	t.SOCPct = clamp(x[0], 0, 100)
	t.V1 = x[1]
	t.V2 = x[2]
}

// updateRC relaxes the polarization voltages without a filter.
func (t *Twin) updateRC(currentA, seconds float64) {
	x, _ := t.predictState(currentA, seconds)
	t.V1, t.V2 = x[1], x[2]
}

// coulombCount integrates current into SOC with charge efficiency.
func (t *Twin) coulombCount(currentA, seconds float64) {
	if t.CapacityAh <= 0 {
		log.WithField("battery_id", t.config.BatteryID).Warn("Zero capacity, SOC forced to 0")
		t.SOCPct = 0
		return
	}
	ah := currentA * seconds / 3600
	if ah > 0 {
		ah *= chargeEfficiency
	}
	t.SOCPct = clamp(t.SOCPct+ah/t.CapacityAh*100, 0, 100)
}

func (t *Twin) trackThroughput(currentA, seconds float64) {
	ah := math.Abs(currentA) * seconds / 3600
	t.AhThroughput += ah
	t.CycleCount += ah / t.config.NominalCapacityAh
}

// UpdateSOH applies the slow calendar fade for elapsedHours at tempC and
// rescales capacity and resistances to match.
func (t *Twin) UpdateSOH(elapsedHours, tempC float64) {
	if elapsedHours > 0 {
		fade := calendarFadePerHour * elapsedHours * math.Exp(thermalFadeCoeff*(tempC-degradation.ReferenceTempC)) * 100
		t.SOHPct = math.Max(0, t.SOHPct-fade)
	}
	t.CapacityAh = t.config.NominalCapacityAh * t.SOHPct / 100
	t.scaleResistances()
}

// Resistances grow by half from new to end of life.
func (t *Twin) scaleResistances() {
	k := 1.5 - 0.5*t.SOHPct/100
	t.R0 = NominalR0 * k
	t.R1 = initialR1 * k
	t.R2 = initialR2 * k
}

func (t *Twin) effectiveR0() float64 {
	return t.R0 * degradation.ResistanceTempFactor(t.TemperatureC)
}

// PredictRUL returns the days until SOH reaches eolThreshold at the current
// temperature and cycling rate.
func (t *Twin) PredictRUL(eolThreshold float64) float64 {
	if t.SOHPct <= eolThreshold {
		return 0
	}
	rate := 2.0 / 365 * math.Exp(thermalFadeCoeff*(t.TemperatureC-degradation.ReferenceTempC))
	switch {
	case t.CycleCount > 500:
		rate *= 1.5
	case t.CycleCount > 200:
		rate *= 1.2
	}
	return math.Max(0, (t.SOHPct-eolThreshold)/rate)
}

// Snapshot returns the current state without predicted voltage fields.
func (t *Twin) Snapshot() Snapshot {
	return Snapshot{
		BatteryID:    t.config.BatteryID,
		SOCPct:       t.SOCPct,
		SOHPct:       t.SOHPct,
		CapacityAh:   t.CapacityAh,
		R0:           t.R0,
		R1:           t.R1,
		R2:           t.R2,
		C1:           t.C1,
		C2:           t.C2,
		V1:           t.V1,
		V2:           t.V2,
		RULDays:      t.PredictRUL(degradation.DefaultEOLThreshold),
		CycleCount:   t.CycleCount,
		AhThroughput: t.AhThroughput,
		TemperatureC: t.TemperatureC,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
