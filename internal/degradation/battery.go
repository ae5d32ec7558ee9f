package degradation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidCapacity   = errors.New("initial capacity must be positive")
	ErrInvalidResistance = errors.New("initial resistance must be positive")
	ErrUnknownProfile    = errors.New("unknown degradation profile")
)

const (
	// DefaultEOLThreshold is the SOH at which a jar is considered worn out.
	DefaultEOLThreshold = 80.0
	// NotDegradingRULDays is returned when no degradation is observed.
	NotDegradingRULDays = 9999.0

	dodStressExponent        = 2.0
	cycleBaseCapacityLossPct = 0.001
	voltageNoiseStd          = 0.01
)

// Config holds the construction parameters of one jar.
type Config struct {
	ID                    string      `json:"id"`
	InitialCapacityAh     float64     `json:"initial_capacity_ah"`
	InitialResistanceMOhm float64     `json:"initial_resistance_mohm"`
	Installed             time.Time   `json:"installed"`
	Profile               ProfileName `json:"profile"` // empty = draw from the fleet share
}

// State is a snapshot of a battery's aging state.
type State struct {
	ID              string      `json:"id"`
	Profile         ProfileName `json:"profile"`
	CapacityAh      float64     `json:"capacity_ah"`
	ResistanceMOhm  float64     `json:"resistance_mohm"`
	SOHPct          float64     `json:"soh_pct"`
	AhThroughput    float64     `json:"ah_throughput"`
	Cycles          float64     `json:"cycles"`
	CalendarAgeDays float64     `json:"calendar_age_days"`
	Failed          bool        `json:"failed"`
	FailedAt        time.Time   `json:"failed_at"`
	FailureMode     FailureMode `json:"failure_mode,omitempty"`
	RULDays         float64     `json:"rul_days"`
}

// Battery owns the aging state of one VRLA jar.
type Battery struct {
	config  Config
	profile Profile
	rng     *rand.Rand

	// State
	CapacityAh      float64
	ResistanceMOhm  float64
	SOHPct          float64
	AhThroughput    float64
	Cycles          float64
	CalendarAgeDays float64
	Failed          bool
	FailedAt        time.Time
	FailureMode     FailureMode

	// Accumulated stress, for reporting
	TemperatureStress float64 // degree-days above reference
	CycleStress       float64 // DoD-weighted cycles

	lastFailureCheck time.Time
}

// NewBattery validates cfg and creates a fresh jar at 100% SOH.
// rng is owned by the battery from here on.
func NewBattery(cfg Config, rng *rand.Rand) (*Battery, error) {
	if cfg.InitialCapacityAh <= 0 {
		return nil, fmt.Errorf("battery %s: %w (got %v)", cfg.ID, ErrInvalidCapacity, cfg.InitialCapacityAh)
	}
	if cfg.InitialResistanceMOhm <= 0 {
		return nil, fmt.Errorf("battery %s: %w (got %v)", cfg.ID, ErrInvalidResistance, cfg.InitialResistanceMOhm)
	}
	if cfg.Profile == "" {
		cfg.Profile = DrawProfile(rng)
	}
	p, err := LookupProfile(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("battery %s: %w", cfg.ID, err)
	}

	return &Battery{
		config:         cfg,
		profile:        p,
		rng:            rng,
		CapacityAh:     cfg.InitialCapacityAh,
		ResistanceMOhm: cfg.InitialResistanceMOhm,
		SOHPct:         100,
	}, nil
}

// ID returns the battery identifier.
func (b *Battery) ID() string { return b.config.ID }

// Config returns the construction parameters.
func (b *Battery) Config() Config { return b.config }

// Profile returns the assigned degradation profile.
func (b *Battery) Profile() Profile { return b.profile }

// SetProfile reassigns the degradation profile from now on.
func (b *Battery) SetProfile(name ProfileName) error {
	p, err := LookupProfile(name)
	if err != nil {
		return err
	}
	b.profile = p
	b.config.Profile = name
	return nil
}

// UpdateCalendarAging applies time-driven aging over elapsedHours.
func (b *Battery) UpdateCalendarAging(elapsedHours, avgTempC, avgFloatV float64) {
	if elapsedHours <= 0 {
		return
	}
	days := elapsedHours / 24
	b.CalendarAgeDays += days
	b.TemperatureStress += (avgTempC - ReferenceTempC) * days
	if b.Failed {
		return
	}

	accel := TemperatureAcceleration(avgTempC) * b.profile.TempAccelerationFactor
	stress := VoltageStress(avgFloatV)

	sohRate := b.profile.SOHDeclinePctPerYear / 365 * accel * stress
	b.setSOH(b.SOHPct - sohRate*days)

	resRate := b.profile.ResistanceIncreasePctPerYear / 365 * accel * stress
	b.ResistanceMOhm *= 1 + resRate*days/100
}

// UpdateCycleAging applies throughput-driven aging. It only depends on the
// charge moved, never on elapsed time, so it adds to calendar aging without
// overlap.
func (b *Battery) UpdateCycleAging(ahThroughput, dodPct, tempC float64) {
	if ahThroughput <= 0 {
		return
	}
	cycles := ahThroughput / b.config.InitialCapacityAh
	b.Cycles += cycles
	b.AhThroughput += ahThroughput
	if b.Failed {
		return
	}

	dodStress := math.Pow(clamp(dodPct, 0, 100)/100, dodStressExponent)
	b.CycleStress += cycles * dodStress

	lossPct := cycleBaseCapacityLossPct * cycles * dodStress *
		TemperatureAcceleration(tempC) * b.profile.CycleStressFactor
	b.setSOH(b.SOHPct - lossPct)

	// Resistance rises twice as fast as capacity falls under cycling.
	b.ResistanceMOhm *= 1 + 2*lossPct/100
}

// FailureProbability returns the current per-day sudden failure probability.
func (b *Battery) FailureProbability() float64 {
	p := b.profile.SuddenFailureProbability
	if b.SOHPct < 80 {
		p *= 2
	}
	if b.SOHPct < 60 {
		p *= 3
	}
	if b.SOHPct < 40 {
		p *= 5
	}
	return math.Min(p, 1)
}

// CheckSuddenFailure rolls for a sudden failure covering the time since the
// previous check. The first call only records the baseline time. Once failed
// it always returns true.
func (b *Battery) CheckSuddenFailure(now time.Time) bool {
	if b.Failed {
		return true
	}
	if b.lastFailureCheck.IsZero() {
		b.lastFailureCheck = now
		return false
	}
	if !now.After(b.lastFailureCheck) {
		return false
	}
	days := now.Sub(b.lastFailureCheck).Hours() / 24
	b.lastFailureCheck = now

	p := 1 - math.Pow(1-b.FailureProbability(), days)
	if b.rng.Float64() >= p {
		return false
	}

	b.fail(now, drawFailureMode(b.rng))
	log.WithFields(log.Fields{
		"battery_id": b.config.ID,
		"mode":       b.FailureMode,
		"soh_pct":    b.SOHPct,
	}).Info("Battery failed")
	return true
}

// ForceFailure marks the battery failed with the given mode.
func (b *Battery) ForceFailure(now time.Time, mode FailureMode) {
	if b.Failed {
		return
	}
	b.fail(now, mode)
}

func (b *Battery) fail(now time.Time, mode FailureMode) {
	b.Failed = true
	b.FailedAt = now
	b.FailureMode = mode
	b.setSOH(0)
}

// OpenCircuitVoltage returns the rest voltage at socPct for the current SOH.
func (b *Battery) OpenCircuitVoltage(socPct float64) float64 {
	return OpenCircuitVoltage(socPct, b.SOHPct)
}

// EffectiveResistanceOhm returns the temperature-corrected internal resistance.
func (b *Battery) EffectiveResistanceOhm(tempC float64) float64 {
	return b.ResistanceMOhm * 0.001 * ResistanceTempFactor(tempC)
}

// TerminalVoltage returns the measured jar voltage. currentA is positive on
// charge, so a discharge pulls the terminal below the open-circuit voltage.
func (b *Battery) TerminalVoltage(socPct, currentA, tempC float64) float64 {
	v := b.OpenCircuitVoltage(socPct) + currentA*b.EffectiveResistanceOhm(tempC)
	return v + b.rng.NormFloat64()*voltageNoiseStd
}

// EstimateRULDays extrapolates the observed degradation rate, or the profile
// rate for a brand new jar, down to eolThreshold.
func (b *Battery) EstimateRULDays(eolThreshold float64) float64 {
	if b.Failed || b.SOHPct <= eolThreshold {
		return 0
	}

	rate := b.profile.SOHDeclinePctPerYear / 365
	if b.CalendarAgeDays > 0 {
		rate = (100 - b.SOHPct) / b.CalendarAgeDays
	}
	if rate <= 0 {
		return NotDegradingRULDays
	}
	return math.Max(0, (b.SOHPct-eolThreshold)/rate)
}

// Snapshot returns the current state.
func (b *Battery) Snapshot() State {
	return State{
		ID:              b.config.ID,
		Profile:         b.profile.Name,
		CapacityAh:      b.CapacityAh,
		ResistanceMOhm:  b.ResistanceMOhm,
		SOHPct:          b.SOHPct,
		AhThroughput:    b.AhThroughput,
		Cycles:          b.Cycles,
		CalendarAgeDays: b.CalendarAgeDays,
		Failed:          b.Failed,
		FailedAt:        b.FailedAt,
		FailureMode:     b.FailureMode,
		RULDays:         b.EstimateRULDays(DefaultEOLThreshold),
	}
}

// setSOH clamps SOH to [0,100] and keeps capacity in step with it.
func (b *Battery) setSOH(soh float64) {
	b.SOHPct = clamp(soh, 0, 100)
	b.CapacityAh = b.config.InitialCapacityAh * b.SOHPct / 100
}
