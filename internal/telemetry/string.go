package telemetry

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
)

var ErrNoBatteries = errors.New("string has no batteries")

const (
	chargeEfficiency   = 0.99
	floatAgingVoltageV = 13.65
	otherAgingVoltageV = 13.9

	currentNoiseFrac    = 0.02
	resistanceNoiseFrac = 0.02
	tempSensorNoiseC    = 0.5
	stringVoltageNoiseV = 0.2
	minReportedTempC    = 10.0
	maxReportedTempC    = 50.0
	defaultMaxChargeA   = 30.0
	rippleChargingBaseV = 0.5
	rippleCurrentFrac   = 0.01
)

// Discharge current range in amps at full load.
var dischargeRange = map[model.SystemType][2]float64{
	model.SystemRectifier: {50, 150},
	model.SystemUPS:       {80, 200},
}

// StringConfig describes one series string of jars.
type StringConfig struct {
	ID                string
	SystemType        model.SystemType
	MaxChargeCurrentA float64
}

// Jar is one battery inside a string together with the state the
// synthesizer tracks for it.
type Jar struct {
	Battery     *degradation.Battery
	SOCPct      float64
	Thermal     *ThermalModel
	TempOffsetC float64 // injected hot spot
}

// Conditions are the site-level inputs to one string step.
type Conditions struct {
	Timestamp         time.Time
	Elapsed           time.Duration
	GridAvailable     bool
	EqualizeScheduled bool
	IndoorTempC       float64
	LoadFactor        float64
}

// StepResult holds the rows emitted by one string step.
type StepResult struct {
	String    model.StringReading
	Batteries []model.BatteryReading
	// Failures are the jars that failed during this step.
	Failures []degradation.State
}

// String simulates one battery string: operating mode, string current,
// coulomb counting, jar thermals and aging.
type String struct {
	config StringConfig
	jars   []*Jar
	mode   model.Mode
	rng    *rand.Rand
}

// NewString creates a string over batteries, all starting fully charged in
// float mode. rng is owned by the string.
func NewString(cfg StringConfig, batteries []*degradation.Battery, rng *rand.Rand) (*String, error) {
	if len(batteries) == 0 {
		return nil, fmt.Errorf("string %s: %w", cfg.ID, ErrNoBatteries)
	}
	if !cfg.SystemType.Valid() {
		return nil, fmt.Errorf("string %s: unknown system type %q", cfg.ID, cfg.SystemType)
	}
	if cfg.MaxChargeCurrentA <= 0 {
		cfg.MaxChargeCurrentA = defaultMaxChargeA
	}

	jars := make([]*Jar, len(batteries))
	for i, b := range batteries {
		jars[i] = &Jar{Battery: b, SOCPct: 100, Thermal: NewThermalModel()}
	}
	return &String{config: cfg, jars: jars, mode: model.ModeFloat, rng: rng}, nil
}

// ID returns the string identifier.
func (s *String) ID() string { return s.config.ID }

// Config returns the string configuration.
func (s *String) Config() StringConfig { return s.config }

// Mode returns the mode of the last step.
func (s *String) Mode() model.Mode { return s.mode }

// Jars returns the jars in series order.
func (s *String) Jars() []*Jar { return s.jars }

// AverageSOC returns the mean SOC of the jars that have not failed. A string
// with no working jar reports 100 so it settles in float.
func (s *String) AverageSOC() float64 {
	var sum float64
	var n int
	for _, j := range s.jars {
		if j.Battery.Failed {
			continue
		}
		sum += j.SOCPct
		n++
	}
	if n == 0 {
		return 100
	}
	return sum / float64(n)
}

// Step advances the string by c.Elapsed and returns the rows for c.Timestamp.
func (s *String) Step(c Conditions) StepResult {
	prevMode := s.mode
	mode := NextMode(prevMode, c.GridAvailable, c.EqualizeScheduled, s.AverageSOC())
	current := s.stringCurrent(mode, c.LoadFactor)
	hours := c.Elapsed.Hours()

	agingV := otherAgingVoltageV
	if mode == model.ModeFloat {
		agingV = floatAgingVoltageV
	}

	res := StepResult{Batteries: make([]model.BatteryReading, 0, len(s.jars))}
	var stringV float64
	for _, j := range s.jars {
		b := j.Battery
		s.coulombCount(j, current, hours)

		b.UpdateCalendarAging(hours, c.IndoorTempC, agingV)
		if current < 0 {
			b.UpdateCycleAging(math.Abs(current)*hours, 100-j.SOCPct, c.IndoorTempC)
		}
		wasFailed := b.Failed
		if b.CheckSuddenFailure(c.Timestamp) && !wasFailed {
			res.Failures = append(res.Failures, b.Snapshot())
		}

		row := s.jarReading(j, c, current)
		stringV += row.VoltageV
		res.Batteries = append(res.Batteries, row)
	}

	res.String = model.StringReading{
		Timestamp:         c.Timestamp,
		StringID:          s.config.ID,
		VoltageV:          stringV + s.rng.NormFloat64()*stringVoltageNoiseV,
		CurrentA:          current,
		Mode:              mode,
		RippleVoltageRMSV: s.rippleVoltage(mode),
		RippleCurrentRMSA: math.Abs(current) * rippleCurrentFrac * s.uniform(0.5, 2.0),
		EqualizeFlag:      mode == model.ModeEqualize,
		GeneratorTestFlag: false,
		TransferEventFlag: mode == model.ModeDischarge && prevMode != model.ModeDischarge,
	}
	s.mode = mode
	return res
}

// stringCurrent draws the string current for mode, positive on charge.
func (s *String) stringCurrent(mode model.Mode, loadFactor float64) float64 {
	var current float64
	switch mode {
	case model.ModeFloat:
		current = s.uniform(0.5, 2.0)
	case model.ModeBoost:
		// Taper as the string fills.
		switch soc := s.AverageSOC(); {
		case soc < 80:
			current = s.config.MaxChargeCurrentA * s.uniform(0.8, 1.0)
		case soc < 90:
			current = s.config.MaxChargeCurrentA * s.uniform(0.5, 0.7)
		default:
			current = s.config.MaxChargeCurrentA * s.uniform(0.2, 0.4)
		}
	case model.ModeDischarge:
		r := dischargeRange[s.config.SystemType]
		current = -s.uniform(r[0], r[1]) * loadFactor
	case model.ModeEqualize:
		current = s.uniform(5, 15)
	default:
		return 0
	}
	return current + s.rng.NormFloat64()*math.Abs(current)*currentNoiseFrac
}

func (s *String) coulombCount(j *Jar, currentA, hours float64) {
	capacity := j.Battery.CapacityAh
	if capacity <= 0 {
		if j.SOCPct != 0 {
			log.WithField("battery_id", j.Battery.ID()).Warn("Zero capacity, SOC forced to 0")
		}
		j.SOCPct = 0
		return
	}
	ah := currentA * hours
	if ah > 0 {
		ah *= chargeEfficiency
	}
	j.SOCPct = math.Min(math.Max(j.SOCPct+ah/capacity*100, 0), 100)
}

func (s *String) jarReading(j *Jar, c Conditions, currentA float64) model.BatteryReading {
	b := j.Battery
	ambient := c.IndoorTempC + j.TempOffsetC
	th := j.Thermal.Step(ambient, currentA, b.ResistanceMOhm*0.001, c.Elapsed)
	temp := clamp(th.TempC+s.rng.NormFloat64()*tempSensorNoiseC, minReportedTempC, maxReportedTempC)

	resistance := b.ResistanceMOhm + s.rng.NormFloat64()*b.ResistanceMOhm*resistanceNoiseFrac
	var conductance float64
	if resistance > 0 {
		conductance = 1 / (resistance * 0.001)
	} else {
		log.WithField("battery_id", b.ID()).Warn("Non-positive resistance, conductance reported as 0")
	}

	return model.BatteryReading{
		Timestamp:      c.Timestamp,
		BatteryID:      b.ID(),
		VoltageV:       b.TerminalVoltage(j.SOCPct, currentA, temp),
		TemperatureC:   temp,
		ResistanceMOhm: resistance,
		ConductanceS:   conductance,
		SOCPct:         j.SOCPct,
		SOHPct:         b.SOHPct,
	}
}

func (s *String) rippleVoltage(mode model.Mode) float64 {
	switch mode {
	case model.ModeFloat, model.ModeBoost, model.ModeEqualize:
		return rippleChargingBaseV * s.uniform(0.8, 1.5)
	default:
		return s.uniform(0.05, 0.15)
	}
}

func (s *String) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: s.rng}.Rand()
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
