package environment

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"fleet_simulator/internal/model"
)

var ErrUnknownRegion = errors.New("unknown region")

const (
	maxOutageMinutes   = 480
	outageDurationStd  = 0.8
	stormFollowUpP     = 0.3
	tempNoiseStd       = 0.8
	humidityNoiseStd   = 3.0
	loadNoiseStd       = 0.05
	minLoadFactor      = 0.3
	maxLoadFactor      = 1.0
	minHumidityPct     = 20.0
	maxHumidityPct     = 99.0
	tempSmoothingPrev  = 0.85
	humiditySmoothPrev = 0.8
)

// Model owns the climate state generator for one location.
type Model struct {
	region  model.Region
	climate Climate
	grid    GridReliability
	rng     *rand.Rand

	// TempOffsetC shifts the ambient temperature, used for heat-wave scenarios.
	TempOffsetC float64
}

// NewModel creates an environment model for region. rng is owned by the model.
func NewModel(region model.Region, rng *rand.Rand) (*Model, error) {
	climate, ok := regionalClimate[region]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return &Model{
		region:  region,
		climate: climate,
		grid:    gridReliability[region],
		rng:     rng,
	}, nil
}

// Region returns the modelled region.
func (m *Model) Region() model.Region { return m.region }

// Grid returns the regional grid reliability figures.
func (m *Model) Grid() GridReliability { return m.grid }

// AmbientTemperature returns the outdoor temperature at ts. When prev is
// non-nil the result is smoothed toward it for continuity.
func (m *Model) AmbientTemperature(ts time.Time, prev *float64) float64 {
	local := ts.In(Bangkok)
	s := seasons[SeasonOf(ts)]

	base := (s.tempMin+s.tempMax)/2 + m.climate.TempOffsetC
	amplitude := (s.tempMax - s.tempMin) / 2

	// Peak around 14:00.
	daily := math.Sin(float64(local.Hour()-6)*math.Pi/12) * 0.7
	annual := math.Sin(float64(local.YearDay()-80)*2*math.Pi/365) * 0.3

	temp := base + amplitude*(daily+annual) + m.rng.NormFloat64()*tempNoiseStd + m.TempOffsetC
	if prev != nil {
		temp = tempSmoothingPrev*(*prev) + (1-tempSmoothingPrev)*temp
	}
	return temp
}

// Humidity returns relative humidity at ts given the current temperature.
// Hotter means drier, except in the rainy season where the link is weak and
// positive. The result is always within [20, 99].
func (m *Model) Humidity(ts time.Time, tempC float64, prev *float64) float64 {
	local := ts.In(Bangkok)
	season := SeasonOf(ts)
	s := seasons[season]

	base := (s.humidityMin+s.humidityMax)/2 + m.climate.HumidityOffsetPct

	tempFactor := -0.5
	if season == SeasonRainy {
		tempFactor = 0.1
	}
	daily := -math.Sin(float64(local.Hour()-6)*math.Pi/12) * 8

	h := base + tempFactor*(tempC-28) + daily + m.rng.NormFloat64()*humidityNoiseStd
	if prev != nil {
		h = humiditySmoothPrev*(*prev) + (1-humiditySmoothPrev)*h
	}
	return clamp(h, minHumidityPct, maxHumidityPct)
}

// SimulateHVAC advances the cooling plant Markov chain one step and returns
// the new status with the resulting indoor temperature.
func (m *Model) SimulateHVAC(ts time.Time, current model.HVACStatus, outdoorC float64) (model.HVACStatus, float64) {
	load := seasons[SeasonOf(ts)].hvacLoadFactor

	next := current
	switch current {
	case model.HVACDegraded:
		if m.rng.Float64() < 0.001 {
			next = model.HVACRunning
		} else if m.rng.Float64() < 0.0005 {
			next = model.HVACFault
		}
	case model.HVACFault:
		if m.rng.Float64() < 0.01 {
			next = model.HVACRunning
		}
	default:
		next = model.HVACRunning
		if m.rng.Float64() < 0.0001*load {
			next = model.HVACDegraded
		} else if m.rng.Float64() < 0.00002*load {
			next = model.HVACFault
		}
	}

	return next, m.IndoorTemperature(next, outdoorC)
}

// IndoorTemperature blends the outdoor temperature and the setpoint by the
// plant efficiency of status.
func (m *Model) IndoorTemperature(status model.HVACStatus, outdoorC float64) float64 {
	p, ok := hvacPatterns[status]
	if !ok {
		p = hvacPatterns[model.HVACRunning]
	}
	indoor := IndoorSetpointC + (outdoorC-IndoorSetpointC)*(1-p.efficiency)
	return indoor + m.rng.NormFloat64()*p.tempControlStd
}

// LoadProfile returns the facility load factor at ts, within [0.3, 1.0].
func (m *Model) LoadProfile(ts time.Time) float64 {
	local := ts.In(Bangkok)
	base := 0.75
	if h := local.Hour(); h >= 8 && h <= 20 {
		base = 0.85
	}
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		base *= 0.95
	}
	return clamp(base+m.rng.NormFloat64()*loadNoiseStd, minLoadFactor, maxLoadFactor)
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
