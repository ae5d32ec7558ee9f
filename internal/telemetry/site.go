package telemetry

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/environment"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/seed"
)

var ErrInvalidHorizon = errors.New("invalid simulation horizon")

// StringSpec is the configuration of one string and its jars.
type StringSpec struct {
	StringConfig
	Batteries []degradation.Config
}

// SiteConfig describes one location to synthesize.
type SiteConfig struct {
	Location model.Location
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Seed     uint64
	Strings  []StringSpec
}

// Frame is everything emitted for one timestamp at one site.
type Frame struct {
	Timestamp   time.Time
	Environment model.EnvironmentReading
	Strings     []model.StringReading
	Batteries   []model.BatteryReading
	Failures    []degradation.State
}

// Overrides force site conditions, used to inject scenarios.
type Overrides struct {
	GridDown       bool
	HVACFault      bool
	AmbientOffsetC float64
}

// Site synthesizes one location step by step. Frames are produced lazily by
// Next; two sites built from the same config yield identical sequences.
type Site struct {
	config       SiteConfig
	env          *environment.Model
	strings      []*String
	outages      []model.Outage
	equalization EqualizationSchedule
	overrides    Overrides

	now         time.Time
	started     bool
	lastRefresh time.Time
	outdoorC    float64
	indoorC     float64
	humidity    float64
	hvac        model.HVACStatus
}

// NewSite validates cfg and builds the environment, batteries and strings.
// The outage list for the whole horizon is drawn up front.
func NewSite(cfg SiteConfig) (*Site, error) {
	if !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("%w: end %s not after start %s", ErrInvalidHorizon, cfg.End, cfg.Start)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("%w: sampling interval %s", ErrInvalidHorizon, cfg.Interval)
	}
	s := &Site{config: cfg}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Site) init() error {
	cfg := s.config
	env, err := environment.NewModel(cfg.Location.Region, seed.NewFor(cfg.Seed, cfg.Location.Code))
	if err != nil {
		return fmt.Errorf("site %s: %w", cfg.Location.Code, err)
	}

	strs := make([]*String, 0, len(cfg.Strings))
	for _, spec := range cfg.Strings {
		batteries := make([]*degradation.Battery, 0, len(spec.Batteries))
		for _, bc := range spec.Batteries {
			b, err := degradation.NewBattery(bc, seed.NewFor(cfg.Seed, bc.ID))
			if err != nil {
				return fmt.Errorf("site %s: %w", cfg.Location.Code, err)
			}
			batteries = append(batteries, b)
		}
		str, err := NewString(spec.StringConfig, batteries, seed.NewFor(cfg.Seed, spec.ID))
		if err != nil {
			return fmt.Errorf("site %s: %w", cfg.Location.Code, err)
		}
		strs = append(strs, str)
	}

	s.env = env
	s.strings = strs
	s.outages = env.PowerOutages(cfg.Start, cfg.End)
	s.equalization = NewEqualizationSchedule(cfg.Start)
	s.now = cfg.Start
	s.started = false
	s.hvac = model.HVACRunning
	s.overrides = Overrides{}

	log.WithFields(log.Fields{
		"location": cfg.Location.Code,
		"strings":  len(strs),
		"outages":  len(s.outages),
	}).Debug("Site initialized")
	return nil
}

// Restart rebuilds the site from its config so the sequence replays from the start.
func (s *Site) Restart() error {
	return s.init()
}

// Config returns the site configuration.
func (s *Site) Config() SiteConfig { return s.config }

// Location returns the site location.
func (s *Site) Location() model.Location { return s.config.Location }

// Strings returns the simulated strings.
func (s *Site) Strings() []*String { return s.strings }

// Outages returns the precomputed outage schedule.
func (s *Site) Outages() []model.Outage { return s.outages }

// Equalization returns the equalization schedule.
func (s *Site) Equalization() EqualizationSchedule { return s.equalization }

// Environment returns the environment model.
func (s *Site) Environment() *environment.Model { return s.env }

// Now returns the timestamp of the next frame.
func (s *Site) Now() time.Time { return s.now }

// Done reports whether the horizon is exhausted.
func (s *Site) Done() bool { return !s.now.Before(s.config.End) }

// SetOverrides replaces the forced conditions.
func (s *Site) SetOverrides(o Overrides) {
	s.overrides = o
	s.env.TempOffsetC = o.AmbientOffsetC
}

// Overrides returns the forced conditions.
func (s *Site) Overrides() Overrides { return s.overrides }

// Next produces the frame at the current timestamp and advances by one
// interval. It returns false once the horizon is exhausted.
func (s *Site) Next() (Frame, bool) {
	if s.Done() {
		return Frame{}, false
	}
	f := s.step(s.now, s.config.Interval)
	s.now = s.now.Add(s.config.Interval)
	return f, true
}

// Advance steps the site to ts regardless of the configured end, one frame
// per call. Used by live simulation where the horizon is open ended.
func (s *Site) Advance(ts time.Time) Frame {
	elapsed := ts.Sub(s.now)
	if !s.started {
		elapsed = s.config.Interval
	}
	f := s.step(ts, elapsed)
	s.now = ts
	return f
}

func (s *Site) step(ts time.Time, elapsed time.Duration) Frame {
	s.refreshEnvironment(ts)

	grid := environment.GridAvailable(s.outages, ts) && !s.overrides.GridDown
	cond := Conditions{
		Timestamp:         ts,
		Elapsed:           elapsed,
		GridAvailable:     grid,
		EqualizeScheduled: s.equalization.Active(ts),
		IndoorTempC:       s.indoorC,
		LoadFactor:        s.env.LoadProfile(ts),
	}

	f := Frame{
		Timestamp: ts,
		Environment: model.EnvironmentReading{
			Timestamp:     ts,
			LocationCode:  s.config.Location.Code,
			OutdoorTempC:  s.outdoorC,
			IndoorTempC:   s.indoorC,
			HumidityPct:   s.humidity,
			HVACStatus:    s.hvac,
			GridAvailable: grid,
		},
		Strings: make([]model.StringReading, 0, len(s.strings)),
	}
	for _, str := range s.strings {
		res := str.Step(cond)
		f.Strings = append(f.Strings, res.String)
		f.Batteries = append(f.Batteries, res.Batteries...)
		f.Failures = append(f.Failures, res.Failures...)
	}
	return f
}

// refreshEnvironment updates ambient conditions and HVAC hourly.
func (s *Site) refreshEnvironment(ts time.Time) {
	if s.started && ts.Sub(s.lastRefresh) < time.Hour {
		return
	}
	var prevOut, prevHum *float64
	if s.started {
		prevOut, prevHum = &s.outdoorC, &s.humidity
	}
	s.outdoorC = s.env.AmbientTemperature(ts, prevOut)
	s.hvac, s.indoorC = s.env.SimulateHVAC(ts, s.hvac, s.outdoorC)
	if s.overrides.HVACFault {
		s.hvac = model.HVACFault
		s.indoorC = s.env.IndoorTemperature(model.HVACFault, s.outdoorC)
	}
	s.humidity = s.env.Humidity(ts, s.indoorC, prevHum)
	s.lastRefresh = ts
	s.started = true
}
