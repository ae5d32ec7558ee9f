package main

import (
	"sync"
	"time"

	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
	"fleet_simulator/internal/twin"
)

// twinTracker runs one EKF twin per jar of the live site, fed by the jar
// rows and the current of the string the jar sits in.
type twinTracker struct {
	mu      sync.Mutex
	metrics *metrics.Metrics
	eol     float64

	configs  map[string]twin.Config
	stringOf map[string]string
	current  map[string]float64

	twins map[string]*twin.Twin
	last  map[string]time.Time
	snaps map[string]twin.Snapshot
}

func newTwinTracker(site *telemetry.Site, eolThreshold float64, m *metrics.Metrics) *twinTracker {
	t := &twinTracker{
		metrics:  m,
		eol:      eolThreshold,
		configs:  make(map[string]twin.Config),
		stringOf: make(map[string]string),
		current:  make(map[string]float64),
		twins:    make(map[string]*twin.Twin),
		last:     make(map[string]time.Time),
		snaps:    make(map[string]twin.Snapshot),
	}
	for _, s := range site.Strings() {
		for _, j := range s.Jars() {
			id := j.Battery.ID()
			cfg := twin.DefaultConfig(id)
			cfg.NominalCapacityAh = j.Battery.Config().InitialCapacityAh
			t.configs[id] = cfg
			t.stringOf[id] = s.ID()
		}
	}
	return t
}

// ObserveString records the current later jar rows of the string are
// stepped with.
func (t *twinTracker) ObserveString(r model.StringReading) {
	t.mu.Lock()
	t.current[r.StringID] = r.CurrentA
	t.mu.Unlock()
}

// ObserveBattery steps the jar's twin. A row at or before the previous one
// means the simulation was rewound, and the twin starts over.
func (t *twinTracker) ObserveBattery(r model.BatteryReading) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg, ok := t.configs[r.BatteryID]
	if !ok {
		return
	}
	tw := t.twins[r.BatteryID]
	prev := t.last[r.BatteryID]
	var dt time.Duration
	if tw == nil || !r.Timestamp.After(prev) {
		fresh, err := twin.New(cfg)
		if err != nil {
			log.WithError(err).WithField("battery_id", r.BatteryID).Warn("Could not create twin")
			return
		}
		tw = fresh
		t.twins[r.BatteryID] = tw
	} else {
		dt = r.Timestamp.Sub(prev)
	}
	t.last[r.BatteryID] = r.Timestamp

	snap := tw.Step(r.VoltageV, t.current[t.stringOf[r.BatteryID]], r.TemperatureC, dt, true)
	snap.RULDays = tw.PredictRUL(t.eol)
	t.snaps[r.BatteryID] = snap
	if t.metrics != nil {
		t.metrics.ObserveTwin(r.BatteryID, snap)
	}
}

// Snapshot returns the latest twin estimate of a jar.
func (t *twinTracker) Snapshot(id string) (twin.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap, ok := t.snaps[id]
	return snap, ok
}
