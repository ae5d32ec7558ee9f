package simulator

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
)

// State represents the current simulation state.
type State struct {
	Location string    `json:"location"`
	Time     time.Time `json:"time"`
	Speed    float64   `json:"speed"`
	Running  bool      `json:"running"`
	Scenario Scenario  `json:"scenario"`
}

// Summary holds fleet health at the latest frame.
type Summary struct {
	Timestamp          time.Time        `json:"timestamp"`
	GridAvailable      bool             `json:"grid_available"`
	HVACStatus         model.HVACStatus `json:"hvac_status"`
	IndoorTempC        float64          `json:"indoor_temp_c"`
	AvgSOCPct          float64          `json:"avg_soc_pct"`
	AvgSOHPct          float64          `json:"avg_soh_pct"`
	MinSOHPct          float64          `json:"min_soh_pct"`
	MaxJarTempC        float64          `json:"max_jar_temp_c"`
	FailedBatteries    int              `json:"failed_batteries"`
	StringsDischarging int              `json:"strings_discharging"`
	Outages            int              `json:"outages"`
}

// Callback receives simulation events.
type Callback interface {
	OnState(state State)
	OnEnvironment(r model.EnvironmentReading)
	OnStringReading(r model.StringReading)
	OnBatteryReading(r model.BatteryReading)
	OnFailure(s degradation.State)
	OnSummary(summary Summary)
}

// Engine runs one site live at a configurable speed. Frames are produced at
// the site's sampling interval regardless of how far each tick advances.
type Engine struct {
	mu       sync.Mutex
	callback Callback
	metrics  *metrics.Metrics

	running   bool
	speed     float64
	simTime   time.Time
	timeRange model.TimeRange
	scenario  ScenarioRequest

	// siteMu guards the site, which is not safe for concurrent use.
	siteMu    sync.Mutex
	site      *telemetry.Site
	lastFrame time.Time
	haveFrame bool
	summary   Summary

	// history holds every applied scenario so Seek can replay it at the
	// same instant. Entries from applied on are still ahead of the site.
	history []scenarioEntry
	applied int

	stopCh chan struct{}
}

// scenarioEntry records a scenario applied at simulation time now. Frames up
// to now were emitted before it, unless emitted is false and the run had not
// produced its first frame yet.
type scenarioEntry struct {
	req     ScenarioRequest
	now     time.Time
	emitted bool
}

func New(site *telemetry.Site, cb Callback) *Engine {
	cfg := site.Config()
	return &Engine{
		callback:  cb,
		speed:     3600,
		site:      site,
		simTime:   cfg.Start,
		timeRange: model.TimeRange{Start: cfg.Start, End: cfg.End},
		scenario:  ScenarioRequest{Scenario: ScenarioNormal},
	}
}

// SetMetrics records every emitted frame on m.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// State returns the current simulation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Location: e.site.Location().Code,
		Time:     e.simTime,
		Speed:    e.speed,
		Running:  e.running,
		Scenario: e.scenario.Scenario,
	}
}

// Start begins the simulation loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	stop := make(chan struct{})
	e.stopCh = stop
	e.mu.Unlock()

	e.broadcastState()
	go e.loop(stop)
}

// Pause stops the simulation loop.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.broadcastState()
}

// SetSpeed sets the simulation speed multiplier.
func (e *Engine) SetSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	if speed > 604800 {
		speed = 604800
	}

	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()

	e.broadcastState()
}

// TimeRange returns the simulation horizon.
func (e *Engine) TimeRange() model.TimeRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeRange
}

// Site returns the simulated site. Callers must not step it while the
// engine is running.
func (e *Engine) Site() *telemetry.Site { return e.site }

// Summary returns the summary of the latest frame.
func (e *Engine) Summary() Summary {
	e.siteMu.Lock()
	defer e.siteMu.Unlock()
	return e.summary
}

// SetScenario applies req to the site from the current simulation time on.
// Scenarios recorded later than now, left over from seeking backwards, are
// discarded.
func (e *Engine) SetScenario(req ScenarioRequest) error {
	e.mu.Lock()
	now := e.simTime
	e.mu.Unlock()

	e.siteMu.Lock()
	err := ApplyScenario(e.site, req, now)
	if err == nil {
		e.history = append(e.history[:e.applied], scenarioEntry{req: req, now: now, emitted: e.haveFrame})
		e.applied = len(e.history)
	}
	e.siteMu.Unlock()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.scenario = req
	e.mu.Unlock()
	e.broadcastState()
	return nil
}

// Seek jumps to a specific time. The site is rebuilt and replayed silently
// up to t, re-applying recorded scenarios at the instants they were set, so
// seeking backwards reproduces the same history. Scenarios set after t are
// applied again once playback reaches them.
func (e *Engine) Seek(t time.Time) {
	e.mu.Lock()
	if t.Before(e.timeRange.Start) {
		t = e.timeRange.Start
	}
	if t.After(e.timeRange.End) {
		t = e.timeRange.End
	}
	e.simTime = t
	e.scenario = ScenarioRequest{Scenario: ScenarioNormal}
	e.mu.Unlock()

	e.siteMu.Lock()
	if err := e.site.Restart(); err != nil {
		log.WithError(err).Error("Site restart failed")
	}
	e.haveFrame = false
	e.summary = Summary{}
	e.applied = 0
	frames := e.advanceLocked(t)
	if len(frames) > 0 {
		e.summary = e.summarize(frames[len(frames)-1])
	}
	e.siteMu.Unlock()

	e.broadcastState()
	e.broadcastSummary()
}

// Step advances the simulation by the given duration and emits readings.
// Useful for deterministic testing. Does not require Start().
func (e *Engine) Step(delta time.Duration) {
	e.mu.Lock()
	e.simTime = e.simTime.Add(delta)

	ended := false
	if !e.simTime.Before(e.timeRange.End) {
		e.simTime = e.timeRange.End
		ended = true
	}
	currentTime := e.simTime
	e.mu.Unlock()

	e.emitFrames(currentTime)
	e.broadcastState()
	e.broadcastSummary()

	if ended {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.broadcastState()
	}
}

const tickInterval = 100 * time.Millisecond

func (e *Engine) loop(stop chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.tick(stop) {
				return
			}
		}
	}
}

// tick advances one frame of the run owned by stop. Returns true if
// simulation reached the end.
func (e *Engine) tick(stop chan struct{}) bool {
	e.mu.Lock()
	e.simTime = e.simTime.Add(time.Duration(float64(tickInterval) * e.speed))

	ended := false
	if !e.simTime.Before(e.timeRange.End) {
		e.simTime = e.timeRange.End
		ended = true
	}
	currentTime := e.simTime
	e.mu.Unlock()

	e.emitFrames(currentTime)
	e.broadcastState()
	e.broadcastSummary()

	if ended {
		e.mu.Lock()
		// Pause may have closed stop already, or a new run may own stopCh.
		if e.running && e.stopCh == stop {
			e.running = false
			close(stop)
		}
		e.mu.Unlock()
		e.broadcastState()
		return true
	}
	return false
}

// advanceLocked steps the site through every sampling instant up to and
// including until, excluding the horizon end. Must be called with siteMu held.
func (e *Engine) advanceLocked(until time.Time) []telemetry.Frame {
	cfg := e.site.Config()
	next := cfg.Start
	if e.haveFrame {
		next = e.lastFrame.Add(cfg.Interval)
	}
	var frames []telemetry.Frame
	for ; !next.After(until) && next.Before(cfg.End); next = next.Add(cfg.Interval) {
		e.replayScenariosLocked(func(s scenarioEntry) bool {
			return !s.emitted || s.now.Before(next)
		})
		frames = append(frames, e.site.Advance(next))
		e.lastFrame = next
		e.haveFrame = true
	}
	e.replayScenariosLocked(func(s scenarioEntry) bool {
		return !s.now.After(until)
	})
	return frames
}

// replayScenariosLocked applies recorded scenarios, in order, while due
// reports true. Must be called with siteMu held.
func (e *Engine) replayScenariosLocked(due func(scenarioEntry) bool) {
	for e.applied < len(e.history) && due(e.history[e.applied]) {
		s := e.history[e.applied]
		if err := ApplyScenario(e.site, s.req, s.now); err != nil {
			log.WithError(err).Warn("Could not replay scenario")
		}
		e.applied++

		e.mu.Lock()
		e.scenario = s.req
		e.mu.Unlock()
	}
}

func (e *Engine) emitFrames(until time.Time) {
	e.mu.Lock()
	m := e.metrics
	e.mu.Unlock()

	e.siteMu.Lock()
	frames := e.advanceLocked(until)
	if len(frames) > 0 {
		e.summary = e.summarize(frames[len(frames)-1])
	}
	code := e.site.Location().Code
	e.siteMu.Unlock()

	for _, f := range frames {
		e.callback.OnEnvironment(f.Environment)
		for _, r := range f.Strings {
			e.callback.OnStringReading(r)
		}
		for _, r := range f.Batteries {
			e.callback.OnBatteryReading(r)
		}
		for _, s := range f.Failures {
			e.callback.OnFailure(s)
		}
		if m != nil {
			m.ObserveFrame(code, f)
		}
	}
}

// summarize must be called with siteMu held.
func (e *Engine) summarize(f telemetry.Frame) Summary {
	s := Summary{
		Timestamp:     f.Timestamp,
		GridAvailable: f.Environment.GridAvailable,
		HVACStatus:    f.Environment.HVACStatus,
		IndoorTempC:   f.Environment.IndoorTempC,
	}
	if len(f.Batteries) > 0 {
		s.MinSOHPct = f.Batteries[0].SOHPct
	}
	for _, b := range f.Batteries {
		s.AvgSOCPct += b.SOCPct
		s.AvgSOHPct += b.SOHPct
		s.MinSOHPct = min(s.MinSOHPct, b.SOHPct)
		s.MaxJarTempC = max(s.MaxJarTempC, b.TemperatureC)
	}
	if n := float64(len(f.Batteries)); n > 0 {
		s.AvgSOCPct /= n
		s.AvgSOHPct /= n
	}
	for _, r := range f.Strings {
		if r.Mode == model.ModeDischarge {
			s.StringsDischarging++
		}
	}
	for _, str := range e.site.Strings() {
		for _, j := range str.Jars() {
			if j.Battery.Failed {
				s.FailedBatteries++
			}
		}
	}
	for _, o := range e.site.Outages() {
		if !o.Start.After(f.Timestamp) {
			s.Outages++
		}
	}
	return s
}

func (e *Engine) broadcastState() {
	e.mu.Lock()
	s := e.stateLocked()
	e.mu.Unlock()
	e.callback.OnState(s)
}

func (e *Engine) broadcastSummary() {
	e.siteMu.Lock()
	s := e.summary
	e.siteMu.Unlock()
	e.callback.OnSummary(s)
}
