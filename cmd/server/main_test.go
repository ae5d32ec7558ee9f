package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/config"
	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testLive builds a DC-BKK-01 site with three strings of two jars, sampled
// every minute over two hours.
func testLive(t *testing.T) *liveSite {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Simulation.Start = t0
	cfg.Simulation.End = t0.Add(2 * time.Hour)
	cfg.Simulation.SamplingInterval = time.Minute
	cfg.Fleet.StringsPerRectifier = 1
	cfg.Fleet.StringsPerUPS = 1
	cfg.Fleet.JarsPerString = 2

	live, err := newLiveSite(cfg, 0, metrics.New())
	require.NoError(t, err)
	t.Cleanup(live.engine.Pause)
	return live
}

func testServer(t *testing.T, live *liveSite) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(routerConfig{
		live:           live,
		metrics:        metrics.New().Handler(),
		allowedOrigins: []string{"*"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func getJSON(t *testing.T, url string) (int, testResponse) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func postJSON(t *testing.T, url string, payload any) (int, testResponse) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var body testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestApplyArgs(t *testing.T) {
	cfg := config.DefaultConfig()
	applyArgs(&cfg, argSpec{Addr: ":9090", Location: "DC-PKT-01", Speed: 120})
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "DC-PKT-01", cfg.Server.Location)
	assert.Equal(t, 120.0, cfg.Server.Speed)

	cfg = config.DefaultConfig()
	applyArgs(&cfg, argSpec{})
	assert.Equal(t, config.DefaultConfig().Server, cfg.Server)
}

func TestNewLiveSite_UnknownLocation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Location = "DC-XXX-99"
	_, err := newLiveSite(cfg, 0, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))
	assert.Nil(t, originChecker([]string{"*"}))

	check := originChecker([]string{"http://noc.example"})
	require.NotNil(t, check)
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"allowed", "http://noc.example", true},
		{"other", "http://evil.example", false},
		{"no origin", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t, testLive(t))
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	srv := testServer(t, testLive(t))
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFleet(t *testing.T) {
	live := testLive(t)
	srv := testServer(t, live)
	live.engine.Step(10 * time.Minute)

	status, body := getJSON(t, srv.URL+"/api/v1/fleet")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	var fleet fleetResponse
	require.NoError(t, json.Unmarshal(body.Data, &fleet))
	assert.Equal(t, "DC-BKK-01", fleet.State.Location)
	assert.Equal(t, t0.Add(10*time.Minute), fleet.State.Time.UTC())
	assert.Equal(t, t0.Add(10*time.Minute), fleet.Summary.Timestamp.UTC())
	assert.Equal(t, t0, fleet.TimeRange.Start.UTC())
	assert.InDelta(t, 100, fleet.Summary.AvgSOHPct, 1)
}

func TestBatteries(t *testing.T) {
	live := testLive(t)
	srv := testServer(t, live)
	live.engine.Step(10 * time.Minute)

	status, body := getJSON(t, srv.URL+"/api/v1/batteries")
	require.Equal(t, http.StatusOK, status)
	var list []batteryResponse
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list, 6)
	for _, b := range list {
		require.NotNil(t, b.Latest, b.ID)
		require.NotNil(t, b.Twin, b.ID)
		assert.Equal(t, t0.Add(10*time.Minute), b.Latest.Timestamp.UTC())
		assert.NotEmpty(t, b.StringID)
	}

	status, body = getJSON(t, srv.URL+"/api/v1/batteries/"+list[0].ID)
	require.Equal(t, http.StatusOK, status)
	var one batteryResponse
	require.NoError(t, json.Unmarshal(body.Data, &one))
	assert.Equal(t, list[0].ID, one.ID)
	assert.Nil(t, one.Failure)

	status, body = getJSON(t, srv.URL+"/api/v1/batteries/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "nope")
}

func TestReadings(t *testing.T) {
	live := testLive(t)
	srv := testServer(t, live)
	live.engine.Step(10 * time.Minute)
	jarID := live.engine.Site().Strings()[0].Jars()[0].Battery.ID()
	stringID := live.engine.Site().Strings()[0].ID()

	_, body := getJSON(t, srv.URL+"/api/v1/batteries/"+jarID+"/readings")
	var jars []model.BatteryReading
	require.NoError(t, json.Unmarshal(body.Data, &jars))
	assert.Len(t, jars, 11)

	from := t0.Add(5 * time.Minute).Format(time.RFC3339)
	_, body = getJSON(t, srv.URL+"/api/v1/batteries/"+jarID+"/readings?start="+from)
	jars = nil
	require.NoError(t, json.Unmarshal(body.Data, &jars))
	assert.Len(t, jars, 6)

	_, body = getJSON(t, srv.URL+"/api/v1/strings/"+stringID+"/readings?start="+from)
	var strs []model.StringReading
	require.NoError(t, json.Unmarshal(body.Data, &strs))
	assert.Len(t, strs, 6)

	_, body = getJSON(t, srv.URL+"/api/v1/environment")
	var env []model.EnvironmentReading
	require.NoError(t, json.Unmarshal(body.Data, &env))
	assert.Len(t, env, 11)
}

func TestReadings_BadRange(t *testing.T) {
	srv := testServer(t, testLive(t))
	tests := []struct {
		name  string
		query string
	}{
		{"bad start", "?start=yesterday"},
		{"bad end", "?end=2024-13-01"},
		{"end before start", "?start=2024-03-01T13:00:00Z&end=2024-03-01T12:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := getJSON(t, srv.URL+"/api/v1/environment"+tt.query)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestScenario(t *testing.T) {
	live := testLive(t)
	srv := testServer(t, live)

	status, body := postJSON(t, srv.URL+"/api/v1/scenario",
		simulator.ScenarioRequest{Scenario: simulator.ScenarioHVACFailure})
	require.Equal(t, http.StatusOK, status)
	var state simulator.State
	require.NoError(t, json.Unmarshal(body.Data, &state))
	assert.Equal(t, simulator.ScenarioHVACFailure, state.Scenario)
	assert.Equal(t, simulator.ScenarioHVACFailure, live.engine.State().Scenario)

	status, _ = postJSON(t, srv.URL+"/api/v1/scenario", simulator.ScenarioRequest{Scenario: "meteor"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = postJSON(t, srv.URL+"/api/v1/scenario", simulator.ScenarioRequest{
		Scenario:   simulator.ScenarioThermalRunaway,
		BatteryIDs: []string{"nope"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Post(srv.URL+"/api/v1/scenario", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecorder_FailureShownOnBattery(t *testing.T) {
	live := testLive(t)
	srv := testServer(t, live)
	jarID := live.engine.Site().Strings()[0].Jars()[0].Battery.ID()

	rec := &recorder{store: live.store, twins: live.twins}
	rec.OnFailure(degradation.State{ID: jarID, Failed: true, FailureMode: degradation.FailureDryOut})

	_, body := getJSON(t, srv.URL+"/api/v1/batteries/"+jarID)
	var b batteryResponse
	require.NoError(t, json.Unmarshal(body.Data, &b))
	require.NotNil(t, b.Failure)
	assert.Equal(t, degradation.FailureDryOut, b.Failure.FailureMode)
}

func TestTwinTracker_RestartsOnRewind(t *testing.T) {
	live := testLive(t)
	jar := live.engine.Site().Strings()[0].Jars()[0]
	stringID := live.engine.Site().Strings()[0].ID()
	tracker := newTwinTracker(live.engine.Site(), 80, nil)

	tracker.ObserveString(model.StringReading{Timestamp: t0, StringID: stringID, CurrentA: -20})
	for i := range 10 {
		tracker.ObserveBattery(model.BatteryReading{
			Timestamp:    t0.Add(time.Duration(i) * time.Minute),
			BatteryID:    jar.Battery.ID(),
			VoltageV:     12.6,
			TemperatureC: 25,
		})
	}
	before, ok := tracker.Snapshot(jar.Battery.ID())
	require.True(t, ok)
	assert.Greater(t, before.AhThroughput, 0.0)

	tracker.ObserveBattery(model.BatteryReading{
		Timestamp:    t0,
		BatteryID:    jar.Battery.ID(),
		VoltageV:     12.6,
		TemperatureC: 25,
	})
	after, ok := tracker.Snapshot(jar.Battery.ID())
	require.True(t, ok)
	assert.Equal(t, 0.0, after.AhThroughput)

	tracker.ObserveBattery(model.BatteryReading{Timestamp: t0, BatteryID: "unknown"})
	_, ok = tracker.Snapshot("unknown")
	assert.False(t, ok)
}

func TestTwinTracker_UsesEOLThreshold(t *testing.T) {
	live := testLive(t)
	id := live.engine.Site().Strings()[0].Jars()[0].Battery.ID()
	strict := newTwinTracker(live.engine.Site(), 90, nil)
	loose := newTwinTracker(live.engine.Site(), 70, nil)
	r := model.BatteryReading{Timestamp: t0, BatteryID: id, VoltageV: 13.5, TemperatureC: 25}
	strict.ObserveBattery(r)
	loose.ObserveBattery(r)

	s, _ := strict.Snapshot(id)
	l, _ := loose.Snapshot(id)
	assert.Greater(t, l.RULDays, s.RULDays)
}

type countingCallback struct {
	states, env, strings, batteries, failures, summaries int
}

func (c *countingCallback) OnState(simulator.State)                { c.states++ }
func (c *countingCallback) OnEnvironment(model.EnvironmentReading) { c.env++ }
func (c *countingCallback) OnStringReading(model.StringReading)    { c.strings++ }
func (c *countingCallback) OnBatteryReading(model.BatteryReading)  { c.batteries++ }
func (c *countingCallback) OnFailure(degradation.State)            { c.failures++ }
func (c *countingCallback) OnSummary(simulator.Summary)            { c.summaries++ }

func TestCallbacks_FanOut(t *testing.T) {
	a, b := &countingCallback{}, &countingCallback{}
	cb := callbacks{a, b}
	cb.OnEnvironment(model.EnvironmentReading{})
	cb.OnStringReading(model.StringReading{})
	cb.OnBatteryReading(model.BatteryReading{})
	cb.OnFailure(degradation.State{})
	cb.OnSummary(simulator.Summary{})

	for _, c := range []*countingCallback{a, b} {
		assert.Equal(t, 1, c.env)
		assert.Equal(t, 1, c.strings)
		assert.Equal(t, 1, c.batteries)
		assert.Equal(t, 1, c.failures)
		assert.Equal(t, 1, c.summaries)
	}
}
