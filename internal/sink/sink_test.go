package sink

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/telemetry"
)

var (
	t0  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	loc = model.Location{Code: "DC-PKT-01", Region: model.RegionSouthern}
)

func testFrame(i int) telemetry.Frame {
	ts := t0.Add(time.Duration(i) * time.Minute)
	return telemetry.Frame{
		Timestamp: ts,
		Environment: model.EnvironmentReading{
			Timestamp:     ts,
			LocationCode:  loc.Code,
			OutdoorTempC:  31,
			IndoorTempC:   24.2,
			HumidityPct:   60,
			HVACStatus:    model.HVACRunning,
			GridAvailable: true,
		},
		Strings: []model.StringReading{{
			Timestamp: ts, StringID: "DC-PKT-01-REC-01-S1", VoltageV: 54.6, CurrentA: 1.2, Mode: model.ModeFloat,
		}},
		Batteries: []model.BatteryReading{
			{Timestamp: ts, BatteryID: "DC-PKT-01-REC-01-S1-J01", VoltageV: 13.65, TemperatureC: 25, ResistanceMOhm: 3.5, ConductanceS: 285.7, SOCPct: 100, SOHPct: 100},
			{Timestamp: ts, BatteryID: "DC-PKT-01-REC-01-S1-J02", VoltageV: 13.64, TemperatureC: 25.3, ResistanceMOhm: 3.6, ConductanceS: 277.8, SOCPct: 100, SOHPct: 100},
		},
	}
}

func testSummary() simulator.SiteSummary {
	return simulator.SiteSummary{
		Location: loc,
		Outages:  []model.Outage{{Start: t0.Add(time.Hour), End: t0.Add(90 * time.Minute)}},
		Batteries: []degradation.State{
			{ID: "DC-PKT-01-REC-01-S1-J01", Profile: degradation.ProfileHealthy, SOHPct: 99.9, RULDays: 3600},
			{ID: "DC-PKT-01-REC-01-S1-J02", Profile: degradation.ProfileFailing, Failed: true, FailedAt: t0, FailureMode: degradation.FailureDryOut},
		},
	}
}

func readGzipCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	rows, err := csv.NewReader(gz).ReadAll()
	require.NoError(t, err)
	return rows
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewCSVSink(dir)
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, s.WriteFrame(loc, testFrame(i)))
	}
	require.NoError(t, s.WriteSummary(testSummary()))
	require.NoError(t, s.Close())

	battery := readGzipCSV(t, filepath.Join(dir, "DC-PKT-01_battery.csv.gz"))
	require.Len(t, battery, 1+3*2)
	assert.Equal(t, BatteryHeader, battery[0])
	assert.Equal(t, []string{"2024-06-01T00:00:00Z", "DC-PKT-01-REC-01-S1-J01", "13.6500", "25.0000", "3.5000", "285.7000", "100.0000", "100.0000"}, battery[1])

	strs := readGzipCSV(t, filepath.Join(dir, "DC-PKT-01_string.csv.gz"))
	require.Len(t, strs, 4)
	assert.Equal(t, "float", strs[1][4])
	assert.Equal(t, "false", strs[1][8], "generator test flag")

	env := readGzipCSV(t, filepath.Join(dir, "DC-PKT-01_environment.csv.gz"))
	require.Len(t, env, 4)
	assert.Equal(t, "true", env[3][6])

	outages := readCSV(t, filepath.Join(dir, "DC-PKT-01_outages.csv"))
	require.Len(t, outages, 2)
	assert.Equal(t, "30.0000", outages[1][2])

	states := readCSV(t, filepath.Join(dir, "DC-PKT-01_battery_state.csv"))
	require.Len(t, states, 3)
	assert.Equal(t, "", states[1][9], "no failure time")
	assert.Equal(t, "dry_out", states[2][10])
}

func TestCSVSink_ConcurrentLocations(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSVSink(dir)
	require.NoError(t, err)

	codes := []string{"A", "B", "C"}
	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := model.Location{Code: code}
			for i := range 50 {
				assert.NoError(t, s.WriteFrame(l, testFrame(i)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	for _, code := range codes {
		rows := readGzipCSV(t, filepath.Join(dir, code+BatteryFileSuffix))
		assert.Len(t, rows, 1+50*2)
	}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: p.err}
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "fleet", 1)

	f := testFrame(0)
	f.Failures = []degradation.State{{ID: "DC-PKT-01-REC-01-S1-J02", Failed: true}}
	require.NoError(t, s.WriteFrame(loc, f))
	require.NoError(t, s.WriteSummary(testSummary()))
	require.NoError(t, s.Close())

	require.Len(t, pub.messages, 5)
	topics := make([]string, len(pub.messages))
	for i, m := range pub.messages {
		topics[i] = m.topic
		assert.Equal(t, byte(1), m.qos)
	}
	assert.Equal(t, []string{
		"fleet/DC-PKT-01/environment",
		"fleet/DC-PKT-01/string",
		"fleet/DC-PKT-01/battery",
		"fleet/DC-PKT-01/failure",
		"fleet/DC-PKT-01/summary",
	}, topics)

	var batteries []model.BatteryReading
	require.NoError(t, json.Unmarshal(pub.messages[2].payload, &batteries))
	require.Len(t, batteries, 2)
	assert.Equal(t, 13.64, batteries[1].VoltageV)
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	s := NewMQTTSink(pub, "fleet", 0)
	assert.Error(t, s.WriteFrame(loc, testFrame(0)))
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSink(ctx, filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	defer s.Close()

	for i := range 4 {
		require.NoError(t, s.WriteFrame(loc, testFrame(i)))
	}
	require.NoError(t, s.WriteSummary(testSummary()))

	counts, err := s.Store().TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, counts["battery_telemetry"])
	assert.Equal(t, 1, counts["outages"])
	assert.Equal(t, 2, counts["battery_state"])

	st, ok, err := s.Store().BatteryState(ctx, "DC-PKT-01-REC-01-S1-J02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, degradation.FailureDryOut, st.FailureMode)
}

type countingSink struct {
	frames, summaries int
	closeErr          error
}

func (c *countingSink) WriteFrame(model.Location, telemetry.Frame) error {
	c.frames++
	return nil
}

func (c *countingSink) WriteSummary(simulator.SiteSummary) error {
	c.summaries++
	return nil
}

func (c *countingSink) Close() error { return c.closeErr }

func TestMulti(t *testing.T) {
	a := &countingSink{}
	b := &countingSink{closeErr: errors.New("b failed")}
	m := Multi{a, b}

	require.NoError(t, m.WriteFrame(loc, testFrame(0)))
	require.NoError(t, m.WriteSummary(testSummary()))
	assert.Equal(t, 1, a.frames)
	assert.Equal(t, 1, b.summaries)
	assert.ErrorContains(t, m.Close(), "b failed")
}
