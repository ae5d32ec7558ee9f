package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
	"fleet_simulator/internal/twin"
)

func testFrame(grid bool) telemetry.Frame {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return telemetry.Frame{
		Timestamp: ts,
		Environment: model.EnvironmentReading{
			Timestamp: ts, LocationCode: "DC-BKK-01", IndoorTempC: 24.5, GridAvailable: grid,
		},
		Strings: []model.StringReading{{StringID: "S1"}},
		Batteries: []model.BatteryReading{
			{BatteryID: "J01", TemperatureC: 26, SOHPct: 97},
			{BatteryID: "J02", TemperatureC: 31, SOHPct: 88},
			{BatteryID: "J03", TemperatureC: 25, SOHPct: 99},
		},
		Failures: []degradation.State{{ID: "J02", FailureMode: degradation.FailureDryOut}},
	}
}

func TestObserveFrame(t *testing.T) {
	m := New()
	m.ObserveFrame("DC-BKK-01", testFrame(false))
	m.ObserveFrame("DC-BKK-01", testFrame(true))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Steps.WithLabelValues("DC-BKK-01")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Rows.WithLabelValues("DC-BKK-01", "battery")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rows.WithLabelValues("DC-BKK-01", "environment")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GridDown.WithLabelValues("DC-BKK-01")))
	assert.Equal(t, 31.0, testutil.ToFloat64(m.MaxJarTemp.WithLabelValues("DC-BKK-01")))
	assert.Equal(t, 88.0, testutil.ToFloat64(m.MinSOH.WithLabelValues("DC-BKK-01")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Failures.WithLabelValues("DC-BKK-01", "dry_out")))
}

func TestObserveTwin(t *testing.T) {
	m := New()
	m.ObserveTwin("J01", twin.Snapshot{VoltageErrorV: 0.05})
	m.ObserveTwin("J01", twin.Snapshot{VoltageErrorV: -0.2, Diverged: true})
	assert.Equal(t, -0.2, testutil.ToFloat64(m.TwinVoltageError.WithLabelValues("J01")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TwinDivergences.WithLabelValues("J01")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFrame("DC-PKT-01", testFrame(true))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `fleet_sim_steps_total{location="DC-PKT-01"} 1`))
}
