// Package metrics exposes Prometheus instruments for the fleet simulator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleet_simulator/internal/telemetry"
	"fleet_simulator/internal/twin"
)

// Metrics holds the simulator instruments registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	Steps            *prometheus.CounterVec
	Rows             *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	GridDown         *prometheus.GaugeVec
	IndoorTemp       *prometheus.GaugeVec
	MaxJarTemp       *prometheus.GaugeVec
	MinSOH           *prometheus.GaugeVec
	TwinVoltageError *prometheus.GaugeVec
	TwinDivergences  *prometheus.CounterVec
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_sim_steps_total",
			Help: "Simulation steps completed per location",
		}, []string{"location"}),
		Rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_sim_rows_total",
			Help: "Telemetry rows emitted per location and kind",
		}, []string{"location", "kind"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_sim_battery_failures_total",
			Help: "Sudden battery failures per location and failure mode",
		}, []string{"location", "mode"}),
		GridDown: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_sim_grid_down",
			Help: "1 while the location is on battery",
		}, []string{"location"}),
		IndoorTemp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_sim_indoor_temperature_celsius",
			Help: "Current indoor temperature",
		}, []string{"location"}),
		MaxJarTemp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_sim_max_jar_temperature_celsius",
			Help: "Hottest jar reading in the last step",
		}, []string{"location"}),
		MinSOH: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_sim_min_soh_percent",
			Help: "Lowest jar state of health in the last step",
		}, []string{"location"}),
		TwinVoltageError: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_twin_voltage_error_volts",
			Help: "Latest digital twin voltage residual",
		}, []string{"battery_id"}),
		TwinDivergences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_twin_divergences_total",
			Help: "Filter steps flagged as diverged",
		}, []string{"battery_id"}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFrame records one site frame.
func (m *Metrics) ObserveFrame(location string, f telemetry.Frame) {
	m.Steps.WithLabelValues(location).Inc()
	m.Rows.WithLabelValues(location, "battery").Add(float64(len(f.Batteries)))
	m.Rows.WithLabelValues(location, "string").Add(float64(len(f.Strings)))
	m.Rows.WithLabelValues(location, "environment").Inc()

	down := 0.0
	if !f.Environment.GridAvailable {
		down = 1
	}
	m.GridDown.WithLabelValues(location).Set(down)
	m.IndoorTemp.WithLabelValues(location).Set(f.Environment.IndoorTempC)

	if len(f.Batteries) > 0 {
		maxTemp, minSOH := f.Batteries[0].TemperatureC, f.Batteries[0].SOHPct
		for _, b := range f.Batteries[1:] {
			maxTemp = max(maxTemp, b.TemperatureC)
			minSOH = min(minSOH, b.SOHPct)
		}
		m.MaxJarTemp.WithLabelValues(location).Set(maxTemp)
		m.MinSOH.WithLabelValues(location).Set(minSOH)
	}

	for _, failed := range f.Failures {
		m.Failures.WithLabelValues(location, string(failed.FailureMode)).Inc()
	}
}

// ObserveTwin records one twin step.
func (m *Metrics) ObserveTwin(batteryID string, snap twin.Snapshot) {
	m.TwinVoltageError.WithLabelValues(batteryID).Set(snap.VoltageErrorV)
	if snap.Diverged {
		m.TwinDivergences.WithLabelValues(batteryID).Inc()
	}
}
