// Package validate checks generated telemetry for out-of-range values,
// timestamp ordering and overlapping outages, and summarizes every numeric
// column.
package validate

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/telemetry"
)

// Range is an inclusive bound on a column.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits are the accepted ranges per telemetry channel.
type Limits map[model.Channel]Range

// DefaultLimits returns the data-quality ranges for strings of
// jarsPerString jars.
func DefaultLimits(jarsPerString int) Limits {
	n := float64(jarsPerString)
	return Limits{
		model.ChannelBatteryVoltage:     {10.5, 15},
		model.ChannelBatteryTemperature: {10, 50},
		model.ChannelBatteryResistance:  {2, 50},
		model.ChannelBatteryConductance: {20, 500},
		model.ChannelBatterySOC:         {0, 100},
		model.ChannelBatterySOH:         {0, 100},
		model.ChannelStringVoltage:      {10.4 * n, 15 * n},
		model.ChannelStringCurrent:      {-250, 250},
		model.ChannelRippleVoltage:      {0, 2},
		model.ChannelRippleCurrent:      {0, 5},
		model.ChannelHumidity:           {20, 99},
		model.ChannelIndoorTemperature:  {10, 50},
	}
}

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueOutOfRange    IssueKind = "out_of_range"
	IssueNonMonotonic  IssueKind = "non_monotonic"
	IssueOutageOverlap IssueKind = "outage_overlap"
)

// Issue is one validation finding.
type Issue struct {
	Kind      IssueKind     `json:"kind"`
	Entity    string        `json:"entity"`
	Channel   model.Channel `json:"channel,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Value     float64       `json:"value,omitempty"`
	Message   string        `json:"message"`
}

// Summary holds descriptive statistics of one column.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P50   float64 `json:"p50"`
	Max   float64 `json:"max"`
}

// Summarize computes the statistics of values. An empty slice gives a zero
// Summary and a single value gives Std 0.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Summary{
		Count: len(sorted),
		Mean:  mean,
		Std:   std,
		Min:   floats.Min(sorted),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Max:   floats.Max(sorted),
	}
}

// Report is the result of a validation run.
type Report struct {
	Rows      int                       `json:"rows"`
	Issues    []Issue                   `json:"issues"`
	Counts    map[IssueKind]int         `json:"counts"`
	Truncated bool                      `json:"truncated"`
	Columns   map[model.Channel]Summary `json:"columns"`
}

// OK reports whether no issue was found.
func (r Report) OK() bool {
	return len(r.Counts) == 0
}

// DefaultMaxIssues bounds the issues kept in a Report; counts stay exact.
const DefaultMaxIssues = 1000

// Validator accumulates checks over a stream of frames. It implements
// simulator.Sink so it can run alongside the real sinks, and is safe for
// concurrent use by several sites.
type Validator struct {
	limits    Limits
	maxIssues int

	mu      sync.Mutex
	rows    int
	last    map[string]time.Time
	issues  []Issue
	counts  map[IssueKind]int
	columns map[model.Channel][]float64
}

var _ simulator.Sink = (*Validator)(nil)

func New(limits Limits) *Validator {
	return &Validator{
		limits:    limits,
		maxIssues: DefaultMaxIssues,
		last:      make(map[string]time.Time),
		counts:    make(map[IssueKind]int),
		columns:   make(map[model.Channel][]float64),
	}
}

// SetMaxIssues changes how many issues the report keeps.
func (v *Validator) SetMaxIssues(n int) {
	v.mu.Lock()
	v.maxIssues = n
	v.mu.Unlock()
}

func (v *Validator) record(is Issue) {
	v.counts[is.Kind]++
	if len(v.issues) < v.maxIssues {
		v.issues = append(v.issues, is)
	}
}

func (v *Validator) check(entity string, ts time.Time, ch model.Channel, value float64) {
	v.columns[ch] = append(v.columns[ch], value)
	r, ok := v.limits[ch]
	if !ok || r.Contains(value) {
		return
	}
	v.record(Issue{
		Kind:      IssueOutOfRange,
		Entity:    entity,
		Channel:   ch,
		Timestamp: ts,
		Value:     value,
		Message:   fmt.Sprintf("%s %.4f outside [%g, %g]", ch, value, r.Min, r.Max),
	})
}

func (v *Validator) order(entity string, ts time.Time) {
	if prev, ok := v.last[entity]; ok && !ts.After(prev) {
		v.record(Issue{
			Kind:      IssueNonMonotonic,
			Entity:    entity,
			Timestamp: ts,
			Message:   fmt.Sprintf("timestamp %s not after %s", ts.Format(time.RFC3339), prev.Format(time.RFC3339)),
		})
	}
	v.last[entity] = ts
}

// CheckBattery validates one jar row.
func (v *Validator) CheckBattery(r model.BatteryReading) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkBatteryLocked(r)
}

func (v *Validator) checkBatteryLocked(r model.BatteryReading) {
	v.rows++
	v.order(r.BatteryID, r.Timestamp)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatteryVoltage, r.VoltageV)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatteryTemperature, r.TemperatureC)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatteryResistance, r.ResistanceMOhm)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatteryConductance, r.ConductanceS)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatterySOC, r.SOCPct)
	v.check(r.BatteryID, r.Timestamp, model.ChannelBatterySOH, r.SOHPct)
}

// CheckString validates one string row.
func (v *Validator) CheckString(r model.StringReading) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkStringLocked(r)
}

func (v *Validator) checkStringLocked(r model.StringReading) {
	v.rows++
	v.order(r.StringID, r.Timestamp)
	v.check(r.StringID, r.Timestamp, model.ChannelStringVoltage, r.VoltageV)
	v.check(r.StringID, r.Timestamp, model.ChannelStringCurrent, r.CurrentA)
	v.check(r.StringID, r.Timestamp, model.ChannelRippleVoltage, r.RippleVoltageRMSV)
	v.check(r.StringID, r.Timestamp, model.ChannelRippleCurrent, r.RippleCurrentRMSA)
}

// CheckEnvironment validates one location row.
func (v *Validator) CheckEnvironment(r model.EnvironmentReading) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkEnvironmentLocked(r)
}

func (v *Validator) checkEnvironmentLocked(r model.EnvironmentReading) {
	v.rows++
	v.order(r.LocationCode, r.Timestamp)
	v.check(r.LocationCode, r.Timestamp, model.ChannelIndoorTemperature, r.IndoorTempC)
	v.check(r.LocationCode, r.Timestamp, model.ChannelHumidity, r.HumidityPct)
	v.check(r.LocationCode, r.Timestamp, model.ChannelOutdoorTemperature, r.OutdoorTempC)
}

// CheckOutages reports empty intervals and intervals that start before the
// previous one ended. outages must be sorted by start.
func (v *Validator) CheckOutages(locationCode string, outages []model.Outage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, o := range outages {
		if !o.End.After(o.Start) {
			v.record(Issue{
				Kind:      IssueOutageOverlap,
				Entity:    locationCode,
				Timestamp: o.Start,
				Message:   "empty outage interval",
			})
			continue
		}
		if i > 0 && o.Start.Before(outages[i-1].End) {
			v.record(Issue{
				Kind:      IssueOutageOverlap,
				Entity:    locationCode,
				Timestamp: o.Start,
				Message:   fmt.Sprintf("outage starts %s before previous ends", outages[i-1].End.Sub(o.Start)),
			})
		}
	}
}

func (v *Validator) WriteFrame(_ model.Location, f telemetry.Frame) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checkEnvironmentLocked(f.Environment)
	for _, r := range f.Strings {
		v.checkStringLocked(r)
	}
	for _, r := range f.Batteries {
		v.checkBatteryLocked(r)
	}
	return nil
}

func (v *Validator) WriteSummary(sum simulator.SiteSummary) error {
	v.CheckOutages(sum.Location.Code, sum.Outages)
	return nil
}

func (v *Validator) Close() error { return nil }

// Report summarizes everything checked so far.
func (v *Validator) Report() Report {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := Report{
		Rows:      v.rows,
		Issues:    slices.Clone(v.issues),
		Counts:    make(map[IssueKind]int, len(v.counts)),
		Truncated: len(v.issues) < v.total(),
		Columns:   make(map[model.Channel]Summary, len(v.columns)),
	}
	for k, n := range v.counts {
		r.Counts[k] = n
	}
	for ch, values := range v.columns {
		r.Columns[ch] = Summarize(values)
	}
	return r
}

func (v *Validator) total() int {
	n := 0
	for _, c := range v.counts {
		n += c
	}
	return n
}
