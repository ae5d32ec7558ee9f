package main

import (
	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/store"
)

// callbacks forwards every engine event to each callback in order.
type callbacks []simulator.Callback

func (c callbacks) OnState(s simulator.State) {
	for _, cb := range c {
		cb.OnState(s)
	}
}

func (c callbacks) OnEnvironment(r model.EnvironmentReading) {
	for _, cb := range c {
		cb.OnEnvironment(r)
	}
}

func (c callbacks) OnStringReading(r model.StringReading) {
	for _, cb := range c {
		cb.OnStringReading(r)
	}
}

func (c callbacks) OnBatteryReading(r model.BatteryReading) {
	for _, cb := range c {
		cb.OnBatteryReading(r)
	}
}

func (c callbacks) OnFailure(s degradation.State) {
	for _, cb := range c {
		cb.OnFailure(s)
	}
}

func (c callbacks) OnSummary(s simulator.Summary) {
	for _, cb := range c {
		cb.OnSummary(s)
	}
}

// recorder keeps the rows for the HTTP API and feeds the twins.
type recorder struct {
	store *store.Store
	twins *twinTracker
}

func (r *recorder) OnState(simulator.State) {}

func (r *recorder) OnEnvironment(e model.EnvironmentReading) {
	r.store.AddEnvironment(e)
}

func (r *recorder) OnStringReading(s model.StringReading) {
	r.store.AddString(s)
	r.twins.ObserveString(s)
}

func (r *recorder) OnBatteryReading(b model.BatteryReading) {
	r.store.AddBattery(b)
	r.twins.ObserveBattery(b)
}

func (r *recorder) OnFailure(s degradation.State) {
	r.store.SetBatteryStates([]degradation.State{s})
}

func (r *recorder) OnSummary(simulator.Summary) {}
