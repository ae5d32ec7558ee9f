// Package store keeps telemetry rows in memory or in SQLite for querying.
package store

import (
	"slices"
	"sort"
	"sync"
	"time"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
)

// Store holds telemetry rows in memory, keyed by battery, string or
// location code and sorted by timestamp.
type Store struct {
	mu          sync.RWMutex
	batteries   map[string][]model.BatteryReading
	strings     map[string][]model.StringReading
	environment map[string][]model.EnvironmentReading
	states      map[string]degradation.State

	// maxPerEntity bounds every series, oldest rows dropped first. Zero keeps everything.
	maxPerEntity int
}

func New() *Store {
	return NewBounded(0)
}

// NewBounded keeps at most n rows per entity.
func NewBounded(n int) *Store {
	return &Store{
		batteries:    make(map[string][]model.BatteryReading),
		strings:      make(map[string][]model.StringReading),
		environment:  make(map[string][]model.EnvironmentReading),
		states:       make(map[string]degradation.State),
		maxPerEntity: n,
	}
}

func batteryTime(r model.BatteryReading) time.Time         { return r.Timestamp }
func stringTime(r model.StringReading) time.Time           { return r.Timestamp }
func environmentTime(r model.EnvironmentReading) time.Time { return r.Timestamp }

// add appends r and restores time order when r arrived out of order.
func add[T any](series []T, r T, ts func(T) time.Time, limit int) []T {
	series = append(series, r)
	if n := len(series); n > 1 && ts(series[n-1]).Before(ts(series[n-2])) {
		sort.SliceStable(series, func(i, j int) bool {
			return ts(series[i]).Before(ts(series[j]))
		})
	}
	if limit > 0 && len(series) > limit {
		series = slices.Delete(series, 0, len(series)-limit)
	}
	return series
}

// inRange returns a copy of the rows in [start, end).
func inRange[T any](all []T, start, end time.Time, ts func(T) time.Time) []T {
	startIdx := sort.Search(len(all), func(i int) bool {
		return !ts(all[i]).Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !ts(all[i]).Before(end)
	})
	if startIdx >= endIdx {
		return nil
	}
	result := make([]T, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result
}

// AddBattery stores one jar row.
func (s *Store) AddBattery(r model.BatteryReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batteries[r.BatteryID] = add(s.batteries[r.BatteryID], r, batteryTime, s.maxPerEntity)
}

// AddString stores one string row.
func (s *Store) AddString(r model.StringReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[r.StringID] = add(s.strings[r.StringID], r, stringTime, s.maxPerEntity)
}

// AddEnvironment stores one location row.
func (s *Store) AddEnvironment(r model.EnvironmentReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.environment[r.LocationCode] = add(s.environment[r.LocationCode], r, environmentTime, s.maxPerEntity)
}

// AddFrame stores every row of a site frame.
func (s *Store) AddFrame(f telemetry.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := f.Environment
	s.environment[env.LocationCode] = add(s.environment[env.LocationCode], env, environmentTime, s.maxPerEntity)
	for _, r := range f.Strings {
		s.strings[r.StringID] = add(s.strings[r.StringID], r, stringTime, s.maxPerEntity)
	}
	for _, r := range f.Batteries {
		s.batteries[r.BatteryID] = add(s.batteries[r.BatteryID], r, batteryTime, s.maxPerEntity)
	}
	for _, st := range f.Failures {
		s.states[st.ID] = st
	}
}

// SetBatteryStates records aging snapshots, replacing older ones.
func (s *Store) SetBatteryStates(states []degradation.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		s.states[st.ID] = st
	}
}

// BatteryState returns the latest aging snapshot of a jar.
func (s *Store) BatteryState(id string) (degradation.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// BatteryIDs returns every jar with rows, sorted.
func (s *Store) BatteryIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.batteries))
	for id := range s.batteries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LocationCodes returns every location with rows, sorted.
func (s *Store) LocationCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.environment))
	for code := range s.environment {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// BatteryCount returns the number of rows held for a jar.
func (s *Store) BatteryCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batteries[id])
}

// BatteryReadingsInRange returns jar rows between start (inclusive) and end (exclusive).
func (s *Store) BatteryReadingsInRange(id string, start, end time.Time) []model.BatteryReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inRange(s.batteries[id], start, end, batteryTime)
}

// StringReadingsInRange returns string rows between start (inclusive) and end (exclusive).
func (s *Store) StringReadingsInRange(id string, start, end time.Time) []model.StringReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inRange(s.strings[id], start, end, stringTime)
}

// EnvironmentInRange returns location rows between start (inclusive) and end (exclusive).
func (s *Store) EnvironmentInRange(code string, start, end time.Time) []model.EnvironmentReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inRange(s.environment[code], start, end, environmentTime)
}

// LatestBattery returns the most recent row of a jar.
func (s *Store) LatestBattery(id string) (model.BatteryReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.batteries[id]
	if len(all) == 0 {
		return model.BatteryReading{}, false
	}
	return all[len(all)-1], true
}

// BatteryAt returns the most recent jar row at or before t.
func (s *Store) BatteryAt(id string, t time.Time) (model.BatteryReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.batteries[id]
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].Timestamp.After(t)
	})
	if idx == 0 {
		return model.BatteryReading{}, false
	}
	return all[idx-1], true
}

// LatestEnvironment returns the most recent row of a location.
func (s *Store) LatestEnvironment(code string) (model.EnvironmentReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.environment[code]
	if len(all) == 0 {
		return model.EnvironmentReading{}, false
	}
	return all[len(all)-1], true
}

// TimeRange returns the span covered by the environment rows of every location.
func (s *Store) TimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var start, end time.Time
	first := true
	for _, rows := range s.environment {
		if len(rows) == 0 {
			continue
		}
		rStart, rEnd := rows[0].Timestamp, rows[len(rows)-1].Timestamp
		if first || rStart.Before(start) {
			start = rStart
		}
		if first || rEnd.After(end) {
			end = rEnd
		}
		first = false
	}
	if first {
		return model.TimeRange{}, false
	}
	return model.TimeRange{Start: start, End: end}, true
}
