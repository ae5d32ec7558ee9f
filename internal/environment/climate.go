// Package environment models the ambient climate, cooling plant and grid
// supply of one Thai data centre.
package environment

import (
	"time"

	"fleet_simulator/internal/model"
)

// Bangkok is Indochina Time. Hour-of-day and season are evaluated here.
var Bangkok = time.FixedZone("ICT", 7*60*60)

// Season is a Thai meteorological season.
type Season string

const (
	SeasonHot   Season = "hot"
	SeasonRainy Season = "rainy"
	SeasonCool  Season = "cool"
)

type seasonInfo struct {
	tempMin, tempMax         float64
	humidityMin, humidityMax float64
	hvacLoadFactor           float64
}

var seasons = map[Season]seasonInfo{
	SeasonHot:   {tempMin: 30, tempMax: 40, humidityMin: 40, humidityMax: 70, hvacLoadFactor: 1.3},
	SeasonRainy: {tempMin: 26, tempMax: 35, humidityMin: 70, humidityMax: 95, hvacLoadFactor: 1.1},
	SeasonCool:  {tempMin: 22, tempMax: 32, humidityMin: 50, humidityMax: 75, hvacLoadFactor: 0.8},
}

// SeasonOf returns the season for t in Bangkok time:
// March-May hot, June-October rainy, November-February cool.
func SeasonOf(t time.Time) Season {
	switch m := t.In(Bangkok).Month(); {
	case m >= time.March && m <= time.May:
		return SeasonHot
	case m >= time.June && m <= time.October:
		return SeasonRainy
	default:
		return SeasonCool
	}
}

// Climate holds the regional offsets applied to the seasonal ranges.
type Climate struct {
	TempOffsetC       float64
	HumidityOffsetPct float64
	AltitudeM         float64
}

var regionalClimate = map[model.Region]Climate{
	model.RegionNorthern:     {TempOffsetC: -2.0, HumidityOffsetPct: -10, AltitudeM: 310},
	model.RegionNortheastern: {TempOffsetC: 1.0, HumidityOffsetPct: -5, AltitudeM: 165},
	model.RegionCentral:      {TempOffsetC: 1.5, HumidityOffsetPct: 5, AltitudeM: 5},
	model.RegionEastern:      {TempOffsetC: 0.5, HumidityOffsetPct: 10, AltitudeM: 10},
	model.RegionSouthern:     {TempOffsetC: 0.0, HumidityOffsetPct: 15, AltitudeM: 20},
}

// GridReliability describes the regional utility supply.
type GridReliability struct {
	OutagesPerYear float64
	AvgDurationMin float64
}

var gridReliability = map[model.Region]GridReliability{
	model.RegionNorthern:     {OutagesPerYear: 4, AvgDurationMin: 45},
	model.RegionNortheastern: {OutagesPerYear: 6, AvgDurationMin: 60},
	model.RegionCentral:      {OutagesPerYear: 2, AvgDurationMin: 30},
	model.RegionEastern:      {OutagesPerYear: 3, AvgDurationMin: 40},
	model.RegionSouthern:     {OutagesPerYear: 8, AvgDurationMin: 90},
}

type hvacPattern struct {
	efficiency     float64
	tempControlStd float64
}

var hvacPatterns = map[model.HVACStatus]hvacPattern{
	model.HVACRunning:  {efficiency: 0.95, tempControlStd: 1.0},
	model.HVACDegraded: {efficiency: 0.75, tempControlStd: 3.0},
	model.HVACFault:    {efficiency: 0.0, tempControlStd: 8.0},
}

// IndoorSetpointC is the data hall target temperature.
const IndoorSetpointC = 24.0

// Storm likelihood by hour of day, peaking mid-afternoon.
var stormHourWeights = []float64{
	0.01, 0.01, 0.01, 0.01, 0.01, 0.02,
	0.02, 0.03, 0.04, 0.05, 0.06, 0.07,
	0.08, 0.10, 0.12, 0.11, 0.09, 0.07,
	0.05, 0.04, 0.03, 0.02, 0.02, 0.01,
}
