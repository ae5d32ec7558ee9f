package predictor

import (
	"fmt"
	"time"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/seed"
)

// DatasetConfig controls synthesized aging trajectories.
type DatasetConfig struct {
	Batteries     int
	MaxYears      int
	MinTempC      float64
	MaxTempC      float64
	MaxMonthlyDoD float64 // deepest outage discharge, percent
	EOLThreshold  float64
	Seed          uint64
}

// DefaultDatasetConfig covers Thai indoor temperatures and occasional outages.
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		Batteries:     200,
		MaxYears:      20,
		MinTempC:      22,
		MaxTempC:      36,
		MaxMonthlyDoD: 60,
		EOLThreshold:  degradation.DefaultEOLThreshold,
		Seed:          1,
	}
}

const daysPerMonth = 30

// SynthesizeSamples ages batteries month by month with the degradation model
// and labels every month before end of life with the days remaining until
// SOH first reaches the threshold. Batteries that never reach it within the
// horizon are censored and contribute nothing.
func SynthesizeSamples(cfg DatasetConfig) []Sample {
	installed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var samples []Sample
	for i := range cfg.Batteries {
		id := fmt.Sprintf("RUL-%04d", i)
		rng := seed.NewFor(cfg.Seed, id)
		b, err := degradation.NewBattery(degradation.Config{
			ID:                    id,
			InitialCapacityAh:     120,
			InitialResistanceMOhm: 3.5,
			Installed:             installed,
		}, rng)
		if err != nil {
			continue
		}
		temp := cfg.MinTempC + rng.Float64()*(cfg.MaxTempC-cfg.MinTempC)

		var trajectory []model.RULFeatures
		eolDay := -1.0
		for month := range cfg.MaxYears * 12 {
			if b.SOHPct <= cfg.EOLThreshold {
				eolDay = b.CalendarAgeDays
				break
			}
			trajectory = append(trajectory, model.RULFeatures{
				SOHPct:          b.SOHPct,
				ResistanceRatio: b.ResistanceMOhm / 3.5,
				TemperatureC:    temp,
				CycleCount:      b.Cycles,
				AgeDays:         float64(month * daysPerMonth),
			})

			b.UpdateCalendarAging(daysPerMonth*24, temp, 13.65)
			for range rng.IntN(3) {
				dod := 10 + rng.Float64()*(cfg.MaxMonthlyDoD-10)
				b.UpdateCycleAging(b.Config().InitialCapacityAh*dod/100, dod, temp)
			}
		}
		if eolDay < 0 {
			continue
		}
		for _, f := range trajectory {
			samples = append(samples, Sample{Features: f, RULDays: eolDay - f.AgeDays})
		}
	}
	return samples
}
