package simulator

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"

	"fleet_simulator/internal/config"
	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/seed"
	"fleet_simulator/internal/telemetry"
)

// system is one power system at a site: a rectifier or a UPS.
type system struct {
	code    string
	kind    model.SystemType
	strings int
}

func siteSystems(loc model.Location, f config.Fleet) []system {
	systems := []system{{code: "REC-01", kind: model.SystemRectifier, strings: f.StringsPerRectifier}}
	ups := 1
	if loc.Region == model.RegionCentral {
		ups = 2
	}
	for i := 1; i <= ups; i++ {
		systems = append(systems, system{code: fmt.Sprintf("UPS-%02d", i), kind: model.SystemUPS, strings: f.StringsPerUPS})
	}
	return systems
}

// StringID names string n (1-based) of a system, e.g. DC-BKK-01-REC-01-S1.
func StringID(locCode, systemCode string, n int) string {
	return fmt.Sprintf("%s-%s-S%d", locCode, systemCode, n)
}

// JarID names jar n (1-based) of a string, e.g. DC-BKK-01-REC-01-S1-J01.
func JarID(stringID string, n int) string {
	return fmt.Sprintf("%s-J%02d", stringID, n)
}

// PlanSite lays out the systems, strings and jars of one location. Battery
// models and initial resistance spread are drawn from a generator seeded by
// the location so that plans are stable across runs.
func PlanSite(loc model.Location, cfg config.Config) (telemetry.SiteConfig, error) {
	if !loc.Region.Valid() {
		return telemetry.SiteConfig{}, fmt.Errorf("location %s: unknown region %q", loc.Code, loc.Region)
	}
	sim, f := cfg.Simulation, cfg.Fleet
	rng := seed.NewFor(sim.Seed, loc.Code+"/layout")

	names := make([]string, 0, len(f.ModelMix))
	for name := range f.ModelMix {
		names = append(names, name)
	}
	slices.Sort(names)
	weights := make([]float64, len(names))
	for i, name := range names {
		weights[i] = f.ModelMix[name]
	}
	if len(names) == 0 {
		return telemetry.SiteConfig{}, fmt.Errorf("location %s: empty battery model mix", loc.Code)
	}
	pickModel := distuv.NewCategorical(weights, rng)
	spread := f.ResistanceSpreadPct / 100

	site := telemetry.SiteConfig{
		Location: loc,
		Start:    sim.Start,
		End:      sim.End,
		Interval: sim.SamplingInterval,
		Seed:     sim.Seed,
	}
	for _, sys := range siteSystems(loc, f) {
		for s := 1; s <= sys.strings; s++ {
			bm := model.BatteryModels[names[int(pickModel.Rand())]]
			id := StringID(loc.Code, sys.code, s)
			spec := telemetry.StringSpec{
				StringConfig: telemetry.StringConfig{
					ID:                id,
					SystemType:        sys.kind,
					MaxChargeCurrentA: bm.MaxChargeCurrentA,
				},
				Batteries: make([]degradation.Config, f.JarsPerString),
			}
			for j := range spec.Batteries {
				spec.Batteries[j] = degradation.Config{
					ID:                    JarID(id, j+1),
					InitialCapacityAh:     bm.CapacityAh,
					InitialResistanceMOhm: f.InitialResistanceMOhm * (1 + spreadDraw(rng, spread)),
					Installed:             sim.Start,
					Profile:               degradation.ProfileName(f.Profile),
				}
			}
			site.Strings = append(site.Strings, spec)
		}
	}
	return site, nil
}

// PlanFleet lays out every configured location.
func PlanFleet(cfg config.Config) ([]telemetry.SiteConfig, error) {
	locs := cfg.Fleet.LocationList()
	sites := make([]telemetry.SiteConfig, 0, len(locs))
	for _, loc := range locs {
		site, err := PlanSite(loc, cfg)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}

func spreadDraw(rng *rand.Rand, spread float64) float64 {
	if spread <= 0 {
		return 0
	}
	return distuv.Uniform{Min: -spread, Max: spread, Src: rng}.Rand()
}
