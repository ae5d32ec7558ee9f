// profile-compare ages one jar per degradation profile in every region and
// prints how health and remaining life diverge over the years.
//
// Usage:
//
//	profile-compare
//	profile-compare --years 15 --seed 7
//	profile-compare --regions central,southern --no-failures
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/environment"
	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/seed"
)

var version = "No version provided"

var log = logrus.New()

const (
	floatVoltage  = 13.65
	backupHours   = 4.0
	maxOutageDoD  = 80.0
	samplesPerDay = 4
	initialRMOhm  = 3.5
	nominalCapAh  = 120.0
)

type argSpec struct {
	Years      int      `arg:"-y,--years" default:"10" help:"aging horizon"`
	Regions    []string `arg:"-r,--regions" help:"regions to compare, all when empty"`
	Seed       uint64   `arg:"-s,--seed" default:"42" help:"base seed"`
	EOL        float64  `arg:"--eol" default:"80" help:"end-of-life SOH threshold, percent"`
	NoFailures bool     `arg:"--no-failures" help:"disable sudden failures"`
	LogLevel   string   `arg:"-l,--log-level" default:"warn" help:"Set the logging level (debug, info, warn, error)"`
}

func (argSpec) Version() string {
	return version
}

func procArgs() argSpec {
	args := argSpec{}
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	args := procArgs()
	logging.Configure(args.LogLevel, log)

	regions, err := parseRegions(args.Regions)
	if err != nil {
		return err
	}
	cfg := agingConfig{
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, environment.Bangkok),
		Years:    args.Years,
		Seed:     args.Seed,
		EOL:      args.EOL,
		Failures: !args.NoFailures,
	}
	results, err := compare(context.Background(), regions, cfg)
	if err != nil {
		return err
	}
	printTable(os.Stdout, results, cfg)
	return nil
}

func parseRegions(names []string) ([]model.Region, error) {
	if len(names) == 0 {
		return model.Regions, nil
	}
	out := make([]model.Region, 0, len(names))
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			r := model.Region(strings.TrimSpace(part))
			if r == "" {
				continue
			}
			if !r.Valid() {
				return nil, fmt.Errorf("%w: %q", environment.ErrUnknownRegion, r)
			}
			out = append(out, r)
		}
	}
	return out, nil
}

type agingConfig struct {
	Start    time.Time
	Years    int
	Seed     uint64
	EOL      float64
	Failures bool
}

// result is one jar's trajectory. SOHByYear[i] is the SOH at the end of
// year i+1.
type result struct {
	Region     model.Region
	Profile    degradation.ProfileName
	SOHByYear  []float64
	EOLDay     float64 // -1 when never reached
	Outages    int
	Final      degradation.State
	AvgIndoorC float64
}

// compare ages every region concurrently, one jar per profile each.
func compare(ctx context.Context, regions []model.Region, cfg agingConfig) ([]result, error) {
	profiles := degradation.Profiles()
	results := make([]result, len(regions)*len(profiles))

	g, ctx := errgroup.WithContext(ctx)
	for ri, region := range regions {
		g.Go(func() error {
			for pi, p := range profiles {
				if err := ctx.Err(); err != nil {
					return err
				}
				r, err := age(region, p.Name, cfg)
				if err != nil {
					return err
				}
				results[ri*len(profiles)+pi] = r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// age runs one jar day by day through the region's indoor climate with the
// region's outages as discharge cycles.
func age(region model.Region, profile degradation.ProfileName, cfg agingConfig) (result, error) {
	id := fmt.Sprintf("%s-%s", region, profile)
	env, err := environment.NewModel(region, seed.NewFor(cfg.Seed, id+"-env"))
	if err != nil {
		return result{}, err
	}
	b, err := degradation.NewBattery(degradation.Config{
		ID:                    id,
		InitialCapacityAh:     nominalCapAh,
		InitialResistanceMOhm: initialRMOhm,
		Installed:             cfg.Start,
		Profile:               profile,
	}, seed.NewFor(cfg.Seed, id))
	if err != nil {
		return result{}, err
	}

	end := cfg.Start.AddDate(cfg.Years, 0, 0)
	outages := env.PowerOutages(cfg.Start, end)
	outageHours := make(map[string]float64)
	for _, o := range outages {
		outageHours[o.Start.In(environment.Bangkok).Format(time.DateOnly)] += o.Duration().Hours()
	}

	r := result{Region: region, Profile: profile, EOLDay: -1, Outages: len(outages)}
	status := model.HVACRunning
	var outdoor *float64
	var indoorSum float64
	days := 0
	for day := cfg.Start; day.Before(end); day = day.AddDate(0, 0, 1) {
		var dayIndoor float64
		for i := range samplesPerDay {
			ts := day.Add(time.Duration(i*24/samplesPerDay) * time.Hour)
			t := env.AmbientTemperature(ts, outdoor)
			outdoor = &t
			var indoor float64
			status, indoor = env.SimulateHVAC(ts, status, t)
			dayIndoor += indoor
		}
		dayIndoor /= samplesPerDay
		indoorSum += dayIndoor
		days++

		b.UpdateCalendarAging(24, dayIndoor, floatVoltage)
		if h := outageHours[day.Format(time.DateOnly)]; h > 0 {
			dod := min(h/backupHours*100, maxOutageDoD)
			b.UpdateCycleAging(nominalCapAh*dod/100, dod, dayIndoor)
		}
		if cfg.Failures {
			b.CheckSuddenFailure(day)
		}

		if r.EOLDay < 0 && b.SOHPct <= cfg.EOL {
			r.EOLDay = b.CalendarAgeDays
		}
		if yearEnd := cfg.Start.AddDate(len(r.SOHByYear)+1, 0, 0); !day.AddDate(0, 0, 1).Before(yearEnd) {
			r.SOHByYear = append(r.SOHByYear, b.SOHPct)
		}
	}
	if days > 0 {
		r.AvgIndoorC = indoorSum / float64(days)
	}
	r.Final = b.Snapshot()
	r.Final.RULDays = b.EstimateRULDays(cfg.EOL)
	return r, nil
}

func printTable(w io.Writer, results []result, cfg agingConfig) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Degradation Profile Comparison")
	fmt.Fprintf(w, "  Horizon: %d years from %s, EOL at %.0f%% SOH, seed %d\n",
		cfg.Years, cfg.Start.Format(time.DateOnly), cfg.EOL, cfg.Seed)
	fmt.Fprintln(w)

	marks := yearMarks(cfg.Years)
	fmt.Fprintf(w, " %-13s │ %-11s │ %7s │ %7s", "Region", "Profile", "Indoor", "Outages")
	for _, y := range marks {
		fmt.Fprintf(w, " │ %7s", fmt.Sprintf("SOH y%d", y))
	}
	fmt.Fprintf(w, " │ %9s │ %-15s\n", "EOL (yr)", "Failure")
	fmt.Fprintln(w, strings.Repeat("─", 56+10*len(marks)+30))

	for _, r := range results {
		fmt.Fprintf(w, " %-13s │ %-11s │ %5.1f°C │ %7d", r.Region, r.Profile, r.AvgIndoorC, r.Outages)
		for _, y := range marks {
			fmt.Fprintf(w, " │ %6.1f%%", r.SOHByYear[y-1])
		}
		eol := "-"
		if r.EOLDay >= 0 {
			eol = fmt.Sprintf("%.1f", r.EOLDay/365)
		}
		failure := "-"
		if r.Final.Failed {
			failure = string(r.Final.FailureMode)
		}
		fmt.Fprintf(w, " │ %9s │ %-15s\n", eol, failure)
	}
	fmt.Fprintln(w)
}

// yearMarks picks up to five evenly spread years, always including the last.
func yearMarks(years int) []int {
	if years <= 5 {
		out := make([]int, years)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	out := make([]int, 0, 5)
	for i := 1; i <= 5; i++ {
		out = append(out, max(1, i*years/5))
	}
	return out
}
