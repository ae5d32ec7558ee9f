package environment

import (
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"fleet_simulator/internal/model"
)

// PowerOutages draws the grid outages in [start, end). The count is Poisson
// in the regional rate, rainy-season outages cluster around afternoon storms
// and durations are log-normal around the regional mean, capped at 8 hours.
// The result is sorted and non-overlapping.
func (m *Model) PowerOutages(start, end time.Time) []model.Outage {
	if !end.After(start) {
		return nil
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}

	years := end.Sub(start).Hours() / 24 / 365.25
	count := int(distuv.Poisson{Lambda: m.grid.OutagesPerYear * years, Src: m.rng}.Rand())

	duration := distuv.LogNormal{Mu: math.Log(m.grid.AvgDurationMin), Sigma: outageDurationStd, Src: m.rng}
	stormHour := distuv.NewCategorical(stormHourWeights, m.rng)

	firstDay := start.In(Bangkok)
	firstDay = time.Date(firstDay.Year(), firstDay.Month(), firstDay.Day(), 0, 0, 0, 0, Bangkok)

	var outages []model.Outage
	add := func(day time.Time, hour int) {
		t := time.Date(day.Year(), day.Month(), day.Day(), hour, m.rng.IntN(60), 0, 0, Bangkok)
		minutes := math.Min(math.Max(duration.Rand(), 1), maxOutageMinutes)
		o := model.Outage{Start: t, End: t.Add(time.Duration(minutes * float64(time.Minute)))}
		if o.Start.Before(start) {
			o.Start = start
		}
		if o.End.After(end) {
			o.End = end
		}
		if o.End.After(o.Start) {
			outages = append(outages, o)
		}
	}

	// A rainy-season outage may take the next one of the count as a
	// follow-up on the same stormy day, so the mean stays at the regional rate.
	for n := 0; n < count; n++ {
		day := firstDay.AddDate(0, 0, m.rng.IntN(days))
		if SeasonOf(day) != SeasonRainy {
			add(day, m.rng.IntN(24))
			continue
		}
		add(day, int(stormHour.Rand()))
		if n+1 < count && m.rng.Float64() < stormFollowUpP {
			add(day, int(stormHour.Rand()))
			n++
		}
	}

	outages = mergeOutages(outages)
	log.WithFields(log.Fields{
		"region":  m.region,
		"outages": len(outages),
		"start":   start.Format(time.DateOnly),
		"end":     end.Format(time.DateOnly),
	}).Debug("Generated power outages")
	return outages
}

// mergeOutages sorts by start and trims each interval to begin no earlier
// than the end of the one before it. Fully covered intervals are dropped.
func mergeOutages(outages []model.Outage) []model.Outage {
	sort.Slice(outages, func(i, j int) bool {
		return outages[i].Start.Before(outages[j].Start)
	})
	out := outages[:0]
	for _, o := range outages {
		if n := len(out); n > 0 && o.Start.Before(out[n-1].End) {
			o.Start = out[n-1].End
		}
		if o.End.After(o.Start) {
			out = append(out, o)
		}
	}
	return out
}

// GridAvailable reports whether ts falls outside every outage. outages must
// be sorted, as returned by PowerOutages.
func GridAvailable(outages []model.Outage, ts time.Time) bool {
	i := sort.Search(len(outages), func(i int) bool {
		return outages[i].End.After(ts)
	})
	return i == len(outages) || ts.Before(outages[i].Start)
}
