package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/telemetry"
)

// Sink consumes the frames of a batch run. Implementations must be safe for
// use by one goroutine per location.
type Sink interface {
	WriteFrame(loc model.Location, f telemetry.Frame) error
	WriteSummary(s SiteSummary) error
	Close() error
}

// TempStats summarizes a temperature series.
type TempStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// SiteSummary is the end-of-run state of one location.
type SiteSummary struct {
	RunID     string              `json:"run_id"`
	Location  model.Location      `json:"location"`
	Frames    int                 `json:"frames"`
	Outages   []model.Outage      `json:"outages"`
	Batteries []degradation.State `json:"batteries"`
	Failures  []degradation.State `json:"failures"`
	Indoor    TempStats           `json:"indoor"`
	Outdoor   TempStats           `json:"outdoor"`
	JarMax    float64             `json:"jar_max_c"`
	Elapsed   time.Duration       `json:"elapsed"`
}

// Runner generates the full horizon of every site, one goroutine per site.
type Runner struct {
	sites   []telemetry.SiteConfig
	sink    Sink
	metrics *metrics.Metrics
	runID   string

	// Workers caps concurrent sites; zero means one per site.
	Workers int
}

// NewRunner creates a runner writing to sink. m may be nil.
func NewRunner(sites []telemetry.SiteConfig, sink Sink, m *metrics.Metrics) *Runner {
	return &Runner{sites: sites, sink: sink, metrics: m, runID: uuid.NewString()}
}

// RunID identifies this run in summaries and logs.
func (r *Runner) RunID() string { return r.runID }

// Run generates every site and returns the summaries in site order. The
// first error cancels the remaining sites.
func (r *Runner) Run(ctx context.Context) ([]SiteSummary, error) {
	summaries := make([]SiteSummary, len(r.sites))
	g, ctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	}
	for i, cfg := range r.sites {
		g.Go(func() error {
			s, err := r.runSite(ctx, cfg)
			if err != nil {
				return fmt.Errorf("site %s: %w", cfg.Location.Code, err)
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

const cancelCheckEvery = 256

func (r *Runner) runSite(ctx context.Context, cfg telemetry.SiteConfig) (SiteSummary, error) {
	started := time.Now()
	site, err := telemetry.NewSite(cfg)
	if err != nil {
		return SiteSummary{}, err
	}
	logger := log.WithFields(log.Fields{"run_id": r.runID, "location": cfg.Location.Code})
	logger.WithField("outages", len(site.Outages())).Info("Generating site")

	summary := SiteSummary{RunID: r.runID, Location: cfg.Location, Outages: site.Outages()}
	var indoor, outdoor []float64
	jarMax := 0.0
	for {
		if summary.Frames%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return SiteSummary{}, err
			}
		}
		f, ok := site.Next()
		if !ok {
			break
		}
		summary.Frames++
		indoor = append(indoor, f.Environment.IndoorTempC)
		outdoor = append(outdoor, f.Environment.OutdoorTempC)
		for _, b := range f.Batteries {
			jarMax = max(jarMax, b.TemperatureC)
		}
		summary.Failures = append(summary.Failures, f.Failures...)

		if err := r.sink.WriteFrame(cfg.Location, f); err != nil {
			return SiteSummary{}, fmt.Errorf("writing frame %s: %w", f.Timestamp.Format(time.RFC3339), err)
		}
		if r.metrics != nil {
			r.metrics.ObserveFrame(cfg.Location.Code, f)
		}
	}

	for _, str := range site.Strings() {
		for _, j := range str.Jars() {
			summary.Batteries = append(summary.Batteries, j.Battery.Snapshot())
		}
	}
	summary.Indoor = tempStats(indoor)
	summary.Outdoor = tempStats(outdoor)
	summary.JarMax = jarMax
	summary.Elapsed = time.Since(started)

	if err := r.sink.WriteSummary(summary); err != nil {
		return SiteSummary{}, fmt.Errorf("writing summary: %w", err)
	}
	logger.WithFields(log.Fields{
		"frames":   summary.Frames,
		"failures": len(summary.Failures),
		"elapsed":  summary.Elapsed.Round(time.Millisecond),
	}).Info("Site done")
	return summary, nil
}

func tempStats(xs []float64) TempStats {
	if len(xs) == 0 {
		return TempStats{}
	}
	ts := TempStats{Min: xs[0], Max: xs[0]}
	for _, x := range xs[1:] {
		ts.Min = min(ts.Min, x)
		ts.Max = max(ts.Max, x)
	}
	ts.Mean, ts.Std = stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		ts.Std = 0
	}
	return ts
}

// DiscardSink drops everything.
type DiscardSink struct{}

func (DiscardSink) WriteFrame(model.Location, telemetry.Frame) error { return nil }
func (DiscardSink) WriteSummary(SiteSummary) error                   { return nil }
func (DiscardSink) Close() error                                     { return nil }
