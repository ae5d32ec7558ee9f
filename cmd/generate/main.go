package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fleet_simulator/internal/config"
	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/report"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/sink"
	"fleet_simulator/internal/validate"
)

var version = "No version provided"

var log = logrus.New()

const (
	reportFile     = "fleet_summary.xlsx"
	validationFile = "validation.json"
	summaryFile    = "run_summary.json"
)

type argSpec struct {
	Config      string   `arg:"-c,--config" help:"YAML configuration file, defaults are used when empty"`
	EnvFile     string   `arg:"--env-file" default:".env" help:"dotenv file with overrides, ignored when missing"`
	OutputDir   string   `arg:"-o,--output-dir" help:"override output.dir"`
	Formats     []string `arg:"-f,--format,separate" help:"override output formats (csv, sqlite, mqtt)"`
	Locations   []string `arg:"--location,separate" help:"limit the run to these site codes"`
	Seed        *uint64  `arg:"--seed" help:"override simulation.seed"`
	Days        int      `arg:"--days" help:"override the horizon length in days"`
	Workers     int      `arg:"-w,--workers" help:"sites generated concurrently, 0 for one per site"`
	Validate    bool     `arg:"--validate" help:"check value ranges and ordering, write validation.json"`
	Report      bool     `arg:"--report" help:"write fleet_summary.xlsx"`
	MetricsAddr string   `arg:"--metrics-addr" help:"serve Prometheus metrics on this address while generating"`
	LogLevel    string   `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
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
	log.Info("Running version: ", version)

	if err := godotenv.Load(args.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", args.EnvFile, err)
	}
	cfg, err := config.Load(args.Config)
	if err != nil {
		return err
	}
	applyArgs(&cfg, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	sites, err := simulator.PlanFleet(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if args.MetricsAddr != "" {
		srv := &http.Server{Addr: args.MetricsAddr, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	sinks, validator, err := buildSinks(ctx, cfg, args.Validate)
	if err != nil {
		return err
	}

	runner := simulator.NewRunner(sites, sinks, m)
	runner.Workers = args.Workers
	log.WithFields(logrus.Fields{
		"run_id":   runner.RunID(),
		"sites":    len(sites),
		"start":    cfg.Simulation.Start.Format(time.RFC3339),
		"end":      cfg.Simulation.End.Format(time.RFC3339),
		"interval": cfg.Simulation.SamplingInterval,
		"formats":  cfg.Output.Formats,
	}).Info("Generating fleet telemetry")

	started := time.Now()
	summaries, runErr := runner.Run(ctx)
	if err := errors.Join(runErr, sinks.Close()); err != nil {
		return err
	}
	logSummaries(summaries)
	log.WithField("elapsed", time.Since(started).Round(time.Millisecond)).Info("Generation complete")

	if err := writeJSON(filepath.Join(cfg.Output.Dir, summaryFile), summaries); err != nil {
		return err
	}
	if validator != nil {
		rep := validator.Report()
		if err := writeJSON(filepath.Join(cfg.Output.Dir, validationFile), rep); err != nil {
			return err
		}
		entry := log.WithFields(logrus.Fields{"rows": rep.Rows, "issues": rep.Counts})
		if rep.OK() {
			entry.Info("Validation passed")
		} else {
			entry.Warn("Validation found issues")
		}
	}
	if cfg.Output.Report {
		meta := report.Metadata{
			RunID:       runner.RunID(),
			GeneratedAt: time.Now().UTC(),
			Start:       cfg.Simulation.Start,
			End:         cfg.Simulation.End,
			Seed:        cfg.Simulation.Seed,
		}
		path := filepath.Join(cfg.Output.Dir, reportFile)
		if err := report.WriteFile(path, meta, summaries); err != nil {
			return err
		}
		log.Info("Report written to ", path)
	}
	return nil
}

// applyArgs overrides configuration fields given on the command line.
func applyArgs(cfg *config.Config, args argSpec) {
	if args.OutputDir != "" {
		cfg.Output.Dir = args.OutputDir
	}
	if len(args.Formats) > 0 {
		cfg.Output.Formats = args.Formats
	}
	if len(args.Locations) > 0 {
		cfg.Fleet.Locations = args.Locations
	}
	if args.Seed != nil {
		cfg.Simulation.Seed = *args.Seed
	}
	if args.Days > 0 {
		cfg.Simulation.End = cfg.Simulation.Start.AddDate(0, 0, args.Days)
	}
	if args.Report {
		cfg.Output.Report = true
	}
}

// buildSinks opens every configured output. The validator, when requested,
// is one of the sinks and is also returned for its report.
func buildSinks(ctx context.Context, cfg config.Config, withValidation bool) (sink.Multi, *validate.Validator, error) {
	var sinks sink.Multi
	fail := func(err error) (sink.Multi, *validate.Validator, error) {
		if cerr := sinks.Close(); cerr != nil {
			log.WithError(cerr).Warn("Closing sinks after setup failure")
		}
		return nil, nil, err
	}

	if cfg.Output.HasFormat(config.FormatCSV) {
		s, err := sink.NewCSVSink(cfg.Output.Dir)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Output.HasFormat(config.FormatSQLite) {
		path := cfg.Output.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Output.Dir, path)
		}
		s, err := sink.NewSQLiteSink(ctx, path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Output.HasFormat(config.FormatMQTT) {
		s, err := sink.ConnectMQTT(sink.MQTTConfig{
			BrokerURL:   cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			KeepAlive:   30 * time.Second,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	var v *validate.Validator
	if withValidation {
		v = validate.New(validate.DefaultLimits(cfg.Fleet.JarsPerString))
		sinks = append(sinks, v)
	}
	return sinks, v, nil
}

func logSummaries(summaries []simulator.SiteSummary) {
	for _, s := range summaries {
		failed := 0
		minSOH := 100.0
		for _, b := range s.Batteries {
			if b.Failed {
				failed++
			}
			minSOH = min(minSOH, b.SOHPct)
		}
		log.WithFields(logrus.Fields{
			"location":  s.Location.Code,
			"frames":    s.Frames,
			"batteries": len(s.Batteries),
			"failed":    failed,
			"min_soh":   fmt.Sprintf("%.2f", minSOH),
			"outages":   len(s.Outages),
			"indoor_c":  fmt.Sprintf("%.1f±%.1f", s.Indoor.Mean, s.Indoor.Std),
		}).Info("Site summary")
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
