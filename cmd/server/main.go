package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"fleet_simulator/internal/config"
	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/metrics"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/store"
	"fleet_simulator/internal/telemetry"
	"fleet_simulator/internal/ws"
)

var version = "No version provided"

var log = logrus.New()

const shutdownTimeout = 5 * time.Second

type argSpec struct {
	Config      string  `arg:"-c,--config" help:"YAML configuration file, defaults are used when empty"`
	EnvFile     string  `arg:"--env-file" default:".env" help:"dotenv file with overrides, ignored when missing"`
	Addr        string  `arg:"-a,--addr" help:"override server.addr"`
	Location    string  `arg:"--location" help:"override server.location, the simulated site code"`
	Speed       float64 `arg:"--speed" help:"override server.speed, simulated seconds per wall second"`
	Autostart   bool    `arg:"--autostart" help:"start the simulation without waiting for a client"`
	History     int     `arg:"--history" default:"10000" help:"rows kept per battery, string and location for the API"`
	FrontendDir string  `arg:"--frontend-dir" default:"frontend/build" help:"directory containing the frontend build"`
	LogLevel    string  `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
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

	m := metrics.New()
	live, err := newLiveSite(cfg, args.History, m)
	if err != nil {
		return err
	}
	live.engine.SetSpeed(cfg.Server.Speed)

	router := newRouter(routerConfig{
		live:           live,
		metrics:        m.Handler(),
		allowedOrigins: cfg.Server.AllowedOrigins,
		frontendDir:    args.FrontendDir,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.Server.Addr,
			"location": cfg.Server.Location,
			"speed":    cfg.Server.Speed,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if args.Autostart {
		live.engine.Start()
	}

	select {
	case err := <-errCh:
		live.engine.Pause()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	live.engine.Pause()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func applyArgs(cfg *config.Config, args argSpec) {
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
	}
	if args.Location != "" {
		cfg.Server.Location = args.Location
	}
	if args.Speed > 0 {
		cfg.Server.Speed = args.Speed
	}
}

// liveSite is one simulated location with everything that listens to it.
type liveSite struct {
	engine *simulator.Engine
	hub    *ws.Hub
	store  *store.Store
	twins  *twinTracker
}

func newLiveSite(cfg config.Config, history int, m *metrics.Metrics) (*liveSite, error) {
	loc, ok := model.LocationByCode(cfg.Server.Location)
	if !ok {
		return nil, fmt.Errorf("%w: unknown server location %q", config.ErrInvalidConfig, cfg.Server.Location)
	}
	siteCfg, err := simulator.PlanSite(loc, cfg)
	if err != nil {
		return nil, err
	}
	site, err := telemetry.NewSite(siteCfg)
	if err != nil {
		return nil, fmt.Errorf("building site %s: %w", loc.Code, err)
	}

	live := &liveSite{
		hub:   ws.NewHub(),
		store: store.NewBounded(history),
		twins: newTwinTracker(site, cfg.Simulation.EOLThreshold, m),
	}
	cb := callbacks{
		ws.NewBridge(live.hub),
		&recorder{store: live.store, twins: live.twins},
	}
	live.engine = simulator.New(site, cb)
	live.engine.SetMetrics(m)
	return live, nil
}

// originChecker accepts the configured origins, any origin when "*" is
// listed, and requests without an Origin header.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
