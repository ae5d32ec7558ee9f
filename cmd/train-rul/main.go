// train-rul fits the neural-network RUL oracle on aging trajectories
// synthesized with the degradation model and writes it as JSON.
//
// Usage:
//
//	train-rul
//	train-rul --batteries 500 --epochs 300 --output model/rul.json
//	train-rul --train-config train.yaml
package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/predictor"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Output      string  `arg:"-o,--output" default:"model/rul.json" help:"model JSON path"`
	TrainConfig string  `arg:"--train-config" help:"YAML file overriding optimizer settings"`
	Batteries   int     `arg:"-b,--batteries" help:"synthetic batteries to age"`
	MaxYears    int     `arg:"--max-years" help:"aging horizon per battery"`
	MinTempC    float64 `arg:"--min-temp" help:"lowest average temperature drawn, °C"`
	MaxTempC    float64 `arg:"--max-temp" help:"highest average temperature drawn, °C"`
	EOL         float64 `arg:"--eol" help:"end-of-life SOH threshold, percent"`
	Epochs      int     `arg:"-e,--epochs" help:"override training epochs"`
	Seed        uint64  `arg:"-s,--seed" default:"1" help:"seed for data synthesis and weight init"`
	Holdout     int     `arg:"--holdout" default:"50" help:"batteries in the evaluation set, 0 to skip"`
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

	dsCfg := datasetConfig(args)
	trainCfg, err := trainConfig(args)
	if err != nil {
		return err
	}

	samples := predictor.SynthesizeSamples(dsCfg)
	log.WithFields(logrus.Fields{
		"batteries": dsCfg.Batteries,
		"samples":   len(samples),
		"years":     dsCfg.MaxYears,
	}).Info("Synthesized training data")

	p, res, err := predictor.TrainRULPredictor(samples, trainCfg, args.Seed)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"best_epoch":   res.BestEpoch,
		"val_loss":     fmt.Sprintf("%.4f", res.BestLoss),
		"early_stop":   res.Stopped,
		"residual_std": fmt.Sprintf("%.1f", p.ResidualStdDays()),
		"confidence":   fmt.Sprintf("%.3f", p.Confidence()),
	}).Info("Training complete")

	if args.Holdout > 0 {
		holdCfg := dsCfg
		holdCfg.Batteries = args.Holdout
		holdCfg.Seed = dsCfg.Seed + 1_000_003
		mae, rmse, err := evaluate(p, predictor.SynthesizeSamples(holdCfg))
		if err != nil {
			log.WithError(err).Warn("Holdout evaluation skipped")
		} else {
			log.WithFields(logrus.Fields{
				"mae_days":  fmt.Sprintf("%.1f", mae),
				"rmse_days": fmt.Sprintf("%.1f", rmse),
			}).Info("Holdout evaluation")
		}
	}

	data, err := p.Save()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(args.Output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(args.Output, data, 0o644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	log.Info("Model written to ", args.Output)
	return nil
}

func datasetConfig(args argSpec) predictor.DatasetConfig {
	cfg := predictor.DefaultDatasetConfig()
	cfg.Seed = args.Seed
	if args.Batteries > 0 {
		cfg.Batteries = args.Batteries
	}
	if args.MaxYears > 0 {
		cfg.MaxYears = args.MaxYears
	}
	if args.MinTempC > 0 {
		cfg.MinTempC = args.MinTempC
	}
	if args.MaxTempC > 0 {
		cfg.MaxTempC = args.MaxTempC
	}
	if args.EOL > 0 {
		cfg.EOLThreshold = args.EOL
	}
	return cfg
}

// trainConfig layers the YAML file and the epochs flag over the defaults.
func trainConfig(args argSpec) (predictor.TrainConfig, error) {
	cfg := predictor.DefaultTrainConfig()
	if args.TrainConfig != "" {
		data, err := os.ReadFile(args.TrainConfig)
		if err != nil {
			return cfg, fmt.Errorf("reading train config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing train config: %w", err)
		}
	}
	if args.Epochs > 0 {
		cfg.Epochs = args.Epochs
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 || cfg.LearningRate <= 0 {
		return cfg, fmt.Errorf("train config needs positive epochs, batch_size and learning_rate, got %+v", cfg)
	}
	return cfg, nil
}

// evaluate returns the mean absolute and root mean square error in days.
func evaluate(p *predictor.RULPredictor, samples []predictor.Sample) (mae, rmse float64, err error) {
	if len(samples) == 0 {
		return 0, 0, errors.New("no holdout samples reached end of life")
	}
	abs := make([]float64, len(samples))
	sq := make([]float64, len(samples))
	for i, s := range samples {
		days, _, err := p.PredictRUL(s.Features)
		if err != nil {
			return 0, 0, err
		}
		e := days - s.RULDays
		abs[i] = math.Abs(e)
		sq[i] = e * e
	}
	return stat.Mean(abs, nil), math.Sqrt(stat.Mean(sq, nil)), nil
}
