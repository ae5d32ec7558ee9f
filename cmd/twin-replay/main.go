// twin-replay runs the digital twin and hybrid RUL predictor over one jar's
// measurements. Input is either a twin CSV (timestamp, voltage, current,
// temperature) or a pair of generated battery and string telemetry files.
//
// Usage:
//
//	twin-replay --input jar.csv
//	twin-replay --battery-file output/DC-BKK-01/battery_telemetry.csv.gz \
//	    --string-file output/DC-BKK-01/string_telemetry.csv.gz --battery-id DC-BKK-01-REC-01-S1-J01
//	twin-replay --input jar.csv --oracle model/rul.json --policy adaptive --csv
package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"fleet_simulator/internal/hybrid"
	"fleet_simulator/internal/ingest"
	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/predictor"
	"fleet_simulator/internal/twin"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Input       string  `arg:"-i,--input" help:"twin CSV with timestamp, voltage, current and temperature columns"`
	BatteryFile string  `arg:"--battery-file" help:"generated battery telemetry CSV"`
	StringFile  string  `arg:"--string-file" help:"generated string telemetry CSV"`
	BatteryID   string  `arg:"--battery-id" help:"jar to replay from the generated files"`
	Oracle      string  `arg:"--oracle" help:"trained RUL model JSON; the twin alone is used when empty"`
	Policy      string  `arg:"-p,--policy" default:"weighted" help:"fusion policy (weighted, bayesian, adaptive)"`
	NoEKF       bool    `arg:"--no-ekf" help:"track SOC by coulomb counting only"`
	CapacityAh  float64 `arg:"--capacity" default:"120" help:"nominal capacity in Ah"`
	InitialSOC  float64 `arg:"--initial-soc" default:"100" help:"starting SOC estimate, percent"`
	InitialSOH  float64 `arg:"--initial-soh" default:"100" help:"starting SOH estimate, percent"`
	AgeDays     float64 `arg:"--age-days" help:"jar age at the first sample, days"`
	EOL         float64 `arg:"--eol" help:"end-of-life SOH threshold, percent"`
	CSV         bool    `arg:"--csv" help:"output every row as CSV"`
	Every       int     `arg:"--every" default:"60" help:"print every Nth row in table output"`
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

	samples, err := loadSamples(args)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.New("no samples to replay")
	}
	log.WithFields(logrus.Fields{
		"samples": len(samples),
		"from":    samples[0].Timestamp.Format(time.RFC3339),
		"to":      samples[len(samples)-1].Timestamp.Format(time.RFC3339),
	}).Info("Samples loaded")

	policy, ok := hybrid.PolicyByName(args.Policy)
	if !ok {
		return fmt.Errorf("unknown policy %q", args.Policy)
	}

	id := args.BatteryID
	if id == "" {
		id = "replay"
	}
	tw, err := twin.New(twin.Config{
		BatteryID:         id,
		NominalCapacityAh: args.CapacityAh,
		NominalVoltageV:   12,
		InitialSOHPct:     args.InitialSOH,
		InitialSOCPct:     args.InitialSOC,
	})
	if err != nil {
		return err
	}

	var oracle hybrid.Oracle
	if args.Oracle != "" {
		data, err := os.ReadFile(args.Oracle)
		if err != nil {
			return fmt.Errorf("reading oracle: %w", err)
		}
		p, err := predictor.LoadRULPredictor(data)
		if err != nil {
			return fmt.Errorf("loading oracle: %w", err)
		}
		oracle = p
	}
	hp := hybrid.NewPredictor(tw, oracle)
	if args.EOL > 0 {
		hp.EOLThreshold = args.EOL
	}

	rows := hp.Replay(samples, policy, !args.NoEKF, args.AgeDays)
	if n := divergedSteps(rows); n > 0 {
		log.WithField("steps", n).Warn("Filter diverged during replay")
	}

	if args.CSV {
		return writeCSV(os.Stdout, rows)
	}
	printTable(os.Stdout, rows, args.Every, hp.EOLThreshold)
	return nil
}

// loadSamples reads the twin CSV, or joins the jar rows of the generated
// files with the rows of the string the jar belongs to.
func loadSamples(args argSpec) ([]model.TwinSample, error) {
	if args.Input != "" {
		p := ingest.NewTwinSampleParser()
		samples, err := parseFile[model.TwinSample](args.Input, p)
		if err != nil {
			return nil, err
		}
		if p.Skipped > 0 {
			log.WithField("skipped", p.Skipped).Warn("Skipped unusable input rows")
		}
		return samples, nil
	}

	if args.BatteryFile == "" || args.StringFile == "" || args.BatteryID == "" {
		return nil, errors.New("either --input or --battery-file, --string-file and --battery-id are required")
	}
	stringID, err := stringOf(args.BatteryID)
	if err != nil {
		return nil, err
	}
	jars, err := parseFile[model.BatteryReading](args.BatteryFile, ingest.BatteryParser{BatteryID: args.BatteryID})
	if err != nil {
		return nil, err
	}
	strs, err := parseFile[model.StringReading](args.StringFile, ingest.StringParser{StringID: stringID})
	if err != nil {
		return nil, err
	}
	return ingest.JoinTwinSamples(jars, strs), nil
}

func parseFile[T any](path string, p ingest.Parser[T]) ([]T, error) {
	f, err := ingest.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return rows, nil
}

// stringOf strips the -Jnn suffix of a jar code.
func stringOf(batteryID string) (string, error) {
	i := strings.LastIndex(batteryID, "-J")
	if i <= 0 {
		return "", fmt.Errorf("battery id %q has no jar suffix", batteryID)
	}
	if _, err := strconv.Atoi(batteryID[i+2:]); err != nil {
		return "", fmt.Errorf("battery id %q has no jar suffix", batteryID)
	}
	return batteryID[:i], nil
}

func divergedSteps(rows []hybrid.ReplayRow) int {
	n := 0
	for _, r := range rows {
		if r.Snapshot.Diverged {
			n++
		}
	}
	return n
}

var csvHeader = []string{
	"timestamp", "soc_pct", "soh_pct", "r0_mohm", "predicted_v", "voltage_error_v",
	"twin_rul_days", "fused_rul_days", "twin_weight", "cycles", "diverged",
}

func writeCSV(w io.Writer, rows []hybrid.ReplayRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, r := range rows {
		s := r.Snapshot
		rec := []string{
			r.Timestamp.Format(time.RFC3339),
			f(s.SOCPct), f(s.SOHPct), f(s.R0 * 1000), f(s.PredictedVoltageV), f(s.VoltageErrorV),
			f(s.RULDays), f(r.Fused.RULDays), f(r.Fused.TwinWeight), f(s.CycleCount),
			strconv.FormatBool(s.Diverged),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func printTable(w io.Writer, rows []hybrid.ReplayRow, every int, eolThreshold float64) {
	if every < 1 {
		every = 1
	}
	fmt.Fprintf(w, "%-20s  %6s  %6s  %7s  %7s  %9s  %9s  %6s\n",
		"Time", "SOC %", "SOH %", "V err", "R0 mΩ", "Twin RUL", "Fused RUL", "w_twin")
	for i, r := range rows {
		if i%every != 0 && i != len(rows)-1 {
			continue
		}
		s := r.Snapshot
		fmt.Fprintf(w, "%-20s  %6.1f  %6.2f  %7.4f  %7.3f  %9.0f  %9.0f  %6.2f\n",
			r.Timestamp.Format("2006-01-02 15:04"), s.SOCPct, s.SOHPct, s.VoltageErrorV,
			s.R0*1000, s.RULDays, r.Fused.RULDays, r.Fused.TwinWeight)
	}

	last := rows[len(rows)-1]
	status := "healthy"
	switch {
	case last.Snapshot.SOHPct <= eolThreshold:
		status = "end of life"
	case last.Snapshot.Diverged:
		status = "filter diverged"
	}
	fmt.Fprintf(w, "\nFinal: SOH %.2f%%, fused RUL %.0f days (%s policy), %s\n",
		last.Snapshot.SOHPct, last.Fused.RULDays, last.Fused.Policy, status)
}
