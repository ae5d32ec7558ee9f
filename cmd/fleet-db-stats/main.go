// fleet-db-stats prints what a generated SQLite database holds: row counts,
// per-location coverage and outages, and battery health per profile.
//
// Usage:
//
//	fleet-db-stats output/fleet.db
//	fleet-db-stats --json output/fleet.db
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"fleet_simulator/internal/logging"
	"fleet_simulator/internal/store"
)

var version = "No version provided"

var log = logrus.New()

type argSpec struct {
	Path     string `arg:"positional,required" help:"SQLite database written by generate"`
	JSON     bool   `arg:"--json" help:"print the statistics as JSON"`
	LogLevel string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
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

// stats is everything printed about one database.
type stats struct {
	Tables    map[string]int       `json:"tables"`
	Locations []store.LocationSpan `json:"locations"`
	Profiles  []store.ProfileStats `json:"profiles"`
	Failures  map[string]int       `json:"failures"`
}

func runMain() error {
	args := procArgs()
	logging.Configure(args.LogLevel, log)

	if _, err := os.Stat(args.Path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("database %s does not exist", args.Path)
	}
	ctx := context.Background()
	db, err := store.OpenSQLite(ctx, args.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := collect(ctx, db)
	if err != nil {
		return err
	}
	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStats(os.Stdout, args.Path, st)
	return nil
}

func collect(ctx context.Context, db *store.SQLiteStore) (stats, error) {
	var st stats
	var err error
	if st.Tables, err = db.TableCounts(ctx); err != nil {
		return st, err
	}
	if st.Locations, err = db.LocationSpans(ctx); err != nil {
		return st, err
	}
	if st.Profiles, err = db.ProfileStats(ctx); err != nil {
		return st, err
	}
	if st.Failures, err = db.FailureModes(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func printStats(w io.Writer, path string, st stats) {
	fmt.Fprintf(w, "Database: %s\n\n", path)

	fmt.Fprintln(w, "Tables")
	tables := make([]string, 0, len(st.Tables))
	for t := range st.Tables {
		tables = append(tables, t)
	}
	slices.Sort(tables)
	for _, t := range tables {
		fmt.Fprintf(w, "  %-22s %10d\n", t, st.Tables[t])
	}

	fmt.Fprintln(w, "\nLocations")
	if len(st.Locations) == 0 {
		fmt.Fprintln(w, "  (no environment rows)")
	}
	for _, l := range st.Locations {
		fmt.Fprintf(w, "  %-10s %s to %s  %7d rows  %5.1f%% grid down  %3d outages (%.1f h)\n",
			l.LocationCode, l.First.Format(time.DateTime), l.Last.Format(time.DateTime), l.Rows,
			pct(l.GridDownRows, l.Rows), l.OutageCount, l.OutageHours)
	}

	fmt.Fprintln(w, "\nBattery health by profile")
	if len(st.Profiles) == 0 {
		fmt.Fprintln(w, "  (no battery states)")
	}
	for _, p := range st.Profiles {
		fmt.Fprintf(w, "  %-12s %5d jars  %4d failed  SOH avg %6.2f%% min %6.2f%%  RUL avg %6.0f d\n",
			p.Profile, p.Batteries, p.Failed, p.AvgSOHPct, p.MinSOHPct, p.AvgRULDays)
	}

	if len(st.Failures) > 0 {
		fmt.Fprintln(w, "\nFailure modes")
		modes := make([]string, 0, len(st.Failures))
		for m := range st.Failures {
			modes = append(modes, m)
		}
		slices.Sort(modes)
		for _, m := range modes {
			fmt.Fprintf(w, "  %-16s %5d\n", m, st.Failures[m])
		}
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
