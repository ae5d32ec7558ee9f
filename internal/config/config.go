// Package config loads the fleet simulation configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
	FormatMQTT   = "mqtt"
)

// Config is the root of the YAML file.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Fleet      Fleet      `yaml:"fleet"`
	Output     Output     `yaml:"output"`
	MQTT       MQTT       `yaml:"mqtt"`
	Server     Server     `yaml:"server"`
}

// Simulation is the horizon and sampling of a run.
type Simulation struct {
	Start            time.Time     `yaml:"start"`
	End              time.Time     `yaml:"end"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Seed             uint64        `yaml:"seed"`
	EOLThreshold     float64       `yaml:"eol_threshold"`
}

// Fleet is the site topology.
type Fleet struct {
	// Locations are site codes; empty means every default location.
	Locations           []string           `yaml:"locations"`
	StringsPerRectifier int                `yaml:"strings_per_rectifier"`
	StringsPerUPS       int                `yaml:"strings_per_ups"`
	JarsPerString       int                `yaml:"jars_per_string"`
	ModelMix            map[string]float64 `yaml:"model_mix"`
	// Profile forces every jar onto one degradation profile; empty draws per jar.
	Profile               string  `yaml:"profile"`
	InitialResistanceMOhm float64 `yaml:"initial_resistance_mohm"`
	ResistanceSpreadPct   float64 `yaml:"resistance_spread_pct"`
}

// Output selects where generated rows go.
type Output struct {
	Dir        string   `yaml:"dir"`
	Formats    []string `yaml:"formats"`
	SQLitePath string   `yaml:"sqlite_path"`
	Report     bool     `yaml:"report"`
}

// MQTT is the broker used by the mqtt output format.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Server configures live simulation.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Speed          float64  `yaml:"speed"`
	Location       string   `yaml:"location"`
}

func DefaultSimulation() Simulation {
	return Simulation{
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		SamplingInterval: 5 * time.Minute,
		Seed:             42,
		EOLThreshold:     degradation.DefaultEOLThreshold,
	}
}

func DefaultFleet() Fleet {
	return Fleet{
		StringsPerRectifier:   3,
		StringsPerUPS:         6,
		JarsPerString:         24,
		ModelMix:              map[string]float64{"HX12-120": 0.8, "GPL12-100": 0.2},
		InitialResistanceMOhm: 3.5,
		ResistanceSpreadPct:   5,
	}
}

func DefaultConfig() Config {
	return Config{
		Simulation: DefaultSimulation(),
		Fleet:      DefaultFleet(),
		Output: Output{
			Dir:        "output",
			Formats:    []string{FormatCSV},
			SQLitePath: "fleet.db",
		},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "fleet_simulator",
			TopicPrefix: "fleet",
			QoS:         0,
		},
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			Speed:          60,
			Location:       "DC-BKK-01",
		},
	}
}

// Load reads path over the defaults (an empty path keeps the defaults),
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	c.Simulation.Seed = getUintEnv("FLEET_SEED", c.Simulation.Seed)
	c.Simulation.SamplingInterval = getDurationEnv("FLEET_SAMPLING_INTERVAL", c.Simulation.SamplingInterval)
	c.Fleet.JarsPerString = getIntEnv("FLEET_JARS_PER_STRING", c.Fleet.JarsPerString)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Output.Dir = getEnv("OUTPUT_DIR", c.Output.Dir)
}

// Validate rejects parameter violations before any simulation starts.
func (c Config) Validate() error {
	s := c.Simulation
	if !s.End.After(s.Start) {
		return fmt.Errorf("%w: end %s not after start %s", ErrInvalidConfig, s.End, s.Start)
	}
	if s.SamplingInterval <= 0 {
		return fmt.Errorf("%w: sampling_interval must be positive", ErrInvalidConfig)
	}
	if s.EOLThreshold <= 0 || s.EOLThreshold >= 100 {
		return fmt.Errorf("%w: eol_threshold %v outside (0, 100)", ErrInvalidConfig, s.EOLThreshold)
	}

	f := c.Fleet
	for _, code := range f.Locations {
		loc, ok := model.LocationByCode(code)
		if !ok {
			return fmt.Errorf("%w: unknown location %q", ErrInvalidConfig, code)
		}
		if !loc.Region.Valid() {
			return fmt.Errorf("%w: location %s has unknown region %q", ErrInvalidConfig, code, loc.Region)
		}
	}
	if f.StringsPerRectifier < 0 || f.StringsPerUPS < 0 || f.StringsPerRectifier+f.StringsPerUPS == 0 {
		return fmt.Errorf("%w: fleet needs at least one string", ErrInvalidConfig)
	}
	if f.JarsPerString <= 0 {
		return fmt.Errorf("%w: jars_per_string must be positive", ErrInvalidConfig)
	}
	if f.InitialResistanceMOhm <= 0 {
		return fmt.Errorf("%w: initial_resistance_mohm must be positive", ErrInvalidConfig)
	}
	if f.ResistanceSpreadPct < 0 || f.ResistanceSpreadPct >= 100 {
		return fmt.Errorf("%w: resistance_spread_pct %v outside [0, 100)", ErrInvalidConfig, f.ResistanceSpreadPct)
	}
	if f.Profile != "" {
		if _, err := degradation.LookupProfile(degradation.ProfileName(f.Profile)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	total := 0.0
	for name, w := range f.ModelMix {
		bm, ok := model.BatteryModels[name]
		if !ok {
			return fmt.Errorf("%w: unknown battery model %q", ErrInvalidConfig, name)
		}
		if bm.CapacityAh <= 0 {
			return fmt.Errorf("%w: battery model %s has non-positive capacity", ErrInvalidConfig, name)
		}
		if w < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidConfig, name)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%w: model_mix needs a positive weight", ErrInvalidConfig)
	}

	for _, format := range c.Output.Formats {
		switch format {
		case FormatCSV, FormatSQLite, FormatMQTT:
		default:
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, format)
		}
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt qos %d", ErrInvalidConfig, c.MQTT.QoS)
	}
	if c.Server.Speed <= 0 {
		return fmt.Errorf("%w: server speed must be positive", ErrInvalidConfig)
	}
	return nil
}

// HasFormat reports whether the output format is enabled.
func (o Output) HasFormat(format string) bool {
	for _, f := range o.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// LocationList resolves the configured site codes, defaulting to all sites.
func (f Fleet) LocationList() []model.Location {
	if len(f.Locations) == 0 {
		return model.ThaiLocations
	}
	out := make([]model.Location, 0, len(f.Locations))
	for _, code := range f.Locations {
		if loc, ok := model.LocationByCode(code); ok {
			out = append(out, loc)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getUintEnv(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
