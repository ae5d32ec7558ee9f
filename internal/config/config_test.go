package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Fleet.LocationList(), 9)
	assert.True(t, cfg.Output.HasFormat(FormatCSV))
	assert.False(t, cfg.Output.HasFormat(FormatMQTT))
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation:
  start: 2024-03-01T00:00:00Z
  end: 2024-03-08T00:00:00Z
  sampling_interval: 15m
  seed: 7
fleet:
  locations: [DC-BKK-01, DC-PKT-01]
  jars_per_string: 4
  profile: accelerated
output:
  formats: [csv, sqlite]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), cfg.Simulation.End)
	assert.Equal(t, 15*time.Minute, cfg.Simulation.SamplingInterval)
	assert.Equal(t, uint64(7), cfg.Simulation.Seed)
	assert.Equal(t, 4, cfg.Fleet.JarsPerString)
	assert.Equal(t, 3, cfg.Fleet.StringsPerRectifier, "unset fields keep defaults")
	assert.Equal(t, "accelerated", cfg.Fleet.Profile)
	assert.True(t, cfg.Output.HasFormat(FormatSQLite))

	locs := cfg.Fleet.LocationList()
	require.Len(t, locs, 2)
	assert.Equal(t, "DC-PKT-01", locs[1].Code)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLEET_SEED", "99")
	t.Setenv("FLEET_SAMPLING_INTERVAL", "1m")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("FLEET_JARS_PER_STRING", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), cfg.Simulation.Seed)
	assert.Equal(t, time.Minute, cfg.Simulation.SamplingInterval)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, 24, cfg.Fleet.JarsPerString)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"end before start", func(c *Config) { c.Simulation.End = c.Simulation.Start }},
		{"zero interval", func(c *Config) { c.Simulation.SamplingInterval = 0 }},
		{"eol threshold", func(c *Config) { c.Simulation.EOLThreshold = 100 }},
		{"unknown location", func(c *Config) { c.Fleet.Locations = []string{"DC-XXX-01"} }},
		{"no strings", func(c *Config) { c.Fleet.StringsPerRectifier, c.Fleet.StringsPerUPS = 0, 0 }},
		{"no jars", func(c *Config) { c.Fleet.JarsPerString = 0 }},
		{"resistance", func(c *Config) { c.Fleet.InitialResistanceMOhm = 0 }},
		{"spread", func(c *Config) { c.Fleet.ResistanceSpreadPct = -1 }},
		{"unknown profile", func(c *Config) { c.Fleet.Profile = "zombie" }},
		{"unknown model", func(c *Config) { c.Fleet.ModelMix = map[string]float64{"XYZ": 1} }},
		{"zero mix", func(c *Config) { c.Fleet.ModelMix = map[string]float64{"HX12-120": 0} }},
		{"format", func(c *Config) { c.Output.Formats = []string{"parquet"} }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"speed", func(c *Config) { c.Server.Speed = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
