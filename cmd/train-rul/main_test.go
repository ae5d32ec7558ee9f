package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_simulator/internal/predictor"
)

func TestDatasetConfig(t *testing.T) {
	cfg := datasetConfig(argSpec{Seed: 9, Batteries: 10, MaxYears: 5, EOL: 70})
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, 10, cfg.Batteries)
	assert.Equal(t, 5, cfg.MaxYears)
	assert.Equal(t, 70.0, cfg.EOLThreshold)
	assert.Equal(t, predictor.DefaultDatasetConfig().MinTempC, cfg.MinTempC)
}

func TestTrainConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte("learning_rate: 0.01\nbatch_size: 16\n"), 0o644))

	cfg, err := trainConfig(argSpec{TrainConfig: path, Epochs: 5})
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.LearningRate)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 5, cfg.Epochs)
	assert.Equal(t, predictor.DefaultTrainConfig().Beta1, cfg.Beta1)
}

func TestTrainConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("batch_size: [1"), 0o644))
	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("batch_size: 0\n"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml")},
		{"bad yaml", bad},
		{"zero batch", zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trainConfig(argSpec{TrainConfig: tt.path})
			assert.Error(t, err)
		})
	}
}

func TestEvaluate(t *testing.T) {
	ds := predictor.DefaultDatasetConfig()
	ds.Batteries = 20
	samples := predictor.SynthesizeSamples(ds)
	cfg := predictor.DefaultTrainConfig()
	cfg.Epochs = 3
	p, _, err := predictor.TrainRULPredictor(samples, cfg, 1)
	require.NoError(t, err)

	mae, rmse, err := evaluate(p, samples)
	require.NoError(t, err)
	assert.Greater(t, mae, 0.0)
	assert.GreaterOrEqual(t, rmse, mae)

	_, _, err = evaluate(p, nil)
	assert.Error(t, err)
}
