// Package predictor is a small neural-network RUL model used as the
// data-driven side of hybrid prediction.
package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"fleet_simulator/internal/model"
)

var ErrTooFewSamples = errors.New("too few training samples")

const minTrainingSamples = 10

// HiddenSizes are the hidden layer widths of the RUL network.
var HiddenSizes = []int{32, 16}

// Sample is one labelled training example.
type Sample struct {
	Features model.RULFeatures
	RULDays  float64
}

// Normalization holds z-score parameters for features and target.
type Normalization struct {
	FeatureMean [model.RULFeatureCount]float64 `json:"feature_mean"`
	FeatureStd  [model.RULFeatureCount]float64 `json:"feature_std"`
	TargetMean  float64                        `json:"target_mean"`
	TargetStd   float64                        `json:"target_std"`
}

// SavedModel is the JSON model artifact.
type SavedModel struct {
	Network         *Network      `json:"network"`
	Normalization   Normalization `json:"normalization"`
	ResidualStdDays float64       `json:"residual_std_days"`
	MeanRULDays     float64       `json:"mean_rul_days"`
}

// RULPredictor wraps a trained network. It is safe for concurrent use.
type RULPredictor struct {
	net         *Network
	norm        Normalization
	residualStd float64
	meanRUL     float64
}

// ComputeNormalization returns per-feature and target mean and population
// standard deviation. Constant columns get a std of 1.
func ComputeNormalization(samples []Sample) Normalization {
	var norm Normalization
	col := make([]float64, len(samples))
	for f := range model.RULFeatureCount {
		for i, s := range samples {
			col[i] = s.Features.Vector()[f]
		}
		norm.FeatureMean[f], norm.FeatureStd[f] = meanStd(col)
	}
	for i, s := range samples {
		col[i] = s.RULDays
	}
	norm.TargetMean, norm.TargetStd = meanStd(col)
	return norm
}

func meanStd(x []float64) (float64, float64) {
	mean := stat.Mean(x, nil)
	std := math.Sqrt(stat.MomentAbout(2, x, mean, nil))
	if std < 1e-10 {
		std = 1
	}
	return mean, std
}

// Encode returns the normalized feature vector.
func (n Normalization) Encode(f model.RULFeatures) []float64 {
	v := f.Vector()
	for i := range v {
		v[i] = (v[i] - n.FeatureMean[i]) / n.FeatureStd[i]
	}
	return v
}

// TrainRULPredictor fits a predictor on samples. The residual spread over
// all samples sets the predictor's confidence.
func TrainRULPredictor(samples []Sample, cfg TrainConfig, seed uint64) (*RULPredictor, TrainResult, error) {
	if len(samples) < minTrainingSamples {
		return nil, TrainResult{}, fmt.Errorf("%w: got %d, need %d", ErrTooFewSamples, len(samples), minTrainingSamples)
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	norm := ComputeNormalization(samples)

	X := make([][]float64, len(samples))
	Y := make([][]float64, len(samples))
	for i, s := range samples {
		X[i] = norm.Encode(s.Features)
		Y[i] = []float64{(s.RULDays - norm.TargetMean) / norm.TargetStd}
	}

	sizes := append([]int{model.RULFeatureCount}, HiddenSizes...)
	sizes = append(sizes, 1)
	net, res := TrainNetworkOnData(X, Y, sizes, cfg, rng)

	p := &RULPredictor{net: net, norm: norm, meanRUL: norm.TargetMean}
	residuals := make([]float64, len(samples))
	for i, s := range samples {
		residuals[i] = s.RULDays - p.predictDays(s.Features)
	}
	p.residualStd = stat.StdDev(residuals, nil)
	return p, res, nil
}

func (p *RULPredictor) predictDays(f model.RULFeatures) float64 {
	out := p.net.Infer(p.norm.Encode(f))[0]
	return out*p.norm.TargetStd + p.norm.TargetMean
}

// PredictRUL returns the remaining useful life in days, never negative, and
// a confidence 1/(1 + residual_std/mean_rul) in [0, 1].
func (p *RULPredictor) PredictRUL(f model.RULFeatures) (float64, float64, error) {
	days := p.predictDays(f)
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return 0, 0, fmt.Errorf("non-finite prediction for %+v", f)
	}
	return math.Max(days, 0), p.Confidence(), nil
}

// Confidence derives a [0, 1] score from the training residual spread.
func (p *RULPredictor) Confidence() float64 {
	if p.meanRUL <= 0 {
		return 0
	}
	return clamp01(1 / (1 + p.residualStd/p.meanRUL))
}

// ResidualStdDays returns the training residual standard deviation.
func (p *RULPredictor) ResidualStdDays() float64 { return p.residualStd }

// Norm returns the normalization parameters used in training.
func (p *RULPredictor) Norm() Normalization { return p.norm }

// Save serializes the model to JSON.
func (p *RULPredictor) Save() ([]byte, error) {
	return json.MarshalIndent(SavedModel{
		Network:         p.net,
		Normalization:   p.norm,
		ResidualStdDays: p.residualStd,
		MeanRULDays:     p.meanRUL,
	}, "", "  ")
}

// LoadRULPredictor deserializes a model saved with Save.
func LoadRULPredictor(data []byte) (*RULPredictor, error) {
	var m SavedModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode rul model: %w", err)
	}
	if m.Network == nil {
		return nil, fmt.Errorf("decode rul model: missing network")
	}
	sizes := m.Network.Sizes()
	if sizes[0] != model.RULFeatureCount || sizes[len(sizes)-1] != 1 {
		return nil, fmt.Errorf("decode rul model: layer sizes %v, want %d inputs and 1 output", sizes, model.RULFeatureCount)
	}
	for _, s := range m.Normalization.FeatureStd {
		if s <= 0 {
			return nil, fmt.Errorf("decode rul model: non-positive feature std")
		}
	}
	if m.Normalization.TargetStd <= 0 {
		return nil, fmt.Errorf("decode rul model: non-positive target std")
	}
	return &RULPredictor{
		net:         m.Network,
		norm:        m.Normalization,
		residualStd: m.ResidualStdDays,
		meanRUL:     m.MeanRULDays,
	}, nil
}

// ShuffleAndSplit shuffles data and returns a 90/10 train/validation split.
func ShuffleAndSplit(X, Y [][]float64, rng *rand.Rand) (trainX, trainY, valX, valY [][]float64) {
	n := len(X)
	nVal := max(n/10, 1)
	nTrain := n - nVal

	idx := rng.Perm(n)
	trainX, trainY = make([][]float64, nTrain), make([][]float64, nTrain)
	valX, valY = make([][]float64, nVal), make([][]float64, nVal)
	for i, j := range idx {
		if i < nTrain {
			trainX[i], trainY[i] = X[j], Y[j]
		} else {
			valX[i-nTrain], valY[i-nTrain] = X[j], Y[j]
		}
	}
	return
}

// TrainNetworkOnData builds a network of the given sizes and trains it on a
// shuffled split of X, Y.
func TrainNetworkOnData(X, Y [][]float64, sizes []int, cfg TrainConfig, rng *rand.Rand) (*Network, TrainResult) {
	trainX, trainY, valX, valY := ShuffleAndSplit(X, Y, rng)
	net := NewNetwork(sizes, rng)
	return net, net.Train(trainX, trainY, valX, valY, cfg, rng)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
