package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
)

// Layer is a fully-connected layer.
type Layer struct {
	Weights [][]float64 `json:"weights"` // [out][in]
	Biases  []float64   `json:"biases"`

	// Adam moments, not serialized.
	mW, vW [][]float64
	mB, vB []float64

	// Training caches, not serialized.
	input  []float64
	output []float64
	dW     [][]float64
	dB     []float64
}

// Network is a feedforward regressor: ReLU hidden layers, linear output.
type Network struct {
	Layers []Layer `json:"layers"`
}

// TrainConfig holds Adam and schedule hyperparameters.
type TrainConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Beta1        float64 `yaml:"beta1"`
	Beta2        float64 `yaml:"beta2"`
	Epsilon      float64 `yaml:"epsilon"`
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	Patience     int     `yaml:"patience"` // epochs without validation improvement before stopping; 0 disables
}

// DefaultTrainConfig returns defaults suited to a few thousand RUL samples.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		BatchSize:    64,
		Epochs:       200,
		Patience:     20,
	}
}

// TrainResult reports the validation curve. When early stopping kicks in
// the network holds the weights of BestEpoch.
type TrainResult struct {
	ValLosses []float64
	BestEpoch int
	BestLoss  float64
	Stopped   bool
}

// NewNetwork creates a network with He initialization.
// sizes lists layer widths, e.g. [5, 32, 16, 1].
func NewNetwork(sizes []int, rng *rand.Rand) *Network {
	n := &Network{Layers: make([]Layer, len(sizes)-1)}
	for i := range n.Layers {
		in, out := sizes[i], sizes[i+1]
		stddev := math.Sqrt(2.0 / float64(in))
		l := Layer{Weights: makeMatrix(out, in), Biases: make([]float64, out)}
		for j := range l.Weights {
			for k := range l.Weights[j] {
				l.Weights[j][k] = rng.NormFloat64() * stddev
			}
		}
		n.Layers[i] = l
	}
	n.initAdam()
	return n
}

// Sizes returns the layer widths.
func (n *Network) Sizes() []int {
	if len(n.Layers) == 0 {
		return nil
	}
	sizes := []int{len(n.Layers[0].Weights[0])}
	for _, l := range n.Layers {
		sizes = append(sizes, len(l.Weights))
	}
	return sizes
}

func (n *Network) initAdam() {
	for i := range n.Layers {
		l := &n.Layers[i]
		out, in := len(l.Weights), len(l.Weights[0])
		l.mW = makeMatrix(out, in)
		l.vW = makeMatrix(out, in)
		l.mB = make([]float64, out)
		l.vB = make([]float64, out)
		l.dW = makeMatrix(out, in)
		l.dB = make([]float64, out)
	}
}

func (l *Layer) affine(x []float64, relu bool) []float64 {
	y := make([]float64, len(l.Weights))
	for j, row := range l.Weights {
		sum := l.Biases[j]
		for k, w := range row {
			sum += w * x[k]
		}
		if relu && sum < 0 {
			sum = 0
		}
		y[j] = sum
	}
	return y
}

// Forward computes the output and caches activations for Backward.
func (n *Network) Forward(input []float64) []float64 {
	x := input
	last := len(n.Layers) - 1
	for i := range n.Layers {
		l := &n.Layers[i]
		l.input = append(l.input[:0], x...)
		l.output = l.affine(x, i < last)
		x = l.output
	}
	return x
}

// Infer computes the output without touching training caches, so a trained
// network may serve concurrent callers.
func (n *Network) Infer(input []float64) []float64 {
	x := input
	last := len(n.Layers) - 1
	for i := range n.Layers {
		x = n.Layers[i].affine(x, i < last)
	}
	return x
}

// Backward accumulates gradients for dOutput = ∂loss/∂output.
// Must follow Forward on the same input.
func (n *Network) Backward(dOutput []float64) {
	dx := dOutput
	for i := len(n.Layers) - 1; i >= 0; i-- {
		l := &n.Layers[i]
		if i < len(n.Layers)-1 {
			for j, o := range l.output {
				if o <= 0 {
					dx[j] = 0
				}
			}
		}
		for j := range l.Weights {
			l.dB[j] += dx[j]
			for k, in := range l.input {
				l.dW[j][k] += dx[j] * in
			}
		}
		if i == 0 {
			break
		}
		dInput := make([]float64, len(l.input))
		for j, row := range l.Weights {
			for k, w := range row {
				dInput[k] += dx[j] * w
			}
		}
		dx = dInput
	}
}

// ZeroGrad clears accumulated gradients.
func (n *Network) ZeroGrad() {
	for i := range n.Layers {
		l := &n.Layers[i]
		for j := range l.dW {
			clear(l.dW[j])
		}
		clear(l.dB)
	}
}

// UpdateAdam applies one Adam step. step is 1-based.
func (n *Network) UpdateAdam(cfg TrainConfig, step int) {
	c1 := 1 - math.Pow(cfg.Beta1, float64(step))
	c2 := 1 - math.Pow(cfg.Beta2, float64(step))
	adam := func(p, m, v *float64, g float64) {
		*m = cfg.Beta1**m + (1-cfg.Beta1)*g
		*v = cfg.Beta2**v + (1-cfg.Beta2)*g*g
		*p -= cfg.LearningRate * (*m / c1) / (math.Sqrt(*v/c2) + cfg.Epsilon)
	}
	for i := range n.Layers {
		l := &n.Layers[i]
		for j := range l.Weights {
			for k := range l.Weights[j] {
				adam(&l.Weights[j][k], &l.mW[j][k], &l.vW[j][k], l.dW[j][k])
			}
			adam(&l.Biases[j], &l.mB[j], &l.vB[j], l.dB[j])
		}
	}
}

// Train runs mini-batch Adam on the first output and returns the
// validation curve, stopping early once Patience epochs pass without
// improvement.
func (n *Network) Train(trainX, trainY, valX, valY [][]float64, cfg TrainConfig, rng *rand.Rand) TrainResult {
	indices := make([]int, len(trainX))
	for i := range indices {
		indices[i] = i
	}
	batch := max(cfg.BatchSize, 1)

	res := TrainResult{BestLoss: math.Inf(1), BestEpoch: -1}
	var best []Layer
	step := 0
	for epoch := range cfg.Epochs {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		for start := 0; start < len(indices); start += batch {
			end := min(start+batch, len(indices))
			n.ZeroGrad()
			for _, idx := range indices[start:end] {
				out := n.Forward(trainX[idx])
				n.Backward([]float64{2 * (out[0] - trainY[idx][0]) / float64(end-start)})
			}
			step++
			n.UpdateAdam(cfg, step)
		}

		loss := n.MSELoss(valX, valY)
		res.ValLosses = append(res.ValLosses, loss)
		if loss < res.BestLoss {
			res.BestLoss, res.BestEpoch = loss, epoch
			if cfg.Patience > 0 {
				best = n.cloneParams()
			}
		} else if cfg.Patience > 0 && epoch-res.BestEpoch >= cfg.Patience {
			res.Stopped = true
			break
		}
	}
	if res.Stopped && best != nil {
		n.restoreParams(best)
	}
	return res
}

// MSELoss is the mean squared error of the first output over a dataset.
func (n *Network) MSELoss(X, Y [][]float64) float64 {
	if len(X) == 0 {
		return 0
	}
	var sum float64
	for i := range X {
		d := n.Infer(X[i])[0] - Y[i][0]
		sum += d * d
	}
	return sum / float64(len(X))
}

func (n *Network) cloneParams() []Layer {
	out := make([]Layer, len(n.Layers))
	for i, l := range n.Layers {
		w := makeMatrix(len(l.Weights), len(l.Weights[0]))
		for j := range w {
			copy(w[j], l.Weights[j])
		}
		out[i] = Layer{Weights: w, Biases: append([]float64(nil), l.Biases...)}
	}
	return out
}

func (n *Network) restoreParams(params []Layer) {
	for i := range n.Layers {
		n.Layers[i].Weights = params[i].Weights
		n.Layers[i].Biases = params[i].Biases
	}
}

type layerJSON struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// MarshalJSON serializes weights and biases only.
func (n *Network) MarshalJSON() ([]byte, error) {
	layers := make([]layerJSON, len(n.Layers))
	for i, l := range n.Layers {
		layers[i] = layerJSON{Weights: l.Weights, Biases: l.Biases}
	}
	return json.Marshal(struct {
		Layers []layerJSON `json:"layers"`
	}{Layers: layers})
}

// UnmarshalJSON restores weights and biases, checks shapes and resets
// optimizer state.
func (n *Network) UnmarshalJSON(data []byte) error {
	var raw struct {
		Layers []layerJSON `json:"layers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	n.Layers = make([]Layer, len(raw.Layers))
	prevOut := -1
	for i, l := range raw.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Biases) {
			return fmt.Errorf("layer %d: %d weight rows for %d biases", i, len(l.Weights), len(l.Biases))
		}
		in := len(l.Weights[0])
		for j, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("layer %d row %d: width %d, want %d", i, j, len(row), in)
			}
		}
		if prevOut >= 0 && in != prevOut {
			return fmt.Errorf("layer %d: input width %d does not match previous output %d", i, in, prevOut)
		}
		prevOut = len(l.Weights)
		n.Layers[i] = Layer{Weights: l.Weights, Biases: l.Biases}
	}
	n.initAdam()
	return nil
}

func makeMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
