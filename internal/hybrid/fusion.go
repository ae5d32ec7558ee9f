// Package hybrid fuses the digital twin's physics-based RUL with an external
// data-driven estimate.
package hybrid

import "math"

// Default prediction variances, days².
const (
	DefaultTwinVariance = 100.0
	DefaultMLVariance   = 100.0
)

// Estimate is one RUL prediction with a confidence in [0, 1].
type Estimate struct {
	RULDays    float64 `json:"rul_days"`
	Confidence float64 `json:"confidence"`
}

// Inputs are everything a fusion policy may use.
type Inputs struct {
	Twin          Estimate
	ML            *Estimate // nil when no oracle prediction is available
	VoltageErrorV float64   // |measured − twin predicted| terminal voltage
}

// Result is a fused prediction.
type Result struct {
	RULDays    float64 `json:"rul_days"`
	Confidence float64 `json:"confidence,omitempty"`
	StdDays    float64 `json:"std_days,omitempty"`
	TwinWeight float64 `json:"twin_weight"`
	Policy     string  `json:"policy"`
}

// Policy combines twin and ML predictions.
type Policy interface {
	Name() string
	Fuse(in Inputs) Result
}

// Weighted averages by confidence; combined confidence is the geometric mean.
type Weighted struct{}

func (Weighted) Name() string { return "weighted" }

func (w Weighted) Fuse(in Inputs) Result {
	if in.ML == nil {
		return Result{RULDays: in.Twin.RULDays, Confidence: in.Twin.Confidence, TwinWeight: 1, Policy: w.Name()}
	}
	cd, cm := in.Twin.Confidence, in.ML.Confidence
	total := cd + cm
	if total <= 0 {
		cd, cm, total = 1, 1, 2
	}
	return Result{
		RULDays:    (in.Twin.RULDays*cd + in.ML.RULDays*cm) / total,
		Confidence: math.Sqrt(in.Twin.Confidence * in.ML.Confidence),
		TwinWeight: cd / total,
		Policy:     w.Name(),
	}
}

// Bayesian is the minimum-variance combination of two independent estimates.
type Bayesian struct {
	TwinVariance float64
	MLVariance   float64
}

func (Bayesian) Name() string { return "bayesian" }

func (b Bayesian) Fuse(in Inputs) Result {
	vd, vm := b.TwinVariance, b.MLVariance
	if vd <= 0 {
		vd = DefaultTwinVariance
	}
	if vm <= 0 {
		vm = DefaultMLVariance
	}
	if in.ML == nil {
		return Result{RULDays: in.Twin.RULDays, StdDays: math.Sqrt(vd), TwinWeight: 1, Policy: b.Name()}
	}
	v := 1 / (1/vd + 1/vm)
	return Result{
		RULDays:    v * (in.Twin.RULDays/vd + in.ML.RULDays/vm),
		StdDays:    math.Sqrt(v),
		TwinWeight: v / vd,
		Policy:     b.Name(),
	}
}

// Adaptive trusts the twin more the better it currently predicts voltage.
type Adaptive struct{}

func (Adaptive) Name() string { return "adaptive" }

func (a Adaptive) Fuse(in Inputs) Result {
	if in.ML == nil {
		return Result{RULDays: in.Twin.RULDays, Confidence: in.Twin.Confidence, TwinWeight: 1, Policy: a.Name()}
	}
	w := AdaptiveTwinWeight(in.VoltageErrorV)
	return Result{
		RULDays:    in.Twin.RULDays*w + in.ML.RULDays*(1-w),
		Confidence: in.Twin.Confidence*w + in.ML.Confidence*(1-w),
		TwinWeight: w,
		Policy:     a.Name(),
	}
}

// AdaptiveTwinWeight maps the twin's voltage residual to its fusion weight.
func AdaptiveTwinWeight(voltageErrorV float64) float64 {
	e := math.Abs(voltageErrorV)
	switch {
	case e < 0.05:
		return 0.8
	case e < 0.1:
		return 0.65
	case e < 0.2:
		return 0.5
	default:
		return 0.3
	}
}

// PolicyByName resolves a policy name, defaulting to Weighted.
func PolicyByName(name string) (Policy, bool) {
	switch name {
	case "weighted", "":
		return Weighted{}, true
	case "bayesian":
		return Bayesian{}, true
	case "adaptive":
		return Adaptive{}, true
	default:
		return Weighted{}, false
	}
}
