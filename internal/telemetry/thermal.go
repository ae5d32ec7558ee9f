package telemetry

import (
	"math"
	"time"
)

// ThermalModel is a first-order RC thermal network for one jar:
// C_th·dT/dt = I²R − (T − T_ambient)/R_th.
type ThermalModel struct {
	TempC                   float64 // current jar temperature, noise free
	ThermalResistanceCPerW  float64 // jar to air
	ThermalCapacitanceJPerC float64
	MaxRiseC                float64 // cap on the steady-state rise above ambient
	initialized             bool
}

// ThermalStepResult holds the output of one thermal step.
type ThermalStepResult struct {
	TempC   float64
	HeatW   float64 // Joule heating in this step
	TargetC float64 // steady-state temperature at this heat load
	Alpha   float64 // fraction of the gap to target closed
}

// NewThermalModel creates a VRLA jar thermal model, τ = 1.5 °C/W × 5000 J/°C = 7500 s.
func NewThermalModel() *ThermalModel {
	return &ThermalModel{
		ThermalResistanceCPerW:  1.5,
		ThermalCapacitanceJPerC: 5000,
		MaxRiseC:                15,
	}
}

// TimeConstant returns τ = R_th·C_th.
func (tm *ThermalModel) TimeConstant() time.Duration {
	return time.Duration(tm.ThermalResistanceCPerW * tm.ThermalCapacitanceJPerC * float64(time.Second))
}

// Step advances the jar temperature by dt. The first call starts the jar at
// ambient.
func (tm *ThermalModel) Step(ambientC, currentA, resistanceOhm float64, dt time.Duration) ThermalStepResult {
	if !tm.initialized {
		tm.TempC = ambientC
		tm.initialized = true
	}

	heatW := currentA * currentA * math.Max(resistanceOhm, 0)
	rise := math.Min(heatW*tm.ThermalResistanceCPerW, tm.MaxRiseC)
	target := ambientC + rise

	var alpha float64
	if dt > 0 {
		tau := tm.ThermalResistanceCPerW * tm.ThermalCapacitanceJPerC
		alpha = 1 - math.Exp(-dt.Seconds()/tau)
	}
	tm.TempC += alpha * (target - tm.TempC)

	return ThermalStepResult{
		TempC:   tm.TempC,
		HeatW:   heatW,
		TargetC: target,
		Alpha:   alpha,
	}
}

// Reset returns the model to its uninitialized state.
func (tm *ThermalModel) Reset() {
	tm.TempC = 0
	tm.initialized = false
}
