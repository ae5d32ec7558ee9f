package degradation

import "math"

const (
	ReferenceTempC     = 25.0
	ActivationEnergyEV = 0.7
	BoltzmannEVPerK    = 8.617e-5
	kelvinOffset       = 273.15

	// Float voltage window with no extra stress.
	floatVoltageHigh = 13.70
	floatVoltageLow  = 13.50
)

// TemperatureAcceleration returns the Arrhenius aging factor relative to 25 °C.
func TemperatureAcceleration(tempC float64) float64 {
	tRef := ReferenceTempC + kelvinOffset
	t := tempC + kelvinOffset
	return math.Exp((ActivationEnergyEV / BoltzmannEVPerK) * (1/tRef - 1/t))
}

// VoltageStress penalizes float voltages outside 13.50-13.70 V.
// Overvoltage drives grid corrosion, undervoltage drives sulfation.
func VoltageStress(floatV float64) float64 {
	switch {
	case floatV > floatVoltageHigh:
		return 1 + (floatV-floatVoltageHigh)*0.5
	case floatV < floatVoltageLow:
		return 1 + (floatVoltageLow-floatV)*0.3
	default:
		return 1
	}
}

// OpenCircuitVoltage returns the VRLA rest voltage for a state of charge,
// attenuated by state of health.
func OpenCircuitVoltage(socPct, sohPct float64) float64 {
	s := clamp(socPct/100, 0, 1)
	ocv := 11.8 + 0.9*s + 0.05*s*s*s
	return ocv * (0.95 + 0.05*clamp(sohPct, 0, 100)/100)
}

// OCVSlope returns dOCV/dSOC in volts per percent.
func OCVSlope(socPct, sohPct float64) float64 {
	s := clamp(socPct/100, 0, 1)
	return (0.9 + 0.15*s*s) / 100 * (0.95 + 0.05*clamp(sohPct, 0, 100)/100)
}

// ResistanceTempFactor scales internal resistance: colder jars are more resistive.
func ResistanceTempFactor(tempC float64) float64 {
	f := 1 + (ReferenceTempC-tempC)*0.01
	if f < 0.1 {
		return 0.1
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
