package model

// RULFeatures are the inputs an RUL oracle predicts from.
type RULFeatures struct {
	SOHPct          float64 `json:"soh_pct"`
	ResistanceRatio float64 `json:"resistance_ratio"` // current over initial resistance
	TemperatureC    float64 `json:"temperature_c"`
	CycleCount      float64 `json:"cycle_count"`
	AgeDays         float64 `json:"age_days"`
}

// Vector returns the features in a fixed order.
func (f RULFeatures) Vector() []float64 {
	return []float64{f.SOHPct, f.ResistanceRatio, f.TemperatureC, f.CycleCount, f.AgeDays}
}

// RULFeatureCount is len(RULFeatures.Vector()).
const RULFeatureCount = 5
