package model

import "time"

// BatteryReading is one per-jar telemetry row.
type BatteryReading struct {
	Timestamp      time.Time `json:"ts"`
	BatteryID      string    `json:"battery_id"`
	VoltageV       float64   `json:"voltage_v"`
	TemperatureC   float64   `json:"temperature_c"`
	ResistanceMOhm float64   `json:"resistance_mohm"`
	ConductanceS   float64   `json:"conductance_s"`
	SOCPct         float64   `json:"soc_pct"`
	SOHPct         float64   `json:"soh_pct"`
}

// StringReading is one per-string telemetry row.
type StringReading struct {
	Timestamp         time.Time `json:"ts"`
	StringID          string    `json:"string_id"`
	VoltageV          float64   `json:"voltage_v"`
	CurrentA          float64   `json:"current_a"` // positive = charge
	Mode              Mode      `json:"mode"`
	RippleVoltageRMSV float64   `json:"ripple_voltage_rms_v"`
	RippleCurrentRMSA float64   `json:"ripple_current_rms_a"`
	EqualizeFlag      bool      `json:"equalize_flag"`
	GeneratorTestFlag bool      `json:"generator_test_flag"`
	TransferEventFlag bool      `json:"transfer_event_flag"`
}

// EnvironmentReading is one per-location climate row.
type EnvironmentReading struct {
	Timestamp     time.Time  `json:"ts"`
	LocationCode  string     `json:"location_code"`
	OutdoorTempC  float64    `json:"outdoor_temp_c"`
	IndoorTempC   float64    `json:"indoor_temp_c"`
	HumidityPct   float64    `json:"humidity_pct"`
	HVACStatus    HVACStatus `json:"hvac_status"`
	GridAvailable bool       `json:"grid_available"`
}

// TwinSample is one measurement fed to a digital twin.
type TwinSample struct {
	Timestamp    time.Time `json:"ts"`
	VoltageV     float64   `json:"voltage_v"`
	CurrentA     float64   `json:"current_a"`
	TemperatureC float64   `json:"temperature_c"`
}

// Outage is a grid outage interval [Start, End).
type Outage struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the outage length.
func (o Outage) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Channel identifies a numeric telemetry column.
type Channel string

const (
	ChannelBatteryVoltage     Channel = "battery_voltage"
	ChannelBatteryTemperature Channel = "battery_temperature"
	ChannelBatteryResistance  Channel = "battery_resistance"
	ChannelBatteryConductance Channel = "battery_conductance"
	ChannelBatterySOC         Channel = "battery_soc"
	ChannelBatterySOH         Channel = "battery_soh"
	ChannelStringVoltage      Channel = "string_voltage"
	ChannelStringCurrent      Channel = "string_current"
	ChannelRippleVoltage      Channel = "ripple_voltage"
	ChannelRippleCurrent      Channel = "ripple_current"
	ChannelOutdoorTemperature Channel = "outdoor_temperature"
	ChannelIndoorTemperature  Channel = "indoor_temperature"
	ChannelHumidity           Channel = "humidity"
)

// ChannelInfo holds display name and unit for a channel.
type ChannelInfo struct {
	Name string
	Unit string
}

// ChannelCatalog maps every channel to its display name and unit.
var ChannelCatalog = map[Channel]ChannelInfo{
	ChannelBatteryVoltage:     {Name: "Jar Voltage", Unit: "V"},
	ChannelBatteryTemperature: {Name: "Jar Temperature", Unit: "°C"},
	ChannelBatteryResistance:  {Name: "Internal Resistance", Unit: "mΩ"},
	ChannelBatteryConductance: {Name: "Conductance", Unit: "S"},
	ChannelBatterySOC:         {Name: "State of Charge", Unit: "%"},
	ChannelBatterySOH:         {Name: "State of Health", Unit: "%"},
	ChannelStringVoltage:      {Name: "String Voltage", Unit: "V"},
	ChannelStringCurrent:      {Name: "String Current", Unit: "A"},
	ChannelRippleVoltage:      {Name: "Ripple Voltage RMS", Unit: "V"},
	ChannelRippleCurrent:      {Name: "Ripple Current RMS", Unit: "A"},
	ChannelOutdoorTemperature: {Name: "Outdoor Temperature", Unit: "°C"},
	ChannelIndoorTemperature:  {Name: "Indoor Temperature", Unit: "°C"},
	ChannelHumidity:           {Name: "Relative Humidity", Unit: "%"},
}
