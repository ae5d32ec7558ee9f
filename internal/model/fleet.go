package model

import "time"

// Region is a Thai climate region.
type Region string

const (
	RegionNorthern     Region = "northern"
	RegionNortheastern Region = "northeastern"
	RegionCentral      Region = "central"
	RegionEastern      Region = "eastern"
	RegionSouthern     Region = "southern"
)

// Regions lists every known region in a stable order.
var Regions = []Region{
	RegionNorthern,
	RegionNortheastern,
	RegionCentral,
	RegionEastern,
	RegionSouthern,
}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// SystemType is the kind of power system a battery string backs up.
type SystemType string

const (
	SystemRectifier SystemType = "RECTIFIER"
	SystemUPS       SystemType = "UPS"
)

// Valid reports whether s is a known system type.
func (s SystemType) Valid() bool {
	return s == SystemRectifier || s == SystemUPS
}

// Mode is the operating mode of a battery string.
type Mode string

const (
	ModeFloat     Mode = "float"
	ModeBoost     Mode = "boost"
	ModeDischarge Mode = "discharge"
	ModeEqualize  Mode = "equalize"
	ModeIdle      Mode = "idle"
)

// HVACStatus is the state of a facility's cooling plant.
type HVACStatus string

const (
	HVACRunning  HVACStatus = "running"
	HVACDegraded HVACStatus = "degraded"
	HVACFault    HVACStatus = "fault"
)

// Location is a data centre site.
type Location struct {
	Code         string    `json:"code" yaml:"code"`
	Name         string    `json:"name" yaml:"name"`
	Region       Region    `json:"region" yaml:"region"`
	City         string    `json:"city" yaml:"city"`
	Lat          float64   `json:"lat" yaml:"lat"`
	Lon          float64   `json:"lon" yaml:"lon"`
	Commissioned time.Time `json:"commissioned" yaml:"commissioned"`
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ThaiLocations is the default site list.
var ThaiLocations = []Location{
	{Code: "DC-CNX-01", Name: "Chiangmai Data Center", Region: RegionNorthern, City: "Chiangmai", Lat: 18.7883, Lon: 98.9853, Commissioned: date(2018, 3, 15)},
	{Code: "DC-KKN-01", Name: "Khon Kaen Data Center", Region: RegionNortheastern, City: "Khon Kaen", Lat: 16.4322, Lon: 102.8236, Commissioned: date(2019, 7, 1)},
	{Code: "DC-NTB-01", Name: "Nonthaburi Data Center", Region: RegionCentral, City: "Nonthaburi", Lat: 13.8598, Lon: 100.5254, Commissioned: date(2017, 1, 20)},
	{Code: "DC-BKK-01", Name: "Bangrak Data Center", Region: RegionCentral, City: "Bangkok", Lat: 13.7248, Lon: 100.5310, Commissioned: date(2016, 11, 10)},
	{Code: "DC-BKK-02", Name: "Phrakhanong Data Center", Region: RegionCentral, City: "Bangkok", Lat: 13.7051, Lon: 100.6040, Commissioned: date(2020, 2, 15)},
	{Code: "DC-SRC-01", Name: "Sriracha Data Center", Region: RegionEastern, City: "Sriracha", Lat: 13.1664, Lon: 100.9308, Commissioned: date(2019, 5, 20)},
	{Code: "DC-URT-01", Name: "Surat Thani Data Center", Region: RegionSouthern, City: "Surat Thani", Lat: 9.1355, Lon: 99.3331, Commissioned: date(2020, 8, 1)},
	{Code: "DC-PKT-01", Name: "Phuket Data Center", Region: RegionSouthern, City: "Phuket", Lat: 7.8804, Lon: 98.3923, Commissioned: date(2018, 12, 1)},
	{Code: "DC-HDY-01", Name: "Hat Yai Data Center", Region: RegionSouthern, City: "Hat Yai", Lat: 7.0061, Lon: 100.4667, Commissioned: date(2021, 3, 15)},
}

// LocationByCode finds a default location by its site code.
func LocationByCode(code string) (Location, bool) {
	for _, loc := range ThaiLocations {
		if loc.Code == code {
			return loc, true
		}
	}
	return Location{}, false
}

// BatteryModel holds the datasheet values of a VRLA jar.
type BatteryModel struct {
	Name              string  `json:"name"`
	Manufacturer      string  `json:"manufacturer"`
	Chemistry         string  `json:"chemistry"`
	NominalVoltageV   float64 `json:"nominal_voltage_v"`
	CapacityAh        float64 `json:"capacity_ah"`
	FloatVoltageMinV  float64 `json:"float_voltage_min_v"`
	FloatVoltageMaxV  float64 `json:"float_voltage_max_v"`
	BoostVoltageMinV  float64 `json:"boost_voltage_min_v"`
	BoostVoltageMaxV  float64 `json:"boost_voltage_max_v"`
	MaxChargeCurrentA float64 `json:"max_charge_current_a"`
	TempWarningC      float64 `json:"temp_warning_c"`
	TempCriticalC     float64 `json:"temp_critical_c"`
	ExpectedLifeYears float64 `json:"expected_life_years"`
}

// BatteryModels maps model names to their datasheets.
var BatteryModels = map[string]BatteryModel{
	"HX12-120": {
		Name:              "HX12-120",
		Manufacturer:      "CSB Battery",
		Chemistry:         "VRLA",
		NominalVoltageV:   12,
		CapacityAh:        120,
		FloatVoltageMinV:  13.50,
		FloatVoltageMaxV:  13.80,
		BoostVoltageMinV:  14.40,
		BoostVoltageMaxV:  14.70,
		MaxChargeCurrentA: 36,
		TempWarningC:      45,
		TempCriticalC:     50,
		ExpectedLifeYears: 10,
	},
	"GPL12-100": {
		Name:              "GPL12-100",
		Manufacturer:      "GS Battery",
		Chemistry:         "VRLA",
		NominalVoltageV:   12,
		CapacityAh:        100,
		FloatVoltageMinV:  13.50,
		FloatVoltageMaxV:  13.80,
		BoostVoltageMinV:  14.40,
		BoostVoltageMaxV:  14.70,
		MaxChargeCurrentA: 30,
		TempWarningC:      45,
		TempCriticalC:     50,
		ExpectedLifeYears: 8,
	},
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// Duration returns the length of the range.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}
