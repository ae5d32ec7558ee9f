package ws

import (
	"encoding/json"
	"time"

	"fleet_simulator/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

type SeekPayload struct {
	Timestamp string `json:"timestamp"`
}

type ScenarioPayload struct {
	Scenario   string   `json:"scenario"`
	BatteryIDs []string `json:"battery_ids,omitempty"`
}

// Server -> Client messages

type SimStatePayload struct {
	Location string  `json:"location"`
	Time     string  `json:"time"`
	Speed    float64 `json:"speed"`
	Running  bool    `json:"running"`
	Scenario string  `json:"scenario"`
}

type SummaryPayload struct {
	Timestamp          string  `json:"timestamp"`
	GridAvailable      bool    `json:"grid_available"`
	HVACStatus         string  `json:"hvac_status"`
	IndoorTempC        float64 `json:"indoor_temp_c"`
	AvgSOCPct          float64 `json:"avg_soc_pct"`
	AvgSOHPct          float64 `json:"avg_soh_pct"`
	MinSOHPct          float64 `json:"min_soh_pct"`
	MaxJarTempC        float64 `json:"max_jar_temp_c"`
	FailedBatteries    int     `json:"failed_batteries"`
	StringsDischarging int     `json:"strings_discharging"`
	Outages            int     `json:"outages"`
}

type StringInfo struct {
	ID         string   `json:"id"`
	SystemType string   `json:"system_type"`
	BatteryIDs []string `json:"battery_ids"`
}

type TimeRangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DataLoadedPayload struct {
	Location    string        `json:"location"`
	Region      string        `json:"region"`
	IntervalSec float64       `json:"interval_sec"`
	Strings     []StringInfo  `json:"strings"`
	Scenarios   []string      `json:"scenarios"`
	TimeRange   TimeRangeInfo `json:"time_range"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Message type constants
const (
	// Client -> Server
	TypeSimStart    = "sim:start"
	TypeSimPause    = "sim:pause"
	TypeSimSetSpeed = "sim:set_speed"
	TypeSimSeek     = "sim:seek"
	TypeScenarioSet = "scenario:set"

	// Server -> Client
	TypeSimState           = "sim:state"
	TypeEnvironmentReading = "environment:reading"
	TypeStringReading      = "string:reading"
	TypeBatteryReading     = "battery:reading"
	TypeBatteryFailure     = "battery:failure"
	TypeSummaryUpdate      = "summary:update"
	TypeDataLoaded         = "data:loaded"
	TypeError              = "error"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func SimStateFromEngine(s simulator.State) SimStatePayload {
	return SimStatePayload{
		Location: s.Location,
		Time:     s.Time.UTC().Format(time.RFC3339),
		Speed:    s.Speed,
		Running:  s.Running,
		Scenario: string(s.Scenario),
	}
}

func SummaryFromEngine(s simulator.Summary) SummaryPayload {
	ts := ""
	if !s.Timestamp.IsZero() {
		ts = s.Timestamp.UTC().Format(time.RFC3339)
	}
	return SummaryPayload{
		Timestamp:          ts,
		GridAvailable:      s.GridAvailable,
		HVACStatus:         string(s.HVACStatus),
		IndoorTempC:        s.IndoorTempC,
		AvgSOCPct:          s.AvgSOCPct,
		AvgSOHPct:          s.AvgSOHPct,
		MinSOHPct:          s.MinSOHPct,
		MaxJarTempC:        s.MaxJarTempC,
		FailedBatteries:    s.FailedBatteries,
		StringsDischarging: s.StringsDischarging,
		Outages:            s.Outages,
	}
}
