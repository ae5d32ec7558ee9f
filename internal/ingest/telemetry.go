package ingest

import (
	"encoding/csv"
	"io"

	"fleet_simulator/internal/model"
)

var batteryValueColumns = []string{"voltage_v", "temperature_c", "resistance_mohm", "conductance_s", "soc_pct", "soh_pct"}

// BatteryParser parses generated per-jar telemetry files. Rows are filtered
// to one jar when BatteryID is set.
type BatteryParser struct {
	BatteryID string
}

var _ Parser[model.BatteryReading] = BatteryParser{}

func (p BatteryParser) Parse(r io.Reader) ([]model.BatteryReading, error) {
	cr := csv.NewReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	names := [][]string{{"timestamp"}, {"battery_id"}}
	for _, c := range batteryValueColumns {
		names = append(names, []string{c})
	}
	idx, err := cols.require(names...)
	if err != nil {
		return nil, err
	}

	var rows []model.BatteryReading
	err = eachRecord(cr, func(record []string, lineNum int) error {
		id := field(record, idx[1])
		if p.BatteryID != "" && id != p.BatteryID {
			return nil
		}
		ts, err := parseTime(record, idx[0], lineNum)
		if err != nil {
			return err
		}
		values := make([]float64, len(batteryValueColumns))
		for k, name := range batteryValueColumns {
			if values[k], err = parseFloat(record, idx[k+2], lineNum, name); err != nil {
				return err
			}
		}
		rows = append(rows, model.BatteryReading{
			Timestamp:      ts,
			BatteryID:      id,
			VoltageV:       values[0],
			TemperatureC:   values[1],
			ResistanceMOhm: values[2],
			ConductanceS:   values[3],
			SOCPct:         values[4],
			SOHPct:         values[5],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// StringParser parses generated per-string telemetry files. Rows are
// filtered to one string when StringID is set.
type StringParser struct {
	StringID string
}

var _ Parser[model.StringReading] = StringParser{}

func (p StringParser) Parse(r io.Reader) ([]model.StringReading, error) {
	cr := csv.NewReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idx, err := cols.require(
		[]string{"timestamp"}, []string{"string_id"}, []string{"voltage_v"}, []string{"current_a"},
		[]string{"mode"}, []string{"ripple_voltage_rms_v"}, []string{"ripple_current_rms_a"},
		[]string{"equalize_flag"}, []string{"generator_test_flag"}, []string{"transfer_event_flag"},
	)
	if err != nil {
		return nil, err
	}

	var rows []model.StringReading
	err = eachRecord(cr, func(record []string, lineNum int) error {
		id := field(record, idx[1])
		if p.StringID != "" && id != p.StringID {
			return nil
		}
		r := model.StringReading{StringID: id, Mode: model.Mode(field(record, idx[4]))}
		var err error
		if r.Timestamp, err = parseTime(record, idx[0], lineNum); err != nil {
			return err
		}
		if r.VoltageV, err = parseFloat(record, idx[2], lineNum, "voltage_v"); err != nil {
			return err
		}
		if r.CurrentA, err = parseFloat(record, idx[3], lineNum, "current_a"); err != nil {
			return err
		}
		if r.RippleVoltageRMSV, err = parseFloat(record, idx[5], lineNum, "ripple_voltage_rms_v"); err != nil {
			return err
		}
		if r.RippleCurrentRMSA, err = parseFloat(record, idx[6], lineNum, "ripple_current_rms_a"); err != nil {
			return err
		}
		if r.EqualizeFlag, err = parseBool(record, idx[7], lineNum, "equalize_flag"); err != nil {
			return err
		}
		if r.GeneratorTestFlag, err = parseBool(record, idx[8], lineNum, "generator_test_flag"); err != nil {
			return err
		}
		if r.TransferEventFlag, err = parseBool(record, idx[9], lineNum, "transfer_event_flag"); err != nil {
			return err
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
