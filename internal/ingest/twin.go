package ingest

import (
	"encoding/csv"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/model"
)

// TwinSampleParser parses measurement streams for a digital twin.
//
// Expected format (column order is free, units are V, A and °C):
//
//	timestamp,voltage,current,temperature
//	2024-03-01T00:00:00Z,13.62,-12.5,25.1
//
// Current is positive on charge. Rows that do not parse or do not advance
// the clock are skipped and counted in Skipped.
type TwinSampleParser struct {
	Skipped int
}

var _ Parser[model.TwinSample] = (*TwinSampleParser)(nil)

func NewTwinSampleParser() *TwinSampleParser {
	return &TwinSampleParser{}
}

func (p *TwinSampleParser) Parse(r io.Reader) ([]model.TwinSample, error) {
	cr := csv.NewReader(r)
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idx, err := cols.require(
		[]string{"timestamp", "ts", "time"},
		[]string{"voltage", "voltage_v"},
		[]string{"current", "current_a"},
		[]string{"temperature", "temperature_c"},
	)
	if err != nil {
		return nil, err
	}

	p.Skipped = 0
	var samples []model.TwinSample
	err = eachRecord(cr, func(record []string, lineNum int) error {
		s, err := parseTwinRecord(record, idx, lineNum)
		if err != nil {
			p.Skipped++
			log.WithError(err).Debug("Skipping twin input row")
			return nil
		}
		if n := len(samples); n > 0 && !s.Timestamp.After(samples[n-1].Timestamp) {
			p.Skipped++
			log.WithField("line", lineNum).Debug("Skipping twin input row that does not advance time")
			return nil
		}
		samples = append(samples, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.Skipped > 0 {
		log.WithField("skipped", p.Skipped).Warn("Skipped unusable twin input rows")
	}
	return samples, nil
}

func parseTwinRecord(record []string, idx []int, lineNum int) (model.TwinSample, error) {
	ts, err := parseTime(record, idx[0], lineNum)
	if err != nil {
		return model.TwinSample{}, err
	}
	v, err := parseFloat(record, idx[1], lineNum, "voltage")
	if err != nil {
		return model.TwinSample{}, err
	}
	i, err := parseFloat(record, idx[2], lineNum, "current")
	if err != nil {
		return model.TwinSample{}, err
	}
	temp, err := parseFloat(record, idx[3], lineNum, "temperature")
	if err != nil {
		return model.TwinSample{}, err
	}
	return model.TwinSample{Timestamp: ts, VoltageV: v, CurrentA: i, TemperatureC: temp}, nil
}

// JoinTwinSamples builds twin input for one jar from its generated rows and
// the rows of the string it sits in, matched on timestamp. The string
// current flows through every jar of the string. Jar rows with no string
// row at the same instant are dropped.
func JoinTwinSamples(jar []model.BatteryReading, str []model.StringReading) []model.TwinSample {
	current := make(map[int64]float64, len(str))
	for _, r := range str {
		current[r.Timestamp.UnixNano()] = r.CurrentA
	}
	samples := make([]model.TwinSample, 0, len(jar))
	for _, r := range jar {
		i, ok := current[r.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		samples = append(samples, model.TwinSample{
			Timestamp:    r.Timestamp,
			VoltageV:     r.VoltageV,
			CurrentA:     i,
			TemperatureC: r.TemperatureC,
		})
	}
	sort.Slice(samples, func(a, b int) bool {
		return samples[a].Timestamp.Before(samples[b].Timestamp)
	})
	return samples
}
