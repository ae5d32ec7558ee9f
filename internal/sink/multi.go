package sink

import (
	"errors"

	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/telemetry"
)

// Multi fans every write out to several sinks, stopping at the first error.
type Multi []simulator.Sink

func (m Multi) WriteFrame(loc model.Location, f telemetry.Frame) error {
	for _, s := range m {
		if err := s.WriteFrame(loc, f); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) WriteSummary(sum simulator.SiteSummary) error {
	for _, s := range m {
		if err := s.WriteSummary(sum); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
