package ws

import (
	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
)

// Bridge implements simulator.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub *Hub
}

func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) broadcast(msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		log.WithError(err).WithField("type", msgType).Error("Error marshaling message")
		return
	}
	b.hub.Broadcast(msg)
}

func (b *Bridge) OnState(s simulator.State) {
	b.broadcast(TypeSimState, SimStateFromEngine(s))
}

func (b *Bridge) OnEnvironment(r model.EnvironmentReading) {
	b.broadcast(TypeEnvironmentReading, r)
}

func (b *Bridge) OnStringReading(r model.StringReading) {
	b.broadcast(TypeStringReading, r)
}

func (b *Bridge) OnBatteryReading(r model.BatteryReading) {
	b.broadcast(TypeBatteryReading, r)
}

func (b *Bridge) OnFailure(s degradation.State) {
	log.WithFields(log.Fields{
		"battery_id": s.ID,
		"mode":       s.FailureMode,
	}).Info("Battery failed")
	b.broadcast(TypeBatteryFailure, s)
}

func (b *Bridge) OnSummary(s simulator.Summary) {
	b.broadcast(TypeSummaryUpdate, SummaryFromEngine(s))
}
