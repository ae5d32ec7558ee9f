package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"fleet_simulator/internal/simulator"
)

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	hub      *Hub
	engine   *simulator.Engine
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from any origin when checkOrigin is nil.
func NewHandler(hub *Hub, engine *simulator.Engine, checkOrigin func(r *http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		engine:   engine,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := newClient(h.hub, conn)
	h.hub.Register(client)
	go client.writePump()

	h.send(client, TypeDataLoaded, h.dataLoaded())
	h.send(client, TypeSimState, SimStateFromEngine(h.engine.State()))
	h.send(client, TypeSummaryUpdate, SummaryFromEngine(h.engine.Summary()))

	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("client_id", c.id).Warn("WebSocket read error")
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.reject(c, "invalid message: "+err.Error())
		return
	}

	switch env.Type {
	case TypeSimStart:
		h.engine.Start()

	case TypeSimPause:
		h.engine.Pause()

	case TypeSimSetSpeed:
		var p SetSpeedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.reject(c, "invalid set_speed payload: "+err.Error())
			return
		}
		h.engine.SetSpeed(p.Speed)

	case TypeSimSeek:
		var p SeekPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.reject(c, "invalid seek payload: "+err.Error())
			return
		}
		t, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			h.reject(c, "invalid seek timestamp: "+err.Error())
			return
		}
		h.engine.Seek(t)

	case TypeScenarioSet:
		var p ScenarioPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.reject(c, "invalid scenario payload: "+err.Error())
			return
		}
		req := simulator.ScenarioRequest{Scenario: simulator.Scenario(p.Scenario), BatteryIDs: p.BatteryIDs}
		if err := h.engine.SetScenario(req); err != nil {
			h.reject(c, err.Error())
			return
		}
		log.WithField("scenario", p.Scenario).Info("Scenario applied")

	default:
		h.reject(c, "unknown message type: "+env.Type)
	}
}

// reject tells the sending client what was wrong with its message.
func (h *Handler) reject(c *Client, reason string) {
	log.WithField("client_id", c.id).Warn(reason)
	h.send(c, TypeError, ErrorPayload{Message: reason})
}

func (h *Handler) dataLoaded() DataLoadedPayload {
	site := h.engine.Site()
	cfg := site.Config()
	tr := h.engine.TimeRange()

	strs := make([]StringInfo, 0, len(site.Strings()))
	for _, s := range site.Strings() {
		info := StringInfo{ID: s.ID(), SystemType: string(s.Config().SystemType)}
		for _, j := range s.Jars() {
			info.BatteryIDs = append(info.BatteryIDs, j.Battery.ID())
		}
		strs = append(strs, info)
	}
	scenarios := make([]string, len(simulator.Scenarios))
	for i, s := range simulator.Scenarios {
		scenarios[i] = string(s)
	}

	return DataLoadedPayload{
		Location:    cfg.Location.Code,
		Region:      string(cfg.Location.Region),
		IntervalSec: cfg.Interval.Seconds(),
		Strings:     strs,
		Scenarios:   scenarios,
		TimeRange: TimeRangeInfo{
			Start: tr.Start.Format(time.RFC3339),
			End:   tr.End.Format(time.RFC3339),
		},
	}
}

func (h *Handler) send(c *Client, msgType string, payload any) {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		log.WithError(err).WithField("type", msgType).Error("Error marshaling message")
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
