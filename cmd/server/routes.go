package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fleet_simulator/internal/degradation"
	"fleet_simulator/internal/model"
	"fleet_simulator/internal/simulator"
	"fleet_simulator/internal/twin"
	"fleet_simulator/internal/ws"
)

type routerConfig struct {
	live           *liveSite
	metrics        http.Handler
	allowedOrigins []string
	frontendDir    string
}

// apiResponse is the envelope of every /api/v1 response.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type fleetResponse struct {
	State     simulator.State   `json:"state"`
	Summary   simulator.Summary `json:"summary"`
	TimeRange model.TimeRange   `json:"time_range"`
}

type batteryResponse struct {
	ID       string                `json:"id"`
	StringID string                `json:"string_id"`
	Latest   *model.BatteryReading `json:"latest,omitempty"`
	Failure  *degradation.State    `json:"failure,omitempty"`
	Twin     *twin.Snapshot        `json:"twin,omitempty"`
}

func newRouter(rc routerConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rc.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	live := rc.live
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/ws", ws.NewHandler(live.hub, live.engine, originChecker(rc.allowedOrigins)))
	if rc.metrics != nil {
		r.Handle("/metrics", rc.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/fleet", live.getFleet)
		r.Get("/batteries", live.listBatteries)
		r.Get("/batteries/{id}", live.getBattery)
		r.Get("/batteries/{id}/readings", live.getBatteryReadings)
		r.Get("/strings/{id}/readings", live.getStringReadings)
		r.Get("/environment", live.getEnvironment)
		r.Post("/scenario", live.postScenario)
	})

	if rc.frontendDir != "" {
		if _, err := os.Stat(rc.frontendDir); err == nil {
			log.Info("Serving frontend from ", rc.frontendDir)
			r.Handle("/*", http.FileServer(http.Dir(rc.frontendDir)))
		}
	}
	return r
}

func (l *liveSite) getFleet(w http.ResponseWriter, _ *http.Request) {
	sendData(w, fleetResponse{
		State:     l.engine.State(),
		Summary:   l.engine.Summary(),
		TimeRange: l.engine.TimeRange(),
	})
}

func (l *liveSite) listBatteries(w http.ResponseWriter, _ *http.Request) {
	var out []batteryResponse
	for _, s := range l.engine.Site().Strings() {
		for _, j := range s.Jars() {
			out = append(out, l.battery(j.Battery.ID(), s.ID()))
		}
	}
	sendData(w, out)
}

func (l *liveSite) getBattery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stringID, ok := l.twins.stringOf[id]
	if !ok {
		sendError(w, http.StatusNotFound, fmt.Sprintf("unknown battery %q", id))
		return
	}
	sendData(w, l.battery(id, stringID))
}

func (l *liveSite) battery(id, stringID string) batteryResponse {
	resp := batteryResponse{ID: id, StringID: stringID}
	if latest, ok := l.store.LatestBattery(id); ok {
		resp.Latest = &latest
	}
	if st, ok := l.store.BatteryState(id); ok {
		resp.Failure = &st
	}
	if snap, ok := l.twins.Snapshot(id); ok {
		resp.Twin = &snap
	}
	return resp
}

func (l *liveSite) getBatteryReadings(w http.ResponseWriter, r *http.Request) {
	tr, err := l.queryRange(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendData(w, l.store.BatteryReadingsInRange(chi.URLParam(r, "id"), tr.Start, tr.End))
}

func (l *liveSite) getStringReadings(w http.ResponseWriter, r *http.Request) {
	tr, err := l.queryRange(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	sendData(w, l.store.StringReadingsInRange(chi.URLParam(r, "id"), tr.Start, tr.End))
}

func (l *liveSite) getEnvironment(w http.ResponseWriter, r *http.Request) {
	tr, err := l.queryRange(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := l.engine.Site().Location().Code
	sendData(w, l.store.EnvironmentInRange(code, tr.Start, tr.End))
}

func (l *liveSite) postScenario(w http.ResponseWriter, r *http.Request) {
	var req simulator.ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := l.engine.SetScenario(req); err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, simulator.ErrUnknownScenario) && !errors.Is(err, simulator.ErrUnknownBattery) {
			status = http.StatusInternalServerError
		}
		sendError(w, status, err.Error())
		return
	}
	sendData(w, l.engine.State())
}

// queryRange reads the optional start and end query parameters (RFC 3339).
// Missing bounds default to the simulation horizon.
func (l *liveSite) queryRange(r *http.Request) (model.TimeRange, error) {
	tr := l.engine.TimeRange()
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &tr.Start}, {"end", &tr.End}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return tr, fmt.Errorf("invalid %s %q", p.name, v)
		}
		*p.dst = t
	}
	if !tr.End.After(tr.Start) {
		return tr, errors.New("end must be after start")
	}
	return tr, nil
}

func sendData(w http.ResponseWriter, data any) {
	writeResponse(w, http.StatusOK, apiResponse{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, apiResponse{Error: msg})
}

func writeResponse(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Writing response failed")
	}
}
