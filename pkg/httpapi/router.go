// Package httpapi exposes the command-center and sensor-health REST
// surface plus the websocket push channel.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelcore/internal/orchestrator"
)

// dashboardCacheTTL is how long a computed dashboard snapshot is served
// before being rebuilt; bypass_cache=true skips it.
const dashboardCacheTTL = 10 * time.Second

// Router serves the HTTP surface over one orchestrator.
type Router struct {
	mux  *http.ServeMux
	orch *orchestrator.Orchestrator
	hub  *Hub

	version string

	cacheMu     sync.Mutex
	cachedDash  *orchestrator.DashboardSnapshot
	cachedDashT time.Time
}

// NewRouter wires every route. hub may be nil to disable websocket push.
func NewRouter(orch *orchestrator.Orchestrator, hub *Hub, version string) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		orch:    orch,
		hub:     hub,
		version: version,
	}

	r.mux.HandleFunc("GET /command-center/dashboard", r.handleDashboard)
	r.mux.HandleFunc("GET /command-center/actions", r.handleActions)
	r.mux.HandleFunc("GET /command-center/truck/{truck_id}", r.handleTruck)
	r.mux.HandleFunc("GET /command-center/insights", r.handleInsights)
	r.mux.HandleFunc("GET /command-center/trends", r.handleTrends)
	r.mux.HandleFunc("POST /command-center/trends/record", r.handleTrendRecord)
	r.mux.HandleFunc("GET /command-center/health", r.handleHealth)
	r.mux.HandleFunc("GET /sensor-health/summary", r.handleSensorSummary)
	r.mux.HandleFunc("GET /sensor-health/idle-validation", r.handleIdleValidation)
	r.mux.HandleFunc("GET /sensor-health/voltage-history/{truck_id}", r.handleVoltageHistory)
	r.mux.HandleFunc("GET /sensor-health/gps-quality", r.handleGPSQuality)
	if hub != nil {
		r.mux.HandleFunc("/ws", hub.HandleUpgrade)
	}

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// envelope is the uniform success body: success always true, cached set
// where caching applies, payload under data.
type envelope struct {
	Success bool  `json:"success"`
	Cached  *bool `json:"cached,omitempty"`
	Data    any   `json:"data"`
}

func writeJSON(w http.ResponseWriter, data any, cached *bool) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Cached: cached, Data: data}); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
}

func boolPtr(b bool) *bool { return &b }

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	bypass := strings.EqualFold(req.URL.Query().Get("bypass_cache"), "true")
	now := time.Now()

	if !bypass {
		r.cacheMu.Lock()
		if r.cachedDash != nil && now.Sub(r.cachedDashT) < dashboardCacheTTL {
			snapshot := *r.cachedDash
			r.cacheMu.Unlock()
			writeJSON(w, snapshot, boolPtr(true))
			return
		}
		r.cacheMu.Unlock()
	}

	snapshot := r.orch.Dashboard(now)

	r.cacheMu.Lock()
	r.cachedDash = &snapshot
	r.cachedDashT = now
	r.cacheMu.Unlock()

	writeJSON(w, snapshot, boolPtr(false))
}

func (r *Router) handleActions(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items := r.orch.Actions(orchestrator.ActionFilter{
		Priority: q.Get("priority"),
		Category: q.Get("category"),
		TruckID:  q.Get("truck_id"),
		Limit:    limit,
	})
	writeJSON(w, items, nil)
}

func (r *Router) handleTruck(w http.ResponseWriter, req *http.Request) {
	truckID := req.PathValue("truck_id")
	summary, ok := r.orch.Truck(truckID)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unknown truck " + truckID})
		return
	}
	writeJSON(w, summary, nil)
}

func (r *Router) handleInsights(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, r.orch.Insights(time.Now()), nil)
}

// windowHours parses an hours query param clamped to [1, 168].
func windowHours(req *http.Request, def int) time.Duration {
	hours := def
	if raw := req.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			hours = parsed
		}
	}
	if hours < 1 {
		hours = 1
	}
	if hours > 168 {
		hours = 168
	}
	return time.Duration(hours) * time.Hour
}

func (r *Router) handleTrends(w http.ResponseWriter, req *http.Request) {
	series := r.orch.TrendSeries(windowHours(req, 24), time.Now())
	writeJSON(w, series, nil)
}

func (r *Router) handleTrendRecord(w http.ResponseWriter, req *http.Request) {
	snapshot := r.orch.RecordTrendSnapshot(time.Now())
	if r.hub != nil {
		r.hub.Broadcast(snapshot)
	}
	writeJSON(w, snapshot, nil)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "version": r.version}, nil)
}

func (r *Router) handleSensorSummary(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, r.orch.SensorHealth(), nil)
}

func (r *Router) handleIdleValidation(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	onlyIssues := strings.EqualFold(q.Get("only_issues"), "true")
	writeJSON(w, r.orch.IdleValidations(q.Get("truck_id"), onlyIssues), nil)
}

func (r *Router) handleVoltageHistory(w http.ResponseWriter, req *http.Request) {
	truckID := req.PathValue("truck_id")
	points := r.orch.VoltageHistory(req.Context(), truckID, windowHours(req, 24), time.Now())
	writeJSON(w, points, nil)
}

func (r *Router) handleGPSQuality(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, r.orch.GPSQuality(), nil)
}
