package api

import (
	"net/http"
	"time"

	"github.com/snarg/ta-engine/internal/store"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	store     *store.Store // nil when running without a durable store
	version   string
	startTime time.Time
}

func NewHealthHandler(st *store.Store, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{store: st, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        map[string]string{},
	}

	if h.store == nil {
		resp.Checks["store"] = "not configured"
	} else if err := h.store.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Checks["store"] = err.Error()
	} else {
		resp.Checks["store"] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
