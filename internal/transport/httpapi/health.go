package httpapi

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores"`
}

// Health handles GET /v1/health. Modeled on the teacher's
// healthCheckHandler, extended to report per-store reachability per
// SPEC_FULL.md's supplemented health-check surface.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stores := map[string]string{
		"relational": pingStatus(ctx, h.relational),
		"cache":      pingStatus(ctx, h.cache),
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, s := range stores {
		if s == "unreachable" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, httpStatus, healthResponse{Status: status, Stores: stores})
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unknown"
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
