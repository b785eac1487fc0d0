package httpapi

import (
	"net/http"
	"time"

	"github.com/hyphalmesh/substrate/pkg/models"

	"github.com/hyphalmesh/substrate/internal/router"
)

type broadcastRequest struct {
	SenderAgent string             `json:"sender_agent"`
	NutrientID  string             `json:"nutrient_id,omitempty"`
	Summary     string             `json:"summary"`
	Embedding   []float32          `json:"embedding"`
	Snippets    []string           `json:"snippets,omitempty"`
	ToolHints   []string           `json:"tool_hints,omitempty"`
	Sensitivity models.Sensitivity `json:"sensitivity,omitempty"`
	TTLSec      int                `json:"ttl_sec"`
	MaxHops     int                `json:"max_hops"`
	CurrentHop  int                `json:"current_hop,omitempty"`
}

type broadcastResponse struct {
	NutrientID string    `json:"nutrient_id"`
	Delivered  int       `json:"delivered"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Broadcast handles POST /v1/broadcast/{tenant}/{trace}.
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}

	result, err := h.router.Broadcast(r.Context(), router.BroadcastInput{
		TenantID:     tenant,
		RateLimitKey: req.SenderAgent,
		SenderAgent:  req.SenderAgent,
		TraceID:      trace,
		NutrientID:   req.NutrientID,
		Summary:      req.Summary,
		Embedding:    req.Embedding,
		Snippets:     req.Snippets,
		ToolHints:    req.ToolHints,
		Sensitivity:  req.Sensitivity,
		TTLSec:       req.TTLSec,
		MaxHops:      req.MaxHops,
		CurrentHop:   req.CurrentHop,
	})
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	writeJSON(w, http.StatusOK, broadcastResponse{
		NutrientID: result.NutrientID,
		Delivered:  result.Delivered,
		ExpiresAt:  result.ExpiresAt,
	})
}
