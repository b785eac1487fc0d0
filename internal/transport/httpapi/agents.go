package httpapi

import (
	"net/http"

	"github.com/hyphalmesh/substrate/internal/router"
)

type registerAgentRequest struct {
	AgentID          string    `json:"agent_id"`
	ProfileEmbedding []float32 `json:"profile_embedding"`
	Capabilities     []string  `json:"capabilities,omitempty"`
}

// RegisterAgent handles POST /v1/agents:register.
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req registerAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}

	err := h.router.RegisterAgent(r.Context(), router.RegisterAgentInput{
		TenantID:         tenant,
		AgentID:          req.AgentID,
		ProfileEmbedding: req.ProfileEmbedding,
		Capabilities:     req.Capabilities,
	})
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

// DeactivateAgent handles POST /v1/agents/{tenant}/{agent}:deactivate, a
// supplement to the normative endpoint table that pairs with RegisterAgent
// (spec.md §4.2 names register_agent/deactivate_agent/list_agents as a
// trio; only register_agent is in the normative table, the other two are
// carried for operational completeness).
func (h *Handler) DeactivateAgent(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)
	agentID := agentIDParam(r)

	if err := h.router.DeactivateAgent(r.Context(), tenant, agentID); err != nil {
		h.writeError(w, r, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// ListAgents handles GET /v1/agents/{tenant}.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	profiles, err := h.router.ListAgents(r.Context(), tenant)
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": profiles})
}
