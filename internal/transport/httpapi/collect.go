package httpapi

import (
	"net/http"

	"github.com/hyphalmesh/substrate/pkg/models"

	"github.com/hyphalmesh/substrate/internal/router"
)

type collectRequest struct {
	Embedding []float32          `json:"embedding"`
	TopK      int                `json:"top_k"`
	Clearance models.Sensitivity `json:"clearance,omitempty"`
}

type collectContent struct {
	AgentID string  `json:"agent_id"`
	Summary string  `json:"summary"`
	Score   float64 `json:"score"`
	Data    any     `json:"data"`
}

type collectResponse struct {
	TraceID  string           `json:"trace_id"`
	Contents []collectContent `json:"contents"`
}

// Collect handles POST /v1/collect/{tenant}.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req collectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}

	result, err := h.router.Collect(r.Context(), router.CollectInput{
		TenantID:  tenant,
		Embedding: req.Embedding,
		TopK:      req.TopK,
		Clearance: req.Clearance,
	})
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	contents := make([]collectContent, len(result.Hits))
	for i, hit := range result.Hits {
		contents[i] = collectContent{
			AgentID: hit.Nutrient.SenderAgent,
			Summary: hit.Nutrient.Summary,
			Score:   hit.Score,
			Data: map[string]any{
				"snippets":   hit.Nutrient.Snippets,
				"tool_hints": hit.Nutrient.ToolHints,
			},
		}
	}

	writeJSON(w, http.StatusOK, collectResponse{TraceID: result.TraceID, Contents: contents})
}
