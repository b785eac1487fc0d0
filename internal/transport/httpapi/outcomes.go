package httpapi

import (
	"net/http"
	"time"

	"github.com/hyphalmesh/substrate/internal/core"
)

type outcomeRequest struct {
	OverallScore float64            `json:"overall_score"`
	HopScores    map[string]float64 `json:"hop_scores,omitempty"`
}

// RecordOutcome handles POST /v1/outcomes/{tenant}/{trace}.
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}
	if req.OverallScore < 0 || req.OverallScore > 1 {
		h.writeError(w, r, trace, core.New(core.CodeInvalidArgument, "overall_score must be within [0,1]"))
		return
	}

	if err := h.reinforcement.RecordOutcome(r.Context(), tenant, trace, req.OverallScore, req.HopScores, time.Now().UTC()); err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}
