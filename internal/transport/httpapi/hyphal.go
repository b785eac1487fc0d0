package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/hyphalmesh/substrate/pkg/models"

	"github.com/hyphalmesh/substrate/internal/hyphal"
)

type storeMemoryRequest struct {
	AgentID     string             `json:"agent_id"`
	Kind        models.MemoryKind  `json:"kind"`
	ContentType string             `json:"content_type"`
	Content     string             `json:"content"` // base64
	Embedding   []float32          `json:"embedding"`
	Quality     float64            `json:"quality"`
	Sensitivity models.Sensitivity `json:"sensitivity"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
	TTLSec      int                `json:"ttl_sec,omitempty"`
}

// StoreMemory handles POST /v1/hyphal/{tenant}.
func (h *Handler) StoreMemory(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req storeMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "content must be base64", TraceID: trace})
		return
	}

	in := hyphal.StoreInput{
		AgentID:     req.AgentID,
		Kind:        req.Kind,
		ContentType: req.ContentType,
		Content:     content,
		Embedding:   req.Embedding,
		Quality:     req.Quality,
		Sensitivity: req.Sensitivity,
		Metadata:    req.Metadata,
		UserID:      req.UserID,
	}
	if req.TTLSec > 0 {
		ttl := time.Duration(req.TTLSec) * time.Second
		in.TTL = &ttl
	}

	id, err := h.hyphal.Store(r.Context(), tenant, in)
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type searchMemoryRequest struct {
	Embedding          []float32          `json:"embedding"`
	TopK               int                `json:"top_k"`
	MinQuality         float64            `json:"min_quality,omitempty"`
	Kind               *models.MemoryKind `json:"kind,omitempty"`
	UserID             *string            `json:"user_id,omitempty"`
	SensitivityCeiling models.Sensitivity `json:"sensitivity_ceiling,omitempty"`
}

type searchMemoryResult struct {
	ID         string            `json:"id"`
	AgentID    string            `json:"agent_id"`
	Kind       models.MemoryKind `json:"kind"`
	Content    string            `json:"content"` // base64
	Quality    float64           `json:"quality"`
	Similarity float64           `json:"similarity"`
}

// SearchMemory handles POST /v1/hyphal:search/{tenant}.
func (h *Handler) SearchMemory(w http.ResponseWriter, r *http.Request) {
	tenant, trace := tenantID(r), traceID(r)

	var req searchMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "InvalidArgument", Message: "malformed request body", TraceID: trace})
		return
	}
	if req.SensitivityCeiling == "" {
		req.SensitivityCeiling = models.SensitivityPublic
	}

	hits, err := h.hyphal.Search(r.Context(), tenant, hyphal.SearchInput{
		Embedding:          req.Embedding,
		TopK:               req.TopK,
		MinQuality:         req.MinQuality,
		Kind:               req.Kind,
		UserID:             req.UserID,
		SensitivityCeiling: req.SensitivityCeiling,
	})
	if err != nil {
		h.writeError(w, r, trace, err)
		return
	}

	results := make([]searchMemoryResult, len(hits))
	for i, hit := range hits {
		results[i] = searchMemoryResult{
			ID:         hit.Memory.ID,
			AgentID:    hit.Memory.AgentID,
			Kind:       hit.Memory.Kind,
			Content:    base64.StdEncoding.EncodeToString(hit.Memory.Content),
			Quality:    hit.Memory.Quality,
			Similarity: hit.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
