package router

import (
	"context"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// CollectInput is the caller-supplied payload for Collect.
type CollectInput struct {
	TenantID  string
	Embedding []float32
	TopK      int
	Clearance models.Sensitivity // caller's clearance ceiling
}

// CollectHit is one diversified collect result.
type CollectHit struct {
	Nutrient models.Nutrient
	Score    float64
}

// CollectResult is the response of a successful collect.
type CollectResult struct {
	TraceID string
	Hits    []CollectHit
}

// Collect implements spec.md §4.2's collect operation: pulls active,
// unexpired nutrients whose similarity against q exceeds MinSimilarity and
// whose sensitivity the caller's clearance covers, diversifies by MMR, and
// truncates to top_k. Returns a fresh trace_id so a later record_outcome
// can attribute credit to this pull.
func (s *Service) Collect(ctx context.Context, in CollectInput) (CollectResult, error) {
	if in.TenantID == "" {
		return CollectResult{}, core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := models.ValidateEmbedding(in.Embedding); err != nil {
		return CollectResult{}, core.Wrap(core.CodeInvalidArgument, err, "collect")
	}
	if in.TopK <= 0 {
		return CollectResult{}, nil
	}
	if in.Clearance == "" {
		in.Clearance = models.SensitivityPublic
	}

	candidates, err := s.nutrients.ActiveForCollect(ctx, in.TenantID, s.cfg.CollectFetchLimit)
	if err != nil {
		return CollectResult{}, core.Wrap(core.CodeUnavailable, err, "load active nutrients")
	}

	minSim := s.cfg.CollectMinSimilarity
	if minSim <= 0 {
		minSim = defaultMinSimilarity
	}

	scored := make([]routing.Scored, 0, len(candidates))
	embeddings := make(map[string][]float32, len(candidates))
	byID := make(map[string]models.Nutrient, len(candidates))
	for _, n := range candidates {
		if !in.Clearance.Allowed(n.Sensitivity) {
			continue
		}
		sim, err := routing.Cosine(in.Embedding, n.Embedding)
		if err != nil || sim < minSim {
			continue
		}
		scored = append(scored, routing.Scored{AgentID: n.ID, Score: sim, Sim: sim})
		embeddings[n.ID] = n.Embedding
		byID[n.ID] = n
	}
	if len(scored) == 0 {
		return CollectResult{TraceID: s.newID()}, nil
	}

	lambda := s.cfg.CollectLambda
	if lambda <= 0 {
		lambda = 0.5
	}
	selected := routing.SelectMMR(scored, embeddings, in.TopK, lambda)

	hits := make([]CollectHit, 0, len(selected))
	for _, sel := range selected {
		hits = append(hits, CollectHit{Nutrient: byID[sel.AgentID], Score: sel.Score})
	}

	traceID := s.newID()
	s.audit(ctx, in.TenantID, "collect", "", traceID, nil)
	return CollectResult{TraceID: traceID, Hits: hits}, nil
}

const defaultMinSimilarity = 0.7
