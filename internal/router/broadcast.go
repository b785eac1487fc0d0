package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/policy"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// BroadcastInput is the caller-supplied payload for Broadcast.
type BroadcastInput struct {
	TenantID     string
	RateLimitKey string // caller/API-key identity for rate limiting
	SenderAgent  string
	TraceID      string // generated if empty
	NutrientID   string // generated if empty; caller-provided id enables duplicate rejection
	Summary      string
	Embedding    []float32
	Snippets     []string
	ToolHints    []string
	Sensitivity  models.Sensitivity
	TTLSec       int
	MaxHops      int
	CurrentHop   int
}

// BroadcastResult is the response of a successful broadcast.
type BroadcastResult struct {
	NutrientID string
	Delivered  int
	ExpiresAt  time.Time
	TraceID    string
}

// Broadcast implements spec.md §4.2's broadcast operation. Steps 1–4
// (authn/authz is the caller's responsibility, enforced upstream in
// internal/transport/httpapi) fail fast; once the nutrient is persisted
// (step 5), delivery-path failures (7–10) are logged but never fail the
// call — partial fan-out is success.
func (s *Service) Broadcast(ctx context.Context, in BroadcastInput) (BroadcastResult, error) {
	if in.TenantID == "" {
		return BroadcastResult{}, core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := models.ValidateEmbedding(in.Embedding); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeInvalidArgument, err, "broadcast")
	}
	if err := models.ValidateTTL(in.TTLSec); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeInvalidArgument, err, "broadcast")
	}
	if err := models.ValidateMaxHops(in.MaxHops); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeInvalidArgument, err, "broadcast")
	}
	if in.Sensitivity == "" {
		in.Sensitivity = models.SensitivityPublic
	}
	if err := models.ValidateSensitivity(in.Sensitivity); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeInvalidArgument, err, "broadcast")
	}

	// Step 2: fixed-window rate limit.
	count, ttl, err := s.rateLimit.Incr(ctx, in.TenantID, in.RateLimitKey, "broadcast", s.cfg.RateLimitWindow)
	if err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeUnavailable, err, "rate limit check")
	}
	if count > s.cfg.RateLimitMax {
		return BroadcastResult{}, core.New(core.CodeRateLimited, "broadcast rate limit exceeded").WithRetryAfter(ttl.Milliseconds())
	}

	nutrientID := in.NutrientID
	if nutrientID == "" {
		nutrientID = s.newID()
	} else if existing, err := s.nutrients.Get(ctx, in.TenantID, nutrientID); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeUnavailable, err, "check duplicate nutrient id")
	} else if existing != nil {
		return BroadcastResult{}, core.New(core.CodeAlreadyRecorded, "nutrient %s already broadcast", nutrientID)
	}

	traceID := in.TraceID
	if traceID == "" {
		traceID = s.newID()
	}

	n := models.Nutrient{
		ID:          nutrientID,
		TenantID:    in.TenantID,
		TraceID:     traceID,
		SenderAgent: in.SenderAgent,
		Summary:     in.Summary,
		Embedding:   in.Embedding,
		Snippets:    in.Snippets,
		ToolHints:   in.ToolHints,
		Sensitivity: in.Sensitivity,
		TTLSec:      in.TTLSec,
		MaxHops:     in.MaxHops,
		CurrentHop:  in.CurrentHop,
	}

	now := s.now().UTC()
	n.CreatedAt = now
	n.ExpiresAt = now.Add(time.Duration(in.TTLSec) * time.Second)

	// Step 3: DLP policy evaluation.
	if s.policies != nil {
		policies, err := s.policies.ListEnabled(ctx, in.TenantID, models.PolicyDLP)
		if err != nil {
			return BroadcastResult{}, core.Wrap(core.CodeUnavailable, err, "load dlp policies")
		}
		if verdict := policy.Evaluate(policies, policy.NutrientDocument(n)); !verdict.Allowed {
			s.audit(ctx, in.TenantID, "broadcast_denied", in.SenderAgent, traceID, map[string]string{
				"nutrient_id": nutrientID, "denied_by": verdict.DeniedBy,
			})
			return BroadcastResult{}, core.New(core.CodePolicyDenied, "broadcast denied by policy %s", verdict.DeniedBy)
		}
	}

	// Step 4: expiry / hop-exhaustion check.
	if n.Expired(now) {
		return BroadcastResult{}, core.New(core.CodeExpired, "nutrient %s already expired or hop-exhausted", nutrientID)
	}

	// Step 5: persist the nutrient.
	if err := s.nutrients.Insert(ctx, n); err != nil {
		return BroadcastResult{}, core.Wrap(core.CodeUnavailable, err, "persist nutrient")
	}

	delivered := s.routeAndDeliver(ctx, in.TenantID, n)

	s.audit(ctx, in.TenantID, "broadcast", in.SenderAgent, traceID, map[string]string{
		"nutrient_id": nutrientID,
	})

	return BroadcastResult{NutrientID: nutrientID, Delivered: delivered, ExpiresAt: n.ExpiresAt, TraceID: traceID}, nil
}

// routeAndDeliver runs steps 6–10. Failures here are logged, never
// returned, per spec.md §4.2's best-effort fan-out contract.
func (s *Service) routeAndDeliver(ctx context.Context, tenantID string, n models.Nutrient) int {
	activeCount, err := s.agents.CountActive(ctx, tenantID)
	if err != nil {
		s.log.Warn("failed to count active agents, falling back to minimum K", zap.Error(err))
	}
	k := routing.AdaptiveK(activeCount)
	m := k * s.cfg.EdgeCandidateFactor

	neighborEdges, err := s.edges.TopNeighbors(ctx, tenantID, n.SenderAgent, m)
	if err != nil {
		s.log.Warn("failed to load candidate edges", zap.String("sender", n.SenderAgent), zap.Error(err))
		return 0
	}

	candidateIDs := make([]string, len(neighborEdges))
	edgeWeightByDst := make(map[string]float64, len(neighborEdges))
	for i, e := range neighborEdges {
		candidateIDs[i] = e.Dst
		edgeWeightByDst[e.Dst] = e.Weight
	}

	// Cold-start fallback (spec.md §4.1: edge_w = w_init when no edge has
	// been materialized yet): round candidateIDs out with other active
	// agents so a sender with zero or sparse outgoing edges can still be
	// routed, not just ones it has already exchanged nutrients with.
	if len(candidateIDs) < m {
		extra, err := s.agents.ActiveExcluding(ctx, tenantID, n.SenderAgent, m-len(candidateIDs))
		if err != nil {
			s.log.Warn("failed to load cold-start candidates", zap.String("sender", n.SenderAgent), zap.Error(err))
		}
		for _, p := range extra {
			if _, hasEdge := edgeWeightByDst[p.AgentID]; hasEdge {
				continue
			}
			candidateIDs = append(candidateIDs, p.AgentID)
		}
	}
	if len(candidateIDs) == 0 {
		return 0
	}

	profiles, err := s.agents.HydrateMany(ctx, tenantID, candidateIDs)
	if err != nil {
		s.log.Warn("failed to hydrate candidate profiles", zap.Error(err))
		return 0
	}

	candidates := make([]routing.Candidate, 0, len(profiles))
	for _, p := range profiles {
		var edgeWeight *float64
		if w, ok := edgeWeightByDst[p.AgentID]; ok {
			edgeWeight = &w
		}
		candidates = append(candidates, routing.Candidate{
			AgentID:          p.AgentID,
			ProfileEmbedding: p.ProfileEmbedding,
			Capabilities:     p.Capabilities,
			RecentDemand:     p.RecentDemand,
			EdgeWeight:       edgeWeight,
		})
	}

	selected, err := s.routing.Route(routing.NutrientInput{Embedding: n.Embedding, ToolHints: n.ToolHints}, candidates, k)
	if err != nil {
		s.log.Warn("routing engine failed", zap.Error(err))
		return 0
	}
	if len(selected) == 0 {
		return 0
	}

	records := make([]models.RouteRecord, len(selected))
	for i, sel := range selected {
		records[i] = models.RouteRecord{
			NutrientID:  n.ID,
			TenantID:    tenantID,
			TraceID:     n.TraceID,
			Src:         n.SenderAgent,
			Dst:         sel.AgentID,
			HopIndex:    n.CurrentHop,
			Score:       sel.Score,
			Exploration: sel.Exploration,
			CreatedAt:   s.now().UTC(),
		}
	}
	if err := s.routes.InsertMany(ctx, records); err != nil {
		s.log.Warn("failed to persist route records", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, sel := range selected {
		if err := s.deliverer.Deliver(ctx, tenantID, sel.AgentID, n.TraceID, n); err != nil {
			s.log.Warn("delivery failed", zap.String("recipient", sel.AgentID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
