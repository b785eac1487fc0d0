package reinforcement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/security"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// Engine orchestrates outcome recording and credit assignment: exactly-once
// outcome persistence, per-hop Hebbian edge updates, and the EMA update of
// each destination agent's avg_success.
type Engine struct {
	cfg      Config
	edges    store.EdgeStore
	agents   store.AgentStore
	routes   store.RouteStore
	outcome  store.OutcomeStore
	memories store.MemoryStore
	auditor  *security.AuditSigner
	auditLog store.AuditStore
	log      *zap.Logger
}

// New constructs an Engine. auditor and auditLog may be nil (used by
// tests), in which case RecordOutcome simply emits no audit trail.
func New(
	cfg Config,
	edges store.EdgeStore,
	agents store.AgentStore,
	routes store.RouteStore,
	outcome store.OutcomeStore,
	memories store.MemoryStore,
	auditor *security.AuditSigner,
	auditLog store.AuditStore,
	log *zap.Logger,
) *Engine {
	return &Engine{
		cfg: cfg, edges: edges, agents: agents, routes: routes, outcome: outcome, memories: memories,
		auditor: auditor, auditLog: auditLog, log: log,
	}
}

func (e *Engine) audit(ctx context.Context, tenantID, eventType, actorID, traceID string, fields map[string]string) {
	if e.auditor == nil || e.auditLog == nil {
		return
	}
	payload, sig, err := e.auditor.Sign(security.Event{
		TenantID: tenantID, EventType: eventType, ActorID: actorID, TraceID: traceID, Fields: fields,
	})
	if err != nil {
		if e.log != nil {
			e.log.Warn("failed to sign audit event", zap.String("event_type", eventType), zap.Error(err))
		}
		return
	}
	if err := e.auditLog.Append(ctx, tenantID, eventType, payload, sig); err != nil {
		if e.log != nil {
			e.log.Warn("failed to append audit event", zap.String("event_type", eventType), zap.Error(err))
		}
	}
}

// RecordOutcome implements spec.md §4.3's record_outcome operation:
//  1. persist the outcome, exactly once per trace id (AlreadyRecorded if a
//     prior call already won the race);
//  2. for every hop's route record, compute the per-hop effective score
//     (hop_scores[dst] if present, else overall_score) and apply the
//     Hebbian delta to that hop's edge;
//  3. fold the per-hop effective score into the destination agent's
//     avg_success via EMA.
func (e *Engine) RecordOutcome(ctx context.Context, tenantID, traceID string, overallScore float64, hopScores map[string]float64, recordedAt time.Time) error {
	if tenantID == "" {
		return core.New(core.CodeInvalidArgument, "tenant id required")
	}
	outcome := models.Outcome{
		TraceID:      traceID,
		TenantID:     tenantID,
		OverallScore: overallScore,
		HopScores:    hopScores,
		RecordedAt:   recordedAt,
	}

	alreadyRecorded, err := e.outcome.RecordIfAbsent(ctx, outcome)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "record outcome for trace %s", traceID)
	}
	if alreadyRecorded {
		return core.New(core.CodeAlreadyRecorded, "outcome for trace %s already recorded", traceID).WithTrace(traceID)
	}

	records, err := e.routes.ByTrace(ctx, tenantID, traceID)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "load route records for trace %s", traceID)
	}

	for _, r := range records {
		effective := overallScore
		if s, ok := hopScores[r.Dst]; ok {
			effective = s
		}

		current, err := e.edges.Get(ctx, tenantID, r.Src, r.Dst)
		if err != nil {
			return core.Wrap(core.CodeUnavailable, err, "load edge %s->%s", r.Src, r.Dst)
		}
		w := e.cfg.WInit
		if current != nil {
			w = current.Weight
		}

		delta := HebbianDelta(w, effective, r.Exploration, e.cfg)
		if _, err := e.edges.ApplyDelta(ctx, tenantID, r.Src, r.Dst, delta, e.cfg.WInit, e.cfg.WMin, e.cfg.WMax); err != nil {
			return core.Wrap(core.CodeUnavailable, err, "apply hebbian delta to %s->%s", r.Src, r.Dst)
		}

		if err := e.updateAvgSuccess(ctx, tenantID, r.Dst, effective); err != nil {
			return err
		}

		if err := e.updateMemoryQuality(ctx, tenantID, r.MemoryRefs, effective); err != nil {
			return err
		}
	}
	e.audit(ctx, tenantID, "record_outcome", "", traceID, nil)
	return nil
}

func (e *Engine) updateMemoryQuality(ctx context.Context, tenantID string, memoryIDs []string, effective float64) error {
	for _, id := range memoryIDs {
		m, err := e.memories.Get(ctx, tenantID, id)
		if err != nil {
			return core.Wrap(core.CodeUnavailable, err, "load memory %s", id)
		}
		if m == nil {
			continue // memory deleted since routing; nothing to update
		}
		delta := MemoryQualityDelta(m.Quality, effective, e.cfg)
		next := m.Quality + delta
		if next < 0 {
			next = 0
		}
		if next > 1 {
			next = 1
		}
		if err := e.memories.UpdateQuality(ctx, tenantID, id, next); err != nil {
			return core.Wrap(core.CodeUnavailable, err, "update quality for memory %s", id)
		}
	}
	return nil
}

func (e *Engine) updateAvgSuccess(ctx context.Context, tenantID, agentID string, effective float64) error {
	agent, err := e.agents.Get(ctx, tenantID, agentID)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "load agent %s", agentID)
	}
	if agent == nil {
		return nil // agent deactivated/removed since routing; nothing to update
	}
	next := EMAAvgSuccess(agent.AvgSuccess, effective, e.cfg.EMAAlpha)
	if err := e.agents.UpdateAvgSuccess(ctx, tenantID, agentID, next); err != nil {
		return core.Wrap(core.CodeUnavailable, err, "update avg_success for %s", agentID)
	}
	return nil
}
