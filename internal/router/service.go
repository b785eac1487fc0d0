// Package router implements the Router Service (spec.md §4.2): the
// external surface for nutrient broadcast and collect, orchestrating rate
// limiting, DLP policy evaluation, the Routing Engine, route-record
// persistence, and best-effort delivery.
package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/metrics"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/internal/security"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// Config holds the Router Service's own tunables, distinct from the
// Routing Engine's scoring weights (routing.Config).
type Config struct {
	RateLimitWindow      time.Duration // default 60s, spec.md §4.5
	RateLimitMax         int64         // requests per window per (tenant, key, endpoint)
	EdgeCandidateFactor  int           // M = K * factor, spec.md §4.2 step 6
	CollectFetchLimit    int           // nutrients scanned per collect before MMR
	CollectMinSimilarity float64       // spec.md §4.2 collect, default 0.7
	CollectLambda        float64       // MMR lambda for collect, default 0.5
	MaxRetries           int
	RetryBaseDelay       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RateLimitWindow:      60 * time.Second,
		RateLimitMax:         120,
		EdgeCandidateFactor:  4,
		CollectFetchLimit:    200,
		CollectMinSimilarity: 0.7,
		CollectLambda:        0.5,
		MaxRetries:           3,
		RetryBaseDelay:       50 * time.Millisecond,
	}
}

// Deliverer pushes a nutrient into one recipient's inbox. Concrete
// implementations live in internal/store (document-store mailbox) or a
// direct push transport; delivery failures are logged, never fatal, per
// spec.md §4.2's best-effort fan-out contract.
type Deliverer interface {
	Deliver(ctx context.Context, tenantID, recipientAgentID, traceID string, n models.Nutrient) error
}

// Service is the stateless Router Service; all state lives in the
// injected stores.
type Service struct {
	cfg       Config
	routing   *routing.Engine
	rateLimit store.RateLimitStore
	policies  store.PolicyStore
	nutrients store.NutrientStore
	edges     store.EdgeStore
	agents    store.AgentStore
	routes    store.RouteStore
	deliverer Deliverer
	auditor   *security.AuditSigner
	auditLog  store.AuditStore
	metrics   *metrics.Registry
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

func New(
	cfg Config,
	routingEngine *routing.Engine,
	rateLimit store.RateLimitStore,
	policies store.PolicyStore,
	nutrients store.NutrientStore,
	edges store.EdgeStore,
	agents store.AgentStore,
	routes store.RouteStore,
	deliverer Deliverer,
	auditor *security.AuditSigner,
	auditLog store.AuditStore,
	metricsReg *metrics.Registry,
	log *zap.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		routing:   routingEngine,
		rateLimit: rateLimit,
		policies:  policies,
		nutrients: nutrients,
		edges:     edges,
		agents:    agents,
		routes:    routes,
		deliverer: deliverer,
		auditor:   auditor,
		auditLog:  auditLog,
		metrics:   metricsReg,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) audit(ctx context.Context, tenantID, eventType, actorID, traceID string, fields map[string]string) {
	if s.auditor == nil || s.auditLog == nil {
		return
	}
	payload, sig, err := s.auditor.Sign(security.Event{
		TenantID: tenantID, EventType: eventType, ActorID: actorID, TraceID: traceID, Fields: fields,
	})
	if err != nil {
		s.log.Warn("failed to sign audit event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := s.auditLog.Append(ctx, tenantID, eventType, payload, sig); err != nil {
		s.log.Warn("failed to append audit event", zap.String("event_type", eventType), zap.Error(err))
	}
}
