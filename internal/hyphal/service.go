// Package hyphal implements the Hyphal Memory Service (spec.md §4.2):
// durable, vector-indexed memory storage and MMR-diversified semantic
// recall, with quality/kind/user/sensitivity filtering and tenant isolation.
package hyphal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/routing"
	"github.com/hyphalmesh/substrate/internal/security"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// Config holds the tunable knobs of recall.
type Config struct {
	Lambda          float64 // MMR lambda, default 0.5
	OverfetchFactor int     // candidates fetched per requested top_k, default 3
}

func DefaultConfig() Config {
	return Config{Lambda: 0.5, OverfetchFactor: 3}
}

// Service is the Hyphal Memory Service.
type Service struct {
	cfg          Config
	store        store.MemoryStore
	masterSecret []byte // envelope-encryption master secret; nil disables sealing
	auditor      *security.AuditSigner
	auditLog     store.AuditStore
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

// New constructs a Service. masterSecret, auditor, and auditLog may all be
// nil: with no masterSecret, sensitivity >= confidential is rejected rather
// than silently persisted in plaintext (spec.md §4.5); with no auditor/
// auditLog, mutating operations simply emit no audit trail (used by tests).
func New(cfg Config, memStore store.MemoryStore, masterSecret []byte, auditor *security.AuditSigner, auditLog store.AuditStore, log *zap.Logger) *Service {
	return &Service{
		cfg:          cfg,
		store:        memStore,
		masterSecret: masterSecret,
		auditor:      auditor,
		auditLog:     auditLog,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (s *Service) audit(ctx context.Context, tenantID, eventType, actorID, memoryID string, fields map[string]string) {
	if s.auditor == nil || s.auditLog == nil {
		return
	}
	payload, sig, err := s.auditor.Sign(security.Event{
		TenantID: tenantID, EventType: eventType, ActorID: actorID, TraceID: memoryID, Fields: fields,
	})
	if err != nil {
		if s.log != nil {
			s.log.Warn("failed to sign audit event", zap.String("event_type", eventType), zap.Error(err))
		}
		return
	}
	if err := s.auditLog.Append(ctx, tenantID, eventType, payload, sig); err != nil {
		if s.log != nil {
			s.log.Warn("failed to append audit event", zap.String("event_type", eventType), zap.Error(err))
		}
	}
}

// StoreInput is the caller-supplied payload for Store.
type StoreInput struct {
	AgentID     string
	Kind        models.MemoryKind
	ContentType string
	Content     []byte
	Embedding   []float32
	Quality     float64
	Sensitivity models.Sensitivity
	Metadata    map[string]string
	UserID      string
	TTL         *time.Duration
}

// Store validates and persists a new memory (spec.md §4.2 store operation).
// It rejects a malformed embedding dimension or an out-of-range quality
// before ever reaching the store.
func (s *Service) Store(ctx context.Context, tenantID string, in StoreInput) (string, error) {
	if tenantID == "" {
		return "", core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := models.ValidateEmbedding(in.Embedding); err != nil {
		return "", core.Wrap(core.CodeInvalidArgument, err, "store memory")
	}
	if err := models.ValidateQuality(in.Quality); err != nil {
		return "", core.Wrap(core.CodeInvalidArgument, err, "store memory")
	}
	if err := models.ValidateSensitivity(in.Sensitivity); err != nil {
		return "", core.Wrap(core.CodeInvalidArgument, err, "store memory")
	}

	content := in.Content
	if in.Sensitivity.RequiresEncryption() {
		if len(s.masterSecret) == 0 {
			return "", core.New(core.CodeUnavailable, "encryption master secret unavailable, refusing to store %s content in plaintext", in.Sensitivity)
		}
		sealed, err := security.Seal(s.masterSecret, in.Content)
		if err != nil {
			return "", core.Wrap(core.CodeInternal, err, "seal memory content")
		}
		content = sealed.Marshal()
	}

	now := s.now().UTC()
	m := models.Memory{
		ID:          s.newID(),
		TenantID:    tenantID,
		AgentID:     in.AgentID,
		Kind:        in.Kind,
		ContentType: in.ContentType,
		Content:     content,
		Embedding:   in.Embedding,
		Quality:     in.Quality,
		Sensitivity: in.Sensitivity,
		Metadata:    in.Metadata,
		UserID:      in.UserID,
		CreatedAt:   now,
	}
	if in.TTL != nil {
		exp := now.Add(*in.TTL)
		m.ExpiresAt = &exp
	}

	if err := s.store.Store(ctx, m); err != nil {
		return "", core.Wrap(core.CodeUnavailable, err, "persist memory")
	}
	s.audit(ctx, tenantID, "store_memory", in.AgentID, m.ID, map[string]string{"kind": string(in.Kind), "sensitivity": string(in.Sensitivity)})
	return m.ID, nil
}

// SearchInput is the caller-supplied payload for Search.
type SearchInput struct {
	Embedding          []float32
	TopK               int
	MinQuality         float64
	Kind               *models.MemoryKind
	UserID             *string
	SensitivityCeiling models.Sensitivity
}

// SearchHit is one diversified recall result.
type SearchHit struct {
	Memory     models.Memory
	Similarity float64
}

// Search runs ANN retrieval over top 3·top_k candidates (spec.md §4.2),
// post-filters by quality/kind/user/sensitivity (delegated to the store,
// which applies them server-side), then diversifies with MMR (λ=0.5) down
// to top_k. Every access bumps accessed_count.
func (s *Service) Search(ctx context.Context, tenantID string, in SearchInput) ([]SearchHit, error) {
	if tenantID == "" {
		return nil, core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := models.ValidateEmbedding(in.Embedding); err != nil {
		return nil, core.Wrap(core.CodeInvalidArgument, err, "search memories")
	}
	if in.TopK <= 0 {
		return nil, nil
	}

	overfetch := in.TopK * s.cfg.OverfetchFactor
	if overfetch < in.TopK {
		overfetch = in.TopK
	}

	filters := store.MemoryFilters{
		MinQuality:         in.MinQuality,
		Kind:               in.Kind,
		UserID:             in.UserID,
		SensitivityCeiling: in.SensitivityCeiling,
	}
	hits, err := s.store.Search(ctx, tenantID, in.Embedding, overfetch, filters)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "search memories")
	}
	if len(hits) == 0 {
		return nil, nil
	}

	scored := make([]routing.Scored, len(hits))
	embeddings := make(map[string][]float32, len(hits))
	for i, h := range hits {
		scored[i] = routing.Scored{AgentID: h.Memory.ID, Score: h.Similarity, Sim: h.Similarity}
		embeddings[h.Memory.ID] = h.Memory.Embedding
	}
	selected := routing.SelectMMR(scored, embeddings, in.TopK, s.cfg.Lambda)

	byID := make(map[string]store.MemoryHit, len(hits))
	for _, h := range hits {
		byID[h.Memory.ID] = h
	}

	out := make([]SearchHit, 0, len(selected))
	for _, sel := range selected {
		h := byID[sel.AgentID]
		m := h.Memory
		if m.Sensitivity.RequiresEncryption() {
			plaintext, err := s.open(m.Content)
			if err != nil {
				return nil, core.Wrap(core.CodeInternal, err, "open sealed content for memory %s", m.ID)
			}
			m.Content = plaintext
		}
		out = append(out, SearchHit{Memory: m, Similarity: h.Similarity})
		if err := s.store.IncrementAccessed(ctx, tenantID, h.Memory.ID); err != nil {
			return nil, core.Wrap(core.CodeUnavailable, err, "increment accessed for memory %s", h.Memory.ID)
		}
	}
	return out, nil
}

// open unseals ciphertext written by Store. An empty masterSecret here
// means the deployment disabled encryption after sealed rows already
// existed; that is a deployment error the caller needs to see, not a
// silently-returned ciphertext blob.
func (s *Service) open(ciphertext []byte) ([]byte, error) {
	if len(s.masterSecret) == 0 {
		return nil, core.New(core.CodeUnavailable, "encryption master secret unavailable, cannot open sealed content")
	}
	sealed, err := security.UnmarshalSealed(ciphertext)
	if err != nil {
		return nil, err
	}
	return security.Open(s.masterSecret, sealed)
}

// Delete removes a memory explicitly (spec.md §4.2 lifecycle: "deleted when
// expires_at passes or on explicit delete").
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.store.Delete(ctx, tenantID, id); err != nil {
		return core.Wrap(core.CodeUnavailable, err, "delete memory %s", id)
	}
	s.audit(ctx, tenantID, "delete_memory", "", id, nil)
	return nil
}
