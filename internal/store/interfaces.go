// Package store defines the storage abstractions consumed by the routing,
// reinforcement, and hyphal memory services (spec.md §2.1). Two concrete
// families implement these interfaces: internal/store/postgres (the
// relational vector store, also standing in for the document store per
// SPEC_FULL.md's topology decision) and internal/store/cache (the
// rate-limit/cache store).
//
// Every method is scoped to one tenant, taking tenantID either as an
// argument or as a field of the record it writes, and every implementation
// MUST filter by it server-side; there must be no code path that reads across
// tenants (spec.md §4.5).
package store

import (
	"context"
	"time"

	"github.com/hyphalmesh/substrate/pkg/models"
)

// EdgeStore manages the sparse, lazily-materialized adjacency graph of
// inter-agent edges. Per spec.md §9, callers never materialize a full
// in-memory graph; neighbors of a src are always queried on demand, in
// batch.
type EdgeStore interface {
	// Get returns the edge (src->dst) for tenant, or (nil, nil) if it has
	// not been materialized yet.
	Get(ctx context.Context, tenantID, src, dst string) (*models.Edge, error)

	// TopNeighbors returns up to limit outgoing edges from src ordered by
	// weight descending, in a single query (spec.md §4.2 step 6).
	TopNeighbors(ctx context.Context, tenantID, src string, limit int) ([]models.Edge, error)

	// ApplyDelta atomically reads, clamps, and writes a single edge's
	// weight: w' = clamp(w + delta, wMin, wMax). If the edge does not yet
	// exist, it is materialized starting from wInit before the delta is
	// applied. Returns the resulting weight.
	ApplyDelta(ctx context.Context, tenantID, src, dst string, delta, wInit, wMin, wMax float64) (float64, error)

	// DecayTenant applies the exponential decay update to every edge of a
	// tenant in one batched UPDATE (spec.md §4.4).
	DecayTenant(ctx context.Context, tenantID string, lambdaDecayPerDay, deltaDays, wMin float64) (int64, error)
}

// AgentStore manages agent profiles.
type AgentStore interface {
	Get(ctx context.Context, tenantID, agentID string) (*models.AgentProfile, error)
	Upsert(ctx context.Context, profile models.AgentProfile) error
	// HydrateMany loads full profiles (embedding, capabilities,
	// recent_demand) for a batch of agent ids in one query.
	HydrateMany(ctx context.Context, tenantID string, agentIDs []string) ([]models.AgentProfile, error)
	CountActive(ctx context.Context, tenantID string) (int, error)
	UpdateAvgSuccess(ctx context.Context, tenantID, agentID string, avgSuccess float64) error
	Deactivate(ctx context.Context, tenantID, agentID string) error
	List(ctx context.Context, tenantID string) ([]models.AgentProfile, error)
	// ActiveExcluding returns up to limit active agents other than
	// excludeAgentID, most-recently-active first. Used to round out
	// routing candidates with agents that have no materialized edge yet
	// (spec.md §4.1's edge_w = w_init fallback).
	ActiveExcluding(ctx context.Context, tenantID, excludeAgentID string, limit int) ([]models.AgentProfile, error)
}

// NutrientStore manages ephemeral active nutrients.
type NutrientStore interface {
	Insert(ctx context.Context, n models.Nutrient) error
	Get(ctx context.Context, tenantID, nutrientID string) (*models.Nutrient, error)
	// ActiveForCollect returns unexpired nutrients for collect-side scans.
	ActiveForCollect(ctx context.Context, tenantID string, limit int) ([]models.Nutrient, error)
	// SweepExpired deletes nutrients whose expires_at has passed, per
	// tenant, and returns the count removed.
	SweepExpired(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

// RouteStore manages per-hop route records, the basis of credit
// assignment.
type RouteStore interface {
	// InsertMany persists route records for one nutrient hop; the unique
	// constraint on (nutrient_id, dst, hop_index) enforces at-most-once
	// delivery per hop.
	InsertMany(ctx context.Context, records []models.RouteRecord) error
	ByTrace(ctx context.Context, tenantID, traceID string) ([]models.RouteRecord, error)
	// CleanupOlderThan deletes route records past the retention window
	// whose trace has either an outcome or is itself expired.
	CleanupOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}

// OutcomeStore enforces the exactly-once-per-trace outcome contract.
type OutcomeStore interface {
	// RecordIfAbsent inserts outcome if no prior outcome exists for its
	// trace id. alreadyRecorded is true (err nil) if a prior outcome won
	// the race.
	RecordIfAbsent(ctx context.Context, outcome models.Outcome) (alreadyRecorded bool, err error)
}

// MemoryFilters narrows a Hyphal Memory search.
type MemoryFilters struct {
	MinQuality        float64
	Kind              *models.MemoryKind
	UserID            *string
	SensitivityCeiling models.Sensitivity
}

// MemoryHit is one ANN search result.
type MemoryHit struct {
	Memory     models.Memory
	Similarity float64
}

// MemoryStore manages durable, vector-indexed memories.
type MemoryStore interface {
	Store(ctx context.Context, m models.Memory) error
	Get(ctx context.Context, tenantID, id string) (*models.Memory, error)
	// Search runs ANN retrieval over the tenant-scoped index and applies
	// the filters, returning up to limit candidates ordered by similarity
	// descending (the caller applies MMR afterward).
	Search(ctx context.Context, tenantID string, embedding []float32, limit int, filters MemoryFilters) ([]MemoryHit, error)
	UpdateQuality(ctx context.Context, tenantID, id string, quality float64) error
	IncrementAccessed(ctx context.Context, tenantID, id string) error
	Delete(ctx context.Context, tenantID, id string) error
	SweepExpired(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

// PolicyStore manages tenant-scoped DLP/RBAC/ABAC rules.
type PolicyStore interface {
	ListEnabled(ctx context.Context, tenantID string, kind models.PolicyKind) ([]models.Policy, error)
}

// AuditStore appends signed audit events.
type AuditStore interface {
	Append(ctx context.Context, tenantID, eventType string, canonicalPayload []byte, signature []byte) error
}

// TenantStore manages tenant records.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (*models.Tenant, error)
}

// RateLimitStore provides atomic, TTL-bounded fixed-window counters
// (spec.md §4.5): one counter per window bucket, reset at each bucket
// boundary rather than sliding. Key shape: rl:{tenant}:{key}:{endpoint}:{window}.
type RateLimitStore interface {
	// Incr increments the counter for the current window and returns the
	// post-increment count plus the window's remaining TTL.
	Incr(ctx context.Context, tenantID, key, endpoint string, window time.Duration) (count int64, ttl time.Duration, err error)
}
