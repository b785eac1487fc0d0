package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// AgentStore is the pgx-backed internal/store.AgentStore implementation.
type AgentStore struct {
	db *pgxpool.Pool
}

func NewAgentStore(db *pgxpool.Pool) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Get(ctx context.Context, tenantID, agentID string) (*models.AgentProfile, error) {
	var (
		p   models.AgentProfile
		emb pgvector.Vector
	)
	err := s.db.QueryRow(ctx, `
		SELECT tenant_id, agent_id, embedding, capabilities, recent_demand, status, avg_success, last_active
		FROM agent_profiles WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID).Scan(&p.TenantID, &p.AgentID, &emb, &p.Capabilities, &p.RecentDemand, &p.Status, &p.AvgSuccess, &p.LastActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "get agent %s", agentID)
	}
	p.ProfileEmbedding = emb.Slice()
	return &p, nil
}

func (s *AgentStore) Upsert(ctx context.Context, profile models.AgentProfile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_profiles (tenant_id, agent_id, embedding, capabilities, recent_demand, status, avg_success, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE
		SET embedding = $3, capabilities = $4, recent_demand = $5, status = $6, avg_success = $7, last_active = $8`,
		profile.TenantID, profile.AgentID, pgvector.NewVector(profile.ProfileEmbedding),
		profile.Capabilities, profile.RecentDemand, profile.Status, profile.AvgSuccess, profile.LastActive)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "upsert agent %s", profile.AgentID)
	}
	return nil
}

// HydrateMany loads full profiles for a batch of agent ids in one query, so
// the Router Service never issues one round-trip per routing candidate.
func (s *AgentStore) HydrateMany(ctx context.Context, tenantID string, agentIDs []string) ([]models.AgentProfile, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, agent_id, embedding, capabilities, recent_demand, status, avg_success, last_active
		FROM agent_profiles WHERE tenant_id = $1 AND agent_id = ANY($2)`, tenantID, agentIDs)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "hydrate agents")
	}
	defer rows.Close()

	var out []models.AgentProfile
	for rows.Next() {
		var (
			p   models.AgentProfile
			emb pgvector.Vector
		)
		if err := rows.Scan(&p.TenantID, &p.AgentID, &emb, &p.Capabilities, &p.RecentDemand, &p.Status, &p.AvgSuccess, &p.LastActive); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan agent row")
		}
		p.ProfileEmbedding = emb.Slice()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *AgentStore) CountActive(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM agent_profiles WHERE tenant_id = $1 AND status = 'active'`, tenantID).Scan(&n)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "count active agents")
	}
	return n, nil
}

func (s *AgentStore) UpdateAvgSuccess(ctx context.Context, tenantID, agentID string, avgSuccess float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agent_profiles SET avg_success = $3 WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID, avgSuccess)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "update avg_success for %s", agentID)
	}
	return nil
}

func (s *AgentStore) Deactivate(ctx context.Context, tenantID, agentID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agent_profiles SET status = 'inactive' WHERE tenant_id = $1 AND agent_id = $2`,
		tenantID, agentID)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "deactivate agent %s", agentID)
	}
	return nil
}

func (s *AgentStore) List(ctx context.Context, tenantID string) ([]models.AgentProfile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, agent_id, embedding, capabilities, recent_demand, status, avg_success, last_active
		FROM agent_profiles WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "list agents")
	}
	defer rows.Close()

	var out []models.AgentProfile
	for rows.Next() {
		var (
			p   models.AgentProfile
			emb pgvector.Vector
		)
		if err := rows.Scan(&p.TenantID, &p.AgentID, &emb, &p.Capabilities, &p.RecentDemand, &p.Status, &p.AvgSuccess, &p.LastActive); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan agent row")
		}
		p.ProfileEmbedding = emb.Slice()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveExcluding backs cold-start candidate loading: agents with no
// materialized edge from the sender still need to be routable.
func (s *AgentStore) ActiveExcluding(ctx context.Context, tenantID, excludeAgentID string, limit int) ([]models.AgentProfile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, agent_id, embedding, capabilities, recent_demand, status, avg_success, last_active
		FROM agent_profiles
		WHERE tenant_id = $1 AND status = 'active' AND agent_id != $2
		ORDER BY last_active DESC LIMIT $3`, tenantID, excludeAgentID, limit)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "active agents excluding %s", excludeAgentID)
	}
	defer rows.Close()

	var out []models.AgentProfile
	for rows.Next() {
		var (
			p   models.AgentProfile
			emb pgvector.Vector
		)
		if err := rows.Scan(&p.TenantID, &p.AgentID, &emb, &p.Capabilities, &p.RecentDemand, &p.Status, &p.AvgSuccess, &p.LastActive); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan agent row")
		}
		p.ProfileEmbedding = emb.Slice()
		out = append(out, p)
	}
	return out, rows.Err()
}
