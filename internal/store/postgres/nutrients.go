package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// NutrientStore is the pgx-backed internal/store.NutrientStore implementation.
type NutrientStore struct {
	db *pgxpool.Pool
}

func NewNutrientStore(db *pgxpool.Pool) *NutrientStore {
	return &NutrientStore{db: db}
}

func (s *NutrientStore) Insert(ctx context.Context, n models.Nutrient) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO nutrients (id, tenant_id, trace_id, sender_agent, summary, embedding, snippets,
			tool_hints, sensitivity, ttl_sec, max_hops, current_hop, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.TenantID, n.TraceID, n.SenderAgent, n.Summary, pgvector.NewVector(n.Embedding), n.Snippets,
		n.ToolHints, n.Sensitivity, n.TTLSec, n.MaxHops, n.CurrentHop, n.CreatedAt, n.ExpiresAt)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "insert nutrient %s", n.ID)
	}
	return nil
}

func (s *NutrientStore) Get(ctx context.Context, tenantID, nutrientID string) (*models.Nutrient, error) {
	var (
		n   models.Nutrient
		emb pgvector.Vector
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, trace_id, sender_agent, summary, embedding, snippets, tool_hints,
			sensitivity, ttl_sec, max_hops, current_hop, created_at, expires_at
		FROM nutrients WHERE tenant_id = $1 AND id = $2`,
		tenantID, nutrientID).Scan(&n.ID, &n.TenantID, &n.TraceID, &n.SenderAgent, &n.Summary, &emb,
		&n.Snippets, &n.ToolHints, &n.Sensitivity, &n.TTLSec, &n.MaxHops, &n.CurrentHop, &n.CreatedAt, &n.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "get nutrient %s", nutrientID)
	}
	n.Embedding = emb.Slice()
	return &n, nil
}

func (s *NutrientStore) ActiveForCollect(ctx context.Context, tenantID string, limit int) ([]models.Nutrient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, trace_id, sender_agent, summary, embedding, snippets, tool_hints,
			sensitivity, ttl_sec, max_hops, current_hop, created_at, expires_at
		FROM nutrients
		WHERE tenant_id = $1 AND expires_at > now() AND current_hop < max_hops
		ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "active nutrients for collect")
	}
	defer rows.Close()

	var out []models.Nutrient
	for rows.Next() {
		var (
			n   models.Nutrient
			emb pgvector.Vector
		)
		if err := rows.Scan(&n.ID, &n.TenantID, &n.TraceID, &n.SenderAgent, &n.Summary, &emb,
			&n.Snippets, &n.ToolHints, &n.Sensitivity, &n.TTLSec, &n.MaxHops, &n.CurrentHop, &n.CreatedAt, &n.ExpiresAt); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan nutrient row")
		}
		n.Embedding = emb.Slice()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NutrientStore) SweepExpired(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM nutrients WHERE tenant_id = $1 AND expires_at <= $2`, tenantID, now)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "sweep expired nutrients")
	}
	return tag.RowsAffected(), nil
}
