package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/store"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// MemoryStore is the pgx-backed internal/store.MemoryStore implementation.
type MemoryStore struct {
	db *pgxpool.Pool
}

func NewMemoryStore(db *pgxpool.Pool) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Store(ctx context.Context, m models.Memory) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memories (id, tenant_id, agent_id, kind, content_type, content, embedding,
			quality, sensitivity, metadata, user_id, accessed_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.TenantID, m.AgentID, m.Kind, m.ContentType, m.Content, pgvector.NewVector(m.Embedding),
		m.Quality, m.Sensitivity, m.Metadata, m.UserID, m.AccessedCount, m.CreatedAt, m.ExpiresAt)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "store memory %s", m.ID)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, id string) (*models.Memory, error) {
	var (
		m   models.Memory
		emb pgvector.Vector
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, agent_id, kind, content_type, content, embedding, quality, sensitivity,
			metadata, user_id, accessed_count, created_at, expires_at
		FROM memories WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).Scan(&m.ID, &m.TenantID, &m.AgentID, &m.Kind, &m.ContentType, &m.Content, &emb,
		&m.Quality, &m.Sensitivity, &m.Metadata, &m.UserID, &m.AccessedCount, &m.CreatedAt, &m.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "get memory %s", id)
	}
	m.Embedding = emb.Slice()
	return &m, nil
}

// sensitivityRankSQL mirrors pkg/models' private sensitivityRank table so
// the sensitivity ceiling can be evaluated server-side without pulling rows
// across the network first.
const sensitivityRankSQL = `CASE sensitivity
	WHEN 'public' THEN 0
	WHEN 'internal' THEN 1
	WHEN 'confidential' THEN 2
	WHEN 'secret' THEN 3
	ELSE 0 END`

// Search runs ANN retrieval (pgvector cosine distance operator) scoped to
// the tenant, with quality/kind/user/sensitivity filters applied server-
// side, ordered by similarity descending. The caller applies MMR afterward;
// this method deliberately over-fetches (limit) raw candidates only.
func (s *MemoryStore) Search(ctx context.Context, tenantID string, embedding []float32, limit int, filters store.MemoryFilters) ([]store.MemoryHit, error) {
	clauses := []string{"tenant_id = $1", "(expires_at IS NULL OR expires_at > now())", "quality >= $2"}
	args := []any{tenantID, filters.MinQuality}
	argN := 3

	if filters.Kind != nil {
		clauses = append(clauses, fmt.Sprintf("kind = $%d", argN))
		args = append(args, *filters.Kind)
		argN++
	}
	if filters.UserID != nil {
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", argN))
		args = append(args, *filters.UserID)
		argN++
	}
	if filters.SensitivityCeiling != "" {
		rank := map[models.Sensitivity]int{
			models.SensitivityPublic:       0,
			models.SensitivityInternal:     1,
			models.SensitivityConfidential: 2,
			models.SensitivitySecret:       3,
		}[filters.SensitivityCeiling]
		clauses = append(clauses, fmt.Sprintf("(%s) <= $%d", sensitivityRankSQL, argN))
		args = append(args, rank)
		argN++
	}

	vecArg := argN
	args = append(args, pgvector.NewVector(embedding))
	argN++
	limitArg := argN
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, tenant_id, agent_id, kind, content_type, content, embedding, quality, sensitivity,
			metadata, user_id, accessed_count, created_at, expires_at,
			1 - (embedding <=> $%d) AS similarity
		FROM memories
		WHERE %s
		ORDER BY embedding <=> $%d ASC
		LIMIT $%d`, vecArg, strings.Join(clauses, " AND "), vecArg, limitArg)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "search memories")
	}
	defer rows.Close()

	var out []store.MemoryHit
	for rows.Next() {
		var (
			h   store.MemoryHit
			emb pgvector.Vector
		)
		if err := rows.Scan(&h.Memory.ID, &h.Memory.TenantID, &h.Memory.AgentID, &h.Memory.Kind, &h.Memory.ContentType,
			&h.Memory.Content, &emb, &h.Memory.Quality, &h.Memory.Sensitivity, &h.Memory.Metadata, &h.Memory.UserID,
			&h.Memory.AccessedCount, &h.Memory.CreatedAt, &h.Memory.ExpiresAt, &h.Similarity); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan memory hit")
		}
		h.Memory.Embedding = emb.Slice()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *MemoryStore) UpdateQuality(ctx context.Context, tenantID, id string, quality float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE memories SET quality = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, quality)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "update quality for memory %s", id)
	}
	return nil
}

func (s *MemoryStore) IncrementAccessed(ctx context.Context, tenantID, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE memories SET accessed_count = accessed_count + 1 WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "increment accessed for memory %s", id)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM memories WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "delete memory %s", id)
	}
	return nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, tenantID string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM memories WHERE tenant_id = $1 AND expires_at IS NOT NULL AND expires_at <= $2`, tenantID, now)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "sweep expired memories")
	}
	return tag.RowsAffected(), nil
}
