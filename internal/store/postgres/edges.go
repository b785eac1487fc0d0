package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// EdgeStore is the pgx-backed internal/store.EdgeStore implementation.
type EdgeStore struct {
	db *pgxpool.Pool
}

func NewEdgeStore(db *pgxpool.Pool) *EdgeStore {
	return &EdgeStore{db: db}
}

func (s *EdgeStore) Get(ctx context.Context, tenantID, src, dst string) (*models.Edge, error) {
	var e models.Edge
	err := s.db.QueryRow(ctx, `
		SELECT tenant_id, src, dst, weight, last_update
		FROM edges WHERE tenant_id = $1 AND src = $2 AND dst = $3`,
		tenantID, src, dst).Scan(&e.TenantID, &e.Src, &e.Dst, &e.Weight, &e.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "get edge %s->%s", src, dst)
	}
	return &e, nil
}

func (s *EdgeStore) TopNeighbors(ctx context.Context, tenantID, src string, limit int) ([]models.Edge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, src, dst, weight, last_update
		FROM edges WHERE tenant_id = $1 AND src = $2
		ORDER BY weight DESC LIMIT $3`, tenantID, src, limit)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "top neighbors of %s", src)
	}
	defer rows.Close()

	var out []models.Edge
	for rows.Next() {
		var e models.Edge
		if err := rows.Scan(&e.TenantID, &e.Src, &e.Dst, &e.Weight, &e.LastUpdate); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan edge row")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyDelta materializes the edge at wInit if absent, then atomically
// applies w' = clamp(w + delta, wMin, wMax) in a single statement so
// concurrent reinforcement updates never race on a read-modify-write.
func (s *EdgeStore) ApplyDelta(ctx context.Context, tenantID, src, dst string, delta, wInit, wMin, wMax float64) (float64, error) {
	var w float64
	err := s.db.QueryRow(ctx, `
		INSERT INTO edges (tenant_id, src, dst, weight, last_update)
		VALUES ($1, $2, $3, LEAST(GREATEST($4 + $5, $6), $7), now())
		ON CONFLICT (tenant_id, src, dst) DO UPDATE
		SET weight = LEAST(GREATEST(edges.weight + $5, $6), $7), last_update = now()
		RETURNING weight`,
		tenantID, src, dst, wInit, delta, wMin, wMax).Scan(&w)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "apply delta to edge %s->%s", src, dst)
	}
	return w, nil
}

// DecayTenant applies w <- wMin + (w - wMin) * exp(-lambda * deltaDays) to
// every edge of a tenant in one batched UPDATE (spec.md §4.4). deltaDays is
// computed per-row from last_update via extract(epoch from ...).
func (s *EdgeStore) DecayTenant(ctx context.Context, tenantID string, lambdaDecayPerDay, _ /* deltaDays unused, computed per-row */ float64, wMin float64) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE edges
		SET weight = $2 + (weight - $2) * exp(-$3 * extract(epoch FROM (now() - last_update)) / 86400.0),
		    last_update = now()
		WHERE tenant_id = $1`,
		tenantID, wMin, lambdaDecayPerDay)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "decay edges for tenant %s", tenantID)
	}
	return tag.RowsAffected(), nil
}
