package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// TenantStore is the pgx-backed internal/store.TenantStore implementation.
type TenantStore struct {
	db *pgxpool.Pool
}

func NewTenantStore(db *pgxpool.Pool) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) Get(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx, `
		SELECT id, plan_tier, status, region, quotas, created_at
		FROM tenants WHERE id = $1`, tenantID).Scan(&t.ID, &t.PlanTier, &t.Status, &t.Region, &t.Quotas, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.New(core.CodeNotFound, "tenant %s not found", tenantID)
	}
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "get tenant %s", tenantID)
	}
	return &t, nil
}

// ListTenantIDs returns every active tenant id, satisfying
// internal/scheduler's TenantLister so maintenance jobs can iterate all
// tenants in one query.
func (s *TenantStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM tenants WHERE status = 'active'`)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "list tenant ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan tenant id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
