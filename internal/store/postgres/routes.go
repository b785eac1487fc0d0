package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// RouteStore is the pgx-backed internal/store.RouteStore implementation.
type RouteStore struct {
	db *pgxpool.Pool
}

func NewRouteStore(db *pgxpool.Pool) *RouteStore {
	return &RouteStore{db: db}
}

// InsertMany persists one hop's route records in a single batched statement.
// The unique constraint on (nutrient_id, dst, hop_index) enforces at-most-
// once delivery per hop; a conflict is silently ignored rather than failing
// the whole batch, since a retried delivery must stay idempotent.
func (s *RouteStore) InsertMany(ctx context.Context, records []models.RouteRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO route_records (nutrient_id, tenant_id, trace_id, src, dst, hop_index, score, exploration, memory_refs, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (nutrient_id, dst, hop_index) DO NOTHING`,
			r.NutrientID, r.TenantID, r.TraceID, r.Src, r.Dst, r.HopIndex, r.Score, r.Exploration, r.MemoryRefs, r.CreatedAt)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return core.Wrap(core.CodeUnavailable, err, "insert route records")
		}
	}
	return nil
}

func (s *RouteStore) ByTrace(ctx context.Context, tenantID, traceID string) ([]models.RouteRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT nutrient_id, tenant_id, trace_id, src, dst, hop_index, score, exploration, memory_refs, created_at
		FROM route_records WHERE tenant_id = $1 AND trace_id = $2
		ORDER BY hop_index ASC`, tenantID, traceID)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "route records for trace %s", traceID)
	}
	defer rows.Close()

	var out []models.RouteRecord
	for rows.Next() {
		var r models.RouteRecord
		if err := rows.Scan(&r.NutrientID, &r.TenantID, &r.TraceID, &r.Src, &r.Dst, &r.HopIndex, &r.Score, &r.Exploration, &r.MemoryRefs, &r.CreatedAt); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan route record")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanupOlderThan deletes route records past the retention window whose
// trace has either a recorded outcome or is itself expired (joined via the
// parent nutrient), per spec.md §4.4's retention policy.
func (s *RouteStore) CleanupOlderThan(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM route_records r
		WHERE r.tenant_id = $1 AND r.created_at < $2
		AND (
			EXISTS (SELECT 1 FROM outcomes o WHERE o.tenant_id = r.tenant_id AND o.trace_id = r.trace_id)
			OR NOT EXISTS (
				SELECT 1 FROM nutrients n
				WHERE n.tenant_id = r.tenant_id AND n.id = r.nutrient_id AND n.expires_at > now()
			)
		)`, tenantID, cutoff)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "cleanup route records")
	}
	return tag.RowsAffected(), nil
}
