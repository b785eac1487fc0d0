package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// OutcomeStore is the pgx-backed internal/store.OutcomeStore implementation.
type OutcomeStore struct {
	db *pgxpool.Pool
}

func NewOutcomeStore(db *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{db: db}
}

// RecordIfAbsent relies on a unique constraint on (tenant_id, trace_id) to
// enforce exactly-once recording: a conflicting insert means some other
// caller already recorded this trace's outcome first.
func (s *OutcomeStore) RecordIfAbsent(ctx context.Context, outcome models.Outcome) (bool, error) {
	hopScores := make(map[string]float64, len(outcome.HopScores))
	for k, v := range outcome.HopScores {
		hopScores[k] = v
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO outcomes (tenant_id, trace_id, overall_score, hop_scores, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, trace_id) DO NOTHING`,
		outcome.TenantID, outcome.TraceID, outcome.OverallScore, hopScores, outcome.RecordedAt)
	if err != nil {
		return false, core.Wrap(core.CodeUnavailable, err, "record outcome for trace %s", outcome.TraceID)
	}
	return tag.RowsAffected() == 0, nil
}
