package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// PolicyStore is the pgx-backed internal/store.PolicyStore implementation.
// Rules are stored as a JSON column and decoded in Go; the policy grammar is
// a small closed set (path/match/action), not a dynamically loaded engine.
type PolicyStore struct {
	db *pgxpool.Pool
}

func NewPolicyStore(db *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{db: db}
}

func (s *PolicyStore) ListEnabled(ctx context.Context, tenantID string, kind models.PolicyKind) ([]models.Policy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, id, kind, rules, priority, enabled
		FROM policies WHERE tenant_id = $1 AND kind = $2 AND enabled = true
		ORDER BY priority DESC`, tenantID, kind)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "list enabled policies")
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var (
			p        models.Policy
			rulesRaw []byte
		)
		if err := rows.Scan(&p.TenantID, &p.ID, &p.Kind, &rulesRaw, &p.Priority, &p.Enabled); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "scan policy row")
		}
		if err := json.Unmarshal(rulesRaw, &p.Rules); err != nil {
			return nil, core.Wrap(core.CodeInternal, err, "decode policy rules for %s", p.ID)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
