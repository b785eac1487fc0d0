package reinforcement

import (
	"context"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/store"
)

// DecayRunner applies the periodic exponential edge-weight decay (spec.md
// §4.4) for a single tenant per invocation; the scheduler is responsible for
// iterating tenants and the tick cadence.
type DecayRunner struct {
	cfg   Config
	edges store.EdgeStore
}

func NewDecayRunner(cfg Config, edges store.EdgeStore) *DecayRunner {
	return &DecayRunner{cfg: cfg, edges: edges}
}

// RunTenant applies one batched decay UPDATE across every edge of tenantID.
// deltaDays is computed server-side by the store from each edge's
// last_update, so decay remains correct regardless of per-edge staleness.
func (d *DecayRunner) RunTenant(ctx context.Context, tenantID string) (int64, error) {
	n, err := d.edges.DecayTenant(ctx, tenantID, d.cfg.LambdaDecayPerDay, 0, d.cfg.WMin)
	if err != nil {
		return 0, core.Wrap(core.CodeUnavailable, err, "decay tenant %s", tenantID)
	}
	return n, nil
}
