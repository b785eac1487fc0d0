package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/internal/router"
	"github.com/hyphalmesh/substrate/pkg/models"
)

var _ router.Deliverer = (*Mailbox)(nil)

// Mailbox is the Postgres-backed internal/router.Deliverer implementation:
// delivery is an append to the recipient's inbox row set, polled by the
// recipient agent out-of-band. Per spec.md §1's at-most-once contract, a
// failed insert is surfaced to the caller (router.Service logs it and moves
// on to the next recipient) rather than retried here.
type Mailbox struct {
	db *pgxpool.Pool
}

func NewMailbox(db *pgxpool.Pool) *Mailbox {
	return &Mailbox{db: db}
}

func (m *Mailbox) Deliver(ctx context.Context, tenantID, recipientAgentID, traceID string, n models.Nutrient) error {
	_, err := m.db.Exec(ctx, `
		INSERT INTO agent_inbox (tenant_id, recipient_agent, nutrient_id, trace_id, summary, embedding,
			snippets, tool_hints, sensitivity, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (tenant_id, recipient_agent, nutrient_id) DO NOTHING`,
		tenantID, recipientAgentID, n.ID, traceID, n.Summary, pgvector.NewVector(n.Embedding),
		n.Snippets, n.ToolHints, n.Sensitivity)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "deliver nutrient %s to %s", n.ID, recipientAgentID)
	}
	return nil
}
