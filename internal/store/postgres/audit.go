package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyphalmesh/substrate/internal/core"
)

// AuditStore is the pgx-backed internal/store.AuditStore implementation.
// Audit events are append-only: there is no Update or Delete method, by
// design of the interface, not this implementation.
type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, tenantID, eventType string, canonicalPayload []byte, signature []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (id, tenant_id, event_type, payload, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.NewString(), tenantID, eventType, canonicalPayload, signature)
	if err != nil {
		return core.Wrap(core.CodeUnavailable, err, "append audit event %s", eventType)
	}
	return nil
}
