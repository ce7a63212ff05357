package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type InsertAuditLogParams struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  *string
	Metadata   []byte
}

const insertAuditLog = `
INSERT INTO audit_logs (tenant_id, user_id, action, entity_type, entity_id, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	if _, err := q.db.Exec(ctx, insertAuditLog,
		arg.TenantID, arg.UserID, arg.Action, arg.EntityType, arg.EntityID, arg.RequestID, arg.Metadata,
	); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
