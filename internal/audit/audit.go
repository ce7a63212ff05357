package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crmflow/api/internal/store"
)

const (
	ActionLogin            = "auth.login"
	ActionLogout           = "auth.logout"
	ActionDryRunStarted    = "import.dry_run_started"
	ActionDryRunCompleted  = "import.dry_run_completed"
	ActionApplyStarted     = "import.apply_started"
	ActionApplyCompleted   = "import.apply_completed"
	ActionExportDownloaded = "export.download"
)

type Writer interface {
	InsertAuditLog(ctx context.Context, arg store.InsertAuditLogParams) error
}

type Logger struct {
	w      Writer
	logger *slog.Logger
}

func NewLogger(w Writer, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{w: w, logger: logger}
}

type Entry struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	params := store.InsertAuditLogParams{
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}
	if entry.RequestID != "" {
		params.RequestID = &entry.RequestID
	}

	return l.w.InsertAuditLog(ctx, params)
}

// Record writes entry and only logs a failure. Audit rows never fail the
// request that produced them.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if err := l.Log(ctx, entry); err != nil {
		l.logger.Warn("audit_write_failed",
			"action", entry.Action,
			"tenant_id", entry.TenantID.String(),
			"request_id", entry.RequestID,
			"error", err.Error(),
		)
	}
}

// ImportActions returns the start and completion actions for an import mode.
func ImportActions(apply bool) (started, completed string) {
	if apply {
		return ActionApplyStarted, ActionApplyCompleted
	}
	return ActionDryRunStarted, ActionDryRunCompleted
}
