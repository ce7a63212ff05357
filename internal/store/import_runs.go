package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MaxStoredRowErrors caps the row errors kept per run.
const MaxStoredRowErrors = 1000

type ImportRun struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	CreatedByUserID *uuid.UUID
	Entity          string
	Mode            string
	Filename        string
	FileSHA256      string
	Status          string
	SummaryJSON     []byte
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

type CreateImportRunParams struct {
	TenantID        uuid.UUID
	CreatedByUserID *uuid.UUID
	Entity          string
	Mode            string
	Filename        string
	FileSHA256      string
	Status          string
}

const importRunColumns = `id, tenant_id, created_by_user_id, entity, mode, filename, file_sha256, status, summary_json, created_at, completed_at`

func scanImportRun(row pgx.Row) (ImportRun, error) {
	var run ImportRun
	err := row.Scan(
		&run.ID, &run.TenantID, &run.CreatedByUserID, &run.Entity, &run.Mode, &run.Filename,
		&run.FileSHA256, &run.Status, &run.SummaryJSON, &run.CreatedAt, &run.CompletedAt,
	)
	return run, err
}

func (q *Queries) CreateImportRun(ctx context.Context, arg CreateImportRunParams) (ImportRun, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO import_runs (tenant_id, created_by_user_id, entity, mode, filename, file_sha256, status, summary_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, '{}'::jsonb)
RETURNING `+importRunColumns,
		arg.TenantID, arg.CreatedByUserID, arg.Entity, arg.Mode, arg.Filename, arg.FileSHA256, arg.Status,
	)
	run, err := scanImportRun(row)
	if err != nil {
		return ImportRun{}, fmt.Errorf("create import run: %w", err)
	}
	return run, nil
}

type CompleteImportRunParams struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Status      string
	SummaryJSON []byte
}

func (q *Queries) CompleteImportRun(ctx context.Context, arg CompleteImportRunParams) (ImportRun, error) {
	row := q.db.QueryRow(ctx, `
UPDATE import_runs
SET status = $3, summary_json = $4, completed_at = now()
WHERE id = $1 AND tenant_id = $2
RETURNING `+importRunColumns,
		arg.ID, arg.TenantID, arg.Status, arg.SummaryJSON,
	)
	run, err := scanImportRun(row)
	if err != nil {
		return ImportRun{}, notFound(err)
	}
	return run, nil
}

func (q *Queries) GetImportRunByID(ctx context.Context, id, tenantID uuid.UUID) (ImportRun, error) {
	row := q.db.QueryRow(ctx, `SELECT `+importRunColumns+` FROM import_runs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	run, err := scanImportRun(row)
	if err != nil {
		return ImportRun{}, notFound(err)
	}
	return run, nil
}

type ImportRowError struct {
	RowNumber  int32
	LineNumber int32
	Field      *string
	Message    string
	RawValue   *string
}

var importRowErrorColumns = []string{"tenant_id", "import_run_id", "row_number", "line_number", "field", "message", "raw_value"}

// InsertImportRowErrors copies up to MaxStoredRowErrors rows and returns how
// many were stored.
func (q *Queries) InsertImportRowErrors(ctx context.Context, tenantID, runID uuid.UUID, rows []ImportRowError) (int64, error) {
	if len(rows) > MaxStoredRowErrors {
		rows = rows[:MaxStoredRowErrors]
	}
	if len(rows) == 0 {
		return 0, nil
	}
	src := make([][]any, 0, len(rows))
	for _, r := range rows {
		src = append(src, []any{tenantID, runID, r.RowNumber, r.LineNumber, r.Field, r.Message, r.RawValue})
	}
	n, err := q.db.CopyFrom(ctx, pgx.Identifier{"import_row_errors"}, importRowErrorColumns, pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("copy import row errors: %w", err)
	}
	return n, nil
}

func (q *Queries) ListImportRowErrors(ctx context.Context, tenantID, runID uuid.UUID, limit int) ([]ImportRowError, error) {
	if limit <= 0 || limit > MaxStoredRowErrors {
		limit = MaxStoredRowErrors
	}
	rows, err := q.db.Query(ctx, `
SELECT row_number, line_number, field, message, raw_value
FROM import_row_errors
WHERE tenant_id = $1 AND import_run_id = $2
ORDER BY row_number, id
LIMIT $3
`, tenantID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import row errors: %w", err)
	}
	defer rows.Close()

	out := []ImportRowError{}
	for rows.Next() {
		var r ImportRowError
		if err := rows.Scan(&r.RowNumber, &r.LineNumber, &r.Field, &r.Message, &r.RawValue); err != nil {
			return nil, fmt.Errorf("scan import row error: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
