package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/schema"
)

// TenantRecords is a crm.RecordStore bound to one tenant. Inserted rows are
// attributed to the acting user.
type TenantRecords struct {
	q        *Queries
	tenantID uuid.UUID
	actorID  *uuid.UUID
}

func (q *Queries) Records(tenantID uuid.UUID, actorID *uuid.UUID) *TenantRecords {
	return &TenantRecords{q: q, tenantID: tenantID, actorID: actorID}
}

func (s *TenantRecords) Insert(ctx context.Context, table string, record crm.Record) error {
	entity, err := schema.Lookup(table)
	if err != nil {
		return err
	}
	sql, columns := insertStatement(entity)

	args := make([]any, 0, len(columns)+2)
	args = append(args, s.tenantID, s.actorID)
	for _, spec := range entity.StoredFields() {
		v, err := columnValue(spec, record)
		if err != nil {
			return err
		}
		args = append(args, v)
	}

	if _, err := s.q.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", entity.Table, err)
	}
	return nil
}

func (s *TenantRecords) Select(ctx context.Context, table string, filter crm.Filter) ([]crm.Record, error) {
	entity, err := schema.Lookup(table)
	if err != nil {
		return nil, err
	}
	sql, args, err := selectStatement(entity, s.tenantID, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", entity.Table, err)
	}
	defer rows.Close()

	stored := entity.StoredFields()
	var out []crm.Record
	for rows.Next() {
		rec, err := scanRecord(rows, stored)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity.Table, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func insertStatement(entity schema.Entity) (string, []string) {
	columns := []string{"tenant_id", "created_by"}
	for _, spec := range entity.StoredFields() {
		columns = append(columns, spec.Column)
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{entity.Table}.Sanitize(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	), columns
}

func selectStatement(entity schema.Entity, tenantID uuid.UUID, filter crm.Filter) (string, []any, error) {
	columns := []string{"id", "created_at"}
	for _, spec := range entity.StoredFields() {
		columns = append(columns, spec.Column)
	}

	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	if filter.OwnerID != "" {
		field := filter.OwnerField
		if field == "" {
			field = entity.OwnerField
		}
		spec, ok := entity.Spec(field)
		if !ok || spec.Kind != crm.KindUser {
			return "", nil, fmt.Errorf("%s has no user field %q", entity.Name, field)
		}
		ownerID, err := uuid.Parse(filter.OwnerID)
		if err != nil {
			return "", nil, fmt.Errorf("owner id: %w", err)
		}
		args = append(args, ownerID)
		where = append(where, spec.Column+" = $"+strconv.Itoa(len(args)))
	}
	if filter.CreatedGTE != nil {
		args = append(args, *filter.CreatedGTE)
		where = append(where, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.CreatedLT != nil {
		args = append(args, *filter.CreatedLT)
		where = append(where, "created_at < $"+strconv.Itoa(len(args)))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at, id",
		strings.Join(columns, ", "),
		pgx.Identifier{entity.Table}.Sanitize(),
		strings.Join(where, " AND "),
	)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(args))
	}
	return sql, args, nil
}

func columnValue(spec schema.FieldSpec, record crm.Record) (any, error) {
	v, ok := record.Get(spec.Field)
	if !ok || v.IsZero() {
		return nil, nil
	}
	switch spec.Kind {
	case crm.KindMoney:
		return v.Money.Shift(2).Round(0).IntPart(), nil
	case crm.KindDate, crm.KindTimestamp:
		return v.Time, nil
	case crm.KindUser:
		id, err := uuid.Parse(v.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Field, err)
		}
		return id, nil
	default:
		return v.Text, nil
	}
}

func scanRecord(rows pgx.Rows, stored []schema.FieldSpec) (crm.Record, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
	)
	targets := make([]any, 0, len(stored)+2)
	targets = append(targets, &id, &createdAt)

	texts := make([]*string, len(stored))
	times := make([]*time.Time, len(stored))
	cents := make([]*int64, len(stored))
	users := make([]*uuid.UUID, len(stored))
	for i, spec := range stored {
		switch spec.Kind {
		case crm.KindMoney:
			targets = append(targets, &cents[i])
		case crm.KindDate, crm.KindTimestamp:
			targets = append(targets, &times[i])
		case crm.KindUser:
			targets = append(targets, &users[i])
		default:
			targets = append(targets, &texts[i])
		}
	}
	if err := rows.Scan(targets...); err != nil {
		return crm.Record{}, err
	}

	rec := crm.NewRecord()
	rec.ID = id.String()
	rec.CreatedAt = createdAt
	for i, spec := range stored {
		switch {
		case cents[i] != nil:
			rec.Set(spec.Field, crm.MoneyValue(decimal.New(*cents[i], -2)))
		case times[i] != nil:
			rec.Set(spec.Field, crm.TimeValue(spec.Kind, *times[i]))
		case users[i] != nil:
			rec.Set(spec.Field, crm.TextValue(crm.KindUser, users[i].String()))
		case texts[i] != nil:
			rec.Set(spec.Field, crm.TextValue(spec.Kind, *texts[i]))
		}
	}
	return rec, nil
}
