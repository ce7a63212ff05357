package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/csvio"
	"github.com/crmflow/api/internal/datetime"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/schema"
)

type Request struct {
	Entity  schema.Entity
	Text    string
	ActorID string
	Mode    Mode
}

type Options struct {
	MaxRows int
	Dates   datetime.Normalizer
	Logger  *slog.Logger
}

// Importer runs CSV imports row by row. Rows are processed strictly in
// order and each valid row costs exactly one Insert.
type Importer struct {
	records  crm.RecordStore
	resolver *identity.Resolver
	dates    datetime.Normalizer
	validate *validator.Validate
	logger   *slog.Logger
	maxRows  int
}

func New(records crm.RecordStore, resolver *identity.Resolver, opts Options) *Importer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		records:  records,
		resolver: resolver,
		dates:    opts.Dates,
		validate: validator.New(),
		logger:   logger,
		maxRows:  opts.MaxRows,
	}
}

func (im *Importer) Run(ctx context.Context, req Request) (Outcome, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeApply
	}
	entity := req.Entity

	lines := csvio.SplitRecords(req.Text)
	if len(lines) == 0 {
		return Outcome{}, &StructuralError{Code: CodeEmptyFile, Message: "Uploaded CSV is empty"}
	}

	header, err := entity.ResolveHeader(csvio.ParseLine(lines[0].Text))
	if err != nil {
		var missing *schema.MissingColumnsError
		if errors.As(err, &missing) {
			return Outcome{}, &StructuralError{
				Code:    CodeMissingColumns,
				Message: err.Error(),
				Details: map[string]any{"missing": missing.Fields},
				Err:     err,
			}
		}
		return Outcome{}, fmt.Errorf("resolve header: %w", err)
	}

	dataLines := lines[1:]
	if im.maxRows > 0 && len(dataLines) > im.maxRows {
		return Outcome{}, &StructuralError{
			Code:    CodeRowLimitExceeded,
			Message: fmt.Sprintf("CSV has %d rows, the limit is %d", len(dataLines), im.maxRows),
			Details: map[string]any{"maxRows": im.maxRows},
		}
	}

	rows := make([][]string, len(dataLines))
	for i, line := range dataLines {
		rows[i] = csvio.ParseLine(line.Text)
	}
	cells := userCells(entity, header, rows)
	known := im.resolver.IDsByNames(ctx, cells)
	for key, id := range im.resolver.MemberIDs(ctx, cells) {
		known[key] = id
	}

	outcome := Outcome{
		Entity:    entity.Name,
		Mode:      mode,
		RowsTotal: len(dataLines),
		Errors:    []RowError{},
	}
	started := time.Now()

	for i, line := range dataLines {
		rowNumber := i + 1
		record, rowErr := im.buildRecord(entity, header, rows[i], known, req.ActorID)
		if rowErr != nil {
			rowErr.Row = rowNumber
			rowErr.Line = line.Number
			im.logger.Debug("import_row_invalid",
				"entity", entity.Name,
				"row", rowNumber,
				"line", line.Number,
				"field", rowErr.Field,
				"error", rowErr.Message,
			)
			outcome.recordError(*rowErr)
			continue
		}

		if mode == ModeApply {
			if err := im.records.Insert(ctx, entity.Table, record); err != nil {
				im.logger.Warn("import_row_failed",
					"entity", entity.Name,
					"row", rowNumber,
					"line", line.Number,
					"error", err,
				)
				outcome.recordError(RowError{Row: rowNumber, Line: line.Number, Message: err.Error()})
				continue
			}
		}
		outcome.SuccessCount++
	}

	im.logger.Info("import_completed",
		"entity", entity.Name,
		"mode", string(mode),
		"rows_total", outcome.RowsTotal,
		"success_count", outcome.SuccessCount,
		"error_count", outcome.ErrorCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return outcome, nil
}

func userCells(entity schema.Entity, header schema.HeaderMap, rows [][]string) []string {
	fields := entity.UserFields()
	if len(fields) == 0 {
		return nil
	}
	values := make([]string, 0, len(rows)*len(fields))
	for _, row := range rows {
		for _, spec := range fields {
			if v := header.Cell(row, spec.Field); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}

func (im *Importer) buildRecord(
	entity schema.Entity,
	header schema.HeaderMap,
	row []string,
	known map[string]string,
	actorID string,
) (crm.Record, *RowError) {
	var missing []string
	for _, spec := range entity.Required() {
		if header.Cell(row, spec.Field) == "" {
			missing = append(missing, string(spec.Field))
		}
	}
	if len(missing) > 0 {
		return crm.Record{}, &RowError{
			Field:   missing[0],
			Message: "missing required field: " + strings.Join(missing, ", "),
		}
	}

	record := crm.NewRecord()
	for _, spec := range entity.Fields {
		if !spec.Stored() {
			continue
		}
		raw := header.Cell(row, spec.Field)
		value, ok, err := im.normalizeField(spec, raw, header, row, record, known, actorID)
		if err != nil {
			return crm.Record{}, &RowError{Field: string(spec.Field), Message: err.Error(), RawValue: raw}
		}
		if ok {
			record.Set(spec.Field, value)
		}
	}
	return record, nil
}

func (im *Importer) normalizeField(
	spec schema.FieldSpec,
	raw string,
	header schema.HeaderMap,
	row []string,
	record crm.Record,
	known map[string]string,
	actorID string,
) (crm.Value, bool, error) {
	switch spec.Kind {
	case crm.KindUser:
		id := identity.ResolveIdentifierFromName(raw, known, actorID)
		if identity.IsIdentifier(raw) {
			// an id cell must name a user of the importing tenant
			id = actorID
			if member, ok := known[identity.NameKey(raw)]; ok {
				id = member
			}
		}
		if id == "" {
			return crm.Value{}, false, nil
		}
		return crm.TextValue(crm.KindUser, id), true, nil

	case crm.KindEnum:
		return crm.TextValue(crm.KindEnum, normalizeEnum(spec, raw)), true, nil

	case crm.KindTimestamp:
		clock := ""
		if spec.Clock != "" {
			clock = header.Cell(row, spec.Clock)
		}
		if spec.EndOf != "" {
			start, ok := record.Get(spec.EndOf)
			if !ok {
				return crm.Value{}, false, nil
			}
			return crm.TimeValue(crm.KindTimestamp, im.dates.End(start.Time, raw, clock)), true, nil
		}
		if raw == "" {
			return crm.Value{}, false, nil
		}
		t, err := im.dates.Normalize(raw, clock)
		if err != nil {
			return crm.Value{}, false, fmt.Errorf("invalid date %q", raw)
		}
		return crm.TimeValue(crm.KindTimestamp, t), true, nil
	}

	if raw == "" {
		return crm.Value{}, false, nil
	}

	switch spec.Kind {
	case crm.KindEmail:
		email := strings.ToLower(raw)
		if err := im.validate.Var(email, "email"); err != nil {
			return crm.Value{}, false, fmt.Errorf("invalid email %q", raw)
		}
		return crm.TextValue(crm.KindEmail, email), true, nil

	case crm.KindMoney:
		amount, err := parseMoney(raw)
		if err != nil {
			return crm.Value{}, false, err
		}
		return crm.MoneyValue(amount), true, nil

	case crm.KindDate:
		t, err := im.dates.Date(raw)
		if err != nil {
			return crm.Value{}, false, fmt.Errorf("invalid date %q", raw)
		}
		return crm.TimeValue(crm.KindDate, t), true, nil

	case crm.KindPhone:
		return crm.TextValue(crm.KindPhone, strings.Join(strings.Fields(raw), " ")), true, nil

	default:
		return crm.TextValue(spec.Kind, raw), true, nil
	}
}

func normalizeEnum(spec schema.FieldSpec, raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return spec.Default
	}
	for _, allowed := range spec.Enum {
		if key == allowed {
			return allowed
		}
	}
	if mapped, ok := spec.EnumAliases[key]; ok {
		return mapped
	}
	if mapped, ok := spec.EnumAliases[strings.ReplaceAll(key, "_", " ")]; ok {
		return mapped
	}
	return spec.Default
}

func parseMoney(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount must not be negative")
	}
	return amount.Round(2), nil
}
