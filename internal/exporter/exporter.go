package exporter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/csvio"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/schema"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatCSV:
		return FormatCSV, true
	case FormatXLSX:
		return FormatXLSX, true
	default:
		return "", false
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

type Options struct {
	Location *time.Location
	MaxRows  int
	Logger   *slog.Logger
}

// Exporter turns stored records into downloadable tables. User references are
// resolved to display names with a single lookup per export.
type Exporter struct {
	records  crm.RecordStore
	resolver *identity.Resolver
	location *time.Location
	maxRows  int
	logger   *slog.Logger
}

func New(records crm.RecordStore, resolver *identity.Resolver, opts Options) *Exporter {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		records:  records,
		resolver: resolver,
		location: loc,
		maxRows:  opts.MaxRows,
		logger:   logger,
	}
}

type Request struct {
	Entity schema.Entity
	Filter crm.Filter
	Format Format
	Now    time.Time
}

type File struct {
	Name        string
	ContentType string
	Body        []byte
	Rows        int
}

func (e *Exporter) Export(ctx context.Context, req Request) (File, error) {
	format := req.Format
	if format == "" {
		format = FormatCSV
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	filter := req.Filter
	if e.maxRows > 0 && (filter.Limit <= 0 || filter.Limit > e.maxRows) {
		filter.Limit = e.maxRows
	}
	records, err := e.records.Select(ctx, req.Entity.Table, filter)
	if err != nil {
		return File{}, fmt.Errorf("select %s: %w", req.Entity.Table, err)
	}

	header := req.Entity.ExportHeader()
	rows := e.Rows(ctx, req.Entity, records)

	var body []byte
	switch format {
	case FormatXLSX:
		body, err = buildWorkbook(req.Entity.Name, header, rows)
		if err != nil {
			return File{}, err
		}
	default:
		body = []byte(csvio.Build(header, rows))
	}

	e.logger.Info("export_completed",
		"entity", req.Entity.Name,
		"format", string(format),
		"rows", len(rows),
	)
	return File{
		Name:        Filename(req.Entity.Name, format, now.In(e.location)),
		ContentType: format.ContentType(),
		Body:        body,
		Rows:        len(rows),
	}, nil
}

// Rows formats records in export column order.
func (e *Exporter) Rows(ctx context.Context, entity schema.Entity, records []crm.Record) [][]string {
	var ids []string
	for _, spec := range entity.UserFields() {
		for _, rec := range records {
			if id := rec.Text(spec.Field); id != "" {
				ids = append(ids, id)
			}
		}
	}
	names := e.resolver.DisplayNames(ctx, ids)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(entity.Export))
		for i, field := range entity.Export {
			row[i] = e.formatValue(rec, field, names)
		}
		rows = append(rows, row)
	}
	return rows
}

func (e *Exporter) formatValue(rec crm.Record, field crm.Field, names map[string]string) string {
	value, ok := rec.Get(field)
	if !ok {
		return ""
	}
	switch value.Kind {
	case crm.KindTimestamp:
		if value.Time.IsZero() {
			return ""
		}
		return value.Time.In(e.location).Format(time.RFC3339)
	case crm.KindDate:
		if value.Time.IsZero() {
			return ""
		}
		return value.Time.Format("2006-01-02")
	case crm.KindMoney:
		return value.Money.StringFixed(2)
	case crm.KindUser:
		return names[value.Text]
	default:
		return value.Text
	}
}

func Filename(entity string, format Format, now time.Time) string {
	return fmt.Sprintf("%s_export_%s.%s", entity, now.Format("2006-01-02"), format)
}

func buildWorkbook(sheet string, header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return nil, fmt.Errorf("stream writer: %w", err)
	}
	if err := sw.SetRow("A1", toCells(header)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush sheet: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
