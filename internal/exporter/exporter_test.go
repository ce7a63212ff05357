package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/csvio"
	"github.com/crmflow/api/internal/datetime"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/importer"
	"github.com/crmflow/api/internal/schema"
)

var userIDs = []string{
	"7c9e6679-7425-40de-944b-e07fc1f90ae1",
	"7c9e6679-7425-40de-944b-e07fc1f90ae2",
	"7c9e6679-7425-40de-944b-e07fc1f90ae3",
}

var userNames = map[string]string{
	userIDs[0]: "Ada Lovelace",
	userIDs[1]: "Grace Hopper",
	userIDs[2]: "Alan Turing",
}

type sliceRecords struct {
	rows       []crm.Record
	lastFilter crm.Filter
}

func (s *sliceRecords) Insert(_ context.Context, _ string, record crm.Record) error {
	s.rows = append(s.rows, record)
	return nil
}

func (s *sliceRecords) Select(_ context.Context, _ string, filter crm.Filter) ([]crm.Record, error) {
	s.lastFilter = filter
	return s.rows, nil
}

type directory struct {
	nameCalls int
	idCalls   int
}

func (d *directory) FetchDisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	d.nameCalls++
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := userNames[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (d *directory) FetchIDsByNames(_ context.Context, names []string) (map[string]string, error) {
	d.idCalls++
	out := map[string]string{}
	for id, name := range userNames {
		key := identity.NameKey(name)
		for _, n := range names {
			if n == key {
				out[key] = id
			}
		}
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExporter(records crm.RecordStore, profiles crm.ProfileStore) *Exporter {
	return New(records, identity.NewResolver(profiles, discard()), Options{Location: time.UTC, MaxRows: 1000, Logger: discard()})
}

func meetingRecord(i int) crm.Record {
	start := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	rec := crm.NewRecord()
	rec.Set(crm.FieldSubject, crm.TextValue(crm.KindText, fmt.Sprintf("Meeting %d", i)))
	rec.Set(crm.FieldStart, crm.TimeValue(crm.KindTimestamp, start))
	rec.Set(crm.FieldEnd, crm.TimeValue(crm.KindTimestamp, start.Add(time.Hour)))
	rec.Set(crm.FieldStatus, crm.TextValue(crm.KindEnum, "scheduled"))
	rec.Set(crm.FieldOrganizer, crm.TextValue(crm.KindUser, userIDs[i%len(userIDs)]))
	return rec
}

func TestExportBatchesNameLookup(t *testing.T) {
	records := &sliceRecords{}
	for i := 0; i < 100; i++ {
		records.rows = append(records.rows, meetingRecord(i))
	}
	profiles := &directory{}
	exp := newExporter(records, profiles)

	entity, err := schema.Lookup("meetings")
	require.NoError(t, err)

	file, err := exp.Export(context.Background(), Request{Entity: entity, Now: time.Date(2026, 3, 22, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	assert.Equal(t, 1, profiles.nameCalls)
	assert.Equal(t, 100, file.Rows)
	assert.Equal(t, "meetings_export_2026-03-22.csv", file.Name)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, 1000, records.lastFilter.Limit)

	lines := csvio.SplitRecords(string(file.Body))
	require.Len(t, lines, 101)
	assert.Equal(t, "subject,start_time,end_time,location,description,status,organizer_id", lines[0].Text)
	assert.Equal(t, "Meeting 0,2024-03-05T09:00:00Z,2024-03-05T10:00:00Z,,,scheduled,Ada Lovelace", lines[1].Text)
}

func TestExportEscapesFields(t *testing.T) {
	rec := crm.NewRecord()
	rec.Set(crm.FieldLastName, crm.TextValue(crm.KindText, `He said "hi", really`))
	rec.Set(crm.FieldCompany, crm.TextValue(crm.KindText, "Acme\nLabs"))
	rec.Set(crm.FieldOwner, crm.TextValue(crm.KindUser, "0f0f0f0f-0000-4000-8000-000000000000"))
	records := &sliceRecords{rows: []crm.Record{rec}}
	exp := newExporter(records, &directory{})

	entity, err := schema.Lookup("leads")
	require.NoError(t, err)

	file, err := exp.Export(context.Background(), Request{Entity: entity})
	require.NoError(t, err)

	body := string(file.Body)
	assert.Contains(t, body, `"He said ""hi"", really"`)
	assert.Contains(t, body, "\"Acme\nLabs\"")

	lines := csvio.SplitRecords(body)
	require.Len(t, lines, 2)
	fields := csvio.ParseLine(lines[1].Text)
	assert.Equal(t, `He said "hi", really`, fields[1])
	assert.Equal(t, "Acme\nLabs", fields[2])
	// unknown owner ids export as an empty name
	assert.Equal(t, "", fields[7])
}

func TestExportFormatsDatesAndMoney(t *testing.T) {
	rec := crm.NewRecord()
	rec.Set(crm.FieldDealName, crm.TextValue(crm.KindText, "Renewal"))
	rec.Set(crm.FieldAmount, crm.MoneyValue(decimal.RequireFromString("1250.5")))
	rec.Set(crm.FieldExpectedCloseDate, crm.TimeValue(crm.KindDate, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)))
	exp := newExporter(&sliceRecords{rows: []crm.Record{rec}}, &directory{})

	entity, err := schema.Lookup("deals")
	require.NoError(t, err)

	rows := exp.Rows(context.Background(), entity, []crm.Record{rec})
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Renewal", "1250.50", "", "2026-06-30", "", "", ""}, rows[0])
}

func dealRecord(i int) crm.Record {
	rec := crm.NewRecord()
	rec.Set(crm.FieldDealName, crm.TextValue(crm.KindText, fmt.Sprintf(`Deal "%d", renewal`, i)))
	rec.Set(crm.FieldAmount, crm.MoneyValue(decimal.New(int64(125050+i), -2)))
	rec.Set(crm.FieldStage, crm.TextValue(crm.KindEnum, []string{"proposal", "negotiation", "closed_won"}[i%3]))
	rec.Set(crm.FieldExpectedCloseDate, crm.TimeValue(crm.KindDate, time.Date(2026, time.June, 1+i, 0, 0, 0, 0, time.UTC)))
	rec.Set(crm.FieldOwner, crm.TextValue(crm.KindUser, userIDs[i%len(userIDs)]))
	return rec
}

func leadRecord(i int) crm.Record {
	rec := crm.NewRecord()
	rec.Set(crm.FieldFirstName, crm.TextValue(crm.KindText, "Jane"))
	rec.Set(crm.FieldLastName, crm.TextValue(crm.KindText, fmt.Sprintf("Doe %d", i)))
	rec.Set(crm.FieldCompany, crm.TextValue(crm.KindText, "Acme, Inc."))
	rec.Set(crm.FieldEmail, crm.TextValue(crm.KindEmail, fmt.Sprintf("jane%d@example.com", i)))
	rec.Set(crm.FieldStatus, crm.TextValue(crm.KindEnum, "qualified"))
	rec.Set(crm.FieldOwner, crm.TextValue(crm.KindUser, userIDs[i%len(userIDs)]))
	rec.Set(crm.FieldFollowUpDate, crm.TimeValue(crm.KindDate, time.Date(2026, time.April, 1+i, 0, 0, 0, 0, time.UTC)))
	return rec
}

func TestExportRoundTrip(t *testing.T) {
	tests := []struct {
		entity string
		build  func(int) crm.Record
		check  func(t *testing.T, want, got crm.Record)
	}{
		{
			entity: "meetings",
			build:  meetingRecord,
			check: func(t *testing.T, want, got crm.Record) {
				assert.Equal(t, want.Text(crm.FieldSubject), got.Text(crm.FieldSubject))
				assert.True(t, want.Time(crm.FieldStart).Equal(got.Time(crm.FieldStart)), "start")
				assert.True(t, want.Time(crm.FieldEnd).Equal(got.Time(crm.FieldEnd)), "end")
				assert.Equal(t, want.Text(crm.FieldOrganizer), got.Text(crm.FieldOrganizer))
			},
		},
		{
			entity: "deals",
			build:  dealRecord,
			check: func(t *testing.T, want, got crm.Record) {
				assert.Equal(t, want.Text(crm.FieldDealName), got.Text(crm.FieldDealName))
				assert.True(t, want.Values[crm.FieldAmount].Money.Equal(got.Values[crm.FieldAmount].Money), "amount")
				assert.Equal(t, want.Text(crm.FieldStage), got.Text(crm.FieldStage))
				assert.True(t, want.Time(crm.FieldExpectedCloseDate).Equal(got.Time(crm.FieldExpectedCloseDate)), "close date")
				assert.Equal(t, want.Text(crm.FieldOwner), got.Text(crm.FieldOwner))
			},
		},
		{
			entity: "leads",
			build:  leadRecord,
			check: func(t *testing.T, want, got crm.Record) {
				assert.Equal(t, want.Text(crm.FieldLastName), got.Text(crm.FieldLastName))
				assert.Equal(t, want.Text(crm.FieldCompany), got.Text(crm.FieldCompany))
				assert.Equal(t, want.Text(crm.FieldEmail), got.Text(crm.FieldEmail))
				assert.Equal(t, want.Text(crm.FieldStatus), got.Text(crm.FieldStatus))
				assert.True(t, want.Time(crm.FieldFollowUpDate).Equal(got.Time(crm.FieldFollowUpDate)), "follow-up date")
				assert.Equal(t, want.Text(crm.FieldOwner), got.Text(crm.FieldOwner))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			source := &sliceRecords{}
			for i := 0; i < 12; i++ {
				source.rows = append(source.rows, tt.build(i))
			}
			profiles := &directory{}
			exp := newExporter(source, profiles)

			entity, err := schema.Lookup(tt.entity)
			require.NoError(t, err)

			file, err := exp.Export(context.Background(), Request{Entity: entity})
			require.NoError(t, err)

			target := &sliceRecords{}
			im := importer.New(target, identity.NewResolver(profiles, discard()), importer.Options{
				Dates:  datetime.NewNormalizer(time.UTC, datetime.Clock{Hour: 9}),
				Logger: discard(),
			})
			outcome, err := im.Run(context.Background(), importer.Request{
				Entity:  entity,
				Text:    string(file.Body),
				ActorID: "00000000-0000-4000-8000-0000000000ff",
			})
			require.NoError(t, err)
			require.Equal(t, 12, outcome.SuccessCount, outcome.Errors)
			assert.Equal(t, 1, profiles.idCalls)

			require.Len(t, target.rows, len(source.rows))
			for i, got := range target.rows {
				tt.check(t, source.rows[i], got)
			}
		})
	}
}

func TestExportWorkbook(t *testing.T) {
	records := &sliceRecords{rows: []crm.Record{meetingRecord(1), meetingRecord(2)}}
	exp := newExporter(records, &directory{})

	entity, err := schema.Lookup("meetings")
	require.NoError(t, err)

	file, err := exp.Export(context.Background(), Request{
		Entity: entity,
		Format: FormatXLSX,
		Now:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "meetings_export_2026-01-02.xlsx", file.Name)

	wb, err := excelize.OpenReader(bytes.NewReader(file.Body))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("meetings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, entity.ExportHeader(), rows[0])
	assert.Equal(t, "Meeting 1", rows[1][0])
	assert.Equal(t, "Grace Hopper", rows[1][6])
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = ParseFormat("xlsx")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	_, ok = ParseFormat("pdf")
	assert.False(t, ok)
}
