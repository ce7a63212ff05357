package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/datetime"
	"github.com/crmflow/api/internal/identity"
	"github.com/crmflow/api/internal/schema"
)

const (
	actorID = "0b6f2f0e-7a43-4c1f-9a59-8f0d0c000001"
	adaID   = "0b6f2f0e-7a43-4c1f-9a59-8f0d0c000002"
)

type memoryRecords struct {
	inserted []crm.Record
	tables   []string
	failOn   map[string]error
}

func (m *memoryRecords) Insert(_ context.Context, table string, record crm.Record) error {
	for key, err := range m.failOn {
		for _, v := range record.Values {
			if v.Text == key {
				return err
			}
		}
	}
	m.tables = append(m.tables, table)
	m.inserted = append(m.inserted, record)
	return nil
}

func (m *memoryRecords) Select(context.Context, string, crm.Filter) ([]crm.Record, error) {
	return m.inserted, nil
}

type countingProfiles struct {
	byName      map[string]string
	idCalls     int
	memberCalls int
	lastSent    []string
}

func (c *countingProfiles) FetchDisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	c.memberCalls++
	out := map[string]string{}
	for name, id := range c.byName {
		for _, want := range ids {
			if want == id {
				out[id] = name
			}
		}
	}
	return out, nil
}

func (c *countingProfiles) FetchIDsByNames(_ context.Context, names []string) (map[string]string, error) {
	c.idCalls++
	c.lastSent = names
	out := map[string]string{}
	for _, n := range names {
		if id, ok := c.byName[n]; ok {
			out[n] = id
		}
	}
	return out, nil
}

func newTestImporter(records crm.RecordStore, profiles crm.ProfileStore) *Importer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(records, identity.NewResolver(profiles, logger), Options{
		MaxRows: 100,
		Dates:   datetime.NewNormalizer(time.UTC, datetime.Clock{Hour: 9}),
		Logger:  logger,
	})
}

func mustEntity(t *testing.T, name string) schema.Entity {
	t.Helper()
	entity, err := schema.Lookup(name)
	require.NoError(t, err)
	return entity
}

func TestRunPartialFailure(t *testing.T) {
	var b strings.Builder
	b.WriteString("Subject,Date,Time\n")
	for i := 1; i <= 10; i++ {
		if i == 5 {
			b.WriteString(",2024-03-05,10:00\n")
			continue
		}
		fmt.Fprintf(&b, "Meeting %d,2024-03-05,10:00\n", i)
	}

	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    b.String(),
		ActorID: actorID,
		Mode:    ModeApply,
	})
	require.NoError(t, err)

	assert.Equal(t, 9, outcome.SuccessCount)
	assert.Equal(t, 1, outcome.ErrorCount)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, 5, outcome.Errors[0].Row)
	assert.Equal(t, 6, outcome.Errors[0].Line)
	assert.Equal(t, string(crm.FieldSubject), outcome.Errors[0].Field)
	assert.Len(t, records.inserted, 9)
	assert.Equal(t, "meetings", records.tables[0])
}

func TestRunNormalizesMeeting(t *testing.T) {
	text := "Title,Start Date,Time,Location,Status,Organizer\n" +
		"\"Review, Q1\",05/03/2024,14:30,HQ,Done,Ada Lovelace\n"

	records := &memoryRecords{}
	profiles := &countingProfiles{byName: map[string]string{"ada lovelace": adaID}}
	im := newTestImporter(records, profiles)

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    text,
		ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.SuccessCount, outcome.Errors)

	rec := records.inserted[0]
	start := rec.Time(crm.FieldStart)
	assert.Equal(t, time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC), start)
	assert.Equal(t, start.Add(time.Hour), rec.Time(crm.FieldEnd))
	assert.Equal(t, "Review, Q1", rec.Text(crm.FieldSubject))
	assert.Equal(t, "completed", rec.Text(crm.FieldStatus))
	assert.Equal(t, adaID, rec.Text(crm.FieldOrganizer))
	_, hasClock := rec.Get(crm.FieldStartClock)
	assert.False(t, hasClock)
}

func TestRunDefaultsClockAndOwner(t *testing.T) {
	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    "subject,start\nKickoff,2024-07-01\n",
		ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.SuccessCount)

	rec := records.inserted[0]
	assert.Equal(t, time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC), rec.Time(crm.FieldStart))
	assert.Equal(t, actorID, rec.Text(crm.FieldOrganizer))
	assert.Equal(t, "scheduled", rec.Text(crm.FieldStatus))
}

func TestRunUnparseableDateSkipsRow(t *testing.T) {
	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    "subject,date\nA,2024-02-30\nB,next tuesday\nC,2024-02-29\n",
		ActorID: actorID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.SuccessCount)
	assert.Equal(t, 2, outcome.ErrorCount)
	assert.Equal(t, 1, outcome.Errors[0].Row)
	assert.Equal(t, 2, outcome.Errors[1].Row)
	assert.Equal(t, "next tuesday", outcome.Errors[1].RawValue)
	assert.Equal(t, "C", records.inserted[0].Text(crm.FieldSubject))
}

func TestRunPersistenceErrorContinues(t *testing.T) {
	records := &memoryRecords{failOn: map[string]error{"Doe": errors.New("duplicate key value")}}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "leads"),
		Text:    "Last Name,Company\nSmith,Acme\nDoe,Acme\nJones,Initech\n",
		ActorID: actorID,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.SuccessCount)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, 2, outcome.Errors[0].Row)
	assert.Equal(t, "duplicate key value", outcome.Errors[0].Message)
}

func TestRunDryRunDoesNotInsert(t *testing.T) {
	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "tasks"),
		Text:    "Task,Due Date\nCall back,2024-05-01\n,2024-05-02\n",
		ActorID: actorID,
		Mode:    ModeDryRun,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeDryRun, outcome.Mode)
	assert.Equal(t, 1, outcome.SuccessCount)
	assert.Equal(t, 1, outcome.ErrorCount)
	assert.Empty(t, records.inserted)
}

func TestRunResolvesOwnersInOneLookup(t *testing.T) {
	var b strings.Builder
	b.WriteString("Deal Name,Value,Owner\n")
	for i := 0; i < 20; i++ {
		owner := "Ada Lovelace"
		if i%2 == 1 {
			owner = "Grace Hopper"
		}
		fmt.Fprintf(&b, "Deal %d,100,%s\n", i, owner)
	}
	fmt.Fprintf(&b, "Direct,100,%s\n", adaID)

	records := &memoryRecords{}
	profiles := &countingProfiles{byName: map[string]string{"ada lovelace": adaID}}
	im := newTestImporter(records, profiles)

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "deals"),
		Text:    b.String(),
		ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, 21, outcome.SuccessCount)

	assert.Equal(t, 1, profiles.idCalls)
	assert.Equal(t, 1, profiles.memberCalls)
	assert.Equal(t, []string{"ada lovelace", "grace hopper"}, profiles.lastSent)
	assert.Equal(t, adaID, records.inserted[0].Text(crm.FieldOwner))
	assert.Equal(t, actorID, records.inserted[1].Text(crm.FieldOwner))
	assert.Equal(t, adaID, records.inserted[20].Text(crm.FieldOwner))
}

func TestRunDealAmounts(t *testing.T) {
	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "deals"),
		Text:    "name,value,stage\nA,\"$1,250.5\",Won\nB,-3,proposal\nC,abc,\n",
		ActorID: actorID,
	})
	require.NoError(t, err)

	require.Equal(t, 1, outcome.SuccessCount)
	assert.Equal(t, 2, outcome.ErrorCount)
	rec := records.inserted[0]
	assert.Equal(t, "1250.50", rec.Values[crm.FieldAmount].Money.StringFixed(2))
	assert.Equal(t, "closed_won", rec.Text(crm.FieldStage))
	assert.Equal(t, string(crm.FieldAmount), outcome.Errors[0].Field)
}

func TestRunRejectsInvalidEmail(t *testing.T) {
	records := &memoryRecords{}
	im := newTestImporter(records, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "contacts"),
		Text:    "last name,email\nDoe,JANE@Example.com\nRoe,not-an-email\n",
		ActorID: actorID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.SuccessCount)
	assert.Equal(t, "jane@example.com", records.inserted[0].Text(crm.FieldEmail))
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, string(crm.FieldEmail), outcome.Errors[0].Field)
}

func TestRunStructuralErrors(t *testing.T) {
	im := newTestImporter(&memoryRecords{}, &countingProfiles{})
	im.maxRows = 2

	cases := []struct {
		name string
		text string
		code string
	}{
		{name: "empty", text: "\n\n", code: CodeEmptyFile},
		{name: "missing columns", text: "location,notes\nHQ,x\n", code: CodeMissingColumns},
		{name: "too many rows", text: "subject,date\na,2024-01-01\nb,2024-01-01\nc,2024-01-01\n", code: CodeRowLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := im.Run(context.Background(), Request{
				Entity:  mustEntity(t, "meetings"),
				Text:    tc.text,
				ActorID: actorID,
			})
			var structural *StructuralError
			require.True(t, errors.As(err, &structural), "got %v", err)
			assert.Equal(t, tc.code, structural.Code)
		})
	}
}

func TestRunHeaderOnly(t *testing.T) {
	im := newTestImporter(&memoryRecords{}, &countingProfiles{})

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    "subject,date\n",
		ActorID: actorID,
	})
	require.NoError(t, err)
	assert.Zero(t, outcome.SuccessCount)
	assert.Zero(t, outcome.ErrorCount)
	assert.NotNil(t, outcome.Errors)
}

func TestNormalizeEnum(t *testing.T) {
	entity := mustEntity(t, "tasks")
	spec, ok := entity.Spec(crm.FieldStatus)
	require.True(t, ok)

	assert.Equal(t, "in_progress", normalizeEnum(spec, "In Progress"))
	assert.Equal(t, "done", normalizeEnum(spec, "Completed"))
	assert.Equal(t, "open", normalizeEnum(spec, ""))
	assert.Equal(t, "open", normalizeEnum(spec, "blocked"))
}

func TestRunForeignOwnerIDFallsBackToActor(t *testing.T) {
	foreignID := "0b6f2f0e-7a43-4c1f-9a59-8f0d0c0000ff"
	text := "Deal Name,Value,Owner\n" +
		"Mine," + "10," + strings.ToUpper(adaID) + "\n" +
		"Theirs,20," + foreignID + "\n"

	records := &memoryRecords{}
	profiles := &countingProfiles{byName: map[string]string{"ada lovelace": adaID}}
	im := newTestImporter(records, profiles)

	outcome, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "deals"),
		Text:    text,
		ActorID: actorID,
	})
	require.NoError(t, err)
	require.Equal(t, 2, outcome.SuccessCount, outcome.Errors)

	assert.Equal(t, 1, profiles.memberCalls)
	assert.Equal(t, 0, profiles.idCalls)
	assert.Equal(t, adaID, records.inserted[0].Text(crm.FieldOwner))
	assert.Equal(t, actorID, records.inserted[1].Text(crm.FieldOwner))
}

func TestRunStrayQuoteKeepsLaterRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("Subject,Date,Time\n")
	for i := 1; i <= 10; i++ {
		if i == 3 {
			b.WriteString("6\" pipe review,2024-03-05,10:00\n")
			continue
		}
		fmt.Fprintf(&b, "Meeting %d,2024-03-05,10:00\n", i)
	}

	records := &memoryRecords{}
	outcome, err := newTestImporter(records, &countingProfiles{}).Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    b.String(),
		ActorID: actorID,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, outcome.RowsTotal)
	assert.Equal(t, 10, outcome.SuccessCount+outcome.ErrorCount)
	require.Len(t, records.inserted, 10)
	assert.Equal(t, `6" pipe review`, records.inserted[2].Text(crm.FieldSubject))
	assert.Equal(t, "Meeting 10", records.inserted[9].Text(crm.FieldSubject))
}

func TestRunUnterminatedQuoteReportsEveryRow(t *testing.T) {
	text := "Subject,Date,Time\n" +
		"A,2024-03-05,10:00\n" +
		"\"Broken,2024-03-05,10:00\n" +
		"C,2024-03-05,10:00\n"

	records := &memoryRecords{}
	outcome, err := newTestImporter(records, &countingProfiles{}).Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    text,
		ActorID: actorID,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.RowsTotal)
	assert.Equal(t, 2, outcome.SuccessCount)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, 2, outcome.Errors[0].Row)
	assert.Equal(t, 3, outcome.Errors[0].Line)
}

func TestRunLogsInvalidRows(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	im := New(&memoryRecords{}, identity.NewResolver(&countingProfiles{}, logger), Options{
		MaxRows: 100,
		Dates:   datetime.NewNormalizer(time.UTC, datetime.Clock{Hour: 9}),
		Logger:  logger,
	})

	_, err := im.Run(context.Background(), Request{
		Entity:  mustEntity(t, "meetings"),
		Text:    "Subject,Date,Time\n,2024-03-05,10:00\n",
		ActorID: actorID,
	})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"msg":"import_row_invalid"`)
	assert.Contains(t, out, `"field":"subject"`)
	assert.Contains(t, out, `"line":2`)
}
