package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/crmflow/api/internal/crm"
	"github.com/crmflow/api/internal/csvio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	entity, err := Lookup(" Meetings ")
	require.NoError(t, err)
	assert.Equal(t, "meetings", entity.Table)

	_, err = Lookup("invoices")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntity))

	assert.Equal(t, []string{"contacts", "deals", "leads", "meetings", "tasks"}, Names())
}

func TestResolveHeaderStartAliases(t *testing.T) {
	entity, err := Lookup("meetings")
	require.NoError(t, err)

	for _, startHeader := range []string{"Start Date", "start_time", "date", "START", "Meeting Date"} {
		t.Run(startHeader, func(t *testing.T) {
			hm, err := entity.ResolveHeader([]string{"Title", "Notes", startHeader})
			require.NoError(t, err)
			assert.Equal(t, 2, hm.Index(crm.FieldStart))
			assert.Equal(t, 0, hm.Index(crm.FieldSubject))
			assert.Equal(t, 1, hm.Index(crm.FieldDescription))
			assert.Equal(t, NotFound, hm.Index(crm.FieldEnd))
			assert.False(t, hm.Has(crm.FieldLocation))
		})
	}
}

func TestResolveHeaderFirstMatchWins(t *testing.T) {
	entity, err := Lookup("meetings")
	require.NoError(t, err)

	hm, err := entity.ResolveHeader([]string{"meeting subject", "subject", "date"})
	require.NoError(t, err)
	assert.Equal(t, 0, hm.Index(crm.FieldSubject))
}

func TestResolveHeaderIgnoresUnknownColumns(t *testing.T) {
	entity, err := Lookup("leads")
	require.NoError(t, err)

	hm, err := entity.ResolveHeader([]string{"\ufeffLast Name", "Favourite Colour", "Company Name", "E-mail"})
	require.NoError(t, err)
	assert.Equal(t, 0, hm.Index(crm.FieldLastName))
	assert.Equal(t, 2, hm.Index(crm.FieldCompany))
	assert.Equal(t, 3, hm.Index(crm.FieldEmail))
}

func TestResolveHeaderMissingRequired(t *testing.T) {
	entity, err := Lookup("meetings")
	require.NoError(t, err)

	_, err = entity.ResolveHeader([]string{"location", "notes"})
	require.Error(t, err)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []crm.Field{crm.FieldSubject, crm.FieldStart}, missing.Fields)
	assert.Contains(t, err.Error(), "subject")
}

func TestHeaderMapCell(t *testing.T) {
	entity, err := Lookup("deals")
	require.NoError(t, err)

	hm, err := entity.ResolveHeader([]string{"Deal Name", "Value", "Owner"})
	require.NoError(t, err)

	row := []string{" Renewal ", "100"}
	assert.Equal(t, "Renewal", hm.Cell(row, crm.FieldDealName))
	assert.Equal(t, "", hm.Cell(row, crm.FieldOwner))
	assert.Equal(t, "", hm.Cell(row, crm.FieldStage))
}

func TestExportHeaderResolvesBack(t *testing.T) {
	for _, name := range Names() {
		entity, err := Lookup(name)
		require.NoError(t, err)

		hm, err := entity.ResolveHeader(entity.ExportHeader())
		require.NoError(t, err, name)
		for i, field := range entity.Export {
			assert.Equal(t, i, hm.Index(field), "%s.%s", name, field)
		}
	}
}

func TestTemplateResolves(t *testing.T) {
	for _, name := range Names() {
		entity, err := Lookup(name)
		require.NoError(t, err)

		lines := csvio.SplitRecords(entity.Template())
		require.Len(t, lines, 2, name)
		header := csvio.ParseLine(lines[0].Text)
		_, err = entity.ResolveHeader(header)
		require.NoError(t, err, name)
		assert.Len(t, csvio.ParseLine(lines[1].Text), len(header))
	}
}

func TestAliasesAreUniquePerEntity(t *testing.T) {
	for _, name := range Names() {
		entity, err := Lookup(name)
		require.NoError(t, err)

		owner := map[string]crm.Field{}
		for _, spec := range entity.Fields {
			for _, alias := range spec.Aliases {
				key := NormalizeHeaderKey(alias)
				if prev, ok := owner[key]; ok && prev != spec.Field {
					t.Errorf("%s: alias %q claimed by %s and %s", name, alias, prev, spec.Field)
				}
				owner[key] = spec.Field
			}
		}
	}
}

func TestNormalizeHeaderKey(t *testing.T) {
	assert.Equal(t, "startdate", NormalizeHeaderKey(" Start-Date "))
	assert.Equal(t, "starttime", NormalizeHeaderKey("start_time"))
	assert.True(t, strings.EqualFold(NormalizeHeaderKey("E.Mail"), "email"))
}
