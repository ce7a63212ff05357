package csvio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineUnquoted(t *testing.T) {
	fields := ParseLine(" alpha, beta ,gamma,,delta ")
	require.Equal(t, []string{"alpha", "beta", "gamma", "", "delta"}, fields)
}

func TestParseLineQuoted(t *testing.T) {
	t.Run("comma inside quotes", func(t *testing.T) {
		require.Equal(t, []string{"a,b", "c"}, ParseLine(`"a,b",c`))
	})

	t.Run("doubled quote", func(t *testing.T) {
		require.Equal(t, []string{`a"b`}, ParseLine(`"a""b"`))
	})

	t.Run("embedded newline", func(t *testing.T) {
		require.Equal(t, []string{"line one\nline two", "x"}, ParseLine("\"line one\nline two\",x"))
	})

	t.Run("unterminated quote runs to end", func(t *testing.T) {
		require.Equal(t, []string{"a", "b,c"}, ParseLine(`a,"b,c`))
	})

	t.Run("quote inside a field is literal", func(t *testing.T) {
		require.Equal(t, []string{`6" pipe`, "x"}, ParseLine(`6" pipe,x`))
	})

	t.Run("blank before opening quote", func(t *testing.T) {
		require.Equal(t, []string{"a", "b,c"}, ParseLine(`a, "b,c"`))
	})
}

func TestParseLineFieldCount(t *testing.T) {
	for n := 1; n <= 12; n++ {
		values := make([]string, n)
		for i := range values {
			values[i] = strings.Repeat("v", i+1)
		}
		assert.Len(t, ParseLine(strings.Join(values, ",")), n)
	}
}

func TestSplitRecords(t *testing.T) {
	text := "\ufeffsubject,notes\r\nKickoff,\"first\nsecond\"\r\n\r\nReview,plain\n"
	records := SplitRecords(text)

	require.Len(t, records, 3)
	assert.Equal(t, Line{Number: 1, Text: "subject,notes"}, records[0])
	assert.Equal(t, Line{Number: 2, Text: "Kickoff,\"first\nsecond\""}, records[1])
	assert.Equal(t, Line{Number: 5, Text: "Review,plain"}, records[2])
}

func TestSplitRecordsStrayQuoteStaysOnItsLine(t *testing.T) {
	text := "subject,start\nA,2024-03-04\n6\" pipe review,2024-03-05\nC,2024-03-06\nD,2024-03-07\n"
	records := SplitRecords(text)

	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Number)
	}
	assert.Equal(t, []string{`6" pipe review`, "2024-03-05"}, ParseLine(records[2].Text))
	assert.Equal(t, []string{"D", "2024-03-07"}, ParseLine(records[4].Text))
}

func TestSplitRecordsUnterminatedQuoteAtEOF(t *testing.T) {
	records := SplitRecords("a,b\n\"open,c\nd,e\n\nf,g")

	require.Equal(t, []Line{
		{Number: 1, Text: "a,b"},
		{Number: 2, Text: "\"open,c"},
		{Number: 3, Text: "d,e"},
		{Number: 5, Text: "f,g"},
	}, records)
	assert.Equal(t, []string{"open,c"}, ParseLine(records[1].Text))
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "", want: ""},
		{in: "a,b", want: `"a,b"`},
		{in: `He said "hi", really`, want: `"He said ""hi"", really"`},
		{in: "two\nlines", want: "\"two\nlines\""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), tt.in)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	original := []string{`He said "hi", really`, "plain", "a,b", `"quoted"`}
	line := FormatLine(original)
	require.Equal(t, original, ParseLine(line))
}

func TestBuild(t *testing.T) {
	out := Build([]string{"name", "note"}, [][]string{{"A", "x,y"}, {"B", ""}})
	require.Equal(t, "name,note\nA,\"x,y\"\nB,\n", out)
}
