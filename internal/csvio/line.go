package csvio

import (
	"strings"
)

// Line is one logical CSV record and the 1-based file line it starts on.
type Line struct {
	Number int
	Text   string
}

// quoteScanner tracks quoting across the bytes of one record. A quote only
// opens a quoted field at the start of a field (leading blanks allowed);
// anywhere else it is a literal character.
type quoteScanner struct {
	inQuotes   bool
	fieldStart bool
}

func newQuoteScanner() quoteScanner {
	return quoteScanner{fieldStart: true}
}

// scan feeds s through the scanner. emit receives field bytes; sep is called
// on every unquoted comma. Either may be nil.
func (q *quoteScanner) scan(s string, emit func(byte), sep func()) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if q.inQuotes {
			if c != '"' {
				if emit != nil {
					emit(c)
				}
				continue
			}
			if i+1 < len(s) && s[i+1] == '"' {
				if emit != nil {
					emit('"')
				}
				i++
				continue
			}
			q.inQuotes = false
			continue
		}
		switch {
		case c == ',':
			if sep != nil {
				sep()
			}
			q.fieldStart = true
		case c == '"' && q.fieldStart:
			q.inQuotes = true
			q.fieldStart = false
		case c == ' ' || c == '\t':
			if emit != nil {
				emit(c)
			}
		default:
			if emit != nil {
				emit(c)
			}
			q.fieldStart = false
		}
	}
}

// ParseLine splits one CSV record into trimmed fields. Quoted fields may hold
// commas and newlines, and "" inside quotes is an escaped quote. An
// unterminated quote runs to the end of the line.
func ParseLine(line string) []string {
	fields := make([]string, 0, 8)
	var current strings.Builder
	q := newQuoteScanner()
	q.scan(line,
		func(c byte) { current.WriteByte(c) },
		func() {
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		},
	)
	return append(fields, strings.TrimSpace(current.String()))
}

// SplitRecords splits file text into logical records. Physical lines are
// joined while a quoted field is open. If the text ends inside a quoted
// field, the lines of that unfinished record are returned one by one with
// their own numbers. Blank lines are dropped.
func SplitRecords(text string) []Line {
	text = strings.TrimPrefix(text, "\ufeff")
	physical := strings.Split(text, "\n")

	records := make([]Line, 0, len(physical))
	var pending []Line
	q := newQuoteScanner()

	for idx, raw := range physical {
		raw = strings.TrimSuffix(raw, "\r")
		if !q.inQuotes {
			q = newQuoteScanner()
			pending = pending[:0]
		}
		pending = append(pending, Line{Number: idx + 1, Text: raw})
		q.scan(raw, nil, nil)
		if q.inQuotes {
			continue
		}
		if rec, ok := joinLines(pending); ok {
			records = append(records, rec)
		}
	}

	if q.inQuotes {
		for _, l := range pending {
			if strings.TrimSpace(l.Text) != "" {
				records = append(records, l)
			}
		}
	}
	return records
}

func joinLines(lines []Line) (Line, bool) {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	joined := strings.Join(parts, "\n")
	if strings.TrimSpace(joined) == "" {
		return Line{}, false
	}
	return Line{Number: lines[0].Number, Text: joined}, true
}
