package csvio

import "strings"

func Escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func FormatLine(fields []string) string {
	escaped := make([]string, len(fields))
	for i, field := range fields {
		escaped[i] = Escape(field)
	}
	return strings.Join(escaped, ",")
}

// Build renders a header line plus one line per row, joined with "\n".
func Build(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(FormatLine(header))
	for _, row := range rows {
		b.WriteByte('\n')
		b.WriteString(FormatLine(row))
	}
	b.WriteByte('\n')
	return b.String()
}
