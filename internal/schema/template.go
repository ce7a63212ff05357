package schema

import (
	"github.com/crmflow/api/internal/csvio"
)

// Template renders the import template for an entity: every accepted field
// under its canonical header plus one sample row.
func (e Entity) Template() string {
	header := make([]string, 0, len(e.Fields))
	sample := make([]string, 0, len(e.Fields))
	for _, spec := range e.Fields {
		header = append(header, string(spec.Field))
		sample = append(sample, spec.Sample)
	}
	return csvio.Build(header, [][]string{sample})
}
