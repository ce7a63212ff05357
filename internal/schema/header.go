package schema

import (
	"fmt"
	"strings"

	"github.com/crmflow/api/internal/crm"
)

// NotFound is the column index of a field absent from the header.
const NotFound = -1

type HeaderMap struct {
	index map[crm.Field]int
}

func (h HeaderMap) Index(field crm.Field) int {
	idx, ok := h.index[field]
	if !ok {
		return NotFound
	}
	return idx
}

func (h HeaderMap) Has(field crm.Field) bool {
	return h.Index(field) != NotFound
}

// Cell returns the trimmed cell for field, or "" when the column is absent
// or the row is short.
func (h HeaderMap) Cell(row []string, field crm.Field) string {
	idx := h.Index(field)
	if idx == NotFound || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// MissingColumnsError lists required fields with no matching header column.
type MissingColumnsError struct {
	Entity string
	Fields []crm.Field
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s import is missing required columns: %s", e.Entity, strings.Join(names, ", "))
}

// ResolveHeader maps each field of the entity onto the first header column
// matching one of its aliases.
func (e Entity) ResolveHeader(header []string) (HeaderMap, error) {
	positions := make(map[string]int, len(header))
	for idx, cell := range header {
		key := NormalizeHeaderKey(cell)
		if key == "" {
			continue
		}
		if _, seen := positions[key]; !seen {
			positions[key] = idx
		}
	}

	hm := HeaderMap{index: make(map[crm.Field]int, len(e.Fields))}
	claimed := map[int]bool{}
	var missing []crm.Field
	for _, spec := range e.Fields {
		best := NotFound
		for _, alias := range spec.Aliases {
			idx, ok := positions[NormalizeHeaderKey(alias)]
			if !ok || claimed[idx] {
				continue
			}
			if best == NotFound || idx < best {
				best = idx
			}
		}
		if best != NotFound {
			hm.index[spec.Field] = best
			claimed[best] = true
			continue
		}
		if spec.Required {
			missing = append(missing, spec.Field)
		}
	}

	if len(missing) > 0 {
		return HeaderMap{}, &MissingColumnsError{Entity: e.Name, Fields: missing}
	}
	return hm, nil
}

func NormalizeHeaderKey(raw string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "", ".", "", "/", "", "\ufeff", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(raw)))
}
