package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crmflow/api/internal/crm"
)

var ErrUnknownEntity = errors.New("unknown entity")

type FieldSpec struct {
	Field    crm.Field
	Column   string
	Kind     crm.Kind
	Aliases  []string
	Required bool
	Enum     []string
	Default  string
	// EnumAliases maps normalized spellings onto Enum values.
	EnumAliases map[string]string
	// Clock names the time-of-day field paired with a timestamp field.
	Clock crm.Field
	// EndOf names the start field an end timestamp defaults from.
	EndOf crm.Field
	// Sample is the value written into the import template.
	Sample string
}

// Stored reports whether the field maps to a column of its own. Clock
// fields are folded into their timestamp.
func (f FieldSpec) Stored() bool {
	return f.Kind != crm.KindClock
}

type Entity struct {
	Name   string
	Table  string
	Fields []FieldSpec
	Export []crm.Field
	// OwnerField is the user reference used for owner filters on export.
	OwnerField crm.Field
}

func (e Entity) Spec(field crm.Field) (FieldSpec, bool) {
	for _, spec := range e.Fields {
		if spec.Field == field {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

func (e Entity) Required() []FieldSpec {
	out := make([]FieldSpec, 0, len(e.Fields))
	for _, spec := range e.Fields {
		if spec.Required {
			out = append(out, spec)
		}
	}
	return out
}

func (e Entity) StoredFields() []FieldSpec {
	out := make([]FieldSpec, 0, len(e.Fields))
	for _, spec := range e.Fields {
		if spec.Stored() {
			out = append(out, spec)
		}
	}
	return out
}

func (e Entity) UserFields() []FieldSpec {
	out := make([]FieldSpec, 0, 2)
	for _, spec := range e.Fields {
		if spec.Kind == crm.KindUser {
			out = append(out, spec)
		}
	}
	return out
}

// ExportHeader returns the header cells written on export. They are the
// canonical field names, which every entity also accepts as aliases.
func (e Entity) ExportHeader() []string {
	header := make([]string, len(e.Export))
	for i, field := range e.Export {
		header[i] = string(field)
	}
	return header
}

var registry = map[string]Entity{}

func register(e Entity) {
	for i := range e.Fields {
		if e.Fields[i].Column == "" && e.Fields[i].Stored() {
			e.Fields[i].Column = string(e.Fields[i].Field)
		}
		e.Fields[i].Aliases = append([]string{string(e.Fields[i].Field)}, e.Fields[i].Aliases...)
	}
	registry[e.Name] = e
}

func Lookup(name string) (Entity, error) {
	entity, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return entity, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
