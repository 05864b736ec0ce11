package expr

import (
	"strings"

	"github.com/razeghi71/ply/value"
)

// FullType is the static type of an expression. Datasets carry the schema
// of their rows. TypeNull stands for a type that is not known statically.
type FullType struct {
	Type   value.Type
	Schema *Schema
}

// Unknown is the type of an expression whose type is only known once
// computed.
var Unknown = FullType{Type: value.TypeNull}

// TypeOf returns the static type of a plain type.
func TypeOf(t value.Type) FullType {
	return FullType{Type: t}
}

// DatasetType returns the type of a dataset with the given row schema.
func DatasetType(s *Schema) FullType {
	return FullType{Type: value.TypeDataset, Schema: s}
}

// IsUnknown reports whether the type is not known statically.
func (t FullType) IsUnknown() bool {
	return t.Type == value.TypeNull
}

// Is reports whether the type is unknown or one of ts.
func (t FullType) Is(ts ...value.Type) bool {
	if t.IsUnknown() {
		return true
	}
	for _, want := range ts {
		if t.Type == want {
			return true
		}
	}
	return false
}

func (t FullType) String() string {
	if t.Type == value.TypeDataset && t.Schema != nil {
		return "DATASET" + t.Schema.String()
	}
	return t.Type.String()
}

// Schema is the ordered set of typed attributes of a datum.
type Schema struct {
	Names []string
	Types map[string]FullType
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{Types: make(map[string]FullType)}
}

// Lookup returns the type of name.
func (s *Schema) Lookup(name string) (FullType, bool) {
	if s == nil {
		return Unknown, false
	}
	t, ok := s.Types[name]
	return t, ok
}

// With returns a copy of the schema with name set to t.
func (s *Schema) With(name string, t FullType) *Schema {
	out := s.Clone()
	if _, ok := out.Types[name]; !ok {
		out.Names = append(out.Names, name)
	}
	out.Types[name] = t
	return out
}

// Clone copies the schema.
func (s *Schema) Clone() *Schema {
	out := NewSchema()
	if s == nil {
		return out
	}
	out.Names = append(out.Names, s.Names...)
	for k, v := range s.Types {
		out.Types[k] = v
	}
	return out
}

func (s *Schema) String() string {
	if s == nil {
		return "{}"
	}
	parts := make([]string, len(s.Names))
	for i, n := range s.Names {
		parts[i] = n + ":" + s.Types[n].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SchemaOfDatum infers the schema of a datum from its values.
func SchemaOfDatum(d value.Datum) *Schema {
	s := NewSchema()
	for _, a := range d.Attributes() {
		s = s.With(a.Name, TypeOfValue(a.Value))
	}
	return s
}

// SchemaOfDataset infers the row schema of a dataset. An attribute takes
// the type of its first non-null value; attributes whose non-null values
// disagree, or that are always null, are left unknown.
func SchemaOfDataset(d *value.Dataset) *Schema {
	s := NewSchema()
	if d == nil {
		return s
	}
	for _, name := range d.Attributes {
		t := Unknown
		consistent := true
		for _, row := range d.Data {
			v, _ := row.Get(name)
			if v.IsNull() {
				continue
			}
			vt := TypeOfValue(v)
			if t.IsUnknown() {
				t = vt
				continue
			}
			if vt.Type != t.Type {
				consistent = false
				break
			}
		}
		if !consistent {
			t = Unknown
		}
		s = s.With(name, t)
	}
	return s
}

// TypeOfValue returns the static type of a computed value.
func TypeOfValue(v value.Value) FullType {
	if v.Type == value.TypeDataset {
		return DatasetType(SchemaOfDataset(v.Dataset))
	}
	return TypeOf(v.Type)
}
