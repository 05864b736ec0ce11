package value

import (
	"strings"
)

// Attribute is a single named value inside a Datum.
type Attribute struct {
	Name  string
	Value Value
}

// Datum is an ordered mapping from attribute name to value. It is used both
// for rows of a dataset and for the context an expression is computed in.
// A Datum is treated as immutable: Set returns a modified copy.
type Datum struct {
	attrs []Attribute
}

// NewDatum builds a datum from attributes. A repeated name overwrites the
// earlier value in place.
func NewDatum(attrs ...Attribute) Datum {
	var d Datum
	for _, a := range attrs {
		d = d.Set(a.Name, a.Value)
	}
	return d
}

// Get returns the value stored under name.
func (d Datum) Get(name string) (Value, bool) {
	for _, a := range d.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return Null(), false
}

// Set returns a copy of the datum with name bound to v. Existing attributes
// keep their position.
func (d Datum) Set(name string, v Value) Datum {
	attrs := make([]Attribute, len(d.attrs), len(d.attrs)+1)
	copy(attrs, d.attrs)
	for i, a := range attrs {
		if a.Name == name {
			attrs[i].Value = v
			return Datum{attrs: attrs}
		}
	}
	return Datum{attrs: append(attrs, Attribute{Name: name, Value: v})}
}

// Merge returns a copy of d with every attribute of other added or
// overwritten.
func (d Datum) Merge(other Datum) Datum {
	out := d
	for _, a := range other.attrs {
		out = out.Set(a.Name, a.Value)
	}
	return out
}

// Names returns the attribute names in order.
func (d Datum) Names() []string {
	names := make([]string, len(d.attrs))
	for i, a := range d.attrs {
		names[i] = a.Name
	}
	return names
}

// Attributes returns a copy of the attributes in order.
func (d Datum) Attributes() []Attribute {
	attrs := make([]Attribute, len(d.attrs))
	copy(attrs, d.attrs)
	return attrs
}

// Len returns the number of attributes.
func (d Datum) Len() int {
	return len(d.attrs)
}

func (d Datum) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, a := range d.attrs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Name)
		sb.WriteString(":")
		sb.WriteString(a.Value.AsString())
	}
	sb.WriteString("}")
	return sb.String()
}

// Dataset is an ordered sequence of datums with a known attribute list.
type Dataset struct {
	Attributes []string
	Data       []Datum
}

// NewDataset creates an empty dataset with the given attributes.
func NewDataset(attributes []string) *Dataset {
	return &Dataset{
		Attributes: attributes,
		Data:       nil,
	}
}

// FromData creates a dataset from rows, collecting attribute names in the
// order they are first seen.
func FromData(rows []Datum) *Dataset {
	seen := make(map[string]bool)
	var attrs []string
	for _, r := range rows {
		for _, a := range r.attrs {
			if !seen[a.Name] {
				seen[a.Name] = true
				attrs = append(attrs, a.Name)
			}
		}
	}
	return &Dataset{Attributes: attrs, Data: rows}
}

// HasAttribute reports whether name is one of the dataset's attributes.
func (d *Dataset) HasAttribute(name string) bool {
	for _, a := range d.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

// Add appends a row to the dataset.
func (d *Dataset) Add(row Datum) {
	d.Data = append(d.Data, row)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// Column returns the values of one attribute across all rows.
func (d *Dataset) Column(name string) []Value {
	vals := make([]Value, len(d.Data))
	for i, r := range d.Data {
		vals[i], _ = r.Get(name)
	}
	return vals
}

// Clone creates a copy of the dataset structure (rows share attribute data,
// which is never mutated).
func (d *Dataset) Clone() *Dataset {
	attrs := make([]string, len(d.Attributes))
	copy(attrs, d.Attributes)
	rows := make([]Datum, len(d.Data))
	copy(rows, d.Data)
	return &Dataset{Attributes: attrs, Data: rows}
}

// String returns a compact representation of the dataset.
func (d *Dataset) String() string {
	if d == nil {
		return "<nil>"
	}
	if len(d.Data) == 0 {
		return "[" + strings.Join(d.Attributes, ", ") + "] (0 rows)"
	}

	var sb strings.Builder
	sb.WriteString("[ ")
	for i, r := range d.Data {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteString(" ]")
	return sb.String()
}
