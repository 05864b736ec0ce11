package value

import (
	"strconv"
	"strings"
	"time"
)

// Type represents the type of a Value.
type Type int

const (
	TypeNull Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTime
	TypeTimeRange
	TypeSet
	TypeDataset // nested dataset (from split)
)

var typeNames = [...]string{
	TypeNull:      "NULL",
	TypeBoolean:   "BOOLEAN",
	TypeNumber:    "NUMBER",
	TypeString:    "STRING",
	TypeTime:      "TIME",
	TypeTimeRange: "TIME_RANGE",
	TypeSet:       "SET",
	TypeDataset:   "DATASET",
}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return TypeNull, false
}

// TimeRange is a half open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Value is a dynamically-typed value computed by an expression.
type Value struct {
	Type    Type
	Bool    bool
	Num     float64
	Str     string
	Time    time.Time
	Range   TimeRange
	Set     []Value
	Dataset *Dataset
}

// Null returns a null value.
func Null() Value {
	return Value{Type: TypeNull}
}

// Bool creates a boolean value.
func Bool(v bool) Value {
	return Value{Type: TypeBoolean, Bool: v}
}

// Number creates a numeric value.
func Number(v float64) Value {
	return Value{Type: TypeNumber, Num: v}
}

// String creates a string value.
func String(v string) Value {
	return Value{Type: TypeString, Str: v}
}

// Time creates a time value.
func Time(v time.Time) Value {
	return Value{Type: TypeTime, Time: v}
}

// Range creates a time range value.
func Range(start, end time.Time) Value {
	return Value{Type: TypeTimeRange, Range: TimeRange{Start: start, End: end}}
}

// NewSet creates a set value. Duplicate elements are dropped, the first
// occurrence keeps its position.
func NewSet(elements ...Value) Value {
	seen := make(map[string]bool, len(elements))
	set := make([]Value, 0, len(elements))
	for _, e := range elements {
		k := Key(e)
		if seen[k] {
			continue
		}
		seen[k] = true
		set = append(set, e)
	}
	return Value{Type: TypeSet, Set: set}
}

// DatasetVal wraps a dataset as a value.
func DatasetVal(d *Dataset) Value {
	return Value{Type: TypeDataset, Dataset: d}
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// AsFloat returns the number for numeric values.
func (v Value) AsFloat() (float64, bool) {
	if v.Type == TypeNumber {
		return v.Num, true
	}
	return 0, false
}

// AsBool coerces to boolean for logical operations. Null is false.
func (v Value) AsBool() (bool, bool) {
	switch v.Type {
	case TypeBoolean:
		return v.Bool, true
	case TypeNull:
		return false, true
	default:
		return false, false
	}
}

// SetContains reports whether a set value holds e.
func (v Value) SetContains(e Value) bool {
	for _, s := range v.Set {
		if Equal(s, e) {
			return true
		}
	}
	return false
}

// AsString returns the string representation.
func (v Value) AsString() string {
	switch v.Type {
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case TypeNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case TypeString:
		return v.Str
	case TypeTime:
		return v.Time.Format(time.RFC3339Nano)
	case TypeTimeRange:
		return "[" + v.Range.Start.Format(time.RFC3339Nano) + ", " + v.Range.End.Format(time.RFC3339Nano) + ")"
	case TypeSet:
		parts := make([]string, len(v.Set))
		for i, e := range v.Set {
			parts[i] = e.AsString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeDataset:
		return v.Dataset.String()
	default:
		return "?"
	}
}

func (v Value) String() string {
	return v.AsString()
}
