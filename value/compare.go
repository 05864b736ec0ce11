package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Equal reports value equality. Datasets are equal when their rows are
// pairwise equal.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case TypeNull:
		return true
	case TypeBoolean:
		return a.Bool == b.Bool
	case TypeNumber:
		return a.Num == b.Num
	case TypeString:
		return a.Str == b.Str
	case TypeTime:
		return a.Time.Equal(b.Time)
	case TypeTimeRange:
		return a.Range.Start.Equal(b.Range.Start) && a.Range.End.Equal(b.Range.End)
	case TypeSet:
		if len(a.Set) != len(b.Set) {
			return false
		}
		for _, e := range a.Set {
			if !b.SetContains(e) {
				return false
			}
		}
		return true
	case TypeDataset:
		return Key(a) == Key(b)
	}
	return false
}

// MismatchError is returned by Compare for two non-null values of
// different types.
type MismatchError struct {
	Left, Right Type
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("cannot compare %s with %s", e.Left, e.Right)
}

// Compare orders two values of the same type. Null sorts before everything.
func Compare(a, b Value) (int, error) {
	return CompareWith(a, b, strings.Compare)
}

// CompareWith is Compare with a custom string ordering.
func CompareWith(a, b Value, strCmp func(a, b string) int) (int, error) {
	if a.IsNull() && b.IsNull() {
		return 0, nil
	}
	if a.IsNull() {
		return -1, nil
	}
	if b.IsNull() {
		return 1, nil
	}
	if a.Type != b.Type {
		return 0, &MismatchError{Left: a.Type, Right: b.Type}
	}

	switch a.Type {
	case TypeBoolean:
		return compareBool(a.Bool, b.Bool), nil
	case TypeNumber:
		return compareFloat(a.Num, b.Num), nil
	case TypeString:
		return strCmp(a.Str, b.Str), nil
	case TypeTime:
		return compareTime(a.Time, b.Time), nil
	case TypeTimeRange:
		if c := compareTime(a.Range.Start, b.Range.Start); c != 0 {
			return c, nil
		}
		return compareTime(a.Range.End, b.Range.End), nil
	default:
		return 0, fmt.Errorf("values of type %s are not ordered", a.Type)
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

// Key returns a type-tagged string that is identical for equal values. It is
// used to group and join rows by value.
func Key(v Value) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v Value) {
	sb.WriteString(strconv.Itoa(int(v.Type)))
	sb.WriteByte(':')
	switch v.Type {
	case TypeNull:
	case TypeBoolean:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case TypeNumber:
		n := v.Num
		if n == 0 {
			n = 0 // -0 and 0 are equal
		}
		sb.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
	case TypeString:
		sb.WriteString(strconv.Quote(v.Str))
	case TypeTime:
		sb.WriteString(strconv.FormatInt(v.Time.UnixNano(), 10))
	case TypeTimeRange:
		sb.WriteString(strconv.FormatInt(v.Range.Start.UnixNano(), 10))
		sb.WriteByte('/')
		sb.WriteString(strconv.FormatInt(v.Range.End.UnixNano(), 10))
	case TypeSet:
		// Sets are unordered, so element keys are written sorted.
		keys := make([]string, len(v.Set))
		for i, e := range v.Set {
			keys[i] = Key(e)
		}
		sort.Strings(keys)
		sb.WriteByte('[')
		sb.WriteString(strings.Join(keys, ","))
		sb.WriteByte(']')
	case TypeDataset:
		sb.WriteByte('[')
		for _, row := range v.Dataset.Data {
			sb.WriteByte('{')
			for _, a := range row.attrs {
				sb.WriteString(strconv.Quote(a.Name))
				sb.WriteByte('=')
				writeKey(sb, a.Value)
				sb.WriteByte(';')
			}
			sb.WriteByte('}')
		}
		sb.WriteByte(']')
	}
	sb.WriteByte('\x00')
}
