package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/razeghi71/ply/value"
)

// String renders ex in the textual expression syntax.
func String(ex Expression) string {
	var sb strings.Builder
	writeExpr(&sb, ex)
	return sb.String()
}

func writeExpr(sb *strings.Builder, ex Expression) {
	switch e := ex.(type) {
	case *Literal:
		writeValue(sb, e.Value)
	case *Reference:
		sb.WriteByte('$')
		sb.WriteString(strings.Repeat("^", e.Nesting))
		if isIdent(e.Name) {
			sb.WriteString(e.Name)
		} else {
			sb.WriteString("{" + e.Name + "}")
		}
	case *Chain:
		writeExpr(sb, e.Operand)
		for _, a := range e.Actions {
			sb.WriteByte('.')
			writeAction(sb, a)
		}
	case nil:
		sb.WriteString("<nil>")
	default:
		fmt.Fprintf(sb, "<%T>", ex)
	}
}

func writeAction(sb *strings.Builder, a Action) {
	sb.WriteString(a.Name())
	sb.WriteByte('(')
	var args []string
	str := func(s string) string { return Quote(s) }
	sub := func(e Expression) string { return String(e) }

	switch a := a.(type) {
	case *FilterAction:
		args = []string{sub(a.Expression)}
	case *ApplyAction:
		args = []string{str(a.Attr), sub(a.Expression)}
	case *SortAction:
		args = []string{sub(a.Expression)}
		if a.Direction == Descending {
			args = append(args, str(string(Descending)))
		}
	case *LimitAction:
		args = []string{strconv.Itoa(a.N)}
	case *SplitAction:
		keys := make([]string, len(a.Splits))
		for i, s := range a.Splits {
			keys[i] = identOrQuote(s.Name) + ": " + sub(s.Expression)
		}
		args = []string{"{" + strings.Join(keys, ", ") + "}", str(a.DataName)}
	case *JoinAction:
		args = []string{sub(a.Other), sub(a.LeftKey), sub(a.RightKey)}
		if a.Kind == InnerJoin {
			args = append(args, str(string(InnerJoin)))
		}
	case *SelectAction:
		for _, attr := range a.Attributes {
			args = append(args, str(attr))
		}
	case *MatchAction:
		args = []string{str(a.Pattern)}
		if a.Syntax == SyntaxLike && (a.Expression != nil || (a.Escape != 0 && a.Escape != '\\')) {
			esc := a.Escape
			if esc == 0 {
				esc = '\\'
			}
			args = append(args, str(string(esc)))
		}
		if a.Expression != nil {
			args = append(args, sub(a.Expression))
		}
	case *AggregateAction:
		if a.Expression != nil {
			args = []string{sub(a.Expression)}
		}
	case *ArithmeticAction:
		args = []string{sub(a.Expression)}
	case *CompareAction:
		args = []string{sub(a.Expression)}
	case *LogicalAction:
		args = []string{sub(a.Expression)}
	case *InAction:
		args = []string{sub(a.Expression)}
	case *ContainsAction:
		args = []string{sub(a.Expression)}
		if a.IgnoreCase {
			args = append(args, str("ignoreCase"))
		}
	case *ConcatAction:
		args = []string{sub(a.Expression)}
	case *FallbackAction:
		args = []string{sub(a.Expression)}
	case *SubstrAction:
		args = []string{strconv.Itoa(a.Position), strconv.Itoa(a.Length)}
	case *TimeFloorAction:
		args = []string{str(a.Period.String())}
	case *TimeBucketAction:
		args = []string{str(a.Period.String())}
	case *TimePartAction:
		args = []string{str(a.Part)}
	case *NumberBucketAction:
		args = []string{formatNumber(a.Size)}
		if a.Offset != 0 {
			args = append(args, formatNumber(a.Offset))
		}
	}
	sb.WriteString(strings.Join(args, ", "))
	sb.WriteByte(')')
}

func writeValue(sb *strings.Builder, v value.Value) {
	switch v.Type {
	case value.TypeNull:
		sb.WriteString("null")
	case value.TypeBoolean:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case value.TypeNumber:
		sb.WriteString(formatNumber(v.Num))
	case value.TypeString:
		sb.WriteString(Quote(v.Str))
	case value.TypeTime:
		sb.WriteString("time(" + Quote(v.Time.Format(time.RFC3339Nano)) + ")")
	case value.TypeTimeRange:
		sb.WriteString("timeRange(" + Quote(v.Range.Start.Format(time.RFC3339Nano)) + ", " +
			Quote(v.Range.End.Format(time.RFC3339Nano)) + ")")
	case value.TypeSet:
		sb.WriteByte('[')
		for i, e := range v.Set {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, e)
		}
		sb.WriteByte(']')
	case value.TypeDataset:
		fmt.Fprintf(sb, "<dataset %d rows>", v.Dataset.Len())
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Quote renders s as a single quoted string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			sb.WriteString(`\'`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func identOrQuote(s string) string {
	if isIdent(s) {
		return s
	}
	return Quote(s)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		digit := r >= '0' && r <= '9'
		if !letter && (i == 0 || !digit) {
			return false
		}
	}
	return true
}
