package engine

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// applyScalar evaluates the actions that operate on single values. Their
// argument expressions are computed in the chain's own scope.
func (ev *evaluator) applyScalar(a expr.Action, in value.Value, s *scope) (value.Value, error) {
	switch a := a.(type) {
	case *expr.ArithmeticAction:
		arg, err := ev.eval(a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		return arith(a.Op, in, arg)
	case *expr.CompareAction:
		arg, err := ev.eval(a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		return ev.compare(a.Op, in, arg)
	case *expr.LogicalAction:
		return ev.logical(a, in, s)
	case *expr.NotAction:
		if in.IsNull() {
			return value.Null(), nil
		}
		if in.Type != value.TypeBoolean {
			return value.Null(), mismatch(a.Name(), "BOOLEAN", in.Type)
		}
		return value.Bool(!in.Bool), nil
	case *expr.InAction:
		arg, err := ev.eval(a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		return membership(in, arg)
	case *expr.ContainsAction:
		arg, err := ev.eval(a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		return contains(in, arg, a.IgnoreCase)
	case *expr.ConcatAction:
		arg, err := ev.eval(a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		if in.IsNull() || arg.IsNull() {
			return value.Null(), nil
		}
		if in.Type != value.TypeString || arg.Type != value.TypeString {
			return value.Null(), mismatch(a.Name(), "STRING", nonString(in, arg))
		}
		return value.String(in.Str + arg.Str), nil
	case *expr.FallbackAction:
		if !in.IsNull() {
			return in, nil
		}
		return ev.eval(a.Expression, s)
	case *expr.TransformCaseAction:
		return transformCase(a, in)
	case *expr.LengthAction:
		return length(in)
	case *expr.SubstrAction:
		return substr(in, a.Position, a.Length)
	case *expr.TimeFloorAction:
		return ev.timeFloor(a, in)
	case *expr.TimeBucketAction:
		return ev.timeBucket(a, in)
	case *expr.TimePartAction:
		return ev.timePart(a, in)
	case *expr.NumberBucketAction:
		return numberBucket(a, in)
	default:
		return value.Null(), invalid("evaluate", "unknown action type %T", a)
	}
}

func arith(op expr.ArithmeticOp, left, right value.Value) (value.Value, error) {
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	// String concatenation with add
	if op == expr.Add && left.Type == value.TypeString && right.Type == value.TypeString {
		return value.String(left.Str + right.Str), nil
	}

	lf, lok := left.AsFloat()
	if !lok {
		return value.Null(), mismatch(string(op), "NUMBER", left.Type)
	}
	rf, rok := right.AsFloat()
	if !rok {
		return value.Null(), mismatch(string(op), "NUMBER", right.Type)
	}

	switch op {
	case expr.Add:
		return value.Number(lf + rf), nil
	case expr.Subtract:
		return value.Number(lf - rf), nil
	case expr.Multiply:
		return value.Number(lf * rf), nil
	case expr.Divide:
		if rf == 0 {
			return value.Null(), nil // division by zero returns null
		}
		return value.Number(lf / rf), nil
	default:
		return value.Null(), invalid(string(op), "unknown arithmetic operator")
	}
}

func (ev *evaluator) compare(op expr.CompareOp, left, right value.Value) (value.Value, error) {
	switch op {
	case expr.Is:
		return value.Bool(value.Equal(left, right)), nil
	case expr.IsNot:
		return value.Bool(!value.Equal(left, right)), nil
	}

	// Ordering against null is unknown.
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	cmp, err := value.CompareWith(left, right, ev.strCmp)
	if err != nil {
		return value.Null(), compareError(string(op), err)
	}

	switch op {
	case expr.LessThan:
		return value.Bool(cmp < 0), nil
	case expr.LessThanOrEqual:
		return value.Bool(cmp <= 0), nil
	case expr.GreaterThan:
		return value.Bool(cmp > 0), nil
	case expr.GreaterThanOrEqual:
		return value.Bool(cmp >= 0), nil
	default:
		return value.Null(), invalid(string(op), "unknown comparison")
	}
}

func (ev *evaluator) logical(a *expr.LogicalAction, in value.Value, s *scope) (value.Value, error) {
	lb, ok := in.AsBool()
	if !ok {
		return value.Null(), mismatch(a.Name(), "BOOLEAN", in.Type)
	}
	if a.Op == expr.And && !lb {
		return value.Bool(false), nil
	}
	if a.Op == expr.Or && lb {
		return value.Bool(true), nil
	}
	arg, err := ev.eval(a.Expression, s)
	if err != nil {
		return value.Null(), err
	}
	rb, ok := arg.AsBool()
	if !ok {
		return value.Null(), mismatch(a.Name(), "BOOLEAN", arg.Type)
	}
	return value.Bool(rb), nil
}

func membership(v, container value.Value) (value.Value, error) {
	switch container.Type {
	case value.TypeNull:
		return value.Null(), nil
	case value.TypeSet:
		return value.Bool(container.SetContains(v)), nil
	case value.TypeTimeRange:
		if v.IsNull() {
			return value.Bool(false), nil
		}
		if v.Type != value.TypeTime {
			return value.Null(), mismatch("in", "TIME", v.Type)
		}
		return value.Bool(container.Range.Contains(v.Time)), nil
	default:
		return value.Null(), mismatch("in", "SET or TIME_RANGE", container.Type)
	}
}

func contains(in, arg value.Value, ignoreCase bool) (value.Value, error) {
	switch in.Type {
	case value.TypeNull:
		return value.Null(), nil
	case value.TypeString:
		if arg.IsNull() {
			return value.Null(), nil
		}
		if arg.Type != value.TypeString {
			return value.Null(), mismatch("contains", "STRING", arg.Type)
		}
		hay, needle := in.Str, arg.Str
		if ignoreCase {
			hay, needle = strings.ToLower(hay), strings.ToLower(needle)
		}
		return value.Bool(strings.Contains(hay, needle)), nil
	case value.TypeSet:
		return value.Bool(in.SetContains(arg)), nil
	default:
		return value.Null(), mismatch("contains", "STRING or SET", in.Type)
	}
}

func transformCase(a *expr.TransformCaseAction, in value.Value) (value.Value, error) {
	if in.IsNull() {
		return value.Null(), nil
	}
	if in.Type != value.TypeString {
		return value.Null(), mismatch(a.Name(), "STRING", in.Type)
	}
	if a.Upper {
		return value.String(strings.ToUpper(in.Str)), nil
	}
	return value.String(strings.ToLower(in.Str)), nil
}

func length(in value.Value) (value.Value, error) {
	switch in.Type {
	case value.TypeNull:
		return value.Null(), nil
	case value.TypeString:
		return value.Number(float64(utf8.RuneCountInString(in.Str))), nil
	case value.TypeSet:
		return value.Number(float64(len(in.Set))), nil
	case value.TypeDataset:
		return value.Number(float64(in.Dataset.Len())), nil
	default:
		return value.Null(), mismatch("length", "STRING, SET or DATASET", in.Type)
	}
}

// substr works on characters, not bytes. Out of range positions are
// clamped.
func substr(in value.Value, position, n int) (value.Value, error) {
	if in.IsNull() {
		return value.Null(), nil
	}
	if in.Type != value.TypeString {
		return value.Null(), mismatch("substr", "STRING", in.Type)
	}
	runes := []rune(in.Str)
	start := position
	if start < 0 {
		start = 0
	}
	if start >= len(runes) || n <= 0 {
		return value.String(""), nil
	}
	end := start + n
	if end > len(runes) {
		end = len(runes)
	}
	return value.String(string(runes[start:end])), nil
}

func numberBucket(a *expr.NumberBucketAction, in value.Value) (value.Value, error) {
	if in.IsNull() {
		return value.Null(), nil
	}
	f, ok := in.AsFloat()
	if !ok {
		return value.Null(), mismatch(a.Name(), "NUMBER", in.Type)
	}
	if a.Size <= 0 {
		return value.Null(), invalid("numberBucket", "size must be positive, got %g", a.Size)
	}
	return value.Number(math.Floor((f-a.Offset)/a.Size)*a.Size + a.Offset), nil
}

func nonString(a, b value.Value) value.Type {
	if a.Type != value.TypeString {
		return a.Type
	}
	return b.Type
}

func compareError(action string, err error) error {
	var me *value.MismatchError
	if errors.As(err, &me) {
		return &TypeMismatchError{Action: action, Expected: me.Left.String(), Actual: me.Right.String()}
	}
	return errors.Wrap(err, action)
}
