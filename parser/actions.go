package parser

import (
	"fmt"
	"math"
	"time"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/pattern"
	"github.com/razeghi71/ply/value"
)

// buildAction turns a parsed .name(args) call into an action.
func buildAction(name string, args []arg) (expr.Action, error) {
	switch name {
	case "filter":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.FilterAction{Expression: e}, nil

	case "apply":
		if err := argCount(args, 2, 2); err != nil {
			return nil, err
		}
		attr, err := stringArg(args[0])
		if err != nil {
			return nil, err
		}
		e, err := exprArg(args[1])
		if err != nil {
			return nil, err
		}
		return &expr.ApplyAction{Attr: attr, Expression: e}, nil

	case "sort":
		if err := argCount(args, 1, 2); err != nil {
			return nil, err
		}
		e, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		dir := expr.Ascending
		if len(args) == 2 {
			s, err := stringArg(args[1])
			if err != nil {
				return nil, err
			}
			dir = expr.Direction(s)
			if dir != expr.Ascending && dir != expr.Descending {
				return nil, fmt.Errorf("unknown direction %q", s)
			}
		}
		return &expr.SortAction{Expression: e, Direction: dir}, nil

	case "limit":
		if err := argCount(args, 1, 1); err != nil {
			return nil, err
		}
		n, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("row count must not be negative, got %d", n)
		}
		return &expr.LimitAction{N: n}, nil

	case "split":
		return buildSplit(args)

	case "join":
		if err := argCount(args, 3, 4); err != nil {
			return nil, err
		}
		exprs := make([]expr.Expression, 3)
		for i := range exprs {
			e, err := exprArg(args[i])
			if err != nil {
				return nil, err
			}
			exprs[i] = e
		}
		kind := expr.LeftJoin
		if len(args) == 4 {
			s, err := stringArg(args[3])
			if err != nil {
				return nil, err
			}
			kind = expr.JoinKind(s)
			if kind != expr.LeftJoin && kind != expr.InnerJoin {
				return nil, fmt.Errorf("unknown join kind %q", s)
			}
		}
		return &expr.JoinAction{Other: exprs[0], LeftKey: exprs[1], RightKey: exprs[2], Kind: kind}, nil

	case "select":
		if len(args) == 0 {
			return nil, fmt.Errorf("expected at least one attribute")
		}
		attrs := make([]string, len(args))
		for i, a := range args {
			s, err := stringArg(a)
			if err != nil {
				return nil, err
			}
			attrs[i] = s
		}
		return &expr.SelectAction{Attributes: attrs}, nil

	case "match":
		if err := argCount(args, 1, 2); err != nil {
			return nil, err
		}
		re, err := stringArg(args[0])
		if err != nil {
			return nil, err
		}
		m := &expr.MatchAction{Pattern: re, Syntax: expr.SyntaxRegexp}
		if len(args) == 2 {
			if m.Expression, err = exprArg(args[1]); err != nil {
				return nil, err
			}
		}
		return m, nil

	case "like":
		return buildLike(args)

	case "count":
		if err := argCount(args, 0, 1); err != nil {
			return nil, err
		}
		a := &expr.AggregateAction{Op: expr.Count}
		if len(args) == 1 {
			e, err := exprArg(args[0])
			if err != nil {
				return nil, err
			}
			a.Expression = e
		}
		return a, nil

	case "sum", "min", "max", "average", "countDistinct":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.AggregateAction{Op: expr.AggregateOp(name), Expression: e}, nil

	case "add", "subtract", "multiply", "divide":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.ArithmeticAction{Op: expr.ArithmeticOp(name), Expression: e}, nil

	case "is", "isNot", "lessThan", "lessThanOrEqual", "greaterThan", "greaterThanOrEqual":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.CompareAction{Op: expr.CompareOp(name), Expression: e}, nil

	case "and", "or":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.LogicalAction{Op: expr.LogicalOp(name), Expression: e}, nil

	case "not":
		if err := argCount(args, 0, 0); err != nil {
			return nil, err
		}
		return &expr.NotAction{}, nil

	case "in":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.InAction{Expression: e}, nil

	case "contains":
		if err := argCount(args, 1, 2); err != nil {
			return nil, err
		}
		e, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		c := &expr.ContainsAction{Expression: e}
		if len(args) == 2 {
			s, err := stringArg(args[1])
			if err != nil {
				return nil, err
			}
			switch s {
			case "ignoreCase":
				c.IgnoreCase = true
			case "normal":
			default:
				return nil, fmt.Errorf("unknown compare mode %q", s)
			}
		}
		return c, nil

	case "concat":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.ConcatAction{Expression: e}, nil

	case "fallback":
		e, err := single(args)
		if err != nil {
			return nil, err
		}
		return &expr.FallbackAction{Expression: e}, nil

	case "upper", "lower":
		if err := argCount(args, 0, 0); err != nil {
			return nil, err
		}
		return &expr.TransformCaseAction{Upper: name == "upper"}, nil

	case "length":
		if err := argCount(args, 0, 0); err != nil {
			return nil, err
		}
		return &expr.LengthAction{}, nil

	case "substr":
		if err := argCount(args, 2, 2); err != nil {
			return nil, err
		}
		pos, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		n, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return &expr.SubstrAction{Position: pos, Length: n}, nil

	case "timeFloor", "timeBucket":
		if err := argCount(args, 1, 1); err != nil {
			return nil, err
		}
		s, err := stringArg(args[0])
		if err != nil {
			return nil, err
		}
		period, err := expr.ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		if name == "timeFloor" {
			return &expr.TimeFloorAction{Period: period}, nil
		}
		return &expr.TimeBucketAction{Period: period}, nil

	case "timePart":
		if err := argCount(args, 1, 1); err != nil {
			return nil, err
		}
		part, err := stringArg(args[0])
		if err != nil {
			return nil, err
		}
		for _, known := range expr.TimeParts {
			if part == known {
				return &expr.TimePartAction{Part: part}, nil
			}
		}
		return nil, fmt.Errorf("unknown time part %q", part)

	case "numberBucket":
		if err := argCount(args, 1, 2); err != nil {
			return nil, err
		}
		size, err := numberArg(args[0])
		if err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, fmt.Errorf("bucket size must be positive, got %g", size)
		}
		b := &expr.NumberBucketAction{Size: size}
		if len(args) == 2 {
			if b.Offset, err = numberArg(args[1]); err != nil {
				return nil, err
			}
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
}

// buildSplit accepts split({Name: expr, ..}[, dataName]) and
// split(expr, 'Name'[, dataName]).
func buildSplit(args []arg) (expr.Action, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected split keys")
	}
	var (
		keys []expr.SplitKey
		rest []arg
	)
	if args[0].object != nil {
		keys = args[0].object
		rest = args[1:]
	} else {
		if len(args) < 2 {
			return nil, fmt.Errorf("expected split expression and name")
		}
		e, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		name, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		keys = []expr.SplitKey{{Name: name, Expression: e}}
		rest = args[2:]
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("expected at least one split key")
	}
	dataName := DefaultDataName
	switch len(rest) {
	case 0:
	case 1:
		s, err := stringArg(rest[0])
		if err != nil {
			return nil, err
		}
		dataName = s
	default:
		return nil, fmt.Errorf("too many arguments")
	}
	return &expr.SplitAction{Splits: keys, DataName: dataName}, nil
}

// buildLike accepts like(pattern), like(pattern, escape),
// like(pattern, expr) and like(pattern, escape, expr).
func buildLike(args []arg) (expr.Action, error) {
	if err := argCount(args, 1, 3); err != nil {
		return nil, err
	}
	p, err := stringArg(args[0])
	if err != nil {
		return nil, err
	}
	m := &expr.MatchAction{Pattern: p, Syntax: expr.SyntaxLike, Escape: pattern.DefaultEscape}
	rest := args[1:]
	if len(rest) > 0 {
		if s, err := stringArg(rest[0]); err == nil {
			esc, err := pattern.ParseEscape(s)
			if err != nil {
				return nil, err
			}
			m.Escape = esc
			rest = rest[1:]
		}
	}
	switch len(rest) {
	case 0:
	case 1:
		if m.Expression, err = exprArg(rest[0]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("too many arguments")
	}
	return m, nil
}

// --- Argument helpers ---

func argCount(args []arg, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("takes %d argument(s), got %d", min, len(args))
		}
		return fmt.Errorf("takes %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func single(args []arg) (expr.Expression, error) {
	if err := argCount(args, 1, 1); err != nil {
		return nil, err
	}
	return exprArg(args[0])
}

func exprArg(a arg) (expr.Expression, error) {
	if a.expr == nil {
		return nil, fmt.Errorf("unexpected object at position %d", a.pos)
	}
	return a.expr, nil
}

func literalArg(a arg, t value.Type) (value.Value, error) {
	lit, ok := a.expr.(*expr.Literal)
	if !ok || lit.Value.Type != t {
		return value.Null(), fmt.Errorf("expected %s literal at position %d", t, a.pos)
	}
	return lit.Value, nil
}

func stringArg(a arg) (string, error) {
	v, err := literalArg(a, value.TypeString)
	if err != nil {
		return "", err
	}
	return v.Str, nil
}

func numberArg(a arg) (float64, error) {
	v, err := literalArg(a, value.TypeNumber)
	if err != nil {
		return 0, err
	}
	return v.Num, nil
}

func intArg(a arg) (int, error) {
	f, err := numberArg(a)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer at position %d, got %g", a.pos, f)
	}
	return int(f), nil
}

func timeArg(a arg) (time.Time, error) {
	s, err := stringArg(a)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}
