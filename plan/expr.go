package plan

import (
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/expr"
)

type wireExpr struct {
	Op      string        `json:"op"`
	Value   *wireValue    `json:"value,omitempty"`
	Name    string        `json:"name,omitempty"`
	Nesting int           `json:"nesting,omitempty"`
	Operand *wireExpr     `json:"operand,omitempty"`
	Actions []*wireAction `json:"actions,omitempty"`
}

type wireSplit struct {
	Name       string    `json:"name"`
	Expression *wireExpr `json:"expression"`
}

// wireAction carries every action. Action is the action's name; only the
// fields that action uses are set.
type wireAction struct {
	Action     string       `json:"action"`
	Expression *wireExpr    `json:"expression,omitempty"`
	Attr       string       `json:"attr,omitempty"`
	Direction  string       `json:"direction,omitempty"`
	N          int          `json:"n,omitempty"`
	Splits     []*wireSplit `json:"splits,omitempty"`
	DataName   string       `json:"dataName,omitempty"`
	Other      *wireExpr    `json:"other,omitempty"`
	LeftKey    *wireExpr    `json:"leftKey,omitempty"`
	RightKey   *wireExpr    `json:"rightKey,omitempty"`
	Kind       string       `json:"kind,omitempty"`
	Attributes []string     `json:"attributes,omitempty"`
	Pattern    string       `json:"pattern,omitempty"`
	Escape     string       `json:"escape,omitempty"`
	IgnoreCase bool         `json:"ignoreCase,omitempty"`
	Position   int          `json:"position,omitempty"`
	Length     int          `json:"length,omitempty"`
	Period     string       `json:"period,omitempty"`
	Part       string       `json:"part,omitempty"`
	Size       float64      `json:"size,omitempty"`
	Offset     float64      `json:"offset,omitempty"`
}

// MarshalExpression encodes ex.
func MarshalExpression(ex expr.Expression) ([]byte, error) {
	w, err := toWireExpr(ex)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalExpression decodes an expression encoded by MarshalExpression.
func UnmarshalExpression(data []byte) (expr.Expression, error) {
	var w wireExpr
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "decoding expression")
	}
	return fromWireExpr(&w)
}

func toWireExpr(ex expr.Expression) (*wireExpr, error) {
	switch e := ex.(type) {
	case *expr.Literal:
		v, err := toWireValue(e.Value)
		if err != nil {
			return nil, err
		}
		return &wireExpr{Op: "literal", Value: v}, nil
	case *expr.Reference:
		return &wireExpr{Op: "ref", Name: e.Name, Nesting: e.Nesting}, nil
	case *expr.Chain:
		operand, err := toWireExpr(e.Operand)
		if err != nil {
			return nil, err
		}
		w := &wireExpr{Op: "chain", Operand: operand, Actions: make([]*wireAction, len(e.Actions))}
		for i, a := range e.Actions {
			if w.Actions[i], err = toWireAction(a); err != nil {
				return nil, errors.Wrapf(err, "action %d (%s)", i, a.Name())
			}
		}
		return w, nil
	}
	return nil, errors.Errorf("cannot encode expression %T", ex)
}

func toWireAction(a expr.Action) (*wireAction, error) {
	w := &wireAction{Action: a.Name()}
	sub := func(e expr.Expression) (*wireExpr, error) {
		if e == nil {
			return nil, nil
		}
		return toWireExpr(e)
	}
	var err error

	switch a := a.(type) {
	case *expr.FilterAction:
		w.Expression, err = sub(a.Expression)
	case *expr.ApplyAction:
		w.Attr = a.Attr
		w.Expression, err = sub(a.Expression)
	case *expr.SortAction:
		w.Direction = string(a.Direction)
		w.Expression, err = sub(a.Expression)
	case *expr.LimitAction:
		w.N = a.N
	case *expr.SplitAction:
		w.DataName = a.DataName
		for _, s := range a.Splits {
			e, err := sub(s.Expression)
			if err != nil {
				return nil, err
			}
			w.Splits = append(w.Splits, &wireSplit{Name: s.Name, Expression: e})
		}
	case *expr.JoinAction:
		w.Kind = string(a.Kind)
		if w.Other, err = sub(a.Other); err != nil {
			return nil, err
		}
		if w.LeftKey, err = sub(a.LeftKey); err != nil {
			return nil, err
		}
		w.RightKey, err = sub(a.RightKey)
	case *expr.SelectAction:
		w.Attributes = append([]string{}, a.Attributes...)
	case *expr.MatchAction:
		w.Pattern = a.Pattern
		if a.Escape != 0 {
			w.Escape = string(a.Escape)
		}
		w.Expression, err = sub(a.Expression)
	case *expr.AggregateAction:
		w.Expression, err = sub(a.Expression)
	case *expr.ArithmeticAction:
		w.Expression, err = sub(a.Expression)
	case *expr.CompareAction:
		w.Expression, err = sub(a.Expression)
	case *expr.LogicalAction:
		w.Expression, err = sub(a.Expression)
	case *expr.NotAction, *expr.TransformCaseAction, *expr.LengthAction:
	case *expr.InAction:
		w.Expression, err = sub(a.Expression)
	case *expr.ContainsAction:
		w.IgnoreCase = a.IgnoreCase
		w.Expression, err = sub(a.Expression)
	case *expr.ConcatAction:
		w.Expression, err = sub(a.Expression)
	case *expr.FallbackAction:
		w.Expression, err = sub(a.Expression)
	case *expr.SubstrAction:
		w.Position, w.Length = a.Position, a.Length
	case *expr.TimeFloorAction:
		w.Period = a.Period.String()
	case *expr.TimeBucketAction:
		w.Period = a.Period.String()
	case *expr.TimePartAction:
		w.Part = a.Part
	case *expr.NumberBucketAction:
		w.Size, w.Offset = a.Size, a.Offset
	default:
		return nil, errors.Errorf("cannot encode action %T", a)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func fromWireExpr(w *wireExpr) (expr.Expression, error) {
	if w == nil {
		return nil, errors.New("missing expression")
	}
	switch w.Op {
	case "literal":
		v, err := fromWireValue(w.Value)
		if err != nil {
			return nil, err
		}
		return expr.Lit(v), nil
	case "ref":
		if w.Name == "" {
			return nil, errors.New("reference without a name")
		}
		if w.Nesting < 0 {
			return nil, errors.Errorf("negative nesting %d for reference %q", w.Nesting, w.Name)
		}
		return expr.OuterRef(w.Name, w.Nesting), nil
	case "chain":
		operand, err := fromWireExpr(w.Operand)
		if err != nil {
			return nil, err
		}
		actions := make([]expr.Action, len(w.Actions))
		for i, wa := range w.Actions {
			if wa == nil {
				return nil, errors.Errorf("action %d is missing", i)
			}
			if actions[i], err = fromWireAction(wa); err != nil {
				return nil, errors.Wrapf(err, "action %d (%s)", i, wa.Action)
			}
		}
		return expr.NewChain(operand, actions...), nil
	}
	return nil, errors.Errorf("unknown expression op %q", w.Op)
}

func fromWireAction(w *wireAction) (expr.Action, error) {
	opt := func(e *wireExpr) (expr.Expression, error) {
		if e == nil {
			return nil, nil
		}
		return fromWireExpr(e)
	}

	switch w.Action {
	case "filter":
		e, err := fromWireExpr(w.Expression)
		return &expr.FilterAction{Expression: e}, err
	case "apply":
		e, err := fromWireExpr(w.Expression)
		return &expr.ApplyAction{Attr: w.Attr, Expression: e}, err
	case "sort":
		e, err := fromWireExpr(w.Expression)
		dir := expr.Direction(w.Direction)
		if dir == "" {
			dir = expr.Ascending
		}
		if dir != expr.Ascending && dir != expr.Descending {
			return nil, errors.Errorf("unknown direction %q", w.Direction)
		}
		return &expr.SortAction{Expression: e, Direction: dir}, err
	case "limit":
		if w.N < 0 {
			return nil, errors.Errorf("negative limit %d", w.N)
		}
		return &expr.LimitAction{N: w.N}, nil
	case "split":
		if len(w.Splits) == 0 {
			return nil, errors.New("split without keys")
		}
		a := &expr.SplitAction{DataName: w.DataName}
		for _, s := range w.Splits {
			e, err := fromWireExpr(s.Expression)
			if err != nil {
				return nil, errors.Wrapf(err, "split key %q", s.Name)
			}
			a.Splits = append(a.Splits, expr.SplitKey{Name: s.Name, Expression: e})
		}
		return a, nil
	case "join":
		kind := expr.JoinKind(w.Kind)
		if kind == "" {
			kind = expr.LeftJoin
		}
		if kind != expr.LeftJoin && kind != expr.InnerJoin {
			return nil, errors.Errorf("unknown join kind %q", w.Kind)
		}
		other, err := fromWireExpr(w.Other)
		if err != nil {
			return nil, err
		}
		left, err := fromWireExpr(w.LeftKey)
		if err != nil {
			return nil, err
		}
		right, err := fromWireExpr(w.RightKey)
		if err != nil {
			return nil, err
		}
		return &expr.JoinAction{Other: other, LeftKey: left, RightKey: right, Kind: kind}, nil
	case "select":
		return &expr.SelectAction{Attributes: append([]string{}, w.Attributes...)}, nil
	case "match", "like":
		m := &expr.MatchAction{Pattern: w.Pattern, Syntax: expr.SyntaxRegexp}
		if w.Action == "like" {
			m.Syntax = expr.SyntaxLike
			r := []rune(w.Escape)
			if len(r) > 1 {
				return nil, errors.Errorf("escape must be a single character, got %q", w.Escape)
			}
			if len(r) == 1 {
				m.Escape = r[0]
			}
		}
		e, err := opt(w.Expression)
		m.Expression = e
		return m, err
	case "count", "sum", "min", "max", "average", "countDistinct":
		e, err := opt(w.Expression)
		if e == nil && w.Action != "count" {
			return nil, errors.Errorf("%s needs an expression", w.Action)
		}
		return &expr.AggregateAction{Op: expr.AggregateOp(w.Action), Expression: e}, err
	case "add", "subtract", "multiply", "divide":
		e, err := fromWireExpr(w.Expression)
		return &expr.ArithmeticAction{Op: expr.ArithmeticOp(w.Action), Expression: e}, err
	case "is", "isNot", "lessThan", "lessThanOrEqual", "greaterThan", "greaterThanOrEqual":
		e, err := fromWireExpr(w.Expression)
		return &expr.CompareAction{Op: expr.CompareOp(w.Action), Expression: e}, err
	case "and", "or":
		e, err := fromWireExpr(w.Expression)
		return &expr.LogicalAction{Op: expr.LogicalOp(w.Action), Expression: e}, err
	case "not":
		return &expr.NotAction{}, nil
	case "in":
		e, err := fromWireExpr(w.Expression)
		return &expr.InAction{Expression: e}, err
	case "contains":
		e, err := fromWireExpr(w.Expression)
		return &expr.ContainsAction{Expression: e, IgnoreCase: w.IgnoreCase}, err
	case "concat":
		e, err := fromWireExpr(w.Expression)
		return &expr.ConcatAction{Expression: e}, err
	case "fallback":
		e, err := fromWireExpr(w.Expression)
		return &expr.FallbackAction{Expression: e}, err
	case "upper", "lower":
		return &expr.TransformCaseAction{Upper: w.Action == "upper"}, nil
	case "length":
		return &expr.LengthAction{}, nil
	case "substr":
		return &expr.SubstrAction{Position: w.Position, Length: w.Length}, nil
	case "timeFloor", "timeBucket":
		p, err := expr.ParsePeriod(w.Period)
		if err != nil {
			return nil, err
		}
		if w.Action == "timeFloor" {
			return &expr.TimeFloorAction{Period: p}, nil
		}
		return &expr.TimeBucketAction{Period: p}, nil
	case "timePart":
		for _, known := range expr.TimeParts {
			if w.Part == known {
				return &expr.TimePartAction{Part: w.Part}, nil
			}
		}
		return nil, errors.Errorf("unknown time part %q", w.Part)
	case "numberBucket":
		if w.Size <= 0 {
			return nil, errors.Errorf("bucket size must be positive, got %g", w.Size)
		}
		return &expr.NumberBucketAction{Size: w.Size, Offset: w.Offset}, nil
	}
	return nil, errors.Errorf("unknown action %q", w.Action)
}
