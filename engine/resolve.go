package engine

import (
	"github.com/grafana/regexp"
	"github.com/pkg/errors"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/pattern"
	"github.com/razeghi71/ply/value"
)

// Program is an expression whose references have been bound and whose
// actions have been type checked against a context. Match patterns are
// compiled once here.
type Program struct {
	Expression expr.Expression
	Type       expr.FullType

	patterns map[*expr.MatchAction]*regexp.Regexp
}

// typeScope is the static counterpart of scope. A nil schema is an open
// scope in which every name resolves to an unknown type.
type typeScope struct {
	schema *expr.Schema
	parent *typeScope
}

type resolver struct {
	patterns map[*expr.MatchAction]*regexp.Regexp
}

// Resolve binds every reference of ex against the attributes of datum and
// checks each action's operand types.
func Resolve(ex expr.Expression, datum value.Datum) (*Program, error) {
	r := &resolver{patterns: make(map[*expr.MatchAction]*regexp.Regexp)}
	t, err := r.resolve(ex, &typeScope{schema: expr.SchemaOfDatum(datum)})
	if err != nil {
		return nil, err
	}
	return &Program{Expression: ex, Type: t, patterns: r.patterns}, nil
}

func (r *resolver) resolve(ex expr.Expression, ts *typeScope) (expr.FullType, error) {
	switch e := ex.(type) {
	case *expr.Literal:
		return expr.TypeOfValue(e.Value), nil
	case *expr.Reference:
		return resolveReference(e, ts)
	case *expr.Chain:
		t, err := r.resolve(e.Operand, ts)
		if err != nil {
			return expr.Unknown, err
		}
		for _, a := range e.Actions {
			t, err = r.resolveAction(a, t, ts)
			if err != nil {
				return expr.Unknown, err
			}
		}
		return t, nil
	default:
		return expr.Unknown, invalid("resolve", "unknown expression type %T", ex)
	}
}

func resolveReference(e *expr.Reference, ts *typeScope) (expr.FullType, error) {
	s := ts
	for i := 0; i < e.Nesting && s != nil; i++ {
		s = s.parent
	}
	if s == nil {
		return expr.Unknown, &UnresolvedReferenceError{Name: e.Name, Nesting: e.Nesting}
	}
	if s.schema == nil {
		return expr.Unknown, nil
	}
	t, ok := s.schema.Lookup(e.Name)
	if !ok {
		return expr.Unknown, &UnresolvedReferenceError{Name: e.Name, Nesting: e.Nesting}
	}
	return t, nil
}

func requireDataset(action string, t expr.FullType) error {
	if !t.Is(value.TypeDataset) {
		return mismatch(action, "DATASET", t)
	}
	return nil
}

func rowScope(t expr.FullType, parent *typeScope) *typeScope {
	return &typeScope{schema: t.Schema, parent: parent}
}

func (r *resolver) resolveAction(a expr.Action, in expr.FullType, ts *typeScope) (expr.FullType, error) {
	name := a.Name()
	switch a := a.(type) {
	case *expr.FilterAction:
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		pt, err := r.resolve(a.Expression, rowScope(in, ts))
		if err != nil {
			return in, err
		}
		if !pt.Is(value.TypeBoolean) {
			return in, mismatch(name, "BOOLEAN predicate", pt)
		}
		return in, nil

	case *expr.ApplyAction:
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		if a.Attr == "" {
			return in, invalid("apply", "attribute name is empty")
		}
		et, err := r.resolve(a.Expression, rowScope(in, ts))
		if err != nil {
			return in, err
		}
		return withAttr(in, a.Attr, et), nil

	case *expr.SortAction:
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		if a.Direction != "" && a.Direction != expr.Ascending && a.Direction != expr.Descending {
			return in, invalid("sort", "unknown direction %q", a.Direction)
		}
		kt, err := r.resolve(a.Expression, rowScope(in, ts))
		if err != nil {
			return in, err
		}
		if !orderable(kt) {
			return in, mismatch(name, "orderable key", kt)
		}
		return in, nil

	case *expr.LimitAction:
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		if a.N < 0 {
			return in, invalid("limit", "negative row count %d", a.N)
		}
		return in, nil

	case *expr.SplitAction:
		return r.resolveSplit(a, in, ts)

	case *expr.JoinAction:
		return r.resolveJoin(a, in, ts)

	case *expr.SelectAction:
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		if in.Schema == nil {
			return in, nil
		}
		s := expr.NewSchema()
		for _, attr := range a.Attributes {
			t, ok := in.Schema.Lookup(attr)
			if !ok {
				return in, &UnresolvedReferenceError{Name: attr}
			}
			s = s.With(attr, t)
		}
		return expr.DatasetType(s), nil

	case *expr.MatchAction:
		if err := r.compilePattern(a); err != nil {
			return in, err
		}
		if a.Expression == nil {
			if !in.Is(value.TypeString) {
				return in, mismatch(name, "STRING", in)
			}
			return expr.TypeOf(value.TypeBoolean), nil
		}
		if err := requireDataset(name, in); err != nil {
			return in, err
		}
		et, err := r.resolve(a.Expression, rowScope(in, ts))
		if err != nil {
			return in, err
		}
		if !et.Is(value.TypeString) {
			return in, mismatch(name, "STRING", et)
		}
		return in, nil

	case *expr.AggregateAction:
		return r.resolveAggregate(a, in, ts)

	case *expr.ArithmeticAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		if a.Op == expr.Add && in.Is(value.TypeString) && at.Is(value.TypeString) && (in.Type == value.TypeString || at.Type == value.TypeString) {
			return expr.TypeOf(value.TypeString), nil
		}
		if !in.Is(value.TypeNumber) {
			return in, mismatch(name, "NUMBER", in)
		}
		if !at.Is(value.TypeNumber) {
			return in, mismatch(name, "NUMBER", at)
		}
		switch a.Op {
		case expr.Add, expr.Subtract, expr.Multiply, expr.Divide:
		default:
			return in, invalid(string(a.Op), "unknown arithmetic operator")
		}
		return expr.TypeOf(value.TypeNumber), nil

	case *expr.CompareAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		switch a.Op {
		case expr.Is, expr.IsNot:
		case expr.LessThan, expr.LessThanOrEqual, expr.GreaterThan, expr.GreaterThanOrEqual:
			if !orderable(in) || !orderable(at) {
				return in, mismatch(name, "orderable operands", in)
			}
			if !in.IsUnknown() && !at.IsUnknown() && in.Type != at.Type {
				return in, mismatch(name, in.Type.String(), at)
			}
		default:
			return in, invalid(string(a.Op), "unknown comparison")
		}
		return expr.TypeOf(value.TypeBoolean), nil

	case *expr.LogicalAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		if a.Op != expr.And && a.Op != expr.Or {
			return in, invalid(string(a.Op), "unknown logical operator")
		}
		if !in.Is(value.TypeBoolean) {
			return in, mismatch(name, "BOOLEAN", in)
		}
		if !at.Is(value.TypeBoolean) {
			return in, mismatch(name, "BOOLEAN", at)
		}
		return expr.TypeOf(value.TypeBoolean), nil

	case *expr.NotAction:
		if !in.Is(value.TypeBoolean) {
			return in, mismatch(name, "BOOLEAN", in)
		}
		return expr.TypeOf(value.TypeBoolean), nil

	case *expr.InAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		if !at.Is(value.TypeSet, value.TypeTimeRange) {
			return in, mismatch(name, "SET or TIME_RANGE", at)
		}
		return expr.TypeOf(value.TypeBoolean), nil

	case *expr.ContainsAction:
		if _, err := r.resolve(a.Expression, ts); err != nil {
			return in, err
		}
		if !in.Is(value.TypeString, value.TypeSet) {
			return in, mismatch(name, "STRING or SET", in)
		}
		return expr.TypeOf(value.TypeBoolean), nil

	case *expr.ConcatAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		if !in.Is(value.TypeString) {
			return in, mismatch(name, "STRING", in)
		}
		if !at.Is(value.TypeString) {
			return in, mismatch(name, "STRING", at)
		}
		return expr.TypeOf(value.TypeString), nil

	case *expr.FallbackAction:
		at, err := r.resolve(a.Expression, ts)
		if err != nil {
			return in, err
		}
		if in.IsUnknown() {
			return at, nil
		}
		return in, nil

	case *expr.TransformCaseAction:
		if !in.Is(value.TypeString) {
			return in, mismatch(name, "STRING", in)
		}
		return expr.TypeOf(value.TypeString), nil

	case *expr.LengthAction:
		if !in.Is(value.TypeString, value.TypeSet, value.TypeDataset) {
			return in, mismatch(name, "STRING, SET or DATASET", in)
		}
		return expr.TypeOf(value.TypeNumber), nil

	case *expr.SubstrAction:
		if !in.Is(value.TypeString) {
			return in, mismatch(name, "STRING", in)
		}
		return expr.TypeOf(value.TypeString), nil

	case *expr.TimeFloorAction:
		if err := checkPeriod(name, a.Period); err != nil {
			return in, err
		}
		if !in.Is(value.TypeTime, value.TypeString) {
			return in, mismatch(name, "TIME", in)
		}
		return expr.TypeOf(value.TypeTime), nil

	case *expr.TimeBucketAction:
		if err := checkPeriod(name, a.Period); err != nil {
			return in, err
		}
		if !in.Is(value.TypeTime, value.TypeString) {
			return in, mismatch(name, "TIME", in)
		}
		return expr.TypeOf(value.TypeTimeRange), nil

	case *expr.TimePartAction:
		if !validPart(a.Part) {
			return in, invalid("timePart", "unknown part %q", a.Part)
		}
		if !in.Is(value.TypeTime, value.TypeString) {
			return in, mismatch(name, "TIME", in)
		}
		return expr.TypeOf(value.TypeNumber), nil

	case *expr.NumberBucketAction:
		if a.Size <= 0 {
			return in, invalid("numberBucket", "size must be positive, got %g", a.Size)
		}
		if !in.Is(value.TypeNumber) {
			return in, mismatch(name, "NUMBER", in)
		}
		return expr.TypeOf(value.TypeNumber), nil

	default:
		return in, invalid("resolve", "unknown action type %T", a)
	}
}

func (r *resolver) resolveSplit(a *expr.SplitAction, in expr.FullType, ts *typeScope) (expr.FullType, error) {
	if err := requireDataset("split", in); err != nil {
		return in, err
	}
	if len(a.Splits) == 0 {
		return in, invalid("split", "at least one split key is required")
	}
	if a.DataName == "" {
		return in, invalid("split", "data name is empty")
	}
	out := expr.NewSchema()
	row := rowScope(in, ts)
	for _, s := range a.Splits {
		if s.Name == a.DataName {
			return in, invalid("split", "key %q clashes with the data name", s.Name)
		}
		if _, dup := out.Lookup(s.Name); dup {
			return in, invalid("split", "duplicate key %q", s.Name)
		}
		kt, err := r.resolve(s.Expression, row)
		if err != nil {
			return in, err
		}
		if kt.Type == value.TypeDataset {
			return in, mismatch("split", "scalar key", kt)
		}
		out = out.With(s.Name, kt)
	}
	nested := in
	if nested.IsUnknown() {
		nested = expr.DatasetType(nil)
	}
	return expr.DatasetType(out.With(a.DataName, nested)), nil
}

func (r *resolver) resolveJoin(a *expr.JoinAction, in expr.FullType, ts *typeScope) (expr.FullType, error) {
	if err := requireDataset("join", in); err != nil {
		return in, err
	}
	switch a.Kind {
	case "", expr.LeftJoin, expr.InnerJoin:
	default:
		return in, invalid("join", "unknown kind %q", a.Kind)
	}
	ot, err := r.resolve(a.Other, ts)
	if err != nil {
		return in, err
	}
	if err := requireDataset("join", ot); err != nil {
		return in, err
	}
	if _, err := r.resolve(a.LeftKey, rowScope(in, ts)); err != nil {
		return in, err
	}
	if _, err := r.resolve(a.RightKey, rowScope(ot, ts)); err != nil {
		return in, err
	}
	if in.Schema == nil || ot.Schema == nil {
		return expr.DatasetType(nil), nil
	}
	merged := in.Schema.Clone()
	for _, n := range ot.Schema.Names {
		if _, ok := merged.Lookup(n); !ok {
			merged = merged.With(n, ot.Schema.Types[n])
		}
	}
	return expr.DatasetType(merged), nil
}

func (r *resolver) resolveAggregate(a *expr.AggregateAction, in expr.FullType, ts *typeScope) (expr.FullType, error) {
	name := a.Name()
	if err := requireDataset(name, in); err != nil {
		return in, err
	}
	if a.Op == expr.Count {
		if a.Expression != nil {
			if _, err := r.resolve(a.Expression, rowScope(in, ts)); err != nil {
				return in, err
			}
		}
		return expr.TypeOf(value.TypeNumber), nil
	}
	if a.Expression == nil {
		return in, invalid(name, "expression is required")
	}
	et, err := r.resolve(a.Expression, rowScope(in, ts))
	if err != nil {
		return in, err
	}
	switch a.Op {
	case expr.Sum, expr.Average:
		if !et.Is(value.TypeNumber) {
			return in, mismatch(name, "NUMBER", et)
		}
		return expr.TypeOf(value.TypeNumber), nil
	case expr.Min, expr.Max:
		if !et.Is(value.TypeNumber, value.TypeTime, value.TypeString) {
			return in, mismatch(name, "NUMBER, TIME or STRING", et)
		}
		return et, nil
	case expr.CountDistinct:
		return expr.TypeOf(value.TypeNumber), nil
	default:
		return in, invalid(string(a.Op), "unknown aggregate")
	}
}

func (r *resolver) compilePattern(a *expr.MatchAction) error {
	source := a.Pattern
	switch a.Syntax {
	case expr.SyntaxLike:
		esc := a.Escape
		if esc == 0 {
			esc = pattern.DefaultEscape
		}
		// % and _ match newlines too.
		source = "(?s)" + pattern.LikeToRegExpEscape(a.Pattern, esc)
	case "", expr.SyntaxRegexp:
	default:
		return &PatternCompileError{Pattern: a.Pattern, Err: errors.Errorf("unknown syntax %q", a.Syntax)}
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return &PatternCompileError{Pattern: a.Pattern, Err: err}
	}
	r.patterns[a] = re
	return nil
}

func withAttr(in expr.FullType, name string, t expr.FullType) expr.FullType {
	if in.Schema == nil {
		return expr.DatasetType(nil)
	}
	return expr.DatasetType(in.Schema.With(name, t))
}

func orderable(t expr.FullType) bool {
	return t.Type != value.TypeDataset && t.Type != value.TypeSet
}

func validPart(part string) bool {
	for _, p := range expr.TimeParts {
		if p == part {
			return true
		}
	}
	return false
}

func checkPeriod(action string, p expr.Period) error {
	if p.Unit == "" && p.Duration <= 0 {
		return invalid(action, "period is not set")
	}
	return nil
}
