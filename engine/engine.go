// Package engine resolves expressions against a context datum and computes
// them over in-memory datasets.
package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// Compute resolves ex against datum and evaluates it.
func Compute(ctx context.Context, ex expr.Expression, datum value.Datum, env Environment) (value.Value, error) {
	p, err := Resolve(ex, datum)
	if err != nil {
		return value.Null(), err
	}
	return p.Eval(ctx, datum, env)
}

// Eval computes the program with datum as the root scope. The datum should
// have the same shape as the one the program was resolved against.
func (p *Program) Eval(ctx context.Context, datum value.Datum, env Environment) (value.Value, error) {
	strCmp, err := env.stringOrder()
	if err != nil {
		return value.Null(), err
	}
	ev := &evaluator{
		ctx:      ctx,
		loc:      env.location(),
		strCmp:   strCmp,
		patterns: p.patterns,
	}
	return ev.eval(p.Expression, &scope{datum: datum})
}

// scope is one level of the datum chain that references walk through.
type scope struct {
	datum  value.Datum
	parent *scope
}

func (s *scope) row(d value.Datum) *scope {
	return &scope{datum: d, parent: s}
}

type evaluator struct {
	ctx      context.Context
	loc      *time.Location
	strCmp   func(a, b string) int
	patterns map[*expr.MatchAction]*regexp.Regexp
}

func (ev *evaluator) eval(ex expr.Expression, s *scope) (value.Value, error) {
	switch e := ex.(type) {
	case *expr.Literal:
		return e.Value, nil
	case *expr.Reference:
		return ev.lookup(e, s)
	case *expr.Chain:
		v, err := ev.eval(e.Operand, s)
		if err != nil {
			return value.Null(), err
		}
		for _, a := range e.Actions {
			v, err = ev.apply(a, v, s)
			if err != nil {
				return value.Null(), err
			}
		}
		return v, nil
	default:
		return value.Null(), invalid("evaluate", "unknown expression type %T", ex)
	}
}

func (ev *evaluator) lookup(e *expr.Reference, s *scope) (value.Value, error) {
	for i := 0; i < e.Nesting && s != nil; i++ {
		s = s.parent
	}
	if s == nil {
		return value.Null(), &UnresolvedReferenceError{Name: e.Name, Nesting: e.Nesting}
	}
	// Rows that lack a resolved attribute, like unmatched join rows, read it
	// as null.
	v, _ := s.datum.Get(e.Name)
	return v, nil
}

func (ev *evaluator) apply(a expr.Action, in value.Value, s *scope) (value.Value, error) {
	switch a := a.(type) {
	case *expr.FilterAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.filter(d, a.Expression, s)
		})
	case *expr.ApplyAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.applyAttr(d, a, s)
		})
	case *expr.SortAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.sort(d, a, s)
		})
	case *expr.LimitAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return limit(d, a.N)
		})
	case *expr.SplitAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.split(d, a, s)
		})
	case *expr.JoinAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.join(d, a, s)
		})
	case *expr.SelectAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return selectAttrs(d, a.Attributes), nil
		})
	case *expr.MatchAction:
		return ev.match(a, in, s)
	case *expr.AggregateAction:
		return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
			return ev.aggregate(d, a, s)
		})
	default:
		return ev.applyScalar(a, in, s)
	}
}

func (ev *evaluator) withDataset(action string, in value.Value, fn func(*value.Dataset) (value.Value, error)) (value.Value, error) {
	if in.Type != value.TypeDataset || in.Dataset == nil {
		return value.Null(), mismatch(action, "DATASET", in.Type)
	}
	return fn(in.Dataset)
}

// rowValues computes ex once per row of d, each row nested under s.
func (ev *evaluator) rowValues(d *value.Dataset, ex expr.Expression, s *scope) ([]value.Value, error) {
	out := make([]value.Value, len(d.Data))
	for i, row := range d.Data {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		v, err := ev.eval(ex, s.row(row))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ev *evaluator) filter(d *value.Dataset, pred expr.Expression, s *scope) (value.Value, error) {
	vals, err := ev.rowValues(d, pred, s)
	if err != nil {
		return value.Null(), err
	}
	result := value.NewDataset(d.Attributes)
	for i, row := range d.Data {
		keep, ok := vals[i].AsBool()
		if !ok {
			return value.Null(), mismatch("filter", "BOOLEAN predicate", vals[i].Type)
		}
		if keep {
			result.Add(row)
		}
	}
	return value.DatasetVal(result), nil
}

func (ev *evaluator) applyAttr(d *value.Dataset, a *expr.ApplyAction, s *scope) (value.Value, error) {
	vals, err := ev.rowValues(d, a.Expression, s)
	if err != nil {
		return value.Null(), err
	}
	attrs := d.Attributes
	if !d.HasAttribute(a.Attr) {
		attrs = append(append([]string{}, d.Attributes...), a.Attr)
	}
	result := value.NewDataset(attrs)
	for i, row := range d.Data {
		result.Add(row.Set(a.Attr, vals[i]))
	}
	return value.DatasetVal(result), nil
}

func (ev *evaluator) sort(d *value.Dataset, a *expr.SortAction, s *scope) (value.Value, error) {
	keys, err := ev.rowValues(d, a.Expression, s)
	if err != nil {
		return value.Null(), err
	}
	if err := consistentTypes("sort", keys); err != nil {
		return value.Null(), err
	}
	for _, k := range keys {
		if k.Type == value.TypeSet || k.Type == value.TypeDataset {
			return value.Null(), mismatch("sort", "orderable key", k.Type)
		}
	}

	idx := make([]int, len(d.Data))
	for i := range idx {
		idx[i] = i
	}
	desc := a.Direction == expr.Descending
	sort.SliceStable(idx, func(i, j int) bool {
		// Types were checked above, so CompareWith cannot fail here.
		cmp, _ := value.CompareWith(keys[idx[i]], keys[idx[j]], ev.strCmp)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})

	result := value.NewDataset(d.Attributes)
	for _, i := range idx {
		result.Add(d.Data[i])
	}
	return value.DatasetVal(result), nil
}

func limit(d *value.Dataset, n int) (value.Value, error) {
	if n < 0 {
		return value.Null(), invalid("limit", "negative row count %d", n)
	}
	if n >= len(d.Data) {
		return value.DatasetVal(d), nil
	}
	result := value.NewDataset(d.Attributes)
	result.Data = append(result.Data, d.Data[:n]...)
	return value.DatasetVal(result), nil
}

func (ev *evaluator) split(d *value.Dataset, a *expr.SplitAction, s *scope) (value.Value, error) {
	if len(a.Splits) == 0 {
		return value.Null(), invalid("split", "at least one split key is required")
	}

	// Key components, one slice per split key.
	components := make([][]value.Value, len(a.Splits))
	for i, sk := range a.Splits {
		vals, err := ev.rowValues(d, sk.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		if err := consistentTypes("split", vals); err != nil {
			return value.Null(), err
		}
		components[i] = vals
	}

	type group struct {
		key  []value.Value
		rows []value.Datum
	}
	var groups []*group
	byKey := make(map[string]*group)

	for r, row := range d.Data {
		var sb strings.Builder
		key := make([]value.Value, len(a.Splits))
		for i := range a.Splits {
			key[i] = components[i][r]
			sb.WriteString(value.Key(key[i]))
		}
		g, ok := byKey[sb.String()]
		if !ok {
			g = &group{key: key}
			byKey[sb.String()] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}

	attrs := make([]string, 0, len(a.Splits)+1)
	for _, sk := range a.Splits {
		attrs = append(attrs, sk.Name)
	}
	attrs = append(attrs, a.DataName)

	result := value.NewDataset(attrs)
	for _, g := range groups {
		nested := value.NewDataset(append([]string{}, d.Attributes...))
		nested.Data = g.rows
		out := make([]value.Attribute, 0, len(attrs))
		for i, sk := range a.Splits {
			out = append(out, value.Attribute{Name: sk.Name, Value: g.key[i]})
		}
		out = append(out, value.Attribute{Name: a.DataName, Value: value.DatasetVal(nested)})
		result.Add(value.NewDatum(out...))
	}
	return value.DatasetVal(result), nil
}

func (ev *evaluator) join(d *value.Dataset, a *expr.JoinAction, s *scope) (value.Value, error) {
	var (
		other    value.Value
		leftKeys []value.Value
	)
	g, gctx := errgroup.WithContext(ev.ctx)
	sub := *ev
	sub.ctx = gctx
	g.Go(func() error {
		var err error
		other, err = sub.eval(a.Other, s)
		return err
	})
	g.Go(func() error {
		var err error
		leftKeys, err = sub.rowValues(d, a.LeftKey, s)
		return err
	})
	if err := g.Wait(); err != nil {
		return value.Null(), err
	}
	if other.Type != value.TypeDataset || other.Dataset == nil {
		return value.Null(), mismatch("join", "DATASET", other.Type)
	}
	right := other.Dataset
	rightKeys, err := ev.rowValues(right, a.RightKey, s)
	if err != nil {
		return value.Null(), err
	}

	index := make(map[string][]int)
	for i, k := range rightKeys {
		if k.IsNull() {
			continue
		}
		key := value.Key(k)
		index[key] = append(index[key], i)
	}

	attrs := append([]string{}, d.Attributes...)
	for _, name := range right.Attributes {
		if !d.HasAttribute(name) {
			attrs = append(attrs, name)
		}
	}
	result := value.NewDataset(attrs)
	for i, row := range d.Data {
		var matches []int
		if !leftKeys[i].IsNull() {
			matches = index[value.Key(leftKeys[i])]
		}
		if len(matches) == 0 {
			if a.Kind != expr.InnerJoin {
				result.Add(row)
			}
			continue
		}
		for _, m := range matches {
			merged := row
			for _, attr := range right.Data[m].Attributes() {
				if _, ok := row.Get(attr.Name); !ok {
					merged = merged.Set(attr.Name, attr.Value)
				}
			}
			result.Add(merged)
		}
	}
	return value.DatasetVal(result), nil
}

func selectAttrs(d *value.Dataset, names []string) value.Value {
	result := value.NewDataset(append([]string{}, names...))
	for _, row := range d.Data {
		attrs := make([]value.Attribute, len(names))
		for i, n := range names {
			v, _ := row.Get(n)
			attrs[i] = value.Attribute{Name: n, Value: v}
		}
		result.Add(value.NewDatum(attrs...))
	}
	return value.DatasetVal(result)
}

func (ev *evaluator) match(a *expr.MatchAction, in value.Value, s *scope) (value.Value, error) {
	re, ok := ev.patterns[a]
	if !ok {
		return value.Null(), &PatternCompileError{Pattern: a.Pattern, Err: errors.New("pattern was not resolved")}
	}
	if a.Expression == nil {
		switch in.Type {
		case value.TypeNull:
			return value.Null(), nil
		case value.TypeString:
			return value.Bool(re.MatchString(in.Str)), nil
		default:
			return value.Null(), mismatch(a.Name(), "STRING", in.Type)
		}
	}
	return ev.withDataset(a.Name(), in, func(d *value.Dataset) (value.Value, error) {
		vals, err := ev.rowValues(d, a.Expression, s)
		if err != nil {
			return value.Null(), err
		}
		result := value.NewDataset(d.Attributes)
		for i, row := range d.Data {
			v := vals[i]
			switch v.Type {
			case value.TypeNull:
			case value.TypeString:
				if re.MatchString(v.Str) {
					result.Add(row)
				}
			default:
				return value.Null(), mismatch(a.Name(), "STRING", v.Type)
			}
		}
		return value.DatasetVal(result), nil
	})
}

// consistentTypes checks that all non-null values share one type.
func consistentTypes(action string, vals []value.Value) error {
	first := value.TypeNull
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if first == value.TypeNull {
			first = v.Type
			continue
		}
		if v.Type != first {
			return mismatch(action, first.String(), v.Type)
		}
	}
	return nil
}
