package expr

import "github.com/razeghi71/ply/value"

// Arg is an argument expression of an action. Row arguments are computed
// once per row of the action's input dataset, one scope deeper than the
// chain; the others are computed in the chain's own scope.
type Arg struct {
	Expression Expression
	Row        bool
}

// Args lists the argument expressions of an action.
func Args(a Action) []Arg {
	switch a := a.(type) {
	case *FilterAction:
		return []Arg{{a.Expression, true}}
	case *ApplyAction:
		return []Arg{{a.Expression, true}}
	case *SortAction:
		return []Arg{{a.Expression, true}}
	case *SplitAction:
		args := make([]Arg, len(a.Splits))
		for i, s := range a.Splits {
			args[i] = Arg{s.Expression, true}
		}
		return args
	case *JoinAction:
		return []Arg{{a.Other, false}, {a.LeftKey, true}, {a.RightKey, true}}
	case *MatchAction:
		if a.Expression != nil {
			return []Arg{{a.Expression, true}}
		}
	case *AggregateAction:
		if a.Expression != nil {
			return []Arg{{a.Expression, true}}
		}
	case *ArithmeticAction:
		return []Arg{{a.Expression, false}}
	case *CompareAction:
		return []Arg{{a.Expression, false}}
	case *LogicalAction:
		return []Arg{{a.Expression, false}}
	case *InAction:
		return []Arg{{a.Expression, false}}
	case *ContainsAction:
		return []Arg{{a.Expression, false}}
	case *ConcatAction:
		return []Arg{{a.Expression, false}}
	case *FallbackAction:
		return []Arg{{a.Expression, false}}
	}
	return nil
}

// MapOuterArgs returns a copy of a with every argument that is computed in
// the chain's own scope replaced by f. Actions without such arguments are
// returned unchanged.
func MapOuterArgs(a Action, f func(Expression) Expression) Action {
	outer := false
	for _, arg := range Args(a) {
		outer = outer || !arg.Row
	}
	if !outer {
		return a
	}
	return MapArgs(a, func(arg Arg) Expression {
		if arg.Row {
			return arg.Expression
		}
		return f(arg.Expression)
	})
}

// MapArgs returns a copy of a with every argument replaced by f. Absent
// optional arguments stay absent.
func MapArgs(a Action, f func(Arg) Expression) Action {
	opt := func(e Expression, row bool) Expression {
		if e == nil {
			return nil
		}
		return f(Arg{e, row})
	}

	switch a := a.(type) {
	case *FilterAction:
		c := *a
		c.Expression = f(Arg{a.Expression, true})
		return &c
	case *ApplyAction:
		c := *a
		c.Expression = f(Arg{a.Expression, true})
		return &c
	case *SortAction:
		c := *a
		c.Expression = f(Arg{a.Expression, true})
		return &c
	case *SplitAction:
		c := *a
		c.Splits = make([]SplitKey, len(a.Splits))
		for i, s := range a.Splits {
			c.Splits[i] = SplitKey{Name: s.Name, Expression: f(Arg{s.Expression, true})}
		}
		return &c
	case *JoinAction:
		c := *a
		c.Other = f(Arg{a.Other, false})
		c.LeftKey = f(Arg{a.LeftKey, true})
		c.RightKey = f(Arg{a.RightKey, true})
		return &c
	case *MatchAction:
		c := *a
		c.Expression = opt(a.Expression, true)
		return &c
	case *AggregateAction:
		c := *a
		c.Expression = opt(a.Expression, true)
		return &c
	case *ArithmeticAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *CompareAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *LogicalAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *InAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *ContainsAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *ConcatAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	case *FallbackAction:
		c := *a
		c.Expression = f(Arg{a.Expression, false})
		return &c
	}
	return a
}

// Bind replaces the free references of ex that datum defines with
// literals holding their values.
func Bind(ex Expression, datum value.Datum) Expression {
	return bind(ex, 0, datum)
}

func bind(ex Expression, depth int, datum value.Datum) Expression {
	switch e := ex.(type) {
	case *Reference:
		if e.Nesting == depth {
			if v, ok := datum.Get(e.Name); ok {
				return Lit(v)
			}
		}
		return e
	case *Chain:
		actions := make([]Action, len(e.Actions))
		for i, a := range e.Actions {
			actions[i] = MapArgs(a, func(arg Arg) Expression {
				d := depth
				if arg.Row {
					d++
				}
				return bind(arg.Expression, d, datum)
			})
		}
		return &Chain{Operand: bind(e.Operand, depth, datum), Actions: actions}
	}
	return ex
}

// FreeReferences returns the names that ex looks up in the scope it is
// computed in, in first-seen order. References into row scopes opened by
// the expression itself are not free.
func FreeReferences(ex Expression) []string {
	var names []string
	seen := make(map[string]bool)
	walkRefs(ex, 0, func(r *Reference, depth int) {
		if r.Nesting == depth && !seen[r.Name] {
			seen[r.Name] = true
			names = append(names, r.Name)
		}
	})
	return names
}

func walkRefs(ex Expression, depth int, fn func(*Reference, int)) {
	switch e := ex.(type) {
	case *Reference:
		fn(e, depth)
	case *Chain:
		walkRefs(e.Operand, depth, fn)
		for _, a := range e.Actions {
			for _, arg := range Args(a) {
				d := depth
				if arg.Row {
					d++
				}
				walkRefs(arg.Expression, d, fn)
			}
		}
	}
}
