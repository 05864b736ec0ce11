// Package expr defines the expression tree: terminal literals and
// references, and chains that thread a value through an ordered list of
// actions. Trees are immutable once built and may be shared freely.
package expr

import (
	"github.com/razeghi71/ply/value"
)

// Expression is a node of the expression tree.
type Expression interface {
	exprNode()
}

// Literal is a constant value.
type Literal struct {
	Value value.Value
}

func (e *Literal) exprNode() {}

// Reference names an attribute of an enclosing datum. Nesting counts how
// many scopes to walk outward before looking the name up.
type Reference struct {
	Name    string
	Nesting int
}

func (e *Reference) exprNode() {}

// Chain computes Operand and then applies each action in order, feeding the
// output of one into the next.
type Chain struct {
	Operand Expression
	Actions []Action
}

func (e *Chain) exprNode() {}

// Lit wraps a value in a literal.
func Lit(v value.Value) *Literal {
	return &Literal{Value: v}
}

// Ref creates a reference to name in the current scope.
func Ref(name string) *Reference {
	return &Reference{Name: name}
}

// OuterRef creates a reference to name nesting scopes out.
func OuterRef(name string, nesting int) *Reference {
	return &Reference{Name: name, Nesting: nesting}
}

// NewChain builds a chain. A chain without actions is its operand, and a
// chain operand is flattened so that actions accumulate on one node.
func NewChain(operand Expression, actions ...Action) Expression {
	if len(actions) == 0 {
		return operand
	}
	if c, ok := operand.(*Chain); ok {
		all := make([]Action, 0, len(c.Actions)+len(actions))
		all = append(all, c.Actions...)
		all = append(all, actions...)
		return &Chain{Operand: c.Operand, Actions: all}
	}
	all := make([]Action, len(actions))
	copy(all, actions)
	return &Chain{Operand: operand, Actions: all}
}

// Then appends actions to ex.
func Then(ex Expression, actions ...Action) Expression {
	return NewChain(ex, actions...)
}
