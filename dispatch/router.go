package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// Router sends the parts of an expression that only read remote datasets
// to Remote and computes the rest with Native. A part is any sub-tree
// computed in the root scope: the expression itself, a chain operand, or
// an action argument that is not computed per row.
type Router struct {
	Native *Native
	Remote Dispatcher
	// RemoteDatasets names the datasets that live on the backend.
	RemoteDatasets []string
}

func (r *Router) Dispatch(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error) {
	remote := make(map[string]bool, len(r.RemoteDatasets))
	for _, name := range r.RemoteDatasets {
		if _, local := datum.Get(name); !local {
			remote[name] = true
		}
	}

	var parts []remotePart
	rewritten := splitRemote(ex, remote, &parts)
	switch {
	case len(parts) == 0:
		return r.Native.Dispatch(ctx, ex, datum, env)
	case len(parts) == 1 && parts[0].ex == ex:
		return r.Remote.Dispatch(ctx, ex, datum, env)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		g.Go(func() error {
			v, err := r.Remote.Dispatch(gctx, part.ex, datum, env)
			if err != nil {
				return err
			}
			part.lit.Value = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.Null(), err
	}
	return r.Native.Dispatch(ctx, rewritten, datum, env)
}

// remotePart is a sub-tree sent to the backend and the literal that takes
// its place once computed.
type remotePart struct {
	ex  expr.Expression
	lit *expr.Literal
}

// splitRemote replaces the maximal root scope sub-trees of ex whose free
// references all name remote datasets with placeholder literals. For a
// chain, the longest remote prefix of its actions counts as a sub-tree.
func splitRemote(ex expr.Expression, remote map[string]bool, parts *[]remotePart) expr.Expression {
	if isRemote(ex, remote) {
		return placeholder(ex, parts)
	}
	c, ok := ex.(*expr.Chain)
	if !ok {
		return ex
	}

	operand := c.Operand
	actions := c.Actions
	for k := len(c.Actions) - 1; k >= 1; k-- {
		prefix := expr.NewChain(c.Operand, c.Actions[:k]...)
		if isRemote(prefix, remote) {
			operand = placeholder(prefix, parts)
			actions = c.Actions[k:]
			break
		}
	}
	if operand == c.Operand {
		operand = splitRemote(c.Operand, remote, parts)
	}

	mapped := make([]expr.Action, len(actions))
	for i, a := range actions {
		mapped[i] = expr.MapOuterArgs(a, func(e expr.Expression) expr.Expression {
			return splitRemote(e, remote, parts)
		})
	}
	return &expr.Chain{Operand: operand, Actions: mapped}
}

func placeholder(ex expr.Expression, parts *[]remotePart) *expr.Literal {
	lit := &expr.Literal{Value: value.Null()}
	*parts = append(*parts, remotePart{ex: ex, lit: lit})
	return lit
}

func isRemote(ex expr.Expression, remote map[string]bool) bool {
	refs := expr.FreeReferences(ex)
	if len(refs) == 0 {
		return false
	}
	for _, name := range refs {
		if !remote[name] {
			return false
		}
	}
	return true
}
