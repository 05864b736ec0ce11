// Package executor binds a dispatcher to an environment so that callers
// only supply expressions.
package executor

import (
	"context"

	"github.com/razeghi71/ply/dispatch"
	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/value"
)

// Executor computes expressions through a dispatcher in a fixed
// environment.
type Executor struct {
	dispatcher dispatch.Dispatcher
	env        engine.Environment
}

// New creates an executor.
func New(d dispatch.Dispatcher, env engine.Environment) *Executor {
	return &Executor{dispatcher: d, env: env}
}

// Basic creates an executor computing in process over datasets.
func Basic(datasets value.Datum, env engine.Environment) *Executor {
	return New(&dispatch.Native{Datasets: datasets}, env)
}

// Environment returns the environment expressions run in.
func (e *Executor) Environment() engine.Environment {
	return e.env
}

// Execute computes ex with an empty context datum.
func (e *Executor) Execute(ctx context.Context, ex expr.Expression) (value.Value, error) {
	return e.ExecuteWith(ctx, ex, value.Datum{})
}

// ExecuteWith computes ex against datum.
func (e *Executor) ExecuteWith(ctx context.Context, ex expr.Expression, datum value.Datum) (value.Value, error) {
	return e.dispatcher.Dispatch(ctx, ex, datum, e.env)
}

// Result is the outcome of an asynchronous execution.
type Result struct {
	Value value.Value
	Err   error
}

// Go starts computing ex and returns a channel that receives the single
// result.
func (e *Executor) Go(ctx context.Context, ex expr.Expression) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		v, err := e.Execute(ctx, ex)
		out <- Result{Value: v, Err: err}
	}()
	return out
}
