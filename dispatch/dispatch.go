// Package dispatch decides where an expression is computed: in process
// over loaded datasets, or on a remote backend found through a locator.
package dispatch

import (
	"context"
	"fmt"

	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/locator"
	"github.com/razeghi71/ply/value"
)

// Dispatcher computes an expression against a context datum.
type Dispatcher interface {
	Dispatch(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error)
}

// Func adapts a function to a Dispatcher.
type Func func(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error)

func (f Func) Dispatch(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error) {
	return f(ctx, ex, datum, env)
}

// Native computes expressions in process. Datasets are visible to every
// expression; the caller's datum takes precedence over them.
type Native struct {
	Datasets value.Datum
}

func (n *Native) Dispatch(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error) {
	return engine.Compute(ctx, ex, n.Datasets.Merge(datum), env)
}

// LocationError is a failure to find a backend.
type LocationError struct {
	Err error
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("locating backend: %v", e.Err)
}

func (e *LocationError) Unwrap() error { return e.Err }

// RequestError is a failed request to a located backend. A permanent error
// will not go away by retrying; a stale one means the location should be
// looked up again.
type RequestError struct {
	Location  locator.Location
	Err       error
	Permanent bool
	Stale     bool
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request to %s: %v", e.Location, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned once the retry budget is spent. Err is
// the last failure.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
