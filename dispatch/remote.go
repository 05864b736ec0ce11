package dispatch

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/locator"
	"github.com/razeghi71/ply/plan"
	"github.com/razeghi71/ply/requester"
	"github.com/razeghi71/ply/retry"
	"github.com/razeghi71/ply/value"
)

// Translator turns an expression into the query a backend understands.
type Translator interface {
	Translate(ex expr.Expression) (any, error)
}

// Adapter turns a backend's answer into a value.
type Adapter interface {
	Adapt(raw any) (value.Value, error)
}

// State is a step of a remote call.
type State int

const (
	StateIdle State = iota
	StateLocating
	StateRequesting
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocating:
		return "locating"
	case StateRequesting:
		return "requesting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RemoteMetrics are shared by every call of a Remote.
type RemoteMetrics struct {
	attempts *prometheus.CounterVec
	retries  prometheus.Histogram
}

// NewRemoteMetrics registers the remote dispatch metrics with reg. A nil
// registerer leaves them unregistered.
func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	return &RemoteMetrics{
		attempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ply",
			Name:      "remote_attempts_total",
			Help:      "Remote dispatch attempts by outcome.",
		}, []string{"outcome"}),
		retries: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "ply",
			Name:      "remote_retries",
			Help:      "Number of times a remote call is retried.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
	}
}

// Remote sends expressions to a backend. Each call locates the backend,
// requests, and on failure backs off and tries again: it re-locates first
// when the failure says the location is stale, and gives up at once on
// permanent failures or when the backoff budget is spent.
type Remote struct {
	Locator    locator.Locator
	Requester  requester.Requester
	Translator Translator
	Adapter    Adapter
	// NewBackoff returns fresh retry bookkeeping for one call.
	NewBackoff func() *retry.Backoff
	Logger     log.Logger
	Metrics    *RemoteMetrics
	// OnEvent, when set, sees every backoff, ready and fail event of every
	// call, in order, on the calling goroutine.
	OnEvent    func(retry.Event)
}

// NewRemote creates a Remote speaking the JSON plan format.
func NewRemote(l locator.Locator, r requester.Requester, backoff retry.Config, logger log.Logger, reg prometheus.Registerer) *Remote {
	return &Remote{
		Locator:    l,
		Requester:  r,
		Translator: plan.Translator{},
		Adapter:    plan.Adapter{},
		NewBackoff: backoff.NewBackoff,
		Logger:     logger,
		Metrics:    NewRemoteMetrics(reg),
	}
}

func (r *Remote) Dispatch(ctx context.Context, ex expr.Expression, datum value.Datum, env engine.Environment) (value.Value, error) {
	query, err := r.translator().Translate(expr.Bind(ex, datum))
	if err != nil {
		return value.Null(), errors.Wrap(err, "translating expression")
	}
	c := &call{
		remote:  r,
		logger:  r.logger(),
		backoff: r.newBackoff(),
		req:     requester.Request{Query: query, Context: env.Values()},
	}
	return c.run(ctx)
}

func (r *Remote) translator() Translator {
	if r.Translator == nil {
		return plan.Translator{}
	}
	return r.Translator
}

func (r *Remote) adapter() Adapter {
	if r.Adapter == nil {
		return plan.Adapter{}
	}
	return r.Adapter
}

func (r *Remote) logger() log.Logger {
	if r.Logger == nil {
		return log.NewNopLogger()
	}
	return r.Logger
}

func (r *Remote) newBackoff() *retry.Backoff {
	if r.NewBackoff == nil {
		return retry.DefaultConfig().NewBackoff()
	}
	return r.NewBackoff()
}

// call is the state of one remote dispatch.
type call struct {
	remote  *Remote
	logger  log.Logger
	backoff *retry.Backoff
	req     requester.Request

	state   State
	located bool
}

func (c *call) transition(to State) {
	level.Debug(c.logger).Log("msg", "remote call state", "from", c.state, "to", to, "attempt", c.backoff.Attempts()+1)
	c.state = to
}

func (c *call) observe(outcome string) {
	if c.remote.Metrics != nil {
		c.remote.Metrics.attempts.WithLabelValues(outcome).Inc()
	}
}

// eventBuffer holds the backoff events of one step: a backoff and a ready,
// or a single fail.
const eventBuffer = 4

func (c *call) run(ctx context.Context) (value.Value, error) {
	start := time.Now()
	events, unsubscribe := c.backoff.Subscribe(eventBuffer)
	defer unsubscribe()
	defer func() {
		if c.remote.Metrics != nil {
			c.remote.Metrics.retries.Observe(float64(c.backoff.Attempts()))
		}
	}()

	var result value.Value
	err := retry.While(ctx, c.pending, func(ctx context.Context) error {
		v, err := c.step(ctx, start)
		c.drain(events)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		if c.state != StateFailed {
			c.transition(StateFailed)
		}
		return value.Null(), err
	}
	return result, nil
}

func (c *call) pending() bool {
	return c.state != StateSucceeded && c.state != StateFailed
}

// step makes one attempt. A retryable failure is waited out before step
// returns, so the next step starts with a fresh attempt.
func (c *call) step(ctx context.Context, start time.Time) (value.Value, error) {
	v, err := c.attempt(ctx)
	if err == nil {
		c.transition(StateSucceeded)
		c.observe("success")
		return v, nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Permanent {
		c.transition(StateFailed)
		return value.Null(), err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.transition(StateFailed)
		return value.Null(), ctxErr
	}

	delay, ok := c.backoff.Backoff(err)
	if !ok {
		c.transition(StateFailed)
		level.Error(c.logger).Log("msg", "remote call failed", "attempts", c.backoff.Attempts(), "duration", time.Since(start), "err", err)
		return value.Null(), &RetryExhaustedError{Attempts: c.backoff.Attempts(), Err: err}
	}
	level.Warn(c.logger).Log(
		"msg", "remote attempt failed",
		"attempt", c.backoff.Attempts(),
		"state", c.state,
		"location", c.req.Location,
		"retry_in", delay,
		"err", err,
	)
	c.transition(StateRetrying)
	if err := c.backoff.Wait(ctx, delay); err != nil {
		c.transition(StateFailed)
		return value.Null(), err
	}
	return value.Null(), nil
}

// drain hands the pending backoff events to the log and to OnEvent.
func (c *call) drain(events <-chan retry.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			level.Debug(c.logger).Log("msg", "backoff event", "event", e.Type, "attempt", e.Attempt, "delay", e.Delay)
			if c.remote.OnEvent != nil {
				c.remote.OnEvent(e)
			}
		default:
			return
		}
	}
}

// attempt runs one pass of locate (when needed) and request.
func (c *call) attempt(ctx context.Context) (value.Value, error) {
	if !c.located {
		c.transition(StateLocating)
		loc, err := c.remote.Locator.Locate(ctx)
		if err != nil {
			c.observe("location_error")
			return value.Null(), &LocationError{Err: err}
		}
		c.req.Location = loc
		c.located = true
	}

	c.transition(StateRequesting)
	raw, err := c.remote.Requester.Request(ctx, c.req)
	if err != nil {
		reqErr := classify(c.req.Location, err)
		if reqErr.Stale {
			c.located = false
			if inv, ok := c.remote.Locator.(locator.Invalidator); ok {
				inv.Invalidate()
			}
		}
		c.observe("request_error")
		return value.Null(), reqErr
	}

	v, err := c.remote.adapter().Adapt(raw)
	if err != nil {
		c.observe("adapt_error")
		return value.Null(), &RequestError{Location: c.req.Location, Err: errors.Wrap(err, "adapting response"), Permanent: true}
	}
	return v, nil
}

// classify reads the Permanent and Stale hints a requester's error may
// carry.
func classify(loc locator.Location, err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	out := &RequestError{Location: loc, Err: err}
	var p interface{ Permanent() bool }
	if errors.As(err, &p) {
		out.Permanent = p.Permanent()
	}
	var s interface{ Stale() bool }
	if errors.As(err, &s) {
		out.Stale = s.Stale()
	}
	return out
}
