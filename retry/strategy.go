// Package retry provides backoff strategies and the bookkeeping a caller
// needs to retry a failing operation a bounded number of times.
package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Strategy produces the delay before each successive retry.
type Strategy interface {
	Next() time.Duration
	Reset()
}

// Options configure a Strategy.
type Options struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RandomisationFactor jitters each delay by up to this fraction of
	// itself. Fibonacci only adds, giving [d, d*(1+f)]. Exponential spreads
	// both ways, giving [d*(1-f), d*(1+f)]. Both are capped at MaxDelay.
	// Zero gives deterministic delays.
	RandomisationFactor float64
	// Rand returns numbers in [0, 1) for Fibonacci's jitter. Defaults to
	// math/rand. Exponential draws its own.
	Rand func() float64
}

const (
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

// Exponential doubles the delay after every retry up to MaxDelay.
type Exponential struct {
	max time.Duration
	b   *backoff.ExponentialBackOff
}

// NewExponential creates an exponential strategy.
func NewExponential(o Options) *Exponential {
	o = o.withDefaults()
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.InitialDelay,
		RandomizationFactor: o.RandomisationFactor,
		Multiplier:          2,
		MaxInterval:         o.MaxDelay,
	}
	b.Reset()
	return &Exponential{max: o.MaxDelay, b: b}
}

func (e *Exponential) Next() time.Duration {
	return min(e.b.NextBackOff(), e.max)
}

func (e *Exponential) Reset() {
	e.b.Reset()
}

// Fibonacci grows the delay along the Fibonacci sequence: one, one, two,
// three, five times InitialDelay and so on, up to MaxDelay.
type Fibonacci struct {
	opts       Options
	prev, curr time.Duration
}

// NewFibonacci creates a Fibonacci strategy.
func NewFibonacci(o Options) *Fibonacci {
	f := &Fibonacci{opts: o.withDefaults()}
	f.Reset()
	return f
}

func (f *Fibonacci) Next() time.Duration {
	d := f.curr
	if f.curr < f.opts.MaxDelay {
		f.prev, f.curr = f.curr, f.prev+f.curr
	}
	return randomise(d, f.opts)
}

func (f *Fibonacci) Reset() {
	f.prev, f.curr = 0, f.opts.InitialDelay
}

// randomise adds up to RandomisationFactor of d and caps the result at
// MaxDelay.
func randomise(d time.Duration, o Options) time.Duration {
	if o.RandomisationFactor > 0 {
		d += time.Duration(o.Rand() * o.RandomisationFactor * float64(d))
	}
	return min(d, o.MaxDelay)
}
