package retry

import (
	"context"
	"sync"
	"time"
)

// EventType identifies what a Backoff just did.
type EventType int

const (
	// EventBackoff is emitted when a failure schedules another attempt.
	EventBackoff EventType = iota
	// EventReady is emitted when a wait has elapsed.
	EventReady
	// EventFail is emitted when the failure budget is spent.
	EventFail
)

func (t EventType) String() string {
	switch t {
	case EventBackoff:
		return "backoff"
	case EventReady:
		return "ready"
	case EventFail:
		return "fail"
	}
	return "unknown"
}

// Event describes one step of a Backoff.
type Event struct {
	Type    EventType
	Attempt int
	Delay   time.Duration
	Err     error
}

// Backoff counts failures of one logical operation and decides whether,
// and after how long, to try again.
type Backoff struct {
	mtx       sync.Mutex
	strategy  Strategy
	failAfter int
	attempts  int

	nextID int
	subs   map[int]chan Event
}

// New creates a Backoff that retries forever using s.
func New(s Strategy) *Backoff {
	return &Backoff{strategy: s, subs: make(map[int]chan Event)}
}

// FailAfter bounds the number of attempts: once n attempts have failed no
// further attempt is scheduled. Zero or less means no bound.
func (b *Backoff) FailAfter(n int) *Backoff {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.failAfter = n
	return b
}

// Backoff records a failed attempt. It returns the delay before the next
// attempt, or false when no attempt is left.
func (b *Backoff) Backoff(err error) (time.Duration, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.attempts++
	if b.failAfter > 0 && b.attempts >= b.failAfter {
		b.emit(Event{Type: EventFail, Attempt: b.attempts, Err: err})
		return 0, false
	}
	d := b.strategy.Next()
	b.emit(Event{Type: EventBackoff, Attempt: b.attempts, Delay: d, Err: err})
	return d, true
}

// Wait blocks for d or until ctx is done.
func (b *Backoff) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	b.mtx.Lock()
	b.emit(Event{Type: EventReady, Attempt: b.attempts, Delay: d})
	b.mtx.Unlock()
	return nil
}

// Reset forgets all failures.
func (b *Backoff) Reset() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.attempts = 0
	b.strategy.Reset()
}

// Attempts returns the number of failures recorded since the last reset.
func (b *Backoff) Attempts() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.attempts
}

// Subscribe returns a channel receiving every event and a function that
// closes it. Events are dropped when the channel buffer is full.
func (b *Backoff) Subscribe(buffer int) (<-chan Event, func()) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mtx.Lock()
			defer b.mtx.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// emit must be called with mtx held.
func (b *Backoff) emit(e Event) {
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
