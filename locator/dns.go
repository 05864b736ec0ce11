package locator

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/dns"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Resolver turns addresses such as "dns+host:port" or "dnssrv+_svc._tcp.host"
// into "host:port" strings. *dns.Provider implements it.
type Resolver interface {
	Resolve(ctx context.Context, addrs []string) error
	Addresses() []string
}

// DNS locates a backend through DNS. Results are cached, refreshed in the
// background every refresh interval, and handed out round robin.
type DNS struct {
	logger   log.Logger
	address  string
	resolver Resolver
	timeout  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup

	mtx       sync.Mutex
	locations []Location
	next      int
	nextID    int
	subs      map[int]chan Location
}

// NewDNS creates a DNS locator backed by the Go resolver. A refresh of zero
// disables the background loop; lookups then happen on demand only.
func NewDNS(logger log.Logger, address string, refresh time.Duration, reg prometheus.Registerer) *DNS {
	return NewDNSWithResolver(logger, address, refresh, dns.NewProvider(logger, reg, dns.GolangResolverType))
}

// NewDNSWithResolver is NewDNS with a caller supplied resolver.
func NewDNSWithResolver(logger log.Logger, address string, refresh time.Duration, r Resolver) *DNS {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	d := &DNS{
		logger:   logger,
		address:  address,
		resolver: r,
		timeout:  5 * time.Second,
		stop:     make(chan struct{}),
		subs:     make(map[int]chan Location),
	}
	if refresh > 0 {
		d.done.Add(1)
		go d.discoveryLoop(refresh)
	}
	return d
}

// Locate returns the next cached location, resolving first when the cache
// is empty.
func (d *DNS) Locate(ctx context.Context) (Location, error) {
	d.mtx.Lock()
	empty := len(d.locations) == 0
	d.mtx.Unlock()

	if empty {
		if err := d.runDiscovery(ctx); err != nil {
			return Location{}, err
		}
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	if len(d.locations) == 0 {
		return Location{}, errors.Wrapf(ErrNoLocation, "resolving %s", d.address)
	}
	l := d.locations[d.next%len(d.locations)]
	d.next++
	return l, nil
}

// Invalidate drops the cached locations.
func (d *DNS) Invalidate() {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.locations = nil
	d.next = 0
}

// Subscribe returns a channel that receives the primary location whenever
// the resolved set changes, and a function that closes it.
func (d *DNS) Subscribe(buffer int) (<-chan Location, func()) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan Location, buffer)
	d.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mtx.Lock()
			defer d.mtx.Unlock()
			delete(d.subs, id)
			close(ch)
		})
	}
}

// Stop ends the background loop. It is safe to call more than once.
func (d *DNS) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.done.Wait()
}

func (d *DNS) discoveryLoop(refresh time.Duration) {
	ticker := time.NewTicker(refresh)
	defer func() {
		ticker.Stop()
		d.done.Done()
	}()

	for {
		select {
		case <-ticker.C:
			if err := d.runDiscovery(context.Background()); err != nil {
				level.Error(d.logger).Log("msg", "failed to resolve backend address", "address", d.address, "err", err)
			}
		case <-d.stop:
			return
		}
	}
}

func (d *DNS) runDiscovery(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.resolver.Resolve(ctx, []string{d.address}); err != nil {
		return errors.Wrapf(err, "resolving %s", d.address)
	}

	var found []Location
	for _, addr := range d.resolver.Addresses() {
		l, err := ParseLocation(addr)
		if err != nil {
			level.Warn(d.logger).Log("msg", "ignoring resolved address", "addr", addr, "err", err)
			continue
		}
		found = append(found, l)
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()
	if sameLocations(d.locations, found) {
		return nil
	}
	d.locations = found
	d.next = 0
	if len(found) > 0 {
		level.Debug(d.logger).Log("msg", "backend locations changed", "address", d.address, "primary", found[0], "count", len(found))
		for _, ch := range d.subs {
			select {
			case ch <- found[0]:
			default:
			}
		}
	}
	return nil
}

func sameLocations(a, b []Location) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
