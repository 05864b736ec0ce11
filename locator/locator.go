// Package locator finds the endpoint a remote query should be sent to.
package locator

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoLocation is returned when a locator knows of no endpoint.
var ErrNoLocation = errors.New("no location available")

// Location is a network endpoint. Port 0 means unset.
type Location struct {
	Hostname string
	Port     int
}

func (l Location) String() string {
	if l.Port == 0 {
		return l.Hostname
	}
	return net.JoinHostPort(l.Hostname, strconv.Itoa(l.Port))
}

// ParseLocation reads "host" or "host:port".
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errors.New("empty location")
	}
	if !strings.Contains(s, ":") || (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
		return Location{Hostname: strings.Trim(s, "[]")}, nil
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Location{}, errors.Wrapf(err, "invalid location %q", s)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return Location{}, errors.Errorf("invalid port in location %q", s)
	}
	if host == "" {
		return Location{}, errors.Errorf("missing host in location %q", s)
	}
	return Location{Hostname: host, Port: p}, nil
}

// Locator produces the current location of a backend.
type Locator interface {
	Locate(ctx context.Context) (Location, error)
}

// Func adapts a function to a Locator.
type Func func(ctx context.Context) (Location, error)

func (f Func) Locate(ctx context.Context) (Location, error) {
	return f(ctx)
}

// Subscriber is implemented by locators that push location changes.
type Subscriber interface {
	Subscribe(buffer int) (<-chan Location, func())
}

// Invalidator is implemented by locators that cache, so that a caller who
// found a location stale can force a fresh lookup.
type Invalidator interface {
	Invalidate()
}

// Static always returns the same location.
type Static struct {
	Location Location
}

func (s Static) Locate(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if s.Location.Hostname == "" {
		return Location{}, ErrNoLocation
	}
	return s.Location, nil
}
