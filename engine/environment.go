package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Environment holds execution-scoped options that affect evaluation. It is
// never modified while an expression is computed.
type Environment struct {
	// Timezone is used by time actions. Nil means UTC.
	Timezone *time.Location
	// Locale is a BCP 47 tag. When set, strings are ordered with the
	// locale's collation instead of byte order.
	Locale string
}

// Validate checks that the locale is a well formed tag.
func (e Environment) Validate() error {
	if e.Locale == "" {
		return nil
	}
	if _, err := language.Parse(e.Locale); err != nil {
		return errors.Wrapf(err, "invalid locale %q", e.Locale)
	}
	return nil
}

func (e Environment) location() *time.Location {
	if e.Timezone == nil {
		return time.UTC
	}
	return e.Timezone
}

// stringOrder returns the string comparison used by sort, min and max.
// Collators keep internal buffers, so the returned function serialises
// access to one.
func (e Environment) stringOrder() (func(a, b string) int, error) {
	if e.Locale == "" {
		return strings.Compare, nil
	}
	tag, err := language.Parse(e.Locale)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid locale %q", e.Locale)
	}
	c := collate.New(tag)
	var mu sync.Mutex
	return func(a, b string) int {
		mu.Lock()
		defer mu.Unlock()
		return c.CompareString(a, b)
	}, nil
}

// ParseEnvironment builds an environment from an IANA timezone name and a
// locale tag. Empty strings select the defaults.
func ParseEnvironment(timezone, locale string) (Environment, error) {
	env := Environment{Locale: locale}
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return Environment{}, errors.Wrapf(err, "invalid timezone %q", timezone)
		}
		env.Timezone = loc
	}
	if err := env.Validate(); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// Values returns the environment as the key/value context that travels
// with a remote query.
func (e Environment) Values() map[string]any {
	m := map[string]any{"timezone": e.location().String()}
	if e.Locale != "" {
		m["locale"] = e.Locale
	}
	return m
}
