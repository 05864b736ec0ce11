package retry

import (
	"time"

	"github.com/pkg/errors"
)

const (
	StrategyExponential = "exponential"
	StrategyFibonacci   = "fibonacci"
)

// Config is the YAML form of a retry policy.
type Config struct {
	Strategy            string        `yaml:"strategy"`
	InitialDelay        time.Duration `yaml:"initial_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	RandomisationFactor float64       `yaml:"randomisation_factor"`
	FailAfter           int           `yaml:"fail_after"`
}

// DefaultConfig returns an exponential policy giving up after five
// attempts.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyExponential,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		FailAfter:    5,
	}
}

func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyExponential, StrategyFibonacci:
	default:
		return errors.Errorf("unknown retry strategy %q", c.Strategy)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	if c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay {
		return errors.Errorf("initial_delay %s exceeds max_delay %s", c.InitialDelay, c.MaxDelay)
	}
	if c.RandomisationFactor < 0 || c.RandomisationFactor > 1 {
		return errors.Errorf("randomisation_factor must be within [0, 1], got %g", c.RandomisationFactor)
	}
	if c.FailAfter < 0 {
		return errors.Errorf("fail_after must not be negative, got %d", c.FailAfter)
	}
	return nil
}

func (c Config) options() Options {
	return Options{
		InitialDelay:        c.InitialDelay,
		MaxDelay:            c.MaxDelay,
		RandomisationFactor: c.RandomisationFactor,
	}
}

// NewStrategy builds the configured strategy.
func (c Config) NewStrategy() Strategy {
	if c.Strategy == StrategyFibonacci {
		return NewFibonacci(c.options())
	}
	return NewExponential(c.options())
}

// NewBackoff builds a fresh Backoff for one operation.
func (c Config) NewBackoff() *Backoff {
	return New(c.NewStrategy()).FailAfter(c.FailAfter)
}
