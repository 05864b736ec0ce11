// Package config holds the YAML configuration shared by the ply commands.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/razeghi71/ply/engine"
	"github.com/razeghi71/ply/locator"
	"github.com/razeghi71/ply/retry"
)

const (
	DefaultListenAddress   = ":8080"
	DefaultQueryPath       = "/query"
	DefaultRefreshInterval = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
)

type Config struct {
	Timezone string `yaml:"timezone"`
	Locale   string `yaml:"locale"`

	// Datasets maps a dataset name to the file it is loaded from.
	Datasets map[string]string `yaml:"datasets"`

	Remote  RemoteConfig `yaml:"remote"`
	Backoff retry.Config `yaml:"backoff"`

	LogLevel      string `yaml:"log_level"`
	ListenAddress string `yaml:"listen_address"`
}

// RemoteConfig describes the backend remote datasets are computed on.
type RemoteConfig struct {
	// Address is a fixed host:port. DNS is a name resolved periodically
	// (dskit syntax, e.g. dnssrv+_http._tcp.ply.svc). At most one is set.
	Address         string        `yaml:"address"`
	DNS             string        `yaml:"dns"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Path            string        `yaml:"path"`
	Timeout         time.Duration `yaml:"timeout"`
	Datasets        []string      `yaml:"datasets"`
}

// Enabled reports whether a backend is configured.
func (c *RemoteConfig) Enabled() bool {
	return c.Address != "" || c.DNS != ""
}

func (c *RemoteConfig) Validate() error {
	if c.Address != "" && c.DNS != "" {
		return errors.New("remote: address and dns are mutually exclusive")
	}
	if c.Address != "" {
		if _, err := locator.ParseLocation(c.Address); err != nil {
			return errors.Wrap(err, "remote address")
		}
	}
	if c.RefreshInterval <= 0 {
		return errors.Errorf("remote: refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	if c.Timeout < 0 {
		return errors.Errorf("remote: timeout must not be negative, got %s", c.Timeout)
	}
	if len(c.Datasets) > 0 && !c.Enabled() {
		return errors.New("remote: datasets listed without an address or dns")
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Timezone: "UTC",
		Remote: RemoteConfig{
			RefreshInterval: DefaultRefreshInterval,
			Path:            DefaultQueryPath,
			Timeout:         DefaultRequestTimeout,
		},
		Backoff:       retry.DefaultConfig(),
		LogLevel:      "info",
		ListenAddress: DefaultListenAddress,
	}
}

// Load reads the file at path over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := cfg.Unmarshal(data); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Unmarshal decodes YAML into c, keeping the values the document leaves
// out.
func (c *Config) Unmarshal(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.Environment(); err != nil {
		return err
	}
	for name, path := range c.Datasets {
		if name == "" || path == "" {
			return errors.Errorf("dataset %q: name and path are required", name)
		}
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Backoff.Validate(); err != nil {
		return errors.Wrap(err, "backoff")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Environment builds the evaluation environment.
func (c *Config) Environment() (engine.Environment, error) {
	return engine.ParseEnvironment(c.Timezone, c.Locale)
}
