// Package config loads omnifs backend configuration from YAML or JSON
// files and applies it to a registry.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omnifs/omnifs"
)

// ErrNoBackends indicates a configuration file with an empty backend list.
var ErrNoBackends = errors.New("config: no backends defined")

// Duration decodes from duration strings ("45s", "2m") or bare numbers,
// which are read as seconds for compatibility with older config files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}

	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Backend is one backend entry in a configuration file.
type Backend struct {
	// Name is the registry name for the backend.
	Name string `yaml:"name" json:"name"`

	// URL is the backend connection string.
	URL string `yaml:"url" json:"url"`

	// Description is optional free text.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Default marks this backend as the registry default. When no entry is
	// marked, the first entry becomes the default.
	Default bool `yaml:"default,omitempty" json:"default,omitempty"`

	// ReadOnly rejects mutating operations against this backend.
	ReadOnly bool `yaml:"readonly,omitempty" json:"readonly,omitempty"`

	// Timeout bounds transport calls, e.g. "45s". Zero keeps the
	// registry default.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// RetryAttempts is the operator retry budget. Zero keeps the
	// registry default.
	RetryAttempts int `yaml:"retry_attempts,omitempty" json:"retry_attempts,omitempty"`

	// ValidateConnection controls the registration connectivity probe.
	// Defaults to true.
	ValidateConnection *bool `yaml:"validate_connection,omitempty" json:"validate_connection,omitempty"`
}

// Config is the top-level configuration file structure.
type Config struct {
	Backends []Backend `yaml:"backends" json:"backends"`
}

// Load reads and parses the configuration file at path. JSON files parse
// too, JSON being a YAML subset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML or JSON bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if len(cfg.Backends) == 0 {
		return nil, ErrNoBackends
	}
	return &cfg, nil
}

// Validate checks each entry's descriptor without connecting anywhere.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if seen[b.Name] {
			return fmt.Errorf("config: backend %d: %w: %q", i, omnifs.ErrNameConflict, b.Name)
		}
		seen[b.Name] = true
		if err := b.descriptor().Validate(); err != nil {
			return fmt.Errorf("config: backend %d: %w", i, err)
		}
	}
	return nil
}

// Apply registers every configured backend in file order. The first failed
// registration aborts and is returned; earlier registrations stay in place.
func (c *Config) Apply(ctx context.Context, reg *omnifs.Registry) error {
	for _, b := range c.Backends {
		var opts []omnifs.RegisterOption
		if b.Default {
			opts = append(opts, omnifs.SetAsDefault())
		}
		if b.ValidateConnection != nil && !*b.ValidateConnection {
			opts = append(opts, omnifs.SkipValidation())
		}
		if err := reg.Register(ctx, b.descriptor(), opts...); err != nil {
			return fmt.Errorf("config: registering %q: %w", b.Name, err)
		}
	}
	return nil
}

func (b Backend) descriptor() omnifs.Descriptor {
	return omnifs.Descriptor{
		Name:          b.Name,
		URL:           b.URL,
		Description:   b.Description,
		ReadOnly:      b.ReadOnly,
		Timeout:       time.Duration(b.Timeout),
		RetryAttempts: b.RetryAttempts,
	}
}
