// Package config holds the options of a subsweep run, their defaults and the
// YAML config file format.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vulnverified/subsweep/internal/engine"
	"github.com/vulnverified/subsweep/internal/pool"
)

// Options holds all configuration for a subsweep scan.
type Options struct {
	// Input
	Wordlist string `yaml:"wordlist"` // empty = use embedded

	// Performance
	Concurrency  int           `yaml:"concurrency"`
	Timeout      time.Duration `yaml:"timeout"`      // per resolution
	ScanTimeout  time.Duration `yaml:"scan_timeout"` // 0 = unbounded
	Rate         float64       `yaml:"rate"`         // resolutions per second, 0 = unlimited
	CancelPolicy string        `yaml:"cancel_policy"`

	// DNS
	Resolvers []string `yaml:"resolvers"` // empty = system resolver
	Wildcard  bool     `yaml:"wildcard"`

	// Probe
	Probe        string        `yaml:"probe"` // "none", "http", "tcp"
	ProbePort    int           `yaml:"probe_port"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // 0 = Timeout
	UserAgent    string        `yaml:"user_agent"`

	// Output
	JSON    bool   `yaml:"json"`
	Output  string `yaml:"output"` // text report path
	All     bool   `yaml:"all"`    // list not-found candidates too
	NoColor bool   `yaml:"no_color"`
	Silent  bool   `yaml:"silent"`
	Verbose bool   `yaml:"verbose"`
}

// Default returns the options used when neither a config file nor flags say
// otherwise.
func Default() Options {
	return Options{
		Concurrency:  engine.DefaultConcurrency,
		Timeout:      engine.DefaultTimeout,
		CancelPolicy: pool.Drain.String(),
		Probe:        "none",
	}
}

// Load reads a YAML config file on top of the defaults. Unknown keys are
// rejected.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return opts, nil
}

// EffectiveProbeTimeout is the probe budget, falling back to the resolution
// timeout when none is set.
func (o Options) EffectiveProbeTimeout() time.Duration {
	if o.ProbeTimeout > 0 {
		return o.ProbeTimeout
	}
	return o.Timeout
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", o.Timeout)
	}
	if o.ScanTimeout < 0 {
		return fmt.Errorf("scan timeout must not be negative, got %s", o.ScanTimeout)
	}
	if o.ProbeTimeout < 0 {
		return fmt.Errorf("probe timeout must not be negative, got %s", o.ProbeTimeout)
	}
	if o.Rate < 0 {
		return fmt.Errorf("rate must not be negative, got %g", o.Rate)
	}
	if _, err := pool.ParseCancelPolicy(o.CancelPolicy); err != nil {
		return err
	}
	switch o.Probe {
	case "", "none", "http", "tcp":
	default:
		return fmt.Errorf("unknown probe mode %q (want none, http or tcp)", o.Probe)
	}
	if o.ProbePort < 0 || o.ProbePort > 65535 {
		return fmt.Errorf("probe port out of range: %d", o.ProbePort)
	}
	return nil
}

// EngineOptions returns the scan options for the coordinator. Call Validate
// first.
func (o Options) EngineOptions() engine.Options {
	policy, _ := pool.ParseCancelPolicy(o.CancelPolicy)
	return engine.Options{
		Concurrency:    o.Concurrency,
		Timeout:        o.Timeout,
		ProbeTimeout:   o.ProbeTimeout,
		ScanTimeout:    o.ScanTimeout,
		Rate:           o.Rate,
		CancelPolicy:   policy,
		DetectWildcard: o.Wildcard,
	}
}
