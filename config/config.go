// Package config loads the YAML configuration for engines, clients and
// servers.
//
// Every file is decoded strictly: unknown fields are rejected so that a typo
// such as "namespace_url" fails loudly instead of silently using a default.
// Durations are Go duration strings ("500ms", "10s").
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
)

var ErrInvalidConfig = errors.Sentinel(errors.PhaseConfig, errors.KindInvalidConfig, errors.StatusInvalidServerConfig, "invalid configuration")

// Duration is a time.Duration that reads and writes duration strings.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Engine configures an execution engine.
type Engine struct {
	Name          string   `yaml:"name,omitempty"`
	CallTimeout   Duration `yaml:"call_timeout,omitempty"`
	ShutdownGrace Duration `yaml:"shutdown_grace,omitempty"`
	DrainTimeout  Duration `yaml:"drain_timeout,omitempty"`
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() Engine {
	return Engine{
		ShutdownGrace: Duration(engine.DefaultShutdownGrace),
		DrainTimeout:  Duration(engine.DefaultDrainTimeout),
	}
}

// EngineConfig converts the file form into an engine.Config.
func (e Engine) EngineConfig(serialized bool) engine.Config {
	return engine.Config{
		Name:          e.Name,
		Serialized:    serialized,
		CallTimeout:   e.CallTimeout.D(),
		ShutdownGrace: e.ShutdownGrace.D(),
		DrainTimeout:  e.DrainTimeout.D(),
	}
}

func (e Engine) validate() error {
	if e.CallTimeout < 0 || e.ShutdownGrace < 0 || e.DrainTimeout < 0 {
		return fmt.Errorf("%w: engine durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadEngine reads an engine configuration file.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()
	if err := decodeFile(path, &cfg); err != nil {
		return Engine{}, err
	}
	if err := cfg.validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}
	return decode(data, out)
}

func decode(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
