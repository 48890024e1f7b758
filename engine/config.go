package engine

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultShutdownGrace is the delay task run before an engine closes.
	DefaultShutdownGrace = time.Second

	// DefaultDrainTimeout bounds how long Shutdown waits for calls and tasks.
	DefaultDrainTimeout = 5 * time.Second

	tracerName = "github.com/wippyai/opcua-bridge/engine"
)

// Config holds configuration for engine creation
type Config struct {
	// Logger receives engine lifecycle logs. Nil uses the package Logger().
	Logger *zap.Logger

	// Tracer creates one span per Do call. Nil uses the global provider.
	Tracer trace.Tracer

	// Name identifies the engine in logs and spans.
	Name string

	// CallTimeout bounds every Do call. 0 means no deadline.
	CallTimeout time.Duration

	// ShutdownGrace is how long the shutdown delay task sleeps.
	// 0 means DefaultShutdownGrace.
	ShutdownGrace time.Duration

	// DrainTimeout bounds the wait for in-flight work after close.
	// 0 means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Serialized makes the engine run at most one Do call at a time.
	Serialized bool
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		if c.Serialized {
			c.Name = "server-runtime"
		} else {
			c.Name = "engine"
		}
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.CallTimeout < 0 {
		c.CallTimeout = 0
	}
	return c
}
