package bridge

import (
	"context"

	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
)

func (b *Bridge) newEngine(serialized bool) (*engine.Engine, error) {
	cfg := b.engineCfg.EngineConfig(serialized)
	cfg.Logger = b.log.Named("engine")
	cfg.Tracer = b.tracer
	return engine.New(cfg)
}

// CreateEngine creates a concurrent engine for client sessions.
func (b *Bridge) CreateEngine(out *Handle) Status {
	return b.call("create_engine", func() error {
		if err := outputs("create_engine", out); err != nil {
			return err
		}
		e, err := b.newEngine(false)
		if err != nil {
			return err
		}
		if err := insert(b.engines, e, out); err != nil {
			_ = e.Shutdown(context.Background())
			return err
		}
		return nil
	})
}

// CreateServerRuntime creates the serialized engine servers run on.
func (b *Bridge) CreateServerRuntime(out *Handle) Status {
	return b.call("create_server_runtime", func() error {
		if err := outputs("create_server_runtime", out); err != nil {
			return err
		}
		e, err := b.newEngine(true)
		if err != nil {
			return err
		}
		if err := insert(b.runtimes, e, out); err != nil {
			_ = e.Shutdown(context.Background())
			return err
		}
		return nil
	})
}

// ShutdownEngine shuts an engine or server runtime down and invalidates its
// handle. Every later call naming the handle returns InvalidRuntime.
func (b *Bridge) ShutdownEngine(h Handle) Status {
	return b.call("shutdown_engine", func() error {
		e, err := b.engine("shutdown_engine", h)
		if err != nil {
			return err
		}
		if _, ok := b.table.Remove(h); !ok {
			return errors.InvalidHandle("shutdown_engine", uint32(h), errors.StatusInvalidRuntime)
		}
		return e.Shutdown(context.Background())
	})
}
