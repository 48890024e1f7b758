package bridge

import (
	"fmt"

	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/resource"
	"github.com/wippyai/opcua-bridge/server"
)

// Release invalidates a handle whose object has no dedicated destroy
// operation. Engines are released by ShutdownEngine and sessions and event
// loops by Disconnect. A client with a live session or a server that is
// still serving cannot be released.
func (b *Bridge) Release(h Handle) Status {
	return b.call("release", func() error {
		kind, ok := b.table.KindOf(h)
		if !ok {
			return errors.InvalidHandle("release", uint32(h), errors.StatusInvalidReference)
		}

		switch kind {
		case resource.KindEngine, resource.KindServerRuntime:
			return fmt.Errorf("%w: %s handles are released by ShutdownEngine", ErrWrongDestroyer, kind)
		case resource.KindSession, resource.KindEventLoop:
			return fmt.Errorf("%w: %s handles are released by Disconnect", ErrWrongDestroyer, kind)
		case resource.KindClient:
			if c, ok := b.clients.Get(h); ok && c.Session() != nil {
				return fmt.Errorf("%w: client has a live session", ErrInUse)
			}
		case resource.KindServer:
			if s, ok := b.servers.Get(h); ok {
				switch s.State() {
				case server.StateStarting, server.StateRunning, server.StateStopping:
					return fmt.Errorf("%w: server is %s", ErrInUse, s.State())
				}
			}
		}

		if _, ok := b.table.Remove(h); !ok {
			return fmt.Errorf("%w: %s handle is borrowed by a running call", ErrInUse, kind)
		}
		return nil
	})
}

