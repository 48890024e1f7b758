package bridge

import (
	"context"
	"slices"

	"github.com/gopcua/opcua/ua"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/scalar"
	"github.com/wippyai/opcua-bridge/server"
)

// BuildServer builds a server from a YAML file, or from defaults when path is
// empty. rt must be a live server runtime; the server is bound to it and every
// later call that changes the server runs on it.
func (b *Bridge) BuildServer(path string, rt Handle, srvOut, handleOut, nodesOut *Handle) Status {
	return b.call("build_server", func() error {
		if err := outputs("build_server", srvOut, handleOut, nodesOut); err != nil {
			return err
		}
		e, err := lookup("build_server", b.runtimes, rt, errors.StatusInvalidRuntime)
		if err != nil {
			return err
		}
		opts := append(slices.Clip(b.serverOpts), server.WithRuntime(e))

		var (
			s     *server.Server
			h     *server.Handle
			nodes *server.NodeManager
		)
		err = engine.Run(e, "build_server", func(context.Context) error {
			var err error
			if path == "" {
				s, h, nodes, err = server.Build(config.Server{}, opts...)
			} else {
				s, h, nodes, err = server.Load(path, opts...)
			}
			return err
		})
		if err != nil {
			return err
		}

		if err := insert(b.servers, s, srvOut); err != nil {
			return err
		}
		if err := insert(b.handles, h, handleOut); err != nil {
			b.unwind(srvOut)
			return err
		}
		if err := insert(b.managers, nodes, nodesOut); err != nil {
			b.unwind(srvOut, handleOut)
			return err
		}
		return nil
	})
}

// unwind drops handles published earlier in a failing call.
func (b *Bridge) unwind(outs ...*Handle) {
	for _, o := range outs {
		b.table.Remove(*o)
		*o = 0
	}
}

// StartServer starts serving on rt. tokenOut cancels the serving task via
// StopRun; threadOut observes it via IsServerRunning.
func (b *Bridge) StartServer(rt, srv Handle, tokenOut, threadOut *Handle) Status {
	return b.call("start_server", func() error {
		if err := outputs("start_server", tokenOut, threadOut); err != nil {
			return err
		}
		e, err := lookup("start_server", b.runtimes, rt, errors.StatusInvalidRuntime)
		if err != nil {
			return err
		}
		s, done, err := pin("start_server", b.servers, srv, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		defer done()

		t, err := engine.Do(e, "start_server", func(context.Context) (*server.Thread, error) {
			return server.Start(e, s)
		})
		if err != nil {
			return err
		}
		if err := insert(b.tokens, t, tokenOut); err != nil {
			t.Cancel()
			return err
		}
		if err := insert(b.threads, t, threadOut); err != nil {
			b.unwind(tokenOut)
			t.Cancel()
			return err
		}
		return nil
	})
}

// StopServer asks a running server to stop. It does not wait; poll
// IsServerRunning to observe termination.
func (b *Bridge) StopServer(rt, handle, thread Handle) Status {
	return b.call("stop_server", func() error {
		e, err := lookup("stop_server", b.runtimes, rt, errors.StatusInvalidRuntime)
		if err != nil {
			return err
		}
		h, err := lookup("stop_server", b.handles, handle, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		if _, err := lookup("stop_server", b.threads, thread, errors.StatusInvalidServerRef); err != nil {
			return err
		}
		return engine.Run(e, "stop_server", func(context.Context) error {
			h.Stop()
			return nil
		})
	})
}

// StopRun cancels the serving task behind a run token.
func (b *Bridge) StopRun(token Handle) Status {
	return b.call("stop_run", func() error {
		t, err := lookup("stop_run", b.tokens, token, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		t.Cancel()
		return nil
	})
}

// IsServerRunning reports whether the serving task is still alive. It does
// not distinguish starting from serving.
func (b *Bridge) IsServerRunning(rt, thread Handle, out *bool) Status {
	return b.call("is_server_running", func() error {
		if out == nil {
			return ErrNilOutput
		}
		*out = false
		if _, err := lookup("is_server_running", b.runtimes, rt, errors.StatusInvalidRuntime); err != nil {
			return err
		}
		t, err := lookup("is_server_running", b.threads, thread, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		*out = t.Running()
		return nil
	})
}

// ServerNamespace stores the namespace index of a server's nodes in out.
func (b *Bridge) ServerNamespace(handle Handle, out *uint16) Status {
	return b.call("server_namespace", func() error {
		if out == nil {
			return ErrNilOutput
		}
		h, err := lookup("server_namespace", b.handles, handle, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		*out = h.Namespace()
		return nil
	})
}

// ServerEndpoint writes the endpoint URL a server listens on into buf.
func (b *Bridge) ServerEndpoint(handle Handle, buf opcuabridge.Buffer) Status {
	return b.call("server_endpoint", func() error {
		if buf == nil {
			return errors.NilPointer(errors.PhaseBoundary, "server_endpoint", "buffer")
		}
		h, err := lookup("server_endpoint", b.handles, handle, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		return opcuabridge.WriteString(buf, h.Endpoint())
	})
}

// AddFolder creates a folder under Objects in the node manager's namespace.
func (b *Bridge) AddFolder(nodes Handle, id, browse, display string, out *Handle) Status {
	return b.call("add_folder", func() error {
		if err := outputs("add_folder", out); err != nil {
			return err
		}
		m, done, err := pin("add_folder", b.managers, nodes, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		defer done()

		folder, err := onRuntime(m, "add_folder", func() (*ua.NodeID, error) {
			return m.AddFolder(id, browse, display)
		})
		if err != nil {
			return err
		}
		return insert(b.nodes, folder, out)
	})
}

// AddVariable creates a writable variable of type code typ in folder.
func (b *Bridge) AddVariable(nodes, folder Handle, id, browse, display string, typ int32, out *Handle) Status {
	return b.call("add_variable", func() error {
		if err := outputs("add_variable", out); err != nil {
			return err
		}
		t, err := scalar.Parse(typ)
		if err != nil {
			return err
		}
		m, done, err := pin("add_variable", b.managers, nodes, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}
		defer done()
		f, err := lookup("add_variable", b.nodes, folder, errors.StatusInvalidServerRef)
		if err != nil {
			return err
		}

		v, err := onRuntime(m, "add_variable", func() (*ua.NodeID, error) {
			return m.AddVariable(f, id, browse, display, t)
		})
		if err != nil {
			return err
		}
		return insert(b.nodes, v, out)
	})
}

// onRuntime runs a node manager mutation on the server runtime it is bound
// to, so it never overlaps another server call.
func onRuntime[T any](m *server.NodeManager, op string, fn func() (T, error)) (T, error) {
	rt := m.Runtime()
	if rt == nil {
		return fn()
	}
	return engine.Do(rt, op, func(context.Context) (T, error) { return fn() })
}

func (b *Bridge) variable(op string, nodes, node Handle) (*server.NodeManager, *ua.NodeID, func(), error) {
	m, done, err := pin(op, b.managers, nodes, errors.StatusInvalidServerRef)
	if err != nil {
		return nil, nil, nil, err
	}
	id, err := lookup(op, b.nodes, node, errors.StatusInvalidServerRef)
	if err != nil {
		done()
		return nil, nil, nil, err
	}
	return m, id, done, nil
}

// Nodes returns the node manager behind a handle, for in-process embedders
// that observe changes directly.
func (b *Bridge) Nodes(nodes Handle) (*server.NodeManager, bool) {
	return b.managers.Get(nodes)
}
