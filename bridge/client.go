package bridge

import (
	"context"
	"time"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
)

// BuildClient creates a client from a YAML file, or from defaults when path
// is empty.
func (b *Bridge) BuildClient(path string, out *Handle) Status {
	return b.call("build_client", func() error {
		if err := outputs("build_client", out); err != nil {
			return err
		}
		var c *client.Client
		if path == "" {
			c = client.New(config.Client{}, b.clientOpts...)
		} else {
			var err error
			if c, err = client.Load(path, b.clientOpts...); err != nil {
				return err
			}
		}
		return insert(b.clients, c, out)
	})
}

type connectFunc func(ctx context.Context, e *engine.Engine, c *client.Client) (*client.Session, *client.EventLoop, error)

func (b *Bridge) connect(op string, eng, cl Handle, sessOut, loopOut *Handle, fn connectFunc) Status {
	return b.call(op, func() error {
		if err := outputs(op, sessOut, loopOut); err != nil {
			return err
		}
		e, err := b.engine(op, eng)
		if err != nil {
			return err
		}
		c, done, err := pin(op, b.clients, cl, errors.StatusInvalidClientRef)
		if err != nil {
			return err
		}
		defer done()

		type result struct {
			s *client.Session
			l *client.EventLoop
		}
		r, err := engine.Do(e, op, func(ctx context.Context) (result, error) {
			s, l, err := fn(ctx, e, c)
			return result{s, l}, err
		})
		if err != nil {
			return err
		}

		if err := insert(b.sessions, r.s, sessOut); err != nil {
			_ = r.s.Disconnect(context.Background(), r.l)
			return err
		}
		if err := insert(b.loops, r.l, loopOut); err != nil {
			b.table.Remove(*sessOut)
			*sessOut = 0
			_ = r.s.Disconnect(context.Background(), r.l)
			return err
		}
		return nil
	})
}

// Connect opens a session to url. The returned event loop is not running;
// start it with StartEventLoop.
func (b *Bridge) Connect(eng, cl Handle, url string, sessOut, loopOut *Handle) Status {
	return b.connect("connect", eng, cl, sessOut, loopOut,
		func(ctx context.Context, _ *engine.Engine, c *client.Client) (*client.Session, *client.EventLoop, error) {
			return c.Connect(ctx, url)
		})
}

// ConnectSimple opens a session, starts its event loop on eng and waits for
// the transport to report connected.
func (b *Bridge) ConnectSimple(eng, cl Handle, url string, sessOut, loopOut *Handle) Status {
	return b.connect("connect_simple", eng, cl, sessOut, loopOut,
		func(ctx context.Context, e *engine.Engine, c *client.Client) (*client.Session, *client.EventLoop, error) {
			return c.ConnectSimple(ctx, e, url)
		})
}

// StartEventLoop runs a session's event loop as a task on eng.
func (b *Bridge) StartEventLoop(eng, loop Handle) Status {
	return b.call("start_event_loop", func() error {
		e, err := b.engine("start_event_loop", eng)
		if err != nil {
			return err
		}
		l, err := lookup("start_event_loop", b.loops, loop, errors.StatusInvalidClientRef)
		if err != nil {
			return err
		}
		return l.Spawn(e)
	})
}

// EventLoopRunning reports whether a session's event loop task is alive.
func (b *Bridge) EventLoopRunning(loop Handle, out *bool) Status {
	return b.call("event_loop_running", func() error {
		if out == nil {
			return ErrNilOutput
		}
		l, err := lookup("event_loop_running", b.loops, loop, errors.StatusInvalidClientRef)
		if err != nil {
			return err
		}
		*out = l.Running()
		return nil
	})
}

// Disconnect closes a session, stops its event loop and invalidates both
// handles. A zero session handle is a no-op. A zero loop handle skips the
// loop join.
func (b *Bridge) Disconnect(eng, sess, loop Handle) Status {
	return b.call("disconnect", func() error {
		if sess == 0 {
			return nil
		}
		e, err := b.engine("disconnect", eng)
		if err != nil {
			return err
		}
		s, err := lookup("disconnect", b.sessions, sess, errors.StatusInvalidClientRef)
		if err != nil {
			return err
		}
		var l *client.EventLoop
		if loop != 0 {
			if l, err = lookup("disconnect", b.loops, loop, errors.StatusInvalidClientRef); err != nil {
				return err
			}
			if l.Session() != s {
				return client.ErrLoopMismatch
			}
		}

		err = engine.Run(e, "disconnect", func(ctx context.Context) error {
			return s.Disconnect(ctx, l)
		})
		if err != nil && !errors.Is(err, engine.ErrJoinTimeout) {
			return err
		}

		b.table.Remove(sess)
		if loop != 0 {
			b.table.Remove(loop)
		}
		return err
	})
}

func (b *Bridge) session(op string, eng, sess Handle) (*engine.Engine, *client.Session, func(), error) {
	e, err := b.engine(op, eng)
	if err != nil {
		return nil, nil, nil, err
	}
	s, done, err := pin(op, b.sessions, sess, errors.StatusInvalidClientRef)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, s, done, nil
}

// NodeInfo writes a text description of a node into buf.
func (b *Bridge) NodeInfo(eng, sess Handle, ref client.NodeRef, buf opcuabridge.Buffer) Status {
	return b.call("node_info", func() error {
		if buf == nil {
			return errors.NilPointer(errors.PhaseBoundary, "node_info", "buffer")
		}
		e, s, done, err := b.session("node_info", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		text, err := engine.Do(e, "node_info", func(ctx context.Context) (string, error) {
			return s.NodeInfo(ctx, ref)
		})
		if err != nil {
			return err
		}
		return opcuabridge.WriteString(buf, text)
	})
}

// Browse lists the children of a node into records and stores their number
// in count. A node without children yields count 0 and an empty array.
func (b *Bridge) Browse(eng, sess Handle, ref client.NodeRef, records opcuabridge.RecordArray, count *int32) Status {
	return b.call("browse", func() error {
		if records == nil || count == nil {
			return errors.NilPointer(errors.PhaseBoundary, "browse", "record array or count")
		}
		*count = 0
		e, s, done, err := b.session("browse", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		refs, err := engine.Do(e, "browse", func(ctx context.Context) ([]client.Reference, error) {
			return s.Browse(ctx, ref)
		})
		if err != nil {
			return err
		}

		recs := make([]opcuabridge.Record, len(refs))
		for i, r := range refs {
			recs[i] = r.Record()
		}
		if err := opcuabridge.WriteRecords(records, recs); err != nil {
			return err
		}
		*count = int32(len(recs))
		return nil
	})
}

// Subscribe monitors the Value attribute of refs and posts changes to sink.
// The session's event loop must be running for changes to arrive.
func (b *Bridge) Subscribe(eng, sess Handle, refs []client.NodeRef, interval time.Duration, sink opcuabridge.EventSink, out *uint32) Status {
	return b.call("subscribe", func() error {
		if out == nil {
			return ErrNilOutput
		}
		*out = 0
		e, s, done, err := b.session("subscribe", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		id, err := engine.Do(e, "subscribe", func(ctx context.Context) (uint32, error) {
			return s.Subscribe(ctx, client.SubscriptionParams{Interval: interval}, refs, sink)
		})
		if err != nil {
			return err
		}
		*out = id
		return nil
	})
}

// DeleteSubscription removes one subscription from a session.
func (b *Bridge) DeleteSubscription(eng, sess Handle, id uint32) Status {
	return b.call("delete_subscription", func() error {
		e, s, done, err := b.session("delete_subscription", eng, sess)
		if err != nil {
			return err
		}
		defer done()

		return engine.Run(e, "delete_subscription", func(ctx context.Context) error {
			return s.DeleteSubscription(ctx, id)
		})
	})
}
