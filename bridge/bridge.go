package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/metrics"
	"github.com/wippyai/opcua-bridge/resource"
	"github.com/wippyai/opcua-bridge/server"
)

// Handle is an opaque reference handed to the host.
type Handle = resource.Handle

// Status is the result code of every bridge call.
type Status = errors.Status

// Bridge owns every object the host holds a handle to. Its methods are the
// host-callable operations: they validate handles, run the work on the
// referenced engine and return a Status. No panic escapes a Bridge method.
type Bridge struct {
	table   *resource.UnifiedTable
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	engines  resource.Typed[*engine.Engine]
	runtimes resource.Typed[*engine.Engine]
	clients  resource.Typed[*client.Client]
	sessions resource.Typed[*client.Session]
	loops    resource.Typed[*client.EventLoop]
	servers  resource.Typed[*server.Server]
	handles  resource.Typed[*server.Handle]
	managers resource.Typed[*server.NodeManager]
	threads  resource.Typed[*server.Thread]
	tokens   resource.Typed[*server.Thread]
	nodes    resource.Typed[*ua.NodeID]

	clientOpts []client.Option
	serverOpts []server.Option
	engineCfg  config.Engine

	mu     sync.Mutex
	closed bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge logger. Engines, clients and servers created by
// the bridge log through it too.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithMetrics records every call and the live handle counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithTracer sets the tracer engines open call spans on.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) { b.tracer = t }
}

// WithEngineConfig sets the configuration of engines created by
// CreateEngine and CreateServerRuntime.
func WithEngineConfig(cfg config.Engine) Option {
	return func(b *Bridge) { b.engineCfg = cfg }
}

// WithClientOptions appends options applied to every client BuildClient creates.
func WithClientOptions(opts ...client.Option) Option {
	return func(b *Bridge) { b.clientOpts = append(b.clientOpts, opts...) }
}

// WithServerOptions appends options applied to every server BuildServer creates.
func WithServerOptions(opts ...server.Option) Option {
	return func(b *Bridge) { b.serverOpts = append(b.serverOpts, opts...) }
}

// New creates an empty bridge.
func New(opts ...Option) *Bridge {
	table := resource.NewTable()
	b := &Bridge{
		table:     table,
		engineCfg: config.DefaultEngine(),
		engines:   resource.NewTyped[*engine.Engine](table, resource.KindEngine),
		runtimes:  resource.NewTyped[*engine.Engine](table, resource.KindServerRuntime),
		clients:   resource.NewTyped[*client.Client](table, resource.KindClient),
		sessions:  resource.NewTyped[*client.Session](table, resource.KindSession),
		loops:     resource.NewTyped[*client.EventLoop](table, resource.KindEventLoop),
		servers:   resource.NewTyped[*server.Server](table, resource.KindServer),
		handles:   resource.NewTyped[*server.Handle](table, resource.KindServerHandle),
		managers:  resource.NewTyped[*server.NodeManager](table, resource.KindNodeManager),
		threads:   resource.NewTyped[*server.Thread](table, resource.KindServerThread),
		tokens:    resource.NewTyped[*server.Thread](table, resource.KindRunToken),
		nodes:     resource.NewTyped[*ua.NodeID](table, resource.KindNode),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = Logger()
	}
	if b.metrics != nil {
		table.Subscribe(b.metrics)
	}
	b.clientOpts = append([]client.Option{client.WithLogger(b.log.Named("client"))}, b.clientOpts...)
	b.serverOpts = append([]server.Option{server.WithLogger(b.log.Named("server"))}, b.serverOpts...)
	return b
}

// Len returns the number of live handles.
func (b *Bridge) Len() int { return b.table.Len() }

// call runs one host operation and converts its outcome into a Status.
func (b *Bridge) call(op string, fn func() error) (st Status) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := errors.Panic(errors.PhaseBoundary, op, r)
			b.log.Error("call panicked", zap.String("op", op), zap.Any("panic", r))
			st = err.Status
		}
		b.metrics.ObserveCall(op, st, time.Since(start))
	}()

	if b.isClosed() {
		return ErrBridgeClosed.Status
	}

	err := fn()
	st = errors.StatusOf(err)
	if err != nil {
		b.log.Debug("call failed", zap.String("op", op), zap.Stringer("status", st), zap.Error(err))
	} else {
		b.log.Debug("call", zap.String("op", op), zap.Duration("took", time.Since(start)))
	}
	return st
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// insert stores v and publishes the handle through out.
func insert[T any](t resource.Typed[T], v T, out *Handle) error {
	h := t.Insert(v)
	if h == 0 {
		return ErrBridgeClosed
	}
	*out = h
	return nil
}

func lookup[T any](op string, t resource.Typed[T], h Handle, st Status) (T, error) {
	v, ok := t.Get(h)
	if !ok {
		var zero T
		return zero, errors.InvalidHandle(op, uint32(h), st)
	}
	return v, nil
}

// pin borrows a handle for the duration of a call so it cannot be removed
// underneath it. The returned func releases the pin.
func pin[T any](op string, t resource.Typed[T], h Handle, st Status) (T, func(), error) {
	v, ok := t.Borrow(h)
	if !ok {
		var zero T
		return zero, func() {}, errors.InvalidHandle(op, uint32(h), st)
	}
	return v, func() { t.ReturnBorrow(h) }, nil
}

func outputs(op string, outs ...*Handle) error {
	for _, o := range outs {
		if o == nil {
			return errors.NilPointer(errors.PhaseBoundary, op, "output handle")
		}
	}
	for _, o := range outs {
		*o = 0
	}
	return nil
}

// engine resolves a handle to a client engine or a server runtime.
func (b *Bridge) engine(op string, h Handle) (*engine.Engine, error) {
	if e, ok := b.engines.Get(h); ok {
		return e, nil
	}
	if e, ok := b.runtimes.Get(h); ok {
		return e, nil
	}
	return nil, errors.InvalidHandle(op, uint32(h), errors.StatusInvalidRuntime)
}

// Close disconnects every session, stops every server and shuts every engine
// down, then drops all handles. Later calls return InvalidRuntime.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.closed = true
	b.mu.Unlock()

	var loops []*client.EventLoop
	b.loops.Each(func(_ Handle, l *client.EventLoop) bool {
		loops = append(loops, l)
		return true
	})
	for _, l := range loops {
		err := l.Session().Disconnect(ctx, l)
		if err != nil && !errors.Is(err, client.ErrSessionClosed) {
			b.log.Warn("disconnect on close", zap.Error(err))
		}
	}

	var servers []*server.Handle
	b.handles.Each(func(_ Handle, h *server.Handle) bool {
		servers = append(servers, h)
		return true
	})
	for _, h := range servers {
		h.Stop()
	}

	var engines []*engine.Engine
	collect := func(_ Handle, e *engine.Engine) bool {
		engines = append(engines, e)
		return true
	}
	b.engines.Each(collect)
	b.runtimes.Each(collect)

	var first error
	for _, e := range engines {
		if err := e.Shutdown(ctx); err != nil && !errors.Is(err, engine.ErrClosed) && first == nil {
			first = err
		}
	}

	b.table.Clear()
	if err := b.table.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
