package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/gopcua/opcua/server"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/scalar"
)

// State is the lifecycle state of a Server.
type State int32

const (
	StateUnbuilt State = iota
	StateBuilt
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

var stateNames = [...]string{
	StateUnbuilt:  "unbuilt",
	StateBuilt:    "built",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
	StateStopped:  "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Server is an embedded OPC UA server with one node namespace.
type Server struct {
	rt     *engine.Engine
	srv    *server.Server
	nodes  *NodeManager
	handle *Handle
	thread *Thread
	log    *zap.Logger
	cfg    config.Server
	mu     sync.Mutex
	state  State
}

// Handle is the control surface of a built server.
type Handle struct {
	server *Server
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	log *zap.Logger
	rt  *engine.Engine
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.log = l }
}

// WithRuntime binds the server to the runtime it will be started on. Start
// refuses any other runtime.
func WithRuntime(rt *engine.Engine) Option {
	return func(o *buildOptions) { o.rt = rt }
}

// Build creates a server with security None, anonymous authentication and a
// node namespace managed by the returned NodeManager. Folders and variables
// declared in cfg are created before Build returns.
func Build(cfg config.Server, opts ...Option) (*Server, *Handle, *NodeManager, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = Logger()
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	srv := server.New(
		server.EndPoint(cfg.Host, cfg.Port),
		server.EnableSecurity("None", ua.MessageSecurityModeNone),
		server.EnableAuthMode(ua.UserTokenTypeAnonymous),
	)

	ns := server.NewNodeNameSpace(srv, cfg.NamespaceURI)
	root, err := srv.Namespace(0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: root namespace: %w", ErrBuildFailed, err)
	}

	log := o.log.With(zap.String("endpoint", endpointURL(cfg)))
	nodes := newNodeManager(ns, root.Objects(), o.rt, log)

	for _, f := range cfg.Folders {
		folder, err := nodes.AddFolder(f.ID, f.Browse, f.Display)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		for _, v := range f.Variables {
			t, err := scalar.ParseName(v.Type)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
			}
			if _, err := nodes.AddVariable(folder, v.ID, v.Browse, v.Display, t); err != nil {
				return nil, nil, nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
			}
		}
	}

	s := &Server{
		rt:    o.rt,
		srv:   srv,
		nodes: nodes,
		cfg:   cfg,
		log:   log,
		state: StateBuilt,
	}
	s.handle = &Handle{server: s}

	log.Debug("server built", zap.Uint16("namespace", ns.ID()))
	return s, s.handle, nodes, nil
}

// Load builds a server from a YAML configuration file.
func Load(path string, opts ...Option) (*Server, *Handle, *NodeManager, error) {
	cfg, err := config.LoadServer(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return Build(cfg, opts...)
}

func endpointURL(cfg config.Server) string {
	return "opc.tcp://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Config returns the effective configuration.
func (s *Server) Config() config.Server { return s.cfg }

// Nodes returns the node manager.
func (s *Server) Nodes() *NodeManager { return s.nodes }

// Runtime returns the runtime the server is bound to, or nil.
func (s *Server) Runtime() *engine.Engine { return s.rt }

// Handle returns the control handle.
func (s *Server) Handle() *Handle { return s.handle }

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Endpoint returns the opc.tcp URL clients connect to.
func (h *Handle) Endpoint() string { return endpointURL(h.server.cfg) }

// Namespace returns the index of the server's node namespace.
func (h *Handle) Namespace() uint16 { return h.server.nodes.Namespace() }

// BuildInfo returns the build metadata the server was configured with.
func (h *Handle) BuildInfo() config.BuildInfo { return h.server.cfg.Build }

// State returns the server lifecycle state.
func (h *Handle) State() State { return h.server.State() }

// Stop asks the serving task to end. It does not wait; use Thread.Join or
// Thread.Running to observe termination. Stopping a server that is not
// running is a no-op.
func (h *Handle) Stop() {
	s := h.server
	s.mu.Lock()
	t := s.thread
	if t != nil && (s.state == StateStarting || s.state == StateRunning) {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if t != nil {
		t.Cancel()
	}
}

// Thread is the background task serving a started server.
type Thread struct {
	task   *engine.Task
	server *Server
}

// Start spawns the serving task on rt. The task waits for a one-shot start
// signal, starts the listener and serves until cancelled. Start sends the
// signal and returns once the listener is up or failed to come up.
func Start(rt *engine.Engine, s *Server) (*Thread, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil server", ErrStartFailed)
	}
	if s.rt != nil && s.rt != rt {
		return nil, ErrRuntimeMismatch
	}

	s.mu.Lock()
	if s.state != StateBuilt {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrAlreadyStarted, st)
	}
	s.state = StateStarting
	s.mu.Unlock()

	signal := make(chan struct{})
	ready := make(chan error, 1)

	task, err := rt.Spawn("opcua-server", func(ctx context.Context) error {
		defer s.setState(StateStopped)

		select {
		case <-signal:
		case <-ctx.Done():
			ready <- ctx.Err()
			return ctx.Err()
		}

		if err := s.srv.Start(ctx); err != nil {
			ready <- err
			return err
		}
		s.nodes.live.Store(true)
		s.setState(StateRunning)
		ready <- nil
		s.log.Info("server started")

		s.nodes.watch(ctx)

		s.nodes.live.Store(false)
		s.setState(StateStopping)
		if err := s.srv.Close(); err != nil {
			s.log.Warn("server close", zap.Error(err))
		}
		s.log.Info("server stopped")
		return nil
	})
	if err != nil {
		s.setState(StateBuilt)
		return nil, err
	}

	t := &Thread{task: task, server: s}
	s.mu.Lock()
	s.thread = t
	s.mu.Unlock()

	close(signal)
	if err := <-ready; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	return t, nil
}

// Running reports whether the serving task is still alive.
func (t *Thread) Running() bool { return !t.task.Finished() }

// Cancel stops the serving task without waiting.
func (t *Thread) Cancel() { t.task.Cancel() }

// Done is closed when the serving task has ended.
func (t *Thread) Done() <-chan struct{} { return t.task.Done() }

// Join waits for the serving task to end.
func (t *Thread) Join(ctx context.Context) error { return t.task.Join(ctx) }

// Server returns the server the thread serves.
func (t *Thread) Server() *Server { return t.server }
