package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
)

// State is the connection lifecycle state of a Client.
type State int32

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateDisconnecting
	StateClosed
)

var stateNames = [...]string{
	StateUnconnected:   "unconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateRunning:       "running",
	StateDisconnecting: "disconnecting",
	StateClosed:        "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Client is a configured OPC UA client that owns at most one live Session.
type Client struct {
	log      *zap.Logger
	dial     Dialer
	discover Discoverer
	session  *Session
	cfg      config.Client
	mu       sync.Mutex
	state    State
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the transport factory.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithDiscoverer replaces the endpoint discovery function.
func WithDiscoverer(d Discoverer) Option {
	return func(c *Client) { c.discover = d }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates an unconnected client. Zero config fields take defaults and an
// empty application URI gets a per-instance unique value.
func New(cfg config.Client, opts ...Option) *Client {
	cfg = cfg.WithDefaults()
	if cfg.ApplicationURI == "" {
		cfg.ApplicationURI = "urn:" + strings.ReplaceAll(cfg.ApplicationName, " ", "-") + ":" + uuid.NewString()
	}

	c := &Client{
		cfg:      cfg,
		dial:     DialGopcua,
		discover: DiscoverGopcua,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = Logger()
	}
	c.log = c.log.With(zap.String("application_uri", cfg.ApplicationURI))
	return c
}

// Load creates a client from a YAML configuration file.
func Load(path string, opts ...Option) (*Client, error) {
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// Config returns the effective configuration.
func (c *Client) Config() config.Client { return c.cfg }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the live session, if any.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// release detaches a closed session.
func (c *Client) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == s {
		c.session = nil
		c.state = StateClosed
	}
}

// ValidateURL checks that endpointURL is an opc.tcp URL with a host.
func ValidateURL(endpointURL string) error {
	u, err := url.Parse(endpointURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "opc.tcp" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, endpointURL)
	}
	return nil
}

// Connect discovers the server endpoints, picks the one with security None
// and anonymous identity, and opens a session. It blocks until the session
// exists. The returned event loop is not started yet.
func (c *Client) Connect(ctx context.Context, endpointURL string) (*Session, *EventLoop, error) {
	if err := ValidateURL(endpointURL); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil, nil, ErrSessionActive
	}
	prev := c.state
	c.state = StateConnecting
	c.mu.Unlock()

	t, err := c.open(ctx, endpointURL)
	if err != nil {
		c.setState(prev)
		c.log.Warn("connect failed", zap.String("endpoint", endpointURL), zap.Error(err))
		return nil, nil, err
	}

	s := newSession(c, t, endpointURL)
	c.mu.Lock()
	if c.session != nil {
		// Lost a race with a concurrent Connect.
		c.mu.Unlock()
		_ = t.Close(ctx)
		return nil, nil, ErrSessionActive
	}
	c.session = s
	c.state = StateConnected
	c.mu.Unlock()

	c.log.Debug("session open", zap.String("endpoint", endpointURL))
	return s, newEventLoop(s), nil
}

func (c *Client) open(ctx context.Context, endpointURL string) (Transport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout.D())
	defer cancel()

	eps, err := c.discover(ctx, endpointURL)
	if err != nil {
		return nil, fmt.Errorf("%w: get endpoints: %w", ErrConnectFailed, err)
	}
	ep := MatchEndpoint(eps)
	if ep == nil {
		return nil, fmt.Errorf("%w: %d endpoints offered", ErrNoMatchingEndpoint, len(eps))
	}

	t, err := c.dial(ctx, endpointURL, ep, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrConnectFailed, err)
	}
	if err := t.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return t, nil
}

// ConnectSimple connects, starts the event loop on e and waits until the
// transport reports connected. On failure nothing is left running.
func (c *Client) ConnectSimple(ctx context.Context, e *engine.Engine, endpointURL string) (*Session, *EventLoop, error) {
	s, loop, err := c.Connect(ctx, endpointURL)
	if err != nil {
		return nil, nil, err
	}
	if err := loop.Spawn(e); err != nil {
		_ = s.Disconnect(ctx, loop)
		return nil, nil, err
	}
	if err := s.WaitForConnection(ctx); err != nil {
		_ = s.Disconnect(ctx, loop)
		return nil, nil, err
	}
	return s, loop, nil
}

func connected(t Transport) bool {
	return t.State() == opcua.Connected
}

func pollInterval(cfg config.Client) time.Duration {
	if d := cfg.PollInterval.D(); d > 0 {
		return d
	}
	return config.DefaultClient().PollInterval.D()
}
