package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua"
	"go.uber.org/zap"

	opcuabridge "github.com/wippyai/opcua-bridge"
)

const notifyBuffer = 64

// Session is an open OPC UA session. All operations block until the server
// answers or ctx ends.
type Session struct {
	transport  Transport
	client     *Client
	log        *zap.Logger
	notify     chan *opcua.PublishNotificationData
	subs       map[uint32]*subscription
	endpoint   string
	mu         sync.Mutex
	nextHandle atomic.Uint32
	closed     bool
}

type subscription struct {
	sub   Subscription
	sink  opcuabridge.EventSink
	items map[uint32]string
}

func newSession(c *Client, t Transport, endpoint string) *Session {
	return &Session{
		client:    c,
		transport: t,
		endpoint:  endpoint,
		log:       c.log.With(zap.String("endpoint", endpoint)),
		notify:    make(chan *opcua.PublishNotificationData, notifyBuffer),
		subs:      make(map[uint32]*subscription),
	}
}

// Endpoint returns the URL the session was opened against.
func (s *Session) Endpoint() string { return s.endpoint }

// Client returns the owning client.
func (s *Session) Client() *Client { return s.client }

// Closed reports whether Disconnect has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) checkOpen() error {
	if s == nil {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// WaitForConnection polls the transport until it reports connected, bounded
// by the configured connect timeout.
func (s *Session) WaitForConnection(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.client.cfg.ConnectTimeout.D())
	defer cancel()

	ticker := time.NewTicker(pollInterval(s.client.cfg))
	defer ticker.Stop()
	for {
		if connected(s.transport) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for connection: %w", ErrConnectFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Disconnect tears the session down in two phases: it signals (cancels
// subscriptions, closes the remote session, cancels the event loop) and then
// waits for the loop to finish, at most the configured disconnect timeout.
// A nil session is a no-op. A second call returns ErrSessionClosed.
func (s *Session) Disconnect(ctx context.Context, loop *EventLoop) error {
	if s == nil {
		return nil
	}
	if loop != nil && loop.session != s {
		return ErrLoopMismatch
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[uint32]*subscription)
	s.mu.Unlock()

	s.client.setState(StateDisconnecting)

	for id, sub := range subs {
		if err := sub.sub.Cancel(ctx); err != nil {
			s.log.Debug("cancel subscription", zap.Uint32("subscription", id), zap.Error(err))
		}
	}
	if err := s.transport.Close(ctx); err != nil {
		s.log.Warn("close session", zap.Error(err))
	}

	var err error
	if loop != nil {
		err = loop.stop(s.client.cfg.DisconnectTimeout.D())
	}
	s.client.release(s)

	if err != nil {
		s.log.Warn("event loop did not stop", zap.Error(err))
		return err
	}
	s.log.Debug("session closed")
	return nil
}
