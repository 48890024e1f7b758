package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/errors"
)

// SubscriptionParams tunes a subscription. Zero fields take server or
// library defaults; a zero Interval uses the client's publishing interval.
type SubscriptionParams struct {
	Interval                   time.Duration
	LifetimeCount              uint32
	MaxKeepAliveCount          uint32
	MaxNotificationsPerPublish uint32
	Priority                   uint8
}

// Subscribe creates a subscription monitoring the Value attribute of every
// ref. Changes are posted to sink from the event loop, so the loop must be
// running for notifications to arrive.
func (s *Session) Subscribe(ctx context.Context, params SubscriptionParams, refs []NodeRef, sink opcuabridge.EventSink) (uint32, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if sink == nil {
		return 0, errors.NilPointer(errors.PhaseClient, "subscribe", "event sink")
	}
	if len(refs) == 0 {
		return 0, fmt.Errorf("%w: no nodes to monitor", ErrSubscribeFailed)
	}

	items := make(map[uint32]string, len(refs))
	reqs := make([]*ua.MonitoredItemCreateRequest, 0, len(refs))
	for _, ref := range refs {
		node, err := ref.NodeID()
		if err != nil {
			return 0, err
		}
		handle := s.nextHandle.Add(1)
		items[handle] = node.String()
		reqs = append(reqs, opcua.NewMonitoredItemCreateRequestWithDefaults(node, ua.AttributeIDValue, handle))
	}

	if params.Interval <= 0 {
		params.Interval = s.client.cfg.PublishingInterval.D()
	}
	sub, err := s.transport.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval:                   params.Interval,
		LifetimeCount:              params.LifetimeCount,
		MaxKeepAliveCount:          params.MaxKeepAliveCount,
		MaxNotificationsPerPublish: params.MaxNotificationsPerPublish,
		Priority:                   params.Priority,
	}, s.notify)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	subID := sub.ID()

	s.mu.Lock()
	s.subs[subID] = &subscription{sub: sub, sink: sink, items: items}
	s.mu.Unlock()

	resp, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, reqs...)
	if err == nil {
		err = monitorStatus(resp, len(reqs))
	}
	if err != nil {
		s.mu.Lock()
		delete(s.subs, subID)
		s.mu.Unlock()
		if cerr := sub.Cancel(ctx); cerr != nil {
			s.log.Debug("cancel failed subscription", zap.Uint32("subscription", subID), zap.Error(cerr))
		}
		return 0, fmt.Errorf("%w: monitor: %w", ErrSubscribeFailed, err)
	}

	s.log.Debug("subscribed", zap.Uint32("subscription", subID), zap.Int("items", len(reqs)))
	return subID, nil
}

func monitorStatus(resp *ua.CreateMonitoredItemsResponse, want int) error {
	if resp == nil || len(resp.Results) != want {
		return fmt.Errorf("expected %d monitored item results", want)
	}
	for i, r := range resp.Results {
		if r == nil || r.StatusCode != ua.StatusOK {
			code := uint32(0x80000000)
			if r != nil {
				code = uint32(r.StatusCode)
			}
			return fmt.Errorf("item %d: status 0x%08X", i, code)
		}
	}
	return nil
}

// DeleteSubscription cancels a subscription created by Subscribe. Unknown
// or already deleted ids fail with ErrSubscriptionNotFound and leave other
// subscriptions untouched.
func (s *Session) DeleteSubscription(ctx context.Context, id uint32) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.mu.Lock()
	entry, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrSubscriptionNotFound, id)
	}

	if err := entry.sub.Cancel(ctx); err != nil {
		return fmt.Errorf("%w: delete %d: %w", ErrSubscribeFailed, id, err)
	}
	return nil
}

// Subscriptions returns the ids of live subscriptions.
func (s *Session) Subscriptions() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}
