package client

import (
	"context"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/engine"
)

// EventLoop is the background task that keeps a session's notifications
// flowing. Connect returns it unstarted; Spawn runs it on an engine.
type EventLoop struct {
	session *Session
	task    *engine.Task
	mu      sync.Mutex
}

func newEventLoop(s *Session) *EventLoop {
	return &EventLoop{session: s}
}

// Session returns the session the loop serves.
func (l *EventLoop) Session() *Session { return l.session }

// Spawn starts the loop as a task on e.
func (l *EventLoop) Spawn(e *engine.Engine) error {
	if err := l.session.checkOpen(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.task != nil {
		return ErrLoopStarted
	}
	task, err := e.Spawn("event-loop", l.run)
	if err != nil {
		return err
	}
	l.task = task
	l.session.client.setState(StateRunning)
	return nil
}

// Running reports whether the loop task is alive.
func (l *EventLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.task != nil && !l.task.Finished()
}

// stop cancels the task and waits at most d for it to finish.
func (l *EventLoop) stop(d time.Duration) error {
	l.mu.Lock()
	task := l.task
	l.mu.Unlock()
	if task == nil {
		return nil
	}
	task.Cancel()
	return task.JoinTimeout(d)
}

func (l *EventLoop) run(ctx context.Context) error {
	s := l.session
	ticker := time.NewTicker(pollInterval(s.client.cfg))
	defer ticker.Stop()

	last := s.transport.State()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.notify:
			s.dispatch(msg)
		case <-ticker.C:
			if st := s.transport.State(); st != last {
				s.log.Info("transport state changed", zap.Any("from", last), zap.Any("to", st))
				last = st
			}
		}
	}
}

// dispatch delivers one publish result to the sink of its subscription.
func (s *Session) dispatch(msg *opcua.PublishNotificationData) {
	if msg == nil {
		return
	}
	if msg.Error != nil {
		s.log.Warn("publish error", zap.Uint32("subscription", msg.SubscriptionID), zap.Error(msg.Error))
		return
	}

	s.mu.Lock()
	entry := s.subs[msg.SubscriptionID]
	s.mu.Unlock()
	if entry == nil {
		s.log.Debug("notification for unknown subscription", zap.Uint32("subscription", msg.SubscriptionID))
		return
	}

	change, ok := msg.Value.(*ua.DataChangeNotification)
	if !ok {
		return
	}
	for _, item := range change.MonitoredItems {
		if item == nil {
			continue
		}
		ev := opcuabridge.Event{
			SubscriptionID: msg.SubscriptionID,
			ClientHandle:   item.ClientHandle,
			NodeID:         entry.items[item.ClientHandle],
		}
		if dv := item.Value; dv != nil {
			ev.Status = uint32(dv.Status)
			ev.SourceTime = dv.SourceTimestamp
			if dv.Value != nil {
				ev.Value = dv.Value.Value()
			}
		}
		if err := entry.sink.Post(ev); err != nil {
			s.log.Warn("event sink rejected notification", zap.Uint32("subscription", msg.SubscriptionID), zap.Error(err))
		}
	}
}
