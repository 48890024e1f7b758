package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcua-bridge/errors"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = time.Millisecond
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func TestDo_ReturnsResult(t *testing.T) {
	e := newTestEngine(t, Config{})

	v, err := Do(e, "answer", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(1), e.Calls())
}

func TestDo_NilEngine(t *testing.T) {
	ran := false
	_, err := Do[int](nil, "nil", func(ctx context.Context) (int, error) {
		ran = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrNilEngine)
	assert.False(t, ran)
	assert.Equal(t, errors.StatusInvalidRuntime, errors.StatusOf(err))
}

func TestDo_RecoversPanic(t *testing.T) {
	e := newTestEngine(t, Config{})

	_, err := Do(e, "boom", func(ctx context.Context) (string, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, errors.StatusFailed, errors.StatusOf(err))

	// The engine stays usable after a panic
	v, err := Do(e, "after", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDo_CallTimeout(t *testing.T) {
	e := newTestEngine(t, Config{CallTimeout: 10 * time.Millisecond})

	err := Run(e, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_Serialized(t *testing.T) {
	e := newTestEngine(t, Config{Serialized: true})
	assert.Equal(t, "server-runtime", e.Name())

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Run(e, "work", func(ctx context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestShutdown_RejectsLaterCalls(t *testing.T) {
	e, err := New(Config{ShutdownGrace: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, e.Closed())

	ran := false
	err = Run(e, "late", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, ran)
	assert.Equal(t, errors.StatusInvalidRuntime, errors.StatusOf(err))

	_, err = e.Spawn("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, e.Shutdown(context.Background()), ErrClosed)
}

func TestShutdown_WaitsForGrace(t *testing.T) {
	e, err := New(Config{ShutdownGrace: 30 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, e.Shutdown(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestShutdown_CancelsTasks(t *testing.T) {
	e, err := New(Config{ShutdownGrace: time.Millisecond})
	require.NoError(t, err)

	task, err := e.Spawn("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.False(t, task.Finished())

	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, task.Finished())
	assert.ErrorIs(t, task.Err(), context.Canceled)
	assert.Equal(t, int64(0), e.Tasks())
}

func TestShutdown_DrainTimeout(t *testing.T) {
	e, err := New(Config{ShutdownGrace: time.Millisecond, DrainTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	_, err = e.Spawn("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	err = e.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrDrainTimeout)
	assert.True(t, e.Closed())
}

func TestTask_JoinTimeout(t *testing.T) {
	e := newTestEngine(t, Config{})

	release := make(chan struct{})
	task, err := e.Spawn("wait", func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	require.NoError(t, err)

	err = task.JoinTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.Equal(t, errors.StatusDisconnectTimeout, errors.StatusOf(err))

	close(release)
	require.NoError(t, task.Join(context.Background()))
	assert.True(t, task.Finished())
}

func TestTask_Cancel(t *testing.T) {
	e := newTestEngine(t, Config{})

	task, err := e.Spawn("cancel", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	require.NoError(t, err)

	task.Cancel()
	require.NoError(t, task.JoinTimeout(time.Second))
}

func TestTask_RecoversPanic(t *testing.T) {
	e := newTestEngine(t, Config{})

	task, err := e.Spawn("panics", func(ctx context.Context) error {
		panic("task boom")
	})
	require.NoError(t, err)

	err = task.JoinTimeout(time.Second)
	assert.ErrorIs(t, err, ErrPanic)
}
