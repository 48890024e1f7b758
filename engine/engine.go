package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/errors"
)

// Engine runs blocking calls and background tasks for one host runtime.
type Engine struct {
	ctx      context.Context
	tracer   trace.Tracer
	log      *zap.Logger
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	tasks    sync.WaitGroup
	cfg      Config
	serial   sync.Mutex
	mu       sync.Mutex
	calls    atomic.Int64
	running  atomic.Int64
	closed   bool
	shutting bool
}

// New creates an engine. It fails only on an unusable configuration.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		log:    log.With(zap.String("engine", cfg.Name)),
		tracer: tracer,
	}
	e.log.Debug("engine created", zap.Bool("serialized", cfg.Serialized))
	return e, nil
}

// Name returns the configured engine name.
func (e *Engine) Name() string { return e.cfg.Name }

// Serialized reports whether the engine runs one call at a time.
func (e *Engine) Serialized() bool { return e.cfg.Serialized }

// Context returns the engine root context. It is cancelled on shutdown.
func (e *Engine) Context() context.Context { return e.ctx }

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger { return e.log }

// Closed reports whether Shutdown has closed the engine.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Calls returns the number of Do calls accepted so far.
func (e *Engine) Calls() int64 { return e.calls.Load() }

// Tasks returns the number of background tasks still running.
func (e *Engine) Tasks() int64 { return e.running.Load() }

// enter registers an in-flight call. It fails once the engine is closed.
func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	e.calls.Add(1)
	return true
}

// Do runs fn on the calling goroutine inside the engine and blocks until it
// returns. The context passed to fn is cancelled when the engine shuts down or
// CallTimeout elapses.
func Do[T any](e *Engine, op string, fn func(context.Context) (T, error)) (result T, err error) {
	if e == nil {
		return result, ErrNilEngine
	}
	if !e.enter() {
		return result, ErrClosed
	}
	defer e.inflight.Done()

	if e.cfg.Serialized {
		e.serial.Lock()
		defer e.serial.Unlock()
	}

	ctx := e.ctx
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("engine.name", e.cfg.Name),
			attribute.Bool("engine.serialized", e.cfg.Serialized),
		),
	)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseEngine, op, r)
			e.log.Error("call panicked", zap.String("op", op), zap.Any("panic", r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		debugf("%s: %s took %s (err=%v)", e.cfg.Name, op, time.Since(start), err)
	}()

	return fn(ctx)
}

// Run is Do for functions without a result.
func Run(e *Engine, op string, fn func(context.Context) error) error {
	_, err := Do(e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Spawn starts fn as a background task bound to the engine context.
func (e *Engine) Spawn(name string, fn func(context.Context) error) (*Task, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.spawnLocked(name, fn), nil
}

// spawnLocked starts a task. Caller holds e.mu.
func (e *Engine) spawnLocked(name string, fn func(context.Context) error) *Task {
	ctx, cancel := context.WithCancel(e.ctx)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.tasks.Add(1)
	e.running.Add(1)
	go func() {
		defer e.tasks.Done()
		defer e.running.Add(-1)
		defer cancel()

		var err error
		defer func() {
			if r := recover(); r != nil {
				err = errors.Panic(errors.PhaseEngine, name, r)
				e.log.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
			}
			t.finish(err)
		}()

		err = fn(ctx)
	}()

	debugf("%s: spawned task %s", e.cfg.Name, name)
	return t
}

// Shutdown closes the engine. It runs the shutdown delay task, waits for its
// completion signal, cancels every task and waits up to DrainTimeout for
// in-flight work. A second call returns ErrClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return ErrNilEngine
	}

	e.mu.Lock()
	if e.closed || e.shutting {
		e.mu.Unlock()
		return ErrClosed
	}
	e.shutting = true
	grace := e.cfg.ShutdownGrace
	delay := e.spawnLocked("shutdown-delay", func(ctx context.Context) error {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		return nil
	})
	e.mu.Unlock()

	select {
	case <-delay.Done():
	case <-ctx.Done():
		e.log.Warn("shutdown delay interrupted", zap.Error(ctx.Err()))
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	drained := make(chan struct{})
	go func() {
		e.inflight.Wait()
		e.tasks.Wait()
		close(drained)
	}()

	timer := time.NewTimer(e.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		e.log.Debug("engine shut down")
		return nil
	case <-timer.C:
		e.log.Warn("engine shut down with work still running", zap.Int64("tasks", e.running.Load()))
		return fmt.Errorf("%w after %s", ErrDrainTimeout, e.cfg.DrainTimeout)
	}
}
