// Package engine provides the execution engine that lets a synchronous caller
// drive asynchronous OPC UA work.
//
// An Engine owns a root context, a set of background tasks and a count of
// in-flight blocking calls. Hosts never see it directly; the bridge stores it
// behind a resource handle.
//
// # Blocking Calls
//
// Do runs one unit of work on the calling goroutine and returns its result:
//
//	v, err := engine.Do(e, "read", func(ctx context.Context) (float64, error) {
//	    return session.ReadScalar(ctx, ref, scalar.Double)
//	})
//
// Do rejects nil and closed engines without running the function, converts
// panics into ErrPanic and wraps the call in a trace span. A serialized engine
// (the server runtime) runs at most one Do at a time.
//
// # Background Tasks
//
// Spawn starts a Task bound to the engine context. Client event loops and
// server threads are tasks. A task is cancelled by Task.Cancel or by engine
// shutdown and can be joined with a deadline.
//
// # Shutdown
//
// Shutdown first runs a short delay task so that work scheduled just before
// the call gets a chance to finish, then closes the engine, cancels its
// context and waits up to DrainTimeout for calls and tasks to return. Every
// later operation on the engine fails with ErrClosed.
package engine
