// Package client manages OPC UA client connections and wraps the blocking
// operations a synchronous host needs.
//
// # Lifecycle
//
// A Client moves through these states:
//
//	Unconnected → Connecting → Connected → Running → Disconnecting → Closed
//
// Connect opens a session and returns it with an unstarted EventLoop. Spawn
// the loop on an engine to receive subscription notifications; ConnectSimple
// does both and waits until the transport reports connected. A Client owns at
// most one live session at a time.
//
// Disconnect is two-phase. It first signals: subscriptions are cancelled,
// the remote session is closed and the loop task is cancelled. It then waits
// for the loop with the configured disconnect timeout, so a stuck loop fails
// with engine.ErrJoinTimeout instead of blocking the caller.
//
// # Node References
//
// Hosts pass node ids as a kind tag plus namespace and identifier:
//
//	client.NumericNode(0, 2253)       // kind 1
//	client.StringNode(1, "Temp")      // kind 2
//	client.TextNode("ns=1;s=Temp")    // kind 3
//
// # Typed Reads
//
// Reads are strict. Reading a Double node as Int32 fails with
// scalar.ErrTypeMismatch; no widening or parsing is attempted.
//
//	v, err := client.Read[float64](ctx, session, client.StringNode(1, "Temp"))
package client
