// Package opcuabridge lets a synchronous host drive OPC UA client sessions and
// an embedded OPC UA server without running an event loop itself.
//
// Every host call is a plain blocking function: it enters an execution
// engine, awaits one or more network operations and returns a status code
// plus output handles, scalars or buffers.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	opcuabridge/         Root package with host capability interfaces
//	├── bridge/          Boundary: opaque handles in, status codes out
//	├── engine/          Execution engine: blocking calls, tasks, shutdown
//	├── client/          Connection lifecycle and blocking client operations
//	├── server/          Embedded server lifecycle and node manager
//	├── scalar/          Host type codes and strict OPC UA scalar mapping
//	├── resource/        Generational handle table
//	├── config/          YAML configuration
//	├── metrics/         Prometheus collectors
//	├── wasmhost/        WebAssembly host module exposing the bridge
//	├── errors/          Structured errors and host status codes
//	└── cmd/opcua-bridge CLI: serve, read, write, browse, run wasm guests
//
// # Quick Start
//
// Start a server and read a variable back through a client session:
//
//	b := bridge.New()
//
//	var rt, srv, handle, nodes resource.Handle
//	b.CreateServerRuntime(&rt)
//	b.BuildServer("", rt, &srv, &handle, &nodes)
//
//	var demo, temp resource.Handle
//	b.AddFolder(nodes, "Demo", "Demo", "Demo", &demo)
//	b.AddVariable(nodes, demo, "Temp", "Temp", "Temp", int32(scalar.Double), &temp)
//	b.WriteVariableDouble(nodes, temp, 36.6)
//
//	var stop, thread resource.Handle
//	b.StartServer(rt, srv, &stop, &thread)
//
//	var ns uint16
//	b.ServerNamespace(handle, &ns)
//
//	var eng, cl, sess, loop resource.Handle
//	b.CreateEngine(&eng)
//	b.BuildClient("", &cl)
//	b.ConnectSimple(eng, cl, "opc.tcp://localhost:4855", &sess, &loop)
//
//	var v float64
//	b.ReadDouble(eng, sess, client.StringNode(ns, "Temp"), &v) // 36.6
//
// # Host Capabilities
//
// The bridge never touches host memory directly. Outputs that do not fit in
// a scalar go through two primitives: resize-to-length and copy-bytes-in
// (Buffer), or resize-to-count and set-record (RecordArray). Every operation
// resizes before it copies.
//
// # Thread Safety
//
// A Bridge is safe for concurrent use. Calls on a serialized engine (the
// server runtime) run one at a time.
package opcuabridge
