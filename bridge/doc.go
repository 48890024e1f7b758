// Package bridge is the host-facing surface of the module.
//
// A Bridge hands out opaque handles for engines, clients, sessions, event
// loops, servers and nodes, and every operation returns a Status: 0 for
// success, a positive code in the 5000 range for a broken call contract
// (stale handle, nil output, unknown type code) and a negative code for an
// operation that failed.
//
// Handles are generational. A handle that has been released, shut down or
// disconnected fails every later call instead of reaching a freed object.
//
// Output handles are zero unless the call succeeds. Host buffers are always resized to
// the exact result length before any data is copied.
package bridge
