// Package server embeds an OPC UA server with a single node namespace.
//
// Build creates the server and its NodeManager; Start spawns the serving task
// on an engine and returns once the listener is up. The Handle stops the
// server cooperatively and the Thread observes when serving has ended.
//
// NodeManager is safe for concurrent use. Observers registered with OnChange
// run on the writing goroutine after the node lock has been released.
package server
