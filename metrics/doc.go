// Package metrics exposes Prometheus collectors for bridge calls, live
// handles and server variable writes.
package metrics
