package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wippyai/opcua-bridge/server"
)

// newRouter serves health, metrics, a JSON snapshot of every variable and
// the live WebSocket feed.
func newRouter(running func() bool, nodes *server.NodeManager, feed http.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !running() {
			http.Error(w, "server not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/nodes", func(w http.ResponseWriter, req *http.Request) {
		snap := nodes.Snapshot()
		out := make([]FeedMessage, len(snap))
		for i, c := range snap {
			out[i] = feedMessage(c)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	r.Handle("/ws", feed)
	return r
}
