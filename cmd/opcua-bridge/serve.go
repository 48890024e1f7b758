package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/bridge"
	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/metrics"
	"github.com/wippyai/opcua-bridge/scalar"
)

type serveOptions struct {
	config string
	http   string
	tick   time.Duration
	demo   bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an embedded OPC UA server",
		Long: `Run an embedded OPC UA server built from a YAML file (or defaults).

An HTTP listener exposes /healthz, /metrics, /nodes (JSON snapshot) and
/ws, a WebSocket feed of every variable write. With --demo the server
also hosts Demo/Temp (Double) and Demo/Count (Int32), and Count is
incremented every --tick.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "Server YAML file")
	cmd.Flags().StringVar(&opts.http, "http", "127.0.0.1:9100", "HTTP listen address")
	cmd.Flags().BoolVar(&opts.demo, "demo", false, "Add demo nodes and update them periodically")
	cmd.Flags().DurationVar(&opts.tick, "tick", time.Second, "Demo update interval")

	return cmd
}

// statusError turns a failed bridge status into an error.
func statusError(op string, st errors.Status) error {
	if st == errors.StatusOK {
		return nil
	}
	return fmt.Errorf("%s: %s (%d)", op, st, int32(st))
}

type demoNodes struct {
	nodes, temp, count bridge.Handle
}

func addDemoNodes(b *bridge.Bridge, nodes bridge.Handle) (demoNodes, error) {
	d := demoNodes{nodes: nodes}
	var folder bridge.Handle
	if err := statusError("add folder", b.AddFolder(nodes, "Demo", "Demo", "Demo", &folder)); err != nil {
		return d, err
	}
	if err := statusError("add Temp", b.AddVariable(nodes, folder, "Temp", "Temp", "Temperature", int32(scalar.Double), &d.temp)); err != nil {
		return d, err
	}
	if err := statusError("add Count", b.AddVariable(nodes, folder, "Count", "Count", "Count", int32(scalar.Int32), &d.count)); err != nil {
		return d, err
	}
	if err := statusError("write Temp", b.WriteVariableDouble(nodes, d.temp, 36.6)); err != nil {
		return d, err
	}
	return d, statusError("write Count", b.WriteVariableInt32(nodes, d.count, 42))
}

func (d demoNodes) run(ctx context.Context, b *bridge.Bridge, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	n := int32(42)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n++
			if st := b.WriteVariableInt32(d.nodes, d.count, n); st != errors.StatusOK {
				return
			}
		}
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	log := bridge.Logger().Named("serve")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg))

	b := bridge.New(bridge.WithMetrics(m))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			log.Warn("close bridge", zap.Error(err))
		}
	}()

	var rt, srv, handle, nodes bridge.Handle
	if err := statusError("create server runtime", b.CreateServerRuntime(&rt)); err != nil {
		return err
	}
	if err := statusError("build server", b.BuildServer(opts.config, rt, &srv, &handle, &nodes)); err != nil {
		return err
	}

	demoCtx, stopDemo := context.WithCancel(ctx)
	defer stopDemo()
	if opts.demo {
		d, err := addDemoNodes(b, nodes)
		if err != nil {
			return err
		}
		go d.run(demoCtx, b, opts.tick)
	}

	var token, thread bridge.Handle
	if err := statusError("start server", b.StartServer(rt, srv, &token, &thread)); err != nil {
		return err
	}

	var endpoint opcuabridge.Bytes
	var ns uint16
	_ = b.ServerEndpoint(handle, &endpoint)
	_ = b.ServerNamespace(handle, &ns)

	mgr, _ := b.Nodes(nodes)
	feed := NewFeed(mgr, m, log)
	defer feed.Close()

	running := func() bool {
		var ok bool
		return b.IsServerRunning(rt, thread, &ok) == errors.StatusOK && ok
	}
	httpSrv := &http.Server{
		Addr:              opts.http,
		Handler:           newRouter(running, mgr, feed, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("OPC UA server on %s (namespace %d)\n", endpoint.String(), ns)
	fmt.Printf("HTTP on http://%s (healthz, metrics, nodes, ws)\n", opts.http)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		runErr = fmt.Errorf("http: %w", runErr)
	}

	stopDemo()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := statusError("stop server", b.StopServer(rt, handle, thread)); err != nil {
		log.Warn("stop server", zap.Error(err))
	}
	return runErr
}
