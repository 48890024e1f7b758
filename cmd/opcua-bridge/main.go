// Command opcua-bridge serves an embedded OPC UA server, drives client sessions
// from the shell and runs WebAssembly guests against the bridge.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/opcua-bridge/bridge"
	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/server"
	"github.com/wippyai/opcua-bridge/wasmhost"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	logLevel string
	devLog   bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "opcua-bridge",
		Short: "Blocking OPC UA client and embedded server",
		Long: `opcua-bridge drives OPC UA client sessions and an embedded OPC UA
server through blocking calls.

  serve    run an embedded server with metrics and a live change feed
  read     read one variable
  write    write one variable
  info     print a node's value, display name and browse name
  browse   list the children of a node (-i for an interactive browser)
  wasm     run a WebAssembly guest linked against the opcua host module`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(flags)
			if err != nil {
				return err
			}
			setLoggers(log)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.devLog, "dev-log", false, "Human-readable development logging")

	rootCmd.AddCommand(
		serveCmd(),
		readCmd(),
		writeCmd(),
		infoCmd(),
		browseCmd(),
		wasmCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(flags globalFlags) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(flags.logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if flags.devLog {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// setLoggers installs log as the package logger everywhere.
func setLoggers(log *zap.Logger) {
	engine.SetLogger(log.Named("engine"))
	client.SetLogger(log.Named("client"))
	server.SetLogger(log.Named("server"))
	bridge.SetLogger(log.Named("bridge"))
	wasmhost.SetLogger(log.Named("wasm"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opcua-bridge %s (%s)\n", version, commit)
		},
	}
}
