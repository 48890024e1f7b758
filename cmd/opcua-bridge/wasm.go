package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/opcua-bridge/bridge"
	"github.com/wippyai/opcua-bridge/wasmhost"
)

func wasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wasm",
		Short: "WebAssembly guest tools",
	}
	cmd.AddCommand(wasmRunCmd(), wasmExportsCmd())
	return cmd
}

func wasmRunCmd() *cobra.Command {
	var (
		entry string
		env   []string
	)

	cmd := &cobra.Command{
		Use:   "run <file.wasm> [args...]",
		Short: "Run a WASI guest linked against the opcua host module",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			vars := make(map[string]string, len(env))
			for _, kv := range env {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("env %q: want KEY=VALUE", kv)
				}
				vars[k] = v
			}

			b := bridge.New()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = b.Close(ctx)
			}()

			return wasmhost.New(b).Run(cmd.Context(), data, wasmhost.RunConfig{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
				Args:   args,
				Env:    vars,
				Entry:  entry,
			})
		},
	}
	cmd.Flags().StringVarP(&entry, "func", "f", "", "Exported function to call instead of _start")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	return cmd
}

func wasmExportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exports",
		Short: "List the functions of the opcua host module",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range wasmhost.New(nil).Exports() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s.%s\n", wasmhost.ModuleName, name)
			}
		},
	}
}
