package wasmhost

import (
	"context"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/errors"
)

// RunConfig configures a guest run.
type RunConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
	// Entry names an exported function to call after instantiation. When
	// empty the module's _start runs as a WASI command.
	Entry string
	Args  []string
}

// Run instantiates a core module with WASI preview1 and the opcua host
// module, then runs it to completion. A zero exit code is not an error.
func (h *Host) Run(ctx context.Context, wasm []byte, cfg RunConfig) error {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("instantiate wasi: %w", err)
	}
	if _, err := h.Instantiate(ctx, r); err != nil {
		return err
	}

	mc := wazero.NewModuleConfig().WithArgs(cfg.Args...)
	if cfg.Stdin != nil {
		mc = mc.WithStdin(cfg.Stdin)
	}
	if cfg.Stdout != nil {
		mc = mc.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mc = mc.WithStderr(cfg.Stderr)
	}
	for k, v := range cfg.Env {
		mc = mc.WithEnv(k, v)
	}
	if cfg.Entry != "" {
		mc = mc.WithStartFunctions()
	}

	mod, err := r.InstantiateWithConfig(ctx, wasm, mc)
	if err != nil {
		return exitStatus(err)
	}
	defer mod.Close(ctx)

	if cfg.Entry == "" {
		return nil
	}
	fn := mod.ExportedFunction(cfg.Entry)
	if fn == nil {
		return fmt.Errorf("guest exports no function %q", cfg.Entry)
	}
	h.log.Debug("calling guest entry", zap.String("entry", cfg.Entry))
	if _, err := fn.Call(ctx); err != nil {
		return exitStatus(err)
	}
	return nil
}

func exitStatus(err error) error {
	var exit *sys.ExitError
	if errors.As(err, &exit) && exit.ExitCode() == 0 {
		return nil
	}
	return fmt.Errorf("run guest: %w", err)
}
