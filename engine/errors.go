package engine

import (
	"github.com/wippyai/opcua-bridge/errors"
)

var (
	ErrNilEngine    = errors.Sentinel(errors.PhaseEngine, errors.KindNilPointer, errors.StatusInvalidRuntime, "engine is nil")
	ErrClosed       = errors.Sentinel(errors.PhaseEngine, errors.KindClosed, errors.StatusInvalidRuntime, "engine is shut down")
	ErrPanic        = errors.Sentinel(errors.PhaseEngine, errors.KindPanic, errors.StatusFailed, "call panicked")
	ErrJoinTimeout  = errors.Sentinel(errors.PhaseEngine, errors.KindTimeout, errors.StatusDisconnectTimeout, "task did not finish in time")
	ErrDrainTimeout = errors.Sentinel(errors.PhaseEngine, errors.KindDrain, errors.StatusFailed, "in-flight work did not drain")
)
