package bridge

import (
	"github.com/wippyai/opcua-bridge/errors"
)

var (
	ErrBridgeClosed   = errors.Sentinel(errors.PhaseBoundary, errors.KindClosed, errors.StatusInvalidRuntime, "bridge is closed")
	ErrNilOutput      = errors.Sentinel(errors.PhaseBoundary, errors.KindNilPointer, errors.StatusNullPointer, "output pointer is nil")
	ErrInUse          = errors.Sentinel(errors.PhaseBoundary, errors.KindBusy, errors.StatusInvalidArgument, "resource is still in use")
	ErrWrongDestroyer = errors.Sentinel(errors.PhaseBoundary, errors.KindInvalidArgument, errors.StatusInvalidReference, "resource has a dedicated destroy operation")
)
