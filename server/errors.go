package server

import (
	"github.com/wippyai/opcua-bridge/errors"
)

var (
	ErrBuildFailed     = errors.Sentinel(errors.PhaseServer, errors.KindInvalidConfig, errors.StatusInvalidServerConfig, "server build failed")
	ErrUnknownFolder   = errors.Sentinel(errors.PhaseServer, errors.KindUnknownFolder, errors.StatusInvalidServerRef, "no such folder")
	ErrUnknownVariable = errors.Sentinel(errors.PhaseServer, errors.KindUnknownVariable, errors.StatusInvalidServerRef, "no such variable")
	ErrDuplicateNode   = errors.Sentinel(errors.PhaseServer, errors.KindDuplicate, errors.StatusInvalidArgument, "node id already in use")
	ErrAlreadyStarted  = errors.Sentinel(errors.PhaseServer, errors.KindBusy, errors.StatusStartFailed, "server already started")
	ErrRuntimeMismatch = errors.Sentinel(errors.PhaseServer, errors.KindInvalidHandle, errors.StatusInvalidRuntime, "server is bound to another runtime")
	ErrStartFailed     = errors.Sentinel(errors.PhaseServer, errors.KindStart, errors.StatusStartFailed, "server failed to start")
)
