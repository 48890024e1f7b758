package client

import (
	"github.com/wippyai/opcua-bridge/errors"
)

var (
	ErrInvalidURL           = errors.Sentinel(errors.PhaseClient, errors.KindInvalidURL, errors.StatusInvalidArgument, "endpoint url must be opc.tcp://host:port")
	ErrLoopMismatch         = errors.Sentinel(errors.PhaseClient, errors.KindInvalidArgument, errors.StatusInvalidArgument, "event loop belongs to another session")
	ErrNoMatchingEndpoint   = errors.Sentinel(errors.PhaseClient, errors.KindNoEndpoint, errors.StatusConnectFailed, "no endpoint with security None and anonymous identity")
	ErrConnectFailed        = errors.Sentinel(errors.PhaseClient, errors.KindConnect, errors.StatusConnectFailed, "connect failed")
	ErrSessionActive        = errors.Sentinel(errors.PhaseClient, errors.KindBusy, errors.StatusConnectFailed, "client already has a live session")
	ErrSessionClosed        = errors.Sentinel(errors.PhaseClient, errors.KindClosed, errors.StatusInvalidClientRef, "session is disconnected")
	ErrLoopStarted          = errors.Sentinel(errors.PhaseClient, errors.KindStart, errors.StatusFailed, "event loop already started")
	ErrInvalidNodeKind      = errors.Sentinel(errors.PhaseClient, errors.KindInvalidType, errors.StatusInvalidType, "node id kind must be 1 (numeric), 2 (string) or 3 (text)")
	ErrInvalidNodeID        = errors.Sentinel(errors.PhaseClient, errors.KindInvalidNodeID, errors.StatusInvalidArgument, "malformed node id")
	ErrNoResult             = errors.Sentinel(errors.PhaseClient, errors.KindNoResult, errors.StatusNoResult, "server returned no result")
	ErrNoValue              = errors.Sentinel(errors.PhaseClient, errors.KindNoValue, errors.StatusNoValue, "result carries no value")
	ErrReadFailed           = errors.Sentinel(errors.PhaseClient, errors.KindRead, errors.StatusReadFailed, "read failed")
	ErrWriteFailed          = errors.Sentinel(errors.PhaseClient, errors.KindWrite, errors.StatusWriteFailed, "write failed")
	ErrBrowseFailed         = errors.Sentinel(errors.PhaseClient, errors.KindBrowse, errors.StatusBrowseFailed, "browse failed")
	ErrSubscribeFailed      = errors.Sentinel(errors.PhaseClient, errors.KindSubscribe, errors.StatusSubscribeFailed, "subscribe failed")
	ErrSubscriptionNotFound = errors.Sentinel(errors.PhaseClient, errors.KindNotFound, errors.StatusSubscriptionNotFound, "no such subscription")
)
