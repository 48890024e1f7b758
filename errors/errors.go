package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseBoundary Phase = "boundary" // host call validation
	PhaseEngine   Phase = "engine"   // execution engine
	PhaseClient   Phase = "client"   // client session operations
	PhaseServer   Phase = "server"   // server lifecycle and address space
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseType     Phase = "type"     // scalar type mapping
	PhaseHost     Phase = "host"     // host buffer capabilities
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle   Kind = "invalid_handle"
	KindInvalidArgument Kind = "invalid_argument"
	KindInvalidType     Kind = "invalid_type"
	KindTypeMismatch    Kind = "type_mismatch"
	KindNilPointer      Kind = "nil_pointer"
	KindClosed          Kind = "closed"
	KindBusy            Kind = "busy"
	KindPanic           Kind = "panic"
	KindTimeout         Kind = "timeout"
	KindDrain           Kind = "drain"
	KindNoEndpoint      Kind = "no_endpoint"
	KindConnect         Kind = "connect"
	KindNoResult        Kind = "no_result"
	KindNoValue         Kind = "no_value"
	KindRead            Kind = "read"
	KindWrite           Kind = "write"
	KindBrowse          Kind = "browse"
	KindSubscribe       Kind = "subscribe"
	KindNotFound        Kind = "not_found"
	KindUnknownFolder   Kind = "unknown_folder"
	KindUnknownVariable Kind = "unknown_variable"
	KindDuplicate       Kind = "duplicate"
	KindStart           Kind = "start"
	KindInvalidConfig   Kind = "invalid_config"
	KindBuffer          Kind = "buffer"
	KindInvalidUTF8     Kind = "invalid_utf8"
	KindInvalidNodeID   Kind = "invalid_node_id"
	KindInvalidURL      Kind = "invalid_url"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Node   string
	Detail string
	Status Status
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Node != "" {
		b.WriteString(" at ")
		b.WriteString(e.Node)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the bridge operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Node sets the node id the operation targeted
func (b *Builder) Node(node string) *Builder {
	b.err.Node = node
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Status sets the host status code
func (b *Builder) Status(s Status) *Builder {
	b.err.Status = s
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Sentinel creates a package-level sentinel error with a fixed status
func Sentinel(phase Phase, kind Kind, status Status, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Status: status,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error between the stored and requested type
func TypeMismatch(phase Phase, node, stored, requested string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Node:   node,
		Status: StatusTypeMismatch,
		Detail: fmt.Sprintf("stored %s, requested %s", stored, requested),
	}
}

// InvalidHandle creates an error for a handle that failed its liveness check
func InvalidHandle(op string, handle uint32, status Status) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindInvalidHandle,
		Op:     op,
		Value:  handle,
		Status: status,
		Detail: fmt.Sprintf("handle %d is not live", handle),
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, op string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Op:     op,
		Status: StatusNullPointer,
		Detail: what + " is nil",
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, op string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Op:     op,
		Status: StatusStringConversion,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Panic converts a recovered panic value into an error
func Panic(phase Phase, op string, r any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Op:     op,
		Value:  r,
		Status: StatusFailed,
		Detail: fmt.Sprintf("recovered panic: %v", r),
	}
}

// StatusOf returns the host status code for an error chain.
// The outermost *Error with a non-zero Status wins.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for cur := err; cur != nil; {
		var e *Error
		if !errors.As(cur, &e) {
			break
		}
		if e.Status != StatusOK {
			return e.Status
		}
		cur = e.Cause
	}
	return StatusFailed
}

// Is is errors.Is re-exported so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As re-exported so callers need a single errors import
func As(err error, target any) bool {
	return errors.As(err, target)
}
