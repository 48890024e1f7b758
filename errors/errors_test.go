package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseClient,
				Kind:   KindRead,
				Op:     "read",
				Node:   "ns=1;s=Temp",
				Detail: "bad status",
			},
			contains: []string{"[client]", "read", "in read", "at ns=1;s=Temp", "bad status"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseEngine,
				Kind:  KindClosed,
			},
			contains: []string{"[engine]", "closed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseServer,
				Kind:   KindStart,
				Detail: "listen",
				Cause:  errors.New("address in use"),
			},
			contains: []string{"[server]", "start", "listen", "caused by", "address in use"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseClient, KindConnect, cause, "dial")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	target := &Error{Phase: PhaseClient, Kind: KindConnect}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match phase and kind")
	}

	other := &Error{Phase: PhaseServer, Kind: KindConnect}
	if errors.Is(err, other) {
		t.Error("errors.Is should not match a different phase")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseClient, KindBrowse).
		Op("browse").
		Node("i=85").
		Value(3).
		Status(StatusBrowseFailed).
		Detail("result %d of %d", 1, 2).
		Build()

	if err.Op != "browse" || err.Node != "i=85" || err.Value != 3 {
		t.Fatalf("builder fields not set: %+v", err)
	}
	if err.Detail != "result 1 of 2" {
		t.Errorf("unexpected detail %q", err.Detail)
	}
	if StatusOf(err) != StatusBrowseFailed {
		t.Errorf("expected StatusBrowseFailed, got %v", StatusOf(err))
	}
}

func TestStatusOf(t *testing.T) {
	sentinel := Sentinel(PhaseEngine, KindClosed, StatusInvalidRuntime, "engine closed")

	tests := []struct {
		err  error
		name string
		want Status
	}{
		{nil, "nil", StatusOK},
		{errors.New("plain"), "plain error", StatusFailed},
		{sentinel, "sentinel", StatusInvalidRuntime},
		{fmt.Errorf("do read: %w", sentinel), "wrapped sentinel", StatusInvalidRuntime},
		{Wrap(PhaseClient, KindRead, sentinel, "no status on wrapper"), "status from cause", StatusInvalidRuntime},
		{Wrap(PhaseClient, KindRead, errors.New("x"), "no status anywhere"), "no status", StatusFailed},
		{TypeMismatch(PhaseType, "ns=1;s=S", "String", "Int32"), "type mismatch", StatusTypeMismatch},
		{InvalidHandle("connect", 7, StatusInvalidClientRef), "invalid handle", StatusInvalidClientRef},
		{NilPointer(PhaseBoundary, "browse", "records"), "nil pointer", StatusNullPointer},
		{InvalidUTF8(PhaseHost, "connect", []byte{0xff}), "utf8", StatusStringConversion},
		{Panic(PhaseBoundary, "read", "boom"), "panic", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	if StatusTypeMismatch.String() != "TypeMismatch" {
		t.Errorf("unexpected name %q", StatusTypeMismatch.String())
	}
	if Status(42).String() != "Status(42)" {
		t.Errorf("unexpected name %q", Status(42).String())
	}
	if !StatusInvalidRuntime.BridgeLevel() || StatusReadFailed.BridgeLevel() {
		t.Error("BridgeLevel classification is wrong")
	}
	if !StatusOK.OK() || StatusFailed.OK() {
		t.Error("OK classification is wrong")
	}
}
