// Package errors provides structured error types for the OPC UA bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Every Error also carries the host Status code it maps to, so the
// boundary layer can convert any error chain into the integer the host sees:
//
//	err := errors.New(errors.PhaseClient, errors.KindRead).
//		Op("read").
//		Node("ns=1;s=Temp").
//		Status(errors.StatusReadFailed).
//		Cause(cause).
//		Build()
//
//	status := errors.StatusOf(fmt.Errorf("read temp: %w", err)) // StatusReadFailed
//
// Packages declare their sentinel errors with the convenience constructors
// and wrap them with fmt.Errorf("%w") to add context. All errors implement
// the standard error interface and support errors.Is/As.
//
// # Status codes
//
// Status 0 is success. Positive codes in the 5000 range are bridge-level
// contract violations (invalid handle, invalid type, null pointer). Negative
// codes are operation failures (connect, read, browse, subscribe). Errors
// that carry no Status map to StatusFailed.
package errors
