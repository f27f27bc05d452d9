// Package errors provides centralized error definitions and error handling utilities
// for windowbus. It defines the sentinel errors raised by the bus, the relay and the
// messenger transports, typed errors carrying relay or transport context, and
// classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - RelayError: a relayed message could not be sent or accepted
//   - TransportError: a messenger transport failed (dial, read, write, publish)
//
// # Usage
//
//	err := errors.NewTransportError("websocket", "dial", cause).WithAddr("ws://peer:7420/ws")
//
//	if errors.Is(err, errors.ErrMessengerClosed) { ... }
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry (dial failures, timeouts)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Bus and relay sentinel errors
var (
	// ErrNilMessenger indicates that a messenger was required but not provided.
	ErrNilMessenger = New("must provide a messenger")
	// ErrMissingMessengerID indicates that a messenger reported an empty id.
	ErrMissingMessengerID = New("messenger id is empty")
	// ErrInvalidPayload indicates that a dispatch payload was not a string.
	ErrInvalidPayload = New("payload must be a string")
	// ErrMalformedRelayMessage indicates that an inbound relay body could not be decoded.
	ErrMalformedRelayMessage = New("malformed relay message")
	// ErrClientClosed indicates that a bus client has already been torn down.
	ErrClientClosed = New("bus client is closed")
)

// Messenger sentinel errors
var (
	// ErrMessengerClosed indicates a send on a messenger that has shut down.
	ErrMessengerClosed = New("messenger is closed")
	// ErrSendQueueFull indicates that a messenger's outbound queue is saturated.
	ErrSendQueueFull = New("messenger send queue is full")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BusError is the base interface for all windowbus errors.
type BusError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// RelayError describes a failure to move a relayed event across a messenger.
//
// Example:
//
//	err := errors.NewRelayError("decode inbound", errors.ErrMalformedRelayMessage).
//		WithMessengerID("ws-1").WithEventName("cart.updated")
type RelayError struct {
	baseError
	MessengerID string
	EventName   string
}

// NewRelayError creates a new RelayError. Relay errors are warnings: the
// relay drops the affected message and keeps running.
func NewRelayError(message string, cause error) *RelayError {
	return &RelayError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithMessengerID adds the messenger id to the error context.
func (e *RelayError) WithMessengerID(id string) *RelayError {
	e.MessengerID = id
	return e
}

// WithEventName adds the event name to the error context.
func (e *RelayError) WithEventName(name string) *RelayError {
	e.EventName = name
	return e
}

// Error returns the formatted error message.
func (e *RelayError) Error() string {
	var parts []string
	if e.MessengerID != "" {
		parts = append(parts, fmt.Sprintf("messenger=%s", e.MessengerID))
	}
	if e.EventName != "" {
		parts = append(parts, fmt.Sprintf("event=%s", e.EventName))
	}
	return formatWithContext("relay error", parts, e.message, e.cause)
}

// TransportError describes a failure inside a messenger transport.
//
// Example:
//
//	err := errors.NewTransportError("websocket", "dial", cause).WithAddr("ws://localhost:7420/ws")
type TransportError struct {
	baseError
	Transport string
	Op        string
	Addr      string
}

// NewTransportError creates a new TransportError. Dial failures are marked
// retryable since peers routinely come up after the node that dials them.
func NewTransportError(transport, op string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:   op + " failed",
			cause:     cause,
			severity:  SeverityError,
			retryable: op == "dial" || op == "connect",
		},
		Transport: transport,
		Op:        op,
	}
}

// WithAddr adds the remote address to the error context.
func (e *TransportError) WithAddr(addr string) *TransportError {
	e.Addr = addr
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	parts := []string{fmt.Sprintf("transport=%s", e.Transport)}
	if e.Addr != "" {
		parts = append(parts, fmt.Sprintf("addr=%s", e.Addr))
	}
	return formatWithContext("transport error", parts, e.message, e.cause)
}

func formatWithContext(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var busErr BusError
	if As(err, &busErr) {
		return busErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// GetSeverity returns the severity level of the error.
// Unknown errors default to SeverityError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var busErr BusError
	if As(err, &busErr) {
		return busErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with a context message.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
