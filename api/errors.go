// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types and error handling utilities for the tofu engine.

package api

import "fmt"

// Common errors used across the engine. Lifecycle outcomes (timeout,
// interrupt, closed) are distinct sentinels and are never conflated.
var (
	ErrTimeout           = fmt.Errorf("operation timed out")
	ErrInterrupted       = fmt.Errorf("wait interrupted")
	ErrMailboxClosed     = fmt.Errorf("mailbox is closed")
	ErrEngineDown        = fmt.Errorf("engine is shut down")
	ErrPoolEmpty         = fmt.Errorf("pool has no free message")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrEmptyHandle       = fmt.Errorf("message handle is empty")
	ErrNoRoute           = fmt.Errorf("no route for channel")
	ErrNotConnected      = fmt.Errorf("no connection bound")
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrNotSupported      = fmt.Errorf("operation not supported")
	ErrChannelsExhausted = fmt.Errorf("channel numbers exhausted")
	ErrChannelTaken      = fmt.Errorf("channel number already taken")
)

// ErrorCode represents specific error conditions in the engine.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeProtocol
	ErrCodeRouting
	ErrCodeLifecycle
	ErrCodeResourceExhausted
	ErrCodeInvalidArgument
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ProtocolError builds a structured protocol violation error. Protocol
// errors always close the offending connection; they never crash the
// reactor.
func ProtocolError(message string) *Error {
	return NewError(ErrCodeProtocol, message)
}
