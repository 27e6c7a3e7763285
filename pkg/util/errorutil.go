package util

import (
	"errors"
	"fmt"
)

// FlowError standardizes session-flow errors surfaced to callers.
type FlowError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches by code so sentinel comparisons survive wrapping and details.
func (e *FlowError) Is(target error) bool {
	var fe *FlowError
	if errors.As(target, &fe) {
		return e.Code == fe.Code
	}
	return false
}

// Sentinels for errors.Is checks against the taxonomy below.
var (
	ErrInvalidCredentials = &FlowError{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrIncorrectPin       = &FlowError{Code: "INCORRECT_PIN", Message: "incorrect pin"}
	ErrTokenInvalidated   = &FlowError{Code: "TOKEN_INVALIDATED", Message: "token invalidated"}
	ErrTransport          = &FlowError{Code: "TRANSPORT_ERROR", Message: "transport failure"}
	ErrStorage            = &FlowError{Code: "STORAGE_FAILURE", Message: "storage failure"}
	ErrPrecondition       = &FlowError{Code: "PRECONDITION_FAILED", Message: "operation not valid in current state"}
)

// NewFlowError constructs a FlowError.
func NewFlowError(code, message string, details map[string]any) *FlowError {
	return &FlowError{Code: code, Message: message, Details: details}
}

func NewInvalidCredentials(message string) error {
	if message == "" {
		message = "invalid credentials"
	}
	return NewFlowError("INVALID_CREDENTIALS", message, nil)
}

func NewIncorrectPin() error {
	return NewFlowError("INCORRECT_PIN", "incorrect pin", nil)
}

func NewTokenInvalidated(scope string) error {
	return NewFlowError("TOKEN_INVALIDATED", "token invalidated", map[string]any{"scope": scope})
}

func NewTransportError(err error) error {
	return &FlowError{Code: "TRANSPORT_ERROR", Message: "transport failure", Err: err}
}

func NewStorageFailure(err error) error {
	return &FlowError{Code: "STORAGE_FAILURE", Message: "storage failure", Err: err}
}

func NewPrecondition(message string) error {
	return NewFlowError("PRECONDITION_FAILED", message, nil)
}

// ToFlowError converts generic errors to FlowError, defaulting to transport.
func ToFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr
	}
	return &FlowError{Code: "TRANSPORT_ERROR", Message: "transport failure", Err: err}
}
