// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for the relay.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies relay errors for monitoring, HTTP mapping and tool results.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates a missing or malformed required input.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeUpstream indicates a provider or planner call failed.
	CodeUpstream ErrorCode = "UPSTREAM_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeUnknownTool indicates a tool name absent from the registry.
	CodeUnknownTool ErrorCode = "UNKNOWN_TOOL"

	// CodeConfiguration indicates a required credential or setting is absent.
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeContextLost indicates the caller went away mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"
)

// RelayError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type RelayError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *RelayError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *RelayError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new RelayError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *RelayError {
	return &RelayError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *RelayError) WithContext(key string, value interface{}) *RelayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *RelayError) WithAttribute(key, value string) *RelayError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *RelayError) WithRecoverable(recoverable bool) *RelayError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *RelayError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// Detail returns the message followed by the cause, without the code prefix.
// It is what end users see in tool results.
func (e *RelayError) Detail() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// AsRelayError finds a RelayError in the chain or wraps err as internal.
func AsRelayError(err error) *RelayError {
	if err == nil {
		return nil
	}
	var re *RelayError
	if stderrors.As(err, &re) {
		return re
	}
	return New(CodeInternal, "internal error", err)
}

// CodeOf returns the code of the first RelayError in the chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var re *RelayError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var re *RelayError
	if stderrors.As(err, &re) && re.StatusCode != 0 {
		return re.StatusCode
	}
	return http.StatusInternalServerError
}

// NewInvalidInput creates an argument error.
func NewInvalidInput(msg string) *RelayError {
	return New(CodeInvalidInput, msg, nil).WithRecoverable(false)
}

// NewUpstream wraps a provider failure.
func NewUpstream(provider, msg string, cause error) *RelayError {
	return New(CodeUpstream, msg, cause).
		WithContext("provider", provider).
		WithAttribute("provider.name", provider).
		WithRecoverable(true)
}

// NewTimeout creates a timeout error for the named operation.
func NewTimeout(operation string, cause error) *RelayError {
	return New(CodeTimeout, operation+" timed out", cause).
		WithContext("operation", operation).
		WithRecoverable(false)
}

// NewUnknownTool creates the defect raised when a tool name is not registered.
func NewUnknownTool(name string) *RelayError {
	return New(CodeUnknownTool, fmt.Sprintf("unknown tool %q", name), nil).
		WithContext("tool_name", name).
		WithRecoverable(false)
}

// NewConfiguration creates the error raised when a required setting is absent.
func NewConfiguration(setting string) *RelayError {
	return New(CodeConfiguration, setting+" is not configured", nil).
		WithContext("setting", setting).
		WithRecoverable(false)
}

// NewNotFound creates a not found error.
func NewNotFound(resource, name string) *RelayError {
	return New(CodeNotFound, resource+" not found", nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeContextLost:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// KindOf names the error kind reported in tool results.
func KindOf(err error) string {
	switch CodeOf(err) {
	case "":
		return ""
	case CodeInvalidInput:
		return "ArgumentError"
	case CodeUpstream:
		return "UpstreamError"
	case CodeTimeout, CodeContextLost:
		return "TimeoutError"
	case CodeUnknownTool:
		return "UnknownToolError"
	case CodeConfiguration:
		return "ConfigurationError"
	case CodeNotFound:
		return "NotFoundError"
	default:
		return "InternalError"
	}
}
