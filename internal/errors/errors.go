// Package errors provides structured error types for the inspector MCP server.
// These errors carry hints that tell the calling agent how to recover when a
// request against a running Flutter app fails.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeConnectFailed       ErrorCode = "CONNECT_FAILED"
	CodeInspectorNotFound   ErrorCode = "INSPECTOR_NOT_FOUND"

	// Protocol errors
	CodeRPCError         ErrorCode = "RPC_ERROR"
	CodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	CodeDecodeFailed     ErrorCode = "DECODE_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeUnsupported      ErrorCode = "UNSUPPORTED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Permission and configuration errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
)

// InspectorError is a structured error type that includes enough information
// for the agent to understand what went wrong and how to fix it.
type InspectorError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *InspectorError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *InspectorError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *InspectorError) WithDetails(key string, value interface{}) *InspectorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *InspectorError {
	return &InspectorError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use inspector_list_sessions to see active sessions, or inspector_connect to open a new one.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *InspectorError {
	return &InspectorError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use inspector_disconnect to close an existing session before opening a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// ConnectFailed creates an error when the VM service or debug adapter is unreachable
func ConnectFailed(target string, err error) *InspectorError {
	return &InspectorError{
		Code:    CodeConnectFailed,
		Message: fmt.Sprintf("failed to connect to %s: %v", target, err),
		Hint:    "Check that the app is running in debug or profile mode and that the VM service URI (ws://.../ws) printed by 'flutter run' is correct.",
		Cause:   err,
		Details: map[string]interface{}{
			"target": target,
		},
	}
}

// InspectorNotFound creates an error when the isolate does not load the widget inspector
func InspectorNotFound(reason string) *InspectorError {
	return &InspectorError{
		Code:    CodeInspectorNotFound,
		Message: fmt.Sprintf("widget inspector not available: %s", reason),
		Hint:    "The connected isolate does not look like a Flutter app. Make sure the app was started with 'flutter run' in debug mode.",
	}
}

// --- Protocol Errors ---

// RPCFailed creates an error for a named remote method that reported a failure
func RPCFailed(method string, err error) *InspectorError {
	return &InspectorError{
		Code:    CodeRPCError,
		Message: fmt.Sprintf("RPCError calling %s: %v", method, err),
		Hint:    "The app rejected the request. The widget may have been rebuilt since the handle was obtained; fetch the tree again.",
		Cause:   err,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// MalformedPayload creates an error for a response whose shape does not match the protocol
func MalformedPayload(what string, err error) *InspectorError {
	return &InspectorError{
		Code:    CodeMalformedPayload,
		Message: fmt.Sprintf("malformed %s payload: %v", what, err),
		Hint:    "The Flutter framework version may be incompatible with this client.",
		Cause:   err,
	}
}

// DecodeFailed creates an error for payloads that parse but cannot be decoded (e.g. image bytes)
func DecodeFailed(what string, err error) *InspectorError {
	return &InspectorError{
		Code:    CodeDecodeFailed,
		Message: fmt.Sprintf("error decoding %s: %v", what, err),
		Cause:   err,
	}
}

// Timeout creates an error for an operation that did not complete in time
func Timeout(operation string, err error) *InspectorError {
	return &InspectorError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Hint:    "The app may be paused at a breakpoint or busy rendering. Resume it or retry.",
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Unsupported creates an error for features the connected framework does not provide
func Unsupported(feature, method string) *InspectorError {
	return &InspectorError{
		Code:    CodeUnsupported,
		Message: fmt.Sprintf("%s is not supported by this version of Flutter", feature),
		Hint:    fmt.Sprintf("Upgrade Flutter; the inspector service does not implement '%s'.", method),
		Details: map[string]interface{}{
			"feature": feature,
			"method":  method,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *InspectorError {
	return &InspectorError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *InspectorError {
	return &InspectorError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// PermissionDenied creates an error for operations disabled by the server mode
func PermissionDenied(operation, mode string) *InspectorError {
	var hint string
	switch operation {
	case "mutate":
		hint = "Changing widget properties is disabled in read-only mode. Start the server with --mode full."
	case "spawn":
		hint = "Spawning 'flutter debug-adapter' is disabled. Enable 'allowSpawn' in the configuration."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &InspectorError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// ConfigInvalid creates an error for an unreadable or inconsistent configuration file
func ConfigInvalid(path, reason string) *InspectorError {
	return &InspectorError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Configuration files may be JSON (comments allowed) or YAML; check the syntax and field names.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *InspectorError {
	return &InspectorError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates an InspectorError from a generic error, preserving any existing structure
func FromError(err error) *InspectorError {
	var ie *InspectorError
	if stderrors.As(err, &ie) {
		return ie
	}
	return &InspectorError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

// HasCode reports whether err is an InspectorError with the given code
func HasCode(err error, code ErrorCode) bool {
	var ie *InspectorError
	return stderrors.As(err, &ie) && ie.Code == code
}
