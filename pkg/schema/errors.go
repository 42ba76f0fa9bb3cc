package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeLaunch             = "LAUNCH_ERROR"
	ErrCodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeNodeFailed         = "NODE_FAILED"
	ErrCodeUnresolvedVariable = "UNRESOLVED_VARIABLE"
	ErrCodeInvalidControlFlow = "INVALID_CONTROL_FLOW"
	ErrCodeDepthExceeded      = "DEPTH_EXCEEDED"
	ErrCodeTimeout            = "TIMEOUT_ERROR"
	ErrCodeRetryExhausted     = "RETRY_EXHAUSTED"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeEmptyGroup         = "EMPTY_GROUP"
	ErrCodeVault              = "VAULT_ERROR"
)

// UmbraError is the structured error type for all engine operations.
type UmbraError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *UmbraError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *UmbraError) Unwrap() error {
	return e.Cause
}

// NewError creates a new UmbraError.
func NewError(code, message string) *UmbraError {
	return &UmbraError{Code: code, Message: message}
}

// NewErrorf creates a new UmbraError with a formatted message.
func NewErrorf(code, format string, args ...any) *UmbraError {
	return &UmbraError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *UmbraError) WithNode(nodeID string) *UmbraError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *UmbraError) WithCause(err error) *UmbraError {
	e.Cause = err
	return e
}

// IsRetryable reports whether a retry node may re-attempt after this error.
// Deterministic failures (bad input, missing resources, control-flow misuse)
// are never retried.
func (e *UmbraError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeConflict,
		ErrCodeUnresolvedVariable, ErrCodeInvalidControlFlow,
		ErrCodeDepthExceeded, ErrCodeCancelled, ErrCodeEmptyGroup:
		return false
	}
	return true
}

// WithDetails attaches key-value details.
func (e *UmbraError) WithDetails(details map[string]any) *UmbraError {
	e.Details = details
	return e
}
