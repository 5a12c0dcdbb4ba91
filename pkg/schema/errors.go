package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeParse         = "PARSE_ERROR"
	ErrCodeNoRoot        = "NO_ROOT"
	ErrCodeMultipleRoots = "MULTIPLE_ROOTS"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeDisconnected  = "DISCONNECTED_GRAPH"
	ErrCodeTypeMismatch  = "TYPE_MISMATCH"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeCancelled     = "CANCELLED"
	ErrCodeStore         = "STORE_ERROR"
)

// StratagemError is the structured error type for all stratagem operations.
type StratagemError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *StratagemError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StratagemError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StratagemError.
func NewError(code, message string) *StratagemError {
	return &StratagemError{Code: code, Message: message}
}

// NewErrorf creates a new StratagemError with a formatted message.
func NewErrorf(code, format string, args ...any) *StratagemError {
	return &StratagemError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *StratagemError) WithStep(stepID string) *StratagemError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *StratagemError) WithCause(err error) *StratagemError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StratagemError) WithDetails(details map[string]any) *StratagemError {
	e.Details = details
	return e
}
