package types

import "fmt"

// ConfigError reports a configuration or wiring problem that must stop the
// process. Each code maps to a distinct exit status.
type ConfigError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	prefix := e.Code
	if e.Field != "" {
		prefix = fmt.Sprintf("%s (%s)", e.Code, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit status for the error.
func (e *ConfigError) ExitCode() int {
	switch e.Code {
	case ErrCodeMissingElement:
		return ExitPipeline
	case ErrCodeBadElement:
		return ExitElement
	default:
		return ExitArgs
	}
}

// Error codes
const (
	ErrCodeInvalidBounds  = "INVALID_BOUNDS"
	ErrCodeInvalidSteps   = "INVALID_STEPS"
	ErrCodeInvalidOption  = "INVALID_OPTION"
	ErrCodeMissingElement = "MISSING_ELEMENT"
	ErrCodeBadElement     = "BAD_ELEMENT"
)

// NewConfigError creates a new configuration error.
func NewConfigError(code, field, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Field:   field,
		Message: message,
	}
}
