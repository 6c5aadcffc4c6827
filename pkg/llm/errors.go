package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies LLM failures for logging and retry decisions.
type ErrorType string

const (
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeTimeout  ErrorType = "timeout"
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a structured LLM error with classification.
type Error struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error into a structured Error so all
// callers handle provider failures consistently.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request timed out", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeTimeout, "request cancelled", false, err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "404") && strings.Contains(lower, "model"),
		strings.Contains(lower, "model not found"),
		strings.Contains(lower, "does not exist"):
		return NewError(ErrorTypeModel, "model not found", false, err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return NewError(ErrorTypeEndpoint, "rate limited", true, err)
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return NewError(ErrorTypeEndpoint, "server error", true, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return NewError(ErrorTypeTimeout, "request timed out", true, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return NewError(ErrorTypeEndpoint, "endpoint unreachable", true, err)
	default:
		return NewError(ErrorTypeUnknown, "llm request failed", false, err)
	}
}
