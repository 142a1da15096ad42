package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the transport.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError represents a NikoHealth API error with additional context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nikohealth %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("nikohealth %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassAuth:
		// Credential problems don't fix themselves; surface immediately.
		return false
	case ErrorClassClient:
		// 4xx errors should NOT be retried.
		return false
	case ErrorClassServer:
		// 5xx server errors should be retried.
		return true
	case ErrorClassNetwork:
		// Network errors should be retried.
		return true
	default:
		return false
	}
}
