package apperr

import (
	"errors"
	"fmt"
)

// ErrorType is the category of a failure in the answering pipeline.
type ErrorType string

const (
	ErrorTypeConfig            ErrorType = "config"
	ErrorTypeInvalidArgument   ErrorType = "invalid_argument"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeGenerationFailure ErrorType = "generation_failure"
	ErrorTypeEmptyIndex        ErrorType = "empty_index"
	ErrorTypeCancelled         ErrorType = "cancelled"
)

// DomainError is a categorised error with optional wrapped cause and details.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports a match when target is a DomainError of the same type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new domain error
func New(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is checks.
var (
	ErrConfig            = New(ErrorTypeConfig, "invalid configuration", nil)
	ErrInvalidArgument   = New(ErrorTypeInvalidArgument, "invalid argument", nil)
	ErrNotFound          = New(ErrorTypeNotFound, "not found", nil)
	ErrGenerationFailure = New(ErrorTypeGenerationFailure, "generation failed", nil)
	ErrEmptyIndex        = New(ErrorTypeEmptyIndex, "index is empty", nil)
	ErrCancelled         = New(ErrorTypeCancelled, "cancelled", nil)
)

func Config(message string, err error) *DomainError {
	return New(ErrorTypeConfig, message, err)
}

func InvalidArgument(message string) *DomainError {
	return New(ErrorTypeInvalidArgument, message, nil)
}

func NotFound(message string) *DomainError {
	return New(ErrorTypeNotFound, message, nil)
}

func GenerationFailure(message string, err error) *DomainError {
	return New(ErrorTypeGenerationFailure, message, err)
}

func EmptyIndex(message string) *DomainError {
	return New(ErrorTypeEmptyIndex, message, nil)
}

func Cancelled(message string, err error) *DomainError {
	return New(ErrorTypeCancelled, message, err)
}

// TypeOf returns the type of the first DomainError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}
