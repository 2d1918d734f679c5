package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an application error.
type Code int

// Common error codes
const (
	CodeStoreUnavailable Code = iota + 1000
	CodeNotFound
	CodeValidation
	CodeConflict
	CodeSyncFailed
	CodeUnauthorized
	CodeInternal
)

// AppError represents an application error
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "store unavailable",
		Err:     err,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func Validation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Err:     err,
	}
}

func SyncFailed(err error) *AppError {
	return &AppError{
		Code:    CodeSyncFailed,
		Message: "sync failed",
		Err:     err,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool         { return HasCode(err, CodeNotFound) }
func IsValidation(err error) bool       { return HasCode(err, CodeValidation) }
func IsConflict(err error) bool         { return HasCode(err, CodeConflict) }
func IsSyncFailed(err error) bool       { return HasCode(err, CodeSyncFailed) }
func IsUnauthorized(err error) bool     { return HasCode(err, CodeUnauthorized) }
func IsStoreUnavailable(err error) bool { return HasCode(err, CodeStoreUnavailable) }
