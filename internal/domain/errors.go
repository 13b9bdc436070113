package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
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

// Is matches on Code so errors built with WithError still compare equal
// to the pre-defined sentinel.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Challenge errors
	ErrChallengeNotFound = &AppError{
		Code:       "CHALLENGE_NOT_FOUND",
		Message:    "Challenge not found or already removed",
		StatusCode: 404,
	}

	ErrChallengeConflict = &AppError{
		Code:       "CHALLENGE_CONFLICT",
		Message:    "Challenge was modified by a concurrent attempt",
		StatusCode: 409,
	}

	ErrUnsupportedChallengeType = &AppError{
		Code:       "UNSUPPORTED_CHALLENGE_TYPE",
		Message:    "Challenge type is not supported",
		StatusCode: 422,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "Operation not allowed in the current challenge state",
		StatusCode: 500,
	}

	// Abuse protection
	ErrClientBlocked = &AppError{
		Code:       "CLIENT_BLOCKED",
		Message:    "Too many failed verifications, try again later",
		StatusCode: 429,
	}

	// Storage
	ErrStorageUnavailable = &AppError{
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "Challenge storage is unavailable",
		StatusCode: 503,
	}
)
