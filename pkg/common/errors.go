//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package common provides shared types and utilities used across the
// access engine packages.
//
// # Error Handling
//
// The [EngineError] type carries a machine-readable [Code] and a
// human-readable reason.  Errors are only ever returned for malformed or
// invalid requests (validation) and for configuration problems; an
// authorization outcome is always a decision, never an error.
//
// Compare with [errors.Is] against the exported sentinels:
//
//	if errors.Is(err, common.ErrInvalidDuration) { ... }
package common

import (
	"errors"
	"fmt"
)

// Code classifies an [EngineError].
type Code string

// Error codes.
const (
	CodeConfiguration     Code = "CONFIGURATION"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeInvalidDuration   Code = "INVALID_DURATION"
	CodeInvalidReason     Code = "INVALID_REASON"
	CodeNotOwner          Code = "NOT_OWNER"
	CodeSelfReview        Code = "SELF_REVIEW"
	CodeAlreadyResolved   Code = "ALREADY_RESOLVED"
	CodeNotQualified      Code = "NOT_QUALIFIED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeFieldConfigLocked Code = "FIELD_CONFIG_LOCKED"
)

// EngineError is the structured error returned by engine operations.
type EngineError struct {
	Code   Code
	Reason string
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s(code-%s)", e.Reason, e.Code)
}

// Is matches any EngineError with the same code, so that callers can compare
// against the sentinels regardless of the reason text.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an [EngineError].
func NewError(code Code, format string, args ...interface{}) *EngineError {
	return &EngineError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of an EngineError anywhere in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// Sentinels for errors.Is.
var (
	ErrConfiguration     = &EngineError{Code: CodeConfiguration}
	ErrInvalidRequest    = &EngineError{Code: CodeInvalidRequest}
	ErrInvalidDuration   = &EngineError{Code: CodeInvalidDuration}
	ErrInvalidReason     = &EngineError{Code: CodeInvalidReason}
	ErrNotOwner          = &EngineError{Code: CodeNotOwner}
	ErrSelfReview        = &EngineError{Code: CodeSelfReview}
	ErrAlreadyResolved   = &EngineError{Code: CodeAlreadyResolved}
	ErrNotQualified      = &EngineError{Code: CodeNotQualified}
	ErrNotFound          = &EngineError{Code: CodeNotFound}
	ErrForbidden         = &EngineError{Code: CodeForbidden}
	ErrFieldConfigLocked = &EngineError{Code: CodeFieldConfigLocked}
)
