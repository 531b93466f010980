// Package apperr defines the error taxonomy shared by the service layer and
// the HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindBanned       Kind = "banned_account"
	KindInternal     Kind = "internal"
)

// Codes narrow a Kind down to a specific business rule.
const (
	CodeAlreadyRegistered    = "AlreadyRegistered"
	CodeRegistrationClosed   = "RegistrationClosed"
	CodeRegistrationNotFound = "RegistrationNotFound"
	CodeDuplicateAccount     = "DuplicateAccount"
	CodeAlreadyCheckedIn     = "AlreadyCheckedIn"
)

// Error is returned by every service operation that fails for a reason the
// caller can act on.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Banned carries the stored ban reason so the caller can show it.
func Banned(reason string) *Error {
	msg := "account is banned"
	if reason != "" {
		msg = "account is banned: " + reason
	}
	return &Error{Kind: KindBanned, Message: msg}
}

func RegistrationClosed() *Error {
	return &Error{Kind: KindValidation, Code: CodeRegistrationClosed, Field: "registration_deadline", Message: "registration is closed for this event"}
}

func RegistrationNotFound() *Error {
	return &Error{Kind: KindNotFound, Code: CodeRegistrationNotFound, Message: "registration not found"}
}

func AlreadyRegistered() *Error {
	return Conflict(CodeAlreadyRegistered, "user is already registered for this event")
}

// Internal wraps an unexpected failure (usually from the store).
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the business code attached to err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FieldOf returns the input field a validation error refers to, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
