package drive

import "errors"

// ServiceError is a categorized error returned by any Service or Store
// implementation.
//
// These are business errors (permission denied, entry missing, invalid
// request) as opposed to infrastructure failures. Callers branch on Code
// to decide policy (retry, logout, re-load) and show Message to the
// user verbatim; Message is the human-readable field mandated at the
// service boundary.
type ServiceError struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description suitable for display.
	Message string

	// EntryID names the entry the error relates to, when applicable.
	EntryID string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.EntryID != "" {
		return e.Message + ": " + e.EntryID
	}
	return e.Message
}

// ErrorCode represents the category of a service error.
type ErrorCode int

const (
	// ErrTransport indicates the service could not be reached at all
	// (network failure, timeout). Never retried automatically; the user
	// re-triggers the load explicitly.
	ErrTransport ErrorCode = iota

	// ErrUnauthorized indicates the credential is missing, expired or
	// revoked. Treated as credential invalidation: the session resets
	// every cache and forces a logout.
	ErrUnauthorized

	// ErrForbidden indicates the caller is authenticated but lacks the
	// role required for the operation.
	ErrForbidden

	// ErrValidation indicates the request itself is invalid (empty name,
	// deleting the sole remaining version, unconfirmed permanent delete).
	ErrValidation

	// ErrNotFound indicates the entry no longer exists, typically because
	// another actor deleted it concurrently. Non-fatal; triggers a forced
	// re-load of the affected scope.
	ErrNotFound

	// ErrConflict indicates the operation raced with a concurrent
	// mutation and lost (e.g. a duplicate share grant).
	ErrConflict

	// ErrInternal indicates the service failed for reasons of its own.
	ErrInternal
)

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Errors that are not ServiceErrors report ErrInternal.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrInternal
}

// MessageOf extracts the display message from err. Non-service errors
// fall back to the given default so raw internals never reach the user.
func MessageOf(err error, fallback string) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

// IsNotFound reports whether err categorizes as ErrNotFound.
func IsNotFound(err error) bool { return is(err, ErrNotFound) }

// IsUnauthorized reports whether err categorizes as ErrUnauthorized.
func IsUnauthorized(err error) bool { return is(err, ErrUnauthorized) }

// IsForbidden reports whether err categorizes as ErrForbidden.
func IsForbidden(err error) bool { return is(err, ErrForbidden) }

// IsValidation reports whether err categorizes as ErrValidation.
func IsValidation(err error) bool { return is(err, ErrValidation) }

// IsTransport reports whether err categorizes as ErrTransport.
func IsTransport(err error) bool { return is(err, ErrTransport) }

func is(err error, code ErrorCode) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}

// NotFound builds an ErrNotFound ServiceError for the given entry.
func NotFound(entryID string) *ServiceError {
	return &ServiceError{Code: ErrNotFound, Message: "entry not found", EntryID: entryID}
}

// Forbidden builds an ErrForbidden ServiceError with the given message.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: ErrForbidden, Message: message}
}

// Validation builds an ErrValidation ServiceError with the given message.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: ErrValidation, Message: message}
}
