// Stable, machine-readable error codes used in ErrorResponse envelopes.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status
// semantics; domain-specific codes distinguish business outcomes the status
// alone cannot convey (a 422 may be a field validation failure or an
// unknown workflow status).
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation    = "validation_failed"
	ErrCodeUnknownStatus = "unknown_status"
	ErrCodeLockTimeout   = "lock_timeout"
	ErrCodeListFailed    = "list_failed"
)
