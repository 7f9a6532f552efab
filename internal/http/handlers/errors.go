// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// These codes give clients a stable, machine-readable error taxonomy that
// supplements the human-readable detail. Codes are lowercase snake_case and
// every error response carries exactly one of them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "detail": "Movie not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeValidation       = "validation_failed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "service_unavailable"
	ErrCodeInternal         = "internal_error"
)

// Details shared by several handlers.
const (
	detailMovieNotFound = "Movie not found"
	detailMovieDeleted  = "movie deleted"
)
