// Error codes carried in ErrorResponse.Code. Generic codes follow HTTP status
// semantics; upstream_* codes mean the dashboard API failed and the message
// is the normalised text the dashboard shows in its toast.

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// gateway-specific
	ErrCodeValidation          = "validation_failed"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeUpstreamRejected    = "upstream_rejected"
	ErrCodeUpstreamDecode      = "upstream_decode_failed"
	ErrCodeMethodNotAllowed    = "method_not_allowed"
)
