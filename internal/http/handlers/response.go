// Package handlers exposes the gateway's resource, notification, event and
// health endpoints.
//
// Every failure leaves as an ErrorResponse:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "validation failed: email: is required",
//	  "fields": { "email": "is required" }
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/http/middleware"
	"github.com/edulead/enquirydesk/internal/services"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// One of the ErrCode constants
	Code string `json:"code" example:"not_found"`
	// Safe to show in a toast
	Message string `json:"message" example:"resource not found"`
	// Per-field problems of a rejected submission
	Fields map[string]string `json:"fields,omitempty"`
	// Upstream status behind an upstream_* code (0 when unreachable)
	UpstreamStatus int `json:"upstream_status,omitempty" example:"503"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged through the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().Int("status", status).Str("code", code).Str("message", msg).Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer 404/405 with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a coordinator error onto the envelope. Validation failures
// are 422 with per-field messages and an in-flight duplicate is 409. Upstream
// rejections keep their 4xx status; other upstream failures are 502, or 504
// for timeouts.
func failErr(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve.Fields))
		for k, v := range ve.Fields {
			fields[k] = v
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			RequestID: requestID(c),
			Code:      ErrCodeValidation,
			Message:   ve.Error(),
			Fields:    fields,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrSubmissionInFlight):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	case errors.Is(err, services.ErrEmptyID):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, apiclient.ErrMissingCredential):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, apiclient.Normalize(err).Message)
		return
	}

	var ae *apiclient.Error
	if !errors.As(err, &ae) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	info := apiclient.Normalize(err)
	status, code := http.StatusBadGateway, ErrCodeUpstreamUnavailable
	switch ae.Kind {
	case apiclient.ServerRejection:
		code = ErrCodeUpstreamRejected
		if ae.Status >= 400 && ae.Status < 500 {
			status = ae.Status
		}
	case apiclient.DecodeFailure:
		code = ErrCodeUpstreamDecode
	case apiclient.TransportFailure:
		if errors.Is(ae, context.DeadlineExceeded) || info.Message == "Request timed out" {
			status = http.StatusGatewayTimeout
		}
	}
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Int("status", status).Str("code", code).Msg("upstream error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID:      requestID(c),
		Code:           code,
		Message:        info.Message,
		UpstreamStatus: info.Status,
	})
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}
