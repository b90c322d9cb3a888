package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

const (
	// TransportFailure covers network errors, timeouts and gateway statuses
	// (502/503/504). It is the only retried kind.
	TransportFailure Kind = "transport_failure"
	// ServerRejection is any other non-2xx answer (or a 2xx envelope with
	// success=false).
	ServerRejection Kind = "server_rejection"
	// DecodeFailure means the upstream answered but the payload was unusable.
	DecodeFailure Kind = "decode_failure"
)

// ErrMissingCredential is returned for an authorised call when no bearer
// token is available.
var ErrMissingCredential = errors.New("missing bearer credential")

// Error is the typed failure returned by Client.Do and the decode helpers.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 when no response was received
	Message string // upstream message when available
	Method  string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Method != "" {
		fmt.Fprintf(&b, " %s %s", e.Method, e.Path)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func kindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsTransport reports whether err is a TransportFailure.
func IsTransport(err error) bool {
	k, ok := kindOf(err)
	return ok && k == TransportFailure
}

// IsRejection reports whether err is a ServerRejection.
func IsRejection(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ServerRejection
}

// IsDecode reports whether err is a DecodeFailure.
func IsDecode(err error) bool {
	k, ok := kindOf(err)
	return ok && k == DecodeFailure
}

// ErrorInfo is the normalised failure shape stored in store slices and shown
// to operators.
type ErrorInfo struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Normalize converts any error returned by this package (or a context error)
// into an ErrorInfo with a human-readable message.
func Normalize(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	if errors.Is(err, ErrMissingCredential) {
		return ErrorInfo{Message: "Authentication required", Status: http.StatusUnauthorized}
	}

	var ae *Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case ServerRejection:
			msg := ae.Message
			if msg == "" {
				msg = http.StatusText(ae.Status)
			}
			if msg == "" {
				msg = "Request rejected by server"
			}
			return ErrorInfo{Message: msg, Status: ae.Status}
		case DecodeFailure:
			return ErrorInfo{Message: "Unexpected response from server", Status: ae.Status}
		default:
			return ErrorInfo{Message: transportMessage(ae), Status: ae.Status}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{Message: "Request timed out", Status: http.StatusGatewayTimeout}
	case errors.Is(err, context.Canceled):
		return ErrorInfo{Message: "Request cancelled"}
	}
	return ErrorInfo{Message: err.Error()}
}

func transportMessage(ae *Error) string {
	if ae.Status != 0 {
		return fmt.Sprintf("Server unavailable (%d %s)", ae.Status, http.StatusText(ae.Status))
	}
	var ne net.Error
	if errors.Is(ae.Err, context.DeadlineExceeded) || (errors.As(ae.Err, &ne) && ne.Timeout()) {
		return "Request timed out"
	}
	if errors.Is(ae.Err, context.Canceled) {
		return "Request cancelled"
	}
	return "Network error: could not reach server"
}
