// Package apiclient is the gateway to the upstream REST API. It renders the
// request body once, attaches credentials and idempotency keys, retries
// transport failures on a fixed backoff and returns either a Response or a
// typed *Error.
//
// Retry rules:
//   - reads are retried up to RetryPolicy.MaxAttempts;
//   - mutations are retried only when they carry an idempotency key,
//     otherwise they get exactly one attempt;
//   - ServerRejection and DecodeFailure are never retried.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

// RetryPolicy bounds the sequential retry loop.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: time.Second}
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration // per attempt; 0 means 15s
	Retry      RetryPolicy
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client issues upstream calls. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	retry  RetryPolicy
	tokens TokenSource
	log    zerolog.Logger
}

// Response is a successful (2xx) upstream answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base url must be http(s), got %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if retry.Backoff < 0 {
		retry.Backoff = 0
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = ContextTokens{}
	}

	return &Client{
		base:   base,
		http:   hc,
		retry:  retry,
		tokens: tokens,
		log:    opts.Logger.With().Str("component", "apiclient").Logger(),
	}, nil
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() *url.URL { u := *c.base; return &u }

// Tokens returns the configured credential source.
func (c *Client) Tokens() TokenSource { return c.tokens }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// HasCredential reports whether an Auth call made with ctx would carry a
// bearer token.
func (c *Client) HasCredential(ctx context.Context) bool {
	tok, err := c.tokens.Token(ctx)
	return err == nil && tok != ""
}

// Do performs req with the retry policy and returns the 2xx response or a
// typed error. A cancelled ctx stops the retry loop immediately.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	tr := otel.Tracer("apiclient")
	ctx, span := tr.Start(ctx, "upstream "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("upstream.path", req.Path),
			attribute.Bool("upstream.auth", req.Auth),
		),
	)
	defer span.End()

	contentType, body, err := encodeBody(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode body: %w", err)
	}

	var token string
	if req.Auth {
		token, err = c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrMissingCredential
		}
	}

	attempts := 1
	if req.Retryable() {
		attempts = c.retry.MaxAttempts
	}
	resource := resourceLabel(req.Path)

	n := 0
	op := func() (*Response, error) {
		n++
		resp, err := c.once(ctx, req, contentType, body, token)
		if err != nil && !IsTransport(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retry.Backoff)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			upstreamRetries.WithLabelValues(req.Method, resource).Inc()
			c.log.Warn().
				Err(err).
				Str("method", req.Method).
				Str("path", req.Path).
				Int("attempt", n).
				Int("max_attempts", attempts).
				Dur("backoff", next).
				Msg("upstream call failed, retrying")
		}),
	)
	span.SetAttributes(attribute.Int("upstream.attempts", n))

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request, contentType string, body []byte, token string) (*Response, error) {
	target := resolve(c.base, req.Path, req.Query)
	resource := resourceLabel(req.Path)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	hreq.Header.Set("Accept", "application/json")
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		hreq.Header.Set("Authorization", "Bearer "+token)
	}
	if req.IdempotencyKey != "" {
		hreq.Header.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	start := time.Now()
	hresp, err := c.http.Do(hreq)
	if err != nil {
		upstreamRequests.WithLabelValues(req.Method, resource, "error").Inc()
		return nil, &Error{Kind: TransportFailure, Method: req.Method, Path: req.Path, Err: err}
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBody))
	upstreamLatency.WithLabelValues(req.Method, resource).Observe(time.Since(start).Seconds())
	upstreamRequests.WithLabelValues(req.Method, resource, strconv.Itoa(hresp.StatusCode)).Inc()
	if err != nil {
		return nil, &Error{Kind: TransportFailure, Status: hresp.StatusCode, Method: req.Method, Path: req.Path, Err: err}
	}

	switch {
	case hresp.StatusCode == http.StatusBadGateway ||
		hresp.StatusCode == http.StatusServiceUnavailable ||
		hresp.StatusCode == http.StatusGatewayTimeout:
		return nil, &Error{Kind: TransportFailure, Status: hresp.StatusCode, Method: req.Method, Path: req.Path}
	case hresp.StatusCode < 200 || hresp.StatusCode > 299:
		return nil, &Error{
			Kind:    ServerRejection,
			Status:  hresp.StatusCode,
			Message: rejectionMessage(data),
			Method:  req.Method,
			Path:    req.Path,
		}
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", hresp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream call")

	return &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}

// resourceLabel keeps metric cardinality bounded: only the first path
// segment ("enquiries", "users", ...) is used.
func resourceLabel(path string) string {
	p := strings.Trim(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}
