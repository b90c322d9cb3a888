package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// HeaderIdempotencyKey carries the idempotency key of a mutating call.
const HeaderIdempotencyKey = "Idempotency-Key"

// File is a binary attachment sent as a multipart part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Request describes one logical upstream call. Exactly one of JSON or
// Form/Files is used as the body; Files switch the body to multipart.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	JSON  any
	Form  url.Values
	Files []File

	// Auth attaches the bearer credential. Calls with Auth=false are sent
	// anonymously even when a token is available.
	Auth bool
	// IdempotencyKey is sent as Idempotency-Key and makes a mutating call
	// eligible for retry.
	IdempotencyKey string
}

func (r Request) mutating() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// Retryable reports whether the call may be attempted more than once.
func (r Request) Retryable() bool {
	return !r.mutating() || r.IdempotencyKey != ""
}

// encodeBody renders the request body once so every attempt can replay it.
func encodeBody(r Request) (contentType string, body []byte, err error) {
	switch {
	case len(r.Files) > 0:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for k, vs := range r.Form {
			for _, v := range vs {
				if err := mw.WriteField(k, v); err != nil {
					return "", nil, err
				}
			}
		}
		for _, f := range r.Files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			pw, err := mw.CreatePart(h)
			if err != nil {
				return "", nil, err
			}
			if _, err := pw.Write(f.Data); err != nil {
				return "", nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return "", nil, err
		}
		return mw.FormDataContentType(), buf.Bytes(), nil
	case r.Form != nil:
		return "application/x-www-form-urlencoded", []byte(r.Form.Encode()), nil
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return "", nil, err
		}
		return "application/json", b, nil
	}
	return "", nil, nil
}

// resolve joins base and path, keeping any path prefix on base.
func resolve(base *url.URL, path string, q url.Values) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = q.Encode()
	return u.String()
}

// TokenSource yields the bearer credential for authorised calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type tokenKey struct{}

// WithToken stores an operator's bearer token on ctx so calls made on their
// behalf forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

// ContextTokens prefers the request-scoped token and falls back to a
// configured service token (used by background work such as the stream).
type ContextTokens struct {
	Fallback string
}

func (t ContextTokens) Token(ctx context.Context) (string, error) {
	if s := TokenFromContext(ctx); s != "" {
		return s, nil
	}
	if t.Fallback != "" {
		return t.Fallback, nil
	}
	return "", ErrMissingCredential
}
