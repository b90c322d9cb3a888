package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the upstream's usual JSON wrapper:
//
//	{"success": true, "message": "...", "data": ..., "count": 12}
//
// Some endpoints use "total" instead of "count"; bare arrays and objects are
// also accepted by the decode helpers.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Count   *int64          `json:"count,omitempty"`
	Total   *int64          `json:"total,omitempty"`
}

func (e Envelope) total() (int64, bool) {
	switch {
	case e.Count != nil:
		return *e.Count, true
	case e.Total != nil:
		return *e.Total, true
	}
	return 0, false
}

// rejectionMessage extracts "message" (or "error") from a non-2xx body.
func rejectionMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &m) == nil {
		if m.Message != "" {
			return m.Message
		}
		return m.Error
	}
	return ""
}

func (r *Response) decodeErr(err error) error {
	return &Error{Kind: DecodeFailure, Status: r.Status, Err: err}
}

// envelope parses r.Body when it is a JSON object. isObject is false for
// arrays and scalars.
func (r *Response) envelope() (env Envelope, isObject bool, err error) {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, false, nil
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, true, r.decodeErr(err)
	}
	if env.Success != nil && !*env.Success {
		return env, true, &Error{Kind: ServerRejection, Status: r.Status, Message: env.Message}
	}
	return env, true, nil
}

// CheckEnvelope returns the rejection carried by a 2xx {"success":false}
// body, or a DecodeFailure for a malformed object. Empty and non-object
// bodies pass.
func CheckEnvelope(r *Response) error {
	_, _, err := r.envelope()
	return err
}

// Message returns the envelope message, if any.
func (r *Response) Message() string {
	env, _, err := r.envelope()
	if err != nil {
		return ""
	}
	return env.Message
}

// DecodeData decodes the "data" member of an envelope, or the whole body when
// the body is not an envelope.
func DecodeData[T any](r *Response) (T, error) {
	var out T
	env, isObject, err := r.envelope()
	if err != nil {
		return out, err
	}
	raw := json.RawMessage(r.Body)
	if isObject && len(env.Data) > 0 {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, r.decodeErr(err)
	}
	return out, nil
}

// DecodeList decodes a list response and its total. When the upstream does
// not report a total, the number of decoded items is used.
func DecodeList[T any](r *Response) ([]T, int64, error) {
	env, isObject, err := r.envelope()
	if err != nil {
		return nil, 0, err
	}
	raw := json.RawMessage(r.Body)
	if isObject {
		if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
			n, _ := env.total()
			return []T{}, n, nil
		}
		raw = env.Data
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, r.decodeErr(err)
	}
	if items == nil {
		items = []T{}
	}
	total := int64(len(items))
	if isObject {
		if n, ok := env.total(); ok {
			total = n
		}
	}
	return items, total, nil
}

// DecodeCount reads a count from {"count":n}, {"data":{"count":n}},
// {"data":n} or a bare number.
func DecodeCount(r *Response) (int64, error) {
	env, isObject, err := r.envelope()
	if err != nil {
		return 0, err
	}
	if !isObject {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(r.Body)), 10, 64)
		if err != nil {
			return 0, r.decodeErr(err)
		}
		return n, nil
	}
	if n, ok := env.total(); ok {
		return n, nil
	}
	if len(env.Data) > 0 {
		var n int64
		if json.Unmarshal(env.Data, &n) == nil {
			return n, nil
		}
		var inner Envelope
		if json.Unmarshal(env.Data, &inner) == nil {
			if n, ok := inner.total(); ok {
				return n, nil
			}
		}
	}
	return 0, r.decodeErr(fmt.Errorf("no count in response"))
}
