package client

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/medaccess-portal/portalcore/internal/transport"
)

const (
	MsgSuccess            = "Operation successful"
	MsgUnexpectedResponse = "Unexpected response from server"
)

// Result is the outcome of every call made through the client.
//
// Success is true only when the server answered with a 2xx status and the response could be decoded.
// Message is always set. Status is 500 for calls that never received a response.
// Raw holds the server body on failures, for diagnostics.
type Result[T any] struct {
	Success bool            `json:"success"`
	Data    T               `json:"data,omitempty"`
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Err returns nil for a successful result, otherwise the failure as a *transport.NormalizedError
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return &transport.NormalizedError{
		Status:  r.Status,
		Message: r.Message,
		Data:    r.Raw,
	}
}

// ResultFromError converts any error into a failed Result.
//
// A *transport.NormalizedError has already been classified and is copied without changes.
// Anything else gets a best-effort message and status (see failureMessage).
func ResultFromError[T any](err error) Result[T] {
	var ne *transport.NormalizedError
	if errors.As(err, &ne) {
		return Result[T]{
			Success: false,
			Message: ne.Message,
			Status:  ne.Status,
			Raw:     ne.Data,
		}
	}

	status := http.StatusInternalServerError
	var body []byte

	var re *transport.ResponseError
	if errors.As(err, &re) {
		if re.Status > 0 {
			status = re.Status
		}
		body = re.Body
	}

	res := Result[T]{
		Success: false,
		Message: failureMessage(body),
		Status:  status,
	}
	if len(body) > 0 && json.Valid(body) {
		res.Raw = json.RawMessage(body)
	}
	return res
}

// failureMessage derives a message from an unclassified failure body:
// a string body is used directly, for an object the first of message, error, errors[0] is used.
func failureMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return transport.MsgUnexpected
	}

	if !json.Valid(trimmed) {
		return string(trimmed)
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
		return transport.MsgUnexpected
	}

	var obj struct {
		Message any   `json:"message"`
		Error   any   `json:"error"`
		Errors  []any `json:"errors"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return transport.MsgUnexpected
	}

	candidates := []any{obj.Message, obj.Error}
	if len(obj.Errors) > 0 {
		candidates = append(candidates, obj.Errors[0])
	}
	for _, c := range candidates {
		if msg := messageOf(c); msg != "" {
			return msg
		}
	}
	return transport.MsgUnexpected
}

// messageOf accepts a plain string or an object with a message field (e.g. {"field":"email","message":"required"})
func messageOf(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		if msg, ok := val["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}

// decodeSuccess builds the Result for a 2xx response.
// The data is the body's "data" field when present, otherwise the whole body.
// Bodies that are not JSON are treated as a string.
func decodeSuccess[T any](res *transport.Response) Result[T] {
	result := Result[T]{
		Success: true,
		Message: MsgSuccess,
		Status:  res.Status,
	}

	body := bytes.TrimSpace(res.Body)
	if len(body) == 0 {
		return result
	}

	if !json.Valid(body) {
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return malformed[T](res)
		}
		body = quoted
	}

	payload := body
	var envelope map[string]json.RawMessage
	if body[0] == '{' && json.Unmarshal(body, &envelope) == nil {
		if data, ok := envelope["data"]; ok && !isNull(data) {
			payload = data
		}
		if raw, ok := envelope["message"]; ok {
			var msg string
			if json.Unmarshal(raw, &msg) == nil && strings.TrimSpace(msg) != "" {
				result.Message = msg
			}
		}
	}

	if isNull(payload) {
		return result
	}

	if err := json.Unmarshal(payload, &result.Data); err != nil {
		return malformed[T](res)
	}
	return result
}

func malformed[T any](res *transport.Response) Result[T] {
	r := Result[T]{
		Success: false,
		Message: MsgUnexpectedResponse,
		Status:  http.StatusInternalServerError,
	}
	if json.Valid(res.Body) {
		r.Raw = json.RawMessage(res.Body)
	}
	return r
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
