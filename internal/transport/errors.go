package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// user facing messages - these are displayed as-is by the portal so must not change
const (
	MsgBadRequest   = "Invalid information provided"
	MsgUnauthorized = "Authentication required. Please log in"
	MsgForbidden    = "You do not have permission to access this resource"
	MsgNotFound     = "Resource not found"
	MsgConflict     = "A resource with this identifier already exists"
	MsgValidation   = "Validation failed. Please check your information"
	MsgServerError  = "Server error. Please try again later"
	MsgUnexpected   = "An unexpected error occurred"
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          MsgBadRequest,
	http.StatusUnauthorized:        MsgUnauthorized,
	http.StatusForbidden:           MsgForbidden,
	http.StatusNotFound:            MsgNotFound,
	http.StatusConflict:            MsgConflict,
	http.StatusUnprocessableEntity: MsgValidation,
	http.StatusInternalServerError: MsgServerError,
}

// NormalizedError is the single failure shape produced by the transport.
// It is built once, when a response is classified, and is never rewritten by higher layers.
//
// Status is 500 for failures where no response was received (network errors, timeouts).
type NormalizedError struct {
	Status  int
	Message string
	Data    json.RawMessage // server body, when there was one
}

func (e *NormalizedError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// ResponseError is a failure that carries a server response but did not go through Classify,
// for instance one returned by a request interceptor that answers on behalf of the server.
// The client derives a best-effort message from it.
type ResponseError struct {
	Status int
	Body   []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unclassified response status %d", e.Status)
}

// DefaultMessage returns the user message for a status code when the server did not supply one
func DefaultMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	if status >= 500 {
		return MsgServerError
	}
	return MsgUnexpected
}

// Classify converts a non-2xx response into a NormalizedError.
//
// A "message" in the body replaces the default message, except for 500
// where the generic message is always used so that internal details are not shown to users.
// Other 5xx codes fall back to the generic message when the body has none.
func Classify(status int, body []byte) *NormalizedError {
	msg := DefaultMessage(status)
	if status != http.StatusInternalServerError {
		if serverMsg := bodyMessage(body); serverMsg != "" {
			msg = serverMsg
		}
	}

	return &NormalizedError{
		Status:  status,
		Message: msg,
		Data:    diagnosticPayload(body),
	}
}

// ClassifyTransportError converts a failure where no response was received.
// The status is forced to 500 and the message is taken from the failure.
func ClassifyTransportError(err error) *NormalizedError {
	var ne *NormalizedError
	if errors.As(err, &ne) {
		return ne
	}

	msg := MsgUnexpected
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &NormalizedError{
		Status:  http.StatusInternalServerError,
		Message: msg,
	}
}

func bodyMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}

// diagnosticPayload keeps the server body for diagnostics. Non-JSON bodies (html error pages etc) are kept as a JSON string.
func diagnosticPayload(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(trimmed)
	if err != nil {
		return nil
	}
	return quoted
}
