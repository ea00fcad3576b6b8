package transport

import (
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDInterceptor tags each request with a unique id so that client and server logs can be correlated.
// An id already set by the caller is kept.
func RequestIDInterceptor() RequestInterceptor {
	return func(req *http.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return nil
	}
}

// BearerTokenInterceptor attaches "Authorization: Bearer <token>" when tokenFn returns a token.
// Requests that already carry an Authorization header are left alone.
func BearerTokenInterceptor(tokenFn func(*http.Request) (string, bool)) RequestInterceptor {
	return func(req *http.Request) error {
		if req.Header.Get("Authorization") != "" {
			return nil
		}
		if token, ok := tokenFn(req); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}
