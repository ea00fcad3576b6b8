// Package apperrors lists the machine readable error codes the portal API returns in error bodies.
//
// The communication core does not branch on these codes (callers only see status and message),
// they are used by the fake API in internal/apitest and are available to diagnostics.
package apperrors

type ErrorCode string

const (
	ErrCodeAccessTokenExpired    ErrorCode = "access_token_expired"
	ErrCodeAuthenticationFailure ErrorCode = "authentication_error"
	ErrCodeAuthorizationFailure  ErrorCode = "authorization_error"
	ErrCodeForbidden             ErrorCode = "forbidden"
	ErrCodeInternalError         ErrorCode = "internal_error"
	ErrCodeInvalidRequest        ErrorCode = "invalid_request"
	ErrCodeMalformedBody         ErrorCode = "malformed_body"
	ErrCodeNotImplemented        ErrorCode = "not_implemented"
	ErrCodeResourceAlreadyExists ErrorCode = "resource_already_exists"
	ErrCodeResourceNotFound      ErrorCode = "resource_not_found"
	ErrCodeTokenInvalid          ErrorCode = "token_invalid"
	ErrCodeUserAlreadyExists     ErrorCode = "user_already_exists"
	ErrCodeValidationFailed      ErrorCode = "validation_failed"
)

// ErrorResponse is the error body sent by the portal API
type ErrorResponse struct {
	StatusCode int       `json:"-"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	Message    string    `json:"message,omitempty"`
}
