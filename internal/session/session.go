// Package session owns the access token: where it is stored, whether it has expired,
// which roles it grants and which landing page those roles lead to.
//
// Session holds the token state and needs only a Store, so it can be created before the transport
// (the transport's auth interceptor and 401 hook point back at it). Manager adds the login exchange.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/medaccess-portal/portalcore/internal/transport"
)

// fixed store keys
const (
	TokenKey      = "auth_token"
	IdentifierKey = "user_email"
)

type Session struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	expired chan struct{}
}

type Option func(*Session)

// WithClock replaces time.Now for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func NewSession(store Store, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		store:   store,
		logger:  logger.With(slog.String("component", "session")),
		now:     time.Now,
		expired: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the stored token. It does not check whether the token is usable.
func (s *Session) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.store.Get(ctx, TokenKey)
	if err != nil {
		s.logger.Error("could not read access token", slog.String("error", err.Error()))
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Identifier returns the identifier (email) used for the last successful login
func (s *Session) Identifier(ctx context.Context) (string, bool) {
	id, ok, err := s.store.Get(ctx, IdentifierKey)
	if err != nil {
		s.logger.Error("could not read identifier", slog.String("error", err.Error()))
		return "", false
	}
	return id, ok && id != ""
}

func (s *Session) save(ctx context.Context, token, identifier string) error {
	if err := s.store.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	if identifier == "" {
		return nil
	}
	return s.store.Set(ctx, IdentifierKey, identifier)
}

// Clear removes the token and identifier. It is safe to call when there is no session.
func (s *Session) Clear(ctx context.Context) {
	for _, key := range []string{TokenKey, IdentifierKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error("could not delete session value",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// claims decodes the stored token, nil when there is no token or it can't be decoded
func (s *Session) claims(ctx context.Context) *Claims {
	token, ok := s.Token(ctx)
	if !ok {
		return nil
	}
	claims, err := DecodeToken(token)
	if err != nil {
		s.logger.Debug("stored token could not be decoded", slog.String("error", err.Error()))
		return nil
	}
	return claims
}

// Status reports the state of the stored token
func (s *Session) Status(ctx context.Context) AccessTokenStatus {
	token, _ := s.Token(ctx)
	return tokenStatus(token, s.now())
}

// IsAuthenticated is true when a decodable token with an expiry in the future is stored
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	return s.Status(ctx) == TokenValid
}

// UserRoles returns all roles in the token, never nil
func (s *Session) UserRoles(ctx context.Context) []string {
	claims := s.claims(ctx)
	if claims == nil {
		return []string{}
	}
	return claims.AllRoles()
}

// UserRole returns the primary (first) role, "" when there is none
func (s *Session) UserRole(ctx context.Context) string {
	roles := s.UserRoles(ctx)
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}

func (s *Session) Username(ctx context.Context) string {
	claims := s.claims(ctx)
	if claims == nil {
		return ""
	}
	return claims.Username
}

// HasRole checks role against every role in the token
func (s *Session) HasRole(ctx context.Context, role string) bool {
	want := normalizeRole(role)
	if want == "" {
		return false
	}
	return slices.ContainsFunc(s.UserRoles(ctx), func(r string) bool {
		return normalizeRole(r) == want
	})
}

// DashboardRoute is the landing page for the primary role, the login page when there is no usable role
func (s *Session) DashboardRoute(ctx context.Context) string {
	return RouteForRole(s.UserRole(ctx))
}

// AddAuthHeader returns a copy of h with the bearer token added when a token is stored.
// h itself is not modified.
func (s *Session) AddAuthHeader(ctx context.Context, h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	if token, ok := s.Token(ctx); ok {
		out.Set("Authorization", "Bearer "+token)
	}
	return out
}

// AuthInterceptor attaches the stored token to every outbound request.
// Only installed when AUTO_ATTACH_TOKEN is enabled.
func (s *Session) AuthInterceptor() transport.RequestInterceptor {
	return transport.BearerTokenInterceptor(func(req *http.Request) (string, bool) {
		return s.Token(req.Context())
	})
}

type loginAttemptKey struct{}

// withLoginAttempt marks ctx as carrying a login call. A 401 on that call means the credentials were rejected, not the stored token.
func withLoginAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, loginAttemptKey{}, true)
}

func isLoginAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(loginAttemptKey{}).(bool)
	return v
}

// HandleUnauthorized ends the session after the API rejected the token (401) and signals on Expired.
// Nothing happens when there is no stored session, or when the 401 answered a login attempt.
func (s *Session) HandleUnauthorized(ctx context.Context) {
	if isLoginAttempt(ctx) {
		return
	}
	if _, ok := s.Token(ctx); !ok {
		return
	}

	s.logger.Info("session cleared after unauthorized response")
	s.Clear(ctx)

	select {
	case s.expired <- struct{}{}:
	default: // a signal is already pending
	}
}

// Expired receives a value each time the session is cleared by HandleUnauthorized
func (s *Session) Expired() <-chan struct{} {
	return s.expired
}
