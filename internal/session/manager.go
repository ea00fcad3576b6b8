package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/medaccess-portal/portalcore/internal/client"
)

const (
	DefaultLoginEndpoint = "/login"

	MsgLoginFailed  = "Login failed"
	MsgNoToken      = "Login failed: no token in server response"
	MsgSessionStore = "Login failed: the session could not be saved"
)

// Manager is the session plus the login exchange with the portal API
type Manager struct {
	*Session
	client        *client.Client
	loginEndpoint string
	extractors    []TokenExtractor
}

type ManagerOption func(*Manager)

func WithLoginEndpoint(endpoint string) ManagerOption {
	return func(m *Manager) {
		m.loginEndpoint = endpoint
	}
}

// WithExtractors replaces the token search order used by Login
func WithExtractors(extractors ...TokenExtractor) ManagerOption {
	return func(m *Manager) {
		m.extractors = extractors
	}
}

func NewManager(s *Session, c *client.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		Session:       s,
		client:        c,
		loginEndpoint: DefaultLoginEndpoint,
		extractors:    DefaultExtractors(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoginRequest is the body of the login call
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the outcome of Login. Token is only set on success.
type LoginResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Login exchanges the credentials for an access token and stores it.
//
// A successful call whose response does not contain a token is reported as a failed login,
// so that a change in the API's response format never produces an unusable session.
func (m *Manager) Login(ctx context.Context, identifier, secret string) LoginResult {
	// rejected credentials leave the current session in place
	res := client.Post[json.RawMessage](withLoginAttempt(ctx), m.client, m.loginEndpoint, LoginRequest{
		Email:    identifier,
		Password: secret,
	})

	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = MsgLoginFailed
		}
		return LoginResult{Success: false, Message: msg, Status: res.Status}
	}

	token, matchedBy, ok := extractToken(res.Data, m.extractors)
	if !ok {
		m.logger.Warn("login response did not contain a token",
			slog.Int("status", res.Status),
		)
		return LoginResult{Success: false, Message: MsgNoToken, Status: res.Status}
	}

	if err := m.save(ctx, token, identifier); err != nil {
		m.logger.Error("could not store session", slog.String("error", err.Error()))
		return LoginResult{Success: false, Message: MsgSessionStore, Status: http.StatusInternalServerError}
	}

	m.logger.Debug("login successful", slog.String("token_source", matchedBy))

	return LoginResult{
		Success: true,
		Token:   token,
		Message: res.Message,
		Status:  res.Status,
	}
}

// Logout removes the stored session. It is idempotent and does not call the API.
func (m *Manager) Logout(ctx context.Context) {
	m.Clear(ctx)
}
