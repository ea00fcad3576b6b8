package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/medaccess-portal/portalcore/internal/logger"
)

func newTestSession(t *testing.T, now time.Time) (*Session, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewSession(store, logger.Discard(), WithClock(func() time.Time { return now })), store
}

func TestSession_IsAuthenticated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "no token", want: false},
		{name: "valid one second more", token: tokenExpiringAt(t, now.Add(time.Second), "patient"), want: true},
		{name: "expired one second ago", token: tokenExpiringAt(t, now.Add(-time.Second), "patient"), want: false},
		{name: "undecodable", token: "garbage", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestSession(t, now)
			if tt.token != "" {
				_ = store.Set(ctx, TokenKey, tt.token)
			}
			if got := s.IsAuthenticated(ctx); got != tt.want {
				t.Errorf("IsAuthenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_Roles(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	tests := []struct {
		name          string
		token         string
		wantRole      string
		wantDashboard string
		has           map[string]bool
	}{
		{
			name:          "no session",
			wantRole:      "",
			wantDashboard: LoginRoute,
			has:           map[string]bool{"patient": false, "": false},
		},
		{
			name:          "single role",
			token:         tokenExpiringAt(t, now.Add(time.Hour), "donor"),
			wantRole:      "donor",
			wantDashboard: "/donor/dashboard",
			has:           map[string]bool{"donor": true, "DONOR": true, "ROLE_donor": true, "admin": false},
		},
		{
			name:          "several roles, first is primary",
			token:         tokenExpiringAt(t, now.Add(time.Hour), "ROLE_IMPORTER", "ROLE_ADMIN"),
			wantRole:      "ROLE_IMPORTER",
			wantDashboard: "/importer/dashboard",
			has:           map[string]bool{"importer": true, "admin": true, "patient": false},
		},
		{
			name:          "unknown role",
			token:         tokenExpiringAt(t, now.Add(time.Hour), "auditor"),
			wantRole:      "auditor",
			wantDashboard: LoginRoute,
			has:           map[string]bool{"auditor": true},
		},
		{
			name:          "undecodable token",
			token:         "not.a.jwt",
			wantRole:      "",
			wantDashboard: LoginRoute,
			has:           map[string]bool{"admin": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestSession(t, now)
			if tt.token != "" {
				_ = store.Set(ctx, TokenKey, tt.token)
			}

			if roles := s.UserRoles(ctx); roles == nil {
				t.Error("UserRoles() = nil")
			}
			if got := s.UserRole(ctx); got != tt.wantRole {
				t.Errorf("UserRole() = %q, want %q", got, tt.wantRole)
			}
			if got := s.DashboardRoute(ctx); got != tt.wantDashboard {
				t.Errorf("DashboardRoute() = %q, want %q", got, tt.wantDashboard)
			}
			for role, want := range tt.has {
				if got := s.HasRole(ctx, role); got != want {
					t.Errorf("HasRole(%q) = %v, want %v", role, got, want)
				}
			}
		})
	}
}

func TestSession_Username(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, time.Now())

	if got := s.Username(ctx); got != "" {
		t.Errorf("Username() = %q with no session", got)
	}
	_ = store.Set(ctx, TokenKey, tokenExpiringAt(t, time.Now().Add(time.Hour), "patient"))
	if got := s.Username(ctx); got != "jo" {
		t.Errorf("Username() = %q, want jo", got)
	}
}

func TestSession_AddAuthHeader(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, time.Now())

	in := http.Header{"X-Trace": {"1"}}

	out := s.AddAuthHeader(ctx, in)
	if out.Get("Authorization") != "" {
		t.Errorf("Authorization = %q with no session", out.Get("Authorization"))
	}
	if out.Get("X-Trace") != "1" {
		t.Error("existing header dropped")
	}

	_ = store.Set(ctx, TokenKey, "tok123")
	out = s.AddAuthHeader(ctx, in)
	if got := out.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", got)
	}
	if in.Get("Authorization") != "" {
		t.Error("AddAuthHeader() modified its input")
	}

	out = s.AddAuthHeader(ctx, nil)
	if out == nil || out.Get("Authorization") != "Bearer tok123" {
		t.Errorf("AddAuthHeader(nil) = %v", out)
	}
}

func TestSession_AuthInterceptor(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, time.Now())
	intercept := s.AuthInterceptor()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://api.test/", nil)
	if err := intercept(req); err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("Authorization attached with no session")
	}

	_ = store.Set(ctx, TokenKey, "tok123")
	if err := intercept(req); err != nil {
		t.Fatalf("interceptor error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestSession_HandleUnauthorized(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, time.Now())

	s.HandleUnauthorized(ctx)
	select {
	case <-s.Expired():
		t.Fatal("expired signalled without a session")
	default:
	}

	_ = store.Set(ctx, TokenKey, "tok")
	_ = store.Set(ctx, IdentifierKey, "jo@example.com")

	s.HandleUnauthorized(ctx)
	s.HandleUnauthorized(ctx) // already cleared, must not block or signal twice

	if _, ok := s.Token(ctx); ok {
		t.Error("token still stored after 401")
	}
	if _, ok := s.Identifier(ctx); ok {
		t.Error("identifier still stored after 401")
	}

	select {
	case <-s.Expired():
	default:
		t.Fatal("no expired signal")
	}
	select {
	case <-s.Expired():
		t.Fatal("second expired signal")
	default:
	}
}

func TestSession_HandleUnauthorizedDuringLogin(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, time.Now())
	_ = store.Set(ctx, TokenKey, "tok")

	s.HandleUnauthorized(withLoginAttempt(ctx))

	if tok, ok := s.Token(ctx); !ok || tok != "tok" {
		t.Errorf("Token() = %q, %v, want the stored token kept", tok, ok)
	}
	select {
	case <-s.Expired():
		t.Error("expired signalled for a login attempt")
	default:
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store offline")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("store offline") }
func (brokenStore) Delete(context.Context, string) error      { return errors.New("store offline") }

func TestSession_BrokenStore(t *testing.T) {
	ctx := context.Background()
	s := NewSession(brokenStore{}, logger.Discard())

	if s.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() = true with an unreadable store")
	}
	if s.Status(ctx) != TokenMissing {
		t.Errorf("Status() = %v", s.Status(ctx))
	}
	if got := s.DashboardRoute(ctx); got != LoginRoute {
		t.Errorf("DashboardRoute() = %q", got)
	}
	s.Clear(ctx) // logs, never panics
}
