// Package apitest runs an in-process fake of the portal API for tests.
//
// The fake implements the login exchange (with every token response shape the client accepts),
// a few authenticated feature endpoints and diagnostic routes for forcing status codes, delays,
// echoing requests and inspecting multipart uploads.
package apitest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medaccess-portal/portalcore/internal/apperrors"
)

const (
	APIPrefix       = "/api/v1"
	TokenIssuerName = "portal-api"
	DefaultTokenTTL = 30 * time.Minute
)

// LoginShape selects how the fake returns the token from /login
type LoginShape int

const (
	ShapeAccessToken LoginShape = iota // {"access_token": "...", "token_type": "Bearer", ...}
	ShapeBareString                    // "..."
	ShapeToken                         // {"token": "..."}
	ShapeJWT                           // {"jwt": "..."}
	ShapeDataToken                     // {"data": {"token": "..."}, "message": "Login successful"}
	ShapeNoToken                       // {"unrelated": "x"}
)

// Account is a user known to the fake
type Account struct {
	ID       string
	Email    string
	Password string // plain text when passed to AddAccount
	Username string
	Roles    []string
}

// TokenClaims mirrors the claims issued by the portal API
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Server is the fake portal API. Close it when done.
type Server struct {
	*httptest.Server

	secret []byte

	mu         sync.Mutex
	accounts   map[string]Account // by email
	loginShape LoginShape
	tokenTTL   time.Duration
	now        func() time.Time
	requests   []*http.Request
	uploads    []UploadResponse
	resources  map[string][]map[string]any // by collection name
}

// NewServer starts the fake. The caller must call Close.
func NewServer() *Server {
	s := &Server{
		secret:    []byte(uuid.NewString()),
		accounts:  make(map[string]Account),
		tokenTTL:  DefaultTokenTTL,
		now:       time.Now,
		resources: make(map[string][]map[string]any),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the API base address (server URL plus version prefix)
func (s *Server) BaseURL() string {
	return s.URL + APIPrefix
}

// AddAccount registers a. Only a bcrypt hash of the password is kept.
func (s *Server) AddAccount(a Account) {
	hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hashing password: %v", err))
	}
	a.Password = string(hash)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.Email)] = a
}

func (s *Server) SetLoginShape(shape LoginShape) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginShape = shape
}

// SetTokenTTL controls the expiry of tokens issued by /login (negative values issue expired tokens)
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// Requests returns copies of the requests received so far (bodies are not kept)
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// LastRequest returns the most recent request, nil if there was none
func (s *Server) LastRequest() *http.Request {
	reqs := s.Requests()
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Uploads returns the multipart bodies received by the upload endpoints
func (s *Server) Uploads() []UploadResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadResponse(nil), s.uploads...)
}

// IssueToken signs a token for account valid for ttl
func (s *Server) IssueToken(a Account, ttl time.Duration) (string, error) {
	now := s.now()
	return SignToken(s.secret, TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			Issuer:    TokenIssuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: a.Username,
		Roles:    a.Roles,
	})
}

// SignToken creates a HS256 token for claims
func SignToken(secret []byte, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.record)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/accounts", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/accounts/me", s.handleProfile)
			r.Put("/accounts/me", s.handleProfile)

			for _, collection := range []string{"donations", "requests", "quotations"} {
				r.Get("/"+collection, s.handleList(collection))
				r.Post("/"+collection, s.handleCreate(collection))
				r.Delete("/"+collection+"/{id}", s.handleDelete(collection))
			}
			r.Post("/donations/{id}/manifest", s.handleUpload)
			r.Post("/quotations/{id}/documents", s.handleUpload)

			r.With(s.requireRole("ROLE_ADMIN")).Get("/admin/accounts", s.handleListAccounts)
		})

		r.HandleFunc("/status/{code}", s.handleStatus)
		r.HandleFunc("/echo", s.handleEcho)
		r.HandleFunc("/raw", s.handleRaw)
		r.Post("/upload", s.handleUpload)
		r.Get("/slow", s.handleSlow)
	})

	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(r.Context()))
		s.mu.Unlock()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := strings.Fields(r.Header.Get("Authorization"))
		if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
			RespondWithError(w, r, http.StatusUnauthorized, apperrors.ErrCodeAuthenticationFailure, "")
			return
		}

		claims := &TokenClaims{}
		_, err := jwt.ParseWithClaims(fields[1], claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
		if errors.Is(err, jwt.ErrTokenExpired) {
			RespondWithError(w, r, http.StatusUnauthorized, apperrors.ErrCodeAccessTokenExpired, "")
			return
		}
		if err != nil {
			RespondWithError(w, r, http.StatusUnauthorized, apperrors.ErrCodeTokenInvalid, "")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

type claimsKey struct{}

// requireRole answers 403 unless the token from requireAuth grants role.
// Roles match case-insensitively with or without the ROLE_ prefix.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	want := normalizeRole(role)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(claimsKey{}).(*TokenClaims)
			if claims == nil || !slices.ContainsFunc(claims.Roles, func(got string) bool { return normalizeRole(got) == want }) {
				RespondWithError(w, r, http.StatusForbidden, apperrors.ErrCodeAuthorizationFailure, "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	return strings.TrimPrefix(role, "ROLE_")
}

// errorCodeFor picks the error code the portal API sends with status
func errorCodeFor(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrCodeAuthenticationFailure
	case http.StatusForbidden:
		return apperrors.ErrCodeForbidden
	case http.StatusNotFound:
		return apperrors.ErrCodeResourceNotFound
	case http.StatusConflict:
		return apperrors.ErrCodeResourceAlreadyExists
	case http.StatusUnprocessableEntity:
		return apperrors.ErrCodeValidationFailed
	case http.StatusInternalServerError:
		return apperrors.ErrCodeInternalError
	case http.StatusNotImplemented:
		return apperrors.ErrCodeNotImplemented
	default:
		return apperrors.ErrCodeInvalidRequest
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeMalformedBody, "")
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(req.Email)]
	shape := s.loginShape
	ttl := s.tokenTTL
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password)) != nil {
		RespondWithError(w, r, http.StatusUnauthorized, apperrors.ErrCodeAuthenticationFailure, "Invalid email or password")
		return
	}

	token, err := s.IssueToken(account, ttl)
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, apperrors.ErrCodeInternalError, err.Error())
		return
	}

	switch shape {
	case ShapeBareString:
		RespondWithJSON(w, http.StatusOK, token)
	case ShapeToken:
		RespondWithJSON(w, http.StatusOK, map[string]any{"token": token})
	case ShapeJWT:
		RespondWithJSON(w, http.StatusOK, map[string]any{"jwt": token})
	case ShapeDataToken:
		RespondWithData(w, http.StatusOK, map[string]any{"token": token}, "Login successful")
	case ShapeNoToken:
		RespondWithJSON(w, http.StatusOK, map[string]any{"unrelated": "x"})
	default:
		RespondWithJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(ttl.Seconds()),
			"account_id":   account.ID,
		})
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeMalformedBody, "")
		return
	}
	email, _ := req["email"].(string)
	password, _ := req["password"].(string)
	if email == "" || password == "" {
		RespondWithError(w, r, http.StatusUnprocessableEntity, apperrors.ErrCodeValidationFailed, "")
		return
	}

	s.mu.Lock()
	_, exists := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if exists {
		RespondWithError(w, r, http.StatusConflict, apperrors.ErrCodeUserAlreadyExists, "email taken")
		return
	}

	role, _ := req["account_type"].(string)
	fullName, _ := req["full_name"].(string)
	account := Account{
		ID:       uuid.NewString(),
		Email:    email,
		Password: password,
		Username: fullName,
		Roles:    []string{role},
	}
	s.AddAccount(account)

	RespondWithData(w, http.StatusCreated, map[string]any{
		"id":           account.ID,
		"email":        email,
		"full_name":    fullName,
		"account_type": role,
	}, "Account created")
}

// handleProfile returns a fixed profile, with the fields of a PUT body applied on top
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile := map[string]any{
		"id":        "me",
		"email":     "me@example.com",
		"full_name": "Current User",
	}
	if r.Method == http.MethodPut {
		var update map[string]any
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeMalformedBody, "")
			return
		}
		for k, v := range update {
			profile[k] = v
		}
	}
	RespondWithData(w, http.StatusOK, profile, "")
}

func (s *Server) handleList(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		items := append([]map[string]any{}, s.resources[collection]...)
		s.mu.Unlock()
		RespondWithData(w, http.StatusOK, items, "")
	}
}

func (s *Server) handleCreate(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var item map[string]any
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeMalformedBody, "")
			return
		}
		item["id"] = uuid.NewString()
		item["status"] = "pending"

		s.mu.Lock()
		s.resources[collection] = append(s.resources[collection], item)
		s.mu.Unlock()

		RespondWithData(w, http.StatusCreated, item, "Created")
	}
}

func (s *Server) handleDelete(collection string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		s.mu.Lock()
		defer s.mu.Unlock()
		items := s.resources[collection]
		for i, item := range items {
			if item["id"] == id {
				s.resources[collection] = append(items[:i:i], items[i+1:]...)
				item["status"] = "cancelled"
				RespondWithData(w, http.StatusOK, item, "")
				return
			}
		}
		RespondWithError(w, r, http.StatusNotFound, apperrors.ErrCodeResourceNotFound, "")
	}
}

// handleStatus answers with the status in the path. ?message= adds a message to the body, ?body= sends a raw body.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "invalid status code")
		return
	}

	if body := r.URL.Query().Get("body"); body != "" {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
		return
	}

	if code >= 200 && code < 300 {
		RespondWithData(w, code, map[string]any{"status": code}, r.URL.Query().Get("message"))
		return
	}

	RespondWithError(w, r, code, errorCodeFor(code), r.URL.Query().Get("message"))
}

// handleListAccounts lists the known account emails (admin only)
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	emails := make([]string, 0, len(s.accounts))
	for _, a := range s.accounts {
		emails = append(emails, a.Email)
	}
	s.mu.Unlock()

	slices.Sort(emails)
	RespondWithData(w, http.StatusOK, emails, "")
}

// EchoResponse is the data returned by /echo
type EchoResponse struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	RespondWithData(w, http.StatusOK, EchoResponse{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header,
		Body:    string(body),
	}, "echo")
}

// handleRaw answers 200 with ?body= verbatim and ?content_type= as the content type
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	if ct := r.URL.Query().Get("content_type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, r.URL.Query().Get("body"))
}

// UploadedFile describes a file part received by the upload endpoints
type UploadedFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// UploadResponse is the data returned by the upload endpoints. ID is the resource the upload was attached to.
type UploadResponse struct {
	ID          string                  `json:"id,omitempty"`
	ContentType string                  `json:"content_type"`
	Fields      map[string]string       `json:"fields"`
	Files       map[string]UploadedFile `json:"files"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "invalid multipart form")
		return
	}

	resp := UploadResponse{
		ID:          chi.URLParam(r, "id"),
		ContentType: r.Header.Get("Content-Type"),
		Fields:      make(map[string]string),
		Files:       make(map[string]UploadedFile),
	}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			resp.Fields[k] = v[0]
		}
	}
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			RespondWithError(w, r, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "unreadable file part")
			return
		}
		content, _ := io.ReadAll(f)
		f.Close()
		resp.Files[field] = UploadedFile{
			Filename:    headers[0].Filename,
			ContentType: headers[0].Header.Get("Content-Type"),
			Content:     string(content),
		}
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, resp)
	s.mu.Unlock()

	RespondWithData(w, http.StatusCreated, resp, "Upload complete")
}

// handleSlow waits for ?delay= (a duration, default 1s) or until the client goes away
func (s *Server) handleSlow(w http.ResponseWriter, r *http.Request) {
	delay, err := time.ParseDuration(r.URL.Query().Get("delay"))
	if err != nil {
		delay = time.Second
	}

	select {
	case <-time.After(delay):
		RespondWithData(w, http.StatusOK, map[string]any{"waited": delay.String()}, "")
	case <-r.Context().Done():
	}
}
