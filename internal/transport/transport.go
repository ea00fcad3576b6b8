// Package transport owns the shared http client used to call the portal API.
//
// It decides how outbound requests are shaped (base URL, default headers, timeout, interceptors)
// and classifies every failure - non-2xx responses and requests that never got a response - into a NormalizedError.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medaccess-portal/portalcore/internal/version"
)

const (
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize caps how much of a response body is read into memory
	DefaultMaxResponseSize = 10 << 20 // 10MB
)

// RequestInterceptor runs against every outbound request before it is sent.
// Returning an error aborts the request.
type RequestInterceptor func(*http.Request) error

// Options configures a Transport. It is only read by New.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders http.Header

	// RequestInterceptors run in order after the built-in request id interceptor
	RequestInterceptors []RequestInterceptor

	// OnUnauthorized is called after a 401 response has been classified
	OnUnauthorized func(ctx context.Context)

	// RateLimit is the maximum number of requests per second, 0 disables limiting
	RateLimit float64
	RateBurst int

	// MaxResponseSize is the largest body read from a response, 0 means DefaultMaxResponseSize.
	// Longer bodies are cut off and logged.
	MaxResponseSize int64

	// HTTPClient replaces the default client. Its Timeout is overwritten with Timeout.
	HTTPClient *http.Client
}

// Response is a successful (2xx) response with the body already read
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport is safe for concurrent use. Its configuration is fixed by New.
type Transport struct {
	baseURL        *url.URL
	client         *http.Client
	headers        http.Header
	interceptors   []RequestInterceptor
	onUnauthorized func(ctx context.Context)
	limiter        *rate.Limiter
	maxBody        int64
	logger         *slog.Logger
}

// New creates the transport. It returns an error when the base URL is unusable.
func New(opts Options, logger *slog.Logger) (*Transport, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		client = &c
	}
	client.Timeout = timeout

	headers := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
		"User-Agent":   {version.UserAgent()},
	}
	for k, v := range opts.DefaultHeaders {
		headers[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	interceptors := make([]RequestInterceptor, 0, len(opts.RequestInterceptors)+1)
	interceptors = append(interceptors, RequestIDInterceptor())
	interceptors = append(interceptors, opts.RequestInterceptors...)

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	maxBody := opts.MaxResponseSize
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseSize
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		baseURL:        base,
		client:         client,
		headers:        headers,
		interceptors:   interceptors,
		onUnauthorized: opts.OnUnauthorized,
		limiter:        limiter,
		maxBody:        maxBody,
		logger:         logger.With(slog.String("component", "transport")),
	}, nil
}

// Client returns the shared http client
func (t *Transport) Client() *http.Client {
	return t.client
}

// BaseURL returns the configured base URL
func (t *Transport) BaseURL() string {
	return t.baseURL.String()
}

// Timeout is the bound on every request made through the transport
func (t *Transport) Timeout() time.Duration {
	return t.client.Timeout
}

// NewRequest builds a request for an endpoint relative to the base URL.
// Default headers are applied first so that per-call headers win.
func (t *Transport) NewRequest(ctx context.Context, method, endpoint string, body io.Reader, header http.Header, params url.Values) (*http.Request, error) {
	target, err := t.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request for %s: %w", method, endpoint, err)
	}

	for k, v := range t.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}

	return req, nil
}

// resolve joins the endpoint to the base URL. Absolute URLs are used as-is.
func (t *Transport) resolve(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	u := *t.baseURL
	u.Path = strings.TrimRight(t.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	return &u, nil
}

// Do runs the interceptors, sends the request and reads the response.
//
// A 2xx status returns a Response. Any other status, and any failure to get a response,
// returns a *NormalizedError. An error of any other type means the request was aborted
// before it was sent (e.g. by an interceptor).
func (t *Transport) Do(req *http.Request) (*Response, error) {
	for _, intercept := range t.interceptors {
		if err := intercept(req); err != nil {
			return nil, err
		}
	}

	if t.limiter != nil {
		// waiting for the limiter counts against the request timeout
		waitCtx, cancel := context.WithTimeout(req.Context(), t.client.Timeout)
		err := t.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			ne := ClassifyTransportError(fmt.Errorf("rate limiter: %w", err))
			t.logFailure(req, ne)
			return nil, ne
		}
	}

	start := time.Now()
	res, err := t.client.Do(req)
	if err != nil {
		ne := ClassifyTransportError(err)
		t.logFailure(req, ne)
		return nil, ne
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, t.maxBody+1))
	if err != nil {
		ne := ClassifyTransportError(fmt.Errorf("reading response body: %w", err))
		t.logFailure(req, ne)
		return nil, ne
	}
	if int64(len(body)) > t.maxBody {
		t.logger.Warn("response body exceeds size limit and was truncated",
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Int64("limit_bytes", t.maxBody),
			slog.String("request_id", req.Header.Get(RequestIDHeader)),
		)
		body = body[:t.maxBody]
	}

	t.logger.Debug("response received",
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.Int("status", res.StatusCode),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
		slog.Duration("duration", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		ne := Classify(res.StatusCode, body)
		t.logFailure(req, ne)
		if res.StatusCode == http.StatusUnauthorized && t.onUnauthorized != nil {
			t.onUnauthorized(req.Context())
		}
		return nil, ne
	}

	return &Response{
		Status: res.StatusCode,
		Header: res.Header,
		Body:   body,
	}, nil
}

// logFailure is advisory only.
// Client input errors are not severe, auth failures are warnings and server/network failures are errors.
func (t *Transport) logFailure(req *http.Request, ne *NormalizedError) {
	level := slog.LevelInfo
	switch {
	case ne.Status >= 500:
		level = slog.LevelError
	case ne.Status == http.StatusUnauthorized, ne.Status == http.StatusForbidden:
		level = slog.LevelWarn
	}

	t.logger.LogAttrs(req.Context(), level, "request failed",
		slog.Int("status", ne.Status),
		slog.String("message", ne.Message),
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
	)
}
