// Package client is the only part of the communication core that feature services talk to.
//
// Every call resolves to a Result: the functions in this package never return an error and never panic,
// so callers branch on Result.Success and show Result.Message to the user.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/medaccess-portal/portalcore/internal/transport"
)

// Client wraps the shared transport with the Result call surface
type Client struct {
	transport *transport.Transport
	logger    *slog.Logger
}

func New(t *transport.Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: t,
		logger:    logger.With(slog.String("component", "client")),
	}
}

// Transport returns the transport the client sends requests through
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// CallOption overrides headers or query params for a single call
type CallOption func(*callConfig)

type callConfig struct {
	header http.Header
	params url.Values
}

func WithHeader(key, value string) CallOption {
	return func(cc *callConfig) {
		cc.header.Set(key, value)
	}
}

// WithHeaders merges h into the call headers, typically the output of session.Manager.AddAuthHeader
func WithHeaders(h http.Header) CallOption {
	return func(cc *callConfig) {
		for k, v := range h {
			cc.header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
}

func WithParam(key, value string) CallOption {
	return func(cc *callConfig) {
		cc.params.Add(key, value)
	}
}

func WithParams(params url.Values) CallOption {
	return func(cc *callConfig) {
		for k, vs := range params {
			for _, v := range vs {
				cc.params.Add(k, v)
			}
		}
	}
}

func newCallConfig(opts []CallOption) *callConfig {
	cc := &callConfig{
		header: http.Header{},
		params: url.Values{},
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Get fetches endpoint and decodes the response data into T
func Get[T any](ctx context.Context, c *Client, endpoint string, opts ...CallOption) Result[T] {
	return call[T](ctx, c, http.MethodGet, endpoint, nil, opts)
}

// Post sends payload as JSON. Payloads that are already []byte, json.RawMessage or io.Reader are sent unchanged.
func Post[T any](ctx context.Context, c *Client, endpoint string, payload any, opts ...CallOption) Result[T] {
	return call[T](ctx, c, http.MethodPost, endpoint, payload, opts)
}

func Put[T any](ctx context.Context, c *Client, endpoint string, payload any, opts ...CallOption) Result[T] {
	return call[T](ctx, c, http.MethodPut, endpoint, payload, opts)
}

func Delete[T any](ctx context.Context, c *Client, endpoint string, opts ...CallOption) Result[T] {
	return call[T](ctx, c, http.MethodDelete, endpoint, nil, opts)
}

// Do is the untyped form of the call functions, the response data is returned undecoded
func (c *Client) Do(ctx context.Context, method, endpoint string, payload any, opts ...CallOption) Result[json.RawMessage] {
	return call[json.RawMessage](ctx, c, method, endpoint, payload, opts)
}

func call[T any](ctx context.Context, c *Client, method, endpoint string, payload any, opts []CallOption) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = unexpected[T](c, method, endpoint, fmt.Errorf("panic: %v", r))
		}
	}()

	cc := newCallConfig(opts)

	body, err := encodePayload(payload)
	if err != nil {
		return unexpected[T](c, method, endpoint, err)
	}

	return send[T](ctx, c, method, endpoint, body, cc)
}

func send[T any](ctx context.Context, c *Client, method, endpoint string, body io.Reader, cc *callConfig) Result[T] {
	req, err := c.transport.NewRequest(ctx, method, endpoint, body, cc.header, cc.params)
	if err != nil {
		return unexpected[T](c, method, endpoint, err)
	}

	res, err := c.transport.Do(req)
	if err != nil {
		var ne *transport.NormalizedError
		if errors.As(err, &ne) {
			// already classified and logged by the transport
			return ResultFromError[T](ne)
		}
		return unexpected[T](c, method, endpoint, err)
	}

	return decodeSuccess[T](res)
}

// unexpected handles failures that did not come through the transport's classifier
func unexpected[T any](c *Client, method, endpoint string, err error) Result[T] {
	res := ResultFromError[T](err)
	c.logger.Error("unexpected request failure",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", res.Status),
		slog.String("error", err.Error()),
	)
	return res
}

func encodePayload(payload any) (io.Reader, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return p, nil
	case []byte:
		return bytes.NewReader(p), nil
	case json.RawMessage:
		return bytes.NewReader(p), nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request payload: %w", err)
	}
	return bytes.NewReader(data), nil
}
