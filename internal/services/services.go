// Package services declares the portal API endpoints used by the feature areas.
//
// These are thin typed wrappers over the client: no error handling and no session logic of their own.
// Authenticated endpoints take their Authorization header from the session via AddAuthHeader.
package services

import (
	"context"
	"net/http"
	"strconv"

	"github.com/medaccess-portal/portalcore/internal/client"
)

// Authenticator supplies the Authorization header for authenticated calls (implemented by session.Session)
type Authenticator interface {
	AddAuthHeader(ctx context.Context, h http.Header) http.Header
}

// Services groups the feature services, all sharing one client
type Services struct {
	Accounts   *Accounts
	Donations  *Donations
	Requests   *Requests
	Quotations *Quotations
}

// New creates the services. auth may be nil, in which case authenticated endpoints are called without a token.
func New(c *client.Client, auth Authenticator) *Services {
	b := base{client: c, auth: auth}
	return &Services{
		Accounts:   &Accounts{b},
		Donations:  &Donations{b},
		Requests:   &Requests{b},
		Quotations: &Quotations{b},
	}
}

type base struct {
	client *client.Client
	auth   Authenticator
}

// authorized adds the Authorization header. Without an Authenticator the call goes out unauthenticated.
func (b base) authorized(ctx context.Context, opts []client.CallOption) []client.CallOption {
	if b.auth == nil {
		return opts
	}
	return append([]client.CallOption{client.WithHeaders(b.auth.AddAuthHeader(ctx, nil))}, opts...)
}

// ListParams are the common paging parameters accepted by list endpoints
type ListParams struct {
	Page     int
	PageSize int
	Status   string
}

func (p ListParams) options() []client.CallOption {
	var opts []client.CallOption
	if p.Page > 0 {
		opts = append(opts, client.WithParam("page", strconv.Itoa(p.Page)))
	}
	if p.PageSize > 0 {
		opts = append(opts, client.WithParam("page_size", strconv.Itoa(p.PageSize)))
	}
	if p.Status != "" {
		opts = append(opts, client.WithParam("status", p.Status))
	}
	return opts
}
