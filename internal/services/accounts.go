package services

import (
	"context"

	"github.com/medaccess-portal/portalcore/internal/client"
)

// AccountType is the portal role an account registers for
type AccountType string

const (
	AccountPatient  AccountType = "patient"
	AccountImporter AccountType = "importer"
	AccountDonor    AccountType = "donor"
)

type NewAccount struct {
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	FullName     string      `json:"full_name"`
	Phone        string      `json:"phone,omitempty"`
	AccountType  AccountType `json:"account_type"`
	Organization string      `json:"organization,omitempty"` // importers and donors
}

type Profile struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	Phone        string      `json:"phone,omitempty"`
	AccountType  AccountType `json:"account_type"`
	Organization string      `json:"organization,omitempty"`
}

type ProfileUpdate struct {
	FullName     string `json:"full_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type Accounts struct{ base }

// Register creates an account, a 409 means the email is already registered
func (a *Accounts) Register(ctx context.Context, account NewAccount) client.Result[Profile] {
	return client.Post[Profile](ctx, a.client, "/accounts", account)
}

func (a *Accounts) Profile(ctx context.Context) client.Result[Profile] {
	return client.Get[Profile](ctx, a.client, "/accounts/me", a.authorized(ctx, nil)...)
}

func (a *Accounts) UpdateProfile(ctx context.Context, update ProfileUpdate) client.Result[Profile] {
	return client.Put[Profile](ctx, a.client, "/accounts/me", update, a.authorized(ctx, nil)...)
}
