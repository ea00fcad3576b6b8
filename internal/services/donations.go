package services

import (
	"context"
	"net/url"
	"time"

	"github.com/medaccess-portal/portalcore/internal/client"
)

type DonationItem struct {
	Medicine   string    `json:"medicine"`
	Quantity   int       `json:"quantity"`
	Unit       string    `json:"unit"`
	ExpiryDate time.Time `json:"expiry_date"`
}

type Donation struct {
	ID        string         `json:"id"`
	DonorID   string         `json:"donor_id"`
	Status    string         `json:"status"`
	Items     []DonationItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
}

type NewDonation struct {
	Items []DonationItem `json:"items"`
	Notes string         `json:"notes,omitempty"`
}

type Donations struct{ base }

func (d *Donations) List(ctx context.Context, params ListParams) client.Result[[]Donation] {
	return client.Get[[]Donation](ctx, d.client, "/donations", d.authorized(ctx, params.options())...)
}

func (d *Donations) Create(ctx context.Context, donation NewDonation) client.Result[Donation] {
	return client.Post[Donation](ctx, d.client, "/donations", donation, d.authorized(ctx, nil)...)
}

// UploadManifest attaches the shipping manifest of a donation
func (d *Donations) UploadManifest(ctx context.Context, donationID string, file client.File) client.Result[Donation] {
	endpoint := "/donations/" + url.PathEscape(donationID) + "/manifest"
	return client.UploadFile[Donation](ctx, d.client, endpoint, file, "manifest", nil, d.authorized(ctx, nil)...)
}
