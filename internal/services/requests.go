package services

import (
	"context"
	"net/url"
	"time"

	"github.com/medaccess-portal/portalcore/internal/client"
)

// MedicineRequest is a patient's request for a medicine
type MedicineRequest struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	Medicine     string    `json:"medicine"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	Prescription string    `json:"prescription_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type NewMedicineRequest struct {
	Medicine string `json:"medicine"`
	Quantity int    `json:"quantity"`
	Urgent   bool   `json:"urgent,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type Requests struct{ base }

func (r *Requests) List(ctx context.Context, params ListParams) client.Result[[]MedicineRequest] {
	return client.Get[[]MedicineRequest](ctx, r.client, "/requests", r.authorized(ctx, params.options())...)
}

func (r *Requests) Create(ctx context.Context, req NewMedicineRequest) client.Result[MedicineRequest] {
	return client.Post[MedicineRequest](ctx, r.client, "/requests", req, r.authorized(ctx, nil)...)
}

func (r *Requests) Cancel(ctx context.Context, requestID string) client.Result[MedicineRequest] {
	return client.Delete[MedicineRequest](ctx, r.client, "/requests/"+url.PathEscape(requestID), r.authorized(ctx, nil)...)
}
