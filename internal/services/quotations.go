package services

import (
	"context"
	"net/url"
	"time"

	"github.com/medaccess-portal/portalcore/internal/client"
)

// Quotation is an importer's price offer for a medicine request
type Quotation struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	ImporterID string    `json:"importer_id"`
	UnitPrice  float64   `json:"unit_price"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	ValidUntil time.Time `json:"valid_until"`
}

type NewQuotation struct {
	RequestID  string    `json:"request_id"`
	UnitPrice  float64   `json:"unit_price"`
	Currency   string    `json:"currency"`
	ValidUntil time.Time `json:"valid_until"`
}

type Quotations struct{ base }

func (q *Quotations) List(ctx context.Context, params ListParams) client.Result[[]Quotation] {
	return client.Get[[]Quotation](ctx, q.client, "/quotations", q.authorized(ctx, params.options())...)
}

func (q *Quotations) Submit(ctx context.Context, quotation NewQuotation) client.Result[Quotation] {
	return client.Post[Quotation](ctx, q.client, "/quotations", quotation, q.authorized(ctx, nil)...)
}

// UploadDocument attaches a supporting document (import licence, invoice...) to a quotation
func (q *Quotations) UploadDocument(ctx context.Context, quotationID string, file client.File, docType string) client.Result[Quotation] {
	endpoint := "/quotations/" + url.PathEscape(quotationID) + "/documents"
	return client.UploadFile[Quotation](ctx, q.client, endpoint, file, "doc", map[string]string{"type": docType}, q.authorized(ctx, nil)...)
}
