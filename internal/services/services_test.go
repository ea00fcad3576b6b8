package services

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/medaccess-portal/portalcore/internal/apitest"
	"github.com/medaccess-portal/portalcore/internal/client"
	"github.com/medaccess-portal/portalcore/internal/logger"
	"github.com/medaccess-portal/portalcore/internal/session"
	"github.com/medaccess-portal/portalcore/internal/transport"
)

type testEnv struct {
	api      *apitest.Server
	manager  *session.Manager
	services *Services
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	api := apitest.NewServer()
	t.Cleanup(api.Close)
	api.AddAccount(apitest.Account{Email: "donor@example.com", Password: "pw", Roles: []string{"donor"}})

	s := session.NewSession(session.NewMemoryStore(), logger.Discard())
	tr, err := transport.New(transport.Options{
		BaseURL:        api.BaseURL(),
		OnUnauthorized: s.HandleUnauthorized,
	}, logger.Discard())
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	c := client.New(tr, logger.Discard())
	m := session.NewManager(s, c)

	return &testEnv{api: api, manager: m, services: New(c, m)}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	if res := e.manager.Login(context.Background(), "donor@example.com", "pw"); !res.Success {
		t.Fatalf("Login() = %+v", res)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	res := env.services.Accounts.Register(ctx, NewAccount{
		Email:       "new@example.com",
		Password:    "pw",
		FullName:    "New Patient",
		AccountType: AccountPatient,
	})
	if !res.Success || res.Status != http.StatusCreated {
		t.Fatalf("Register() = %+v", res)
	}
	if res.Data.Email != "new@example.com" || res.Data.AccountType != AccountPatient {
		t.Errorf("Register() data = %+v", res.Data)
	}
	if res.Message != "Account created" {
		t.Errorf("Message = %q", res.Message)
	}

	dup := env.services.Accounts.Register(ctx, NewAccount{Email: "new@example.com", Password: "pw", AccountType: AccountPatient})
	if dup.Success || dup.Status != http.StatusConflict || dup.Message != "email taken" {
		t.Errorf("duplicate Register() = %+v", dup)
	}

	if unauth := env.services.Accounts.Profile(ctx); unauth.Success || unauth.Status != http.StatusUnauthorized {
		t.Errorf("Profile() without session = %+v", unauth)
	}

	env.login(t)
	profile := env.services.Accounts.Profile(ctx)
	if !profile.Success || profile.Data.ID != "me" {
		t.Errorf("Profile() = %+v", profile)
	}

	updated := env.services.Accounts.UpdateProfile(ctx, ProfileUpdate{FullName: "Renamed"})
	if !updated.Success || updated.Data.FullName != "Renamed" {
		t.Errorf("UpdateProfile() = %+v", updated)
	}
}

func TestDonations(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.login(t)

	created := env.services.Donations.Create(ctx, NewDonation{
		Items: []DonationItem{{Medicine: "paracetamol", Quantity: 100, Unit: "tablet", ExpiryDate: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)}},
	})
	if !created.Success || created.Data.ID == "" || created.Data.Status != "pending" {
		t.Fatalf("Create() = %+v", created)
	}
	if len(created.Data.Items) != 1 || !created.Data.Items[0].ExpiryDate.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Create() items = %+v", created.Data.Items)
	}

	list := env.services.Donations.List(ctx, ListParams{Page: 1, PageSize: 20, Status: "pending"})
	if !list.Success || len(list.Data) != 1 {
		t.Errorf("List() = %+v", list)
	}
	q := env.api.LastRequest().URL.Query()
	if q.Get("page") != "1" || q.Get("page_size") != "20" || q.Get("status") != "pending" {
		t.Errorf("List() query = %v", q)
	}

	up := env.services.Donations.UploadManifest(ctx, created.Data.ID, client.File{Name: "manifest.csv", Reader: strings.NewReader("paracetamol,100")})
	if !up.Success || up.Data.ID != created.Data.ID {
		t.Fatalf("UploadManifest() = %+v", up)
	}
	uploads := env.api.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	if f, ok := uploads[0].Files["manifest"]; !ok || f.Content != "paracetamol,100" {
		t.Errorf("manifest part = %+v", uploads[0].Files)
	}
}

func TestRequests(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.login(t)

	created := env.services.Requests.Create(ctx, NewMedicineRequest{Medicine: "insulin", Quantity: 3, Urgent: true})
	if !created.Success || created.Data.Medicine != "insulin" {
		t.Fatalf("Create() = %+v", created)
	}

	cancelled := env.services.Requests.Cancel(ctx, created.Data.ID)
	if !cancelled.Success || cancelled.Data.Status != "cancelled" {
		t.Errorf("Cancel() = %+v", cancelled)
	}

	again := env.services.Requests.Cancel(ctx, created.Data.ID)
	if again.Success || again.Status != http.StatusNotFound || again.Message != transport.MsgNotFound {
		t.Errorf("second Cancel() = %+v", again)
	}

	if list := env.services.Requests.List(ctx, ListParams{}); !list.Success || len(list.Data) != 0 {
		t.Errorf("List() = %+v", list)
	}
	if raw := env.api.LastRequest().URL.RawQuery; raw != "" {
		t.Errorf("List() with zero params sent query %q", raw)
	}
}

func TestQuotations(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.login(t)

	submitted := env.services.Quotations.Submit(ctx, NewQuotation{RequestID: "r1", UnitPrice: 4.5, Currency: "USD", ValidUntil: time.Now().Add(72 * time.Hour)})
	if !submitted.Success || submitted.Data.UnitPrice != 4.5 {
		t.Fatalf("Submit() = %+v", submitted)
	}

	up := env.services.Quotations.UploadDocument(ctx, submitted.Data.ID, client.File{Name: "licence.pdf", Reader: strings.NewReader("%PDF")}, "import_licence")
	if !up.Success {
		t.Fatalf("UploadDocument() = %+v", up)
	}
	uploads := env.api.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploads))
	}
	if _, ok := uploads[0].Files["doc"]; !ok {
		t.Errorf("no doc part in %+v", uploads[0].Files)
	}
	if uploads[0].Fields["type"] != "import_licence" {
		t.Errorf("fields = %v", uploads[0].Fields)
	}
}

func TestServices_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	env.api.SetTokenTTL(-time.Second)
	env.login(t)

	res := env.services.Donations.List(ctx, ListParams{})
	if res.Success || res.Status != http.StatusUnauthorized {
		t.Fatalf("List() with an expired token = %+v", res)
	}
	if env.manager.IsAuthenticated(ctx) {
		t.Error("session kept after 401")
	}
	select {
	case <-env.manager.Expired():
	default:
		t.Error("no expired signal")
	}
}

func TestServices_WithoutAuthenticator(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	tr, err := transport.New(transport.Options{BaseURL: env.api.BaseURL()}, logger.Discard())
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	svc := New(client.New(tr, logger.Discard()), nil)

	res := svc.Accounts.Profile(ctx)
	if res.Success || res.Status != http.StatusUnauthorized {
		t.Errorf("Profile() without an authenticator = %+v", res)
	}
	if got := env.api.LastRequest().Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}
