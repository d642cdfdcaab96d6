package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfi/core/internal/activation"
	"github.com/zenfi/core/internal/activation/ln/mock"
	"github.com/zenfi/core/internal/auth"
	"github.com/zenfi/core/internal/blobstore/filesystem"
	"github.com/zenfi/core/internal/client"
	"github.com/zenfi/core/internal/db"
	"github.com/zenfi/core/internal/receipt"
	"github.com/zenfi/core/internal/records"
	"github.com/zenfi/core/internal/transport"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type mockNotifier struct {
	uploaded chan *records.Payment
}

func (m *mockNotifier) ReceiptUploaded(ctx context.Context, p *records.Payment) {
	m.uploaded <- p
}

type testAPI struct {
	srv      *httptest.Server
	repo     *db.DB
	signer   *auth.Signer
	notifier *mockNotifier
}

func newTestAPI(t *testing.T, opts ...func(*Config)) *testAPI {
	t.Helper()

	dir := t.TempDir()

	repo, err := db.New(db.DriverSQLite, filepath.Join(dir, "zenfi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.SetRole(context.Background(), "admin", records.RoleAdmin))

	signer, err := auth.New([]byte(testSecret))
	require.NoError(t, err)

	acts, err := activation.New(repo, mock.New(), "mock")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	files, err := filesystem.New(filepath.Join(dir, "files"), srv.URL, []byte(testSecret))
	require.NoError(t, err)

	var cfg Config
	cfg.AuthSecret = testSecret
	cfg.APIBase = srv.URL
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	n := &mockNotifier{uploaded: make(chan *records.Payment, 1)}

	h := &handlers{
		config:   cfg,
		records:  repo,
		store:    files,
		files:    files,
		acts:     acts,
		notifier: n,
	}
	h.routes(r, signer)

	return &testAPI{srv: srv, repo: repo, signer: signer, notifier: n}
}

func (a *testAPI) client(t *testing.T, userID string) *client.Client {
	t.Helper()

	token, err := a.signer.Issue(userID, time.Hour)
	require.NoError(t, err)
	return client.New(a.srv.URL, token)
}

func TestUnauthorized(t *testing.T) {
	api := newTestAPI(t)

	_, err := client.New(api.srv.URL, "").ListPayments(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = client.New(api.srv.URL, "garbage").ListPayments(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestPayments(t *testing.T) {
	var (
		ctx   = context.Background()
		api   = newTestAPI(t)
		u1    = api.client(t, "u1")
		u2    = api.client(t, "u2")
		admin = api.client(t, "admin")
	)

	_, err := u1.CreatePayment(ctx, decimal.Zero)
	assert.Error(t, err)

	p, err := u1.CreatePayment(ctx, decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, records.PaymentPending, p.Status)
	assert.Equal(t, records.ReceiptNone, p.ReceiptStatus)

	payments, err := u1.ListPayments(ctx, records.PaymentPending)
	require.NoError(t, err)
	require.Len(t, payments, 1)

	payments, err = u2.ListPayments(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, err = u2.GetPayment(ctx, p.ID)
	assert.ErrorIs(t, err, client.ErrForbidden)

	got, err := admin.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = u1.GetPayment(ctx, "missing")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestUpdatePaymentStatusAdminOnly(t *testing.T) {
	var (
		ctx   = context.Background()
		api   = newTestAPI(t)
		u1    = api.client(t, "u1")
		admin = api.client(t, "admin")
	)

	p, err := u1.CreatePayment(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)

	err = u1.SetPaymentStatus(ctx, p.ID, records.PaymentApproved)
	assert.ErrorIs(t, err, client.ErrForbidden)

	require.NoError(t, admin.SetPaymentStatus(ctx, p.ID, records.PaymentApproved))

	got, err := u1.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, records.PaymentApproved, got.Status)

	err = admin.SetPaymentStatus(ctx, p.ID, "refunded")
	assert.Error(t, err)
}

func TestUpdateReceiptConditional(t *testing.T) {
	var (
		ctx = context.Background()
		api = newTestAPI(t)
		u1  = api.client(t, "u1")
	)

	p, err := u1.CreatePayment(ctx, decimal.NewFromInt(10))
	require.NoError(t, err)

	err = u1.UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{
		Status: records.ReceiptFailed,
		Expect: records.ReceiptUploading,
	})
	assert.ErrorIs(t, err, records.ErrConflict)

	require.NoError(t, u1.UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{Status: records.ReceiptUploading}))

	stuck, err := u1.LatestStuckPayment(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stuck)
	assert.Equal(t, p.ID, stuck.ID)

	_, err = api.client(t, "u2").LatestStuckPayment(ctx, "u1")
	assert.ErrorIs(t, err, client.ErrForbidden)

	stuck, err = api.client(t, "admin").LatestStuckPayment(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stuck)

	err = u1.UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{Status: "lost"})
	assert.Error(t, err)

	err = api.client(t, "u2").UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{Status: records.ReceiptFailed})
	assert.ErrorIs(t, err, client.ErrForbidden)
}

func TestReceiptUploadEndToEnd(t *testing.T) {
	var (
		ctx   = context.Background()
		api   = newTestAPI(t)
		u1    = api.client(t, "u1")
		orch  = receipt.NewOrchestrator(u1, u1, transport.New(nil), time.Second)
		data  = []byte("\x89PNG receipt")
		admin = api.client(t, "admin")
	)

	p, err := u1.CreatePayment(ctx, decimal.NewFromInt(42))
	require.NoError(t, err)

	res, err := orch.UploadReceipt(ctx, "u1", p.ID, receipt.File{Name: "scan.png", MimeType: "image/png", Data: data}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "u1/"+p.ID+".png", res.Path)
	assert.Equal(t, api.srv.URL+"/files/u1/"+p.ID+".png", res.URL)

	got, err := u1.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, records.ReceiptUploaded, got.ReceiptStatus)
	assert.Equal(t, res.URL, got.ReceiptURL)

	select {
	case n := <-api.notifier.uploaded:
		assert.Equal(t, p.ID, n.ID)
		assert.Equal(t, res.URL, n.ReceiptURL)
	case <-time.After(time.Second):
		t.Fatal("notifier not called")
	}

	objects, err := u1.ListObjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, p.ID+".png", objects[0].Name)

	// Locators alone do not grant access.
	resp, err := http.Get(res.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err = api.client(t, "u2").SignDownload(ctx, res.Path)
	assert.ErrorIs(t, err, client.ErrForbidden)

	for _, c := range []*client.Client{u1, admin} {
		signed, err := c.SignDownload(ctx, res.Path)
		require.NoError(t, err)

		resp, err := http.Get(signed.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, data, body)
	}

	_, err = u1.SignDownload(ctx, "u1/missing.png")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestSignUploadRules(t *testing.T) {
	var (
		ctx = context.Background()
		api = newTestAPI(t)
		u1  = api.client(t, "u1")
	)

	_, err := u1.SignUpload(ctx, "u2/P1.jpg", "image/jpeg")
	assert.ErrorIs(t, err, client.ErrForbidden)

	_, err = u1.SignUpload(ctx, "u1/P1.exe", "application/x-msdownload")
	assert.Error(t, err)

	_, err = u1.SignUpload(ctx, "u1", "image/jpeg")
	assert.Error(t, err)

	_, err = u1.SignUpload(ctx, "u1/../u2/P1.jpg", "image/jpeg")
	assert.Error(t, err)

	signed, err := u1.SignUpload(ctx, "u1/P1.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, signed.Method)
	assert.Equal(t, "image/jpeg", signed.Header.Get("Content-Type"))
}

func TestFilesRejectUnsigned(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodPut, api.srv.URL+"/files/u1/P1.jpg", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNextClaim(t *testing.T) {
	var (
		ctx = context.Background()
		api = newTestAPI(t)
		u1  = api.client(t, "u1")
	)

	next, err := u1.GetNextClaimTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	deadline := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, u1.SetNextClaimTime(ctx, &deadline))

	next, err = u1.GetNextClaimTime(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, deadline.Equal(*next))

	next, err = api.client(t, "u2").GetNextClaimTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, u1.SetNextClaimTime(ctx, nil))
	next, err = u1.GetNextClaimTime(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestActivationFlow(t *testing.T) {
	var (
		ctx = context.Background()
		api = newTestAPI(t)
		u1  = api.client(t, "u1")
	)

	_, err := u1.GetActivation(ctx, "w1")
	assert.ErrorIs(t, err, activation.ErrActivationNotFound)

	a, err := u1.CreateActivation(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", a.WithdrawalID)
	assert.Equal(t, defaultActivationSats, a.Sats)
	assert.Equal(t, activation.StatusUnpaid, a.Status)

	again, err := u1.CreateActivation(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, a.InvoiceID, again.InvoiceID)

	_, err = api.client(t, "u2").GetActivation(ctx, "w1")
	assert.ErrorIs(t, err, client.ErrForbidden)

	unpaid, err := u1.GetActivation(ctx, "w1")
	assert.ErrorIs(t, err, activation.ErrActivationUnpaid)
	require.NotNil(t, unpaid)
	assert.Equal(t, a.LightningInvoice, unpaid.LightningInvoice)

	// Only the zbd provider calls back.
	assert.Equal(t, http.StatusNotFound, postChargeCallback(t, api, a.InvoiceID, "completed"))

	_, err = u1.GetActivation(ctx, "w1")
	assert.ErrorIs(t, err, activation.ErrActivationUnpaid)
}

func postChargeCallback(t *testing.T, api *testAPI, invoiceID, status string) int {
	t.Helper()

	body, err := json.Marshal(map[string]string{"id": invoiceID, "status": status})
	require.NoError(t, err)

	resp, err := http.Post(api.srv.URL+"/callback/zbd-charge", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	return resp.StatusCode
}

func TestZBDChargeCallback(t *testing.T) {
	var (
		ctx = context.Background()
		api = newTestAPI(t, func(c *Config) { c.LightningProvider = "zbd" })
		u1  = api.client(t, "u1")
	)

	a, err := u1.CreateActivation(ctx, "w1")
	require.NoError(t, err)

	// The provider has not seen a payment for this invoice.
	assert.Equal(t, http.StatusConflict, postChargeCallback(t, api, a.InvoiceID, "completed"))
	_, err = u1.GetActivation(ctx, "w1")
	assert.ErrorIs(t, err, activation.ErrActivationUnpaid)

	assert.Equal(t, http.StatusOK, postChargeCallback(t, api, a.InvoiceID, "pending"))

	// Settled with the provider but unknown here.
	assert.Equal(t, http.StatusNotFound, postChargeCallback(t, api, "paid", "completed"))

	_, err = api.repo.CreateActivation(ctx, activation.Activation{
		WithdrawalID: "w2",
		UserID:       "u1",
		Sats:         defaultActivationSats,
		InvoiceID:    "paid",
		Provider:     "zbd",
		Status:       activation.StatusUnpaid,
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, postChargeCallback(t, api, "paid", "completed"))

	stored, err := api.repo.GetActivation(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, activation.StatusPaid, stored.Status)

	paid, err := u1.GetActivation(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, activation.StatusPaid, paid.Status)

	_, err = u1.CreateActivation(ctx, "w2")
	assert.ErrorIs(t, err, records.ErrConflict)
}

func TestRoutePattern(t *testing.T) {
	r := chi.NewRouter()

	var pattern string
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = routePattern(req)
		})
	})
	r.Get("/v1/payments/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/payments/P1", nil))
	assert.Equal(t, "/v1/payments/{id}", pattern)

	req := httptest.NewRequest(http.MethodGet, "/raw", nil)
	assert.Equal(t, "/raw", routePattern(req))
}
