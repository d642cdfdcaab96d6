package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/zenfi/core/internal/activation"
	"github.com/zenfi/core/internal/auth"
	"github.com/zenfi/core/internal/blobstore"
	"github.com/zenfi/core/internal/blobstore/filesystem"
	"github.com/zenfi/core/internal/mimes"
	"github.com/zenfi/core/internal/records"
)

var errForbidden = errors.New("forbidden")

type handlers struct {
	config   Config
	records  recordStore
	store    blobstore.Store
	files    *filesystem.Store
	acts     activationService
	notifier receiptNotifier
}

type recordStore interface {
	CreatePayment(ctx context.Context, req records.CreatePaymentRequest) (*records.Payment, error)
	GetPayment(ctx context.Context, id string) (*records.Payment, error)
	ListPayments(ctx context.Context, userID string, statuses ...records.PaymentStatus) ([]records.Payment, error)
	LatestStuckPayment(ctx context.Context, userID string) (*records.Payment, error)
	UpdateReceipt(ctx context.Context, id string, u records.ReceiptUpdate) error
	UpdatePaymentStatus(ctx context.Context, id string, status records.PaymentStatus) error
	IsAdmin(ctx context.Context, userID string) (bool, error)
	GetNextClaimTime(ctx context.Context, userID string) (*time.Time, error)
	SetNextClaimTime(ctx context.Context, userID string, next *time.Time) error
}

type activationService interface {
	CreateActivation(ctx context.Context, a activation.Activation) (*activation.Activation, error)
	GetActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error)
	ConfirmPaid(ctx context.Context, invoiceID string) error
}

type receiptNotifier interface {
	ReceiptUploaded(ctx context.Context, p *records.Payment)
}

func (h *handlers) routes(r chi.Router, signer *auth.Signer) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(signer.Middleware)

		r.Post("/payments", h.handleCreatePayment)
		r.Get("/payments", h.handleListPayments)
		r.Get("/payments/stuck", h.handleStuckPayment)
		r.Get("/payments/{id}", h.handleGetPayment)
		r.Patch("/payments/{id}/receipt", h.handleUpdateReceipt)
		r.Patch("/payments/{id}/status", h.handleUpdatePaymentStatus)

		r.Get("/profile/next-claim", h.handleGetNextClaim)
		r.Put("/profile/next-claim", h.handlePutNextClaim)

		r.Get("/storage/objects", h.handleListObjects)
		r.Post("/storage/sign-upload", h.handleSignUpload)
		r.Post("/storage/sign-download", h.handleSignDownload)
		r.Get("/storage/public-url", h.handlePublicURL)

		r.Post("/activations", h.handleCreateActivation)
		r.Get("/activations/{withdrawalID}", h.handleGetActivation)
	})

	if h.config.LightningProvider == "zbd" {
		r.Post("/callback/zbd-charge", h.handleCallbackZBDCharge)
	}

	if h.files != nil {
		r.Put(filesystem.FilesPrefix+"*", h.handlePutFile)
		r.Get(filesystem.FilesPrefix+"*", h.handleGetFile)
	}
}

// authorize allows the owner of a resource and admins.
func (h *handlers) authorize(ctx context.Context, ownerID string) error {
	caller, _ := auth.UserID(ctx)
	if caller != "" && caller == ownerID {
		return nil
	}

	admin, err := h.records.IsAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !admin {
		return errForbidden
	}
	return nil
}

func (h *handlers) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		body      struct {
			Amount decimal.Decimal `json:"amount"`
		}
	)

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}
	if !body.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	p, err := h.records.CreatePayment(ctx, records.CreatePaymentRequest{
		UserID: caller,
		Amount: body.Amount,
	})
	if err != nil {
		log.Printf("err: records.CreatePayment: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) handleListPayments(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		statuses  []records.PaymentStatus
	)

	for _, s := range r.URL.Query()["status"] {
		status := records.PaymentStatus(s)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		statuses = append(statuses, status)
	}

	payments, err := h.records.ListPayments(ctx, caller, statuses...)
	if err != nil {
		log.Printf("err: records.ListPayments: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if payments == nil {
		payments = []records.Payment{}
	}

	writeJSON(w, http.StatusOK, payments)
}

func (h *handlers) handleStuckPayment(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		userID    = r.URL.Query().Get("user_id")
	)
	if userID == "" {
		userID = caller
	}

	if err := h.authorize(ctx, userID); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.records.LatestStuckPayment(ctx, userID)
	if err != nil {
		log.Printf("err: records.LatestStuckPayment: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPayment(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleUpdateReceipt sets the receipt fields of a payment. A non-empty
// expect makes the update conditional on the current receipt status.
func (h *handlers) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var u records.ReceiptUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}
	if !u.Status.Valid() || (u.Expect != "" && !u.Expect.Valid()) {
		http.Error(w, "invalid receipt status", http.StatusBadRequest)
		return
	}

	p, ok := h.loadPayment(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.records.UpdateReceipt(ctx, p.ID, u); err != nil {
		if !errors.Is(err, records.ErrConflict) {
			log.Printf("err: records.UpdateReceipt: %v", err)
		}
		writeError(w, err)
		return
	}

	receiptCounter.WithLabelValues(string(u.Status)).Inc()

	if u.Status == records.ReceiptUploaded && h.notifier != nil {
		p.ReceiptStatus = u.Status
		if u.URL != nil {
			p.ReceiptURL = *u.URL
		}
		go h.notifier.ReceiptUploaded(context.Background(), p)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleUpdatePaymentStatus is the admin review decision on a payment.
func (h *handlers) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		body      struct {
			Status records.PaymentStatus `json:"status"`
		}
	)

	admin, err := h.records.IsAdmin(ctx, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	if !admin {
		writeError(w, errForbidden)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}
	if !body.Status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := h.records.UpdatePaymentStatus(ctx, chi.URLParam(r, "id"), body.Status); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type nextClaim struct {
	NextClaimTime *time.Time `json:"next_claim_time"`
}

func (h *handlers) handleGetNextClaim(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
	)

	next, err := h.records.GetNextClaimTime(ctx, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nextClaim{NextClaimTime: next})
}

func (h *handlers) handlePutNextClaim(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		body      nextClaim
	)

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	if err := h.records.SetNextClaimTime(ctx, caller, body.NextClaimTime); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleListObjects(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		dir       = strings.TrimSuffix(r.URL.Query().Get("dir"), "/")
	)
	if dir == "" {
		dir = caller
	}

	dir, err := blobstore.CleanPath(dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.authorize(ctx, blobstore.Owner(dir)); err != nil {
		writeError(w, err)
		return
	}

	objects, err := h.store.List(ctx, dir)
	if err != nil {
		log.Printf("err: store.List: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if objects == nil {
		objects = []blobstore.Object{}
	}

	writeJSON(w, http.StatusOK, objects)
}

type signRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// handleSignUpload issues an upload URL. Users may only write under their
// own prefix.
func (h *handlers) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		body      signRequest
	)

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	path, err := blobstore.CleanPath(body.Path)
	if err != nil || !strings.Contains(path, "/") {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if blobstore.Owner(path) != caller {
		writeError(w, errForbidden)
		return
	}

	contentType := body.ContentType
	if contentType == "" {
		contentType = mimes.FromFilename(path)
	}
	if !mimes.Accepted(h.config.AcceptedMimetypes, contentType) {
		log.Printf("unaccepted mimetype %q\n", contentType)
		http.Error(w, "unaccepted content type", http.StatusBadRequest)
		return
	}

	signed, err := h.store.SignUpload(ctx, path, contentType, h.config.SignedURLTTL())
	if err != nil {
		writeError(w, err)
		return
	}

	signedURLCounter.WithLabelValues("upload").Inc()
	writeJSON(w, http.StatusOK, signed)
}

// handleSignDownload issues a download URL to the owner of the path or an
// admin.
func (h *handlers) handleSignDownload(w http.ResponseWriter, r *http.Request) {
	var (
		ctx  = r.Context()
		body signRequest
	)

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	path, err := blobstore.CleanPath(body.Path)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if err := h.authorize(ctx, blobstore.Owner(path)); err != nil {
		writeError(w, err)
		return
	}

	signed, err := h.store.SignDownload(ctx, path, h.config.SignedURLTTL())
	if err != nil {
		writeError(w, err)
		return
	}

	signedURLCounter.WithLabelValues("download").Inc()
	writeJSON(w, http.StatusOK, signed)
}

func (h *handlers) handlePublicURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, err := blobstore.CleanPath(r.URL.Query().Get("path"))
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if err := h.authorize(ctx, blobstore.Owner(path)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": h.store.PublicURL(path)})
}

// handleCreateActivation issues the invoice that unlocks a withdrawal. A
// still-payable invoice for the same withdrawal is returned again.
func (h *handlers) handleCreateActivation(w http.ResponseWriter, r *http.Request) {
	var (
		ctx       = r.Context()
		caller, _ = auth.UserID(ctx)
		body      struct {
			WithdrawalID string `json:"withdrawal_id"`
		}
	)

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}
	if body.WithdrawalID == "" {
		http.Error(w, "must provide withdrawal_id", http.StatusBadRequest)
		return
	}

	existing, err := h.acts.GetActivation(ctx, body.WithdrawalID)
	switch {
	case err == nil:
		http.Error(w, "withdrawal already activated", http.StatusConflict)
		return
	case errors.Is(err, activation.ErrActivationUnpaid):
		if existing.UserID != caller {
			writeError(w, errForbidden)
			return
		}
		writeJSON(w, http.StatusPaymentRequired, existing)
		return
	case errors.Is(err, activation.ErrActivationNotFound), errors.Is(err, activation.ErrActivationExpired):
		// noop
	default:
		log.Printf("err: acts.GetActivation: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	a, err := h.acts.CreateActivation(ctx, activation.Activation{
		WithdrawalID: body.WithdrawalID,
		UserID:       caller,
		Sats:         h.config.ActivationSats,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.config.ActivationTTL()),
	})
	if err != nil {
		log.Printf("err: acts.CreateActivation: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	activationCounter.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusPaymentRequired, a)
}

func (h *handlers) handleGetActivation(w http.ResponseWriter, r *http.Request) {
	var (
		ctx          = r.Context()
		withdrawalID = chi.URLParam(r, "withdrawalID")
	)

	a, err := h.acts.GetActivation(ctx, withdrawalID)
	switch {
	case errors.Is(err, activation.ErrActivationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, activation.ErrActivationExpired):
		http.Error(w, err.Error(), http.StatusGone)
		return
	case err != nil && !errors.Is(err, activation.ErrActivationUnpaid):
		log.Printf("err: acts.GetActivation: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.authorize(ctx, a.UserID); err != nil {
		writeError(w, err)
		return
	}

	if a.Status != activation.StatusPaid {
		writeJSON(w, http.StatusPaymentRequired, a)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) handleCallbackZBDCharge(w http.ResponseWriter, r *http.Request) {
	var data struct {
		Amount      string `json:"amount"`      // "1000000"
		ConfirmedAt string `json:"confirmedAt"` // "2023-07-31T21:14:44.000Z"
		CreatedAt   string `json:"createdAt"`   // "2023-07-31T21:14:33.184Z"
		Description string `json:"description"` // "ZenFi withdrawal activation"
		ExpiresAt   string `json:"expiresAt"`   // "2023-07-31T21:19:33.163Z"
		ID          string `json:"id"`          // "077c6d70-421f-4a5c-9baa-85c80ec11ace"
		InternalID  string `json:"internalId"`  // withdrawal id
		Invoice     struct {
			Request string `json:"request"` // "lnbc10u1pjvsfpepp597...",
			URI     string `json:"uri"`     // "lightning:lnbc10u1pj..."
		} `json:"invoice"`
		Status string `json:"status"` // "completed"
		Unit   string `json:"unit"`   // "msats"
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "expected JSON payload", http.StatusBadRequest)
		return
	}

	if data.Status == "completed" {
		ctx := r.Context()
		err := h.acts.ConfirmPaid(ctx, data.ID)
		switch {
		case errors.Is(err, activation.ErrActivationUnpaid):
			log.Printf("callback: invoice not settled with provider: invoice_id=%v\n", data.ID)
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, activation.ErrActivationNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			log.Printf("error: confirmPaid: invoice_id=%v err=%v", data.ID, err.Error())
			http.Error(w, "unable to update invoice status", http.StatusInternalServerError)
			return
		}
		activationCounter.WithLabelValues("paid").Inc()
	}

	w.WriteHeader(http.StatusOK)
}

// handlePutFile accepts a signed upload for the filesystem backend.
func (h *handlers) handlePutFile(w http.ResponseWriter, r *http.Request) {
	path, ok := h.verifyFileRequest(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !mimes.Accepted(h.config.AcceptedMimetypes, contentType) {
		http.Error(w, "unaccepted content type", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxReceiptSizeMB*1024*1024)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.files.Put(r.Context(), path, data, contentType, true); err != nil {
		log.Printf("err: files.Put: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleGetFile serves a signed download for the filesystem backend.
func (h *handlers) handleGetFile(w http.ResponseWriter, r *http.Request) {
	path, ok := h.verifyFileRequest(w, r)
	if !ok {
		return
	}

	data, err := h.files.Read(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}

	if contentType := mimes.FromFilename(path); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Write(data)
}

func (h *handlers) verifyFileRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	path, err := blobstore.CleanPath(chi.URLParam(r, "*"))
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return "", false
	}

	if err := h.files.Verify(r.Method, path, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return "", false
	}

	return path, true
}

func (h *handlers) loadPayment(w http.ResponseWriter, r *http.Request) (*records.Payment, bool) {
	ctx := r.Context()

	p, err := h.records.GetPayment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	if err := h.authorize(ctx, p.UserID); err != nil {
		writeError(w, err)
		return nil, false
	}

	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	jsonb, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal resp: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonb)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, records.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, records.ErrConflict), errors.Is(err, blobstore.ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, blobstore.ErrInvalidPath):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("err: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
