package receipt

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zenfi/core/internal/localstore"
	"github.com/zenfi/core/internal/records"
	"github.com/zenfi/core/internal/transport"
)

type Outcome string

const (
	OutcomeIdle            Outcome = "idle"
	OutcomeBusy            Outcome = "busy"
	OutcomeAlreadyUploaded Outcome = "already-uploaded"
	OutcomeNotRecoverable  Outcome = "not-recoverable"
	OutcomeReuploaded      Outcome = "reuploaded"
	OutcomeRetryFailed     Outcome = "retry-failed"
	OutcomeError           Outcome = "error"
)

// Recoverer finds the latest payment stuck in "uploading" and settles it.
// One pass runs at a time per Recoverer.
type Recoverer struct {
	records paymentRecords
	store   objectStore
	cache   blobCache
	orch    *Orchestrator
	timeout time.Duration

	running atomic.Bool
}

func NewRecoverer(records paymentRecords, store objectStore, cache blobCache, orch *Orchestrator, timeout time.Duration) *Recoverer {
	return &Recoverer{
		records: records,
		store:   store,
		cache:   cache,
		orch:    orch,
		timeout: timeout,
	}
}

// Recover runs one pass for ownerID. Failures are logged, never returned.
func (r *Recoverer) Recover(ctx context.Context, ownerID string) Outcome {
	if !r.running.CompareAndSwap(false, true) {
		return OutcomeBusy
	}
	defer r.running.Store(false)

	p, err := r.records.LatestStuckPayment(ctx, ownerID)
	if err != nil {
		log.Printf("err: recover: stuck payment of %v: %v\n", ownerID, err)
		return OutcomeError
	}
	if p == nil {
		return OutcomeIdle
	}

	objects, err := r.store.ListObjects(ctx, ownerID)
	if err != nil {
		log.Printf("err: recover: list %v: %v\n", ownerID, err)
	}
	for _, obj := range objects {
		if strings.HasPrefix(obj.Name, p.ID) {
			return r.settleUploaded(ctx, p, ownerID+"/"+obj.Name)
		}
	}

	cached := LoadReceiptForPayment(ctx, r.cache, p.ID)
	if cached == nil {
		if err != nil {
			// The object may exist; a later pass can tell.
			return OutcomeError
		}
		return r.settleNotRecoverable(ctx, p)
	}

	if _, err := r.orch.UploadReceipt(ctx, ownerID, p.ID, *cached, r.timeout); err != nil {
		if transport.IsTransient(err) {
			log.Printf("recover: reupload %v interrupted, keeping cached receipt: %v\n", p.ID, err)
		} else {
			log.Printf("err: recover: reupload %v: status=%v: %v\n", p.ID, transport.StatusCode(err), err)
		}
		return OutcomeRetryFailed
	}

	r.purge(ctx, p.ID)
	log.Printf("recover: reuploaded receipt of %v\n", p.ID)

	return OutcomeReuploaded
}

func (r *Recoverer) settleUploaded(ctx context.Context, p *records.Payment, path string) Outcome {
	url, err := r.store.PublicURL(ctx, path)
	if err != nil {
		log.Printf("err: recover: public url %v: %v\n", path, err)
		return OutcomeError
	}

	err = r.records.UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{
		Status: records.ReceiptUploaded,
		URL:    &url,
		Expect: records.ReceiptUploading,
	})
	if err != nil && !errors.Is(err, records.ErrConflict) {
		log.Printf("err: recover: mark %v uploaded: %v\n", p.ID, err)
		return OutcomeError
	}

	r.purge(ctx, p.ID)
	log.Printf("recover: %v already uploaded at %v\n", p.ID, path)

	return OutcomeAlreadyUploaded
}

func (r *Recoverer) settleNotRecoverable(ctx context.Context, p *records.Payment) Outcome {
	err := r.records.UpdateReceipt(ctx, p.ID, records.ReceiptUpdate{
		Status: records.ReceiptFailed,
		Expect: records.ReceiptUploading,
	})
	if err != nil && !errors.Is(err, records.ErrConflict) {
		log.Printf("err: recover: mark %v failed: %v\n", p.ID, err)
		return OutcomeError
	}

	r.purge(ctx, p.ID)
	log.Printf("recover: %v not recoverable\n", p.ID)

	return OutcomeNotRecoverable
}

func (r *Recoverer) purge(ctx context.Context, paymentID string) {
	if err := r.cache.Delete(ctx, localstore.PaymentKey(paymentID)); err != nil {
		log.Printf("err: recover: purge %v: %v\n", paymentID, err)
	}
}
