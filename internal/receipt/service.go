package receipt

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zenfi/core/internal/localstore"
)

// Service is the caller-facing receipt flow: the bytes are cached before
// the upload and dropped once the remote copy is settled.
type Service struct {
	orch    *Orchestrator
	cache   blobCache
	timeout time.Duration
}

func NewService(orch *Orchestrator, cache blobCache, timeout time.Duration) *Service {
	return &Service{
		orch:    orch,
		cache:   cache,
		timeout: timeout,
	}
}

func (s *Service) Submit(ctx context.Context, ownerID, paymentID string, f File) (*Result, error) {
	if err := SaveReceiptForPayment(ctx, s.cache, paymentID, f); err != nil {
		log.Printf("err: receipt: cache %v: %v\n", paymentID, err)
	}

	return s.upload(ctx, ownerID, paymentID, f)
}

// Retry replays a failed upload from the cached bytes.
func (s *Service) Retry(ctx context.Context, ownerID, paymentID string) (*Result, error) {
	f := LoadReceiptForPayment(ctx, s.cache, paymentID)
	if f == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRecoverable, paymentID)
	}

	return s.upload(ctx, ownerID, paymentID, *f)
}

func (s *Service) upload(ctx context.Context, ownerID, paymentID string, f File) (*Result, error) {
	res, err := s.orch.UploadReceipt(ctx, ownerID, paymentID, f, s.timeout)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Delete(ctx, localstore.PaymentKey(paymentID)); err != nil {
		log.Printf("err: receipt: purge %v: %v\n", paymentID, err)
	}

	return res, nil
}
