package receipt

import (
	"context"
	"fmt"

	"github.com/zenfi/core/internal/localstore"
)

func SaveReceiptForDraft(ctx context.Context, cache blobCache, draftID string, f File) error {
	return cache.Put(ctx, localstore.DraftKey(draftID), storedBlob(f))
}

func SaveReceiptForPayment(ctx context.Context, cache blobCache, paymentID string, f File) error {
	return cache.Put(ctx, localstore.PaymentKey(paymentID), storedBlob(f))
}

// LoadReceiptForPayment returns the cached receipt of a payment, or nil.
func LoadReceiptForPayment(ctx context.Context, cache blobCache, paymentID string) *File {
	blob := cache.Get(ctx, localstore.PaymentKey(paymentID))
	if blob == nil {
		return nil
	}

	f := StoredReceiptToFile(blob)
	return &f
}

// PromoteDraft moves a draft's receipt to the payment created from it.
func PromoteDraft(ctx context.Context, cache blobCache, draftID, paymentID string) error {
	blob := cache.Get(ctx, localstore.DraftKey(draftID))
	if blob == nil {
		return fmt.Errorf("%w: %v", ErrNoDraft, draftID)
	}

	if err := cache.Put(ctx, localstore.PaymentKey(paymentID), *blob); err != nil {
		return fmt.Errorf("cache.Put: %w", err)
	}

	if err := cache.Delete(ctx, localstore.DraftKey(draftID)); err != nil {
		return fmt.Errorf("cache.Delete: %w", err)
	}

	return nil
}

func StoredReceiptToFile(blob *localstore.StoredBlob) File {
	return File{
		Name:         blob.Filename,
		MimeType:     blob.MimeType,
		Data:         blob.Data,
		LastModified: blob.LastModified,
	}
}

func storedBlob(f File) localstore.StoredBlob {
	return localstore.StoredBlob{
		Data:         f.Data,
		MimeType:     f.MimeType,
		Filename:     f.Name,
		LastModified: f.LastModified,
	}
}
