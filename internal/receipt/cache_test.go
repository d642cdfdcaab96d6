package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfi/core/internal/localstore"
)

func TestDraftPromotion(t *testing.T) {
	var (
		ctx   = context.Background()
		cache = newMockCache()
		file  = File{
			Name:         "scan.heic",
			MimeType:     "image/heic",
			Data:         []byte("heic"),
			LastModified: time.Unix(1700000000, 0),
		}
	)

	require.NoError(t, SaveReceiptForDraft(ctx, cache, "d1", file))
	assert.Nil(t, LoadReceiptForPayment(ctx, cache, "P1"))

	require.NoError(t, PromoteDraft(ctx, cache, "d1", "P1"))
	assert.False(t, cache.has(localstore.DraftKey("d1")))

	got := LoadReceiptForPayment(ctx, cache, "P1")
	require.NotNil(t, got)
	assert.Equal(t, file, *got)

	err := PromoteDraft(ctx, cache, "d1", "P2")
	assert.ErrorIs(t, err, ErrNoDraft)
}

func TestStoredReceiptToFile(t *testing.T) {
	blob := &localstore.StoredBlob{
		Data:         []byte("pdf"),
		MimeType:     "application/pdf",
		Filename:     "r.pdf",
		LastModified: time.Unix(1700000000, 0),
	}

	assert.Equal(t, File{
		Name:         "r.pdf",
		MimeType:     "application/pdf",
		Data:         []byte("pdf"),
		LastModified: time.Unix(1700000000, 0),
	}, StoredReceiptToFile(blob))
}
