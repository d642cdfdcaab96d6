// Package receipt uploads payment receipts to the remote object store and
// recovers uploads that were interrupted before reaching a terminal state.
package receipt

import (
	"context"
	"time"

	"github.com/zenfi/core/internal/blobstore"
	"github.com/zenfi/core/internal/localstore"
	"github.com/zenfi/core/internal/records"
	"github.com/zenfi/core/internal/transport"
)

// File is a receipt as picked by the user.
type File struct {
	Name         string
	MimeType     string
	Data         []byte
	LastModified time.Time
}

// Result describes an uploaded receipt.
type Result struct {
	Path string
	URL  string
}

type paymentRecords interface {
	UpdateReceipt(ctx context.Context, paymentID string, u records.ReceiptUpdate) error
	LatestStuckPayment(ctx context.Context, ownerID string) (*records.Payment, error)
}

type objectStore interface {
	SignUpload(ctx context.Context, path, contentType string) (*blobstore.SignedURL, error)
	PublicURL(ctx context.Context, path string) (string, error)
	ListObjects(ctx context.Context, dir string) ([]blobstore.Object, error)
}

type uploader interface {
	Upload(ctx context.Context, req transport.Request) error
}

type blobCache interface {
	Put(ctx context.Context, key string, blob localstore.StoredBlob) error
	Get(ctx context.Context, key string) *localstore.StoredBlob
	Delete(ctx context.Context, key string) error
}
