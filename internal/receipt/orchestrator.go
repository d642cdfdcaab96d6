package receipt

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zenfi/core/internal/mimes"
	"github.com/zenfi/core/internal/records"
	"github.com/zenfi/core/internal/transport"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultStallTimeout = 15 * time.Second

	// Bounds the best-effort "failed" write, which must outlive a
	// canceled upload context.
	markFailedTimeout = 10 * time.Second
)

type Orchestrator struct {
	records      paymentRecords
	store        objectStore
	up           uploader
	stallTimeout time.Duration

	// OnProgress, when set, receives transport progress per payment.
	OnProgress func(paymentID string, p transport.Progress)
}

func NewOrchestrator(records paymentRecords, store objectStore, up uploader, stallTimeout time.Duration) *Orchestrator {
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}

	return &Orchestrator{
		records:      records,
		store:        store,
		up:           up,
		stallTimeout: stallTimeout,
	}
}

// ObjectPath is the remote key of a payment's receipt.
func ObjectPath(ownerID, paymentID string, f File) string {
	return fmt.Sprintf("%s/%s.%s", ownerID, paymentID, mimes.ReceiptExtension(f.Name, f.MimeType))
}

// UploadReceipt marks the payment as uploading, uploads f and records the
// locator. Any failure after the first write leaves the receipt "failed".
func (o *Orchestrator) UploadReceipt(ctx context.Context, ownerID, paymentID string, f File, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	err := o.records.UpdateReceipt(ctx, paymentID, records.ReceiptUpdate{Status: records.ReceiptUploading})
	if err != nil {
		return nil, fmt.Errorf("%w: mark uploading: %w", ErrRecordUpdate, err)
	}

	res, err := o.upload(ctx, ownerID, paymentID, f, timeout)
	if err != nil {
		o.markFailed(paymentID)
		return nil, err
	}

	log.Printf("upload: receipt %v stored at %v\n", paymentID, res.Path)

	return res, nil
}

func (o *Orchestrator) upload(ctx context.Context, ownerID, paymentID string, f File, timeout time.Duration) (*Result, error) {
	var (
		path        = ObjectPath(ownerID, paymentID, f)
		contentType = contentTypeOf(f)
	)

	signed, err := o.store.SignUpload(ctx, path, contentType)
	if err != nil {
		return nil, fmt.Errorf("store.SignUpload: %w", err)
	}

	req := transport.Request{
		URL:          signed.URL,
		Method:       signed.Method,
		Header:       signed.Header.Clone(),
		Body:         bytes.NewReader(f.Data),
		Size:         int64(len(f.Data)),
		ContentType:  contentType,
		Timeout:      timeout,
		StallTimeout: o.stallTimeout,
	}
	if o.OnProgress != nil {
		req.OnProgress = func(p transport.Progress) { o.OnProgress(paymentID, p) }
	}

	if err := o.up.Upload(ctx, req); err != nil {
		return nil, fmt.Errorf("transport.Upload: %w", err)
	}

	url, err := o.store.PublicURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("store.PublicURL: %w", err)
	}

	err = o.records.UpdateReceipt(ctx, paymentID, records.ReceiptUpdate{
		Status: records.ReceiptUploaded,
		URL:    &url,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mark uploaded: %w", ErrRecordUpdate, err)
	}

	return &Result{Path: path, URL: url}, nil
}

func (o *Orchestrator) markFailed(paymentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), markFailedTimeout)
	defer cancel()

	err := o.records.UpdateReceipt(ctx, paymentID, records.ReceiptUpdate{Status: records.ReceiptFailed})
	if err != nil {
		log.Printf("err: receipt: mark %v failed: %v\n", paymentID, err)
	}
}

func contentTypeOf(f File) string {
	if f.MimeType != "" {
		return f.MimeType
	}
	if m := mimes.FromFilename(f.Name); m != "" {
		return m
	}
	return "application/octet-stream"
}
