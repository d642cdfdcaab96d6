package receipt

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/zenfi/core/internal/blobstore"
	"github.com/zenfi/core/internal/localstore"
	"github.com/zenfi/core/internal/records"
	"github.com/zenfi/core/internal/transport"
)

type mockRecords struct {
	mu       sync.Mutex
	payments map[string]*records.Payment
	updates  []records.ReceiptUpdate
	stuckErr error

	// failOn makes UpdateReceipt fail for the given target status.
	failOn map[records.ReceiptStatus]error
}

func newMockRecords(payments ...*records.Payment) *mockRecords {
	m := &mockRecords{
		payments: map[string]*records.Payment{},
		failOn:   map[records.ReceiptStatus]error{},
	}
	for _, p := range payments {
		m.payments[p.ID] = p
	}
	return m
}

func (m *mockRecords) UpdateReceipt(ctx context.Context, paymentID string, u records.ReceiptUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, u)

	if err := m.failOn[u.Status]; err != nil {
		return err
	}

	p, ok := m.payments[paymentID]
	if !ok {
		return records.ErrNotFound
	}
	if u.Expect != "" && p.ReceiptStatus != u.Expect {
		return records.ErrConflict
	}

	p.ReceiptStatus = u.Status
	if u.URL != nil {
		p.ReceiptURL = *u.URL
	}
	return nil
}

func (m *mockRecords) LatestStuckPayment(ctx context.Context, ownerID string) (*records.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stuckErr != nil {
		return nil, m.stuckErr
	}

	for _, p := range m.payments {
		if p.UserID == ownerID && p.Status == records.PaymentPending && p.ReceiptStatus == records.ReceiptUploading {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRecords) status(id string) records.ReceiptStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id].ReceiptStatus
}

func (m *mockRecords) url(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id].ReceiptURL
}

type mockStore struct {
	mu        sync.Mutex
	objects   map[string][]blobstore.Object
	signErr   error
	listErr   error
	listCalls int
	signed    []string
}

func newMockStore() *mockStore {
	return &mockStore{objects: map[string][]blobstore.Object{}}
}

func (m *mockStore) SignUpload(ctx context.Context, path, contentType string) (*blobstore.SignedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.signErr != nil {
		return nil, m.signErr
	}
	m.signed = append(m.signed, path)
	return &blobstore.SignedURL{URL: "https://upload.test/" + path, Method: "PUT"}, nil
}

func (m *mockStore) PublicURL(ctx context.Context, path string) (string, error) {
	return "https://cdn.test/" + path, nil
}

func (m *mockStore) ListObjects(ctx context.Context, dir string) ([]blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects[dir], nil
}

type mockUploader struct {
	mu   sync.Mutex
	err  error
	reqs []transport.Request
	body [][]byte

	// block, when set, holds uploads until it is closed.
	block chan struct{}
}

func (m *mockUploader) Upload(ctx context.Context, req transport.Request) error {
	if m.block != nil {
		<-m.block
	}

	b, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	if req.OnProgress != nil {
		req.OnProgress(transport.Progress{Sent: int64(len(b)), Total: req.Size})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	m.body = append(m.body, b)
	return m.err
}

func (m *mockUploader) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

type mockCache struct {
	mu     sync.Mutex
	blobs  map[string]localstore.StoredBlob
	putErr error
}

func newMockCache() *mockCache {
	return &mockCache{blobs: map[string]localstore.StoredBlob{}}
}

func (m *mockCache) Put(ctx context.Context, key string, blob localstore.StoredBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return m.putErr
	}
	m.blobs[key] = blob
	return nil
}

func (m *mockCache) Get(ctx context.Context, key string) *localstore.StoredBlob {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil
	}
	return &b
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}

func (m *mockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.blobs[key]
	return ok
}

var errBoom = errors.New("boom")

func (m *mockStore) signedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signed)
}
