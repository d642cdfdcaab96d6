package localstore

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"
)

// Entity kinds used to namespace cache keys.
const (
	KindDraft   = "draft"
	KindPayment = "payment"
)

// StoredBlob is a cached file.
type StoredBlob struct {
	Data         []byte
	MimeType     string
	Filename     string
	LastModified time.Time
}

func Key(kind, id string) string {
	return kind + ":" + id
}

func DraftKey(id string) string {
	return Key(KindDraft, id)
}

func PaymentKey(id string) string {
	return Key(KindPayment, id)
}

// Blobs is the durable blob cache. Entries never expire on their own;
// callers delete them once the remote copy is settled.
type Blobs struct {
	db *sql.DB
}

func (b *Blobs) Put(ctx context.Context, key string, blob StoredBlob) error {
	const query = `INSERT INTO blobs (key, data, mimetype, filename, last_modified) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET data=excluded.data, mimetype=excluded.mimetype, filename=excluded.filename, last_modified=excluded.last_modified`

	lastModified := blob.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	if blob.Data == nil {
		blob.Data = []byte{}
	}

	_, err := b.db.ExecContext(ctx, query, key, blob.Data, blob.MimeType, blob.Filename, lastModified.UnixMilli())
	return err
}

// Get returns the blob stored under key, or nil. Storage failures are
// logged and reported as a miss.
func (b *Blobs) Get(ctx context.Context, key string) *StoredBlob {
	const query = `SELECT data, mimetype, filename, last_modified FROM blobs WHERE key=?`

	var (
		blob         StoredBlob
		lastModified int64
	)
	err := b.db.QueryRowContext(ctx, query, key).Scan(&blob.Data, &blob.MimeType, &blob.Filename, &lastModified)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("err: blobcache get %q: %v", key, err)
		}
		return nil
	}
	blob.LastModified = time.UnixMilli(lastModified)

	return &blob
}

func (b *Blobs) Delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM blobs WHERE key=?", key)
	return err
}

// Keys lists cached keys of one kind.
func (b *Blobs) Keys(ctx context.Context, kind string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT key FROM blobs WHERE key LIKE ? ORDER BY last_modified DESC", kind+":%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}
