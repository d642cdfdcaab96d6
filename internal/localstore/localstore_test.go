package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "state", "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestBlobsPutGet(t *testing.T) {
	var (
		ctx   = context.Background()
		blobs = openTestStore(t).Blobs()
		now   = time.UnixMilli(time.Now().UnixMilli())
		blob  = StoredBlob{
			Data:         []byte("\x89PNG receipt"),
			MimeType:     "image/png",
			Filename:     "receipt.png",
			LastModified: now,
		}
	)

	assert.NoError(t, blobs.Put(ctx, PaymentKey("P1"), blob))

	got := blobs.Get(ctx, PaymentKey("P1"))
	require.NotNil(t, got)
	assert.Equal(t, blob.Data, got.Data)
	assert.Equal(t, blob.MimeType, got.MimeType)
	assert.Equal(t, blob.Filename, got.Filename)
	assert.True(t, now.Equal(got.LastModified))

	// Draft and payment namespaces do not collide.
	assert.Nil(t, blobs.Get(ctx, DraftKey("P1")))
}

func TestBlobsOverwriteAndDelete(t *testing.T) {
	var (
		ctx   = context.Background()
		blobs = openTestStore(t).Blobs()
		key   = DraftKey("d-1")
	)

	assert.NoError(t, blobs.Put(ctx, key, StoredBlob{Data: []byte("one"), MimeType: "image/jpeg", Filename: "a.jpg"}))
	assert.NoError(t, blobs.Put(ctx, key, StoredBlob{Data: []byte("two"), MimeType: "image/png", Filename: "b.png"}))

	got := blobs.Get(ctx, key)
	require.NotNil(t, got)
	assert.Equal(t, []byte("two"), got.Data)
	assert.Equal(t, "b.png", got.Filename)

	keys, err := blobs.Keys(ctx, KindDraft)
	assert.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	assert.NoError(t, blobs.Delete(ctx, key))
	assert.Nil(t, blobs.Get(ctx, key))

	// Deleting a missing key is not an error.
	assert.NoError(t, blobs.Delete(ctx, key))
}

func TestBlobsGetAfterCloseIsMiss(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)

	blobs := s.Blobs()
	assert.NoError(t, blobs.Put(context.Background(), PaymentKey("P1"), StoredBlob{Data: []byte("x")}))
	assert.NoError(t, s.Close())

	assert.Nil(t, blobs.Get(context.Background(), PaymentKey("P1")))
}

func TestBlobsSurviveReopen(t *testing.T) {
	var (
		ctx  = context.Background()
		path = filepath.Join(t.TempDir(), "local.db")
	)

	s, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s.Blobs().Put(ctx, PaymentKey("P2"), StoredBlob{Data: []byte("bytes"), Filename: "r.jpg"}))
	assert.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got := s.Blobs().Get(ctx, PaymentKey("P2"))
	require.NotNil(t, got)
	assert.Equal(t, []byte("bytes"), got.Data)
}

func TestKV(t *testing.T) {
	var (
		ctx = context.Background()
		kv  = openTestStore(t).KV()
	)

	_, ok, err := kv.Get(ctx, "zenfi.last_route")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, kv.Set(ctx, "zenfi.last_route", "/withdraw"))
	value, ok, err := kv.Get(ctx, "zenfi.last_route")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/withdraw", value)

	assert.NoError(t, kv.Delete(ctx, "zenfi.last_route"))
	_, ok, err = kv.Get(ctx, "zenfi.last_route")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestKVJSON(t *testing.T) {
	var (
		ctx = context.Background()
		kv  = openTestStore(t).KV()
	)

	type entry struct {
		Step string `json:"step"`
		N    int    `json:"n"`
	}

	var got entry
	ok, err := kv.GetJSON(ctx, "flow", &got)
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, kv.SetJSON(ctx, "flow", entry{Step: "form", N: 2}))
	ok, err = kv.GetJSON(ctx, "flow", &got)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry{Step: "form", N: 2}, got)

	assert.NoError(t, kv.Set(ctx, "flow", "{not json"))
	_, err = kv.GetJSON(ctx, "flow", &got)
	assert.Error(t, err)
}
