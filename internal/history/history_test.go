package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenfi/core/internal/localstore"
)

func newHistory(t *testing.T) *History {
	t.Helper()

	ls, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ls.Close() })

	return New(ls.KV())
}

func TestAppendNewestFirst(t *testing.T) {
	var (
		ctx = context.Background()
		h   = newHistory(t)
	)

	entries, err := h.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	first, err := h.Append(ctx, Entry{Kind: KindClaim, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.At.IsZero())

	_, err = h.Append(ctx, Entry{ID: "w1", Kind: KindWithdrawal, Amount: decimal.RequireFromString("12.50"), Reference: "P1"})
	require.NoError(t, err)

	entries, err = h.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "w1", entries[0].ID)
	assert.Equal(t, "P1", entries[0].Reference)
	assert.True(t, decimal.RequireFromString("12.5").Equal(entries[0].Amount))
	assert.Equal(t, first.ID, entries[1].ID)
}

func TestAppendCapped(t *testing.T) {
	var (
		ctx = context.Background()
		h   = newHistory(t)
	)

	for i := 0; i < MaxEntries+5; i++ {
		_, err := h.Append(ctx, Entry{ID: fmt.Sprint(i), Kind: KindClaim})
		require.NoError(t, err)
	}

	entries, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, MaxEntries)
	assert.Equal(t, fmt.Sprint(MaxEntries+4), entries[0].ID)
	assert.Equal(t, "5", entries[MaxEntries-1].ID)
}

func TestClear(t *testing.T) {
	var (
		ctx = context.Background()
		h   = newHistory(t)
	)

	_, err := h.Append(ctx, Entry{Kind: KindClaim})
	require.NoError(t, err)
	require.NoError(t, h.Clear(ctx))

	entries, err := h.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}
