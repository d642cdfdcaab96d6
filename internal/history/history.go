// Package history keeps the device-local list of recent transactions,
// newest first.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Key        = "zenfi.transaction_history"
	MaxEntries = 50
)

type Kind string

const (
	KindClaim      Kind = "claim"
	KindWithdrawal Kind = "withdrawal"
	KindPayment    Kind = "payment"
	KindActivation Kind = "activation"
)

type Entry struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	At        time.Time       `json:"at"`
}

type store interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

type History struct {
	store store
	now   func() time.Time
}

func New(s store) *History {
	return &History{store: s, now: time.Now}
}

// Append records e as the newest entry, dropping the oldest past
// MaxEntries. Missing ids and times are filled in.
func (h *History) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = h.now().UTC()
	}

	entries, err := h.List(ctx)
	if err != nil {
		return Entry{}, err
	}

	entries = append([]Entry{e}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	if err := h.store.SetJSON(ctx, Key, entries); err != nil {
		return Entry{}, fmt.Errorf("store.SetJSON: %w", err)
	}

	return e, nil
}

func (h *History) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if _, err := h.store.GetJSON(ctx, Key, &entries); err != nil {
		return nil, fmt.Errorf("store.GetJSON: %w", err)
	}
	return entries, nil
}

func (h *History) Clear(ctx context.Context) error {
	return h.store.Delete(ctx, Key)
}
