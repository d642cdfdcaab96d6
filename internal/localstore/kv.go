package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KV stores small string values by key.
type KV struct {
	db *sql.DB
}

// Get returns the value for key and whether it exists.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := kv.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key=?", key).Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (kv *KV) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`

	_, err := kv.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli())
	return err
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	_, err := kv.db.ExecContext(ctx, "DELETE FROM kv WHERE key=?", key)
	return err
}

// GetJSON decodes the value for key into v. It reports false when the key
// is absent.
func (kv *KV) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	value, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	if err := json.Unmarshal([]byte(value), v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}

	return true, nil
}

func (kv *KV) SetJSON(ctx context.Context, key string, v any) error {
	jsonb, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}

	return kv.Set(ctx, key, string(jsonb))
}
