package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zenfi/core/internal/activation"
)

const activationColumns = "id, withdrawal_id, user_id, sats, invoice_id, provider, status, lightning_invoice, created_at, expires_at, updated_at"

func (d *DB) CreateActivation(ctx context.Context, a activation.Activation) (*activation.Activation, error) {
	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.ExpiresAt = a.ExpiresAt.UTC()

	query, args, err := sqlx.Named(`INSERT INTO activations (`+activationColumns+`)
VALUES (:id, :withdrawal_id, :user_id, :sats, :invoice_id, :provider, :status, :lightning_invoice, :created_at, :expires_at, :updated_at)`, a)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Named createActivation: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("db.Exec createActivation: %w", err)
	}

	return &a, nil
}

// GetActivation returns the newest activation for a withdrawal, or nil.
func (d *DB) GetActivation(ctx context.Context, withdrawalID string) (*activation.Activation, error) {
	query := d.db.Rebind("SELECT " + activationColumns + " FROM activations WHERE withdrawal_id=? ORDER BY created_at DESC LIMIT 1")

	var a activation.Activation
	if err := d.db.GetContext(ctx, &a, query, withdrawalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.Get activation: %w", err)
	}

	return &a, nil
}

func (d *DB) UpdateActivationStatus(ctx context.Context, invoiceID string, status activation.Status) error {
	query := d.db.Rebind("UPDATE activations SET status=?, updated_at=? WHERE invoice_id=?")

	res, err := d.db.ExecContext(ctx, query, status, time.Now().UTC(), invoiceID)
	if err != nil {
		return fmt.Errorf("db.Exec update activation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return activation.ErrActivationNotFound
	}

	return nil
}
