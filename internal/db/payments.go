package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zenfi/core/internal/records"
)

const paymentColumns = "id, user_id, amount, status, receipt_status, receipt_url, created_at, updated_at"

func (d *DB) CreatePayment(ctx context.Context, req records.CreatePaymentRequest) (*records.Payment, error) {
	now := time.Now().UTC()
	p := &records.Payment{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Amount:        req.Amount,
		Status:        records.PaymentPending,
		ReceiptStatus: records.ReceiptNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query, args, err := sqlx.Named(`INSERT INTO payments (`+paymentColumns+`)
VALUES (:id, :user_id, :amount, :status, :receipt_status, :receipt_url, :created_at, :updated_at)`, p)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Named createPayment: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("db.Exec createPayment: %w", err)
	}

	return p, nil
}

func (d *DB) GetPayment(ctx context.Context, id string) (*records.Payment, error) {
	query := d.db.Rebind("SELECT " + paymentColumns + " FROM payments WHERE id=?")

	var p records.Payment
	if err := d.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("db.Get payment: %w", err)
	}

	return &p, nil
}

// ListPayments returns a user's payments, newest first. When statuses are
// given only payments in one of them are returned.
func (d *DB) ListPayments(ctx context.Context, userID string, statuses ...records.PaymentStatus) ([]records.Payment, error) {
	var (
		query = "SELECT " + paymentColumns + " FROM payments WHERE user_id=?"
		args  = []any{userID}
	)
	if len(statuses) > 0 {
		query += " AND status IN (?)"
		args = append(args, statuses)
	}
	query += " ORDER BY created_at DESC"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlx.In listPayments: %w", err)
	}

	var payments []records.Payment
	if err := d.db.SelectContext(ctx, &payments, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("db.Select payments: %w", err)
	}

	return payments, nil
}

// LatestStuckPayment returns the newest pending payment of userID whose
// receipt is still marked uploading, or nil.
func (d *DB) LatestStuckPayment(ctx context.Context, userID string) (*records.Payment, error) {
	query := d.db.Rebind("SELECT " + paymentColumns + ` FROM payments
WHERE user_id=? AND status=? AND receipt_status=?
ORDER BY created_at DESC LIMIT 1`)

	var p records.Payment
	err := d.db.GetContext(ctx, &p, query, userID, records.PaymentPending, records.ReceiptUploading)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db.Get stuck payment: %w", err)
	}

	return &p, nil
}

// UpdateReceipt writes a payment's receipt fields. With u.Expect set the
// write is a compare-and-swap on receipt_status and returns
// records.ErrConflict when the current status differs.
func (d *DB) UpdateReceipt(ctx context.Context, id string, u records.ReceiptUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("invalid receipt status %q", u.Status)
	}

	var (
		query = "UPDATE payments SET receipt_status=?, updated_at=?"
		args  = []any{u.Status, time.Now().UTC()}
	)
	if u.URL != nil {
		query += ", receipt_url=?"
		args = append(args, *u.URL)
	}
	query += " WHERE id=?"
	args = append(args, id)
	if u.Expect != "" {
		query += " AND receipt_status=?"
		args = append(args, u.Expect)
	}

	res, err := d.db.ExecContext(ctx, d.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("db.Exec update receipt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := d.GetPayment(ctx, id); err != nil {
		return err
	}
	return records.ErrConflict
}

// UpdatePaymentStatus is used by the approval process.
func (d *DB) UpdatePaymentStatus(ctx context.Context, id string, status records.PaymentStatus) error {
	query := d.db.Rebind("UPDATE payments SET status=?, updated_at=? WHERE id=?")

	res, err := d.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("db.Exec update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return records.ErrNotFound
	}

	return nil
}
