package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zenfi/core/internal/records"
)

func (d *DB) GetProfile(ctx context.Context, userID string) (*records.Profile, error) {
	query := d.db.Rebind("SELECT user_id, role, next_claim_time, updated_at FROM profiles WHERE user_id=?")

	var p records.Profile
	if err := d.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("db.Get profile: %w", err)
	}

	return &p, nil
}

func (d *DB) SetRole(ctx context.Context, userID, role string) error {
	query := d.db.Rebind(`INSERT INTO profiles (user_id, role, updated_at) VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at`)

	if _, err := d.db.ExecContext(ctx, query, userID, role, time.Now().UTC()); err != nil {
		return fmt.Errorf("db.Exec set role: %w", err)
	}

	return nil
}

// IsAdmin reports whether userID holds the admin role. Users without a
// profile are not admins.
func (d *DB) IsAdmin(ctx context.Context, userID string) (bool, error) {
	p, err := d.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return p.Role == records.RoleAdmin, nil
}

// GetNextClaimTime returns the remote claim deadline, or nil when none is
// stored.
func (d *DB) GetNextClaimTime(ctx context.Context, userID string) (*time.Time, error) {
	p, err := d.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return p.NextClaimTime, nil
}

func (d *DB) SetNextClaimTime(ctx context.Context, userID string, next *time.Time) error {
	query := d.db.Rebind(`INSERT INTO profiles (user_id, role, next_claim_time, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET next_claim_time=excluded.next_claim_time, updated_at=excluded.updated_at`)

	var value any
	if next != nil {
		value = next.UTC()
	}

	if _, err := d.db.ExecContext(ctx, query, userID, records.RoleUser, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("db.Exec set next claim: %w", err)
	}

	return nil
}
