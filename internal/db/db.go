// Package db is the record store behind the backend: payments, profiles and
// activation invoices. It runs on postgres in production and on sqlite for
// local development and tests.
package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

func New(driver, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("must set db dsn")
	}

	var schema string
	switch driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	default:
		return nil, fmt.Errorf("unknown db driver %q. must be %q or %q", driver, DriverPostgres, DriverSQLite)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Connect: %w", err)
	}

	if driver == DriverPostgres {
		// sqlx default is 0 (unlimited), while postgresql by default accepts up to 100 connections
		db.SetMaxOpenConns(80)
	}

	// TODO: migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Exec schema: %w", err)
	}

	return &DB{
		db:     db,
		driver: driver,
	}, nil
}

type DB struct {
	db     *sqlx.DB
	driver string
}

func (d *DB) Close() error {
	return d.db.Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount NUMERIC(20, 8) NOT NULL,
	status TEXT NOT NULL,
	receipt_status TEXT NOT NULL DEFAULT 'none',
	receipt_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_user_created_idx ON payments(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'user',
	next_claim_time TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS activations (
	id TEXT PRIMARY KEY,
	withdrawal_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	sats INTEGER NOT NULL,
	invoice_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	status TEXT NOT NULL,
	lightning_invoice TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS activations_withdrawal_idx ON activations(withdrawal_id);
CREATE INDEX IF NOT EXISTS activations_invoice_idx ON activations(invoice_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount TEXT NOT NULL,
	status TEXT NOT NULL,
	receipt_status TEXT NOT NULL DEFAULT 'none',
	receipt_url TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_user_created_idx ON payments(user_id, created_at);

CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'user',
	next_claim_time DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activations (
	id TEXT PRIMARY KEY,
	withdrawal_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	sats INTEGER NOT NULL,
	invoice_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	status TEXT NOT NULL,
	lightning_invoice TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS activations_withdrawal_idx ON activations(withdrawal_id);
CREATE INDEX IF NOT EXISTS activations_invoice_idx ON activations(invoice_id);
`
