package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// migrations are applied in order on startup. Each entry is one schema
// version; applied versions are recorded in schema_migrations so a version
// never runs twice. Append new versions, never edit old ones.
//
// Timestamps are stored as Unix nanoseconds. Addresses and hashes are stored
// as 0x-prefixed hex.
var migrations = []string{
	// 1: assets, ledger and roles
	`
CREATE TABLE asset_policies (
    asset TEXT PRIMARY KEY,
    enabled INTEGER NOT NULL DEFAULT 0,
    single_max INTEGER NOT NULL DEFAULT 0 CHECK (single_max >= 0),
    daily_max INTEGER NOT NULL DEFAULT 0 CHECK (daily_max >= 0),
    updated_at INTEGER NOT NULL
);

CREATE TABLE spend_windows (
    asset TEXT NOT NULL,
    spender TEXT NOT NULL,
    window_start INTEGER NOT NULL,
    spent INTEGER NOT NULL CHECK (spent >= 0),
    PRIMARY KEY (asset, spender)
);

CREATE TABLE balances (
    account TEXT NOT NULL,
    asset TEXT NOT NULL,
    balance INTEGER NOT NULL CHECK (balance >= 0),
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (account, asset)
);

CREATE TABLE ledger_entries (
    id TEXT PRIMARY KEY,
    account TEXT NOT NULL,
    asset TEXT NOT NULL,
    kind TEXT NOT NULL,
    delta INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    reference TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE role_grants (
    account TEXT NOT NULL,
    role TEXT NOT NULL,
    granted_by TEXT NOT NULL,
    granted_at INTEGER NOT NULL,
    PRIMARY KEY (account, role)
);

CREATE INDEX idx_ledger_entries_account_asset ON ledger_entries(account, asset);
`,
	// 2: batches, payouts and the claimed set
	`
CREATE TABLE batches (
    id TEXT PRIMARY KEY,
    root TEXT NOT NULL,
    asset TEXT NOT NULL,
    declared_total INTEGER NOT NULL CHECK (declared_total > 0),
    leaf_count INTEGER NOT NULL DEFAULT 0,
    window_end INTEGER NOT NULL,
    kind TEXT NOT NULL,
    committed_by TEXT NOT NULL,
    committed_at INTEGER NOT NULL
);

CREATE TABLE payouts (
    batch_id TEXT PRIMARY KEY,
    root TEXT NOT NULL,
    asset TEXT NOT NULL,
    status TEXT NOT NULL,
    declared_total INTEGER NOT NULL,
    window_end INTEGER NOT NULL,
    claimed_total INTEGER NOT NULL DEFAULT 0 CHECK (claimed_total <= declared_total),
    reversed_total INTEGER NOT NULL DEFAULT 0 CHECK (reversed_total <= claimed_total),
    opened_by TEXT NOT NULL,
    opened_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    settled_at INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (batch_id) REFERENCES batches(id)
);

CREATE TABLE claims (
    batch_id TEXT NOT NULL,
    leaf TEXT NOT NULL,
    account TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    claimed_by TEXT NOT NULL,
    claimed_at INTEGER NOT NULL,
    PRIMARY KEY (batch_id, leaf),
    FOREIGN KEY (batch_id) REFERENCES payouts(batch_id)
);

CREATE TABLE reversals (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    account TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    reversed_by TEXT NOT NULL,
    reversed_at INTEGER NOT NULL,
    FOREIGN KEY (batch_id) REFERENCES payouts(batch_id)
);

CREATE TABLE disputes (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    reason TEXT NOT NULL,
    raised_by TEXT NOT NULL,
    raised_at INTEGER NOT NULL,
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at INTEGER NOT NULL DEFAULT 0,
    resolution TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (batch_id) REFERENCES payouts(batch_id)
);

CREATE INDEX idx_claims_batch_account ON claims(batch_id, account);
CREATE INDEX idx_reversals_batch_account ON reversals(batch_id, account);
CREATE INDEX idx_disputes_batch_id ON disputes(batch_id);
`,
	// 3: event outbox
	`
CREATE TABLE events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    batch_id TEXT NOT NULL DEFAULT '',
    account TEXT NOT NULL,
    asset TEXT NOT NULL,
    amount INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    reference TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    published_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_events_batch_id ON events(batch_id);
CREATE INDEX idx_events_unpublished ON events(published_at, seq);
`,
}

// runMigrations applies every schema version not yet recorded.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UnixNano(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		slog.Debug("Applied schema migration", "version", version)
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
