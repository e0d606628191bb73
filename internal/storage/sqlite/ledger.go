package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// GetBalance returns the balance of account in asset, zero if none recorded.
func (t *sqliteTx) GetBalance(ctx context.Context, account, asset common.Address) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT balance FROM balances WHERE account = ? AND asset = ?",
		addr(account), addr(asset),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// AddBalance applies delta to the balance and returns the result.
// Debits are guarded in the UPDATE itself so a balance never goes negative.
func (t *sqliteTx) AddBalance(ctx context.Context, account, asset common.Address, delta int64, at time.Time) (int64, error) {
	if delta >= 0 {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO balances (account, asset, balance, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (account, asset) DO UPDATE SET balance = balance + excluded.balance,
			     updated_at = excluded.updated_at`,
			addr(account), addr(asset), delta, toUnix(at),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to credit balance: %w", err)
		}
	} else {
		res, err := t.tx.ExecContext(ctx,
			`UPDATE balances SET balance = balance + ?, updated_at = ?
			 WHERE account = ? AND asset = ? AND balance >= ?`,
			delta, toUnix(at), addr(account), addr(asset), -delta,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to debit balance: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to debit balance: %w", err)
		}
		if n == 0 {
			return 0, storage.ErrNegativeBalance
		}
	}

	return t.GetBalance(ctx, account, asset)
}

// InsertLedgerEntry appends an entry to the ledger history.
func (t *sqliteTx) InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	// Generate ID if not set
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, account, asset, kind, delta, balance_after, reference, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, addr(entry.Account), addr(entry.Asset), string(entry.Kind), entry.Delta,
		entry.BalanceAfter, entry.Reference, addr(entry.CreatedBy), toUnix(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns the newest entries for (account, asset) first.
func (t *sqliteTx) ListLedgerEntries(ctx context.Context, account, asset common.Address, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, kind, delta, balance_after, reference, created_by, created_at
		 FROM ledger_entries WHERE account = ? AND asset = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		addr(account), addr(asset), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		e := &models.LedgerEntry{Account: account, Asset: asset}
		var kind, createdBy string
		var createdAt int64
		if err := rows.Scan(&e.ID, &kind, &e.Delta, &e.BalanceAfter, &e.Reference, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Kind = models.EntryKind(kind)
		e.CreatedBy = parseAddr(createdBy)
		e.CreatedAt = fromUnix(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
