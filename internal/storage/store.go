// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with a unique key.
	// The colliding insert leaves the existing record untouched.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNegativeBalance is returned when a balance change would drop below zero.
	ErrNegativeBalance = errors.New("balance would become negative")
)

// Store defines the interface for settlement storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the settlement layer.
type Store interface {
	// WithTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise, so a failing operation
	// leaves no partial effects.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	AssetStore
	LedgerStore
	BatchStore
	PayoutStore
	RoleStore
	EventStore
}

// AssetStore persists the allow-list, ceilings and spend windows.
type AssetStore interface {
	// GetAssetPolicy returns ErrNotFound for assets never configured.
	GetAssetPolicy(ctx context.Context, asset common.Address) (*models.AssetPolicy, error)
	SetAssetEnabled(ctx context.Context, asset common.Address, enabled bool, at time.Time) error
	SetAssetLimits(ctx context.Context, asset common.Address, singleMax, dailyMax int64, at time.Time) error
	ListAssetPolicies(ctx context.Context) ([]*models.AssetPolicy, error)

	// GetSpendWindow returns ErrNotFound when the spender has never spent the asset.
	GetSpendWindow(ctx context.Context, asset, spender common.Address) (*models.SpendWindow, error)
	PutSpendWindow(ctx context.Context, w *models.SpendWindow) error
}

// LedgerStore persists balances and their entries.
type LedgerStore interface {
	// GetBalance returns zero for accounts without a balance row.
	GetBalance(ctx context.Context, account, asset common.Address) (int64, error)

	// AddBalance applies delta and returns the new balance. A negative result
	// fails with ErrNegativeBalance and changes nothing.
	AddBalance(ctx context.Context, account, asset common.Address, delta int64, at time.Time) (int64, error)

	InsertLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, account, asset common.Address, limit int) ([]*models.LedgerEntry, error)
}

// BatchStore persists committed batches. There is no update or delete.
type BatchStore interface {
	// InsertBatch fails with ErrDuplicate when the ID is already recorded.
	InsertBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*models.Batch, error)
}

// PayoutStore persists payout views and their claimed set.
type PayoutStore interface {
	// InsertPayout fails with ErrDuplicate when a view already exists for the batch.
	InsertPayout(ctx context.Context, payout *models.PayoutView) error
	GetPayout(ctx context.Context, batchID string) (*models.PayoutView, error)
	UpdatePayout(ctx context.Context, payout *models.PayoutView) error

	// InsertClaim fails with ErrDuplicate when the leaf is already claimed.
	InsertClaim(ctx context.Context, claim *models.Claim) error
	IsClaimed(ctx context.Context, batchID string, leaf common.Hash) (bool, error)
	ListClaims(ctx context.Context, batchID string) ([]*models.Claim, error)

	// AccountTotals sums what an account claimed from a batch and what has been
	// reversed of it so far.
	AccountTotals(ctx context.Context, batchID string, account common.Address) (claimed, reversed int64, err error)

	InsertReversal(ctx context.Context, reversal *models.Reversal) error
	InsertDispute(ctx context.Context, dispute *models.Dispute) error
	ResolveDisputes(ctx context.Context, batchID string, by common.Address, resolution string, at time.Time) (int64, error)
	ListDisputes(ctx context.Context, batchID string) ([]*models.Dispute, error)
}

// RoleStore persists role grants.
type RoleStore interface {
	HasRole(ctx context.Context, account common.Address, role models.Role) (bool, error)
	GrantRole(ctx context.Context, grant *models.RoleGrant) error
	RevokeRole(ctx context.Context, account common.Address, role models.Role) (bool, error)
	ListRoles(ctx context.Context, account common.Address) ([]models.Role, error)
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	BatchID  string
	AfterSeq int64
	Limit    int
}

// EventStore persists the event outbox.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.Event, error)
	ListUnpublishedEvents(ctx context.Context, limit int) ([]*models.Event, error)
	MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error
}
