package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// Ledger holds custodial balances per (account, asset). Balances never go
// negative and every change is written to the entry history.
type Ledger struct {
	*core
	guard *LimitGuard
}

// posting is one balance change.
type posting struct {
	account   common.Address
	asset     common.Address
	delta     int64
	kind      models.EntryKind
	reference string
	by        common.Address
	at        time.Time
}

var entryEvents = map[models.EntryKind]models.EventType{
	models.EntryDeposit:  models.EventDeposited,
	models.EntryWithdraw: models.EventWithdrawn,
	models.EntryCredit:   models.EventCredited,
	models.EntryDebit:    models.EventDebited,
}

// Deposit credits the caller. The custody transfer is assumed to have
// happened atomically with this call.
func (l *Ledger) Deposit(ctx context.Context, caller, asset common.Address, amount int64) (int64, error) {
	if err := requireAddress(caller, asset); err != nil {
		return 0, err
	}
	if err := requireAmount(amount); err != nil {
		return 0, err
	}
	return l.post(ctx, posting{
		account: caller, asset: asset, delta: amount, kind: models.EntryDeposit, by: caller,
	})
}

// Withdraw debits the caller. Withdrawals are metered by the limit guard
// with the caller as spender.
func (l *Ledger) Withdraw(ctx context.Context, caller, asset common.Address, amount int64) (int64, error) {
	if err := requireAddress(caller, asset); err != nil {
		return 0, err
	}
	if err := requireAmount(amount); err != nil {
		return 0, err
	}
	return l.post(ctx, posting{
		account: caller, asset: asset, delta: -amount, kind: models.EntryWithdraw, by: caller,
	})
}

// Credit adds amount to account. Requires RoleSettler.
func (l *Ledger) Credit(ctx context.Context, caller, account, asset common.Address, amount int64, reference string) (int64, error) {
	if err := l.require(ctx, caller, models.RoleSettler); err != nil {
		return 0, err
	}
	if err := requireAddress(account, asset); err != nil {
		return 0, err
	}
	if err := requireAmount(amount); err != nil {
		return 0, err
	}
	return l.post(ctx, posting{
		account: account, asset: asset, delta: amount, kind: models.EntryCredit, reference: reference, by: caller,
	})
}

// Debit removes amount from account. Requires RoleSettler.
func (l *Ledger) Debit(ctx context.Context, caller, account, asset common.Address, amount int64, reference string) (int64, error) {
	if err := l.require(ctx, caller, models.RoleSettler); err != nil {
		return 0, err
	}
	if err := requireAddress(account, asset); err != nil {
		return 0, err
	}
	if err := requireAmount(amount); err != nil {
		return 0, err
	}
	return l.post(ctx, posting{
		account: account, asset: asset, delta: -amount, kind: models.EntryDebit, reference: reference, by: caller,
	})
}

// BalanceOf returns the balance of account in asset.
func (l *Ledger) BalanceOf(ctx context.Context, account, asset common.Address) (int64, error) {
	var balance int64
	err := l.read(ctx, func(tx storage.Tx) error {
		var err error
		balance, err = tx.GetBalance(ctx, account, asset)
		return err
	})
	return balance, err
}

// Entries returns the most recent ledger entries for account in asset.
func (l *Ledger) Entries(ctx context.Context, account, asset common.Address, limit int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := l.read(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.ListLedgerEntries(ctx, account, asset, limit)
		return err
	})
	return entries, err
}

// post applies p in its own transaction and emits the matching event.
func (l *Ledger) post(ctx context.Context, p posting) (int64, error) {
	p.at = l.clock.Now()
	var balance int64
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := l.guard.allowed(ctx, tx, p.asset); err != nil {
			return err
		}
		if p.kind == models.EntryWithdraw {
			if err := l.guard.consume(ctx, tx, p.asset, p.account, -p.delta, p.at); err != nil {
				return err
			}
		}

		var err error
		balance, err = l.apply(ctx, tx, p)
		if err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type:      entryEvents[p.kind],
			Account:   p.account,
			Asset:     p.asset,
			Amount:    abs(p.delta),
			Reference: p.reference,
			Actor:     p.by,
			CreatedAt: p.at,
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// apply changes the balance and writes the ledger entry inside tx.
func (l *Ledger) apply(ctx context.Context, tx storage.Tx, p posting) (int64, error) {
	if p.delta > 0 {
		current, err := tx.GetBalance(ctx, p.account, p.asset)
		if err != nil {
			return 0, err
		}
		if p.delta > math.MaxInt64-current {
			return 0, fmt.Errorf("%w: %s holds %d", ErrBalanceOverflow, p.account.Hex(), current)
		}
	}

	balance, err := tx.AddBalance(ctx, p.account, p.asset, p.delta, p.at)
	if errors.Is(err, storage.ErrNegativeBalance) {
		return 0, fmt.Errorf("%w: %s cannot cover %d", ErrInsufficientBalance, p.account.Hex(), -p.delta)
	}
	if err != nil {
		return 0, err
	}

	if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
		Account:      p.account,
		Asset:        p.asset,
		Kind:         p.kind,
		Delta:        p.delta,
		BalanceAfter: balance,
		Reference:    p.reference,
		CreatedBy:    p.by,
		CreatedAt:    p.at,
	}); err != nil {
		return 0, err
	}
	return balance, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
