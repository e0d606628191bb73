package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/merkle"
	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// ClaimRequest is one beneficiary claim against a payout.
type ClaimRequest struct {
	BatchID string

	// Account defaults to the caller. Claiming for another account
	// requires RoleOperator.
	Account common.Address

	Asset  common.Address
	Amount int64
	Proof  []common.Hash
}

// Distributor runs the payout state machine:
//
//	open -> disputed -> open -> settled
//	open -> settled
//
// settled is terminal.
type Distributor struct {
	*core
	guard  *LimitGuard
	ledger *Ledger

	claimWhileDisputed bool
	spender            common.Address
}

// OpenPayout opens the claimable view over a committed batch. root and asset
// must match what was committed. Requires RoleSettler.
func (d *Distributor) OpenPayout(ctx context.Context, caller common.Address, batchID string, root common.Hash, asset common.Address) (*models.PayoutView, error) {
	if err := d.require(ctx, caller, models.RoleSettler); err != nil {
		return nil, err
	}
	if err := requireAddress(asset); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	var payout *models.PayoutView
	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		batch, err := getBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Root != root {
			return fmt.Errorf("%w: %s", ErrRootMismatch, batchID)
		}
		if batch.Asset != asset {
			return fmt.Errorf("%w: %s", ErrAssetMismatch, batchID)
		}
		if _, err := d.guard.allowed(ctx, tx, asset); err != nil {
			return err
		}

		payout = &models.PayoutView{
			BatchID:       batch.ID,
			Root:          batch.Root,
			Asset:         batch.Asset,
			Status:        models.PayoutOpen,
			DeclaredTotal: batch.DeclaredTotal,
			WindowEnd:     batch.WindowEnd,
			OpenedBy:      caller,
			OpenedAt:      now,
			UpdatedAt:     now,
		}
		err = tx.InsertPayout(ctx, payout)
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrPayoutExists, batchID)
		}
		if err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventPayoutOpened, BatchID: batchID, Asset: asset, Amount: batch.DeclaredTotal,
			Reference: root.Hex(), Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("Payout opened", "batch_id", batchID, "window_end", payout.WindowEnd)
	return payout, nil
}

// Claim verifies a proof against the payout root and credits the
// beneficiary. Each leaf can be claimed once.
func (d *Distributor) Claim(ctx context.Context, caller common.Address, req ClaimRequest) (*models.Claim, error) {
	claim, err := d.claim(ctx, caller, req)
	d.metrics.Claim(Reason(err), req.Asset.Hex(), req.Amount)
	return claim, err
}

func (d *Distributor) claim(ctx context.Context, caller common.Address, req ClaimRequest) (*models.Claim, error) {
	account := req.Account
	if account == (common.Address{}) {
		account = caller
	}
	if account != caller {
		if err := d.require(ctx, caller, models.RoleOperator); err != nil {
			return nil, err
		}
	}
	if err := requireAddress(account, req.Asset); err != nil {
		return nil, err
	}
	if err := requireAmount(req.Amount); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	leaf := merkle.LeafHash(account, req.Asset, req.Amount)
	claim := &models.Claim{
		BatchID:   req.BatchID,
		Leaf:      leaf,
		Account:   account,
		Amount:    req.Amount,
		ClaimedBy: caller,
		ClaimedAt: now,
	}

	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		payout, err := getPayout(ctx, tx, req.BatchID)
		if err != nil {
			return err
		}
		switch payout.Status {
		case models.PayoutOpen:
		case models.PayoutDisputed:
			if !d.claimWhileDisputed {
				return fmt.Errorf("%w: %s is disputed", ErrWrongState, req.BatchID)
			}
		default:
			return fmt.Errorf("%w: %s is %s", ErrWrongState, req.BatchID, payout.Status)
		}
		if payout.Asset != req.Asset {
			return fmt.Errorf("%w: %s", ErrAssetMismatch, req.BatchID)
		}
		if !merkle.Verify(req.Proof, payout.Root, leaf) {
			return ErrInvalidProof
		}

		claimed, err := tx.IsClaimed(ctx, req.BatchID, leaf)
		if err != nil {
			return fmt.Errorf("failed to check claim: %w", err)
		}
		if claimed {
			return ErrAlreadyClaimed
		}
		if req.Amount > payout.DeclaredTotal-payout.ClaimedTotal {
			return fmt.Errorf("%w: %d claimed of %d", ErrExceedsBatchTotal, payout.ClaimedTotal, payout.DeclaredTotal)
		}

		if err := d.guard.consume(ctx, tx, req.Asset, d.spender, req.Amount, now); err != nil {
			return err
		}
		if _, err := d.ledger.apply(ctx, tx, posting{
			account: account, asset: req.Asset, delta: req.Amount, kind: models.EntryClaim,
			reference: req.BatchID, by: caller, at: now,
		}); err != nil {
			return err
		}

		err = tx.InsertClaim(ctx, claim)
		if errors.Is(err, storage.ErrDuplicate) {
			return ErrAlreadyClaimed
		}
		if err != nil {
			return err
		}

		payout.ClaimedTotal += req.Amount
		payout.UpdatedAt = now
		if err := tx.UpdatePayout(ctx, payout); err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventClaimed, BatchID: req.BatchID, Account: account, Asset: req.Asset,
			Amount: req.Amount, Reference: leaf.Hex(), Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	d.log.Debug("Claim credited", "batch_id", req.BatchID, "account", account.Hex(), "amount", req.Amount)
	return claim, nil
}

// Dispute flags a payout inside its window. Disputing an already disputed
// payout records the additional reason. Requires RoleDisputer.
func (d *Distributor) Dispute(ctx context.Context, caller common.Address, batchID, reason string) (*models.Dispute, error) {
	if err := d.require(ctx, caller, models.RoleDisputer); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	now := d.clock.Now()
	dispute := &models.Dispute{BatchID: batchID, Reason: reason, RaisedBy: caller, RaisedAt: now}
	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		payout, err := getPayout(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if _, err := d.guard.allowed(ctx, tx, payout.Asset); err != nil {
			return err
		}
		if !now.Before(payout.WindowEnd) {
			return fmt.Errorf("%w: %s ended at %s", ErrWindowClosed, batchID, payout.WindowEnd)
		}
		if payout.Status == models.PayoutSettled {
			return fmt.Errorf("%w: %s is settled", ErrWrongState, batchID)
		}

		if err := tx.InsertDispute(ctx, dispute); err != nil {
			return err
		}
		payout.Status = models.PayoutDisputed
		payout.UpdatedAt = now
		if err := tx.UpdatePayout(ctx, payout); err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventDisputed, BatchID: batchID, Asset: payout.Asset, Reason: reason,
			Reference: dispute.ID, Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	d.metrics.Dispute()
	d.log.Warn("Payout disputed", "batch_id", batchID, "reason", reason, "by", caller.Hex())
	return dispute, nil
}

// ResolveDispute returns a disputed payout to open and closes its open
// disputes. Requires RoleArbiter.
func (d *Distributor) ResolveDispute(ctx context.Context, caller common.Address, batchID, resolution string) (*models.PayoutView, error) {
	if err := d.require(ctx, caller, models.RoleArbiter); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	var payout *models.PayoutView
	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		payout, err = getPayout(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if _, err := d.guard.allowed(ctx, tx, payout.Asset); err != nil {
			return err
		}
		if payout.Status != models.PayoutDisputed {
			return fmt.Errorf("%w: %s is %s", ErrWrongState, batchID, payout.Status)
		}

		if _, err := tx.ResolveDisputes(ctx, batchID, caller, resolution, now); err != nil {
			return err
		}
		payout.Status = models.PayoutOpen
		payout.UpdatedAt = now
		if err := tx.UpdatePayout(ctx, payout); err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventDisputeResolved, BatchID: batchID, Asset: payout.Asset, Reason: resolution,
			Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("Dispute resolved", "batch_id", batchID, "by", caller.Hex())
	return payout, nil
}

// Reverse debits claimed amounts back from accounts while the payout is
// disputed. Each amount is capped by what the account claimed from the batch
// and has not had reversed yet. Any failing entry fails the whole call and
// the error names the entry index. Requires RoleArbiter.
func (d *Distributor) Reverse(ctx context.Context, caller common.Address, batchID string, accounts []common.Address, amounts []int64) ([]*models.Reversal, error) {
	if err := d.require(ctx, caller, models.RoleArbiter); err != nil {
		return nil, err
	}
	if len(accounts) != len(amounts) {
		return nil, ErrLengthMismatch
	}
	if len(accounts) == 0 {
		return nil, ErrEmptyReversal
	}
	for i := range accounts {
		if err := requireAddress(accounts[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := requireAmount(amounts[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	now := d.clock.Now()
	var reversals []*models.Reversal
	var asset common.Address
	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		payout, err := getPayout(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if payout.Status != models.PayoutDisputed {
			return fmt.Errorf("%w: %s is %s", ErrWrongState, batchID, payout.Status)
		}
		asset = payout.Asset
		if _, err := d.guard.allowed(ctx, tx, asset); err != nil {
			return err
		}

		for i, account := range accounts {
			r, err := d.reverseOne(ctx, tx, payout, caller, account, amounts[i])
			if err != nil {
				return fmt.Errorf("entry %d (%s): %w", i, account.Hex(), err)
			}
			payout.ReversedTotal += r.Amount
			reversals = append(reversals, r)
		}

		payout.UpdatedAt = now
		return tx.UpdatePayout(ctx, payout)
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for _, r := range reversals {
		total += r.Amount
	}
	d.metrics.Reversed(asset.Hex(), total)
	d.log.Warn("Claims reversed", "batch_id", batchID, "entries", len(reversals), "total", total)
	return reversals, nil
}

func (d *Distributor) reverseOne(ctx context.Context, tx storage.Tx, payout *models.PayoutView, caller, account common.Address, amount int64) (*models.Reversal, error) {
	now := d.clock.Now()
	claimed, reversed, err := tx.AccountTotals(ctx, payout.BatchID, account)
	if err != nil {
		return nil, fmt.Errorf("failed to sum claims: %w", err)
	}
	if amount > claimed-reversed {
		return nil, fmt.Errorf("%w: %d requested, %d reversible", ErrExceedsClaimed, amount, claimed-reversed)
	}

	if _, err := d.ledger.apply(ctx, tx, posting{
		account: account, asset: payout.Asset, delta: -amount, kind: models.EntryReversal,
		reference: payout.BatchID, by: caller, at: now,
	}); err != nil {
		return nil, err
	}

	r := &models.Reversal{
		BatchID: payout.BatchID, Account: account, Amount: amount, ReversedBy: caller, ReversedAt: now,
	}
	if err := tx.InsertReversal(ctx, r); err != nil {
		return nil, err
	}
	if err := emit(ctx, tx, &models.Event{
		Type: models.EventReversed, BatchID: payout.BatchID, Account: account, Asset: payout.Asset,
		Amount: amount, Reference: r.ID, Actor: caller, CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Settle finalizes an open payout once its window has ended.
// Requires RoleSettler.
func (d *Distributor) Settle(ctx context.Context, caller common.Address, batchID string) (*models.PayoutView, error) {
	if err := d.require(ctx, caller, models.RoleSettler); err != nil {
		return nil, err
	}

	now := d.clock.Now()
	var payout *models.PayoutView
	err := d.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		payout, err = getPayout(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if _, err := d.guard.allowed(ctx, tx, payout.Asset); err != nil {
			return err
		}
		if payout.Status != models.PayoutOpen {
			return fmt.Errorf("%w: %s is %s", ErrWrongState, batchID, payout.Status)
		}
		if now.Before(payout.WindowEnd) {
			return fmt.Errorf("%w: %s ends at %s", ErrWindowNotEnded, batchID, payout.WindowEnd)
		}

		payout.Status = models.PayoutSettled
		payout.SettledAt = now
		payout.UpdatedAt = now
		if err := tx.UpdatePayout(ctx, payout); err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventSettled, BatchID: batchID, Asset: payout.Asset,
			Amount: payout.ClaimedTotal - payout.ReversedTotal, Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	d.metrics.Settled()
	d.log.Info("Payout settled", "batch_id", batchID, "claimed", payout.ClaimedTotal, "reversed", payout.ReversedTotal)
	return payout, nil
}

// Payout returns the payout view of a batch.
func (d *Distributor) Payout(ctx context.Context, batchID string) (*models.PayoutView, error) {
	var payout *models.PayoutView
	err := d.read(ctx, func(tx storage.Tx) error {
		var err error
		payout, err = getPayout(ctx, tx, batchID)
		return err
	})
	return payout, err
}

// IsClaimed reports whether the leaf for (account, asset, amount) has been
// claimed from the batch.
func (d *Distributor) IsClaimed(ctx context.Context, batchID string, account, asset common.Address, amount int64) (bool, error) {
	leaf := merkle.LeafHash(account, asset, amount)
	var claimed bool
	err := d.read(ctx, func(tx storage.Tx) error {
		var err error
		claimed, err = tx.IsClaimed(ctx, batchID, leaf)
		return err
	})
	return claimed, err
}

// Claims lists the claimed set of a batch.
func (d *Distributor) Claims(ctx context.Context, batchID string) ([]*models.Claim, error) {
	var claims []*models.Claim
	err := d.read(ctx, func(tx storage.Tx) error {
		var err error
		claims, err = tx.ListClaims(ctx, batchID)
		return err
	})
	return claims, err
}

// Disputes lists every dispute raised against a batch.
func (d *Distributor) Disputes(ctx context.Context, batchID string) ([]*models.Dispute, error) {
	var disputes []*models.Dispute
	err := d.read(ctx, func(tx storage.Tx) error {
		var err error
		disputes, err = tx.ListDisputes(ctx, batchID)
		return err
	})
	return disputes, err
}

func getPayout(ctx context.Context, tx storage.Tx, batchID string) (*models.PayoutView, error) {
	payout, err := tx.GetPayout(ctx, batchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPayoutNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return payout, nil
}
