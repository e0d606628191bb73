package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

const payoutColumns = `batch_id, root, asset, status, declared_total, window_end, claimed_total,
	reversed_total, opened_by, opened_at, updated_at, settled_at`

// InsertPayout creates the payout view for a batch, at most once.
func (t *sqliteTx) InsertPayout(ctx context.Context, p *models.PayoutView) error {
	err := t.insertOnce(ctx,
		`INSERT INTO payouts (`+payoutColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (batch_id) DO NOTHING`,
		p.BatchID, p.Root.Hex(), addr(p.Asset), string(p.Status), p.DeclaredTotal, toUnix(p.WindowEnd),
		p.ClaimedTotal, p.ReversedTotal, addr(p.OpenedBy), toUnix(p.OpenedAt), toUnix(p.UpdatedAt),
		toUnix(p.SettledAt),
	)
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("payout %s: %w", p.BatchID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payout: %w", err)
	}
	return nil
}

// GetPayout retrieves the payout view for a batch.
func (t *sqliteTx) GetPayout(ctx context.Context, batchID string) (*models.PayoutView, error) {
	p := &models.PayoutView{}
	var root, asset, status, openedBy string
	var windowEnd, openedAt, updatedAt, settledAt int64

	err := t.tx.QueryRowContext(ctx,
		"SELECT "+payoutColumns+" FROM payouts WHERE batch_id = ?", batchID,
	).Scan(&p.BatchID, &root, &asset, &status, &p.DeclaredTotal, &windowEnd, &p.ClaimedTotal,
		&p.ReversedTotal, &openedBy, &openedAt, &updatedAt, &settledAt)
	if err != nil {
		return nil, notFound(err, "payout "+batchID)
	}

	p.Root = parseHash(root)
	p.Asset = parseAddr(asset)
	p.Status = models.PayoutStatus(status)
	p.WindowEnd = fromUnix(windowEnd)
	p.OpenedBy = parseAddr(openedBy)
	p.OpenedAt = fromUnix(openedAt)
	p.UpdatedAt = fromUnix(updatedAt)
	p.SettledAt = fromUnix(settledAt)
	return p, nil
}

// UpdatePayout writes the mutable fields of a payout view.
// Root, asset, total and window never change after open.
func (t *sqliteTx) UpdatePayout(ctx context.Context, p *models.PayoutView) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE payouts SET status = ?, claimed_total = ?, reversed_total = ?, updated_at = ?, settled_at = ?
		 WHERE batch_id = ?`,
		string(p.Status), p.ClaimedTotal, p.ReversedTotal, toUnix(p.UpdatedAt), toUnix(p.SettledAt), p.BatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("payout %s: %w", p.BatchID, storage.ErrNotFound)
	}
	return nil
}

// InsertClaim adds a leaf to the claimed set, at most once.
func (t *sqliteTx) InsertClaim(ctx context.Context, c *models.Claim) error {
	err := t.insertOnce(ctx,
		`INSERT INTO claims (batch_id, leaf, account, amount, claimed_by, claimed_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (batch_id, leaf) DO NOTHING`,
		c.BatchID, c.Leaf.Hex(), addr(c.Account), c.Amount, addr(c.ClaimedBy), toUnix(c.ClaimedAt),
	)
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("claim %s/%s: %w", c.BatchID, c.Leaf.Hex(), err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// IsClaimed reports whether a leaf of the batch has been claimed.
func (t *sqliteTx) IsClaimed(ctx context.Context, batchID string, leaf common.Hash) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM claims WHERE batch_id = ? AND leaf = ?", batchID, leaf.Hex(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return n > 0, nil
}

// ListClaims returns the claimed set of a batch in claim order.
func (t *sqliteTx) ListClaims(ctx context.Context, batchID string) ([]*models.Claim, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT leaf, account, amount, claimed_by, claimed_at FROM claims
		 WHERE batch_id = ? ORDER BY claimed_at, rowid`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		c := &models.Claim{BatchID: batchID}
		var leaf, account, claimedBy string
		var claimedAt int64
		if err := rows.Scan(&leaf, &account, &c.Amount, &claimedBy, &claimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c.Leaf = parseHash(leaf)
		c.Account = parseAddr(account)
		c.ClaimedBy = parseAddr(claimedBy)
		c.ClaimedAt = fromUnix(claimedAt)
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}

// AccountTotals sums claims and reversals of account within a batch.
func (t *sqliteTx) AccountTotals(ctx context.Context, batchID string, account common.Address) (int64, int64, error) {
	var claimed, reversed int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT
		     COALESCE((SELECT SUM(amount) FROM claims WHERE batch_id = ? AND account = ?), 0),
		     COALESCE((SELECT SUM(amount) FROM reversals WHERE batch_id = ? AND account = ?), 0)`,
		batchID, addr(account), batchID, addr(account),
	).Scan(&claimed, &reversed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum account totals: %w", err)
	}
	return claimed, reversed, nil
}

// InsertReversal records an amount debited back during a dispute.
func (t *sqliteTx) InsertReversal(ctx context.Context, r *models.Reversal) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reversals (id, batch_id, account, amount, reversed_by, reversed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.BatchID, addr(r.Account), r.Amount, addr(r.ReversedBy), toUnix(r.ReversedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reversal: %w", err)
	}
	return nil
}

// InsertDispute records a dispute raised against a payout.
func (t *sqliteTx) InsertDispute(ctx context.Context, d *models.Dispute) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO disputes (id, batch_id, reason, raised_by, raised_at) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.BatchID, d.Reason, addr(d.RaisedBy), toUnix(d.RaisedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispute: %w", err)
	}
	return nil
}

// ResolveDisputes closes every open dispute of a batch and returns how many it closed.
func (t *sqliteTx) ResolveDisputes(ctx context.Context, batchID string, by common.Address, resolution string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE disputes SET resolved_by = ?, resolved_at = ?, resolution = ?
		 WHERE batch_id = ? AND resolved_at = 0`,
		addr(by), toUnix(at), resolution, batchID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve disputes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve disputes: %w", err)
	}
	return n, nil
}

// ListDisputes returns the disputes of a batch, oldest first.
func (t *sqliteTx) ListDisputes(ctx context.Context, batchID string) ([]*models.Dispute, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, reason, raised_by, raised_at, resolved_by, resolved_at, resolution
		 FROM disputes WHERE batch_id = ? ORDER BY raised_at, rowid`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*models.Dispute
	for rows.Next() {
		d := &models.Dispute{BatchID: batchID}
		var raisedBy, resolvedBy string
		var raisedAt, resolvedAt int64
		if err := rows.Scan(&d.ID, &d.Reason, &raisedBy, &raisedAt, &resolvedBy, &resolvedAt, &d.Resolution); err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		d.RaisedBy = parseAddr(raisedBy)
		d.RaisedAt = fromUnix(raisedAt)
		if resolvedBy != "" {
			d.ResolvedBy = parseAddr(resolvedBy)
		}
		d.ResolvedAt = fromUnix(resolvedAt)
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate disputes: %w", err)
	}
	return disputes, nil
}
