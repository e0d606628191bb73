package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

const batchColumns = "id, root, asset, declared_total, leaf_count, window_end, kind, committed_by, committed_at"

// InsertBatch records a batch. The uniqueness check and the write are a
// single statement, so two concurrent commits of one ID cannot both succeed.
func (t *sqliteTx) InsertBatch(ctx context.Context, b *models.Batch) error {
	err := t.insertOnce(ctx,
		`INSERT INTO batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		b.ID, b.Root.Hex(), addr(b.Asset), b.DeclaredTotal, b.LeafCount,
		toUnix(b.WindowEnd), string(b.Kind), addr(b.CommittedBy), toUnix(b.CommittedAt),
	)
	if errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("batch %s: %w", b.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (t *sqliteTx) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM batches WHERE id = ?", batchID)
	b, err := scanBatch(row)
	if err != nil {
		return nil, notFound(err, "batch "+batchID)
	}
	return b, nil
}

// ListBatches returns the most recently committed batches first.
func (t *sqliteTx) ListBatches(ctx context.Context, limit int) ([]*models.Batch, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+batchColumns+" FROM batches ORDER BY committed_at DESC, id LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", err)
	}
	return batches, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*models.Batch, error) {
	b := &models.Batch{}
	var root, asset, kind, committedBy string
	var windowEnd, committedAt int64

	if err := row.Scan(&b.ID, &root, &asset, &b.DeclaredTotal, &b.LeafCount,
		&windowEnd, &kind, &committedBy, &committedAt); err != nil {
		return nil, err
	}

	b.Root = parseHash(root)
	b.Asset = parseAddr(asset)
	b.Kind = models.BatchKind(kind)
	b.WindowEnd = fromUnix(windowEnd)
	b.CommittedBy = parseAddr(committedBy)
	b.CommittedAt = fromUnix(committedAt)
	return b, nil
}
