package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// BatchMeta describes a batch to commit.
type BatchMeta struct {
	ID            string
	Root          common.Hash
	Asset         common.Address
	DeclaredTotal int64
	LeafCount     int64
	WindowEnd     time.Time

	// Kind defaults to BatchKindPayout.
	Kind models.BatchKind
}

// Journal is the append-only record of committed batches.
type Journal struct {
	*core
	guard *LimitGuard
}

// Commit records a batch. A batch ID can be committed once; a repeated
// commit fails with ErrDuplicateBatch and leaves the first record as it was.
// Requires RoleJournalWriter.
func (j *Journal) Commit(ctx context.Context, caller common.Address, meta BatchMeta) (*models.Batch, error) {
	if err := j.require(ctx, caller, models.RoleJournalWriter); err != nil {
		return nil, err
	}

	now := j.clock.Now()
	if meta.Kind == "" {
		meta.Kind = models.BatchKindPayout
	}
	if err := validateMeta(meta, now); err != nil {
		return nil, err
	}

	batch := &models.Batch{
		ID:            meta.ID,
		Root:          meta.Root,
		Asset:         meta.Asset,
		DeclaredTotal: meta.DeclaredTotal,
		LeafCount:     meta.LeafCount,
		WindowEnd:     meta.WindowEnd.UTC(),
		Kind:          meta.Kind,
		CommittedBy:   caller,
		CommittedAt:   now,
	}

	err := j.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := j.guard.allowed(ctx, tx, meta.Asset); err != nil {
			return err
		}
		err := tx.InsertBatch(ctx, batch)
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrDuplicateBatch, meta.ID)
		}
		if err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type:      models.EventBatchCommitted,
			BatchID:   batch.ID,
			Asset:     batch.Asset,
			Amount:    batch.DeclaredTotal,
			Reference: batch.Root.Hex(),
			Actor:     caller,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	j.metrics.BatchCommitted()
	j.log.Info("Batch committed", "batch_id", batch.ID, "root", batch.Root.Hex(), "total", batch.DeclaredTotal)
	return batch, nil
}

// IsCommitted reports whether a batch ID has been recorded.
func (j *Journal) IsCommitted(ctx context.Context, batchID string) (bool, error) {
	_, err := j.Get(ctx, batchID)
	if errors.Is(err, ErrBatchNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns a committed batch.
func (j *Journal) Get(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch *models.Batch
	err := j.read(ctx, func(tx storage.Tx) error {
		var err error
		batch, err = getBatch(ctx, tx, batchID)
		return err
	})
	return batch, err
}

// List returns the most recently committed batches.
func (j *Journal) List(ctx context.Context, limit int) ([]*models.Batch, error) {
	var batches []*models.Batch
	err := j.read(ctx, func(tx storage.Tx) error {
		var err error
		batches, err = tx.ListBatches(ctx, limit)
		return err
	})
	return batches, err
}

func getBatch(ctx context.Context, tx storage.Tx, batchID string) (*models.Batch, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

func validateMeta(meta BatchMeta, now time.Time) error {
	switch {
	case strings.TrimSpace(meta.ID) == "":
		return fmt.Errorf("%w: batch id required", ErrInvalidBatch)
	case meta.Root == (common.Hash{}):
		return fmt.Errorf("%w: root required", ErrInvalidBatch)
	case meta.Asset == (common.Address{}):
		return ErrZeroAddress
	case meta.DeclaredTotal <= 0:
		return fmt.Errorf("%w: declared total must be positive", ErrInvalidBatch)
	case meta.LeafCount < 0:
		return fmt.Errorf("%w: negative leaf count", ErrInvalidBatch)
	case !meta.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidBatch, meta.Kind)
	case !meta.WindowEnd.After(now):
		return fmt.Errorf("%w: window end must be in the future", ErrInvalidBatch)
	}
	return nil
}
