package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

var (
	alice = common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdc  = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	t0    = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("migrations are recorded", func(t *testing.T) {
		v, err := store.SchemaVersion(ctx)
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if v != len(migrations) {
			t.Errorf("schema version = %d, want %d", v, len(migrations))
		}
	})

	t.Run("InsertBatch rejects a duplicate ID without changing the original", func(t *testing.T) {
		batch := &models.Batch{
			ID:            "batch-1",
			Root:          common.HexToHash("0x01"),
			Asset:         usdc,
			DeclaredTotal: 100,
			WindowEnd:     t0.Add(time.Hour),
			Kind:          models.BatchKindPayout,
			CommittedBy:   alice,
			CommittedAt:   t0,
		}
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.InsertBatch(ctx, batch)
		})
		if err != nil {
			t.Fatalf("InsertBatch failed: %v", err)
		}

		dup := *batch
		dup.Root = common.HexToHash("0x02")
		err = store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.InsertBatch(ctx, &dup)
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}

		var got *models.Batch
		store.WithTx(ctx, func(tx storage.Tx) error {
			got, err = tx.GetBatch(ctx, "batch-1")
			return err
		})
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if got.Root != batch.Root {
			t.Errorf("root changed: got %s, want %s", got.Root.Hex(), batch.Root.Hex())
		}
		if !got.WindowEnd.Equal(batch.WindowEnd) {
			t.Errorf("window end mismatch: got %v, want %v", got.WindowEnd, batch.WindowEnd)
		}
	})

	t.Run("GetBatch returns ErrNotFound for nonexistent batch", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			_, err := tx.GetBatch(ctx, "nonexistent")
			return err
		})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddBalance never goes negative", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			bal, err := tx.AddBalance(ctx, alice, usdc, 30, t0)
			if err != nil {
				return err
			}
			if bal != 30 {
				t.Errorf("balance after credit = %d, want 30", bal)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("credit failed: %v", err)
		}

		err = store.WithTx(ctx, func(tx storage.Tx) error {
			_, err := tx.AddBalance(ctx, alice, usdc, -31, t0)
			return err
		})
		if !errors.Is(err, storage.ErrNegativeBalance) {
			t.Fatalf("expected ErrNegativeBalance, got %v", err)
		}

		store.WithTx(ctx, func(tx storage.Tx) error {
			bal, _ := tx.GetBalance(ctx, alice, usdc)
			if bal != 30 {
				t.Errorf("balance after failed debit = %d, want 30", bal)
			}
			return nil
		})
	})

	t.Run("rolled back transaction leaves no trace", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			if _, err := tx.AddBalance(ctx, alice, usdc, 1000, t0); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		store.WithTx(ctx, func(tx storage.Tx) error {
			bal, _ := tx.GetBalance(ctx, alice, usdc)
			if bal != 30 {
				t.Errorf("balance = %d, want 30", bal)
			}
			return nil
		})
	})

	t.Run("claims are unique per leaf and summed per account", func(t *testing.T) {
		leaf := common.HexToHash("0xaa")
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			if err := tx.InsertPayout(ctx, &models.PayoutView{
				BatchID: "batch-1", Root: common.HexToHash("0x01"), Asset: usdc,
				Status: models.PayoutOpen, DeclaredTotal: 100, WindowEnd: t0.Add(time.Hour),
				OpenedBy: alice, OpenedAt: t0, UpdatedAt: t0,
			}); err != nil {
				return err
			}
			return tx.InsertClaim(ctx, &models.Claim{
				BatchID: "batch-1", Leaf: leaf, Account: alice, Amount: 40, ClaimedBy: alice, ClaimedAt: t0,
			})
		})
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		err = store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.InsertClaim(ctx, &models.Claim{
				BatchID: "batch-1", Leaf: leaf, Account: alice, Amount: 40, ClaimedBy: alice, ClaimedAt: t0,
			})
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate for second claim, got %v", err)
		}

		err = store.WithTx(ctx, func(tx storage.Tx) error {
			if err := tx.InsertReversal(ctx, &models.Reversal{
				BatchID: "batch-1", Account: alice, Amount: 15, ReversedBy: alice, ReversedAt: t0,
			}); err != nil {
				return err
			}
			claimed, reversed, err := tx.AccountTotals(ctx, "batch-1", alice)
			if err != nil {
				return err
			}
			if claimed != 40 || reversed != 15 {
				t.Errorf("totals = (%d, %d), want (40, 15)", claimed, reversed)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("AccountTotals failed: %v", err)
		}
	})

	t.Run("events are relayed once", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			for _, typ := range []models.EventType{models.EventBatchCommitted, models.EventPayoutOpened} {
				if err := tx.InsertEvent(ctx, &models.Event{Type: typ, BatchID: "batch-1", Actor: alice, CreatedAt: t0}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InsertEvent failed: %v", err)
		}

		var pending []*models.Event
		store.WithTx(ctx, func(tx storage.Tx) error {
			pending, err = tx.ListUnpublishedEvents(ctx, 10)
			return err
		})
		if len(pending) != 2 {
			t.Fatalf("pending events = %d, want 2", len(pending))
		}
		if pending[0].Seq >= pending[1].Seq {
			t.Error("events not in sequence order")
		}

		store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.MarkEventsPublished(ctx, []string{pending[0].ID, pending[1].ID}, t0)
		})
		store.WithTx(ctx, func(tx storage.Tx) error {
			pending, err = tx.ListUnpublishedEvents(ctx, 10)
			return err
		})
		if len(pending) != 0 {
			t.Errorf("pending events after publish = %d, want 0", len(pending))
		}
	})

	t.Run("role grants", func(t *testing.T) {
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			g := &models.RoleGrant{Account: alice, Role: models.RoleSettler, GrantedBy: alice, GrantedAt: t0}
			if err := tx.GrantRole(ctx, g); err != nil {
				return err
			}
			// granting twice is harmless
			return tx.GrantRole(ctx, g)
		})
		if err != nil {
			t.Fatalf("GrantRole failed: %v", err)
		}

		store.WithTx(ctx, func(tx storage.Tx) error {
			ok, _ := tx.HasRole(ctx, alice, models.RoleSettler)
			if !ok {
				t.Error("expected alice to hold settler")
			}
			removed, _ := tx.RevokeRole(ctx, alice, models.RoleSettler)
			if !removed {
				t.Error("expected revoke to remove the grant")
			}
			ok, _ = tx.HasRole(ctx, alice, models.RoleSettler)
			if ok {
				t.Error("expected settler to be revoked")
			}
			return nil
		})
	})
}

func TestConcurrentBatchInsertHasOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx storage.Tx) error {
				return tx.InsertBatch(ctx, &models.Batch{
					ID: "race", Root: common.BigToHash(common.Big1), Asset: usdc, DeclaredTotal: 1,
					WindowEnd: t0, Kind: models.BatchKindReward, CommittedBy: alice, CommittedAt: t0,
				})
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, storage.ErrDuplicate):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("successful inserts = %d, want 1", wins)
	}
}
