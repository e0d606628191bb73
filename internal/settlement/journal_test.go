package settlement

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/batchsettle/internal/models"
)

func TestCommitIsWriteOnce(t *testing.T) {
	f := newFixture(t)
	b := threeLeafBatch(t, "2025-01-a")
	meta := BatchMeta{
		ID: b.id, Root: b.tree.Root(), Asset: usdc, DeclaredTotal: b.total,
		LeafCount: 3, WindowEnd: t0.Add(time.Hour), Kind: models.BatchKindReward,
	}

	committed, err := f.engine.Journal.Commit(f.ctx, writer, meta)
	require.NoError(t, err)
	assert.Equal(t, writer, committed.CommittedBy)

	again := meta
	again.Root = common.HexToHash("0xbad")
	_, err = f.engine.Journal.Commit(f.ctx, writer, again)
	require.ErrorIs(t, err, ErrDuplicateBatch)
	require.ErrorIs(t, err, ErrConflict)

	got, err := f.engine.Journal.Get(f.ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, b.tree.Root(), got.Root)
	assert.Equal(t, models.BatchKindReward, got.Kind)
	assert.Equal(t, int64(100), got.DeclaredTotal)

	ok, err := f.engine.Journal.IsCommitted(f.ctx, b.id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.Journal.IsCommitted(f.ctx, "never")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.engine.Journal.Get(f.ctx, "never")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestCommitValidation(t *testing.T) {
	f := newFixture(t)
	root := common.HexToHash("0x01")
	valid := BatchMeta{ID: "v", Root: root, Asset: usdc, DeclaredTotal: 1, WindowEnd: t0.Add(time.Minute)}

	tests := []struct {
		name   string
		mutate func(m *BatchMeta)
		want   error
	}{
		{name: "empty id", mutate: func(m *BatchMeta) { m.ID = " " }, want: ErrInvalidBatch},
		{name: "zero root", mutate: func(m *BatchMeta) { m.Root = common.Hash{} }, want: ErrInvalidBatch},
		{name: "zero asset", mutate: func(m *BatchMeta) { m.Asset = common.Address{} }, want: ErrZeroAddress},
		{name: "zero total", mutate: func(m *BatchMeta) { m.DeclaredTotal = 0 }, want: ErrInvalidBatch},
		{name: "unknown kind", mutate: func(m *BatchMeta) { m.Kind = "bonus" }, want: ErrInvalidBatch},
		{name: "window already over", mutate: func(m *BatchMeta) { m.WindowEnd = t0 }, want: ErrInvalidBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := valid
			tt.mutate(&meta)
			_, err := f.engine.Journal.Commit(f.ctx, writer, meta)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	t.Run("requires journal writer", func(t *testing.T) {
		_, err := f.engine.Journal.Commit(f.ctx, settler, valid)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	batches, err := f.engine.Journal.List(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestConcurrentCommitHasOneWinner(t *testing.T) {
	f := newFixture(t)
	b := threeLeafBatch(t, "race")

	const writers = 10
	var (
		mu   sync.Mutex
		wins int
		dups int
	)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := f.engine.Journal.Commit(f.ctx, writer, BatchMeta{
				ID: b.id, Root: b.tree.Root(), Asset: usdc, DeclaredTotal: b.total, WindowEnd: t0.Add(time.Hour),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrDuplicateBatch):
				dups++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, dups)
}
