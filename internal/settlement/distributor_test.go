package settlement

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/batchsettle/internal/merkle"
	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

func TestPayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "2025-01")
	f.commitAndOpen(t, b)

	// Alice claims her 50 once.
	_, err := dist.Claim(f.ctx, alice, b.claim(t, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(50), f.balance(t, alice))

	_, err = dist.Claim(f.ctx, alice, b.claim(t, 0))
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, int64(50), f.balance(t, alice))

	// Bob cannot inflate his amount.
	inflated := b.claim(t, 1)
	inflated.Amount = 31
	_, err = dist.Claim(f.ctx, bob, inflated)
	require.ErrorIs(t, err, ErrInvalidProof)

	_, err = dist.Claim(f.ctx, bob, b.claim(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(30), f.balance(t, bob))

	// A dispute blocks settlement and claims.
	_, err = dist.Dispute(f.ctx, disputer, b.id, "bob's leaf is fraudulent")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = dist.Settle(f.ctx, settler, b.id)
	require.ErrorIs(t, err, ErrWrongState)
	f.clock.Set(t0.Add(30 * time.Minute))

	_, err = dist.Claim(f.ctx, carol, b.claim(t, 2))
	require.ErrorIs(t, err, ErrWrongState)

	// Reversal debits bob but his leaf stays claimed.
	reversals, err := dist.Reverse(f.ctx, arbiter, b.id, []common.Address{bob}, []int64{30})
	require.NoError(t, err)
	require.Len(t, reversals, 1)
	assert.Zero(t, f.balance(t, bob))

	claimed, err := dist.IsClaimed(f.ctx, b.id, bob, usdc, 30)
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = dist.Claim(f.ctx, bob, b.claim(t, 1))
	require.ErrorIs(t, err, ErrWrongState)

	_, err = dist.ResolveDispute(f.ctx, arbiter, b.id, "bob reversed")
	require.NoError(t, err)

	_, err = dist.Claim(f.ctx, bob, b.claim(t, 1))
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = dist.Claim(f.ctx, carol, b.claim(t, 2))
	require.NoError(t, err)

	// Settlement waits for the window.
	_, err = dist.Settle(f.ctx, settler, b.id)
	require.ErrorIs(t, err, ErrWindowNotEnded)

	f.clock.Set(t0.Add(time.Hour))
	_, err = dist.Dispute(f.ctx, disputer, b.id, "late")
	require.ErrorIs(t, err, ErrWindowClosed)

	payout, err := dist.Settle(f.ctx, settler, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSettled, payout.Status)
	assert.Equal(t, int64(100), payout.ClaimedTotal)
	assert.Equal(t, int64(30), payout.ReversedTotal)
	assert.True(t, payout.SettledAt.Equal(t0.Add(time.Hour)))

	// Settled is terminal.
	_, err = dist.Settle(f.ctx, settler, b.id)
	require.ErrorIs(t, err, ErrWrongState)
	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice}, []int64{1})
	require.ErrorIs(t, err, ErrWrongState)

	assert.Equal(t, int64(50), f.balance(t, alice))
	assert.Equal(t, int64(0), f.balance(t, bob))
	assert.Equal(t, int64(20), f.balance(t, carol))

	claims, err := dist.Claims(f.ctx, b.id)
	require.NoError(t, err)
	assert.Len(t, claims, 3)

	disputes, err := dist.Disputes(f.ctx, b.id)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, arbiter, disputes[0].ResolvedBy)
	assert.Equal(t, "bob reversed", disputes[0].Resolution)

	events, err := f.engine.Events(f.ctx, storage.EventFilter{BatchID: b.id})
	require.NoError(t, err)
	var types []models.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []models.EventType{
		models.EventBatchCommitted,
		models.EventPayoutOpened,
		models.EventClaimed,
		models.EventClaimed,
		models.EventDisputed,
		models.EventReversed,
		models.EventDisputeResolved,
		models.EventClaimed,
		models.EventSettled,
	}, types)
}

func TestSettleWithoutDispute(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "undisputed")
	f.commitAndOpen(t, b)

	_, err := dist.Claim(f.ctx, alice, b.claim(t, 0))
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	payout, err := dist.Settle(f.ctx, settler, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutSettled, payout.Status)
	assert.Equal(t, int64(50), payout.ClaimedTotal)
	assert.Zero(t, payout.ReversedTotal)

	// Unclaimed leaves are forfeited once settled.
	_, err = dist.Claim(f.ctx, bob, b.claim(t, 1))
	require.ErrorIs(t, err, ErrWrongState)
	_, err = dist.Claim(f.ctx, alice, b.claim(t, 0))
	require.ErrorIs(t, err, ErrWrongState)
	_, err = dist.Dispute(f.ctx, disputer, b.id, "too late")
	require.ErrorIs(t, err, ErrWindowClosed)
	_, err = dist.ResolveDispute(f.ctx, arbiter, b.id, "nothing")
	require.ErrorIs(t, err, ErrWrongState)

	assert.Equal(t, int64(50), f.balance(t, alice))
	assert.Zero(t, f.balance(t, bob))
	assert.Zero(t, f.balance(t, carol))

	claimed, err := dist.IsClaimed(f.ctx, b.id, bob, usdc, 30)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestOpenPayoutChecks(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "open")

	_, err := dist.OpenPayout(f.ctx, settler, b.id, b.tree.Root(), usdc)
	require.ErrorIs(t, err, ErrBatchNotFound)

	_, err = f.engine.Journal.Commit(f.ctx, writer, BatchMeta{
		ID: b.id, Root: b.tree.Root(), Asset: usdc, DeclaredTotal: b.total, WindowEnd: t0.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = dist.OpenPayout(f.ctx, alice, b.id, b.tree.Root(), usdc)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = dist.OpenPayout(f.ctx, settler, b.id, common.HexToHash("0x02"), usdc)
	require.ErrorIs(t, err, ErrRootMismatch)

	_, err = dist.OpenPayout(f.ctx, settler, b.id, b.tree.Root(), dai)
	require.ErrorIs(t, err, ErrAssetMismatch)

	payout, err := dist.OpenPayout(f.ctx, settler, b.id, b.tree.Root(), usdc)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutOpen, payout.Status)
	assert.True(t, payout.WindowEnd.Equal(t0.Add(time.Hour)))

	_, err = dist.OpenPayout(f.ctx, settler, b.id, b.tree.Root(), usdc)
	require.ErrorIs(t, err, ErrPayoutExists)

	_, err = dist.Payout(f.ctx, "missing")
	require.ErrorIs(t, err, ErrPayoutNotFound)
}

func TestClaimValidation(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "claims")
	f.commitAndOpen(t, b)

	tests := []struct {
		name   string
		caller common.Address
		req    func() ClaimRequest
		want   error
	}{
		{
			name:   "proof for another account",
			caller: bob,
			req:    func() ClaimRequest { return b.claim(t, 0) },
			want:   ErrInvalidProof,
		},
		{
			name:   "claim for someone else without operator role",
			caller: bob,
			req: func() ClaimRequest {
				r := b.claim(t, 0)
				r.Account = alice
				return r
			},
			want: ErrUnauthorized,
		},
		{
			name:   "wrong asset",
			caller: alice,
			req: func() ClaimRequest {
				r := b.claim(t, 0)
				r.Asset = dai
				return r
			},
			want: ErrAssetMismatch,
		},
		{
			name:   "zero amount",
			caller: alice,
			req: func() ClaimRequest {
				r := b.claim(t, 0)
				r.Amount = 0
				return r
			},
			want: ErrInvalidAmount,
		},
		{
			name:   "unknown payout",
			caller: alice,
			req: func() ClaimRequest {
				r := b.claim(t, 0)
				r.BatchID = "nope"
				return r
			},
			want: ErrPayoutNotFound,
		},
		{
			name:   "truncated proof",
			caller: alice,
			req: func() ClaimRequest {
				r := b.claim(t, 0)
				r.Proof = r.Proof[:1]
				return r
			},
			want: ErrInvalidProof,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dist.Claim(f.ctx, tt.caller, tt.req())
			require.ErrorIs(t, err, tt.want)
		})
	}

	payout, err := dist.Payout(f.ctx, b.id)
	require.NoError(t, err)
	assert.Zero(t, payout.ClaimedTotal)
}

func TestOperatorClaimsOnBehalf(t *testing.T) {
	f := newFixture(t)
	b := threeLeafBatch(t, "on-behalf")
	f.commitAndOpen(t, b)

	req := b.claim(t, 2)
	req.Account = carol
	claim, err := f.engine.Distributor.Claim(f.ctx, operator, req)
	require.NoError(t, err)
	assert.Equal(t, carol, claim.Account)
	assert.Equal(t, operator, claim.ClaimedBy)
	assert.Equal(t, int64(20), f.balance(t, carol))
	assert.Zero(t, f.balance(t, operator))
}

func TestClaimsCappedByDeclaredTotal(t *testing.T) {
	f := newFixture(t)
	b := threeLeafBatch(t, "under-declared")
	_, err := f.engine.Journal.Commit(f.ctx, writer, BatchMeta{
		ID: b.id, Root: b.tree.Root(), Asset: usdc, DeclaredTotal: 60, WindowEnd: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.engine.Distributor.OpenPayout(f.ctx, settler, b.id, b.tree.Root(), usdc)
	require.NoError(t, err)

	_, err = f.engine.Distributor.Claim(f.ctx, alice, b.claim(t, 0))
	require.NoError(t, err)
	_, err = f.engine.Distributor.Claim(f.ctx, bob, b.claim(t, 1))
	require.ErrorIs(t, err, ErrExceedsBatchTotal)
	assert.Zero(t, f.balance(t, bob))
}

func TestClaimsConsumeDistributorAllowance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Guard.SetLimits(f.ctx, admin, usdc, 40, 0))
	b := threeLeafBatch(t, "capped")
	f.commitAndOpen(t, b)

	_, err := f.engine.Distributor.Claim(f.ctx, alice, b.claim(t, 0))
	require.ErrorIs(t, err, ErrExceedsSingleMax)

	_, err = f.engine.Distributor.Claim(f.ctx, bob, b.claim(t, 1))
	require.NoError(t, err)

	w, err := f.engine.Guard.Window(f.ctx, usdc, DefaultDistributorAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(30), w.Spent)

	// The failed claim left nothing behind.
	claimed, err := f.engine.Distributor.IsClaimed(f.ctx, b.id, alice, usdc, 50)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestDisputeRules(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "disputes")
	f.commitAndOpen(t, b)

	_, err := dist.Dispute(f.ctx, alice, b.id, "looks wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = dist.Dispute(f.ctx, disputer, b.id, "  ")
	require.ErrorIs(t, err, ErrMissingReason)

	_, err = dist.ResolveDispute(f.ctx, arbiter, b.id, "nothing to resolve")
	require.ErrorIs(t, err, ErrWrongState)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice}, []int64{1})
	require.ErrorIs(t, err, ErrWrongState)

	_, err = dist.Dispute(f.ctx, disputer, b.id, "first")
	require.NoError(t, err)
	_, err = dist.Dispute(f.ctx, disputer, b.id, "second")
	require.NoError(t, err)

	disputes, err := dist.Disputes(f.ctx, b.id)
	require.NoError(t, err)
	require.Len(t, disputes, 2)
	assert.Equal(t, "first", disputes[0].Reason)
	assert.Equal(t, "second", disputes[1].Reason)

	payout, err := dist.Payout(f.ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutDisputed, payout.Status)
}

func TestReverseIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	dist := f.engine.Distributor
	b := threeLeafBatch(t, "reverse")
	f.commitAndOpen(t, b)

	_, err := dist.Claim(f.ctx, alice, b.claim(t, 0))
	require.NoError(t, err)
	_, err = dist.Claim(f.ctx, bob, b.claim(t, 1))
	require.NoError(t, err)

	// Bob moves his funds out before the dispute lands.
	_, err = f.engine.Ledger.Withdraw(f.ctx, bob, usdc, 25)
	require.NoError(t, err)

	_, err = dist.Dispute(f.ctx, disputer, b.id, "both leaves are bogus")
	require.NoError(t, err)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice, bob}, []int64{50, 30})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "entry 1")
	assert.Equal(t, int64(50), f.balance(t, alice), "first entry must roll back")

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice}, []int64{51})
	require.ErrorIs(t, err, ErrExceedsClaimed)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{carol}, []int64{1})
	require.ErrorIs(t, err, ErrExceedsClaimed)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice, bob}, []int64{1})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, nil, nil)
	require.ErrorIs(t, err, ErrEmptyReversal)

	_, err = dist.Reverse(f.ctx, disputer, b.id, []common.Address{alice}, []int64{1})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Partial amounts accumulate up to the claimed amount.
	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice, alice}, []int64{20, 30})
	require.NoError(t, err)
	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{alice}, []int64{1})
	require.ErrorIs(t, err, ErrExceedsClaimed)

	_, err = dist.Reverse(f.ctx, arbiter, b.id, []common.Address{bob}, []int64{5})
	require.NoError(t, err)

	payout, err := dist.Payout(f.ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, int64(80), payout.ClaimedTotal)
	assert.Equal(t, int64(55), payout.ReversedTotal)
	assert.Zero(t, f.balance(t, alice))
	assert.Zero(t, f.balance(t, bob))
}

func TestClaimWhileDisputedPolicy(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ClaimWhileDisputed = true })
	b := threeLeafBatch(t, "lenient")
	f.commitAndOpen(t, b)

	_, err := f.engine.Distributor.Dispute(f.ctx, disputer, b.id, "audit")
	require.NoError(t, err)

	_, err = f.engine.Distributor.Claim(f.ctx, carol, b.claim(t, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(20), f.balance(t, carol))
}

func TestConcurrentClaimsRespectDailyCap(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Guard.SetLimits(f.ctx, admin, usdc, 0, 100))

	const beneficiaries = 12
	entries := make([]merkle.Entry, beneficiaries)
	for i := range entries {
		entries[i] = merkle.Entry{
			Account: common.BytesToAddress([]byte{0x77, byte(i + 1)}),
			Asset:   usdc,
			Amount:  20,
		}
	}
	b := buildBatch(t, "burst", entries...)
	f.commitAndOpen(t, b)

	var ok, capped atomic.Int32
	var g errgroup.Group
	for i := range entries {
		req := b.claim(t, i)
		caller := entries[i].Account
		g.Go(func() error {
			_, err := f.engine.Distributor.Claim(f.ctx, caller, req)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrExceedsDailyMax):
				capped.Add(1)
			default:
				return fmt.Errorf("claim by %s: %w", caller.Hex(), err)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(beneficiaries-5), capped.Load())

	payout, err := f.engine.Distributor.Payout(f.ctx, b.id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), payout.ClaimedTotal)
}
