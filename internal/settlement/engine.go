// Package settlement implements the batch settlement engine: the limit guard,
// the escrow ledger, the batch journal and the payout distributor.
//
// Every mutating call runs in a single store transaction. A call either
// applies all of its effects, including the events it emits, or none.
// Role checks happen before the transaction starts.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/metrics"
	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// DefaultDistributorAccount is the spender identity claims are metered against.
var DefaultDistributorAccount = common.HexToAddress("0x000000000000000000000000000000000000d157")

// Options configures an Engine.
type Options struct {
	// Authorizer answers role checks. Required.
	Authorizer auth.Authorizer

	// Clock defaults to SystemClock.
	Clock Clock

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// ClaimWhileDisputed keeps claims open while a payout is disputed.
	ClaimWhileDisputed bool

	// DistributorAccount is the spender for claim allowance.
	// Defaults to DefaultDistributorAccount.
	DistributorAccount common.Address
}

// Engine wires the four components over one store.
type Engine struct {
	Guard       *LimitGuard
	Ledger      *Ledger
	Journal     *Journal
	Distributor *Distributor

	core *core
}

// New creates an engine over store.
func New(store storage.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("settlement: store is required")
	}
	if opts.Authorizer == nil {
		return nil, errors.New("settlement: authorizer is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DistributorAccount == (common.Address{}) {
		opts.DistributorAccount = DefaultDistributorAccount
	}

	c := &core{
		store:   store,
		authz:   opts.Authorizer,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
	guard := &LimitGuard{core: c}
	ledger := &Ledger{core: c, guard: guard}
	journal := &Journal{core: c, guard: guard}
	dist := &Distributor{
		core:               c,
		guard:              guard,
		ledger:             ledger,
		claimWhileDisputed: opts.ClaimWhileDisputed,
		spender:            opts.DistributorAccount,
	}

	return &Engine{
		Guard:       guard,
		Ledger:      ledger,
		Journal:     journal,
		Distributor: dist,
		core:        c,
	}, nil
}

// Events lists outbox events in sequence order.
func (e *Engine) Events(ctx context.Context, filter storage.EventFilter) ([]*models.Event, error) {
	var events []*models.Event
	err := e.core.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		events, err = tx.ListEvents(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// core is the state shared by the components.
type core struct {
	store   storage.Store
	authz   auth.Authorizer
	clock   Clock
	metrics *metrics.Metrics
	log     *slog.Logger
}

// require fails with ErrUnauthorized unless caller holds role.
func (c *core) require(ctx context.Context, caller common.Address, role models.Role) error {
	ok, err := c.authz.HasRole(ctx, caller, role)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks role %s", ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}

// read runs fn in a transaction that is only used for reads.
func (c *core) read(ctx context.Context, fn func(tx storage.Tx) error) error {
	return c.store.WithTx(ctx, fn)
}

func emit(ctx context.Context, tx storage.Tx, e *models.Event) error {
	if err := tx.InsertEvent(ctx, e); err != nil {
		return fmt.Errorf("failed to record %s event: %w", e.Type, err)
	}
	return nil
}

func requireAddress(addrs ...common.Address) error {
	for _, a := range addrs {
		if a == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	return nil
}

func requireAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
