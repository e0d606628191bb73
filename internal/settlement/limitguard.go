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

// LimitGuard keeps the asset allow-list and meters spending against a
// per-transaction ceiling and a rolling 24h ceiling per (asset, spender).
type LimitGuard struct {
	*core
}

// Allow enables or disables an asset. Requires RoleAdmin.
func (g *LimitGuard) Allow(ctx context.Context, caller, asset common.Address, enabled bool) error {
	if err := g.require(ctx, caller, models.RoleAdmin); err != nil {
		return err
	}
	if err := requireAddress(asset); err != nil {
		return err
	}

	now := g.clock.Now()
	err := g.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetAssetEnabled(ctx, asset, enabled, now); err != nil {
			return err
		}
		reason := "disabled"
		if enabled {
			reason = "enabled"
		}
		return emit(ctx, tx, &models.Event{
			Type: models.EventAssetAllowed, Asset: asset, Reason: reason, Actor: caller, CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	g.log.Info("Asset allow-list updated", "asset", asset.Hex(), "enabled", enabled)
	return nil
}

// SetLimits sets the ceilings for an asset. Zero leaves a ceiling unset.
// A single ceiling above a set daily ceiling is rejected. Requires RoleAdmin.
func (g *LimitGuard) SetLimits(ctx context.Context, caller, asset common.Address, singleMax, dailyMax int64) error {
	if err := g.require(ctx, caller, models.RoleAdmin); err != nil {
		return err
	}
	if err := requireAddress(asset); err != nil {
		return err
	}
	if singleMax < 0 || dailyMax < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalid)
	}
	if dailyMax > 0 && singleMax > dailyMax {
		return ErrInvalidLimits
	}

	now := g.clock.Now()
	err := g.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetAssetLimits(ctx, asset, singleMax, dailyMax, now); err != nil {
			return err
		}
		return emit(ctx, tx, &models.Event{
			Type:      models.EventLimitsSet,
			Asset:     asset,
			Amount:    dailyMax,
			Reason:    fmt.Sprintf("single_max=%d daily_max=%d", singleMax, dailyMax),
			Actor:     caller,
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	g.log.Info("Asset limits updated", "asset", asset.Hex(), "single_max", singleMax, "daily_max", dailyMax)
	return nil
}

// CheckAndConsume meters amount against the asset's ceilings for spender and
// records it. It is atomic with respect to every other engine call.
func (g *LimitGuard) CheckAndConsume(ctx context.Context, asset, spender common.Address, amount int64) error {
	if err := requireAddress(asset, spender); err != nil {
		return err
	}
	now := g.clock.Now()
	return g.store.WithTx(ctx, func(tx storage.Tx) error {
		return g.consume(ctx, tx, asset, spender, amount, now)
	})
}

// Limits returns the policy configured for asset.
func (g *LimitGuard) Limits(ctx context.Context, asset common.Address) (*models.AssetPolicy, error) {
	var policy *models.AssetPolicy
	err := g.read(ctx, func(tx storage.Tx) error {
		var err error
		policy, err = tx.GetAssetPolicy(ctx, asset)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return &models.AssetPolicy{Asset: asset}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset policy: %w", err)
	}
	return policy, nil
}

// Policies lists every configured asset.
func (g *LimitGuard) Policies(ctx context.Context) ([]*models.AssetPolicy, error) {
	var policies []*models.AssetPolicy
	err := g.read(ctx, func(tx storage.Tx) error {
		var err error
		policies, err = tx.ListAssetPolicies(ctx)
		return err
	})
	return policies, err
}

// Window returns the spend window as it applies now. An expired or
// never-used window is reported empty, starting now.
func (g *LimitGuard) Window(ctx context.Context, asset, spender common.Address) (*models.SpendWindow, error) {
	now := g.clock.Now()
	var w *models.SpendWindow
	err := g.read(ctx, func(tx storage.Tx) error {
		var err error
		w, err = currentWindow(ctx, tx, asset, spender, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// allowed returns the policy of an enabled asset, or ErrAssetNotAllowed.
func (g *LimitGuard) allowed(ctx context.Context, tx storage.Tx, asset common.Address) (*models.AssetPolicy, error) {
	policy, err := tx.GetAssetPolicy(ctx, asset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset policy: %w", err)
	}
	if !policy.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset.Hex())
	}
	return policy, nil
}

// consume is CheckAndConsume inside an existing transaction.
func (g *LimitGuard) consume(ctx context.Context, tx storage.Tx, asset, spender common.Address, amount int64, now time.Time) error {
	err := g.tryConsume(ctx, tx, asset, spender, amount, now)
	if errors.Is(err, ErrLimit) {
		g.metrics.LimitRejected(asset.Hex(), Reason(err))
	}
	return err
}

func (g *LimitGuard) tryConsume(ctx context.Context, tx storage.Tx, asset, spender common.Address, amount int64, now time.Time) error {
	if err := requireAmount(amount); err != nil {
		return err
	}
	policy, err := g.allowed(ctx, tx, asset)
	if err != nil {
		return err
	}
	if policy.SingleMax > 0 && amount > policy.SingleMax {
		return fmt.Errorf("%w: %d > %d", ErrExceedsSingleMax, amount, policy.SingleMax)
	}

	w, err := currentWindow(ctx, tx, asset, spender, now)
	if err != nil {
		return err
	}
	if amount > math.MaxInt64-w.Spent {
		return fmt.Errorf("%w: window overflow", ErrExceedsDailyMax)
	}
	if policy.DailyMax > 0 && w.Spent+amount > policy.DailyMax {
		return fmt.Errorf("%w: %d spent, %d requested, %d allowed", ErrExceedsDailyMax, w.Spent, amount, policy.DailyMax)
	}

	w.Spent += amount
	return tx.PutSpendWindow(ctx, w)
}

// currentWindow loads the window for (asset, spender), rolled forward if stale.
func currentWindow(ctx context.Context, tx storage.Tx, asset, spender common.Address, now time.Time) (*models.SpendWindow, error) {
	w, err := tx.GetSpendWindow(ctx, asset, spender)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.SpendWindow{Asset: asset, Spender: spender, WindowStart: now}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get spend window: %w", err)
	}
	if w.Expired(now) {
		w.WindowStart = now
		w.Spent = 0
	}
	return w, nil
}
