package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
)

// GetAssetPolicy retrieves the allow-list flag and ceilings for an asset.
func (t *sqliteTx) GetAssetPolicy(ctx context.Context, asset common.Address) (*models.AssetPolicy, error) {
	p := &models.AssetPolicy{Asset: asset}
	var enabled int
	var updatedAt int64

	err := t.tx.QueryRowContext(ctx,
		"SELECT enabled, single_max, daily_max, updated_at FROM asset_policies WHERE asset = ?",
		addr(asset),
	).Scan(&enabled, &p.SingleMax, &p.DailyMax, &updatedAt)
	if err != nil {
		return nil, notFound(err, "asset "+asset.Hex())
	}

	p.Enabled = enabled == 1
	p.UpdatedAt = fromUnix(updatedAt)
	return p, nil
}

// SetAssetEnabled toggles the allow-list flag, keeping any configured ceilings.
func (t *sqliteTx) SetAssetEnabled(ctx context.Context, asset common.Address, enabled bool, at time.Time) error {
	flag := 0
	if enabled {
		flag = 1
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO asset_policies (asset, enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (asset) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		addr(asset), flag, toUnix(at),
	)
	if err != nil {
		return fmt.Errorf("failed to set asset enabled: %w", err)
	}
	return nil
}

// SetAssetLimits stores the ceilings, keeping the allow-list flag.
func (t *sqliteTx) SetAssetLimits(ctx context.Context, asset common.Address, singleMax, dailyMax int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO asset_policies (asset, single_max, daily_max, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (asset) DO UPDATE SET single_max = excluded.single_max,
		     daily_max = excluded.daily_max, updated_at = excluded.updated_at`,
		addr(asset), singleMax, dailyMax, toUnix(at),
	)
	if err != nil {
		return fmt.Errorf("failed to set asset limits: %w", err)
	}
	return nil
}

// ListAssetPolicies returns every configured asset.
func (t *sqliteTx) ListAssetPolicies(ctx context.Context) ([]*models.AssetPolicy, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT asset, enabled, single_max, daily_max, updated_at FROM asset_policies ORDER BY asset",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.AssetPolicy
	for rows.Next() {
		p := &models.AssetPolicy{}
		var asset string
		var enabled int
		var updatedAt int64
		if err := rows.Scan(&asset, &enabled, &p.SingleMax, &p.DailyMax, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset policy: %w", err)
		}
		p.Asset = parseAddr(asset)
		p.Enabled = enabled == 1
		p.UpdatedAt = fromUnix(updatedAt)
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset policies: %w", err)
	}
	return policies, nil
}

// GetSpendWindow retrieves the current spend window for (asset, spender).
func (t *sqliteTx) GetSpendWindow(ctx context.Context, asset, spender common.Address) (*models.SpendWindow, error) {
	w := &models.SpendWindow{Asset: asset, Spender: spender}
	var start int64

	err := t.tx.QueryRowContext(ctx,
		"SELECT window_start, spent FROM spend_windows WHERE asset = ? AND spender = ?",
		addr(asset), addr(spender),
	).Scan(&start, &w.Spent)
	if err != nil {
		return nil, notFound(err, "spend window")
	}

	w.WindowStart = fromUnix(start)
	return w, nil
}

// PutSpendWindow upserts a spend window.
func (t *sqliteTx) PutSpendWindow(ctx context.Context, w *models.SpendWindow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO spend_windows (asset, spender, window_start, spent) VALUES (?, ?, ?, ?)
		 ON CONFLICT (asset, spender) DO UPDATE SET window_start = excluded.window_start, spent = excluded.spent`,
		addr(w.Asset), addr(w.Spender), toUnix(w.WindowStart), w.Spent,
	)
	if err != nil {
		return fmt.Errorf("failed to put spend window: %w", err)
	}
	return nil
}
