package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/settlement"
)

// Policy is the startup state seeded from the policy file.
type Policy struct {
	Admin  string        `yaml:"admin"`
	Assets []AssetConfig `yaml:"assets"`
	Roles  []RoleConfig  `yaml:"roles"`
}

// AssetConfig configures one asset. Limits are in whole units of the asset,
// for example "1500.25", and are scaled by Decimals. Empty means unset.
type AssetConfig struct {
	Address   string `yaml:"address"`
	Symbol    string `yaml:"symbol"`
	Decimals  int32  `yaml:"decimals"`
	Enabled   bool   `yaml:"enabled"`
	SingleMax string `yaml:"single_max"`
	DailyMax  string `yaml:"daily_max"`
}

// RoleConfig grants roles to one account.
type RoleConfig struct {
	Account string   `yaml:"account"`
	Roles   []string `yaml:"roles"`
}

// LoadPolicy reads a YAML policy file, expanding ${VAR} references first.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var p Policy
	if err := yaml.Unmarshal([]byte(expanded), &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks addresses, roles and limit amounts.
func (p *Policy) Validate() error {
	if !common.IsHexAddress(p.Admin) {
		return fmt.Errorf("policy admin %q is not an address", p.Admin)
	}
	for i, a := range p.Assets {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("asset %d: %q is not an address", i, a.Address)
		}
		if a.Decimals < 0 || a.Decimals > 18 {
			return fmt.Errorf("asset %s: decimals %d out of range", a.Symbol, a.Decimals)
		}
		if _, _, err := a.Limits(); err != nil {
			return fmt.Errorf("asset %s: %w", a.Symbol, err)
		}
	}
	for i, r := range p.Roles {
		if !common.IsHexAddress(r.Account) {
			return fmt.Errorf("role grant %d: %q is not an address", i, r.Account)
		}
		for _, name := range r.Roles {
			if !models.Role(name).Valid() {
				return fmt.Errorf("role grant %d: unknown role %q", i, name)
			}
		}
	}
	return nil
}

// Limits returns the asset's ceilings in base units.
func (a AssetConfig) Limits() (singleMax, dailyMax int64, err error) {
	if singleMax, err = ToBaseUnits(a.SingleMax, a.Decimals); err != nil {
		return 0, 0, fmt.Errorf("single_max: %w", err)
	}
	if dailyMax, err = ToBaseUnits(a.DailyMax, a.Decimals); err != nil {
		return 0, 0, fmt.Errorf("daily_max: %w", err)
	}
	return singleMax, dailyMax, nil
}

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more decimal places than the asset")
	ErrAmountOverflow = errors.New("amount does not fit in base units")
)

var maxBaseUnits = decimal.NewFromInt(math.MaxInt64)

// ToBaseUnits converts a decimal amount in whole units to integer base units.
// An empty string is zero.
func ToBaseUnits(amount string, decimals int32) (int64, error) {
	if amount == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, amount, decimals)
	}
	if scaled.GreaterThan(maxBaseUnits) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, amount)
	}
	return scaled.IntPart(), nil
}

// FromBaseUnits renders base units as a decimal string in whole units.
func FromBaseUnits(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).String()
}

// RoleGranter records role grants. auth.StoreAuthorizer implements it.
type RoleGranter interface {
	Grant(ctx context.Context, by, account common.Address, role models.Role) error
}

// Apply seeds roles, then asset allow-list entries and ceilings. The admin
// account is granted RoleAdmin first and performs the asset changes.
func (p *Policy) Apply(ctx context.Context, engine *settlement.Engine, roles RoleGranter) error {
	admin := common.HexToAddress(p.Admin)
	if err := roles.Grant(ctx, admin, admin, models.RoleAdmin); err != nil {
		return fmt.Errorf("failed to grant admin: %w", err)
	}

	for _, r := range p.Roles {
		account := common.HexToAddress(r.Account)
		for _, name := range r.Roles {
			if err := roles.Grant(ctx, admin, account, models.Role(name)); err != nil {
				return fmt.Errorf("failed to grant %s to %s: %w", name, r.Account, err)
			}
		}
	}

	for _, a := range p.Assets {
		asset := common.HexToAddress(a.Address)
		singleMax, dailyMax, err := a.Limits()
		if err != nil {
			return fmt.Errorf("asset %s: %w", a.Symbol, err)
		}
		if err := engine.Guard.Allow(ctx, admin, asset, a.Enabled); err != nil {
			return fmt.Errorf("failed to allow %s: %w", a.Symbol, err)
		}
		if err := engine.Guard.SetLimits(ctx, admin, asset, singleMax, dailyMax); err != nil {
			return fmt.Errorf("failed to set limits for %s: %w", a.Symbol, err)
		}
	}
	return nil
}
