package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SpendWindowDuration is the length of the rolling spend window.
const SpendWindowDuration = 24 * time.Hour

// AssetPolicy holds the allow-list flag and spend ceilings for an asset.
// A zero ceiling means the ceiling is unset.
type AssetPolicy struct {
	Asset     common.Address
	Enabled   bool
	SingleMax int64
	DailyMax  int64
	UpdatedAt time.Time
}

// SpendWindow tracks what a spender has consumed of an asset's daily ceiling.
type SpendWindow struct {
	Asset       common.Address
	Spender     common.Address
	WindowStart time.Time
	Spent       int64
}

// Expired reports whether the window has to roll forward at now.
func (w SpendWindow) Expired(now time.Time) bool {
	return now.After(w.WindowStart.Add(SpendWindowDuration))
}
