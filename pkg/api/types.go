package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetPolicy is the allow-list flag and ceilings of an asset.
type AssetPolicy struct {
	Asset     common.Address `json:"asset"`
	Enabled   bool           `json:"enabled"`
	SingleMax int64          `json:"single_max"`
	DailyMax  int64          `json:"daily_max"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// SpendWindow is the rolling spend of one spender in one asset.
type SpendWindow struct {
	Spender     common.Address `json:"spender"`
	WindowStart time.Time      `json:"window_start"`
	Spent       int64          `json:"spent"`
}

type LedgerEntry struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Delta        int64          `json:"delta"`
	BalanceAfter int64          `json:"balance_after"`
	Reference    string         `json:"reference,omitempty"`
	CreatedBy    common.Address `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Batch struct {
	ID            string         `json:"id"`
	Root          common.Hash    `json:"root"`
	Asset         common.Address `json:"asset"`
	DeclaredTotal int64          `json:"declared_total"`
	LeafCount     int64          `json:"leaf_count"`
	WindowEnd     time.Time      `json:"window_end"`
	Kind          string         `json:"kind"`
	CommittedBy   common.Address `json:"committed_by"`
	CommittedAt   time.Time      `json:"committed_at"`
}

type Payout struct {
	BatchID       string         `json:"batch_id"`
	Root          common.Hash    `json:"root"`
	Asset         common.Address `json:"asset"`
	Status        string         `json:"status"`
	DeclaredTotal int64          `json:"declared_total"`
	ClaimedTotal  int64          `json:"claimed_total"`
	ReversedTotal int64          `json:"reversed_total"`
	WindowEnd     time.Time      `json:"window_end"`
	OpenedAt      time.Time      `json:"opened_at"`
	SettledAt     *time.Time     `json:"settled_at,omitempty"`
}

type Claim struct {
	Leaf      common.Hash    `json:"leaf"`
	Account   common.Address `json:"account"`
	Amount    int64          `json:"amount"`
	ClaimedBy common.Address `json:"claimed_by"`
	ClaimedAt time.Time      `json:"claimed_at"`
}

type Dispute struct {
	ID         string          `json:"id"`
	Reason     string          `json:"reason"`
	RaisedBy   common.Address  `json:"raised_by"`
	RaisedAt   time.Time       `json:"raised_at"`
	ResolvedBy *common.Address `json:"resolved_by,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
}

type Reversal struct {
	ID      string         `json:"id"`
	Account common.Address `json:"account"`
	Amount  int64          `json:"amount"`
}

// Event is an entry of the settlement event log.
type Event struct {
	Seq       int64          `json:"seq"`
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	BatchID   string         `json:"batch_id,omitempty"`
	Account   common.Address `json:"account"`
	Asset     common.Address `json:"asset"`
	Amount    int64          `json:"amount,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Actor     common.Address `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}
