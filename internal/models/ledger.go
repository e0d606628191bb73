package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryDeposit  EntryKind = "deposit"
	EntryWithdraw EntryKind = "withdraw"
	EntryCredit   EntryKind = "credit"
	EntryDebit    EntryKind = "debit"
	EntryClaim    EntryKind = "claim"
	EntryReversal EntryKind = "reversal"
)

// Balance is the custodial balance of one account in one asset.
type Balance struct {
	Account   common.Address
	Asset     common.Address
	Amount    int64
	UpdatedAt time.Time
}

// LedgerEntry is one balance mutation. Delta is positive for credits and
// negative for debits; BalanceAfter is the resulting balance.
type LedgerEntry struct {
	ID           string
	Account      common.Address
	Asset        common.Address
	Kind         EntryKind
	Delta        int64
	BalanceAfter int64

	// Reference links the entry to its origin, e.g. the batch ID of a claim.
	Reference string

	CreatedBy common.Address
	CreatedAt time.Time
}
