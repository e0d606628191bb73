package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PayoutStatus is the state of a payout view.
type PayoutStatus string

const (
	PayoutOpen     PayoutStatus = "open"
	PayoutDisputed PayoutStatus = "disputed"
	PayoutSettled  PayoutStatus = "settled"
)

// PayoutView is the claimable view over a committed batch.
// The claimed set lives in Claim records keyed by (BatchID, Leaf).
type PayoutView struct {
	BatchID string
	Root    common.Hash
	Asset   common.Address
	Status  PayoutStatus

	// DeclaredTotal and WindowEnd are copied from the batch at open time.
	DeclaredTotal int64
	WindowEnd     time.Time

	// ClaimedTotal only grows. ReversedTotal is the part of it debited back.
	ClaimedTotal  int64
	ReversedTotal int64

	OpenedBy  common.Address
	OpenedAt  time.Time
	UpdatedAt time.Time

	// SettledAt is zero until the payout settles.
	SettledAt time.Time
}

// Claim records that a leaf of a batch has been paid out.
// Claims are final: reversal debits the balance but never removes the claim.
type Claim struct {
	BatchID   string
	Leaf      common.Hash
	Account   common.Address
	Amount    int64
	ClaimedBy common.Address
	ClaimedAt time.Time
}

// Dispute records one dispute raised against a payout.
type Dispute struct {
	ID         string
	BatchID    string
	Reason     string
	RaisedBy   common.Address
	RaisedAt   time.Time
	ResolvedBy common.Address
	ResolvedAt time.Time
	Resolution string
}

// Reversal records an amount debited back from an account during a dispute.
type Reversal struct {
	ID         string
	BatchID    string
	Account    common.Address
	Amount     int64
	ReversedBy common.Address
	ReversedAt time.Time
}
