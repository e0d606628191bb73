package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names an auditable state change.
type EventType string

const (
	EventAssetAllowed    EventType = "asset.allowed"
	EventLimitsSet       EventType = "asset.limits_set"
	EventDeposited       EventType = "ledger.deposited"
	EventWithdrawn       EventType = "ledger.withdrawn"
	EventCredited        EventType = "ledger.credited"
	EventDebited         EventType = "ledger.debited"
	EventBatchCommitted  EventType = "batch.committed"
	EventPayoutOpened    EventType = "payout.opened"
	EventClaimed         EventType = "payout.claimed"
	EventDisputed        EventType = "payout.disputed"
	EventDisputeResolved EventType = "payout.dispute_resolved"
	EventReversed        EventType = "payout.reversed"
	EventSettled         EventType = "payout.settled"
	EventRoleGranted     EventType = "role.granted"
	EventRoleRevoked     EventType = "role.revoked"
)

// Event is written in the same transaction as the change it describes and
// relayed to subscribers afterwards.
type Event struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Type      EventType      `json:"type"`
	BatchID   string         `json:"batch_id,omitempty"`
	Account   common.Address `json:"account"`
	Asset     common.Address `json:"asset"`
	Amount    int64          `json:"amount,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Actor     common.Address `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`

	// PublishedAt is zero until the relay has delivered the event.
	PublishedAt time.Time `json:"-"`
}
