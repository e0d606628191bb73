package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BatchKind tells what the batch pays out.
type BatchKind string

const (
	BatchKindReward BatchKind = "reward"
	BatchKindPayout BatchKind = "payout"
)

// Valid reports whether k is a known batch kind.
func (k BatchKind) Valid() bool {
	return k == BatchKindReward || k == BatchKindPayout
}

// Batch is one committed set of payout entries summarized by a Merkle root.
// Batches are written once and never updated; a wrong batch is superseded by
// committing a new ID.
type Batch struct {
	// ID is the globally unique batch identifier chosen by the builder.
	ID string

	// Root is the Merkle root over the batch leaves.
	Root common.Hash

	// Asset is the token every leaf in the batch pays out.
	Asset common.Address

	// DeclaredTotal is the sum of all leaf amounts as declared by the builder.
	// Cumulative claims can never exceed it.
	DeclaredTotal int64

	// LeafCount is informational and not verified.
	LeafCount int64

	// WindowEnd closes the dispute window. Settlement is possible from then on.
	WindowEnd time.Time

	Kind BatchKind

	// CommittedBy is the journal writer that recorded the batch.
	CommittedBy common.Address

	CommittedAt time.Time
}
