// Package models defines the core domain models of the batch settlement engine.
//
// # Models
//
//   - Batch: a committed, immutable Merkle-rooted set of payout entries
//   - PayoutView: the claimable view opened over one committed batch
//   - Claim, Dispute, Reversal: records of state transitions on a payout
//   - Balance, LedgerEntry: custodial balances and their audit trail
//   - AssetPolicy, SpendWindow: allow-list, ceilings and rolling spend
//   - Event: the auditable notification written for every state change
//
// # Conventions
//
// Accounts and assets are 20-byte addresses. Amounts are integers in the
// asset's base units and are never negative. Relationships use IDs rather
// than pointers.
package models
