package settlement

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the engine for a rejected call
// matches exactly one of these with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid argument")
	ErrConflict     = errors.New("state conflict")
	ErrLimit        = errors.New("limit exceeded")
	ErrProof        = errors.New("proof failure")
	ErrBalance      = errors.New("balance failure")
	ErrNotFound     = errors.New("not found")
)

var (
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be positive", ErrInvalid)
	ErrZeroAddress    = fmt.Errorf("%w: zero address", ErrInvalid)
	ErrLengthMismatch = fmt.Errorf("%w: accounts and amounts differ in length", ErrInvalid)
	ErrEmptyReversal  = fmt.Errorf("%w: nothing to reverse", ErrInvalid)
	ErrInvalidLimits  = fmt.Errorf("%w: single max exceeds daily max", ErrInvalid)
	ErrRootMismatch   = fmt.Errorf("%w: root does not match committed batch", ErrInvalid)
	ErrAssetMismatch  = fmt.Errorf("%w: asset does not match batch", ErrInvalid)
	ErrInvalidBatch   = fmt.Errorf("%w: malformed batch", ErrInvalid)
	ErrMissingReason  = fmt.Errorf("%w: reason required", ErrInvalid)
	ErrExceedsClaimed = fmt.Errorf("%w: reversal exceeds unreversed claimed amount", ErrInvalid)

	ErrDuplicateBatch    = fmt.Errorf("%w: batch already committed", ErrConflict)
	ErrPayoutExists      = fmt.Errorf("%w: payout already open", ErrConflict)
	ErrAlreadyClaimed    = fmt.Errorf("%w: leaf already claimed", ErrConflict)
	ErrWindowClosed      = fmt.Errorf("%w: dispute window closed", ErrConflict)
	ErrWindowNotEnded    = fmt.Errorf("%w: dispute window not ended", ErrConflict)
	ErrWrongState        = fmt.Errorf("%w: payout in wrong state", ErrConflict)
	ErrExceedsBatchTotal = fmt.Errorf("%w: claims exceed batch total", ErrConflict)

	ErrAssetNotAllowed  = fmt.Errorf("%w: asset not allowed", ErrLimit)
	ErrExceedsSingleMax = fmt.Errorf("%w: amount exceeds single max", ErrLimit)
	ErrExceedsDailyMax  = fmt.Errorf("%w: amount exceeds daily max", ErrLimit)

	ErrInvalidProof = fmt.Errorf("%w: invalid proof", ErrProof)

	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrBalance)
	ErrBalanceOverflow     = fmt.Errorf("%w: balance overflow", ErrBalance)

	ErrBatchNotFound  = fmt.Errorf("%w: batch", ErrNotFound)
	ErrPayoutNotFound = fmt.Errorf("%w: payout", ErrNotFound)
)

// Reason returns a short label for err, used for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrExceedsSingleMax):
		return "single_max"
	case errors.Is(err, ErrExceedsDailyMax):
		return "daily_max"
	case errors.Is(err, ErrAssetNotAllowed):
		return "asset_not_allowed"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrProof):
		return "invalid_proof"
	case errors.Is(err, ErrBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
