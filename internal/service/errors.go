package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/middleware"
	"github.com/mmynk/batchsettle/internal/settlement"
)

var errInternal = errors.New("internal error")

// toConnectError maps engine error classes to Connect codes.
func toConnectError(err error) error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, settlement.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, settlement.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, settlement.ErrDuplicateBatch),
		errors.Is(err, settlement.ErrPayoutExists),
		errors.Is(err, settlement.ErrAlreadyClaimed):
		code = connect.CodeAlreadyExists
	case errors.Is(err, settlement.ErrConflict), errors.Is(err, settlement.ErrBalance):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, settlement.ErrLimit):
		code = connect.CodeResourceExhausted
	case errors.Is(err, settlement.ErrInvalid), errors.Is(err, settlement.ErrProof):
		code = connect.CodeInvalidArgument
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	if code == connect.CodeInternal {
		slog.Error("Internal error", "error", err)
		return connect.NewError(code, errInternal)
	}
	return connect.NewError(code, err)
}

// requireCaller returns the authenticated caller or an Unauthenticated error.
func requireCaller(ctx context.Context) (common.Address, error) {
	caller, ok := middleware.GetCaller(ctx)
	if !ok {
		return common.Address{}, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return caller, nil
}
