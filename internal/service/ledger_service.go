package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/batchsettle/internal/settlement"
	"github.com/mmynk/batchsettle/pkg/api"
)

// LedgerService implements the Connect LedgerService.
type LedgerService struct {
	engine *settlement.Engine
}

var _ api.LedgerServiceHandler = (*LedgerService)(nil)

// NewLedgerService creates a new LedgerService.
func NewLedgerService(engine *settlement.Engine) *LedgerService {
	return &LedgerService{engine: engine}
}

// Deposit credits the caller's own balance.
func (s *LedgerService) Deposit(ctx context.Context, req *connect.Request[api.TransferRequest]) (*connect.Response[api.BalanceResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := s.engine.Ledger.Deposit(ctx, caller, req.Msg.Asset, req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	slog.Info("Deposit recorded", "account", caller.Hex(), "asset", req.Msg.Asset.Hex(), "amount", req.Msg.Amount)

	return connect.NewResponse(&api.BalanceResponse{Account: caller, Asset: req.Msg.Asset, Balance: balance}), nil
}

// Withdraw debits the caller's own balance.
func (s *LedgerService) Withdraw(ctx context.Context, req *connect.Request[api.TransferRequest]) (*connect.Response[api.BalanceResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := s.engine.Ledger.Withdraw(ctx, caller, req.Msg.Asset, req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	slog.Info("Withdrawal recorded", "account", caller.Hex(), "asset", req.Msg.Asset.Hex(), "amount", req.Msg.Amount)

	return connect.NewResponse(&api.BalanceResponse{Account: caller, Asset: req.Msg.Asset, Balance: balance}), nil
}

// Credit adds to an account's balance. Requires the settler role.
func (s *LedgerService) Credit(ctx context.Context, req *connect.Request[api.AdjustRequest]) (*connect.Response[api.BalanceResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	balance, err := s.engine.Ledger.Credit(ctx, caller, m.Account, m.Asset, m.Amount, m.Reference)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.BalanceResponse{Account: m.Account, Asset: m.Asset, Balance: balance}), nil
}

// Debit removes from an account's balance. Requires the settler role.
func (s *LedgerService) Debit(ctx context.Context, req *connect.Request[api.AdjustRequest]) (*connect.Response[api.BalanceResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	balance, err := s.engine.Ledger.Debit(ctx, caller, m.Account, m.Asset, m.Amount, m.Reference)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.BalanceResponse{Account: m.Account, Asset: m.Asset, Balance: balance}), nil
}

// BalanceOf returns a balance.
func (s *LedgerService) BalanceOf(ctx context.Context, req *connect.Request[api.BalanceOfRequest]) (*connect.Response[api.BalanceResponse], error) {
	balance, err := s.engine.Ledger.BalanceOf(ctx, req.Msg.Account, req.Msg.Asset)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.BalanceResponse{Account: req.Msg.Account, Asset: req.Msg.Asset, Balance: balance}), nil
}

// ListEntries returns the newest ledger entries of an account.
func (s *LedgerService) ListEntries(ctx context.Context, req *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error) {
	entries, err := s.engine.Ledger.Entries(ctx, req.Msg.Account, req.Msg.Asset, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ListEntriesResponse{Entries: make([]*api.LedgerEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = toAPIEntry(e)
	}
	return connect.NewResponse(resp), nil
}
