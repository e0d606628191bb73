package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/settlement"
	"github.com/mmynk/batchsettle/internal/storage"
	"github.com/mmynk/batchsettle/pkg/api"
)

// BatchService implements the Connect BatchService: batch commitment and
// the payout lifecycle.
type BatchService struct {
	engine *settlement.Engine
}

var _ api.BatchServiceHandler = (*BatchService)(nil)

// NewBatchService creates a new BatchService.
func NewBatchService(engine *settlement.Engine) *BatchService {
	return &BatchService{engine: engine}
}

// CommitBatch records a new batch root.
func (s *BatchService) CommitBatch(ctx context.Context, req *connect.Request[api.CommitBatchRequest]) (*connect.Response[api.CommitBatchResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	slog.Info("CommitBatch request received", "batch_id", m.BatchID, "root", m.Root.Hex(), "total", m.DeclaredTotal)

	batch, err := s.engine.Journal.Commit(ctx, caller, settlement.BatchMeta{
		ID:            m.BatchID,
		Root:          m.Root,
		Asset:         m.Asset,
		DeclaredTotal: m.DeclaredTotal,
		LeafCount:     m.LeafCount,
		WindowEnd:     m.WindowEnd,
		Kind:          models.BatchKind(m.Kind),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CommitBatchResponse{Batch: toAPIBatch(batch)}), nil
}

// IsCommitted reports whether a batch ID is recorded.
func (s *BatchService) IsCommitted(ctx context.Context, req *connect.Request[api.IsCommittedRequest]) (*connect.Response[api.IsCommittedResponse], error) {
	ok, err := s.engine.Journal.IsCommitted(ctx, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.IsCommittedResponse{Committed: ok}), nil
}

// GetBatch returns a committed batch.
func (s *BatchService) GetBatch(ctx context.Context, req *connect.Request[api.GetBatchRequest]) (*connect.Response[api.GetBatchResponse], error) {
	batch, err := s.engine.Journal.Get(ctx, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetBatchResponse{Batch: toAPIBatch(batch)}), nil
}

// OpenPayout opens the claimable view over a committed batch.
func (s *BatchService) OpenPayout(ctx context.Context, req *connect.Request[api.OpenPayoutRequest]) (*connect.Response[api.PayoutResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	payout, err := s.engine.Distributor.OpenPayout(ctx, caller, req.Msg.BatchID, req.Msg.Root, req.Msg.Asset)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PayoutResponse{Payout: toAPIPayout(payout)}), nil
}

// Claim credits one proven leaf.
func (s *BatchService) Claim(ctx context.Context, req *connect.Request[api.ClaimRequest]) (*connect.Response[api.ClaimResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	m := req.Msg
	claimReq := settlement.ClaimRequest{
		BatchID: m.BatchID,
		Asset:   m.Asset,
		Amount:  m.Amount,
		Proof:   m.Proof,
	}
	if m.Account != nil {
		claimReq.Account = *m.Account
	}

	claim, err := s.engine.Distributor.Claim(ctx, caller, claimReq)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ClaimResponse{Claim: toAPIClaim(claim)}
	// The claim is committed at this point.
	balance, err := s.engine.Ledger.BalanceOf(ctx, claim.Account, m.Asset)
	if err != nil {
		slog.Warn("Balance lookup after claim failed", "batch_id", claim.BatchID, "account", claim.Account.Hex(), "error", err)
	} else {
		resp.Balance = &balance
	}
	return connect.NewResponse(resp), nil
}

// Dispute flags a payout inside its window.
func (s *BatchService) Dispute(ctx context.Context, req *connect.Request[api.DisputeRequest]) (*connect.Response[api.DisputeResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	dispute, err := s.engine.Distributor.Dispute(ctx, caller, req.Msg.BatchID, req.Msg.Reason)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.DisputeResponse{Dispute: toAPIDispute(dispute)}), nil
}

// ResolveDispute returns a disputed payout to open.
func (s *BatchService) ResolveDispute(ctx context.Context, req *connect.Request[api.ResolveDisputeRequest]) (*connect.Response[api.PayoutResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	payout, err := s.engine.Distributor.ResolveDispute(ctx, caller, req.Msg.BatchID, req.Msg.Resolution)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PayoutResponse{Payout: toAPIPayout(payout)}), nil
}

// Reverse debits claimed amounts back while a payout is disputed.
func (s *BatchService) Reverse(ctx context.Context, req *connect.Request[api.ReverseRequest]) (*connect.Response[api.ReverseResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	reversals, err := s.engine.Distributor.Reverse(ctx, caller, req.Msg.BatchID, req.Msg.Accounts, req.Msg.Amounts)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ReverseResponse{Reversals: make([]*api.Reversal, len(reversals))}
	for i, r := range reversals {
		resp.Reversals[i] = &api.Reversal{ID: r.ID, Account: r.Account, Amount: r.Amount}
	}
	return connect.NewResponse(resp), nil
}

// Settle finalizes an undisputed payout after its window.
func (s *BatchService) Settle(ctx context.Context, req *connect.Request[api.SettleRequest]) (*connect.Response[api.PayoutResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	payout, err := s.engine.Distributor.Settle(ctx, caller, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PayoutResponse{Payout: toAPIPayout(payout)}), nil
}

// GetPayout returns a payout view, with its claims and disputes when Detail is set.
func (s *BatchService) GetPayout(ctx context.Context, req *connect.Request[api.GetPayoutRequest]) (*connect.Response[api.GetPayoutResponse], error) {
	payout, err := s.engine.Distributor.Payout(ctx, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &api.GetPayoutResponse{Payout: toAPIPayout(payout)}
	if !req.Msg.Detail {
		return connect.NewResponse(resp), nil
	}

	claims, err := s.engine.Distributor.Claims(ctx, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	for _, c := range claims {
		resp.Claims = append(resp.Claims, toAPIClaim(c))
	}

	disputes, err := s.engine.Distributor.Disputes(ctx, req.Msg.BatchID)
	if err != nil {
		return nil, toConnectError(err)
	}
	for _, d := range disputes {
		resp.Disputes = append(resp.Disputes, toAPIDispute(d))
	}
	return connect.NewResponse(resp), nil
}

// ListEvents pages through the event log.
func (s *BatchService) ListEvents(ctx context.Context, req *connect.Request[api.ListEventsRequest]) (*connect.Response[api.ListEventsResponse], error) {
	events, err := s.engine.Events(ctx, storage.EventFilter{
		BatchID:  req.Msg.BatchID,
		AfterSeq: req.Msg.AfterSeq,
		Limit:    req.Msg.Limit,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ListEventsResponse{Events: make([]*api.Event, len(events))}
	for i, e := range events {
		resp.Events[i] = toAPIEvent(e)
	}
	return connect.NewResponse(resp), nil
}
