package api

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"
)

// BatchServiceName is the fully-qualified name of the BatchService.
const BatchServiceName = "settlement.v1.BatchService"

const (
	BatchServiceCommitBatchProcedure    = "/settlement.v1.BatchService/CommitBatch"
	BatchServiceIsCommittedProcedure    = "/settlement.v1.BatchService/IsCommitted"
	BatchServiceGetBatchProcedure       = "/settlement.v1.BatchService/GetBatch"
	BatchServiceOpenPayoutProcedure     = "/settlement.v1.BatchService/OpenPayout"
	BatchServiceClaimProcedure          = "/settlement.v1.BatchService/Claim"
	BatchServiceDisputeProcedure        = "/settlement.v1.BatchService/Dispute"
	BatchServiceResolveDisputeProcedure = "/settlement.v1.BatchService/ResolveDispute"
	BatchServiceReverseProcedure        = "/settlement.v1.BatchService/Reverse"
	BatchServiceSettleProcedure         = "/settlement.v1.BatchService/Settle"
	BatchServiceGetPayoutProcedure      = "/settlement.v1.BatchService/GetPayout"
	BatchServiceListEventsProcedure     = "/settlement.v1.BatchService/ListEvents"
)

type CommitBatchRequest struct {
	BatchID       string         `json:"batch_id"`
	Root          common.Hash    `json:"root"`
	Asset         common.Address `json:"asset"`
	DeclaredTotal int64          `json:"declared_total"`
	LeafCount     int64          `json:"leaf_count,omitempty"`
	WindowEnd     time.Time      `json:"window_end"`
	Kind          string         `json:"kind,omitempty"`
}

type CommitBatchResponse struct {
	Batch *Batch `json:"batch"`
}

type IsCommittedRequest struct {
	BatchID string `json:"batch_id"`
}

type IsCommittedResponse struct {
	Committed bool `json:"committed"`
}

type GetBatchRequest struct {
	BatchID string `json:"batch_id"`
}

type GetBatchResponse struct {
	Batch *Batch `json:"batch"`
}

type OpenPayoutRequest struct {
	BatchID string         `json:"batch_id"`
	Root    common.Hash    `json:"root"`
	Asset   common.Address `json:"asset"`
}

type PayoutResponse struct {
	Payout *Payout `json:"payout"`
}

// ClaimRequest claims one leaf. Account defaults to the caller.
type ClaimRequest struct {
	BatchID string          `json:"batch_id"`
	Account *common.Address `json:"account,omitempty"`
	Asset   common.Address  `json:"asset"`
	Amount  int64           `json:"amount"`
	Proof   []common.Hash   `json:"proof"`
}

type ClaimResponse struct {
	Claim *Claim `json:"claim"`
	// Balance is omitted when the post-claim lookup fails.
	Balance *int64 `json:"balance,omitempty"`
}

type DisputeRequest struct {
	BatchID string `json:"batch_id"`
	Reason  string `json:"reason"`
}

type DisputeResponse struct {
	Dispute *Dispute `json:"dispute"`
}

type ResolveDisputeRequest struct {
	BatchID    string `json:"batch_id"`
	Resolution string `json:"resolution"`
}

type ReverseRequest struct {
	BatchID  string           `json:"batch_id"`
	Accounts []common.Address `json:"accounts"`
	Amounts  []int64          `json:"amounts"`
}

type ReverseResponse struct {
	Reversals []*Reversal `json:"reversals"`
}

type SettleRequest struct {
	BatchID string `json:"batch_id"`
}

type GetPayoutRequest struct {
	BatchID string `json:"batch_id"`
	Detail  bool   `json:"detail,omitempty"`
}

type GetPayoutResponse struct {
	Payout   *Payout    `json:"payout"`
	Claims   []*Claim   `json:"claims,omitempty"`
	Disputes []*Dispute `json:"disputes,omitempty"`
}

type ListEventsRequest struct {
	BatchID  string `json:"batch_id,omitempty"`
	AfterSeq int64  `json:"after_seq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
}

// BatchServiceHandler is implemented by the BatchService server.
type BatchServiceHandler interface {
	CommitBatch(context.Context, *connect.Request[CommitBatchRequest]) (*connect.Response[CommitBatchResponse], error)
	IsCommitted(context.Context, *connect.Request[IsCommittedRequest]) (*connect.Response[IsCommittedResponse], error)
	GetBatch(context.Context, *connect.Request[GetBatchRequest]) (*connect.Response[GetBatchResponse], error)
	OpenPayout(context.Context, *connect.Request[OpenPayoutRequest]) (*connect.Response[PayoutResponse], error)
	Claim(context.Context, *connect.Request[ClaimRequest]) (*connect.Response[ClaimResponse], error)
	Dispute(context.Context, *connect.Request[DisputeRequest]) (*connect.Response[DisputeResponse], error)
	ResolveDispute(context.Context, *connect.Request[ResolveDisputeRequest]) (*connect.Response[PayoutResponse], error)
	Reverse(context.Context, *connect.Request[ReverseRequest]) (*connect.Response[ReverseResponse], error)
	Settle(context.Context, *connect.Request[SettleRequest]) (*connect.Response[PayoutResponse], error)
	GetPayout(context.Context, *connect.Request[GetPayoutRequest]) (*connect.Response[GetPayoutResponse], error)
	ListEvents(context.Context, *connect.Request[ListEventsRequest]) (*connect.Response[ListEventsResponse], error)
}

// NewBatchServiceHandler builds an HTTP handler from the service implementation.
func NewBatchServiceHandler(svc BatchServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		BatchServiceCommitBatchProcedure:    connect.NewUnaryHandler(BatchServiceCommitBatchProcedure, svc.CommitBatch, opts...),
		BatchServiceIsCommittedProcedure:    connect.NewUnaryHandler(BatchServiceIsCommittedProcedure, svc.IsCommitted, opts...),
		BatchServiceGetBatchProcedure:       connect.NewUnaryHandler(BatchServiceGetBatchProcedure, svc.GetBatch, opts...),
		BatchServiceOpenPayoutProcedure:     connect.NewUnaryHandler(BatchServiceOpenPayoutProcedure, svc.OpenPayout, opts...),
		BatchServiceClaimProcedure:          connect.NewUnaryHandler(BatchServiceClaimProcedure, svc.Claim, opts...),
		BatchServiceDisputeProcedure:        connect.NewUnaryHandler(BatchServiceDisputeProcedure, svc.Dispute, opts...),
		BatchServiceResolveDisputeProcedure: connect.NewUnaryHandler(BatchServiceResolveDisputeProcedure, svc.ResolveDispute, opts...),
		BatchServiceReverseProcedure:        connect.NewUnaryHandler(BatchServiceReverseProcedure, svc.Reverse, opts...),
		BatchServiceSettleProcedure:         connect.NewUnaryHandler(BatchServiceSettleProcedure, svc.Settle, opts...),
		BatchServiceGetPayoutProcedure:      connect.NewUnaryHandler(BatchServiceGetPayoutProcedure, svc.GetPayout, opts...),
		BatchServiceListEventsProcedure:     connect.NewUnaryHandler(BatchServiceListEventsProcedure, svc.ListEvents, opts...),
	}

	return "/" + BatchServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// BatchServiceClient is a client for the BatchService.
type BatchServiceClient struct {
	commitBatch    *connect.Client[CommitBatchRequest, CommitBatchResponse]
	isCommitted    *connect.Client[IsCommittedRequest, IsCommittedResponse]
	getBatch       *connect.Client[GetBatchRequest, GetBatchResponse]
	openPayout     *connect.Client[OpenPayoutRequest, PayoutResponse]
	claim          *connect.Client[ClaimRequest, ClaimResponse]
	dispute        *connect.Client[DisputeRequest, DisputeResponse]
	resolveDispute *connect.Client[ResolveDisputeRequest, PayoutResponse]
	reverse        *connect.Client[ReverseRequest, ReverseResponse]
	settle         *connect.Client[SettleRequest, PayoutResponse]
	getPayout      *connect.Client[GetPayoutRequest, GetPayoutResponse]
	listEvents     *connect.Client[ListEventsRequest, ListEventsResponse]
}

// NewBatchServiceClient constructs a client for the BatchService at baseURL.
func NewBatchServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *BatchServiceClient {
	opts = clientOptions(opts)
	return &BatchServiceClient{
		commitBatch:    connect.NewClient[CommitBatchRequest, CommitBatchResponse](httpClient, baseURL+BatchServiceCommitBatchProcedure, opts...),
		isCommitted:    connect.NewClient[IsCommittedRequest, IsCommittedResponse](httpClient, baseURL+BatchServiceIsCommittedProcedure, opts...),
		getBatch:       connect.NewClient[GetBatchRequest, GetBatchResponse](httpClient, baseURL+BatchServiceGetBatchProcedure, opts...),
		openPayout:     connect.NewClient[OpenPayoutRequest, PayoutResponse](httpClient, baseURL+BatchServiceOpenPayoutProcedure, opts...),
		claim:          connect.NewClient[ClaimRequest, ClaimResponse](httpClient, baseURL+BatchServiceClaimProcedure, opts...),
		dispute:        connect.NewClient[DisputeRequest, DisputeResponse](httpClient, baseURL+BatchServiceDisputeProcedure, opts...),
		resolveDispute: connect.NewClient[ResolveDisputeRequest, PayoutResponse](httpClient, baseURL+BatchServiceResolveDisputeProcedure, opts...),
		reverse:        connect.NewClient[ReverseRequest, ReverseResponse](httpClient, baseURL+BatchServiceReverseProcedure, opts...),
		settle:         connect.NewClient[SettleRequest, PayoutResponse](httpClient, baseURL+BatchServiceSettleProcedure, opts...),
		getPayout:      connect.NewClient[GetPayoutRequest, GetPayoutResponse](httpClient, baseURL+BatchServiceGetPayoutProcedure, opts...),
		listEvents:     connect.NewClient[ListEventsRequest, ListEventsResponse](httpClient, baseURL+BatchServiceListEventsProcedure, opts...),
	}
}

func (c *BatchServiceClient) CommitBatch(ctx context.Context, req *connect.Request[CommitBatchRequest]) (*connect.Response[CommitBatchResponse], error) {
	return c.commitBatch.CallUnary(ctx, req)
}

func (c *BatchServiceClient) IsCommitted(ctx context.Context, req *connect.Request[IsCommittedRequest]) (*connect.Response[IsCommittedResponse], error) {
	return c.isCommitted.CallUnary(ctx, req)
}

func (c *BatchServiceClient) GetBatch(ctx context.Context, req *connect.Request[GetBatchRequest]) (*connect.Response[GetBatchResponse], error) {
	return c.getBatch.CallUnary(ctx, req)
}

func (c *BatchServiceClient) OpenPayout(ctx context.Context, req *connect.Request[OpenPayoutRequest]) (*connect.Response[PayoutResponse], error) {
	return c.openPayout.CallUnary(ctx, req)
}

func (c *BatchServiceClient) Claim(ctx context.Context, req *connect.Request[ClaimRequest]) (*connect.Response[ClaimResponse], error) {
	return c.claim.CallUnary(ctx, req)
}

func (c *BatchServiceClient) Dispute(ctx context.Context, req *connect.Request[DisputeRequest]) (*connect.Response[DisputeResponse], error) {
	return c.dispute.CallUnary(ctx, req)
}

func (c *BatchServiceClient) ResolveDispute(ctx context.Context, req *connect.Request[ResolveDisputeRequest]) (*connect.Response[PayoutResponse], error) {
	return c.resolveDispute.CallUnary(ctx, req)
}

func (c *BatchServiceClient) Reverse(ctx context.Context, req *connect.Request[ReverseRequest]) (*connect.Response[ReverseResponse], error) {
	return c.reverse.CallUnary(ctx, req)
}

func (c *BatchServiceClient) Settle(ctx context.Context, req *connect.Request[SettleRequest]) (*connect.Response[PayoutResponse], error) {
	return c.settle.CallUnary(ctx, req)
}

func (c *BatchServiceClient) GetPayout(ctx context.Context, req *connect.Request[GetPayoutRequest]) (*connect.Response[GetPayoutResponse], error) {
	return c.getPayout.CallUnary(ctx, req)
}

func (c *BatchServiceClient) ListEvents(ctx context.Context, req *connect.Request[ListEventsRequest]) (*connect.Response[ListEventsResponse], error) {
	return c.listEvents.CallUnary(ctx, req)
}
