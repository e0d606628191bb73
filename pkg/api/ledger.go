package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"
)

// LedgerServiceName is the fully-qualified name of the LedgerService.
const LedgerServiceName = "settlement.v1.LedgerService"

const (
	LedgerServiceDepositProcedure     = "/settlement.v1.LedgerService/Deposit"
	LedgerServiceWithdrawProcedure    = "/settlement.v1.LedgerService/Withdraw"
	LedgerServiceCreditProcedure      = "/settlement.v1.LedgerService/Credit"
	LedgerServiceDebitProcedure       = "/settlement.v1.LedgerService/Debit"
	LedgerServiceBalanceOfProcedure   = "/settlement.v1.LedgerService/BalanceOf"
	LedgerServiceListEntriesProcedure = "/settlement.v1.LedgerService/ListEntries"
)

// TransferRequest moves the caller's own funds in or out of custody.
type TransferRequest struct {
	Asset  common.Address `json:"asset"`
	Amount int64          `json:"amount"`
}

// AdjustRequest credits or debits an account directly.
type AdjustRequest struct {
	Account   common.Address `json:"account"`
	Asset     common.Address `json:"asset"`
	Amount    int64          `json:"amount"`
	Reference string         `json:"reference,omitempty"`
}

type BalanceOfRequest struct {
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
}

type BalanceResponse struct {
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Balance int64          `json:"balance"`
}

type ListEntriesRequest struct {
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Limit   int            `json:"limit,omitempty"`
}

type ListEntriesResponse struct {
	Entries []*LedgerEntry `json:"entries"`
}

// LedgerServiceHandler is implemented by the LedgerService server.
type LedgerServiceHandler interface {
	Deposit(context.Context, *connect.Request[TransferRequest]) (*connect.Response[BalanceResponse], error)
	Withdraw(context.Context, *connect.Request[TransferRequest]) (*connect.Response[BalanceResponse], error)
	Credit(context.Context, *connect.Request[AdjustRequest]) (*connect.Response[BalanceResponse], error)
	Debit(context.Context, *connect.Request[AdjustRequest]) (*connect.Response[BalanceResponse], error)
	BalanceOf(context.Context, *connect.Request[BalanceOfRequest]) (*connect.Response[BalanceResponse], error)
	ListEntries(context.Context, *connect.Request[ListEntriesRequest]) (*connect.Response[ListEntriesResponse], error)
}

// NewLedgerServiceHandler builds an HTTP handler from the service implementation.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	deposit := connect.NewUnaryHandler(LedgerServiceDepositProcedure, svc.Deposit, opts...)
	withdraw := connect.NewUnaryHandler(LedgerServiceWithdrawProcedure, svc.Withdraw, opts...)
	credit := connect.NewUnaryHandler(LedgerServiceCreditProcedure, svc.Credit, opts...)
	debit := connect.NewUnaryHandler(LedgerServiceDebitProcedure, svc.Debit, opts...)
	balanceOf := connect.NewUnaryHandler(LedgerServiceBalanceOfProcedure, svc.BalanceOf, opts...)
	listEntries := connect.NewUnaryHandler(LedgerServiceListEntriesProcedure, svc.ListEntries, opts...)

	return "/" + LedgerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case LedgerServiceDepositProcedure:
			deposit.ServeHTTP(w, r)
		case LedgerServiceWithdrawProcedure:
			withdraw.ServeHTTP(w, r)
		case LedgerServiceCreditProcedure:
			credit.ServeHTTP(w, r)
		case LedgerServiceDebitProcedure:
			debit.ServeHTTP(w, r)
		case LedgerServiceBalanceOfProcedure:
			balanceOf.ServeHTTP(w, r)
		case LedgerServiceListEntriesProcedure:
			listEntries.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// LedgerServiceClient is a client for the LedgerService.
type LedgerServiceClient struct {
	deposit     *connect.Client[TransferRequest, BalanceResponse]
	withdraw    *connect.Client[TransferRequest, BalanceResponse]
	credit      *connect.Client[AdjustRequest, BalanceResponse]
	debit       *connect.Client[AdjustRequest, BalanceResponse]
	balanceOf   *connect.Client[BalanceOfRequest, BalanceResponse]
	listEntries *connect.Client[ListEntriesRequest, ListEntriesResponse]
}

// NewLedgerServiceClient constructs a client for the LedgerService at baseURL.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerServiceClient {
	opts = clientOptions(opts)
	return &LedgerServiceClient{
		deposit:     connect.NewClient[TransferRequest, BalanceResponse](httpClient, baseURL+LedgerServiceDepositProcedure, opts...),
		withdraw:    connect.NewClient[TransferRequest, BalanceResponse](httpClient, baseURL+LedgerServiceWithdrawProcedure, opts...),
		credit:      connect.NewClient[AdjustRequest, BalanceResponse](httpClient, baseURL+LedgerServiceCreditProcedure, opts...),
		debit:       connect.NewClient[AdjustRequest, BalanceResponse](httpClient, baseURL+LedgerServiceDebitProcedure, opts...),
		balanceOf:   connect.NewClient[BalanceOfRequest, BalanceResponse](httpClient, baseURL+LedgerServiceBalanceOfProcedure, opts...),
		listEntries: connect.NewClient[ListEntriesRequest, ListEntriesResponse](httpClient, baseURL+LedgerServiceListEntriesProcedure, opts...),
	}
}

func (c *LedgerServiceClient) Deposit(ctx context.Context, req *connect.Request[TransferRequest]) (*connect.Response[BalanceResponse], error) {
	return c.deposit.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) Withdraw(ctx context.Context, req *connect.Request[TransferRequest]) (*connect.Response[BalanceResponse], error) {
	return c.withdraw.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) Credit(ctx context.Context, req *connect.Request[AdjustRequest]) (*connect.Response[BalanceResponse], error) {
	return c.credit.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) Debit(ctx context.Context, req *connect.Request[AdjustRequest]) (*connect.Response[BalanceResponse], error) {
	return c.debit.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) BalanceOf(ctx context.Context, req *connect.Request[BalanceOfRequest]) (*connect.Response[BalanceResponse], error) {
	return c.balanceOf.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListEntries(ctx context.Context, req *connect.Request[ListEntriesRequest]) (*connect.Response[ListEntriesResponse], error) {
	return c.listEntries.CallUnary(ctx, req)
}
