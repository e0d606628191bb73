package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"
)

// AdminServiceName is the fully-qualified name of the AdminService.
const AdminServiceName = "settlement.v1.AdminService"

const (
	AdminServiceAllowAssetProcedure = "/settlement.v1.AdminService/AllowAsset"
	AdminServiceSetLimitsProcedure  = "/settlement.v1.AdminService/SetLimits"
	AdminServiceGetLimitsProcedure  = "/settlement.v1.AdminService/GetLimits"
	AdminServiceGrantRoleProcedure  = "/settlement.v1.AdminService/GrantRole"
	AdminServiceRevokeRoleProcedure = "/settlement.v1.AdminService/RevokeRole"
)

type AllowAssetRequest struct {
	Asset   common.Address `json:"asset"`
	Enabled bool           `json:"enabled"`
}

type AllowAssetResponse struct {
	Policy *AssetPolicy `json:"policy"`
}

type SetLimitsRequest struct {
	Asset     common.Address `json:"asset"`
	SingleMax int64          `json:"single_max"`
	DailyMax  int64          `json:"daily_max"`
}

type SetLimitsResponse struct {
	Policy *AssetPolicy `json:"policy"`
}

// GetLimitsRequest asks for an asset policy and, when Spender is set, the
// spender's current window.
type GetLimitsRequest struct {
	Asset   common.Address  `json:"asset"`
	Spender *common.Address `json:"spender,omitempty"`
}

type GetLimitsResponse struct {
	Policy *AssetPolicy `json:"policy"`
	Window *SpendWindow `json:"window,omitempty"`
}

type GrantRoleRequest struct {
	Account common.Address `json:"account"`
	Role    string         `json:"role"`
}

type GrantRoleResponse struct {
	Roles []string `json:"roles"`
}

type RevokeRoleRequest struct {
	Account common.Address `json:"account"`
	Role    string         `json:"role"`
}

type RevokeRoleResponse struct {
	Removed bool     `json:"removed"`
	Roles   []string `json:"roles"`
}

// AdminServiceHandler is implemented by the AdminService server.
type AdminServiceHandler interface {
	AllowAsset(context.Context, *connect.Request[AllowAssetRequest]) (*connect.Response[AllowAssetResponse], error)
	SetLimits(context.Context, *connect.Request[SetLimitsRequest]) (*connect.Response[SetLimitsResponse], error)
	GetLimits(context.Context, *connect.Request[GetLimitsRequest]) (*connect.Response[GetLimitsResponse], error)
	GrantRole(context.Context, *connect.Request[GrantRoleRequest]) (*connect.Response[GrantRoleResponse], error)
	RevokeRole(context.Context, *connect.Request[RevokeRoleRequest]) (*connect.Response[RevokeRoleResponse], error)
}

// NewAdminServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	allowAsset := connect.NewUnaryHandler(AdminServiceAllowAssetProcedure, svc.AllowAsset, opts...)
	setLimits := connect.NewUnaryHandler(AdminServiceSetLimitsProcedure, svc.SetLimits, opts...)
	getLimits := connect.NewUnaryHandler(AdminServiceGetLimitsProcedure, svc.GetLimits, opts...)
	grantRole := connect.NewUnaryHandler(AdminServiceGrantRoleProcedure, svc.GrantRole, opts...)
	revokeRole := connect.NewUnaryHandler(AdminServiceRevokeRoleProcedure, svc.RevokeRole, opts...)

	return "/" + AdminServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AdminServiceAllowAssetProcedure:
			allowAsset.ServeHTTP(w, r)
		case AdminServiceSetLimitsProcedure:
			setLimits.ServeHTTP(w, r)
		case AdminServiceGetLimitsProcedure:
			getLimits.ServeHTTP(w, r)
		case AdminServiceGrantRoleProcedure:
			grantRole.ServeHTTP(w, r)
		case AdminServiceRevokeRoleProcedure:
			revokeRole.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// AdminServiceClient is a client for the AdminService.
type AdminServiceClient struct {
	allowAsset *connect.Client[AllowAssetRequest, AllowAssetResponse]
	setLimits  *connect.Client[SetLimitsRequest, SetLimitsResponse]
	getLimits  *connect.Client[GetLimitsRequest, GetLimitsResponse]
	grantRole  *connect.Client[GrantRoleRequest, GrantRoleResponse]
	revokeRole *connect.Client[RevokeRoleRequest, RevokeRoleResponse]
}

// NewAdminServiceClient constructs a client for the AdminService at baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	opts = clientOptions(opts)
	return &AdminServiceClient{
		allowAsset: connect.NewClient[AllowAssetRequest, AllowAssetResponse](httpClient, baseURL+AdminServiceAllowAssetProcedure, opts...),
		setLimits:  connect.NewClient[SetLimitsRequest, SetLimitsResponse](httpClient, baseURL+AdminServiceSetLimitsProcedure, opts...),
		getLimits:  connect.NewClient[GetLimitsRequest, GetLimitsResponse](httpClient, baseURL+AdminServiceGetLimitsProcedure, opts...),
		grantRole:  connect.NewClient[GrantRoleRequest, GrantRoleResponse](httpClient, baseURL+AdminServiceGrantRoleProcedure, opts...),
		revokeRole: connect.NewClient[RevokeRoleRequest, RevokeRoleResponse](httpClient, baseURL+AdminServiceRevokeRoleProcedure, opts...),
	}
}

func (c *AdminServiceClient) AllowAsset(ctx context.Context, req *connect.Request[AllowAssetRequest]) (*connect.Response[AllowAssetResponse], error) {
	return c.allowAsset.CallUnary(ctx, req)
}

func (c *AdminServiceClient) SetLimits(ctx context.Context, req *connect.Request[SetLimitsRequest]) (*connect.Response[SetLimitsResponse], error) {
	return c.setLimits.CallUnary(ctx, req)
}

func (c *AdminServiceClient) GetLimits(ctx context.Context, req *connect.Request[GetLimitsRequest]) (*connect.Response[GetLimitsResponse], error) {
	return c.getLimits.CallUnary(ctx, req)
}

func (c *AdminServiceClient) GrantRole(ctx context.Context, req *connect.Request[GrantRoleRequest]) (*connect.Response[GrantRoleResponse], error) {
	return c.grantRole.CallUnary(ctx, req)
}

func (c *AdminServiceClient) RevokeRole(ctx context.Context, req *connect.Request[RevokeRoleRequest]) (*connect.Response[RevokeRoleResponse], error) {
	return c.revokeRole.CallUnary(ctx, req)
}
