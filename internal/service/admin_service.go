package service

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/settlement"
	"github.com/mmynk/batchsettle/pkg/api"
)

// RoleManager grants and revokes roles. auth.StoreAuthorizer implements it.
type RoleManager interface {
	auth.Authorizer
	Grant(ctx context.Context, by, account common.Address, role models.Role) error
	Revoke(ctx context.Context, by, account common.Address, role models.Role) (bool, error)
	Roles(ctx context.Context, account common.Address) ([]models.Role, error)
}

// AdminService implements the Connect AdminService.
type AdminService struct {
	engine *settlement.Engine
	roles  RoleManager
}

var _ api.AdminServiceHandler = (*AdminService)(nil)

// NewAdminService creates a new AdminService.
func NewAdminService(engine *settlement.Engine, roles RoleManager) *AdminService {
	return &AdminService{engine: engine, roles: roles}
}

// AllowAsset enables or disables an asset.
func (s *AdminService) AllowAsset(ctx context.Context, req *connect.Request[api.AllowAssetRequest]) (*connect.Response[api.AllowAssetResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.engine.Guard.Allow(ctx, caller, req.Msg.Asset, req.Msg.Enabled); err != nil {
		return nil, toConnectError(err)
	}
	policy, err := s.engine.Guard.Limits(ctx, req.Msg.Asset)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.AllowAssetResponse{Policy: toAPIPolicy(policy)}), nil
}

// SetLimits sets the spend ceilings of an asset.
func (s *AdminService) SetLimits(ctx context.Context, req *connect.Request[api.SetLimitsRequest]) (*connect.Response[api.SetLimitsResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.engine.Guard.SetLimits(ctx, caller, req.Msg.Asset, req.Msg.SingleMax, req.Msg.DailyMax); err != nil {
		return nil, toConnectError(err)
	}
	policy, err := s.engine.Guard.Limits(ctx, req.Msg.Asset)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.SetLimitsResponse{Policy: toAPIPolicy(policy)}), nil
}

// GetLimits returns an asset policy and optionally a spender's window.
func (s *AdminService) GetLimits(ctx context.Context, req *connect.Request[api.GetLimitsRequest]) (*connect.Response[api.GetLimitsResponse], error) {
	policy, err := s.engine.Guard.Limits(ctx, req.Msg.Asset)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &api.GetLimitsResponse{Policy: toAPIPolicy(policy)}

	if req.Msg.Spender != nil {
		w, err := s.engine.Guard.Window(ctx, req.Msg.Asset, *req.Msg.Spender)
		if err != nil {
			return nil, toConnectError(err)
		}
		resp.Window = &api.SpendWindow{Spender: w.Spender, WindowStart: w.WindowStart, Spent: w.Spent}
	}

	return connect.NewResponse(resp), nil
}

// GrantRole gives an account a role. Requires the admin role.
func (s *AdminService) GrantRole(ctx context.Context, req *connect.Request[api.GrantRoleRequest]) (*connect.Response[api.GrantRoleResponse], error) {
	caller, role, err := s.roleChange(ctx, req.Msg.Account, req.Msg.Role)
	if err != nil {
		return nil, err
	}

	if err := s.roles.Grant(ctx, caller, req.Msg.Account, role); err != nil {
		slog.Error("GrantRole failed", "account", req.Msg.Account.Hex(), "role", role, "error", err)
		return nil, toConnectError(err)
	}
	slog.Info("Role granted", "account", req.Msg.Account.Hex(), "role", role, "by", caller.Hex())

	roles, err := s.roles.Roles(ctx, req.Msg.Account)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GrantRoleResponse{Roles: roleNames(roles)}), nil
}

// RevokeRole removes a role from an account. Requires the admin role.
func (s *AdminService) RevokeRole(ctx context.Context, req *connect.Request[api.RevokeRoleRequest]) (*connect.Response[api.RevokeRoleResponse], error) {
	caller, role, err := s.roleChange(ctx, req.Msg.Account, req.Msg.Role)
	if err != nil {
		return nil, err
	}

	removed, err := s.roles.Revoke(ctx, caller, req.Msg.Account, role)
	if err != nil {
		slog.Error("RevokeRole failed", "account", req.Msg.Account.Hex(), "role", role, "error", err)
		return nil, toConnectError(err)
	}
	if removed {
		slog.Info("Role revoked", "account", req.Msg.Account.Hex(), "role", role, "by", caller.Hex())
	}

	roles, err := s.roles.Roles(ctx, req.Msg.Account)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.RevokeRoleResponse{Removed: removed, Roles: roleNames(roles)}), nil
}

// roleChange authenticates an admin and validates the requested role.
func (s *AdminService) roleChange(ctx context.Context, account common.Address, name string) (common.Address, models.Role, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return common.Address{}, "", err
	}

	ok, err := s.roles.HasRole(ctx, caller, models.RoleAdmin)
	if err != nil {
		return common.Address{}, "", toConnectError(err)
	}
	if !ok {
		return common.Address{}, "", toConnectError(fmt.Errorf("%w: %s lacks role %s", settlement.ErrUnauthorized, caller.Hex(), models.RoleAdmin))
	}

	role := models.Role(name)
	if !role.Valid() {
		return common.Address{}, "", connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("unknown role %q", name))
	}
	if account == (common.Address{}) {
		return common.Address{}, "", toConnectError(settlement.ErrZeroAddress)
	}
	return caller, role, nil
}
