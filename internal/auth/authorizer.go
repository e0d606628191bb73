package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// Authorizer answers whether a caller holds a role.
// The settlement engine depends only on this interface, so it can run
// against any identity system.
type Authorizer interface {
	HasRole(ctx context.Context, caller common.Address, role models.Role) (bool, error)
}

// StoreAuthorizer keeps role grants in the settlement store.
type StoreAuthorizer struct {
	store storage.Store
	now   func() time.Time
}

var _ Authorizer = (*StoreAuthorizer)(nil)

// NewStoreAuthorizer creates an authorizer backed by the role_grants table.
func NewStoreAuthorizer(store storage.Store) *StoreAuthorizer {
	return &StoreAuthorizer{store: store, now: time.Now}
}

// HasRole reports whether caller holds role.
func (a *StoreAuthorizer) HasRole(ctx context.Context, caller common.Address, role models.Role) (bool, error) {
	var ok bool
	err := a.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		ok, err = tx.HasRole(ctx, caller, role)
		return err
	})
	return ok, err
}

// Grant gives account a role and records an audit event. It performs no
// permission check; callers gate it on RoleAdmin.
func (a *StoreAuthorizer) Grant(ctx context.Context, by, account common.Address, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	now := a.now()
	return a.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.GrantRole(ctx, &models.RoleGrant{
			Account: account, Role: role, GrantedBy: by, GrantedAt: now,
		}); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, &models.Event{
			Type: models.EventRoleGranted, Account: account, Reason: string(role), Actor: by, CreatedAt: now,
		})
	})
}

// Revoke removes a role and reports whether the account held it.
func (a *StoreAuthorizer) Revoke(ctx context.Context, by, account common.Address, role models.Role) (bool, error) {
	now := a.now()
	var removed bool
	err := a.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		removed, err = tx.RevokeRole(ctx, account, role)
		if err != nil || !removed {
			return err
		}
		return tx.InsertEvent(ctx, &models.Event{
			Type: models.EventRoleRevoked, Account: account, Reason: string(role), Actor: by, CreatedAt: now,
		})
	})
	return removed, err
}

// Roles lists the roles held by account.
func (a *StoreAuthorizer) Roles(ctx context.Context, account common.Address) ([]models.Role, error) {
	var roles []models.Role
	err := a.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		roles, err = tx.ListRoles(ctx, account)
		return err
	})
	return roles, err
}

// StaticAuthorizer is an in-memory role table.
type StaticAuthorizer struct {
	mu     sync.RWMutex
	grants map[common.Address]map[models.Role]bool
}

var _ Authorizer = (*StaticAuthorizer)(nil)

// NewStaticAuthorizer creates an empty role table.
func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{grants: make(map[common.Address]map[models.Role]bool)}
}

// Grant gives account the listed roles.
func (a *StaticAuthorizer) Grant(account common.Address, roles ...models.Role) *StaticAuthorizer {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.grants[account] == nil {
		a.grants[account] = make(map[models.Role]bool)
	}
	for _, r := range roles {
		a.grants[account][r] = true
	}
	return a
}

// Revoke removes a role from account.
func (a *StaticAuthorizer) Revoke(account common.Address, role models.Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants[account], role)
}

// HasRole reports whether caller holds role.
func (a *StaticAuthorizer) HasRole(_ context.Context, caller common.Address, role models.Role) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grants[caller][role], nil
}
