package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Role is a capability checked before a privileged operation.
type Role string

const (
	// RoleAdmin manages the asset allow-list, spend ceilings and role grants.
	RoleAdmin Role = "admin"
	// RoleJournalWriter commits batches.
	RoleJournalWriter Role = "journal_writer"
	// RoleSettler opens and settles payouts and moves ledger funds directly.
	RoleSettler Role = "settler"
	// RoleDisputer flags payouts inside their dispute window.
	RoleDisputer Role = "disputer"
	// RoleArbiter reverses credits and resolves disputes.
	RoleArbiter Role = "arbiter"
	// RoleOperator claims on behalf of beneficiaries.
	RoleOperator Role = "operator"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleJournalWriter, RoleSettler, RoleDisputer, RoleArbiter, RoleOperator}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// RoleGrant binds a role to an account.
type RoleGrant struct {
	Account   common.Address
	Role      Role
	GrantedBy common.Address
	GrantedAt time.Time
}
