package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

// HasRole reports whether account holds role.
func (t *sqliteTx) HasRole(ctx context.Context, account common.Address, role models.Role) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM role_grants WHERE account = ? AND role = ?",
		addr(account), string(role),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return n > 0, nil
}

// GrantRole records a grant. Granting a held role is a no-op.
func (t *sqliteTx) GrantRole(ctx context.Context, g *models.RoleGrant) error {
	err := t.insertOnce(ctx,
		`INSERT INTO role_grants (account, role, granted_by, granted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (account, role) DO NOTHING`,
		addr(g.Account), string(g.Role), addr(g.GrantedBy), toUnix(g.GrantedAt),
	)
	if err != nil && !errors.Is(err, storage.ErrDuplicate) {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// RevokeRole removes a grant and reports whether one existed.
func (t *sqliteTx) RevokeRole(ctx context.Context, account common.Address, role models.Role) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM role_grants WHERE account = ? AND role = ?", addr(account), string(role),
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to revoke role: %w", err)
	}
	return n > 0, nil
}

// ListRoles returns the roles held by account.
func (t *sqliteTx) ListRoles(ctx context.Context, account common.Address) ([]models.Role, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT role FROM role_grants WHERE account = ? ORDER BY role", addr(account),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, models.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return roles, nil
}
