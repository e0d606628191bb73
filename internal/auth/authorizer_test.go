package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
	"github.com/mmynk/batchsettle/internal/storage/sqlite"
)

var admin = common.HexToAddress("0xad00000000000000000000000000000000000001")

func TestStoreAuthorizer(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	a := NewStoreAuthorizer(store)

	ok, err := a.HasRole(ctx, alice, models.RoleSettler)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if ok {
		t.Fatal("expected no roles before a grant")
	}

	if err := a.Grant(ctx, admin, alice, models.RoleSettler); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := a.Grant(ctx, admin, alice, models.RoleOperator); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := a.Grant(ctx, admin, alice, models.Role("root")); err == nil {
		t.Error("expected error for unknown role")
	}

	roles, err := a.Roles(ctx, alice)
	if err != nil {
		t.Fatalf("Roles failed: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("roles = %v, want 2 entries", roles)
	}

	removed, err := a.Revoke(ctx, admin, alice, models.RoleSettler)
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !removed {
		t.Error("expected Revoke to report removal")
	}
	removed, _ = a.Revoke(ctx, admin, alice, models.RoleSettler)
	if removed {
		t.Error("second Revoke should report nothing removed")
	}

	ok, _ = a.HasRole(ctx, alice, models.RoleSettler)
	if ok {
		t.Error("expected settler to be revoked")
	}

	// two grants and one effective revoke are audited
	var events []*models.Event
	err = store.WithTx(ctx, func(tx storage.Tx) error {
		events, err = tx.ListEvents(ctx, storage.EventFilter{})
		return err
	})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	want := []models.EventType{models.EventRoleGranted, models.EventRoleGranted, models.EventRoleRevoked}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Type, want[i])
		}
		if e.Actor != admin {
			t.Errorf("event %d actor = %s, want %s", i, e.Actor.Hex(), admin.Hex())
		}
	}
}

func TestStaticAuthorizer(t *testing.T) {
	ctx := context.Background()
	a := NewStaticAuthorizer().Grant(alice, models.RoleArbiter, models.RoleDisputer)

	for _, role := range []models.Role{models.RoleArbiter, models.RoleDisputer} {
		if ok, _ := a.HasRole(ctx, alice, role); !ok {
			t.Errorf("expected alice to hold %s", role)
		}
	}
	if ok, _ := a.HasRole(ctx, admin, models.RoleArbiter); ok {
		t.Error("admin was never granted arbiter")
	}

	a.Revoke(alice, models.RoleArbiter)
	if ok, _ := a.HasRole(ctx, alice, models.RoleArbiter); ok {
		t.Error("expected arbiter to be revoked")
	}
}
