package rbac_test

import (
	"context"
	"errors"
	"testing"

	"authgrid.org/internal/rbac"
	"authgrid.org/internal/store/mem"
)

func TestBootstrapProvisionsFirstAdmin(t *testing.T) {
	store := mem.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	admin, err := svc.Bootstrap(ctx, "admin.root", "Adm1n!pass")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if admin.ID == 0 || admin.CreatedBy != "bootstrap" {
		t.Fatalf("unexpected admin: %+v", admin)
	}

	token, err := svc.Login(ctx, "admin.root", "Adm1n!pass")
	if err != nil {
		t.Fatalf("Login after bootstrap: %v", err)
	}
	claims, err := svc.VerifyToken(token.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	granted := make(map[string]bool, len(claims.Permissions))
	for _, p := range claims.Permissions {
		granted[p] = true
	}
	for _, key := range []string{
		rbac.PermAccountRead, rbac.PermAccountWrite,
		rbac.PermClaimRead, rbac.PermClaimWrite,
		rbac.PermGrantRead, rbac.PermGrantWrite,
	} {
		if !granted[key] {
			t.Fatalf("expected bootstrap admin to hold %s, got %v", key, claims.Permissions)
		}
	}
}

func TestBootstrapRefusesWhenAccountsExist(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, "admin.root", "Adm1n!pass"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if _, err := svc.Bootstrap(ctx, "second.admin", "Adm1n!pass"); !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict on second run, got %v", err)
	}
}

func TestBootstrapRefusesAfterRegularAccount(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := svc.Bootstrap(ctx, "admin.root", "Adm1n!pass"); !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestBootstrapValidation(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.Bootstrap(ctx, "root", "Adm1n!pass"); !errors.Is(err, rbac.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short name, got %v", err)
	}
	if _, err := svc.Bootstrap(ctx, "admin.root", ""); !errors.Is(err, rbac.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
}

func TestBootstrapReusesSeededGraph(t *testing.T) {
	store := mem.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	// The seed files normally create these rows before bootstrap runs.
	claim, err := svc.CreateClaim(ctx, rbac.ClaimTypePermission, "account", "Account administration", "seed")
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	action, err := svc.CreateAction(ctx, "read", "seed")
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	pair, err := svc.CreateClaimAction(ctx, claim.ID, action.ID, "seed")
	if err != nil {
		t.Fatalf("CreateClaimAction: %v", err)
	}

	admin, err := svc.Bootstrap(ctx, "admin.root", "Adm1n!pass")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	claims, err := store.Claims().List(ctx)
	if err != nil {
		t.Fatalf("List claims: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims without duplicates, got %d", len(claims))
	}

	got, err := store.Grants().GetByAccountAndClaimAction(ctx, admin.ID, pair.ID)
	if err != nil {
		t.Fatalf("expected grant on the pre-seeded pair: %v", err)
	}
	if got.AccountID != admin.ID {
		t.Fatalf("unexpected grant: %+v", got)
	}
}
