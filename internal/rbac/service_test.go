package rbac_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"authgrid.org/internal/rbac"
	"authgrid.org/internal/store/mem"
)

func newTestService(t *testing.T, store rbac.Store) *rbac.Service {
	t.Helper()
	issuer, err := rbac.NewTokenIssuer(testSettings(), nil)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := rbac.NewService(store, rbac.WithTokenIssuer(issuer))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateAccountHashesPassword(t *testing.T) {
	store := mem.NewStore()
	svc := newTestService(t, store)

	acc, err := svc.CreateAccount(context.Background(), "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acc.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if !acc.Active {
		t.Fatalf("expected new account to be active")
	}
	if acc.CreatedBy != "admin" {
		t.Fatalf("unexpected created_by: %s", acc.CreatedBy)
	}

	stored, err := store.Accounts().GetByID(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PasswordHash == "Secr3t!pass" || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("plaintext must never be stored, got %q", stored.PasswordHash)
	}
	if !rbac.VerifyPassword(stored.PasswordHash, "Secr3t!pass") {
		t.Fatalf("stored hash must verify the original password")
	}
}

func TestCreateAccountValidation(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	cases := []struct {
		name     string
		userName string
		password string
	}{
		{"too short", "alice", "Secr3t!pass"},
		{"too long", strings.Repeat("a", 51), "Secr3t!pass"},
		{"embedded space", "alice smith", "Secr3t!pass"},
		{"empty password", "alice.smith", ""},
	}
	for _, tc := range cases {
		if _, err := svc.CreateAccount(ctx, tc.userName, tc.password, "admin"); !errors.Is(err, rbac.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", ""); !errors.Is(err, rbac.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing actor, got %v", err)
	}
}

func TestCreateAccountCountsUserNameInRunes(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	// 30 characters, 60 bytes: within the 6-50 character bound.
	name := strings.Repeat("ф", 30)
	if _, err := svc.CreateAccount(ctx, name, "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("multibyte name within bounds rejected: %v", err)
	}

	if _, err := svc.CreateAccount(ctx, strings.Repeat("ф", 51), "Secr3t!pass", "admin"); !errors.Is(err, rbac.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for 51-character name, got %v", err)
	}
}

func TestCreateAccountDuplicateUserName(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := svc.CreateAccount(ctx, "alice.smith", "0ther!pass", "admin"); !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	acc, err := svc.Authenticate(ctx, "alice.smith", "Secr3t!pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if acc.UserName != "alice.smith" {
		t.Fatalf("unexpected account: %s", acc.UserName)
	}

	if _, err := svc.Authenticate(ctx, "alice.smith", "wrong"); !errors.Is(err, rbac.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody.here", "Secr3t!pass"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestAuthenticateIgnoresDeletedAccounts(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := svc.RemoveAccount(ctx, acc.ID, "admin"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice.smith", "Secr3t!pass"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted account, got %v", err)
	}
}

func TestLoginIssuesTokenWithPermissions(t *testing.T) {
	store := mem.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	claim, err := svc.CreateClaim(ctx, rbac.ClaimTypePermission, "account", "", "admin")
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	action, err := svc.CreateAction(ctx, "read", "admin")
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	pair, err := svc.CreateClaimAction(ctx, claim.ID, action.ID, "admin")
	if err != nil {
		t.Fatalf("CreateClaimAction: %v", err)
	}
	if _, err := svc.GrantPermission(ctx, acc.ID, pair.ID, "admin"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	token, err := svc.Login(ctx, "alice.smith", "Secr3t!pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token.AccessToken == "" {
		t.Fatalf("expected a signed token")
	}

	claims, err := svc.VerifyToken(token.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserName != "alice.smith" {
		t.Fatalf("unexpected token user: %s", claims.UserName)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "account:read" {
		t.Fatalf("unexpected permissions: %v", claims.Permissions)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "0ld!password", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := svc.ChangePassword(ctx, "alice.smith", "Secr3t!pass", "alice.smith"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice.smith", "0ld!password"); !errors.Is(err, rbac.ErrUnauthorized) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice.smith", "Secr3t!pass"); err != nil {
		t.Fatalf("new password must authenticate: %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	if err := svc.ChangePassword(context.Background(), "nobody.here", "Secr3t!pass", "admin"); !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChangeUserNameConflict(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	bob, err := svc.CreateAccount(ctx, "robert.jones", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if _, err := svc.ChangeUserName(ctx, bob.ID, "alice.smith", "admin"); !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	renamed, err := svc.ChangeUserName(ctx, bob.ID, "robert.brown", "admin")
	if err != nil {
		t.Fatalf("ChangeUserName: %v", err)
	}
	if renamed.UserName != "robert.brown" {
		t.Fatalf("unexpected user name: %s", renamed.UserName)
	}
}

func TestUpdateAccountStaleRowVersion(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	inactive := false
	updated, err := svc.UpdateAccount(ctx, acc.ID, rbac.AccountUpdate{Active: &inactive, RowVersion: acc.RowVersion}, "admin")
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if updated.Active {
		t.Fatalf("expected account to be deactivated")
	}
	if updated.RowVersion != acc.RowVersion+1 {
		t.Fatalf("expected row version bump, got %d", updated.RowVersion)
	}

	// A second writer holding the original version must lose.
	active := true
	if _, err := svc.UpdateAccount(ctx, acc.ID, rbac.AccountUpdate{Active: &active, RowVersion: acc.RowVersion}, "admin"); !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale row version, got %v", err)
	}
}

func TestRemoveAccountCascadesGrants(t *testing.T) {
	store := mem.NewStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	claim, err := svc.CreateClaim(ctx, rbac.ClaimTypePermission, "account", "", "admin")
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	action, err := svc.CreateAction(ctx, "read", "admin")
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	pair, err := svc.CreateClaimAction(ctx, claim.ID, action.ID, "admin")
	if err != nil {
		t.Fatalf("CreateClaimAction: %v", err)
	}
	grant, err := svc.GrantPermission(ctx, acc.ID, pair.ID, "admin")
	if err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	if err := svc.RemoveAccount(ctx, acc.ID, "admin"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}

	removed, err := store.Accounts().GetByID(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !removed.Deleted() || removed.Active {
		t.Fatalf("expected soft-deleted account, got active=%v deleted=%v", removed.Active, removed.Deleted())
	}
	if removed.DeletedBy != "admin" {
		t.Fatalf("unexpected deleted_by: %s", removed.DeletedBy)
	}

	g, err := store.Grants().GetByID(ctx, grant.ID)
	if err != nil {
		t.Fatalf("GetByID grant: %v", err)
	}
	if !g.Deleted() {
		t.Fatalf("expected grant to be cascaded")
	}
}

func TestRemoveAccountsByUserNamesSkipsMissing(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	if _, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := svc.CreateAccount(ctx, "robert.jones", "Secr3t!pass", "admin"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	removed, err := svc.RemoveAccountsByUserNames(ctx, []string{"alice.smith", "nobody.here", "robert.jones"}, "admin")
	if err != nil {
		t.Fatalf("RemoveAccountsByUserNames: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}

	active, err := svc.ListActiveAccounts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAccounts: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active accounts, got %d", len(active))
	}
}

func TestListAccountsIncludesDeleted(t *testing.T) {
	svc := newTestService(t, mem.NewStore())
	ctx := context.Background()

	acc, err := svc.CreateAccount(ctx, "alice.smith", "Secr3t!pass", "admin")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := svc.RemoveAccount(ctx, acc.ID, "admin"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}

	all, err := svc.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("soft-deleted rows must stay listed, got %d", len(all))
	}

	// Direct lookup by id still resolves the audit trail.
	got, err := svc.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatalf("expected deleted_at to be set")
	}
}
