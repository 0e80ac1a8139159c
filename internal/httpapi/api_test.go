package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"authgrid.org/internal/rbac"
	"authgrid.org/internal/store/mem"
)

type testEnv struct {
	handler http.Handler
	svc     *rbac.Service
	store   *mem.Store
}

// newEmptyEnv boots the API over an empty in-memory store, as a fresh
// deployment would look before any provisioning.
func newEmptyEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mem.NewStore()

	issuer, err := rbac.NewTokenIssuer(rbac.JWTSettings{
		Issuer:          "authgrid",
		Audience:        "authgrid-api",
		SecretKey:       "0123456789abcdef0123456789abcdef",
		ExpirationHours: 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	svc, err := rbac.NewService(store, rbac.WithTokenIssuer(issuer))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, Options{
		Version:      "test",
		RateLimitRPS: 1000,
		RateBurst:    1000,
	})
	return &testEnv{handler: api.Handler(), svc: svc, store: store}
}

// newTestEnv seeds a permission graph and one admin account holding
// every permission on top of the empty environment.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newEmptyEnv(t)
	svc := env.svc

	ctx := context.Background()
	admin, err := svc.CreateAccount(ctx, "admin.root", "Adm1n!pass", "seed")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	actions := make(map[string]rbac.Action, 2)
	for _, name := range []string{"read", "write"} {
		action, err := svc.CreateAction(ctx, name, "seed")
		if err != nil {
			t.Fatalf("CreateAction %s: %v", name, err)
		}
		actions[name] = action
	}
	for _, value := range []string{"account", "claim", "grant"} {
		claim, err := svc.CreateClaim(ctx, rbac.ClaimTypePermission, value, "", "seed")
		if err != nil {
			t.Fatalf("CreateClaim %s: %v", value, err)
		}
		for _, name := range []string{"read", "write"} {
			pair, err := svc.CreateClaimAction(ctx, claim.ID, actions[name].ID, "seed")
			if err != nil {
				t.Fatalf("CreateClaimAction %s:%s: %v", value, name, err)
			}
			if _, err := svc.GrantPermission(ctx, admin.ID, pair.ID, "seed"); err != nil {
				t.Fatalf("GrantPermission %s:%s: %v", value, name, err)
			}
		}
	}
	return env
}

func (e *testEnv) login(t *testing.T, userName, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"user_name": userName, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

// A fresh deployment holds no accounts and no grants, so no request
// sequence can mint the first credential; the bootstrap step (exposed
// through the migrate CLI) is what unlocks it.
func TestBootstrapUnlocksFreshDeployment(t *testing.T) {
	env := newEmptyEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"user_name": "admin.root", "password": "Adm1n!pass",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("login on empty store: expected 404, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/v1/accounts", "", map[string]string{
		"user_name": "alice.smith", "password": "Secr3t!pass",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create: expected 401, got %d", rr.Code)
	}

	if _, err := env.svc.Bootstrap(context.Background(), "admin.root", "Adm1n!pass"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	token := env.login(t, "admin.root", "Adm1n!pass")
	rr = env.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{
		"user_name": "alice.smith", "password": "Secr3t!pass",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create after bootstrap: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	var health map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["status"] != "ok" || health["version"] != "test" {
		t.Fatalf("unexpected healthz body: %v", health)
	}

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}
}

func TestAuthTokenFlow(t *testing.T) {
	env := newTestEnv(t)

	token := env.login(t, "admin.root", "Adm1n!pass")
	if token == "" {
		t.Fatalf("expected a token")
	}

	claims, err := env.svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserName != "admin.root" {
		t.Fatalf("unexpected token user: %s", claims.UserName)
	}
	if len(claims.Permissions) != 6 {
		t.Fatalf("expected 6 permission keys, got %v", claims.Permissions)
	}
}

func TestAuthTokenErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	// Unknown user.
	rr := env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"user_name": "nobody.here", "password": "whatever1",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rr.Code)
	}

	// Wrong password.
	rr = env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"user_name": "admin.root", "password": "wrong-password",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rr.Code)
	}

	// Missing fields.
	rr = env.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"user_name": "admin.root"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rr.Code)
	}

	// Wrong method.
	rr = env.do(t, http.MethodGet, "/v1/auth/token", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatalf("expected Allow header")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/accounts", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	rr = env.do(t, http.MethodGet, "/v1/accounts", "not-a-real-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestInsufficientPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// An account with no grants can log in but not read accounts.
	if _, err := env.svc.CreateAccount(ctx, "plain.user", "Us3r!pass1", "seed"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	token := env.login(t, "plain.user", "Us3r!pass1")

	rr := env.do(t, http.MethodGet, "/v1/accounts", token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin.root", "Adm1n!pass")

	// Create.
	rr := env.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{
		"user_name": "alice.smith", "password": "Secr3t!pass",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created rbac.Account
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if created.ID == 0 || created.UserName != "alice.smith" {
		t.Fatalf("unexpected account: %+v", created)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("password")) {
		t.Fatalf("response must not leak credential material: %s", rr.Body.String())
	}

	// Duplicate username conflicts.
	rr = env.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{
		"user_name": "alice.smith", "password": "Secr3t!pass",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rr.Code)
	}

	// Fetch by id.
	rr = env.do(t, http.MethodGet, "/v1/accounts/"+itoa(created.ID), token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}

	// Change password, then the new credential logs in.
	rr = env.do(t, http.MethodPut, "/v1/accounts/alice.smith/password", token, map[string]string{
		"password": "N3w!password",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("password: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	env.login(t, "alice.smith", "N3w!password")

	// Rename.
	rr = env.do(t, http.MethodPut, "/v1/accounts/"+itoa(created.ID)+"/username", token, map[string]string{
		"user_name": "alice.jones",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("rename: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Remove.
	rr = env.do(t, http.MethodDelete, "/v1/accounts/"+itoa(created.ID), token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}

	// Deleted accounts cannot log in.
	body, _ := json.Marshal(map[string]string{"user_name": "alice.jones", "password": "N3w!password"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", bytes.NewReader(body))
	loginRR := httptest.NewRecorder()
	env.handler.ServeHTTP(loginRR, req)
	if loginRR.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted account, got %d", loginRR.Code)
	}
}

func TestBulkAccountRemoval(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin.root", "Adm1n!pass")
	ctx := context.Background()

	if _, err := env.svc.CreateAccount(ctx, "user.one1", "Secr3t!pass", "seed"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := env.svc.CreateAccount(ctx, "user.two2", "Secr3t!pass", "seed"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rr := env.do(t, http.MethodDelete, "/v1/accounts", token, map[string]any{
		"user_names": []string{"user.one1", "user.two2", "nobody.here"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Removed != 2 {
		t.Fatalf("expected 2 removals, got %d", resp.Removed)
	}
}

func TestGraphEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin.root", "Adm1n!pass")

	// New claim and action.
	rr := env.do(t, http.MethodPost, "/v1/claims", token, map[string]string{
		"type": "role", "value": "auditor", "description": "read-only staff",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("claim: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var claim rbac.Claim
	if err := json.Unmarshal(rr.Body.Bytes(), &claim); err != nil {
		t.Fatalf("decode claim: %v", err)
	}

	rr = env.do(t, http.MethodPost, "/v1/actions", token, map[string]string{"name": "approve"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("action: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var action rbac.Action
	if err := json.Unmarshal(rr.Body.Bytes(), &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}

	// Pair them.
	rr = env.do(t, http.MethodPost, "/v1/claim-actions", token, map[string]int64{
		"claim_id": claim.ID, "action_id": action.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("pair: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var pair rbac.ClaimAction
	if err := json.Unmarshal(rr.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}

	// Invalid claim type is rejected before reaching the service.
	rr = env.do(t, http.MethodPost, "/v1/claims", token, map[string]string{
		"type": "bogus", "value": "x",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad claim type, got %d", rr.Code)
	}

	// Grant the pair to the admin account and read it back.
	rr = env.do(t, http.MethodPost, "/v1/accounts/1/grants", token, map[string]int64{
		"claim_action_id": pair.ID,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/accounts/1/grants", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("grants: expected 200, got %d", rr.Code)
	}
	var grantsResp struct {
		Grants []rbac.Grant `json:"grants"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &grantsResp); err != nil {
		t.Fatalf("decode grants: %v", err)
	}
	if len(grantsResp.Grants) != 7 {
		t.Fatalf("expected 7 grants, got %d", len(grantsResp.Grants))
	}

	// Removing the claim cascades; the grant disappears from the listing.
	rr = env.do(t, http.MethodDelete, "/v1/claims/"+itoa(claim.ID), token, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("remove claim: expected 204, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/v1/accounts/1/grants", token, nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &grantsResp); err != nil {
		t.Fatalf("decode grants: %v", err)
	}
	if len(grantsResp.Grants) != 6 {
		t.Fatalf("expected cascade to drop the grant, got %d", len(grantsResp.Grants))
	}
}

func TestClaimActionPairLookup(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin.root", "Adm1n!pass")
	ctx := context.Background()

	seeded, err := env.svc.ListClaimActions(ctx)
	if err != nil || len(seeded) == 0 {
		t.Fatalf("ListClaimActions: %v", err)
	}
	want := seeded[0]

	rr := env.do(t, http.MethodGet,
		"/v1/claim-actions?claim_id="+itoa(want.ClaimID)+"&action_id="+itoa(want.ActionID), token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var pair rbac.ClaimAction
	if err := json.Unmarshal(rr.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	if pair.ID != want.ID {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	rr = env.do(t, http.MethodGet,
		"/v1/claim-actions?claim_id="+itoa(want.ClaimID)+"&action_id=999", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pair, got %d", rr.Code)
	}
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "admin.root", "Adm1n!pass")

	rr := env.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{
		"user_name": "alice.smith", "password": "Secr3t!pass", "admin": "true",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
