package httpapi

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/rbac"
)

type createAccountRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

func (req createAccountRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.UserName, validation.Required, validation.Length(6, 50)),
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128)),
	)
}

type updateAccountRequest struct {
	UserName   *string `json:"user_name,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	RowVersion int64   `json:"row_version"`
}

type changeUserNameRequest struct {
	UserName string `json:"user_name"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

func (req changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Password, validation.Required, validation.Length(8, 128)),
	)
}

type removeAccountsRequest struct {
	UserNames []string `json:"user_names"`
}

type grantRequest struct {
	ClaimActionID int64 `json:"claim_action_id"`
}

// handleAccounts serves the account collection.
func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermAccountRead) {
			return
		}
		var (
			accounts []rbac.Account
			err      error
		)
		if r.URL.Query().Get("active") == "true" {
			accounts, err = a.svc.ListActiveAccounts(r.Context())
		} else {
			accounts, err = a.svc.ListAccounts(r.Context())
		}
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})

	case http.MethodPost:
		if !ensurePermissions(w, r, rbac.PermAccountWrite) {
			return
		}
		var req createAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		account, err := a.svc.CreateAccount(r.Context(), req.UserName, req.Password, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account_created", map[string]any{
			"account_id": account.ID,
			"user_name":  account.UserName,
		})
		writeJSON(w, http.StatusCreated, account)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermAccountWrite) {
			return
		}
		var req removeAccountsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		removed, err := a.svc.RemoveAccountsByUserNames(r.Context(), req.UserNames, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "accounts_removed", map[string]any{
			"requested": len(req.UserNames),
			"removed":   removed,
		})
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// handleAccountByPath dispatches /v1/accounts/{id}, /v1/accounts/{id}/grants,
// /v1/accounts/{id}/username and /v1/accounts/{user_name}/password.
func (a *API) handleAccountByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleAccountByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "grants":
		a.handleAccountGrants(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "username":
		a.handleAccountUserName(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "password":
		a.handleAccountPassword(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleAccountByID(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermAccountRead) {
			return
		}
		account, err := a.svc.GetAccount(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)

	case http.MethodPut:
		if !ensurePermissions(w, r, rbac.PermAccountWrite) {
			return
		}
		var req updateAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		account, err := a.svc.UpdateAccount(r.Context(), id, rbac.AccountUpdate{
			UserName:   req.UserName,
			Active:     req.Active,
			RowVersion: req.RowVersion,
		}, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account_updated", map[string]any{
			"account_id": account.ID,
		})
		writeJSON(w, http.StatusOK, account)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermAccountWrite) {
			return
		}
		if err := a.svc.RemoveAccount(r.Context(), id, actorFrom(r)); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "account_removed", map[string]any{
			"account_id": id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleAccountGrants(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermGrantRead) {
			return
		}
		grants, err := a.svc.GrantsForAccount(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})

	case http.MethodPost:
		if !ensurePermissions(w, r, rbac.PermGrantWrite) {
			return
		}
		var req grantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grant, err := a.svc.GrantPermission(r.Context(), id, req.ClaimActionID, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "grant_created", map[string]any{
			"grant_id":        grant.ID,
			"account_id":      grant.AccountID,
			"claim_action_id": grant.ClaimActionID,
		})
		writeJSON(w, http.StatusCreated, grant)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountUserName(w http.ResponseWriter, r *http.Request, rawID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !ensurePermissions(w, r, rbac.PermAccountWrite) {
		return
	}
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req changeUserNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.svc.ChangeUserName(r.Context(), id, req.UserName, actorFrom(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account_username_changed", map[string]any{
		"account_id": account.ID,
		"user_name":  account.UserName,
	})
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleAccountPassword(w http.ResponseWriter, r *http.Request, userName string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !ensurePermissions(w, r, rbac.PermAccountWrite) {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), userName, req.Password, actorFrom(r)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account_password_changed", map[string]any{
		"user_name": userName,
	})
	w.WriteHeader(http.StatusNoContent)
}
