package httpapi

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/rbac"
)

type createClaimRequest struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

func (req createClaimRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Type, validation.Required, validation.By(validateClaimType)),
		validation.Field(&req.Value, validation.Required, validation.Length(1, 100)),
		validation.Field(&req.Description, validation.Length(0, 255)),
	)
}

func validateClaimType(value interface{}) error {
	s, _ := value.(string)
	if !rbac.ClaimType(s).Valid() {
		return errors.New("must be permission, role or custom")
	}
	return nil
}

type updateClaimRequest struct {
	Type        *string `json:"type,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

type createActionRequest struct {
	Name string `json:"name"`
}

func (req createActionRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 50)),
	)
}

type updateActionRequest struct {
	Name *string `json:"name,omitempty"`
}

type createClaimActionRequest struct {
	ClaimID  int64 `json:"claim_id"`
	ActionID int64 `json:"action_id"`
}

type revokeGrantsRequest struct {
	GrantIDs []int64 `json:"grant_ids"`
}

// handleClaims serves the claim collection.
func (a *API) handleClaims(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		var (
			claims []rbac.Claim
			err    error
		)
		if r.URL.Query().Get("active") == "true" {
			claims, err = a.svc.ListActiveClaims(r.Context())
		} else {
			claims, err = a.svc.ListClaims(r.Context())
		}
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"claims": claims})

	case http.MethodPost:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		var req createClaimRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		claim, err := a.svc.CreateClaim(r.Context(), rbac.ClaimType(req.Type), req.Value, req.Description, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "claim_created", map[string]any{
			"claim_id": claim.ID,
			"value":    claim.Value,
		})
		writeJSON(w, http.StatusCreated, claim)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleClaimByID serves /v1/claims/{id}.
func (a *API) handleClaimByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/v1/claims/"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		claim, err := a.svc.GetClaim(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claim)

	case http.MethodPut:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		var req updateClaimRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var upd rbac.ClaimUpdate
		if req.Type != nil {
			t := rbac.ClaimType(*req.Type)
			upd.Type = &t
		}
		upd.Value = req.Value
		upd.Description = req.Description
		claim, err := a.svc.UpdateClaim(r.Context(), id, upd, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "claim_updated", map[string]any{"claim_id": claim.ID})
		writeJSON(w, http.StatusOK, claim)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		if err := a.svc.RemoveClaim(r.Context(), id, actorFrom(r)); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "claim_removed", map[string]any{"claim_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleActions serves the action collection.
func (a *API) handleActions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		var (
			actions []rbac.Action
			err     error
		)
		if r.URL.Query().Get("active") == "true" {
			actions, err = a.svc.ListActiveActions(r.Context())
		} else {
			actions, err = a.svc.ListActions(r.Context())
		}
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"actions": actions})

	case http.MethodPost:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		var req createActionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		action, err := a.svc.CreateAction(r.Context(), req.Name, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "action_created", map[string]any{
			"action_id": action.ID,
			"name":      action.Name,
		})
		writeJSON(w, http.StatusCreated, action)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleActionByID serves /v1/actions/{id}.
func (a *API) handleActionByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/v1/actions/"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		action, err := a.svc.GetAction(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, action)

	case http.MethodPut:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		var req updateActionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		action, err := a.svc.UpdateAction(r.Context(), id, rbac.ActionUpdate{Name: req.Name}, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "action_updated", map[string]any{"action_id": action.ID})
		writeJSON(w, http.StatusOK, action)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		if err := a.svc.RemoveAction(r.Context(), id, actorFrom(r)); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "action_removed", map[string]any{"action_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleClaimActions serves the claim-action pair collection. A GET with
// claim_id and action_id query parameters resolves a single pair.
func (a *API) handleClaimActions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		q := r.URL.Query()
		if q.Get("claim_id") != "" || q.Get("action_id") != "" {
			claimID, err := parseID(q.Get("claim_id"))
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "claim_id must be a positive integer")
				return
			}
			actionID, err := parseID(q.Get("action_id"))
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "action_id must be a positive integer")
				return
			}
			pair, err := a.svc.GetClaimActionByPair(r.Context(), claimID, actionID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, pair)
			return
		}
		pairs, err := a.svc.ListClaimActions(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"claim_actions": pairs})

	case http.MethodPost:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		var req createClaimActionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		pair, err := a.svc.CreateClaimAction(r.Context(), req.ClaimID, req.ActionID, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "claim_action_created", map[string]any{
			"claim_action_id": pair.ID,
			"claim_id":        pair.ClaimID,
			"action_id":       pair.ActionID,
		})
		writeJSON(w, http.StatusCreated, pair)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleClaimActionByPath serves /v1/claim-actions/{id} and
// /v1/claim-actions/{id}/grants.
func (a *API) handleClaimActionByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/claim-actions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	id, err := parseID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if len(parts) == 2 && parts[1] == "grants" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !ensurePermissions(w, r, rbac.PermGrantRead) {
			return
		}
		grants, err := a.svc.GrantsForClaimAction(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"grants": grants})
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermClaimRead) {
			return
		}
		pair, err := a.svc.GetClaimAction(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermClaimWrite) {
			return
		}
		if err := a.svc.RemoveClaimAction(r.Context(), id, actorFrom(r)); err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "claim_action_removed", map[string]any{"claim_action_id": id})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleGrants serves grant lookups and bulk revocation. A GET resolves a
// grant by its (account_id, claim_action_id) pair.
func (a *API) handleGrants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !ensurePermissions(w, r, rbac.PermGrantRead) {
			return
		}
		q := r.URL.Query()
		accountID, err := parseID(q.Get("account_id"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "account_id must be a positive integer")
			return
		}
		claimActionID, err := parseID(q.Get("claim_action_id"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "claim_action_id must be a positive integer")
			return
		}
		grant, err := a.svc.GetGrant(r.Context(), accountID, claimActionID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)

	case http.MethodDelete:
		if !ensurePermissions(w, r, rbac.PermGrantWrite) {
			return
		}
		var req revokeGrantsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		removed, err := a.svc.RevokeGrants(r.Context(), req.GrantIDs, actorFrom(r))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "grants_revoked", map[string]any{
			"requested": len(req.GrantIDs),
			"revoked":   removed,
		})
		writeJSON(w, http.StatusOK, map[string]any{"revoked": removed})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleGrantByID serves /v1/grants/{id} revocation.
func (a *API) handleGrantByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(strings.TrimPrefix(r.URL.Path, "/v1/grants/"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !ensurePermissions(w, r, rbac.PermGrantWrite) {
		return
	}
	if err := a.svc.RevokeGrant(r.Context(), id, actorFrom(r)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "grant_revoked", map[string]any{"grant_id": id})
	w.WriteHeader(http.StatusNoContent)
}
