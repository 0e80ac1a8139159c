package httpapi

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"authgrid.org/internal/obs"
	"authgrid.org/internal/rbac"
)

type loginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

func (req loginRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.UserName, validation.Required, validation.Length(1, 50)),
		validation.Field(&req.Password, validation.Required, validation.Length(1, 128)),
	)
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserName    string    `json:"user_name"`
}

// handleAuthToken exchanges credentials for a signed access token.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.svc.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			obs.ObserveAuthAttempt("not_found")
			writeError(w, r, http.StatusNotFound, "unknown user")
		case errors.Is(err, rbac.ErrUnauthorized):
			obs.ObserveAuthAttempt("unauthorized")
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, rbac.ErrInvalidInput):
			obs.ObserveAuthAttempt("error")
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			obs.ObserveAuthAttempt("error")
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.ObserveAuthAttempt("success")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
		UserName:    token.UserName,
	})
}

// handleDomainError maps service errors onto HTTP status codes.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrUnauthorized), errors.Is(err, rbac.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
