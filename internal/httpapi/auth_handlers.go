package httpapi

import (
	"errors"
	"net/http"
	"time"

	"gatepass.dev/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	TenantID  string    `json:"tenant_id"`
	Roles     []string  `json:"roles"`
}

// handleAuthToken exchanges staff credentials for a bearer token carrying
// the tenant claim. Unknown email, wrong password and inactive account all
// come back as the same 401.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if a.staff == nil {
		writeError(w, http.StatusServiceUnavailable, "token issuance not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, staff, err := auth.IssueToken(r.Context(), a.staff, req.Email, req.Password, a.tokenTTL)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: time.Now().UTC().Add(a.tokenTTL),
		TenantID:  staff.TenantID,
		Roles:     staff.Roles,
	})
}
