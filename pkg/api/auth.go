package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/acl"
	"github.com/vigilo-nms/accessd/pkg/identity"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// AuthHandler serves login, refresh, logout, and the current-user view.
type AuthHandler struct {
	store         store.Store
	tokens        *identity.TokenService
	evaluator     *acl.Evaluator
	secureCookies bool
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(st store.Store, tokens *identity.TokenService, evaluator *acl.Evaluator, secureCookies bool) *AuthHandler {
	return &AuthHandler{store: st, tokens: tokens, evaluator: evaluator, secureCookies: secureCookies}
}

// MeResponse is the current-user view returned by GET /auth/me.
type MeResponse struct {
	Username    string   `json:"username"`
	FullName    string   `json:"full_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	External    bool     `json:"external"`
	Manager     bool     `json:"manager"`
	Groups      []string `json:"groups"`
	Permissions []string `json:"permissions"`
}

// Login completes an internal authentication. The identity middleware
// has already run the login-form identifier and the password
// authenticator; this handler only converts the outcome into a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil || id.User == nil {
		logger.InfoCtx(r.Context(), "login refused")
		Unauthorized(w, "invalid credentials")
		return
	}

	pair, err := h.tokens.GenerateTokenPair(id.User)
	if err != nil {
		logger.ErrorCtx(r.Context(), "token generation failed", logger.KeyError, err)
		InternalServerError(w, "could not create session")
		return
	}

	if err := h.store.UpdateLastLogin(r.Context(), id.User.Username, time.Now()); err != nil {
		logger.WarnCtx(r.Context(), "could not record last login",
			logger.KeyPrincipal, id.User.Username,
			logger.KeyError, err)
	}

	h.setSessionCookie(w, pair)

	logger.InfoCtx(r.Context(), "login succeeded", logger.KeyPrincipal, id.User.Username)
	WriteJSONOK(w, pair)
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		BadRequest(w, "refresh_token is required")
		return
	}

	claims, err := h.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		Unauthorized(w, "invalid refresh token")
		return
	}

	user, err := h.store.GetUser(r.Context(), claims.Username)
	if err != nil {
		Unauthorized(w, "invalid refresh token")
		return
	}
	if !user.Enabled {
		Unauthorized(w, "account disabled")
		return
	}

	pair, err := h.tokens.GenerateTokenPair(user)
	if err != nil {
		InternalServerError(w, "could not create session")
		return
	}

	h.setSessionCookie(w, pair)
	WriteJSONOK(w, pair)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	WriteNoContent(w)
}

// Me returns the authenticated user's enriched profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}

	resp := MeResponse{
		Username:    id.Principal,
		External:    id.External,
		Manager:     h.evaluator.IsManager(id.User),
		Groups:      sortedKeys(id.Groups),
		Permissions: sortedKeys(id.Permissions),
	}
	if id.User != nil {
		resp.FullName = id.User.FullName
		resp.Email = id.User.Email
	}
	WriteJSONOK(w, resp)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, pair *identity.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.SessionCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
