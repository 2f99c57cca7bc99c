package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// The internal branch: identifiers extract credentials from the request,
// authenticators verify them against the local store. Identifiers run in
// registration order and the first non-nil candidate that authenticates
// wins.

// SessionCookieName is the cookie holding the access token for browser
// sessions.
const SessionCookieName = "accessd_session"

// maxLoginBody caps the login request body size.
const maxLoginBody = 1 << 16

// LoginRequest is the JSON body accepted by the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginFormIdentifier extracts username/password from a JSON login body.
// It only applies to POSTs on the configured login path.
type LoginFormIdentifier struct {
	// LoginPath is the path the login form posts to.
	LoginPath string
}

func (p *LoginFormIdentifier) Name() string { return "login-form" }

func (p *LoginFormIdentifier) Identify(r *http.Request) *Identity {
	if r.Method != http.MethodPost || r.URL.Path != p.LoginPath {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
	if err != nil {
		return nil
	}
	var req LoginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil
	}
	if req.Username == "" || req.Password == "" {
		return nil
	}
	id := New(req.Username)
	id.Password = req.Password
	id.AddToken(p.Name())
	return id
}

// BearerTokenIdentifier extracts a signed access token from the
// Authorization header. A valid signature authenticates the principal on
// the spot, so the candidate carries the pre-authenticated marker.
type BearerTokenIdentifier struct {
	Tokens *TokenService
}

func (p *BearerTokenIdentifier) Name() string { return "bearer-token" }

func (p *BearerTokenIdentifier) Identify(r *http.Request) *Identity {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil
	}
	claims, err := p.Tokens.ValidateAccessToken(parts[1])
	if err != nil {
		return nil
	}
	id := New(claims.Username)
	id.AddToken(p.Name())
	id.AddToken(tokenPreAuthenticated)
	return id
}

// SessionCookieIdentifier extracts the access token from the session
// cookie set at login. Same trust model as the bearer identifier.
type SessionCookieIdentifier struct {
	Tokens *TokenService
}

func (p *SessionCookieIdentifier) Name() string { return "session-cookie" }

func (p *SessionCookieIdentifier) Identify(r *http.Request) *Identity {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	claims, err := p.Tokens.ValidateAccessToken(cookie.Value)
	if err != nil {
		return nil
	}
	id := New(claims.Username)
	id.AddToken(p.Name())
	id.AddToken(tokenPreAuthenticated)
	return id
}

// tokenPreAuthenticated marks candidates whose credential was already
// verified cryptographically by the identifier.
const tokenPreAuthenticated = "pre-authenticated"

// TokenAuthenticator accepts candidates carrying the pre-authenticated
// marker and loads their account. It rejects candidates whose account
// disappeared or was disabled since the token was issued.
type TokenAuthenticator struct {
	Store store.UserStore
}

func (a *TokenAuthenticator) Name() string { return "token" }

func (a *TokenAuthenticator) Authenticate(ctx context.Context, id *Identity) (bool, error) {
	if !id.HasToken(tokenPreAuthenticated) {
		return false, nil
	}
	user, err := a.Store.GetUser(ctx, id.Principal)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	if !user.Enabled {
		return false, nil
	}
	id.User = user
	id.AddToken(a.Name())
	return true, nil
}

// PasswordAuthenticator verifies a cleartext password against the local
// store. External accounts have no password hash, so they always fail
// here; their only path is the external branch.
type PasswordAuthenticator struct {
	Store store.UserStore
}

func (a *PasswordAuthenticator) Name() string { return "password" }

func (a *PasswordAuthenticator) Authenticate(ctx context.Context, id *Identity) (bool, error) {
	if id.Password == "" {
		return false, nil
	}
	user, err := a.Store.ValidateCredentials(ctx, id.Principal, id.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, models.ErrUserDisabled) {
			return false, nil
		}
		return false, err
	}
	id.User = user
	id.AddToken(a.Name())
	return true, nil
}
