package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/acl"
	"github.com/vigilo-nms/accessd/pkg/identity"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// UserHandler manages local accounts. Write operations are manager only;
// reading a single user is allowed for the user themselves.
type UserHandler struct {
	store     store.Store
	evaluator *acl.Evaluator
}

// NewUserHandler creates the user handler.
func NewUserHandler(st store.Store, evaluator *acl.Evaluator) *UserHandler {
	return &UserHandler{store: st, evaluator: evaluator}
}

// CreateUserRequest is the body accepted by POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Create adds a local account. External accounts carry no password; they
// authenticate through the front end only.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		BadRequest(w, "username is required")
		return
	}
	if !req.External && req.Password == "" {
		BadRequest(w, "password is required for internal accounts")
		return
	}
	if req.External && req.Password != "" {
		BadRequest(w, "external accounts cannot have a password")
		return
	}

	user := &models.User{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		External: req.External,
		Enabled:  true,
	}
	if req.Password != "" {
		hash, err := store.HashPassword(req.Password)
		if err != nil {
			InternalServerError(w, "could not hash password")
			return
		}
		user.PasswordHash = hash
	}

	if _, err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			Conflict(w, "user "+req.Username+" already exists")
			return
		}
		logger.ErrorCtx(r.Context(), "user creation failed", logger.KeyError, err)
		InternalServerError(w, "user creation failed")
		return
	}
	WriteJSONCreated(w, user)
}

// List returns all local accounts.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		logger.ErrorCtx(r.Context(), "user listing failed", logger.KeyError, err)
		InternalServerError(w, "user listing failed")
		return
	}
	WriteJSONOK(w, users)
}

// Get returns one account. Non-managers may only read themselves; the
// router only requires authentication here, the self-access exception
// lives in the handler.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.Principal != username && !h.evaluator.IsManager(id.User) {
		Forbidden(w, "cannot read other accounts")
		return
	}

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "user "+username+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "user lookup failed", logger.KeyError, err)
		InternalServerError(w, "user lookup failed")
		return
	}
	WriteJSONOK(w, user)
}

// UpdateUserRequest is the body accepted by PUT /users/{username}.
type UpdateUserRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

// Update changes account attributes.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "user "+username+" does not exist")
			return
		}
		InternalServerError(w, "user lookup failed")
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Enabled != nil {
		user.Enabled = *req.Enabled
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		logger.ErrorCtx(r.Context(), "user update failed", logger.KeyError, err)
		InternalServerError(w, "user update failed")
		return
	}
	WriteJSONOK(w, user)
}

// Delete removes an account and its memberships.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.store.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "user "+username+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "user deletion failed", logger.KeyError, err)
		InternalServerError(w, "user deletion failed")
		return
	}
	WriteNoContent(w)
}

// ResetPassword sets a new password on an internal account.
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		BadRequest(w, "password is required")
		return
	}

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "user "+username+" does not exist")
			return
		}
		InternalServerError(w, "user lookup failed")
		return
	}
	if user.External {
		UnprocessableEntity(w, "external accounts have no local password")
		return
	}

	hash, err := store.HashPassword(req.Password)
	if err != nil {
		InternalServerError(w, "could not hash password")
		return
	}
	if err := h.store.UpdatePassword(r.Context(), username, hash); err != nil {
		logger.ErrorCtx(r.Context(), "password update failed", logger.KeyError, err)
		InternalServerError(w, "password update failed")
		return
	}
	WriteNoContent(w)
}
