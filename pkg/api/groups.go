package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// GroupHandler manages the three group hierarchies. All routes are
// manager only; the kind comes from the URL so the same handler serves
// monitoring, map, and graph groups.
type GroupHandler struct {
	store store.Store
}

// NewGroupHandler creates the group handler.
func NewGroupHandler(st store.Store) *GroupHandler {
	return &GroupHandler{store: st}
}

func groupKind(r *http.Request) (models.GroupKind, bool) {
	kind := models.GroupKind(chi.URLParam(r, "kind"))
	return kind, kind.IsValid()
}

// List returns all groups of one hierarchy, ordered by tree path.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}

	groups, err := h.store.ListGroups(r.Context(), kind)
	if err != nil {
		logger.ErrorCtx(r.Context(), "group listing failed", logger.KeyError, err)
		InternalServerError(w, "group listing failed")
		return
	}
	WriteJSONOK(w, groups)
}

// Get returns one group with its permissions.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	group, err := h.store.GetGroup(r.Context(), kind, name)
	if err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			NotFound(w, "group "+name+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "group lookup failed", logger.KeyError, err)
		InternalServerError(w, "group lookup failed")
		return
	}
	WriteJSONOK(w, group)
}

// CreateGroupRequest is the body accepted by POST /groups/{kind}.
type CreateGroupRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Create adds a group to a hierarchy.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	group := &models.Group{Name: req.Name, Kind: kind}
	if req.ParentID != "" {
		group.ParentID = &req.ParentID
	}

	if _, err := h.store.CreateGroup(r.Context(), group); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateGroup):
			Conflict(w, "group "+req.Name+" already exists")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "parent group does not exist")
		default:
			logger.ErrorCtx(r.Context(), "group creation failed", logger.KeyError, err)
			InternalServerError(w, "group creation failed")
		}
		return
	}
	WriteJSONCreated(w, group)
}

// UpdateGroupRequest is the body accepted by PUT /groups/{kind}/{name}.
// An empty name keeps the current one; an empty parent_id moves the
// group to the hierarchy root.
type UpdateGroupRequest struct {
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// Update renames or reparents a group; descendant paths are rebuilt.
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	var parent *string
	if req.ParentID != "" {
		parent = &req.ParentID
	}

	if err := h.store.MoveGroup(r.Context(), kind, name, req.Name, parent); err != nil {
		switch {
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+name+" does not exist")
		case errors.Is(err, models.ErrDuplicateGroup):
			Conflict(w, "group "+req.Name+" already exists")
		default:
			logger.ErrorCtx(r.Context(), "group update failed", logger.KeyError, err)
			InternalServerError(w, "group update failed")
		}
		return
	}

	newName := req.Name
	if newName == "" {
		newName = name
	}
	group, err := h.store.GetGroup(r.Context(), kind, newName)
	if err != nil {
		logger.ErrorCtx(r.Context(), "group lookup failed", logger.KeyError, err)
		InternalServerError(w, "group lookup failed")
		return
	}
	WriteJSONOK(w, group)
}

// Delete removes a group and its memberships.
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	if err := h.store.DeleteGroup(r.Context(), kind, name); err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			NotFound(w, "group "+name+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "group deletion failed", logger.KeyError, err)
		InternalServerError(w, "group deletion failed")
		return
	}
	WriteNoContent(w)
}

// ListMembers returns the users directly in a group.
func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	members, err := h.store.GetGroupMembers(r.Context(), kind, name)
	if err != nil {
		if errors.Is(err, models.ErrGroupNotFound) {
			NotFound(w, "group "+name+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "member listing failed", logger.KeyError, err)
		InternalServerError(w, "member listing failed")
		return
	}
	WriteJSONOK(w, members)
}

// AddMember puts a user into a group.
func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		BadRequest(w, "username is required")
		return
	}

	if err := h.store.AddUserToGroup(r.Context(), req.Username, kind, name); err != nil {
		switch {
		case errors.Is(err, models.ErrUserNotFound):
			NotFound(w, "user "+req.Username+" does not exist")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+name+" does not exist")
		default:
			logger.ErrorCtx(r.Context(), "member addition failed", logger.KeyError, err)
			InternalServerError(w, "member addition failed")
		}
		return
	}
	WriteNoContent(w)
}

// RemoveMember removes a user from a group.
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")
	username := chi.URLParam(r, "username")

	if err := h.store.RemoveUserFromGroup(r.Context(), username, kind, name); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "user "+username+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "member removal failed", logger.KeyError, err)
		InternalServerError(w, "member removal failed")
		return
	}
	WriteNoContent(w)
}

// AttachPermission grants a permission to a monitoring group.
func (h *GroupHandler) AttachPermission(w http.ResponseWriter, r *http.Request) {
	kind, ok := groupKind(r)
	if !ok {
		BadRequest(w, "unknown group kind")
		return
	}
	name := chi.URLParam(r, "name")

	var req struct {
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Permission == "" {
		BadRequest(w, "permission is required")
		return
	}

	if err := h.store.AttachPermission(r.Context(), req.Permission, kind, name); err != nil {
		switch {
		case errors.Is(err, models.ErrPermissionNotFound):
			NotFound(w, "permission "+req.Permission+" does not exist")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+name+" does not exist")
		default:
			logger.ErrorCtx(r.Context(), "permission attach failed", logger.KeyError, err)
			InternalServerError(w, "permission attach failed")
		}
		return
	}
	WriteNoContent(w)
}
