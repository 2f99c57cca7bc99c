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

// MapHandler serves the supervision map resources. Unlike hosts, opening
// a map checks the caller's direct map-group memberships, not the
// inherited closure.
type MapHandler struct {
	store     store.Store
	evaluator *acl.Evaluator
}

// NewMapHandler creates the map handler.
func NewMapHandler(st store.Store, evaluator *acl.Evaluator) *MapHandler {
	return &MapHandler{store: st, evaluator: evaluator}
}

// List returns the maps visible to the caller.
func (h *MapHandler) List(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		WriteJSONOK(w, []*models.Map{})
		return
	}
	maps, err := h.evaluator.FilterAllowedMaps(r.Context(), id.User)
	if err != nil {
		writeACLError(w, err)
		return
	}
	WriteJSONOK(w, maps)
}

// Get returns one map if the caller may open it.
func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	mapID := chi.URLParam(r, "id")

	m, err := h.store.GetMap(r.Context(), mapID)
	if err != nil {
		if errors.Is(err, models.ErrMapNotFound) {
			NotFound(w, "map "+mapID+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "map lookup failed", logger.KeyError, err)
		InternalServerError(w, "map lookup failed")
		return
	}

	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		aclDenials.WithLabelValues("map").Inc()
		Forbidden(w, acl.Forbidden("map", mapID).Error())
		return
	}
	if err := h.evaluator.CheckMapAccess(r.Context(), id.User, m); err != nil {
		if acl.IsForbidden(err) {
			aclDenials.WithLabelValues("map").Inc()
			logger.InfoCtx(r.Context(), "map access refused",
				logger.KeyPrincipal, id.Principal,
				logger.KeyEntityID, mapID)
			Forbidden(w, err.Error())
			return
		}
		writeACLError(w, err)
		return
	}
	WriteJSONOK(w, m)
}

// Create registers a map. Manager only.
func (h *MapHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		BadRequest(w, "title is required")
		return
	}

	m := &models.Map{Title: req.Title}
	if _, err := h.store.CreateMap(r.Context(), m); err != nil {
		logger.ErrorCtx(r.Context(), "map creation failed", logger.KeyError, err)
		InternalServerError(w, "map creation failed")
		return
	}
	WriteJSONCreated(w, m)
}

// AddToGroup attaches a map to a map group. Manager only.
func (h *MapHandler) AddToGroup(w http.ResponseWriter, r *http.Request) {
	mapID := chi.URLParam(r, "id")

	var req struct {
		Group string `json:"group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
		BadRequest(w, "group is required")
		return
	}

	if err := h.store.AddMapToGroup(r.Context(), mapID, req.Group); err != nil {
		switch {
		case errors.Is(err, models.ErrMapNotFound):
			NotFound(w, "map "+mapID+" does not exist")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+req.Group+" does not exist")
		default:
			logger.ErrorCtx(r.Context(), "map group attach failed", logger.KeyError, err)
			InternalServerError(w, "could not attach map to group")
		}
		return
	}
	WriteNoContent(w)
}
