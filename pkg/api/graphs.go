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

// GraphHandler serves the performance graph resources.
type GraphHandler struct {
	store     store.Store
	evaluator *acl.Evaluator
}

// NewGraphHandler creates the graph handler.
func NewGraphHandler(st store.Store, evaluator *acl.Evaluator) *GraphHandler {
	return &GraphHandler{store: st, evaluator: evaluator}
}

// List returns the graphs visible to the caller.
func (h *GraphHandler) List(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		WriteJSONOK(w, []*models.Graph{})
		return
	}
	graphs, err := h.evaluator.FilterAllowedGraphs(r.Context(), id.User)
	if err != nil {
		writeACLError(w, err)
		return
	}
	WriteJSONOK(w, graphs)
}

// Get returns one graph if the caller may see it.
func (h *GraphHandler) Get(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "id")

	g, err := h.store.GetGraph(r.Context(), graphID)
	if err != nil {
		if errors.Is(err, models.ErrGraphNotFound) {
			NotFound(w, "graph "+graphID+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "graph lookup failed", logger.KeyError, err)
		InternalServerError(w, "graph lookup failed")
		return
	}

	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		denyEntity(w, r, id.Principal, "graph", g.Name)
		return
	}
	allowed, err := h.evaluator.IsAllowedForEntity(r.Context(), id.User, g)
	if err != nil {
		writeACLError(w, err)
		return
	}
	if !allowed {
		denyEntity(w, r, id.Principal, "graph", g.Name)
		return
	}
	WriteJSONOK(w, g)
}

// Create registers a graph. Manager only.
func (h *GraphHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Template string `json:"template,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	g := &models.Graph{Name: req.Name, Template: req.Template}
	if _, err := h.store.CreateGraph(r.Context(), g); err != nil {
		logger.ErrorCtx(r.Context(), "graph creation failed", logger.KeyError, err)
		InternalServerError(w, "graph creation failed")
		return
	}
	WriteJSONCreated(w, g)
}

// AddToGroup attaches a graph to a graph group. Manager only.
func (h *GraphHandler) AddToGroup(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "id")

	var req struct {
		Group string `json:"group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
		BadRequest(w, "group is required")
		return
	}

	if err := h.store.AddGraphToGroup(r.Context(), graphID, req.Group); err != nil {
		switch {
		case errors.Is(err, models.ErrGraphNotFound):
			NotFound(w, "graph "+graphID+" does not exist")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+req.Group+" does not exist")
		default:
			logger.ErrorCtx(r.Context(), "graph group attach failed", logger.KeyError, err)
			InternalServerError(w, "could not attach graph to group")
		}
		return
	}
	WriteNoContent(w)
}
