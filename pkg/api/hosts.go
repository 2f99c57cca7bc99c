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

// HostHandler serves the host resources. Listings are filtered through
// the evaluator; single-host reads check existence before access, so an
// unauthorized caller can still distinguish a missing host from a
// forbidden one.
type HostHandler struct {
	store     store.Store
	evaluator *acl.Evaluator
}

// NewHostHandler creates the host handler.
func NewHostHandler(st store.Store, evaluator *acl.Evaluator) *HostHandler {
	return &HostHandler{store: st, evaluator: evaluator}
}

// List returns the hosts visible to the caller. A principal without a
// local account is authenticated but owns nothing, so the list is empty
// rather than an error.
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		WriteJSONOK(w, []*models.Host{})
		return
	}
	hosts, err := h.evaluator.FilterAllowedHosts(r.Context(), id.User)
	if err != nil {
		writeACLError(w, err)
		return
	}
	WriteJSONOK(w, hosts)
}

// Get returns one host if the caller may see it.
func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	host, err := h.store.GetHost(r.Context(), name)
	if err != nil {
		if errors.Is(err, models.ErrHostNotFound) {
			NotFound(w, "host "+name+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "host lookup failed", logger.KeyError, err)
		InternalServerError(w, "host lookup failed")
		return
	}

	id := identity.FromContext(r.Context())
	if id == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if id.User == nil {
		denyEntity(w, r, id.Principal, "host", name)
		return
	}
	allowed, err := h.evaluator.IsAllowedForEntity(r.Context(), id.User, host)
	if err != nil {
		writeACLError(w, err)
		return
	}
	if !allowed {
		denyEntity(w, r, id.Principal, "host", name)
		return
	}
	WriteJSONOK(w, host)
}

// CreateHostRequest is the body accepted by POST /hosts.
type CreateHostRequest struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Create registers a host. Manager only (enforced by the router).
func (h *HostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	host := &models.Host{Name: req.Name, Address: req.Address}
	if _, err := h.store.CreateHost(r.Context(), host); err != nil {
		if errors.Is(err, models.ErrDuplicateHost) {
			Conflict(w, "host "+req.Name+" already exists")
			return
		}
		logger.ErrorCtx(r.Context(), "host creation failed", logger.KeyError, err)
		InternalServerError(w, "host creation failed")
		return
	}
	WriteJSONCreated(w, host)
}

// AddToGroup attaches a host to a monitoring group. Manager only.
func (h *HostHandler) AddToGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req struct {
		Group string `json:"group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
		BadRequest(w, "group is required")
		return
	}

	if err := h.store.AddHostToGroup(r.Context(), name, req.Group); err != nil {
		switch {
		case errors.Is(err, models.ErrHostNotFound):
			NotFound(w, "host "+name+" does not exist")
		case errors.Is(err, models.ErrGroupNotFound):
			NotFound(w, "group "+req.Group+" does not exist")
		default:
			logger.ErrorCtx(r.Context(), "host group attach failed", logger.KeyError, err)
			InternalServerError(w, "could not attach host to group")
		}
		return
	}
	WriteNoContent(w)
}
