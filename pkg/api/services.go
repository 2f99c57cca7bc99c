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

// ServiceHandler serves low-level and high-level service resources.
type ServiceHandler struct {
	store     store.Store
	evaluator *acl.Evaluator
}

// NewServiceHandler creates the service handler.
func NewServiceHandler(st store.Store, evaluator *acl.Evaluator) *ServiceHandler {
	return &ServiceHandler{store: st, evaluator: evaluator}
}

// GetLLS returns one low-level service. Access is granted through the
// service's own groups or its host's groups.
func (h *ServiceHandler) GetLLS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	svc, err := h.store.GetLLS(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrServiceNotFound) {
			NotFound(w, "service "+id+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "service lookup failed", logger.KeyError, err)
		InternalServerError(w, "service lookup failed")
		return
	}

	ident := identity.FromContext(r.Context())
	if ident == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if ident.User == nil {
		denyEntity(w, r, ident.Principal, "service", svc.EntityLabel())
		return
	}
	allowed, err := h.evaluator.IsAllowedForEntity(r.Context(), ident.User, svc)
	if err != nil {
		writeACLError(w, err)
		return
	}
	if !allowed {
		denyEntity(w, r, ident.Principal, "service", svc.EntityLabel())
		return
	}
	WriteJSONOK(w, svc)
}

// CreateLLSRequest is the body accepted by POST /services/lls.
type CreateLLSRequest struct {
	Host string `json:"host"`
	Name string `json:"name"`
}

// CreateLLS registers a low-level service on a host. Manager only.
func (h *ServiceHandler) CreateLLS(w http.ResponseWriter, r *http.Request) {
	var req CreateLLSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Host == "" || req.Name == "" {
		BadRequest(w, "host and name are required")
		return
	}

	host, err := h.store.GetHost(r.Context(), req.Host)
	if err != nil {
		if errors.Is(err, models.ErrHostNotFound) {
			NotFound(w, "host "+req.Host+" does not exist")
			return
		}
		InternalServerError(w, "host lookup failed")
		return
	}

	svc := &models.LowLevelService{HostID: host.ID, Name: req.Name}
	if _, err := h.store.CreateLLS(r.Context(), svc); err != nil {
		if errors.Is(err, models.ErrDuplicateService) {
			Conflict(w, "service "+req.Name+" already exists on "+req.Host)
			return
		}
		logger.ErrorCtx(r.Context(), "service creation failed", logger.KeyError, err)
		InternalServerError(w, "service creation failed")
		return
	}
	WriteJSONCreated(w, svc)
}

// GetHLS returns one high-level service.
func (h *ServiceHandler) GetHLS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	svc, err := h.store.GetHLS(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrServiceNotFound) {
			NotFound(w, "service "+id+" does not exist")
			return
		}
		logger.ErrorCtx(r.Context(), "service lookup failed", logger.KeyError, err)
		InternalServerError(w, "service lookup failed")
		return
	}

	ident := identity.FromContext(r.Context())
	if ident == nil {
		Unauthorized(w, "authentication required")
		return
	}
	if ident.User == nil {
		denyEntity(w, r, ident.Principal, "service", svc.Name)
		return
	}
	allowed, err := h.evaluator.IsAllowedForEntity(r.Context(), ident.User, svc)
	if err != nil {
		writeACLError(w, err)
		return
	}
	if !allowed {
		denyEntity(w, r, ident.Principal, "service", svc.Name)
		return
	}
	WriteJSONOK(w, svc)
}

// CreateHLS registers a high-level service. Manager only.
func (h *ServiceHandler) CreateHLS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Message string `json:"message,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	svc := &models.HighLevelService{Name: req.Name, Message: req.Message}
	if _, err := h.store.CreateHLS(r.Context(), svc); err != nil {
		if errors.Is(err, models.ErrDuplicateService) {
			Conflict(w, "service "+req.Name+" already exists")
			return
		}
		logger.ErrorCtx(r.Context(), "service creation failed", logger.KeyError, err)
		InternalServerError(w, "service creation failed")
		return
	}
	WriteJSONCreated(w, svc)
}
