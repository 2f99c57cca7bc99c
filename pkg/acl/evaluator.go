// Package acl decides whether a user may see a monitored entity.
//
// Two deliberately different rules coexist:
//
//   - Listing filters use the user's DIRECT monitoring-group memberships
//     only, pushed into the SQL query. Expanding the hierarchy for every
//     list request would be too expensive on large trees.
//   - Single-entity checks expand the user's memberships to the full
//     inherited closure (membership in a group implies membership in all
//     of its descendants).
//
// The asymmetry means a listing can omit entities the single-entity check
// would allow; it never shows an entity the single-entity check would
// reject.
package acl

import (
	"context"
	"strings"
	"sync"

	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// Entity is the capability the evaluator needs from a monitored object:
// its kind and label for error messages, and its owning group IDs.
type Entity interface {
	EntityKind() string
	EntityLabel() string
	GroupIDs() []string
}

// Config holds the evaluator's configuration.
type Config struct {
	// AdminGroups lists group names whose members are managers.
	// Managers bypass all group-membership filtering. Empty list means
	// nobody is a manager through this rule.
	AdminGroups []string
}

// ParseAdminGroups parses a comma-separated admin-group list from the
// configuration file, trimming whitespace and dropping empty items.
func ParseAdminGroups(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Evaluator answers access-control questions for (user, entity) pairs.
type Evaluator struct {
	store store.Store

	mu          sync.RWMutex
	adminGroups map[string]struct{}
}

// New creates an Evaluator. The per-user answer is derived purely from
// the admin-group set plus the user's loaded group memberships, so
// nothing is cached across users.
func New(cfg Config, st store.Store) *Evaluator {
	e := &Evaluator{store: st}
	e.SetAdminGroups(cfg.AdminGroups)
	return e
}

// SetAdminGroups replaces the admin-group set. Called on configuration
// reload; requests already past IsManager keep the answer they got.
func (e *Evaluator) SetAdminGroups(names []string) {
	admin := make(map[string]struct{}, len(names))
	for _, name := range names {
		admin[name] = struct{}{}
	}
	e.mu.Lock()
	e.adminGroups = admin
	e.mu.Unlock()
}

// IsManager reports whether the user belongs to at least one configured
// admin group. Requires the user's Groups to be preloaded.
func (e *Evaluator) IsManager(user *models.User) bool {
	if user == nil {
		return false
	}
	e.mu.RLock()
	admin := e.adminGroups
	e.mu.RUnlock()
	if len(admin) == 0 {
		return false
	}
	for _, g := range user.Groups {
		if _, ok := admin[g.Name]; ok {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user holds the named permission
// through any of their monitoring groups. Managers implicitly hold every
// permission.
func (e *Evaluator) HasPermission(user *models.User, name string) bool {
	if user == nil {
		return false
	}
	if e.IsManager(user) {
		return true
	}
	for _, g := range user.Groups {
		if g.Kind != models.KindMonitoring {
			continue
		}
		for _, p := range g.Permissions {
			if p.Name == name {
				return true
			}
		}
	}
	return false
}

// directGroupIDs returns the user's direct memberships in one hierarchy.
func directGroupIDs(user *models.User, kind models.GroupKind) []string {
	var ids []string
	for _, g := range user.Groups {
		if g.Kind == kind {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// FilterAllowedHosts lists the hosts the user may see.
// Non-managers are restricted to hosts owned by their direct monitoring
// groups; an empty direct set short-circuits to an empty result without
// touching the hosts table.
func (e *Evaluator) FilterAllowedHosts(ctx context.Context, user *models.User) ([]*models.Host, error) {
	if user == nil {
		return nil, Unauthorized("")
	}
	if e.IsManager(user) {
		return e.store.ListHosts(ctx)
	}
	ids := directGroupIDs(user, models.KindMonitoring)
	if len(ids) == 0 {
		return []*models.Host{}, nil
	}
	return e.store.ListHostsInGroups(ctx, ids)
}

// FilterAllowedMaps lists the maps the user may see (direct map-group
// memberships only).
func (e *Evaluator) FilterAllowedMaps(ctx context.Context, user *models.User) ([]*models.Map, error) {
	if user == nil {
		return nil, Unauthorized("")
	}
	if e.IsManager(user) {
		return e.store.ListMaps(ctx)
	}
	ids := directGroupIDs(user, models.KindMap)
	if len(ids) == 0 {
		return []*models.Map{}, nil
	}
	return e.store.ListMapsInGroups(ctx, ids)
}

// FilterAllowedGraphs lists the graphs the user may see (direct
// graph-group memberships only).
func (e *Evaluator) FilterAllowedGraphs(ctx context.Context, user *models.User) ([]*models.Graph, error) {
	if user == nil {
		return nil, Unauthorized("")
	}
	if e.IsManager(user) {
		return e.store.ListGraphs(ctx)
	}
	ids := directGroupIDs(user, models.KindGraph)
	if len(ids) == 0 {
		return []*models.Graph{}, nil
	}
	return e.store.ListGraphsInGroups(ctx, ids)
}

// IsAllowedForEntity is the single-entity check. Unlike the listing
// filters it expands the user's memberships to the inherited closure:
// membership in a group grants access to entities owned by any of its
// descendant groups.
func (e *Evaluator) IsAllowedForEntity(ctx context.Context, user *models.User, ent Entity) (bool, error) {
	if user == nil {
		return false, Unauthorized("")
	}
	if e.IsManager(user) {
		return true, nil
	}

	entityGroups := ent.GroupIDs()
	if len(entityGroups) == 0 {
		return false, nil
	}

	var directIDs []string
	for _, g := range user.Groups {
		directIDs = append(directIDs, g.ID)
	}
	if len(directIDs) == 0 {
		return false, nil
	}

	closure, err := e.store.DescendantGroupIDs(ctx, directIDs)
	if err != nil {
		return false, err
	}

	allowed := make(map[string]struct{}, len(closure))
	for _, id := range closure {
		allowed[id] = struct{}{}
	}
	for _, id := range entityGroups {
		if _, ok := allowed[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// CheckMapAccess verifies the user may open the given map: managers
// always may; otherwise one of the map's groups must be among the user's
// direct map-group memberships. On failure the error names the map so the
// refusal is actionable in logs and API responses.
func (e *Evaluator) CheckMapAccess(ctx context.Context, user *models.User, m *models.Map) error {
	if user == nil {
		return Unauthorized("")
	}
	if e.IsManager(user) {
		return nil
	}

	member := make(map[string]struct{})
	for _, g := range user.Groups {
		if g.Kind == models.KindMap {
			member[g.ID] = struct{}{}
		}
	}
	for _, g := range m.Groups {
		if _, ok := member[g.ID]; ok {
			return nil
		}
	}
	return Forbidden("map", m.ID)
}
