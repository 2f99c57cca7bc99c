package store

import (
	"context"
	"time"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// UserStore provides user account operations.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (string, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, username string) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error
	ValidateCredentials(ctx context.Context, username, password string) (*models.User, error)
}

// GroupStore provides group hierarchy and membership operations.
type GroupStore interface {
	GetGroup(ctx context.Context, kind models.GroupKind, name string) (*models.Group, error)
	GetGroupByID(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context, kind models.GroupKind) ([]*models.Group, error)
	CreateGroup(ctx context.Context, group *models.Group) (string, error)
	DeleteGroup(ctx context.Context, kind models.GroupKind, name string) error

	// MoveGroup renames and/or reparents a group, rebuilding the
	// materialized paths of its whole subtree. Empty newName keeps the
	// name; nil newParentID moves the group to the hierarchy root.
	MoveGroup(ctx context.Context, kind models.GroupKind, name, newName string, newParentID *string) error
	AddUserToGroup(ctx context.Context, username string, kind models.GroupKind, groupName string) error
	RemoveUserFromGroup(ctx context.Context, username string, kind models.GroupKind, groupName string) error
	GetGroupMembers(ctx context.Context, kind models.GroupKind, groupName string) ([]*models.User, error)

	// DescendantGroupIDs expands the given groups to include every
	// descendant in their hierarchy, via the materialized path. The input
	// IDs are included in the result.
	DescendantGroupIDs(ctx context.Context, ids []string) ([]string, error)
}

// PermissionStore provides permission catalog operations.
type PermissionStore interface {
	GetPermission(ctx context.Context, name string) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	CreatePermission(ctx context.Context, perm *models.Permission) (string, error)
	AttachPermission(ctx context.Context, permName string, kind models.GroupKind, groupName string) error
}

// EntityStore provides monitored-entity queries for the REST layer and the
// ACL evaluator. Listing variants restricted to a group set exist so the
// evaluator can push the ACL filter into the query instead of loading
// everything and filtering in memory.
type EntityStore interface {
	CreateHost(ctx context.Context, host *models.Host) (string, error)
	GetHost(ctx context.Context, name string) (*models.Host, error)
	ListHosts(ctx context.Context) ([]*models.Host, error)
	ListHostsInGroups(ctx context.Context, groupIDs []string) ([]*models.Host, error)
	AddHostToGroup(ctx context.Context, hostName, groupName string) error

	CreateLLS(ctx context.Context, svc *models.LowLevelService) (string, error)
	GetLLS(ctx context.Context, id string) (*models.LowLevelService, error)
	CreateHLS(ctx context.Context, svc *models.HighLevelService) (string, error)
	GetHLS(ctx context.Context, id string) (*models.HighLevelService, error)

	CreateMap(ctx context.Context, m *models.Map) (string, error)
	GetMap(ctx context.Context, id string) (*models.Map, error)
	ListMaps(ctx context.Context) ([]*models.Map, error)
	ListMapsInGroups(ctx context.Context, groupIDs []string) ([]*models.Map, error)
	AddMapToGroup(ctx context.Context, mapID, groupName string) error

	CreateGraph(ctx context.Context, g *models.Graph) (string, error)
	GetGraph(ctx context.Context, id string) (*models.Graph, error)
	ListGraphs(ctx context.Context) ([]*models.Graph, error)
	ListGraphsInGroups(ctx context.Context, groupIDs []string) ([]*models.Graph, error)
	AddGraphToGroup(ctx context.Context, graphID, groupName string) error
}

// Store is the full persistence interface consumed by the ACL evaluator,
// the identity pipeline, the directory sync engine, and the REST handlers.
type Store interface {
	UserStore
	GroupStore
	PermissionStore
	EntityStore

	// WithTransaction runs fn against a transactional view of the store.
	// If fn returns an error the transaction is rolled back and the error
	// returned; otherwise it is committed. The directory sync engine uses
	// this to make group reconciliation all-or-nothing.
	WithTransaction(ctx context.Context, fn func(Store) error) error
}

// compile-time check
var _ Store = (*GORMStore)(nil)
