package models

import (
	"fmt"
	"strings"
	"time"
)

// GroupKind identifies which of the three disjoint hierarchies a group
// belongs to. Group names are unique per hierarchy, not globally.
type GroupKind string

const (
	// KindMonitoring groups contain hosts and services, and carry permissions.
	KindMonitoring GroupKind = "monitoring"
	// KindMap groups contain maps.
	KindMap GroupKind = "map"
	// KindGraph groups contain graphs.
	KindGraph GroupKind = "graph"
)

// IsValid checks if the kind is one of the three hierarchies.
func (k GroupKind) IsValid() bool {
	return k == KindMonitoring || k == KindMap || k == KindGraph
}

// Group is a named node in one of the three group hierarchies.
//
// Each group has an optional parent (forming a tree per hierarchy) and a
// materialized Path ("/Servers/Linux") maintained on create/rename/reparent.
// The path makes descendant lookups a prefix match instead of a recursive
// walk.
type Group struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null;size:255;uniqueIndex:idx_groups_kind_name" json:"name"`
	Kind      GroupKind `gorm:"not null;size:16;uniqueIndex:idx_groups_kind_name" json:"kind"`
	ParentID  *string   `gorm:"size:36;index" json:"parent_id,omitempty"`
	Path      string    `gorm:"not null;size:1024;index" json:"path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Parent *Group `gorm:"foreignKey:ParentID" json:"-"`

	// Many-to-many relationship with users.
	Users []User `gorm:"many2many:user_groups;" json:"users,omitempty"`

	// Permissions attached to this group. Only meaningful for the
	// monitoring hierarchy; map/graph groups never carry permissions.
	Permissions []Permission `gorm:"many2many:group_permissions;" json:"permissions,omitempty"`
}

// TableName returns the table name for Group.
func (Group) TableName() string {
	return "groups"
}

// Validate checks if the group has valid configuration.
func (g *Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("group name is required")
	}
	if strings.Contains(g.Name, "/") {
		return fmt.Errorf("group name must not contain %q", "/")
	}
	if !g.Kind.IsValid() {
		return fmt.Errorf("invalid group kind %q", g.Kind)
	}
	return nil
}

// ChildPath returns the materialized path of a child named name under g.
func (g *Group) ChildPath(name string) string {
	return g.Path + "/" + name
}

// RootPath returns the materialized path for a root group named name.
func RootPath(name string) string {
	return "/" + name
}
