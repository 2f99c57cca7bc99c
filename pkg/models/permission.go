package models

import (
	"fmt"
	"time"
)

// Permission is a named capability attached to monitoring groups.
// A user holds a permission transitively through group membership.
type Permission struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	Groups []Group `gorm:"many2many:group_permissions;" json:"groups,omitempty"`
}

// TableName returns the table name for Permission.
func (Permission) TableName() string {
	return "permissions"
}

// Validate checks if the permission has valid configuration.
func (p *Permission) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("permission name is required")
	}
	return nil
}

// DefaultPermissions is the permission catalog seeded by "accessd init".
// These names match the capabilities consumed by the monitoring front-ends.
var DefaultPermissions = []Permission{
	{Name: "vigiboard-access", Description: "View the event board"},
	{Name: "vigiboard-update", Description: "Acknowledge and update events"},
	{Name: "vigimap-access", Description: "View maps"},
	{Name: "vigimap-edition", Description: "Create and edit maps"},
	{Name: "vigigraph-access", Description: "View performance graphs"},
}
