package models

import (
	"fmt"
	"time"
)

// User represents an operator account for the monitoring interfaces.
//
// Internally-managed users carry a bcrypt password hash; users provisioned
// by directory synchronization have an empty hash and authenticate upstream
// (Kerberos/Apache), so a password check against them always fails.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	FullName     string     `gorm:"size:255" json:"full_name,omitempty"`
	Email        string     `gorm:"size:255" json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	External     bool       `gorm:"default:false" json:"external"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	// Many-to-many relationship with groups (all three hierarchies).
	Groups []Group `gorm:"many2many:user_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetFullName returns the full name, or the username if no full name is set.
func (u *User) GetFullName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// HasGroup checks if the user belongs to the named group.
// Requires Groups to be preloaded.
func (u *User) HasGroup(groupName string) bool {
	for _, g := range u.Groups {
		if g.Name == groupName {
			return true
		}
	}
	return false
}

// GroupNames returns the names of all groups the user belongs to.
func (u *User) GroupNames() []string {
	names := make([]string, len(u.Groups))
	for i, g := range u.Groups {
		names[i] = g.Name
	}
	return names
}

// GroupsOfKind returns the user's direct memberships restricted to one hierarchy.
func (u *User) GroupsOfKind(kind GroupKind) []Group {
	var out []Group
	for _, g := range u.Groups {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}
