package models

import "time"

// Monitored entities. The access-control core only needs each entity's
// group memberships and a human-readable label; the full monitoring
// attribute set (checks, thresholds, RRD file layout) lives elsewhere.

// Host is a monitored machine. Hosts belong to monitoring groups.
type Host struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Address     string    `gorm:"size:255" json:"address,omitempty"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	Groups   []Group           `gorm:"many2many:host_groups;" json:"groups,omitempty"`
	Services []LowLevelService `gorm:"foreignKey:HostID" json:"services,omitempty"`
}

// TableName returns the table name for Host.
func (Host) TableName() string { return "hosts" }

// EntityKind implements acl.Entity.
func (Host) EntityKind() string { return "host" }

// EntityLabel implements acl.Entity.
func (h *Host) EntityLabel() string { return h.Name }

// GroupIDs implements acl.Entity.
func (h *Host) GroupIDs() []string { return groupIDs(h.Groups) }

// LowLevelService is a concrete check attached to one host
// ("Load", "Interface eth0"). Service names are unique per host.
//
// A service can be placed in monitoring groups of its own; access is
// granted through either the service's groups or its host's groups.
type LowLevelService struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	HostID    string    `gorm:"not null;size:36;uniqueIndex:idx_lls_host_name" json:"host_id"`
	Name      string    `gorm:"not null;size:255;uniqueIndex:idx_lls_host_name" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Host   *Host   `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Groups []Group `gorm:"many2many:lls_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for LowLevelService.
func (LowLevelService) TableName() string { return "lls" }

// EntityKind implements acl.Entity.
func (LowLevelService) EntityKind() string { return "lls" }

// EntityLabel implements acl.Entity.
func (s *LowLevelService) EntityLabel() string {
	if s.Host != nil {
		return s.Host.Name + "/" + s.Name
	}
	return s.Name
}

// GroupIDs implements acl.Entity. Requires Groups and Host.Groups preloaded.
func (s *LowLevelService) GroupIDs() []string {
	ids := groupIDs(s.Groups)
	if s.Host != nil {
		ids = append(ids, groupIDs(s.Host.Groups)...)
	}
	return ids
}

// HighLevelService is a synthetic service aggregating low-level checks.
type HighLevelService struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Message   string    `gorm:"size:1024" json:"message,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Groups []Group `gorm:"many2many:hls_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for HighLevelService.
func (HighLevelService) TableName() string { return "hls" }

// EntityKind implements acl.Entity.
func (HighLevelService) EntityKind() string { return "hls" }

// EntityLabel implements acl.Entity.
func (s *HighLevelService) EntityLabel() string { return s.Name }

// GroupIDs implements acl.Entity.
func (s *HighLevelService) GroupIDs() []string { return groupIDs(s.Groups) }

// Map is a supervision map. Maps belong to map groups.
type Map struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"not null;size:255" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Groups []Group `gorm:"many2many:map_groups;" json:"groups,omitempty"`
}

// TableName returns the table name for Map.
func (Map) TableName() string { return "maps" }

// EntityKind implements acl.Entity.
func (Map) EntityKind() string { return "map" }

// EntityLabel implements acl.Entity.
func (m *Map) EntityLabel() string { return m.Title }

// GroupIDs implements acl.Entity.
func (m *Map) GroupIDs() []string { return groupIDs(m.Groups) }

// Graph is a performance graph aggregating one or more data sources.
// Graphs belong to graph groups.
type Graph struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	Template  string    `gorm:"size:255" json:"template,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Groups          []Group          `gorm:"many2many:graph_groups;" json:"groups,omitempty"`
	PerfDataSources []PerfDataSource `gorm:"many2many:graph_perfdatasources;" json:"perfdatasources,omitempty"`
}

// TableName returns the table name for Graph.
func (Graph) TableName() string { return "graphs" }

// EntityKind implements acl.Entity.
func (Graph) EntityKind() string { return "graph" }

// EntityLabel implements acl.Entity.
func (g *Graph) EntityLabel() string { return g.Name }

// GroupIDs implements acl.Entity.
func (g *Graph) GroupIDs() []string { return groupIDs(g.Groups) }

// PerfDataSource is a single metric collected on a host ("Load 01", "ineth0").
type PerfDataSource struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	HostID string `gorm:"not null;size:36;uniqueIndex:idx_pds_host_name" json:"host_id"`
	Name   string `gorm:"not null;size:255;uniqueIndex:idx_pds_host_name" json:"name"`
	Label  string `gorm:"size:255" json:"label,omitempty"`
	Factor float64 `gorm:"default:1" json:"factor"`

	Host *Host `gorm:"foreignKey:HostID" json:"host,omitempty"`
}

// TableName returns the table name for PerfDataSource.
func (PerfDataSource) TableName() string { return "perfdatasources" }

func groupIDs(groups []Group) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}
