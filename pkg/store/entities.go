package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// ============================================
// HOSTS
// ============================================

func (s *GORMStore) CreateHost(ctx context.Context, host *models.Host) (string, error) {
	host.CreatedAt = time.Now()
	return createWithID(s.db, ctx, host, func(h *models.Host, id string) { h.ID = id }, host.ID, models.ErrDuplicateHost)
}

func (s *GORMStore) GetHost(ctx context.Context, name string) (*models.Host, error) {
	return getByField[models.Host](s.db, ctx, "name", name, models.ErrHostNotFound, "Groups", "Services")
}

func (s *GORMStore) ListHosts(ctx context.Context) ([]*models.Host, error) {
	return listAll[models.Host](s.db, ctx, "Groups")
}

// ListHostsInGroups returns hosts whose monitoring groups intersect the
// given group set. Used by the ACL evaluator's listing filter, which passes
// the user's direct memberships only.
func (s *GORMStore) ListHostsInGroups(ctx context.Context, groupIDs []string) ([]*models.Host, error) {
	hosts := []*models.Host{}
	if len(groupIDs) == 0 {
		return hosts, nil
	}
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Joins("JOIN host_groups ON host_groups.host_id = hosts.id").
		Where("host_groups.group_id IN ?", groupIDs).
		Distinct("hosts.*").
		Find(&hosts).Error
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *GORMStore) AddHostToGroup(ctx context.Context, hostName, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var host models.Host
		if err := tx.Where("name = ?", hostName).First(&host).Error; err != nil {
			return convertNotFoundError(err, models.ErrHostNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", models.KindMonitoring, groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&host).Association("Groups").Append(&group)
	})
}

// ============================================
// SERVICES
// ============================================

func (s *GORMStore) CreateLLS(ctx context.Context, svc *models.LowLevelService) (string, error) {
	svc.CreatedAt = time.Now()
	return createWithID(s.db, ctx, svc, func(v *models.LowLevelService, id string) { v.ID = id }, svc.ID, models.ErrDuplicateService)
}

func (s *GORMStore) GetLLS(ctx context.Context, id string) (*models.LowLevelService, error) {
	return getByField[models.LowLevelService](s.db, ctx, "id", id, models.ErrServiceNotFound,
		"Groups", "Host", "Host.Groups")
}

func (s *GORMStore) CreateHLS(ctx context.Context, svc *models.HighLevelService) (string, error) {
	svc.CreatedAt = time.Now()
	return createWithID(s.db, ctx, svc, func(v *models.HighLevelService, id string) { v.ID = id }, svc.ID, models.ErrDuplicateService)
}

func (s *GORMStore) GetHLS(ctx context.Context, id string) (*models.HighLevelService, error) {
	return getByField[models.HighLevelService](s.db, ctx, "id", id, models.ErrServiceNotFound, "Groups")
}

// ============================================
// MAPS
// ============================================

func (s *GORMStore) CreateMap(ctx context.Context, m *models.Map) (string, error) {
	m.CreatedAt = time.Now()
	return createWithID(s.db, ctx, m, func(v *models.Map, id string) { v.ID = id }, m.ID, models.ErrDuplicateEntity)
}

func (s *GORMStore) GetMap(ctx context.Context, id string) (*models.Map, error) {
	return getByField[models.Map](s.db, ctx, "id", id, models.ErrMapNotFound, "Groups")
}

func (s *GORMStore) ListMaps(ctx context.Context) ([]*models.Map, error) {
	return listAll[models.Map](s.db, ctx, "Groups")
}

func (s *GORMStore) ListMapsInGroups(ctx context.Context, groupIDs []string) ([]*models.Map, error) {
	maps := []*models.Map{}
	if len(groupIDs) == 0 {
		return maps, nil
	}
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Joins("JOIN map_groups ON map_groups.map_id = maps.id").
		Where("map_groups.group_id IN ?", groupIDs).
		Distinct("maps.*").
		Find(&maps).Error
	if err != nil {
		return nil, err
	}
	return maps, nil
}

func (s *GORMStore) AddMapToGroup(ctx context.Context, mapID, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Map
		if err := tx.Where("id = ?", mapID).First(&m).Error; err != nil {
			return convertNotFoundError(err, models.ErrMapNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", models.KindMap, groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&m).Association("Groups").Append(&group)
	})
}

// ============================================
// GRAPHS
// ============================================

func (s *GORMStore) CreateGraph(ctx context.Context, g *models.Graph) (string, error) {
	g.CreatedAt = time.Now()
	return createWithID(s.db, ctx, g, func(v *models.Graph, id string) { v.ID = id }, g.ID, models.ErrDuplicateEntity)
}

func (s *GORMStore) GetGraph(ctx context.Context, id string) (*models.Graph, error) {
	return getByField[models.Graph](s.db, ctx, "id", id, models.ErrGraphNotFound, "Groups", "PerfDataSources")
}

func (s *GORMStore) ListGraphs(ctx context.Context) ([]*models.Graph, error) {
	return listAll[models.Graph](s.db, ctx, "Groups")
}

func (s *GORMStore) ListGraphsInGroups(ctx context.Context, groupIDs []string) ([]*models.Graph, error) {
	graphs := []*models.Graph{}
	if len(groupIDs) == 0 {
		return graphs, nil
	}
	err := s.db.WithContext(ctx).
		Preload("Groups").
		Joins("JOIN graph_groups ON graph_groups.graph_id = graphs.id").
		Where("graph_groups.group_id IN ?", groupIDs).
		Distinct("graphs.*").
		Find(&graphs).Error
	if err != nil {
		return nil, err
	}
	return graphs, nil
}

func (s *GORMStore) AddGraphToGroup(ctx context.Context, graphID, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Graph
		if err := tx.Where("id = ?", graphID).First(&g).Error; err != nil {
			return convertNotFoundError(err, models.ErrGraphNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", models.KindGraph, groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&g).Association("Groups").Append(&group)
	})
}
