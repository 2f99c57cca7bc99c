package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/vigilo-nms/accessd/pkg/models"
)

func (s *GORMStore) GetPermission(ctx context.Context, name string) (*models.Permission, error) {
	return getByField[models.Permission](s.db, ctx, "name", name, models.ErrPermissionNotFound)
}

func (s *GORMStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	return listAll[models.Permission](s.db, ctx)
}

func (s *GORMStore) CreatePermission(ctx context.Context, perm *models.Permission) (string, error) {
	if err := perm.Validate(); err != nil {
		return "", err
	}
	return createWithID(s.db, ctx, perm, func(p *models.Permission, id string) { p.ID = id }, perm.ID, models.ErrDuplicatePermission)
}

// AttachPermission attaches a permission to a group. Permissions only carry
// meaning on monitoring groups, but the store does not enforce that; the
// evaluator simply never consults permissions of map/graph groups.
func (s *GORMStore) AttachPermission(ctx context.Context, permName string, kind models.GroupKind, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perm models.Permission
		if err := tx.Where("name = ?", permName).First(&perm).Error; err != nil {
			return convertNotFoundError(err, models.ErrPermissionNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", kind, groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&group).Association("Permissions").Append(&perm)
	})
}
