package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// escapeLike escapes the LIKE metacharacters in a literal prefix so a
// group named "g_x" does not match "gax". Backslash is declared as the
// escape character in the queries using this.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *GORMStore) GetGroup(ctx context.Context, kind models.GroupKind, name string) (*models.Group, error) {
	var group models.Group
	err := s.db.WithContext(ctx).
		Preload("Permissions").
		Where("kind = ? AND name = ?", kind, name).
		First(&group).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrGroupNotFound)
	}
	return &group, nil
}

func (s *GORMStore) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	return getByField[models.Group](s.db, ctx, "id", id, models.ErrGroupNotFound, "Permissions")
}

func (s *GORMStore) ListGroups(ctx context.Context, kind models.GroupKind) ([]*models.Group, error) {
	groups := []*models.Group{}
	if err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("path").
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a group, computing its materialized path from the
// parent. A nil ParentID creates a hierarchy root.
func (s *GORMStore) CreateGroup(ctx context.Context, group *models.Group) (string, error) {
	if err := group.Validate(); err != nil {
		return "", err
	}
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	group.CreatedAt = time.Now()

	if group.ParentID != nil {
		parent, err := s.GetGroupByID(ctx, *group.ParentID)
		if err != nil {
			return "", err
		}
		if parent.Kind != group.Kind {
			return "", errors.New("parent group belongs to a different hierarchy")
		}
		group.Path = parent.ChildPath(group.Name)
	} else {
		group.Path = models.RootPath(group.Name)
	}

	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateGroup
		}
		return "", err
	}
	return group.ID, nil
}

func (s *GORMStore) DeleteGroup(ctx context.Context, kind models.GroupKind, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", kind, name).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		if err := tx.Model(&group).Association("Users").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&group).Association("Permissions").Clear(); err != nil {
			return err
		}

		return tx.Delete(&group).Error
	})
}

func (s *GORMStore) AddUserToGroup(ctx context.Context, username string, kind models.GroupKind, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", kind, groupName).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		return tx.Model(&user).Association("Groups").Append(&group)
	})
}

func (s *GORMStore) RemoveUserFromGroup(ctx context.Context, username string, kind models.GroupKind, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", kind, groupName).First(&group).Error; err != nil {
			// Group not found is not an error for remove
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		return tx.Model(&user).Association("Groups").Delete(&group)
	})
}

func (s *GORMStore) GetGroupMembers(ctx context.Context, kind models.GroupKind, groupName string) ([]*models.User, error) {
	var group models.Group
	if err := s.db.WithContext(ctx).Where("kind = ? AND name = ?", kind, groupName).First(&group).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrGroupNotFound)
	}

	users := []*models.User{}
	if err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Where("user_groups.group_id = ?", group.ID).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DescendantGroupIDs expands groups to their full subtrees via the
// materialized path: descendants of a group are exactly the groups of the
// same hierarchy whose path has the group's path as a proper prefix.
func (s *GORMStore) DescendantGroupIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var roots []models.Group
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&roots).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, root := range roots {
		add(root.ID)

		var childIDs []string
		if err := s.db.WithContext(ctx).
			Model(&models.Group{}).
			Where("kind = ? AND path LIKE ? ESCAPE '\\'", root.Kind, escapeLike(root.Path)+"/%").
			Pluck("id", &childIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range childIDs {
			add(id)
		}
	}

	return out, nil
}

// MoveGroup renames and/or reparents a group. An empty newName keeps the
// current name; a nil newParentID makes the group a hierarchy root. The
// materialized paths of the group and of every descendant are rebuilt in
// the same transaction.
func (s *GORMStore) MoveGroup(ctx context.Context, kind models.GroupKind, name, newName string, newParentID *string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("kind = ? AND name = ?", kind, name).First(&group).Error; err != nil {
			return convertNotFoundError(err, models.ErrGroupNotFound)
		}

		if newName == "" {
			newName = group.Name
		}
		renamed := models.Group{Name: newName, Kind: kind}
		if err := renamed.Validate(); err != nil {
			return err
		}

		newPath := models.RootPath(newName)
		if newParentID != nil {
			var parent models.Group
			if err := tx.Where("id = ?", *newParentID).First(&parent).Error; err != nil {
				return convertNotFoundError(err, models.ErrGroupNotFound)
			}
			if parent.Kind != group.Kind {
				return errors.New("parent group belongs to a different hierarchy")
			}
			if parent.ID == group.ID || strings.HasPrefix(parent.Path+"/", group.Path+"/") {
				return errors.New("cannot move a group into its own subtree")
			}
			newPath = parent.ChildPath(newName)
		}

		oldPath := group.Path
		group.Name = newName
		group.ParentID = newParentID
		group.Path = newPath
		if err := tx.Save(&group).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateGroup
			}
			return err
		}
		if oldPath == newPath {
			return nil
		}

		// Prefix rewrite in memory: SQL-level string replacement is not
		// portable between SQLite and PostgreSQL.
		var descendants []models.Group
		if err := tx.
			Where("kind = ? AND path LIKE ? ESCAPE '\\'", kind, escapeLike(oldPath)+"/%").
			Find(&descendants).Error; err != nil {
			return err
		}
		for _, d := range descendants {
			rebuilt := newPath + strings.TrimPrefix(d.Path, oldPath)
			if err := tx.Model(&models.Group{}).Where("id = ?", d.ID).Update("path", rebuilt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// WithTransaction implements Store.
func (s *GORMStore) WithTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewWithDB(tx))
	})
}
