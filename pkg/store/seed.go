package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// EnvManagerInitialPassword overrides the generated manager password at init.
const EnvManagerInitialPassword = "ACCESSD_MANAGER_PASSWORD"

// DefaultManagerUsername is the bootstrap manager account name.
const DefaultManagerUsername = "manager"

// DefaultAdminGroup is the bootstrap admin group created by "accessd init".
// Membership in it makes a user a manager unless the configuration names a
// different admin-group list.
const DefaultAdminGroup = "managers"

// EnsureManagerUser creates the bootstrap manager account if missing.
// Returns the generated cleartext password (empty if the user existed).
func (s *GORMStore) EnsureManagerUser(ctx context.Context) (string, error) {
	_, err := s.GetUser(ctx, DefaultManagerUsername)
	if err == nil {
		return "", nil // already provisioned
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return "", err
	}

	password := os.Getenv(EnvManagerInitialPassword)
	if password == "" {
		var buf [18]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password = base64.RawURLEncoding.EncodeToString(buf[:])
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	manager := &models.User{
		Username:     DefaultManagerUsername,
		FullName:     "Manager",
		PasswordHash: hash,
		Enabled:      true,
	}
	if _, err := s.CreateUser(ctx, manager); err != nil {
		return "", fmt.Errorf("failed to create manager user: %w", err)
	}

	return password, nil
}

// EnsureAdminGroup creates the bootstrap admin group in the monitoring
// hierarchy and adds the manager account to it.
func (s *GORMStore) EnsureAdminGroup(ctx context.Context) error {
	_, err := s.GetGroup(ctx, models.KindMonitoring, DefaultAdminGroup)
	if errors.Is(err, models.ErrGroupNotFound) {
		group := &models.Group{Name: DefaultAdminGroup, Kind: models.KindMonitoring}
		if _, err := s.CreateGroup(ctx, group); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := s.GetUser(ctx, DefaultManagerUsername); err == nil {
		// Ignore error - user might already be a member
		_ = s.AddUserToGroup(ctx, DefaultManagerUsername, models.KindMonitoring, DefaultAdminGroup)
	}
	return nil
}

// EnsureDefaultPermissions seeds the permission catalog.
func (s *GORMStore) EnsureDefaultPermissions(ctx context.Context) error {
	for _, p := range models.DefaultPermissions {
		_, err := s.GetPermission(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrPermissionNotFound) {
			return err
		}
		perm := p
		if _, err := s.CreatePermission(ctx, &perm); err != nil {
			return err
		}
	}
	return nil
}
