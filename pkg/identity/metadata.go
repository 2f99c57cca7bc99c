package identity

import (
	"context"
	"errors"

	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// StoreMetadataProvider enriches an identity from the local database:
// the account record, the names of every group the user belongs to
// (all three hierarchies), and the permissions granted through
// monitoring groups.
//
// A principal with no local account keeps empty group and permission
// sets. That is a valid outcome, not an error: the externally
// authenticated user simply has access to nothing until provisioned or
// synchronized.
type StoreMetadataProvider struct {
	Store store.UserStore
}

// Name returns the stage token for this provider.
func (p *StoreMetadataProvider) Name() string { return "store-metadata" }

// AddMetadata loads the user record and folds group names and permission
// names into the identity sets. Runs at most once per identity.
func (p *StoreMetadataProvider) AddMetadata(ctx context.Context, id *Identity) error {
	if id.HasToken(p.Name()) {
		return nil
	}
	id.AddToken(p.Name())

	if id.User == nil {
		user, err := p.Store.GetUser(ctx, id.Principal)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return nil
			}
			return err
		}
		id.User = user
	}

	for _, g := range id.User.Groups {
		id.Groups[g.Name] = struct{}{}
		if g.Kind != models.KindMonitoring {
			continue
		}
		for _, perm := range g.Permissions {
			id.Permissions[perm.Name] = struct{}{}
		}
	}
	return nil
}
