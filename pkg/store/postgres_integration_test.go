//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// Run with: go test -tags integration ./pkg/store/...
// Requires a local Docker daemon.

func newPostgresStore(t *testing.T) *GORMStore {
	t.Helper()
	ctx := context.Background()

	// PostgreSQL logs "ready to accept connections" twice during startup,
	// once during bootstrap and once when fully up.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("accessd_test"),
		postgres.WithUsername("accessd_test"),
		postgres.WithPassword("accessd_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	st, err := New(&Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "accessd_test",
			User:     "accessd_test",
			Password: "accessd_test",
			SSLMode:  "disable",
		},
	})
	require.NoError(t, err)
	return st
}

func TestPostgresHierarchyAndMemberships(t *testing.T) {
	st := newPostgresStore(t)
	ctx := context.Background()

	servers, err := st.CreateGroup(ctx, &models.Group{Name: "Servers", Kind: models.KindMonitoring})
	require.NoError(t, err)
	linux, err := st.CreateGroup(ctx, &models.Group{Name: "Linux", Kind: models.KindMonitoring, ParentID: &servers})
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, &models.User{Username: "alice", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMonitoring, "Servers"))

	ids, err := st.DescendantGroupIDs(ctx, []string{servers})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{servers, linux}, ids)

	t.Run("unique constraint detection", func(t *testing.T) {
		_, err := st.CreateUser(ctx, &models.User{Username: "alice", Enabled: true})
		assert.ErrorIs(t, err, models.ErrDuplicateUser)
	})

	t.Run("transaction rollback", func(t *testing.T) {
		err := st.WithTransaction(ctx, func(tx Store) error {
			if _, err := tx.CreateUser(ctx, &models.User{Username: "ghost", Enabled: true}); err != nil {
				return err
			}
			return context.Canceled
		})
		require.Error(t, err)

		_, err = st.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, models.ErrUserNotFound)
	})
}
