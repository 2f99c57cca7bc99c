package acl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return st
}

func newEvaluator(st store.Store) *Evaluator {
	return New(Config{AdminGroups: ParseAdminGroups("managers, operators")}, st)
}

func createUser(t *testing.T, st store.Store, username string) {
	t.Helper()
	_, err := st.CreateUser(context.Background(), &models.User{
		Username: username,
		External: true,
		Enabled:  true,
	})
	require.NoError(t, err)
}

func createGroup(t *testing.T, st store.Store, kind models.GroupKind, name string, parentID *string) string {
	t.Helper()
	id, err := st.CreateGroup(context.Background(), &models.Group{
		Name:     name,
		Kind:     kind,
		ParentID: parentID,
	})
	require.NoError(t, err)
	return id
}

func loadUser(t *testing.T, st store.Store, username string) *models.User {
	t.Helper()
	user, err := st.GetUser(context.Background(), username)
	require.NoError(t, err)
	return user
}

func TestParseAdminGroups(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "managers", []string{"managers"}},
		{"multiple with spaces", "managers, noc-admins ,ops", []string{"managers", "noc-admins", "ops"}},
		{"empty string", "", nil},
		{"only separators", " , ,", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAdminGroups(tt.raw))
		})
	}
}

func TestIsManager(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	createGroup(t, st, models.KindMonitoring, "managers", nil)
	createGroup(t, st, models.KindMonitoring, "linux-servers", nil)

	createUser(t, st, "boss")
	require.NoError(t, st.AddUserToGroup(ctx, "boss", models.KindMonitoring, "managers"))
	createUser(t, st, "alice")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMonitoring, "linux-servers"))

	assert.True(t, e.IsManager(loadUser(t, st, "boss")))
	assert.False(t, e.IsManager(loadUser(t, st, "alice")))
	assert.False(t, e.IsManager(nil))

	t.Run("no admin groups configured", func(t *testing.T) {
		none := New(Config{}, st)
		assert.False(t, none.IsManager(loadUser(t, st, "boss")))
	})
}

func TestFilterAllowedHosts(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	createGroup(t, st, models.KindMonitoring, "managers", nil)
	createGroup(t, st, models.KindMonitoring, "linux-servers", nil)
	createGroup(t, st, models.KindMonitoring, "db-servers", nil)

	for host, group := range map[string]string{
		"web01": "linux-servers",
		"web02": "linux-servers",
		"db01":  "db-servers",
	} {
		_, err := st.CreateHost(ctx, &models.Host{Name: host})
		require.NoError(t, err)
		require.NoError(t, st.AddHostToGroup(ctx, host, group))
	}

	createUser(t, st, "alice")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMonitoring, "linux-servers"))
	createUser(t, st, "boss")
	require.NoError(t, st.AddUserToGroup(ctx, "boss", models.KindMonitoring, "managers"))
	createUser(t, st, "lonely")

	t.Run("restricted to direct groups", func(t *testing.T) {
		hosts, err := e.FilterAllowedHosts(ctx, loadUser(t, st, "alice"))
		require.NoError(t, err)
		names := hostNames(hosts)
		assert.ElementsMatch(t, []string{"web01", "web02"}, names)
	})

	t.Run("manager sees everything", func(t *testing.T) {
		hosts, err := e.FilterAllowedHosts(ctx, loadUser(t, st, "boss"))
		require.NoError(t, err)
		assert.Len(t, hosts, 3)
	})

	t.Run("no memberships short-circuits to empty", func(t *testing.T) {
		hosts, err := e.FilterAllowedHosts(ctx, loadUser(t, st, "lonely"))
		require.NoError(t, err)
		assert.Empty(t, hosts)
	})

	t.Run("nil user is unauthorized", func(t *testing.T) {
		_, err := e.FilterAllowedHosts(ctx, nil)
		assert.True(t, IsUnauthorized(err))
	})
}

func TestIsAllowedForEntity_InheritedClosure(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	// Servers
	//   ├── Linux
	//   │     └── Web
	//   └── Windows
	servers := createGroup(t, st, models.KindMonitoring, "Servers", nil)
	linux := createGroup(t, st, models.KindMonitoring, "Linux", &servers)
	createGroup(t, st, models.KindMonitoring, "Web", &linux)
	createGroup(t, st, models.KindMonitoring, "Windows", &servers)
	createGroup(t, st, models.KindMonitoring, "Network", nil)

	_, err := st.CreateHost(ctx, &models.Host{Name: "web01"})
	require.NoError(t, err)
	require.NoError(t, st.AddHostToGroup(ctx, "web01", "Web"))

	_, err = st.CreateHost(ctx, &models.Host{Name: "router01"})
	require.NoError(t, err)
	require.NoError(t, st.AddHostToGroup(ctx, "router01", "Network"))

	createUser(t, st, "alice")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMonitoring, "Servers"))

	alice := loadUser(t, st, "alice")

	t.Run("grandchild group grants access", func(t *testing.T) {
		host, err := st.GetHost(ctx, "web01")
		require.NoError(t, err)
		allowed, err := e.IsAllowedForEntity(ctx, alice, host)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("sibling hierarchy does not", func(t *testing.T) {
		host, err := st.GetHost(ctx, "router01")
		require.NoError(t, err)
		allowed, err := e.IsAllowedForEntity(ctx, alice, host)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("orphan entity is never visible", func(t *testing.T) {
		_, err := st.CreateHost(ctx, &models.Host{Name: "orphan"})
		require.NoError(t, err)
		host, err := st.GetHost(ctx, "orphan")
		require.NoError(t, err)
		allowed, err := e.IsAllowedForEntity(ctx, alice, host)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("listing ignores the closure", func(t *testing.T) {
		hosts, err := e.FilterAllowedHosts(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, hosts)
	})
}

func TestIsAllowedForEntity_WildcardGroupNamesStayLiteral(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	// "g_x" must not be treated as a path pattern matching "gax".
	createGroup(t, st, models.KindMonitoring, "g_x", nil)
	gax := createGroup(t, st, models.KindMonitoring, "gax", nil)
	createGroup(t, st, models.KindMonitoring, "secret", &gax)

	_, err := st.CreateHost(ctx, &models.Host{Name: "vault"})
	require.NoError(t, err)
	require.NoError(t, st.AddHostToGroup(ctx, "vault", "secret"))

	createUser(t, st, "eve")
	require.NoError(t, st.AddUserToGroup(ctx, "eve", models.KindMonitoring, "g_x"))

	host, err := st.GetHost(ctx, "vault")
	require.NoError(t, err)
	allowed, err := e.IsAllowedForEntity(ctx, loadUser(t, st, "eve"), host)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSetAdminGroups(t *testing.T) {
	st := newTestStore(t)
	e := New(Config{AdminGroups: []string{"managers"}}, st)
	ctx := context.Background()

	createGroup(t, st, models.KindMonitoring, "operators", nil)
	createUser(t, st, "op")
	require.NoError(t, st.AddUserToGroup(ctx, "op", models.KindMonitoring, "operators"))

	op := loadUser(t, st, "op")
	assert.False(t, e.IsManager(op))

	e.SetAdminGroups([]string{"operators"})
	assert.True(t, e.IsManager(op))

	e.SetAdminGroups(nil)
	assert.False(t, e.IsManager(op))
}

func TestCheckMapAccess(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	createGroup(t, st, models.KindMap, "noc-maps", nil)
	createGroup(t, st, models.KindMonitoring, "managers", nil)

	mapID, err := st.CreateMap(ctx, &models.Map{Title: "Backbone"})
	require.NoError(t, err)
	require.NoError(t, st.AddMapToGroup(ctx, mapID, "noc-maps"))

	createUser(t, st, "alice")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMap, "noc-maps"))
	createUser(t, st, "bob")
	createUser(t, st, "boss")
	require.NoError(t, st.AddUserToGroup(ctx, "boss", models.KindMonitoring, "managers"))

	m, err := st.GetMap(ctx, mapID)
	require.NoError(t, err)

	t.Run("direct member allowed", func(t *testing.T) {
		assert.NoError(t, e.CheckMapAccess(ctx, loadUser(t, st, "alice"), m))
	})

	t.Run("manager bypasses membership", func(t *testing.T) {
		assert.NoError(t, e.CheckMapAccess(ctx, loadUser(t, st, "boss"), m))
	})

	t.Run("non-member refused with map named", func(t *testing.T) {
		err := e.CheckMapAccess(ctx, loadUser(t, st, "bob"), m)
		require.Error(t, err)
		assert.True(t, IsForbidden(err))
		assert.Contains(t, err.Error(), mapID)
	})

	t.Run("nil user unauthorized", func(t *testing.T) {
		err := e.CheckMapAccess(ctx, nil, m)
		assert.True(t, IsUnauthorized(err))
	})
}

func TestHasPermission(t *testing.T) {
	st := newTestStore(t)
	e := newEvaluator(st)
	ctx := context.Background()

	createGroup(t, st, models.KindMonitoring, "managers", nil)
	createGroup(t, st, models.KindMonitoring, "noc", nil)
	_, err := st.CreatePermission(ctx, &models.Permission{Name: "downtime"})
	require.NoError(t, err)
	require.NoError(t, st.AttachPermission(ctx, "downtime", models.KindMonitoring, "noc"))

	createUser(t, st, "alice")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMonitoring, "noc"))
	createUser(t, st, "bob")
	createUser(t, st, "boss")
	require.NoError(t, st.AddUserToGroup(ctx, "boss", models.KindMonitoring, "managers"))

	assert.True(t, e.HasPermission(loadUser(t, st, "alice"), "downtime"))
	assert.False(t, e.HasPermission(loadUser(t, st, "alice"), "reporting"))
	assert.False(t, e.HasPermission(loadUser(t, st, "bob"), "downtime"))
	assert.True(t, e.HasPermission(loadUser(t, st, "boss"), "anything"))
	assert.False(t, e.HasPermission(nil, "downtime"))
}

func hostNames(hosts []*models.Host) []string {
	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names
}
