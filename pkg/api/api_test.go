package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilo-nms/accessd/pkg/acl"
	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestEnv(t *testing.T) (http.Handler, *store.GORMStore) {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	cfg.API.TokenSecret = testSecret
	secure := false
	cfg.API.SecureCookies = &secure
	cfg.Auth.StripRealm = true

	evaluator := acl.New(acl.Config{
		AdminGroups: acl.ParseAdminGroups(cfg.Auth.AdminGroups),
	}, st)
	router, err := NewRouter(cfg, st, evaluator)
	require.NoError(t, err)
	return router, st
}

func seedUser(t *testing.T, st *store.GORMStore, username, password string, groups ...string) {
	t.Helper()
	ctx := context.Background()

	hash := ""
	if password != "" {
		var err error
		hash, err = store.HashPassword(password)
		require.NoError(t, err)
	}
	_, err := st.CreateUser(ctx, &models.User{
		Username:     username,
		PasswordHash: hash,
		External:     password == "",
		Enabled:      true,
	})
	require.NoError(t, err)

	for _, group := range groups {
		if _, err := st.GetGroup(ctx, models.KindMonitoring, group); err != nil {
			_, err = st.CreateGroup(ctx, &models.Group{Name: group, Kind: models.KindMonitoring})
			require.NoError(t, err)
		}
		require.NoError(t, st.AddUserToGroup(ctx, username, models.KindMonitoring, group))
	}
}

func seedHost(t *testing.T, st *store.GORMStore, name string, groups ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := st.CreateHost(ctx, &models.Host{Name: name})
	require.NoError(t, err)
	for _, group := range groups {
		if _, err := st.GetGroup(ctx, models.KindMonitoring, group); err != nil {
			_, err = st.CreateGroup(ctx, &models.Group{Name: group, Kind: models.KindMonitoring})
			require.NoError(t, err)
		}
		require.NoError(t, st.AddHostToGroup(ctx, name, group))
	}
}

func doRequest(router http.Handler, method, path, principal, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Accept", "application/json")
	if principal != "" {
		r.Header.Set("X-Remote-User", principal)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestHostList_AnonymousGets401(t *testing.T) {
	router, _ := newTestEnv(t)

	w := doRequest(router, http.MethodGet, "/api/v1/hosts", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHostList_FilteredByDirectMembership(t *testing.T) {
	router, st := newTestEnv(t)
	seedHost(t, st, "web01", "linux-servers")
	seedHost(t, st, "db01", "db-servers")
	seedUser(t, st, "alice", "", "linux-servers")

	w := doRequest(router, http.MethodGet, "/api/v1/hosts", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var hosts []models.Host
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "web01", hosts[0].Name)
}

func TestHostList_UnknownPrincipalSeesNothing(t *testing.T) {
	router, st := newTestEnv(t)
	seedHost(t, st, "web01", "linux-servers")

	w := doRequest(router, http.MethodGet, "/api/v1/hosts", "ghost", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestHostList_ManagerSeesEverything(t *testing.T) {
	router, st := newTestEnv(t)
	seedHost(t, st, "web01", "linux-servers")
	seedHost(t, st, "db01", "db-servers")
	seedUser(t, st, "boss", "", "managers")

	w := doRequest(router, http.MethodGet, "/api/v1/hosts", "boss", "")
	require.Equal(t, http.StatusOK, w.Code)

	var hosts []models.Host
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hosts))
	assert.Len(t, hosts, 2)
}

func TestHostGet_404Before403(t *testing.T) {
	router, st := newTestEnv(t)
	seedHost(t, st, "web01", "linux-servers")
	seedUser(t, st, "alice", "", "other-group")

	t.Run("missing host is 404 even for unauthorized user", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/hosts/nope", "alice", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("existing but not owned is 403 naming the host", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/hosts/web01", "alice", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "web01")
	})

	t.Run("anonymous is 401 not 403", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/hosts/web01", "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHostGet_InheritedClosure(t *testing.T) {
	router, st := newTestEnv(t)
	ctx := context.Background()

	// Servers
	//   └── Linux   (web01 lives here)
	parentID, err := st.CreateGroup(ctx, &models.Group{Name: "Servers", Kind: models.KindMonitoring})
	require.NoError(t, err)
	_, err = st.CreateGroup(ctx, &models.Group{Name: "Linux", Kind: models.KindMonitoring, ParentID: &parentID})
	require.NoError(t, err)

	seedHost(t, st, "web01", "Linux")
	seedUser(t, st, "alice", "", "Servers")

	// Single-host read expands the closure: membership in Servers
	// grants access to a host owned by the Linux child group.
	w := doRequest(router, http.MethodGet, "/api/v1/hosts/web01", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// The listing filter does NOT expand the closure, so the same host
	// is absent from the list.
	w = doRequest(router, http.MethodGet, "/api/v1/hosts", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestMapAccess_DirectMembershipOnly(t *testing.T) {
	router, st := newTestEnv(t)
	ctx := context.Background()

	_, err := st.CreateGroup(ctx, &models.Group{Name: "noc-maps", Kind: models.KindMap})
	require.NoError(t, err)
	mapID, err := st.CreateMap(ctx, &models.Map{Title: "Backbone"})
	require.NoError(t, err)
	require.NoError(t, st.AddMapToGroup(ctx, mapID, "noc-maps"))

	seedUser(t, st, "alice", "")
	require.NoError(t, st.AddUserToGroup(ctx, "alice", models.KindMap, "noc-maps"))
	seedUser(t, st, "bob", "")

	t.Run("member opens the map", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/maps/"+mapID, "alice", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-member is refused with the map named", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/maps/"+mapID, "bob", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), mapID)
	})

	t.Run("unknown map is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/maps/doesnotexist", "alice", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestManagerGuard(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "boss", "", "managers")
	seedUser(t, st, "alice", "", "linux-servers")

	body := `{"name":"web01"}`

	t.Run("manager creates host", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/hosts", "boss", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("non-manager gets 403", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/hosts", "alice", body)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("anonymous gets 401", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/hosts", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRealmStrippedPrincipal(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "alice", "", "managers")

	w := doRequest(router, http.MethodGet, "/api/v1/auth/me", "alice@EXAMPLE.COM", "")
	require.Equal(t, http.StatusOK, w.Code)

	var me MeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)
	assert.True(t, me.Manager)
	assert.True(t, me.External)
	assert.Contains(t, me.Groups, "managers")
}

func TestLoginFlow(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "alice", "correct horse battery")

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/login", "",
			`{"username":"alice","password":"correct horse battery"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var pair struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
		assert.NotEmpty(t, pair.AccessToken)
		assert.Equal(t, "Bearer", pair.TokenType)

		// Token works as a bearer credential.
		r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)

		// And a session cookie was set.
		found := false
		for _, c := range w.Result().Cookies() {
			if c.Name == "accessd_session" {
				found = true
				assert.True(t, c.HttpOnly)
			}
		}
		assert.True(t, found)
	})

	t.Run("bad password is 401", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/login", "",
			`{"username":"alice","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("last login is recorded", func(t *testing.T) {
		user, err := st.GetUser(context.Background(), "alice")
		require.NoError(t, err)
		require.NotNil(t, user.LastLogin)
		assert.WithinDuration(t, time.Now(), *user.LastLogin, time.Minute)
	})
}

func TestUserSelfAccess(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "alice", "")
	seedUser(t, st, "bob", "")
	seedUser(t, st, "boss", "", "managers")

	t.Run("self read allowed", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/users/alice", "alice", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("reading another user is 403", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/users/bob", "alice", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("manager reads anyone", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/users/bob", "boss", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGroupAdministration(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "boss", "", "managers")

	w := doRequest(router, http.MethodPost, "/api/v1/groups/monitoring/", "boss", `{"name":"linux-servers"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/groups/monitoring/", "boss", `{"name":"linux-servers"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/groups/monitoring/", "boss", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "linux-servers")

	w = doRequest(router, http.MethodPost, "/api/v1/groups/bogus/", "boss", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGroupRename(t *testing.T) {
	router, st := newTestEnv(t)
	seedUser(t, st, "boss", "", "managers")

	w := doRequest(router, http.MethodPost, "/api/v1/groups/monitoring/", "boss", `{"name":"Servers"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodPut, "/api/v1/groups/monitoring/Servers", "boss", `{"name":"Infrastructure"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/Infrastructure"`)

	w = doRequest(router, http.MethodGet, "/api/v1/groups/monitoring/Infrastructure", "boss", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/groups/monitoring/Servers", "boss", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("renaming a missing group is 404", func(t *testing.T) {
		w := doRequest(router, http.MethodPut, "/api/v1/groups/monitoring/nope", "boss", `{"name":"x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminGroupHotReload(t *testing.T) {
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	cfg.API.TokenSecret = testSecret
	secure := false
	cfg.API.SecureCookies = &secure

	evaluator := acl.New(acl.Config{
		AdminGroups: acl.ParseAdminGroups(cfg.Auth.AdminGroups),
	}, st)
	router, err := NewRouter(cfg, st, evaluator)
	require.NoError(t, err)

	seedUser(t, st, "op", "", "operators")

	w := doRequest(router, http.MethodGet, "/api/v1/users", "op", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// Promoting the operators group takes effect without a restart.
	evaluator.SetAdminGroups([]string{"operators"})

	w = doRequest(router, http.MethodGet, "/api/v1/users", "op", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthUnauthenticated(t *testing.T) {
	router, _ := newTestEnv(t)
	w := doRequest(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
