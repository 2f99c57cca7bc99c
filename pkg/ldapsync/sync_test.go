package ldapsync

import (
	"context"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilo-nms/accessd/pkg/identity"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// fakeConn serves canned search results keyed by base DN and records
// every request it sees.
type fakeConn struct {
	results  map[string]*ldap.SearchResult
	requests []*ldap.SearchRequest
	closed   bool
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.requests = append(c.requests, req)
	if result, ok := c.results[req.BaseDN]; ok {
		return result, nil
	}
	return &ldap.SearchResult{}, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func entry(dn string, attrs map[string][]string) *ldap.Entry {
	e := &ldap.Entry{DN: dn}
	for name, values := range attrs {
		e.Attributes = append(e.Attributes, &ldap.EntryAttribute{Name: name, Values: values})
	}
	return e
}

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return st
}

func baseConfig() Config {
	cfg := Config{
		Enabled:         true,
		URL:             "ldap://directory.example.com",
		UserBase:        "ou=users,dc=example,dc=com",
		UserFilter:      "(uid=%s)",
		AttrMemberOf:    "memberOf",
		NormalizeGroups: true,
	}
	cfg.ApplyDefaults()
	return cfg
}

func johndoeDirectory() *fakeConn {
	return &fakeConn{results: map[string]*ldap.SearchResult{
		"ou=users,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("uid=johndoe,ou=users,dc=example,dc=com", map[string][]string{
				"uid":  {"johndoe"},
				"cn":   {"John Doe"},
				"mail": {"johndoe@example.com"},
				"memberOf": {
					"cn=vigiboard-modification,ou=groups,dc=example,dc=com",
					"cn=vigimap-edition,ou=groups,dc=example,dc=com",
				},
			}),
		}},
		"cn=vigiboard-modification,ou=groups,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("cn=vigiboard-modification,ou=groups,dc=example,dc=com",
				map[string][]string{"cn": {"Vigiboard-Modification"}}),
		}},
		"cn=vigimap-edition,ou=groups,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("cn=vigimap-edition,ou=groups,dc=example,dc=com",
				map[string][]string{"cn": {"vigimap-edition"}}),
		}},
	}}
}

func TestSyncUser_CreatesAccountAndGroups(t *testing.T) {
	st := newTestStore(t)
	conn := johndoeDirectory()
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) { return conn, nil })

	require.NoError(t, engine.SyncUser(context.Background(), "johndoe", ""))
	assert.True(t, conn.closed)

	user, err := st.GetUser(context.Background(), "johndoe")
	require.NoError(t, err)
	assert.Equal(t, "John Doe", user.FullName)
	assert.Equal(t, "johndoe@example.com", user.Email)
	assert.True(t, user.External)

	// normalize_groups lowercases directory names
	assert.ElementsMatch(t, []string{"vigiboard-modification", "vigimap-edition"}, user.GroupNames())
}

func TestSyncUser_Idempotent(t *testing.T) {
	st := newTestStore(t)
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) { return johndoeDirectory(), nil })

	require.NoError(t, engine.SyncUser(context.Background(), "johndoe", ""))
	require.NoError(t, engine.SyncUser(context.Background(), "johndoe", ""))

	user, err := st.GetUser(context.Background(), "johndoe")
	require.NoError(t, err)
	assert.Len(t, user.Groups, 2)
}

func TestSyncUser_RemovesStaleMemberships(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.CreateUser(ctx, &models.User{Username: "johndoe", External: true, Enabled: true})
	require.NoError(t, err)
	_, err = st.CreateGroup(ctx, &models.Group{Name: "legacy-operators", Kind: models.KindMonitoring})
	require.NoError(t, err)
	require.NoError(t, st.AddUserToGroup(ctx, "johndoe", models.KindMonitoring, "legacy-operators"))

	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) { return johndoeDirectory(), nil })
	require.NoError(t, engine.SyncUser(ctx, "johndoe", ""))

	user, err := st.GetUser(ctx, "johndoe")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vigiboard-modification", "vigimap-edition"}, user.GroupNames())
	assert.NotContains(t, user.GroupNames(), "legacy-operators")
}

func TestSyncUser_EscapesFilterMetacharacters(t *testing.T) {
	st := newTestStore(t)
	conn := &fakeConn{results: map[string]*ldap.SearchResult{}}
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) { return conn, nil })

	err := engine.SyncUser(context.Background(), "jo*hn)(doe", "")
	require.ErrorIs(t, err, ErrEntryNotFound)

	require.NotEmpty(t, conn.requests)
	assert.Equal(t, `(uid=jo\2ahn\29\28doe)`, conn.requests[0].Filter)
}

func TestSyncUser_SkipsReferralEntries(t *testing.T) {
	st := newTestStore(t)
	cfg := baseConfig()
	cfg.AttrMemberOf = ""
	cfg.GroupBase = "ou=groups,dc=example,dc=com"
	cfg.GroupFilter = "(member=%s)"
	cfg.UseDN = true

	conn := &fakeConn{results: map[string]*ldap.SearchResult{
		"ou=users,dc=example,dc=com": {Entries: []*ldap.Entry{
			// Referral first: must be skipped, not treated as the user.
			entry("", nil),
			entry("uid=johndoe,ou=users,dc=example,dc=com", map[string][]string{
				"uid": {"johndoe"},
				"cn":  {"John Doe"},
			}),
		}},
		"ou=groups,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("", map[string][]string{"cn": {"phantom"}}),
			entry("cn=operators,ou=groups,dc=example,dc=com",
				map[string][]string{"cn": {"operators"}}),
		}},
	}}
	engine := NewWithDialer(cfg, st, func(string) (Conn, error) { return conn, nil })

	require.NoError(t, engine.SyncUser(context.Background(), "johndoe", ""))

	user, err := st.GetUser(context.Background(), "johndoe")
	require.NoError(t, err)
	assert.Equal(t, []string{"operators"}, user.GroupNames())

	// use_dn substitutes the entry DN into the group filter
	last := conn.requests[len(conn.requests)-1]
	assert.Equal(t, "(member=uid=johndoe,ou=users,dc=example,dc=com)", last.Filter)
}

func TestSyncUser_GroupFilterBuiltFromMemberAttribute(t *testing.T) {
	st := newTestStore(t)
	cfg := baseConfig()
	cfg.AttrMemberOf = ""
	cfg.GroupBase = "ou=groups,dc=example,dc=com"
	cfg.GroupFilter = ""
	cfg.AttrGroupMember = "uniqueMember"
	cfg.UseDN = true

	conn := &fakeConn{results: map[string]*ldap.SearchResult{
		"ou=users,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("uid=johndoe,ou=users,dc=example,dc=com", map[string][]string{
				"uid": {"johndoe"},
				"cn":  {"John Doe"},
			}),
		}},
		"ou=groups,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("cn=operators,ou=groups,dc=example,dc=com",
				map[string][]string{"cn": {"operators"}}),
		}},
	}}
	engine := NewWithDialer(cfg, st, func(string) (Conn, error) { return conn, nil })

	require.NoError(t, engine.SyncUser(context.Background(), "johndoe", ""))

	last := conn.requests[len(conn.requests)-1]
	assert.Equal(t, "(uniqueMember=uid=johndoe,ou=users,dc=example,dc=com)", last.Filter)

	user, err := st.GetUser(context.Background(), "johndoe")
	require.NoError(t, err)
	assert.Equal(t, []string{"operators"}, user.GroupNames())
}

func TestSyncUser_CharsetDecode(t *testing.T) {
	st := newTestStore(t)
	cfg := baseConfig()
	cfg.Charset = "ISO-8859-1"

	// latin-1 bytes for "René Dupont" and "rené@example.com"
	conn := &fakeConn{results: map[string]*ldap.SearchResult{
		"ou=users,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("uid=rene,ou=users,dc=example,dc=com", map[string][]string{
				"uid":      {"rene"},
				"cn":       {"Ren\xe9 Dupont"},
				"mail":     {"ren\xe9@example.com"},
				"memberOf": {"cn=operators,ou=groups,dc=example,dc=com"},
			}),
		}},
		"cn=operators,ou=groups,dc=example,dc=com": {Entries: []*ldap.Entry{
			entry("cn=operators,ou=groups,dc=example,dc=com",
				map[string][]string{"cn": {"operators"}}),
		}},
	}}
	engine := NewWithDialer(cfg, st, func(string) (Conn, error) { return conn, nil })

	require.NoError(t, engine.SyncUser(context.Background(), "rene", ""))

	user, err := st.GetUser(context.Background(), "rene")
	require.NoError(t, err)
	assert.Equal(t, "René Dupont", user.FullName)
	assert.Equal(t, "rené@example.com", user.Email)
}

func TestAddMetadata_TokenGuardPreventsResync(t *testing.T) {
	st := newTestStore(t)
	dials := 0
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) {
		dials++
		return johndoeDirectory(), nil
	})

	id := identity.New("johndoe")
	id.External = true

	require.NoError(t, engine.AddMetadata(context.Background(), id))
	require.NoError(t, engine.AddMetadata(context.Background(), id))
	assert.Equal(t, 1, dials)
}

func TestAddMetadata_SkipsInternalAccounts(t *testing.T) {
	st := newTestStore(t)
	dials := 0
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) {
		dials++
		return johndoeDirectory(), nil
	})

	id := identity.New("alice")
	require.NoError(t, engine.AddMetadata(context.Background(), id))
	assert.Zero(t, dials)
}

func TestAddMetadata_DirectoryFailureIsNonFatal(t *testing.T) {
	st := newTestStore(t)
	engine := NewWithDialer(baseConfig(), st, func(string) (Conn, error) {
		return nil, ErrNoServerAvailable
	})

	id := identity.New("johndoe")
	id.External = true

	err := engine.AddMetadata(context.Background(), id)
	require.ErrorIs(t, err, ErrNoServerAvailable)
	// The stage token is set even on failure so one broken directory
	// round-trip per request is the worst case.
	assert.True(t, id.HasToken(engine.Name()))
}

func TestConfigValidate(t *testing.T) {
	t.Run("disabled config always valid", func(t *testing.T) {
		cfg := Config{}
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing user base", func(t *testing.T) {
		cfg := baseConfig()
		cfg.UserBase = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("filter placeholder count", func(t *testing.T) {
		cfg := baseConfig()
		cfg.UserFilter = "(uid=johndoe)"
		assert.Error(t, cfg.Validate())
	})

	t.Run("member attribute required without group filter", func(t *testing.T) {
		cfg := baseConfig()
		cfg.AttrMemberOf = ""
		cfg.GroupBase = "ou=groups,dc=example,dc=com"
		cfg.AttrGroupMember = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad scope", func(t *testing.T) {
		cfg := baseConfig()
		cfg.UserScope = "everything"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad reqcert", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TLSReqCert = "maybe"
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		cfg := baseConfig()
		require.NoError(t, cfg.Validate())
	})
}

func TestServers(t *testing.T) {
	cfg := Config{URL: "ldap://primary ldaps://secondary:636"}
	assert.Equal(t, []string{"ldap://primary", "ldaps://secondary:636"}, cfg.Servers())
}
