package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilo-nms/accessd/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 8090, cfg.API.Port)
	assert.Equal(t, "X-Remote-User", cfg.Auth.RemoteUserHeader)
	assert.Equal(t, "managers", cfg.Auth.AdminGroups)
	assert.Equal(t, "/login", cfg.Auth.LoginPath)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	require.NotNil(t, cfg.API.SecureCookies)
	assert.True(t, *cfg.API.SecureCookies)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
api:
  port: 9999
  token_secret: "`+testSecret+`"
  request_timeout: 45s
auth:
  strip_realm: true
  admin_groups: "managers, operators"
database:
  type: sqlite
  sqlite:
    path: ":memory:"
ldap:
  enabled: true
  ldap_url: "ldap://a ldap://b"
  user_base: "ou=users,dc=example,dc=com"
  user_filter: "(uid=%s)"
  attr_member_of: memberOf
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 9999, cfg.API.Port)
	assert.Equal(t, 45*time.Second, cfg.API.RequestTimeout)
	assert.True(t, cfg.Auth.StripRealm)
	assert.Equal(t, "managers, operators", cfg.Auth.AdminGroups)
	assert.Equal(t, []string{"ldap://a", "ldap://b"}, cfg.LDAP.Servers())
	// defaults still applied for unspecified fields
	assert.Equal(t, "subtree", cfg.LDAP.UserScope)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing token secret",
			content: `
logging:
  level: info
`,
			wantErr: "token_secret",
		},
		{
			name: "bad log level",
			content: `
logging:
  level: verbose
api:
  token_secret: "` + testSecret + `"
`,
			wantErr: "level",
		},
		{
			name: "short token secret",
			content: `
api:
  token_secret: "tooshort"
`,
			wantErr: "token_secret",
		},
		{
			name: "bad internal network",
			content: `
api:
  token_secret: "` + testSecret + `"
auth:
  internal_networks: ["10.0.0.0/8", "not-a-network"]
`,
			wantErr: "internal_networks",
		},
		{
			name: "ldap enabled without user base",
			content: `
api:
  token_secret: "` + testSecret + `"
ldap:
  enabled: true
`,
			wantErr: "user_base",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoadMissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accessd init")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.TokenSecret = testSecret
	cfg.Database.SQLite.Path = "/var/lib/accessd/accessd.db"

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.API.Port, loaded.API.Port)
	assert.Equal(t, cfg.Database.SQLite.Path, loaded.Database.SQLite.Path)
}

func TestWatch(t *testing.T) {
	path := writeConfig(t, `
api:
  token_secret: "`+testSecret+`"
auth:
  admin_groups: "managers"
`)

	updates := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(cfg *Config) {
		updates <- cfg
	}, func(err error) {
		t.Logf("reload error (transient): %v", err)
	}))

	require.NoError(t, os.WriteFile(path, []byte(`
api:
  token_secret: "`+testSecret+`"
auth:
  admin_groups: "managers, operators"
`), 0600))

	deadline := time.After(10 * time.Second)
	for {
		select {
		case cfg := <-updates:
			if cfg.Auth.AdminGroups == "managers, operators" {
				return
			}
		case <-deadline:
			t.Fatal("no configuration reload observed")
		}
	}
}

func TestWatchMissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "nope.yaml"), func(*Config) {}, func(error) {})
	assert.Error(t, err)
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutdown_timeout")
	assert.Contains(t, string(data), "admin_groups")
}
