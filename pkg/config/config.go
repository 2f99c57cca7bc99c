// Package config loads and validates the accessd configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vigilo-nms/accessd/pkg/ldapsync"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// Config represents the accessd configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ACCESSD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the backing store (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// API contains the HTTP API server configuration.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Auth configures identity resolution: the external pre-auth branch,
	// the admin groups, and the login flow.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// LDAP configures directory synchronization for external users.
	LDAP ldapsync.Config `mapstructure:"ldap" yaml:"ldap"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// APIConfig contains HTTP API server configuration.
type APIConfig struct {
	// Host is the listen address. Default: 127.0.0.1 (the service is
	// meant to sit behind the front-end proxy).
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default: 8090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds each request through the router middleware.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// TokenSecret signs session tokens. Required, minimum 32 characters.
	TokenSecret string `mapstructure:"token_secret" validate:"required,min=32" yaml:"token_secret"`

	// TokenIssuer is the issuer claim. Default: "accessd".
	TokenIssuer string `mapstructure:"token_issuer" yaml:"token_issuer"`

	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration"`

	// SecureCookies marks the session cookie Secure. Default: true;
	// disable only for plain-HTTP development setups.
	SecureCookies *bool `mapstructure:"secure_cookies" yaml:"secure_cookies"`
}

// AuthConfig configures identity resolution.
type AuthConfig struct {
	// RemoteUserHeader names the trusted header carrying the principal
	// verified by the front end. Empty disables the external branch.
	// The front end MUST strip this header from client requests.
	RemoteUserHeader string `mapstructure:"remote_user_header" yaml:"remote_user_header"`

	// CCacheHeader names the header carrying the delegated Kerberos
	// credential cache path, for GSSAPI directory binds.
	CCacheHeader string `mapstructure:"ccache_header" yaml:"ccache_header,omitempty"`

	// StripRealm removes "@REALM" suffixes from external principals.
	StripRealm bool `mapstructure:"strip_realm" yaml:"strip_realm"`

	// AdminGroups is a comma-separated list of group names whose members
	// are managers. Managers bypass all entity-level filtering.
	AdminGroups string `mapstructure:"admin_groups" yaml:"admin_groups"`

	// LoginPath is where browser clients are sent to authenticate.
	LoginPath string `mapstructure:"login_path" yaml:"login_path"`

	// APIPrefixes and StaticPrefixes drive request classification.
	APIPrefixes    []string `mapstructure:"api_prefixes" yaml:"api_prefixes,omitempty"`
	StaticPrefixes []string `mapstructure:"static_prefixes" yaml:"static_prefixes,omitempty"`

	// InternalNetworks lists CIDR ranges whose API requests classify as
	// internal service-to-service traffic (correlator, collectors).
	InternalNetworks []string `mapstructure:"internal_networks" validate:"omitempty,dive,cidr" yaml:"internal_networks,omitempty"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the metrics endpoint path. Default: /metrics.
	Path string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ACCESSD_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  accessd init\n\n"+
				"Or specify a custom config file:\n"+
				"  accessd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  accessd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file carries the token secret and bind credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ACCESSD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ACCESSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// durationDecodeHook converts strings like "30s" or "5m" to
// time.Duration when unmarshalling.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, then ~/.config, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "accessd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "accessd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
