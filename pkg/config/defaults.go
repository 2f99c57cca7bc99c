package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced, explicit values preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.Database.ApplyDefaults()
	applyAPIDefaults(&cfg.API)
	applyAuthDefaults(&cfg.Auth)
	cfg.LDAP.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.TokenIssuer == "" {
		cfg.TokenIssuer = "accessd"
	}
	if cfg.AccessTokenDuration == 0 {
		cfg.AccessTokenDuration = 15 * time.Minute
	}
	if cfg.RefreshTokenDuration == 0 {
		cfg.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if cfg.SecureCookies == nil {
		secure := true
		cfg.SecureCookies = &secure
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.RemoteUserHeader == "" {
		cfg.RemoteUserHeader = "X-Remote-User"
	}
	if cfg.AdminGroups == "" {
		cfg.AdminGroups = "managers"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if len(cfg.APIPrefixes) == 0 {
		cfg.APIPrefixes = []string{"/api/"}
	}
	if len(cfg.StaticPrefixes) == 0 {
		cfg.StaticPrefixes = []string{"/static/"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Useful for generating sample configuration files and for tests. The
// token secret has no default and must be set before the result
// validates.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
