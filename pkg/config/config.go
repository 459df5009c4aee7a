// Package config provides unified configuration for the securest server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (SECUREST_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Provider names accepted in auth.providers.
const (
	ProviderPassword  = "password"
	ProviderToken     = "token"
	ProviderAPIKey    = "apikey"
	ProviderJWT       = "jwt"
	ProviderAnonymous = "anonymous"
)

// Config holds all configuration for the securest server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	UserStore     UserStoreConfig     `yaml:"userstore"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig controls the process logger. SECUREST_DEBUG and
// SECUREST_LOG_LEVEL take precedence over these values.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error, trace; default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories, or "all"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Enabled         bool           `yaml:"enabled"`           // default: true
	AuthHeaderName  string         `yaml:"auth_header_name"`  // default: "Authorization"
	TokenHeaderName string         `yaml:"token_header_name"` // default: "Authentication-Token"
	Providers       []string       `yaml:"providers"`         // attempt order, default: [password, token]
	BypassPaths     []string       `yaml:"bypass_paths"`      // default: /healthz, /readyz, /metrics
	Token           TokenConfig    `yaml:"token"`
	APIKeys         []APIKeyConfig `yaml:"api_keys"`
	JWT             JWTConfig      `yaml:"jwt"`
}

// HasProvider reports whether name is listed in auth.providers.
func (a AuthConfig) HasProvider(name string) bool {
	for _, p := range a.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// TokenConfig holds settings for issued session tokens.
type TokenConfig struct {
	Secret        string `yaml:"secret"`
	SecretFile    string `yaml:"secret_file"`    // _file variant for secret
	ExpirySeconds int    `yaml:"expiry_seconds"` // default: 600
}

// Expiry returns the token lifetime as a duration.
func (t TokenConfig) Expiry() time.Duration {
	return time.Duration(t.ExpirySeconds) * time.Second
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string `yaml:"subject" json:"subject"`
}

// JWTConfig holds settings for externally issued JWTs.
type JWTConfig struct {
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	JWKSURL   string        `yaml:"jwks_url"`
	UserClaim string        `yaml:"user_claim"` // default: "sub"
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // default: 1h
	Leeway    time.Duration `yaml:"leeway"`
}

// UserStoreConfig selects and configures the user store.
type UserStoreConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Users    []UserConfig   `yaml:"users"`
	Postgres PostgresConfig `yaml:"postgres"`
	Cache    CacheConfig    `yaml:"cache"`
}

// UserConfig seeds one user. Password is plaintext and hashed at startup;
// PasswordHash is a bcrypt hash used as is.
type UserConfig struct {
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordFile string   `yaml:"password_file"` // _file variant for password
	PasswordHash string   `yaml:"password_hash"`
	Email        string   `yaml:"email"`
	Active       *bool    `yaml:"active"` // default: true
	Roles        []string `yaml:"roles"`
}

// IsActive reports whether the user is active, defaulting to true.
func (u UserConfig) IsActive() bool {
	return u.Active == nil || *u.Active
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// CacheConfig holds user lookup cache settings.
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis read-through cache. Empty Addr disables it.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	PasswordFile string        `yaml:"password_file"` // _file variant for password
	DB           int           `yaml:"db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	TTL          time.Duration `yaml:"ttl"` // default: 1m
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:         true,
			AuthHeaderName:  "Authorization",
			TokenHeaderName: "Authentication-Token",
			Providers:       []string{ProviderPassword, ProviderToken},
			BypassPaths:     []string{"/healthz", "/readyz", "/metrics"},
			Token: TokenConfig{
				ExpirySeconds: 600,
			},
			JWT: JWTConfig{
				UserClaim: "sub",
				CacheTTL:  time.Hour,
			},
		},
		UserStore: UserStoreConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			Cache: CacheConfig{
				Redis: RedisConfig{
					TTL: time.Minute,
				},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
