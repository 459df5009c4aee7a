package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/securest/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, SECUREST_CONFIG env, ./config.yaml, /etc/securest/config.yaml)
//  3. SECUREST_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. SECUREST_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/securest/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("SECUREST_CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/securest/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps SECUREST_* environment variables to config fields.
// Malformed numeric or boolean values are reported instead of ignored.
func applyEnvOverrides(cfg *Config) error {
	var err error
	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", name, perr)
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		v := os.Getenv(name)
		if v == "" || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("%s: %w", name, perr)
			return
		}
		*dst = b
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setInt("SECUREST_PORT", &cfg.Server.Port)
	setBool("SECUREST_AUTH_ENABLED", &cfg.Auth.Enabled)
	setString("SECUREST_AUTH_HEADER_NAME", &cfg.Auth.AuthHeaderName)
	setString("SECUREST_TOKEN_HEADER_NAME", &cfg.Auth.TokenHeaderName)
	setString("SECUREST_TOKEN_SECRET", &cfg.Auth.Token.Secret)
	setInt("SECUREST_TOKEN_EXPIRY_SECONDS", &cfg.Auth.Token.ExpirySeconds)
	setString("SECUREST_JWT_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	setString("SECUREST_USERSTORE", &cfg.UserStore.Type)
	setString("SECUREST_POSTGRES_DSN", &cfg.UserStore.Postgres.DSN)
	setString("SECUREST_REDIS_ADDR", &cfg.UserStore.Cache.Redis.Addr)
	setString("SECUREST_REDIS_PASSWORD", &cfg.UserStore.Cache.Redis.Password)
	setBool("SECUREST_METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)

	if v := os.Getenv("SECUREST_AUTH_PROVIDERS"); v != "" {
		cfg.Auth.Providers = splitList(v)
	}
	if v := os.Getenv("SECUREST_BYPASS_PATHS"); v != "" {
		cfg.Auth.BypassPaths = splitList(v)
	}

	// SECUREST_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("SECUREST_API_KEYS"); v != "" && err == nil {
		keys, perr := parseAPIKeysJSON(v)
		if perr != nil {
			return fmt.Errorf("SECUREST_API_KEYS: %w", perr)
		}
		cfg.Auth.APIKeys = keys
	}

	return err
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// An explicit value always wins over its _file variant.
func resolveFileReferences(cfg *Config) error {
	resolve := func(field, file string, dst *string) error {
		if file == "" || *dst != "" {
			return nil
		}
		val, err := readSecretFile(file)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = val
		return nil
	}

	if err := resolve("auth.token.secret_file", cfg.Auth.Token.SecretFile, &cfg.Auth.Token.Secret); err != nil {
		return err
	}
	if err := resolve("userstore.postgres.dsn_file", cfg.UserStore.Postgres.DSNFile, &cfg.UserStore.Postgres.DSN); err != nil {
		return err
	}
	if err := resolve("userstore.cache.redis.password_file", cfg.UserStore.Cache.Redis.PasswordFile, &cfg.UserStore.Cache.Redis.Password); err != nil {
		return err
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if err := resolve(fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key); err != nil {
			return err
		}
	}
	for i := range cfg.UserStore.Users {
		u := &cfg.UserStore.Users[i]
		if err := resolve(fmt.Sprintf("userstore.users[%d].password_file", i), u.PasswordFile, &u.Password); err != nil {
			return err
		}
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
