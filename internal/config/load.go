package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/timespan"
	"github.com/lewis-wow/auth/internal/urlutil"
)

const (
	DefaultBasePath        = "/api/auth"
	DefaultStateTTL        = 10 * time.Minute
	DefaultProviderTimeout = 10 * time.Second
	DefaultSessionTTL      = 30 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultCookieName      = "auth_session"
	DefaultSQLitePath      = "auth.db"
	DefaultFirestoreDB     = "(default)"
	DefaultCollection      = "auth_sessions"
)

// environment holds process-level settings read from the environment.
type environment struct {
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// providerCredentials is the env fallback for a provider's client credentials.
type providerCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	rawConfig, err := decodeRaw(path, data)
	if err != nil {
		return Config{}, err
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	resolved, err := resolveRefs(rawConfig, "")
	if err != nil {
		return Config{}, err
	}

	// Round-trip through JSON so YAML and JSON share the typed decoding,
	// including timespan.Duration parsing.
	normalized, err := json.Marshal(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("normalizing config: %w", err)
	}

	var config Config
	if err := json.Unmarshal(normalized, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnvironment(&config); err != nil {
		return Config{}, err
	}
	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// decodeRaw parses the file into a generic tree. .yaml and .yml are YAML, everything else JSON.
func decodeRaw(path string, data []byte) (map[string]any, error) {
	var rawConfig map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("parsing config JSON: %w", err)
		}
	}
	if rawConfig == nil {
		return nil, fmt.Errorf("config file is empty")
	}
	return rawConfig, nil
}

// resolveRefs replaces every {"$env": "VAR"} object in the tree with the variable's value.
func resolveRefs(value any, path string) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := envRef(v); ok {
			resolved, err := lookupEnv(ref)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", displayPath(path), err)
			}
			return resolved, nil
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, err := resolveRefs(item, joinPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveRefs(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// envRef reports whether m is exactly {"$env": "NAME"}.
func envRef(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m["$env"].(string)
	return name, ok
}

func lookupEnv(name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "config"
	}
	return path
}

// applyEnvironment fills values the environment provides: log settings and
// provider credentials missing from the file.
func applyEnvironment(config *Config) error {
	var settings environment
	if err := env.Parse(&settings); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	if settings.LogLevel != "" {
		config.Log.Level = strings.ToLower(settings.LogLevel)
	}
	if settings.LogFormat != "" {
		config.Log.Format = strings.ToLower(settings.LogFormat)
	}

	for i := range config.Providers {
		p := &config.Providers[i]
		if p.ClientID != "" && p.ClientSecret != "" {
			continue
		}

		var creds providerCredentials
		prefix := EnvPrefix(p.ID)
		if err := env.ParseWithOptions(&creds, env.Options{Prefix: prefix}); err != nil {
			return fmt.Errorf("parsing %s credentials from environment: %w", p.ID, err)
		}
		if p.ClientID == "" && creds.ClientID != "" {
			p.ClientID = creds.ClientID
			log.LogDebugWithFields("config", "Using client id from environment", map[string]any{
				"provider": p.ID,
				"variable": prefix + "CLIENT_ID",
			})
		}
		if p.ClientSecret == "" && creds.ClientSecret != "" {
			p.ClientSecret = Secret(creds.ClientSecret)
			log.LogDebugWithFields("config", "Using client secret from environment", map[string]any{
				"provider": p.ID,
				"variable": prefix + "CLIENT_SECRET",
			})
		}
	}
	return nil
}

// EnvPrefix returns the environment variable prefix for a provider id,
// e.g. "github" -> "GITHUB_", "my-idp" -> "MY_IDP_".
func EnvPrefix(providerID string) string {
	return strings.ToUpper(strings.ReplaceAll(providerID, "-", "_")) + "_"
}

func applyDefaults(config *Config) {
	if config.Server.BasePath == "" {
		config.Server.BasePath = DefaultBasePath
	}
	config.Server.BasePath = strings.TrimSuffix(config.Server.BasePath, "/")
	if config.Server.BasePath == "" {
		config.Server.BasePath = "/"
	}

	if config.Auth.SignOutRedirectURL == "" {
		config.Auth.SignOutRedirectURL = config.Auth.RedirectURL
	}
	if config.Auth.StateTTL == 0 {
		config.Auth.StateTTL = timespan.Duration(DefaultStateTTL)
	}
	if config.Auth.ProviderTimeout == 0 {
		config.Auth.ProviderTimeout = timespan.Duration(DefaultProviderTimeout)
	}

	if config.Session.ExpiresIn == 0 {
		config.Session.ExpiresIn = timespan.Duration(DefaultSessionTTL)
	}
	if config.Session.RenewalThreshold == 0 {
		config.Session.RenewalThreshold = config.Session.ExpiresIn / 2
	}
	if config.Session.Cookie.Name == "" {
		config.Session.Cookie.Name = DefaultCookieName
	}
	if config.Session.Cookie.Path == "" {
		config.Session.Cookie.Path = "/"
	}
	if config.Session.Cookie.SameSite == "" {
		config.Session.Cookie.SameSite = "lax"
	}

	if config.Storage.Type == "" {
		config.Storage.Type = StorageTypeMemory
	}
	if config.Storage.CleanupInterval == 0 {
		config.Storage.CleanupInterval = timespan.Duration(DefaultCleanupInterval)
	}
	switch config.Storage.Type {
	case StorageTypeSQLite:
		if config.Storage.SQLitePath == "" {
			config.Storage.SQLitePath = DefaultSQLitePath
		}
	case StorageTypeFirestore:
		if config.Storage.FirestoreDatabase == "" {
			config.Storage.FirestoreDatabase = DefaultFirestoreDB
		}
		if config.Storage.FirestoreCollection == "" {
			config.Storage.FirestoreCollection = DefaultCollection
		}
	}

	for i := range config.Providers {
		p := &config.Providers[i]
		if p.StateCookieName == "" {
			p.StateCookieName = p.ID + "_oauth_state"
		}
		// A bad baseURL leaves this empty and validation reports it.
		if p.RedirectURI == "" {
			if callback, err := urlutil.CallbackURL(config.Server.BaseURL, config.Server.BasePath, p.ID); err == nil {
				p.RedirectURI = callback
			}
		}
	}
}
