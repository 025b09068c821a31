package config

import (
	"encoding/json"

	"github.com/lewis-wow/auth/internal/timespan"
)

// Version is the config schema version this build understands.
const Version = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderType selects the identity provider binding.
type ProviderType string

const (
	ProviderTypeGitHub ProviderType = "github"
	ProviderTypeGoogle ProviderType = "google"
	ProviderTypeOIDC   ProviderType = "oidc"
	ProviderTypeAzure  ProviderType = "azure"
)

// StorageType selects the session store adapter.
type StorageType string

const (
	StorageTypeMemory    StorageType = "memory"
	StorageTypeSQLite    StorageType = "sqlite"
	StorageTypePostgres  StorageType = "postgres"
	StorageTypeFirestore StorageType = "firestore"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string   `json:"addr" validate:"required"`
	BaseURL        string   `json:"baseURL" validate:"required,url"`
	BasePath       string   `json:"basePath" validate:"omitempty,startswith=/"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" validate:"dive,url"`
}

// AuthConfig configures the sign-in flow.
type AuthConfig struct {
	// RedirectURL is where the browser lands after a successful sign-in.
	RedirectURL string `json:"redirectUrl" validate:"required"`
	// SignOutRedirectURL is where the browser lands after sign-out. Defaults to RedirectURL.
	SignOutRedirectURL string            `json:"signOutRedirectUrl,omitempty"`
	StateTTL           timespan.Duration `json:"stateTtl,omitempty"`
	ProviderTimeout    timespan.Duration `json:"providerTimeout,omitempty"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	SameSite string `json:"sameSite,omitempty" validate:"omitempty,oneof=lax strict none"`
	// Secure defaults to true in production.
	Secure *bool `json:"secure,omitempty"`
	// Expires false makes the cookie last for the browser session only.
	Expires *bool `json:"expires,omitempty"`
}

// SessionConfig configures session lifetime and transport.
type SessionConfig struct {
	ExpiresIn timespan.Duration `json:"expiresIn,omitempty"`
	// RenewalThreshold defaults to half of ExpiresIn.
	RenewalThreshold timespan.Duration `json:"renewalThreshold,omitempty"`
	Cookie           CookieConfig      `json:"cookie"`
}

// StorageConfig selects and configures the session store.
type StorageConfig struct {
	Type                StorageType       `json:"type" validate:"required,oneof=memory sqlite postgres firestore"`
	CleanupInterval     timespan.Duration `json:"cleanupInterval,omitempty"`
	SQLitePath          string            `json:"sqlitePath,omitempty"`
	PostgresDSN         Secret            `json:"postgresDsn,omitempty"`
	GCPProject          string            `json:"gcpProject,omitempty"`
	FirestoreDatabase   string            `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string            `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret            `json:"encryptionKey,omitempty"`
}

// ProviderConfig registers one identity provider.
// ClientID and ClientSecret fall back to <ID>_CLIENT_ID and <ID>_CLIENT_SECRET.
type ProviderConfig struct {
	ID           string       `json:"id" validate:"required"`
	Type         ProviderType `json:"type" validate:"required,oneof=github google oidc azure"`
	ClientID     string       `json:"clientId,omitempty"`
	ClientSecret Secret       `json:"clientSecret,omitempty"`
	RedirectURI  string       `json:"redirectUri" validate:"required,url"`
	Scopes       []string     `json:"scopes,omitempty"`

	// PKCE overrides the provider type's default.
	PKCE *bool `json:"pkce,omitempty"`
	// StateCookieName defaults to <id>_oauth_state.
	StateCookieName string `json:"stateCookieName,omitempty"`
	// ProfileURL overrides the endpoint the profile is fetched from.
	ProfileURL string `json:"profileUrl,omitempty" validate:"omitempty,url"`

	// GitHub
	EnterpriseDomain string `json:"enterpriseDomain,omitempty"`

	// Azure
	TenantID string `json:"tenantId,omitempty"`

	// OIDC
	DiscoveryURL     string `json:"discoveryUrl,omitempty" validate:"omitempty,url"`
	AuthorizationURL string `json:"authorizationUrl,omitempty" validate:"omitempty,url"`
	TokenURL         string `json:"tokenUrl,omitempty" validate:"omitempty,url"`
	UserInfoURL      string `json:"userInfoUrl,omitempty" validate:"omitempty,url"`
}

// LogConfig configures logging. LOG_LEVEL and LOG_FORMAT take precedence.
type LogConfig struct {
	Level  string `json:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version   string           `json:"version" validate:"required"`
	Server    ServerConfig     `json:"server"`
	Auth      AuthConfig       `json:"auth"`
	Session   SessionConfig    `json:"session"`
	Storage   StorageConfig    `json:"storage"`
	Log       LogConfig        `json:"log"`
	Providers []ProviderConfig `json:"providers" validate:"required,min=1,dive"`
}
