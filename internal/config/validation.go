package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/timespan"
)

var (
	providerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	bashStyleRegex    = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := newValidator().Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describeFieldError(fieldErrs[0])
		}
		return err
	}

	if config.Session.ExpiresIn <= 0 {
		return fmt.Errorf("session.expiresIn must be positive")
	}
	if config.Session.RenewalThreshold < 0 || config.Session.RenewalThreshold > config.Session.ExpiresIn {
		return fmt.Errorf("session.renewalThreshold must be between 0 and session.expiresIn")
	}
	if config.Auth.StateTTL <= 0 {
		return fmt.Errorf("auth.stateTtl must be positive")
	}
	if config.Auth.ProviderTimeout <= 0 {
		return fmt.Errorf("auth.providerTimeout must be positive")
	}
	if config.Storage.CleanupInterval <= 0 {
		return fmt.Errorf("storage.cleanupInterval must be positive")
	}
	if config.Storage.CleanupInterval > config.Session.ExpiresIn {
		log.LogWarn("Session cleanup interval is greater than session lifetime")
	}

	if config.Session.Cookie.SameSite == "none" && config.Session.Cookie.Secure != nil && !*config.Session.Cookie.Secure {
		return fmt.Errorf("session.cookie.sameSite none requires a secure cookie")
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	seen := make(map[string]bool, len(config.Providers))
	for i := range config.Providers {
		p := &config.Providers[i]
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = true
		if err := validateProviderConfig(p); err != nil {
			return fmt.Errorf("provider %s: %w", p.ID, err)
		}
	}

	return nil
}

func describeFieldError(fe validator.FieldError) error {
	// Namespace starts with the root struct name, which is noise for users.
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", path)
	case "min":
		return fmt.Errorf("%s must contain at least %s item(s)", path, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", path, fe.Param(), fe.Value())
	case "url":
		return fmt.Errorf("%s must be an absolute URL, got %q", path, fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", path, fe.Tag())
	}
}

func validateStorageConfig(storage *StorageConfig) error {
	switch storage.Type {
	case StorageTypeSQLite:
		if storage.SQLitePath == "" {
			return fmt.Errorf("sqlitePath is required when using sqlite storage")
		}
	case StorageTypePostgres:
		if storage.PostgresDSN == "" {
			return fmt.Errorf("postgresDsn is required when using postgres storage")
		}
	case StorageTypeFirestore:
		if storage.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
		if storage.EncryptionKey == "" {
			return fmt.Errorf("encryptionKey is required when using firestore storage")
		}
	}
	if storage.EncryptionKey != "" && len(storage.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(storage.EncryptionKey))
	}
	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if !providerIDPattern.MatchString(p.ID) {
		return fmt.Errorf("id must match %s", providerIDPattern)
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required (or set %sCLIENT_ID)", EnvPrefix(p.ID))
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required (or set %sCLIENT_SECRET)", EnvPrefix(p.ID))
	}

	switch p.Type {
	case ProviderTypeAzure:
		if p.TenantID == "" {
			return fmt.Errorf("tenantId is required for azure providers")
		}
	case ProviderTypeOIDC:
		if p.DiscoveryURL == "" && (p.AuthorizationURL == "" || p.TokenURL == "" || p.UserInfoURL == "") {
			return fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
		}
	}
	return nil
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	rawConfig, err := decodeRaw(path, data)
	if err != nil {
		result.addError("", "%v", err)
		return result, nil
	}

	// Check for bash-style syntax
	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if !strings.HasPrefix(version, Version) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, Version)
	}

	validateDurations(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateProvidersStructure(rawConfig, result)

	return result, nil
}

// durationFields lists every config path holding a timespan.
var durationFields = [][2]string{
	{"auth", "stateTtl"},
	{"auth", "providerTimeout"},
	{"session", "expiresIn"},
	{"session", "renewalThreshold"},
	{"storage", "cleanupInterval"},
}

func validateDurations(rawConfig map[string]any, result *ValidationResult) {
	for _, field := range durationFields {
		section, ok := rawConfig[field[0]].(map[string]any)
		if !ok {
			continue
		}
		value, ok := section[field[1]]
		if !ok {
			continue
		}
		path := field[0] + "." + field[1]
		switch v := value.(type) {
		case string:
			if _, err := timespan.Parse(v); err != nil {
				result.addError(path, "invalid duration %q. Hint: use a number followed by ms, s, m, h, d or w (e.g. \"15m\")", v)
			}
		case map[string]any:
			if _, isRef := envRef(v); isRef {
				continue
			}
			unit, _ := v["unit"].(string)
			n, isNum := v["value"].(float64)
			if !isNum {
				if i, isInt := v["value"].(int); isInt {
					n, isNum = float64(i), true
				}
			}
			if !isNum || n < 0 || n != float64(int(n)) {
				result.addError(path, "duration value must be a non-negative integer")
				continue
			}
			if _, err := (timespan.TimeSpan{Value: int(n), Unit: unit}).Duration(); err != nil {
				result.addError(path, "invalid duration unit %q", unit)
			}
		default:
			result.addError(path, "duration must be a string like \"15m\" or {\"value\": 15, \"unit\": \"m\"}")
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}

	storageType, _ := storage["type"].(string)
	switch StorageType(storageType) {
	case StorageTypeMemory, StorageTypeSQLite:
	case StorageTypePostgres:
		dsn, ok := storage["postgresDsn"]
		if !ok {
			result.addError("storage.postgresDsn", "postgresDsn is required when using postgres storage")
		} else if err := validateEnvVarReference(dsn, "postgresDsn", "storage.postgresDsn"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	case StorageTypeFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	case "":
		result.addError("storage.type", "storage type is required. Hint: use \"memory\" for development")
	default:
		result.addError("storage.type", "unknown storage type '%s' - use memory, sqlite, postgres or firestore", storageType)
	}

	if key, ok := storage["encryptionKey"]; ok {
		if err := validateEnvVarReference(key, "encryptionKey", "storage.encryptionKey"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else if StorageType(storageType) == StorageTypeFirestore {
		result.addError("storage.encryptionKey", "encryptionKey is required when using firestore storage")
	}
}

func validateProvidersStructure(rawConfig map[string]any, result *ValidationResult) {
	providers, ok := rawConfig["providers"].([]any)
	if !ok || len(providers) == 0 {
		result.addError("providers", "at least one provider is required")
		return
	}

	server, _ := rawConfig["server"].(map[string]any)
	_, hasBaseURL := server["baseURL"]

	seen := make(map[string]bool)
	for i, item := range providers {
		path := fmt.Sprintf("providers[%d]", i)
		provider, ok := item.(map[string]any)
		if !ok {
			result.addError(path, "provider must be an object")
			continue
		}

		id, _ := provider["id"].(string)
		switch {
		case id == "":
			result.addError(path+".id", "provider id is required")
		case !providerIDPattern.MatchString(id):
			result.addError(path+".id", "provider id '%s' must match %s", id, providerIDPattern)
		case seen[id]:
			result.addError(path+".id", "duplicate provider id '%s'", id)
		}
		seen[id] = true

		providerType, _ := provider["type"].(string)
		switch ProviderType(providerType) {
		case ProviderTypeGitHub, ProviderTypeGoogle:
		case ProviderTypeAzure:
			if _, ok := provider["tenantId"]; !ok {
				result.addError(path+".tenantId", "tenantId is required for azure providers")
			}
		case ProviderTypeOIDC:
			_, hasDiscovery := provider["discoveryUrl"]
			_, hasAuth := provider["authorizationUrl"]
			_, hasToken := provider["tokenUrl"]
			_, hasUserInfo := provider["userInfoUrl"]
			if !hasDiscovery && !(hasAuth && hasToken && hasUserInfo) {
				result.addError(path, "oidc providers need discoveryUrl or all of authorizationUrl, tokenUrl, userInfoUrl")
			}
		default:
			result.addError(path+".type", "unknown provider type '%s' - use github, google, oidc or azure", providerType)
		}

		if _, ok := provider["redirectUri"]; !ok && !hasBaseURL {
			result.addError(path+".redirectUri", "redirectUri is required when server.baseURL is not set")
		}

		if secret, ok := provider["clientSecret"]; ok {
			if err := validateEnvVarReference(secret, "clientSecret", path+".clientSecret"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		} else if id != "" {
			result.addWarning(path+".clientSecret", "clientSecret not set; %sCLIENT_SECRET must be present at startup", EnvPrefix(id))
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		// Check if it looks like a bash-style env var
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			varName := matches[1]
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, varName),
			}
		}
		// Plain string value
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		// Valid env reference
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			checkBashStyleSyntax(val, joinPath(path, key), result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
