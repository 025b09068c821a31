package config

// DefaultTemplate returns the starter config written by -config-init.
// Secrets are env references so the file can be committed.
func DefaultTemplate() map[string]any {
	return map[string]any{
		"version": Version,
		"server": map[string]any{
			"addr":           ":8080",
			"baseURL":        "https://auth.yourcompany.com",
			"basePath":       DefaultBasePath,
			"allowedOrigins": []string{"https://app.yourcompany.com"},
		},
		"auth": map[string]any{
			"redirectUrl":        "https://app.yourcompany.com/",
			"signOutRedirectUrl": "https://app.yourcompany.com/signed-out",
			"stateTtl":           "10m",
			"providerTimeout":    "10s",
		},
		"session": map[string]any{
			"expiresIn":        "30d",
			"renewalThreshold": "15d",
			"cookie": map[string]any{
				"name":     DefaultCookieName,
				"path":     "/",
				"sameSite": "lax",
			},
		},
		"storage": map[string]any{
			"type":            string(StorageTypeSQLite),
			"sqlitePath":      DefaultSQLitePath,
			"cleanupInterval": "1h",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"providers": []any{
			map[string]any{
				"id":           "github",
				"type":         string(ProviderTypeGitHub),
				"clientId":     map[string]string{"$env": "GITHUB_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "GITHUB_CLIENT_SECRET"},
				"redirectUri":  "https://auth.yourcompany.com/api/auth/callback/github",
			},
			map[string]any{
				"id":           "google",
				"type":         string(ProviderTypeGoogle),
				"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
				"redirectUri":  "https://auth.yourcompany.com/api/auth/callback/google",
			},
		},
	}
}
