package idp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewis-wow/auth/internal/config"
)

func TestNewProvider(t *testing.T) {
	noPKCE := false

	tests := []struct {
		name        string
		cfg         config.ProviderConfig
		wantType    string
		wantPKCE    bool
		wantProfile string
		wantErr     bool
		errContains string
	}{
		{
			name: "google_provider",
			cfg: config.ProviderConfig{
				Type:         config.ProviderTypeGoogle,
				ClientID:     "test-client-id",
				ClientSecret: config.Secret("test-client-secret"),
				RedirectURI:  "https://example.com/callback",
			},
			wantType:    "google",
			wantPKCE:    true,
			wantProfile: "https://openidconnect.googleapis.com/v1/userinfo",
		},
		{
			name: "github_provider",
			cfg: config.ProviderConfig{
				Type:         config.ProviderTypeGitHub,
				ClientID:     "test-client-id",
				ClientSecret: config.Secret("test-client-secret"),
				RedirectURI:  "https://example.com/callback",
			},
			wantType:    "github",
			wantPKCE:    false,
			wantProfile: "https://api.github.com/user",
		},
		{
			name: "github_enterprise",
			cfg: config.ProviderConfig{
				Type:             config.ProviderTypeGitHub,
				ClientID:         "test-client-id",
				ClientSecret:     config.Secret("test-client-secret"),
				RedirectURI:      "https://example.com/callback",
				EnterpriseDomain: "github.example.com",
			},
			wantType:    "github",
			wantProfile: "https://github.example.com/api/v3/user",
		},
		{
			name: "oidc_direct_endpoints_without_pkce",
			cfg: config.ProviderConfig{
				Type:             config.ProviderTypeOIDC,
				ClientID:         "test-client-id",
				ClientSecret:     config.Secret("test-client-secret"),
				RedirectURI:      "https://example.com/callback",
				AuthorizationURL: "https://idp.example.com/authorize",
				TokenURL:         "https://idp.example.com/token",
				UserInfoURL:      "https://idp.example.com/userinfo",
				PKCE:             &noPKCE,
			},
			wantType:    "oidc",
			wantPKCE:    false,
			wantProfile: "https://idp.example.com/userinfo",
		},
		{
			name: "azure_provider_missing_tenant",
			cfg: config.ProviderConfig{
				Type:         config.ProviderTypeAzure,
				ClientID:     "test-client-id",
				ClientSecret: config.Secret("test-client-secret"),
				RedirectURI:  "https://example.com/callback",
			},
			wantErr:     true,
			errContains: "tenantId is required",
		},
		{
			name: "oidc_provider_missing_endpoints",
			cfg: config.ProviderConfig{
				Type:         config.ProviderTypeOIDC,
				ClientID:     "test-client-id",
				ClientSecret: config.Secret("test-client-secret"),
				RedirectURI:  "https://example.com/callback",
			},
			wantErr:     true,
			errContains: "discoveryUrl or all endpoints",
		},
		{
			name: "unknown_provider",
			cfg: config.ProviderConfig{
				Type: "okta",
			},
			wantErr:     true,
			errContains: "unknown provider type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), tt.cfg, nil)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantType, provider.Type())
			assert.Equal(t, tt.wantPKCE, provider.PKCE())
			assert.Equal(t, tt.wantProfile, provider.ProfileURL())
		})
	}
}
