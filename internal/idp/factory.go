package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lewis-wow/auth/internal/config"
)

// NewProvider creates a Client based on the ProviderConfig.
// httpClient is used for OIDC discovery and may be nil.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (Client, error) {
	switch cfg.Type {
	case config.ProviderTypeGoogle:
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
		), nil

	case config.ProviderTypeGitHub:
		return NewGitHubProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.EnterpriseDomain,
			cfg.Scopes,
		), nil

	case config.ProviderTypeAzure:
		return NewAzureProvider(
			ctx,
			cfg.TenantID,
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			httpClient,
		)

	case config.ProviderTypeOIDC:
		pkce := true
		if cfg.PKCE != nil {
			pkce = *cfg.PKCE
		}
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
			PKCE:             pkce,
			HTTPClient:       httpClient,
		})

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
