package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider (e.g., "oidc", "azure").
	ProviderType string

	// Discovery URL for OIDC discovery (optional if endpoints are provided directly).
	DiscoveryURL string

	// Direct endpoint configuration (used if DiscoveryURL is not set).
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	// OAuth client configuration.
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// PKCE enables S256 code challenges by default.
	PKCE bool

	// HTTPClient is used for discovery. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// OIDCProvider implements Client for OIDC-compliant identity providers.
type OIDCProvider struct {
	oauthClient
	issuer string
}

// oidcDiscoveryDocument represents the OIDC discovery document.
type oidcDiscoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	Issuer                string `json:"issuer"`
}

// NewOIDCProvider creates a new OIDC provider.
// Discovery runs once here; endpoints are fixed for the provider's lifetime.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	var authURL, tokenURL, userInfoURL, issuer string

	if cfg.DiscoveryURL != "" {
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		discovery, err := fetchOIDCDiscovery(ctx, httpClient, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		authURL = discovery.AuthorizationEndpoint
		tokenURL = discovery.TokenEndpoint
		userInfoURL = discovery.UserInfoEndpoint
		issuer = discovery.Issuer
	} else {
		if cfg.AuthorizationURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
			return nil, fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
		}
		authURL = cfg.AuthorizationURL
		tokenURL = cfg.TokenURL
		userInfoURL = cfg.UserInfoURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	return &OIDCProvider{
		oauthClient: oauthClient{
			providerType: providerType,
			config: oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURI,
				Scopes:       scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  authURL,
					TokenURL: tokenURL,
				},
			},
			profileURL: userInfoURL,
			pkce:       cfg.PKCE,
		},
		issuer: issuer,
	}, nil
}

// Issuer returns the issuer advertised by discovery, if any.
func (p *OIDCProvider) Issuer() string {
	return p.issuer
}

func fetchOIDCDiscovery(ctx context.Context, client *http.Client, discoveryURL string) (*oidcDiscoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}

	return &discovery, nil
}
