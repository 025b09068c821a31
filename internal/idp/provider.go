package idp

import (
	"context"
	"slices"

	"golang.org/x/oauth2"
)

// Client abstracts the OAuth2 protocol operations of one identity provider.
// Profile retrieval is left to the caller, which GETs ProfileURL with the access token.
type Client interface {
	// Type returns the provider type identifier (e.g., "google", "github", "oidc").
	Type() string

	// AuthURL builds the authorization URL. A non-empty verifier adds an S256 code challenge.
	AuthURL(state, verifier string) string

	// ExchangeCode exchanges an authorization code for tokens.
	// A non-empty verifier is sent as code_verifier.
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)

	// ProfileURL is the endpoint returning the signed-in user's profile.
	ProfileURL() string

	// PKCE reports whether the provider uses PKCE unless configured otherwise.
	PKCE() bool
}

// oauthClient carries the oauth2.Config plumbing shared by every provider.
type oauthClient struct {
	providerType string
	config       oauth2.Config
	authOptions  []oauth2.AuthCodeOption
	profileURL   string
	pkce         bool
}

// Type returns the provider type.
func (c *oauthClient) Type() string {
	return c.providerType
}

// AuthURL generates the authorization URL.
func (c *oauthClient) AuthURL(state, verifier string) string {
	opts := c.authOptions
	if verifier != "" {
		opts = append(slices.Clip(opts), oauth2.S256ChallengeOption(verifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *oauthClient) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	return c.config.Exchange(ctx, code, opts...)
}

// ProfileURL returns the profile endpoint.
func (c *oauthClient) ProfileURL() string {
	return c.profileURL
}

// PKCE reports the provider's PKCE default.
func (c *oauthClient) PKCE() bool {
	return c.pkce
}
