package idp

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider implements Client for Google OAuth.
// Google sign-in uses PKCE and the OIDC userinfo endpoint.
type GoogleProvider struct {
	oauthClient
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string, scopes []string) *GoogleProvider {
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	return &GoogleProvider{
		oauthClient: oauthClient{
			providerType: "google",
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURI,
				Scopes:       scopes,
				Endpoint:     google.Endpoint,
			},
			profileURL: "https://openidconnect.googleapis.com/v1/userinfo",
			pkce:       true,
		},
	}
}
