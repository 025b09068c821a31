package idp

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIURL = "https://api.github.com"

// GitHubProvider implements Client for GitHub OAuth.
// GitHub uses OAuth 2.0 (not OIDC) and serves the profile from its REST API.
// GitHub does not require PKCE.
type GitHubProvider struct {
	oauthClient
}

// NewGitHubProvider creates a new GitHub OAuth provider.
// enterpriseDomain selects a GitHub Enterprise Server host; empty means github.com.
func NewGitHubProvider(clientID, clientSecret, redirectURI, enterpriseDomain string, scopes []string) *GitHubProvider {
	endpoint := github.Endpoint
	apiURL := githubAPIURL
	if enterpriseDomain != "" {
		host := strings.TrimSuffix(strings.TrimPrefix(enterpriseDomain, "https://"), "/")
		endpoint = oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("https://%s/login/oauth/authorize", host),
			TokenURL: fmt.Sprintf("https://%s/login/oauth/access_token", host),
		}
		apiURL = fmt.Sprintf("https://%s/api/v3", host)
	}

	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	return &GitHubProvider{
		oauthClient: oauthClient{
			providerType: "github",
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURI,
				Scopes:       scopes,
				Endpoint:     endpoint,
			},
			profileURL: apiURL + "/user",
		},
	}
}
