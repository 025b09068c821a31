package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGitHubProvider_Type(t *testing.T) {
	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback", "", nil)
	assert.Equal(t, "github", provider.Type())
	assert.False(t, provider.PKCE())
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback", "", nil)

	authURL := provider.AuthURL("test-state", "")

	assert.Regexp(t, `^https://github\.com/login/oauth/authorize\?.*state=`, authURL)
	assert.Contains(t, authURL, "state=test-state")
	assert.Contains(t, authURL, "client_id=client-id")
	assert.NotContains(t, authURL, "code_challenge")
}

func TestGitHubProvider_EnterpriseDomain(t *testing.T) {
	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback", "https://github.example.com/", nil)

	authURL := provider.AuthURL("test-state", "")

	assert.Regexp(t, `^https://github\.example\.com/login/oauth/authorize\?`, authURL)
	assert.Equal(t, "https://github.example.com/api/v3/user", provider.ProfileURL())
}

func TestGitHubProvider_ExchangeCode(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login/oauth/access_token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_test",
			"token_type":   "bearer",
			"scope":        "read:user,user:email",
		})
		require.NoError(t, err)
	}))
	defer server.Close()

	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback", "", nil)
	provider.config.Endpoint = oauth2.Endpoint{
		AuthURL:  server.URL + "/login/oauth/authorize",
		TokenURL: server.URL + "/login/oauth/access_token",
	}

	token, err := provider.ExchangeCode(context.Background(), "the-code", "")
	require.NoError(t, err)
	assert.Equal(t, "gho_test", token.AccessToken)
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Empty(t, form.Get("code_verifier"))
}

func TestGitHubProvider_ExchangeCode_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback", "", nil)
	provider.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL + "/token"}

	_, err := provider.ExchangeCode(context.Background(), "bad-code", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
