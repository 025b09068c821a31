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

func TestGoogleProvider_AuthURL(t *testing.T) {
	provider := NewGoogleProvider("client-id", "client-secret", "https://example.com/callback", nil)
	assert.Equal(t, "google", provider.Type())
	assert.True(t, provider.PKCE())

	verifier := oauth2.GenerateVerifier()
	authURL := provider.AuthURL("test-state", verifier)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "accounts.google.com", parsed.Host)
	assert.Equal(t, "test-state", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), q.Get("code_challenge"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
}

func TestGoogleProvider_ExchangeCodeSendsVerifier(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.test",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
		require.NoError(t, err)
	}))
	defer server.Close()

	provider := NewGoogleProvider("client-id", "client-secret", "https://example.com/callback", nil)
	provider.config.Endpoint = oauth2.Endpoint{
		AuthURL:   server.URL + "/auth",
		TokenURL:  server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}

	token, err := provider.ExchangeCode(context.Background(), "the-code", "the-verifier")
	require.NoError(t, err)
	assert.Equal(t, "ya29.test", token.AccessToken)
	assert.Equal(t, "the-verifier", form.Get("code_verifier"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
}
