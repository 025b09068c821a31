package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewis-wow/auth/internal/authflow"
	"github.com/lewis-wow/auth/internal/idp"
	"github.com/lewis-wow/auth/internal/metrics"
	"github.com/lewis-wow/auth/internal/oauth"
	"github.com/lewis-wow/auth/internal/session"
	"github.com/lewis-wow/auth/internal/storage"
)

type testServer struct {
	handler  http.Handler
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	client := idp.NewGitHubProvider("client-id", "client-secret", "https://auth.example.com/api/auth/callback/github", "", nil)
	registry, err := oauth.NewRegistry(oauth.NewProvider("github", client))
	require.NoError(t, err)

	sessions := session.NewManager(storage.NewMemoryStorage())
	flow, err := authflow.NewController(authflow.Config{
		Providers:   registry,
		Sessions:    sessions,
		UserFunc:    func(context.Context, authflow.ProfileInput) (authflow.User, error) { return authflow.User{}, nil },
		SessionFunc: func(context.Context, authflow.User) (map[string]any, error) { return nil, nil },
		RedirectURL: "https://app.example.com/",
	})
	require.NoError(t, err)

	handler := NewHandler(Routes{
		BasePath: "/api/auth",
		Flow:     flow,
		Sessions: sessions,
		Metrics:  metrics.NewPrometheusRecorder().Handler(),
	})
	return &testServer{handler: handler, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, setup func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	if setup != nil {
		setup(r)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	return w
}

func bearer(id string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+id)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHealthHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"signin known provider", http.MethodGet, "/api/auth/signin/github", http.StatusFound},
		{"signin unknown provider", http.MethodGet, "/api/auth/signin/gitlab", http.StatusBadRequest},
		{"callback without state", http.MethodGet, "/api/auth/callback/github?code=abc", http.StatusBadRequest},
		{"callback unknown provider", http.MethodGet, "/api/auth/callback/gitlab?code=abc", http.StatusBadRequest},
		{"signout get", http.MethodGet, "/api/auth/signout", http.StatusFound},
		{"signout post", http.MethodPost, "/api/auth/signout", http.StatusFound},
		{"session", http.MethodGet, "/api/auth/session", http.StatusOK},
		{"providers", http.MethodGet, "/api/auth/providers", http.StatusOK},
		{"sessions requires session", http.MethodGet, "/api/auth/sessions", http.StatusUnauthorized},
		{"signout all requires session", http.MethodPost, "/api/auth/signout/all", http.StatusUnauthorized},
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"wrong method", http.MethodDelete, "/api/auth/session", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/auth/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRoutesFallbackErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
		allow  string
	}{
		{"delete session", http.MethodDelete, "/api/auth/session", http.StatusMethodNotAllowed, "method_not_allowed", "GET"},
		{"put signout", http.MethodPut, "/api/auth/signout", http.StatusMethodNotAllowed, "method_not_allowed", "GET, POST"},
		{"post signin", http.MethodPost, "/api/auth/signin/github", http.StatusMethodNotAllowed, "method_not_allowed", "GET"},
		{"get signout all", http.MethodGet, "/api/auth/signout/all", http.StatusMethodNotAllowed, "method_not_allowed", "POST"},
		{"post health", http.MethodPost, "/health", http.StatusMethodNotAllowed, "method_not_allowed", "GET"},
		{"unknown auth path", http.MethodGet, "/api/auth/nope", http.StatusNotFound, "not_found", ""},
		{"root", http.MethodGet, "/", http.StatusNotFound, "not_found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.allow, w.Header().Get("Allow"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestSessionEndpoint(t *testing.T) {
	s := newTestServer(t)

	t.Run("not signed in", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/auth/session", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user":null,"session":null}`, w.Body.String())
	})

	t.Run("signed in with bearer", func(t *testing.T) {
		created, err := s.sessions.Create(context.Background(), "github:42", map[string]any{"name": "octo"})
		require.NoError(t, err)

		w := s.do(t, http.MethodGet, "/api/auth/session", bearer(created.ID))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			User    authflow.User   `json:"user"`
			Session session.Session `json:"session"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "github:42", body.User.ID)
		assert.Equal(t, created.ID, body.Session.ID)
		assert.Equal(t, "octo", body.Session.Attributes["name"])
	})

	t.Run("malformed authorization", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/auth/session", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic abc")
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProvidersEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/auth/providers", nil)
	assert.JSONEq(t, `{"providers":["github"]}`, w.Body.String())
}

func TestUserSessionsEndpoints(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	first, err := s.sessions.Create(ctx, "u1", map[string]any{"device": "laptop"})
	require.NoError(t, err)
	_, err = s.sessions.Create(ctx, "u1", map[string]any{"device": "phone"})
	require.NoError(t, err)
	other, err := s.sessions.Create(ctx, "u2", nil)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/auth/sessions", bearer(first.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), first.ID)

	var listed struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 2)
	current := 0
	for _, summary := range listed.Sessions {
		if summary.Current {
			current++
			assert.Equal(t, "laptop", summary.Attributes["device"])
		}
	}
	assert.Equal(t, 1, current)

	w = s.do(t, http.MethodPost, "/api/auth/signout/all", bearer(first.ID))
	require.Equal(t, http.StatusOK, w.Code)

	remaining, err := s.sessions.UserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	still, err := s.sessions.Validate(ctx, other.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}
