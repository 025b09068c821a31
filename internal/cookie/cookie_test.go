package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFlow(t *testing.T) {
	t.Setenv("AUTH_ENV", "production")
	w := httptest.NewRecorder()
	SetFlow(w, "github_oauth_state", "xyz", 10*time.Minute)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "github_oauth_state", c.Name)
	assert.Equal(t, "xyz", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestSetFlowNotSecureOutsideProduction(t *testing.T) {
	t.Setenv("AUTH_ENV", "")
	w := httptest.NewRecorder()
	SetFlow(w, "state", "xyz", time.Minute)
	assert.False(t, w.Result().Cookies()[0].Secure)
}

func TestClear(t *testing.T) {
	w := httptest.NewRecorder()
	Clear(w, "state")

	header := w.Header().Get("Set-Cookie")
	assert.Contains(t, header, "state=")
	assert.Contains(t, header, "Max-Age=0")
}

func TestGet(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "state", Value: "abc"})

	assert.Equal(t, "abc", Get(r, "state"))
	assert.Empty(t, Get(r, "missing"))
}
