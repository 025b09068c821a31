package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/lewis-wow/auth/internal/authflow"
	jsonwriter "github.com/lewis-wow/auth/internal/json"
	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/session"
)

// AuthHandlers exposes the sign-in flow over HTTP.
type AuthHandlers struct {
	flow     *authflow.Controller
	sessions *session.Manager
}

// NewAuthHandlers creates the auth handlers
func NewAuthHandlers(flow *authflow.Controller, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{flow: flow, sessions: sessions}
}

// SessionSummary describes one of the user's sessions without its id,
// which is a credential.
type SessionSummary struct {
	Current    bool           `json:"current"`
	Attributes map[string]any `json:"attributes"`
	ExpiresAt  time.Time      `json:"expiresAt"`
}

// SignInHandler redirects to the provider named in the path.
func (h *AuthHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	h.flow.BeginSignIn(w, r, r.PathValue("provider"))
}

// CallbackHandler completes the sign-in for the provider named in the path.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	h.flow.CompleteSignIn(w, r, providerID, h.flow.CallbackParams(r, providerID))
}

// SignOutHandler invalidates the current session.
func (h *AuthHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	h.flow.SignOut(w, r)
}

// SessionHandler returns {"user", "session"} for the request, both null
// when not signed in.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.flow.ServerSession(w, r)
	if errors.Is(err, authflow.ErrMalformedCredentials) {
		jsonwriter.WriteBadRequest(w, "Malformed Authorization header")
		return
	}
	_ = jsonwriter.Write(w, resolved)
}

// ProvidersHandler lists the configured provider ids.
func (h *AuthHandlers) ProvidersHandler(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, map[string]any{
		"providers": h.flow.Providers(),
	})
}

// ListSessionsHandler lists the signed-in user's live sessions.
func (h *AuthHandlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	current, ok := SessionFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Session required", "")
		return
	}

	sessions, err := h.sessions.UserSessions(r.Context(), current.User.ID)
	if err != nil {
		log.LogErrorWithFields("http", "Failed to list sessions", map[string]any{
			"user_id": current.User.ID,
			"error":   err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to list sessions")
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			Current:    s.ID == current.Session.ID,
			Attributes: s.Attributes,
			ExpiresAt:  s.ExpiresAt,
		})
	}
	_ = jsonwriter.Write(w, map[string]any{"sessions": summaries})
}

// SignOutAllHandler invalidates every session of the signed-in user.
func (h *AuthHandlers) SignOutAllHandler(w http.ResponseWriter, r *http.Request) {
	current, ok := SessionFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Session required", "")
		return
	}

	if err := h.sessions.InvalidateUserSessions(r.Context(), current.User.ID); err != nil {
		log.LogErrorWithFields("http", "Failed to invalidate user sessions", map[string]any{
			"user_id": current.User.ID,
			"error":   err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Sign-out failed")
		return
	}

	http.SetCookie(w, h.sessions.BlankCookie().HTTP())
	log.LogInfoWithFields("http", "Signed out everywhere", map[string]any{
		"user_id": current.User.ID,
	})
	_ = jsonwriter.Write(w, map[string]any{"status": "ok"})
}
