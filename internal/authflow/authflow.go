// Package authflow drives the sign-in redirect, the provider callback and
// sign-out, and resolves the session of an incoming request.
//
// Flow state lives only in cookies on the client: the signin handler issues
// a state (and PKCE verifier) cookie, the callback consumes it.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lewis-wow/auth/internal/cookie"
	jsonwriter "github.com/lewis-wow/auth/internal/json"
	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/oauth"
	"github.com/lewis-wow/auth/internal/session"
)

// DefaultStateTTL is how long a sign-in may take between redirect and callback.
const DefaultStateTTL = 10 * time.Minute

// ErrMalformedCredentials is returned when an Authorization header is
// present but is not "Bearer <id>".
var ErrMalformedCredentials = errors.New("malformed credentials")

// User is the application user a profile maps to.
type User struct {
	ID string `json:"id"`
	// Claims carries profile fields from the user mapping to the session
	// mapping. It is not persisted.
	Claims map[string]any `json:"-"`
}

// ProfileInput is what the user-mapping callback receives.
type ProfileInput struct {
	ProviderID string
	Profile    oauth.Profile
}

// UserFunc maps an external profile to an application user.
type UserFunc func(ctx context.Context, in ProfileInput) (User, error)

// SessionFunc returns the attributes stored with a new session for user.
// A missing "id" attribute is filled with the user id.
type SessionFunc func(ctx context.Context, user User) (map[string]any, error)

// ServerSession is the resolved session of a request. Both fields are nil
// when the request is not authenticated.
type ServerSession struct {
	User    *User            `json:"user"`
	Session *session.Session `json:"session"`
}

// Recorder receives flow events.
type Recorder interface {
	SignInStarted(provider string)
	CallbackCompleted(provider, outcome string)
	SignedOut()
}

type noopRecorder struct{}

func (noopRecorder) SignInStarted(string)             {}
func (noopRecorder) CallbackCompleted(string, string) {}
func (noopRecorder) SignedOut()                       {}

// Config holds everything the controller needs.
type Config struct {
	Providers   *oauth.Registry
	Sessions    *session.Manager
	UserFunc    UserFunc
	SessionFunc SessionFunc

	// RedirectURL is where the browser lands after a successful sign-in.
	RedirectURL string
	// SignOutRedirectURL defaults to RedirectURL.
	SignOutRedirectURL string
	StateTTL           time.Duration
	Recorder           Recorder
}

// Controller implements the sign-in and sign-out endpoints.
type Controller struct {
	providers          *oauth.Registry
	sessions           *session.Manager
	userFunc           UserFunc
	sessionFunc        SessionFunc
	redirectURL        string
	signOutRedirectURL string
	stateTTL           time.Duration
	recorder           Recorder
}

// NewController validates cfg and builds a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.UserFunc == nil {
		return nil, fmt.Errorf("user function is required")
	}
	if cfg.SessionFunc == nil {
		return nil, fmt.Errorf("session function is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	c := &Controller{
		providers:          cfg.Providers,
		sessions:           cfg.Sessions,
		userFunc:           cfg.UserFunc,
		sessionFunc:        cfg.SessionFunc,
		redirectURL:        cfg.RedirectURL,
		signOutRedirectURL: cfg.SignOutRedirectURL,
		stateTTL:           cfg.StateTTL,
		recorder:           cfg.Recorder,
	}
	if c.signOutRedirectURL == "" {
		c.signOutRedirectURL = c.redirectURL
	}
	if c.stateTTL <= 0 {
		c.stateTTL = DefaultStateTTL
	}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}
	return c, nil
}

// Providers returns the registered provider ids.
func (c *Controller) Providers() []string {
	return c.providers.IDs()
}

// BeginSignIn redirects to the provider's authorization page and remembers
// the state (and verifier) in cookies.
func (c *Controller) BeginSignIn(w http.ResponseWriter, r *http.Request, providerID string) {
	provider, err := c.providers.Get(providerID)
	if err != nil {
		log.LogDebugWithFields("authflow", "Sign-in for unknown provider", map[string]any{
			"provider": providerID,
		})
		jsonwriter.WriteBadRequest(w, "Unknown provider")
		return
	}

	req, err := provider.CreateAuthorizationURL()
	if err != nil {
		log.LogErrorWithFields("authflow", "Failed to create authorization URL", map[string]any{
			"provider": providerID,
			"error":    err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Sign-in failed")
		return
	}

	cookie.SetFlow(w, provider.StateCookieName, req.State, c.stateTTL)
	if provider.PKCE {
		cookie.SetFlow(w, provider.VerifierCookieName(), req.CodeVerifier, c.stateTTL)
	}

	c.recorder.SignInStarted(provider.ID)
	log.LogDebugWithFields("authflow", "Sign-in started", map[string]any{
		"provider": provider.ID,
		"pkce":     provider.PKCE,
	})
	redirect(w, req.URL)
}

// CompleteSignIn handles the provider callback: verifies it, maps the
// profile to a user, creates a session and redirects to RedirectURL.
// Failures never reveal their cause in the response body.
func (c *Controller) CompleteSignIn(w http.ResponseWriter, r *http.Request, providerID string, params oauth.CallbackParams) {
	provider, err := c.providers.Get(providerID)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "Unknown provider")
		return
	}

	// The state is single use whatever the outcome.
	cookie.Clear(w, provider.StateCookieName)
	if provider.PKCE {
		cookie.Clear(w, provider.VerifierCookieName())
	}

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		c.recorder.CallbackCompleted(provider.ID, "invalid_request")
		log.LogWarnWithFields("authflow", "Provider returned an error", map[string]any{
			"provider":    provider.ID,
			"error":       providerErr,
			"description": r.URL.Query().Get("error_description"),
		})
		jsonwriter.WriteBadRequest(w, "Sign-in was not completed")
		return
	}

	ctx := r.Context()
	s, err := c.signIn(ctx, provider, params)
	outcome := oauth.Outcome(err)
	c.recorder.CallbackCompleted(provider.ID, outcome)
	if err != nil {
		fields := map[string]any{
			"provider": provider.ID,
			"outcome":  outcome,
			"error":    err.Error(),
		}
		if errors.Is(err, oauth.ErrInvalidRequest) {
			log.LogWarnWithFields("authflow", "Rejected sign-in callback", fields)
			jsonwriter.WriteBadRequest(w, "Invalid sign-in request")
			return
		}
		log.LogErrorWithFields("authflow", "Sign-in failed", fields)
		jsonwriter.WriteInternalServerError(w, "Sign-in failed")
		return
	}

	http.SetCookie(w, c.sessions.Cookie(s).HTTP())
	log.LogInfoWithFields("authflow", "User signed in", map[string]any{
		"provider": provider.ID,
		"user_id":  s.UserID,
	})
	redirect(w, c.redirectURL)
}

func (c *Controller) signIn(ctx context.Context, provider *oauth.Provider, params oauth.CallbackParams) (*session.Session, error) {
	profile, err := provider.ValidateAuthorizationCode(ctx, params)
	if err != nil {
		return nil, err
	}

	user, err := c.userFunc(ctx, ProfileInput{ProviderID: provider.ID, Profile: profile})
	if err != nil {
		return nil, fmt.Errorf("mapping profile to user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("mapping profile to user: empty user id")
	}

	attributes, err := c.sessionFunc(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("mapping user to session: %w", err)
	}
	attributes, err = withUserID(attributes, user.ID)
	if err != nil {
		return nil, err
	}

	return c.sessions.Create(ctx, user.ID, attributes)
}

// withUserID returns a copy of attributes whose "id" is userID.
func withUserID(attributes map[string]any, userID string) (map[string]any, error) {
	out := make(map[string]any, len(attributes)+1)
	for k, v := range attributes {
		out[k] = v
	}
	if id, ok := out["id"]; ok {
		if fmt.Sprint(id) != userID {
			return nil, fmt.Errorf("session attribute id %v does not match user id %s", id, userID)
		}
	}
	out["id"] = userID
	return out, nil
}

// SignOut invalidates the request's session and redirects to
// SignOutRedirectURL. A request without a session is redirected without
// touching cookies.
func (c *Controller) SignOut(w http.ResponseWriter, r *http.Request) {
	id, _, err := c.credentials(r)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "Malformed Authorization header")
		return
	}
	if id == "" {
		redirect(w, c.signOutRedirectURL)
		return
	}

	if err := c.sessions.Invalidate(r.Context(), id); err != nil {
		log.LogErrorWithFields("authflow", "Failed to invalidate session", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Sign-out failed")
		return
	}

	http.SetCookie(w, c.sessions.BlankCookie().HTTP())
	c.recorder.SignedOut()
	redirect(w, c.signOutRedirectURL)
}

// ServerSession resolves the session of r. Bearer takes precedence over
// the cookie. For cookie sessions it re-issues a renewed cookie or blanks
// an invalid one on w; w may be nil when headers can no longer be written.
func (c *Controller) ServerSession(w http.ResponseWriter, r *http.Request) (ServerSession, error) {
	id, bearer, err := c.credentials(r)
	if err != nil {
		return ServerSession{}, err
	}
	if id == "" {
		return ServerSession{}, nil
	}

	s, err := c.sessions.Validate(r.Context(), id)
	if err != nil {
		log.LogErrorWithFields("authflow", "Session lookup failed", map[string]any{
			"error": err.Error(),
		})
		return ServerSession{}, nil
	}

	if !bearer && w != nil {
		switch {
		case s == nil:
			http.SetCookie(w, c.sessions.BlankCookie().HTTP())
		case s.Fresh:
			http.SetCookie(w, c.sessions.Cookie(s).HTTP())
		}
	}

	if s == nil {
		return ServerSession{}, nil
	}
	return ServerSession{User: &User{ID: s.UserID}, Session: s}, nil
}

// credentials returns the session id carried by r and whether it came
// from the Authorization header.
func (c *Controller) credentials(r *http.Request) (string, bool, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		id := session.FromBearerToken(header)
		if id == "" {
			return "", false, ErrMalformedCredentials
		}
		return id, true, nil
	}
	return c.sessions.FromCookies(strings.Join(r.Header.Values("Cookie"), "; ")), false, nil
}

// RequestCallbackParams collects the callback parameters from the query
// and the flow cookies. A verifier cookie wins over a code_verifier query
// parameter.
func RequestCallbackParams(r *http.Request, stateCookieName string) oauth.CallbackParams {
	query := r.URL.Query()
	params := oauth.CallbackParams{
		Code:         query.Get("code"),
		State:        query.Get("state"),
		StoredState:  cookie.Get(r, stateCookieName),
		CodeVerifier: query.Get("code_verifier"),
	}
	if verifier := cookie.Get(r, stateCookieName+"_code_verifier"); verifier != "" {
		params.CodeVerifier = verifier
	}
	return params
}

// CallbackParams is RequestCallbackParams for a registered provider.
func (c *Controller) CallbackParams(r *http.Request, providerID string) oauth.CallbackParams {
	provider, err := c.providers.Get(providerID)
	if err != nil {
		return RequestCallbackParams(r, "")
	}
	return RequestCallbackParams(r, provider.StateCookieName)
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusFound)
}
