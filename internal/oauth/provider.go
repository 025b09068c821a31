package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/lewis-wow/auth/internal/crypto"
	"github.com/lewis-wow/auth/internal/idp"
	"github.com/lewis-wow/auth/internal/ioutil"
	"github.com/lewis-wow/auth/internal/log"
)

// DefaultTimeout bounds each call to the identity provider.
const DefaultTimeout = 10 * time.Second

const maxProfileSize = 1 << 20

var tracer = otel.Tracer("github.com/lewis-wow/auth/internal/oauth")

// Profile is the raw JSON profile returned by the provider. It is handed to
// the host unparsed.
type Profile = json.RawMessage

// Provider is a registered identity provider: a protocol client plus the
// settings the sign-in flow needs.
type Provider struct {
	ID string
	// Issuer is the URL the profile is fetched from.
	Issuer          string
	StateCookieName string
	PKCE            bool
	Client          idp.Client

	// Timeout bounds the token exchange and the profile fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient is used for the exchange and the profile fetch. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// NewProvider registers client under id using the client's defaults for
// profile URL and PKCE. The state cookie is named <id>_oauth_state.
func NewProvider(id string, client idp.Client) *Provider {
	return &Provider{
		ID:              id,
		Issuer:          client.ProfileURL(),
		StateCookieName: id + "_oauth_state",
		PKCE:            client.PKCE(),
		Client:          client,
		Timeout:         DefaultTimeout,
	}
}

// VerifierCookieName is the cookie carrying the PKCE code verifier.
func (p *Provider) VerifierCookieName() string {
	return p.StateCookieName + "_code_verifier"
}

// AuthorizationRequest is the pending half of a sign-in: where to send the
// user and what to remember until the callback.
type AuthorizationRequest struct {
	URL          string
	State        string
	CodeVerifier string // empty unless the provider uses PKCE
	CreatedAt    time.Time
}

// CallbackParams is what the callback request carries back.
type CallbackParams struct {
	Code         string
	State        string
	StoredState  string
	CodeVerifier string
}

// CreateAuthorizationURL generates a fresh state (and verifier when PKCE is
// enabled) and builds the provider's authorization URL. It makes no network calls.
func (p *Provider) CreateAuthorizationURL() (AuthorizationRequest, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return AuthorizationRequest{}, fmt.Errorf("generating state: %w", err)
	}

	var verifier string
	if p.PKCE {
		verifier = oauth2.GenerateVerifier()
	}

	return AuthorizationRequest{
		URL:          p.Client.AuthURL(state, verifier),
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    time.Now(),
	}, nil
}

// ValidateAuthorizationCode checks the callback against the stored state,
// exchanges the code and fetches the user's profile.
//
// Errors wrap ErrInvalidRequest when the callback itself is bad and are a
// *ProviderError when talking to the provider failed.
func (p *Provider) ValidateAuthorizationCode(ctx context.Context, params CallbackParams) (Profile, error) {
	ctx, span := tracer.Start(ctx, "oauth.ValidateAuthorizationCode",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("auth.provider", p.ID)),
	)
	defer span.End()

	profile, err := p.validateAuthorizationCode(ctx, params)

	span.SetAttributes(attribute.String("auth.outcome", Outcome(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
		return nil, err
	}
	return profile, nil
}

func (p *Provider) validateAuthorizationCode(ctx context.Context, params CallbackParams) (Profile, error) {
	if params.Code == "" {
		return nil, invalidRequest("missing code")
	}
	if params.State == "" || params.StoredState == "" {
		return nil, invalidRequest("missing state")
	}
	if subtle.ConstantTimeCompare([]byte(params.State), []byte(params.StoredState)) != 1 {
		return nil, invalidRequest("state mismatch")
	}

	var verifier string
	if p.PKCE {
		if params.CodeVerifier == "" {
			return nil, invalidRequest("missing code verifier")
		}
		verifier = params.CodeVerifier
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()
	if p.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
	}

	token, err := p.Client.ExchangeCode(ctx, params.Code, verifier)
	if err != nil {
		providerErr := &ProviderError{ProviderID: p.ID, Op: "exchange", Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			providerErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return nil, providerErr
	}
	if token.AccessToken == "" {
		return nil, &ProviderError{ProviderID: p.ID, Op: "exchange", Err: errors.New("empty access token")}
	}

	log.LogTraceWithFields("oauth", "Exchanged authorization code", map[string]any{
		"provider":   p.ID,
		"token_type": token.Type(),
	})

	return p.fetchProfile(ctx, token.AccessToken)
}

// fetchProfile performs the single GET to the profile URL.
func (p *Provider) fetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Issuer, nil)
	if err != nil {
		return nil, &ProviderError{ProviderID: p.ID, Op: "profile", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, &ProviderError{ProviderID: p.ID, Op: "profile", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			ProviderID: p.ID,
			Op:         "profile",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", ioutil.Snippet(resp.Body, 256)),
		}
	}

	body, err := ioutil.ReadAtMost(resp.Body, maxProfileSize)
	if err != nil {
		return nil, &ProviderError{ProviderID: p.ID, Op: "profile", StatusCode: resp.StatusCode, Err: err}
	}
	if !json.Valid(body) {
		return nil, &ProviderError{ProviderID: p.ID, Op: "profile", StatusCode: resp.StatusCode, Err: errors.New("profile is not valid JSON")}
	}

	return Profile(body), nil
}

func (p *Provider) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}
