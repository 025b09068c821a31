package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a callback the client got wrong: missing or
	// mismatched state, missing code or verifier, or an error reported by the provider.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownProvider is returned when no provider is registered under an id.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider is returned when two providers share an id.
	ErrDuplicateProvider = errors.New("duplicate provider id")
)

// ProviderError reports a failure talking to the identity provider:
// token exchange, profile fetch, timeout or an unusable response.
type ProviderError struct {
	ProviderID string
	Op         string // "exchange" or "profile"
	StatusCode int    // HTTP status from the provider, 0 when not applicable
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s failed", e.ProviderID, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Outcome classifies an error from ValidateAuthorizationCode for metrics and logs.
func Outcome(err error) string {
	var providerErr *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.As(err, &providerErr):
		return "provider_error"
	default:
		return "error"
	}
}
