// Package metrics records sign-in and session counters.
package metrics

// Recorder receives every event the auth server counts. It satisfies both
// session.Recorder and authflow.Recorder.
type Recorder interface {
	SignInStarted(provider string)
	CallbackCompleted(provider, outcome string)
	SignedOut()

	SessionCreated()
	SessionValidated(result string)
	SessionInvalidated()
}

// NoopRecorder discards everything. Used when metrics are disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

func (*NoopRecorder) SignInStarted(string)             {}
func (*NoopRecorder) CallbackCompleted(string, string) {}
func (*NoopRecorder) SignedOut()                       {}
func (*NoopRecorder) SessionCreated()                  {}
func (*NoopRecorder) SessionValidated(string)          {}
func (*NoopRecorder) SessionInvalidated()              {}

var _ Recorder = (*NoopRecorder)(nil)
