package server

import (
	"net/http"
	"strings"

	"github.com/lewis-wow/auth/internal/authflow"
	jsonwriter "github.com/lewis-wow/auth/internal/json"
	"github.com/lewis-wow/auth/internal/session"
)

// Routes configures the handler built by NewHandler.
type Routes struct {
	// BasePath prefixes the auth endpoints, e.g. "/api/auth".
	BasePath       string
	Flow           *authflow.Controller
	AllowedOrigins []string
	Sessions       *session.Manager
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewHandler builds the complete HTTP handler. Unknown paths get a JSON 404
// and known paths hit with the wrong method get a JSON 405.
func NewHandler(cfg Routes) http.Handler {
	mux := http.NewServeMux()
	base := strings.TrimSuffix(cfg.BasePath, "/")

	// allowed collects the methods registered per path for the 405 fallbacks.
	allowed := map[string][]string{}
	handle := func(method, path string, h http.Handler) {
		mux.Handle(method+" "+path, h)
		allowed[path] = append(allowed[path], method)
	}

	auth := NewAuthHandlers(cfg.Flow, cfg.Sessions)
	handle(http.MethodGet, base+"/signin/{provider}", http.HandlerFunc(auth.SignInHandler))
	handle(http.MethodGet, base+"/callback/{provider}", http.HandlerFunc(auth.CallbackHandler))
	handle(http.MethodGet, base+"/signout", http.HandlerFunc(auth.SignOutHandler))
	handle(http.MethodPost, base+"/signout", http.HandlerFunc(auth.SignOutHandler))
	handle(http.MethodGet, base+"/session", http.HandlerFunc(auth.SessionHandler))
	handle(http.MethodGet, base+"/providers", http.HandlerFunc(auth.ProvidersHandler))

	requireSession := NewRequireSessionMiddleware(cfg.Flow)
	handle(http.MethodGet, base+"/sessions", ChainMiddleware(http.HandlerFunc(auth.ListSessionsHandler), requireSession))
	handle(http.MethodPost, base+"/signout/all", ChainMiddleware(http.HandlerFunc(auth.SignOutAllHandler), requireSession))

	handle(http.MethodGet, "/health", NewHealthHandler())
	if cfg.Metrics != nil {
		handle(http.MethodGet, "/metrics", cfg.Metrics)
	}

	for path, methods := range allowed {
		mux.Handle(path, methodNotAllowed(methods))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "No route for "+r.URL.Path)
	})

	return ChainMiddleware(mux,
		NewCORSMiddleware(cfg.AllowedOrigins),
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	)
}

func methodNotAllowed(methods []string) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		jsonwriter.WriteMethodNotAllowed(w, r.Method+" is not allowed here")
	}
}
