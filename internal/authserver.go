package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lewis-wow/auth/internal/authflow"
	"github.com/lewis-wow/auth/internal/config"
	"github.com/lewis-wow/auth/internal/crypto"
	"github.com/lewis-wow/auth/internal/emailutil"
	"github.com/lewis-wow/auth/internal/idp"
	"github.com/lewis-wow/auth/internal/log"
	"github.com/lewis-wow/auth/internal/metrics"
	"github.com/lewis-wow/auth/internal/oauth"
	"github.com/lewis-wow/auth/internal/server"
	"github.com/lewis-wow/auth/internal/session"
	"github.com/lewis-wow/auth/internal/storage"
	"github.com/lewis-wow/auth/internal/telemetry"
)

const (
	serviceName     = "auth-server"
	shutdownTimeout = 30 * time.Second
)

// setupTelemetry is replaced in tests to observe the tracer shutdown.
var setupTelemetry = telemetry.Setup

// AuthServer is the complete sign-in service: handler, session store and
// background sweep.
type AuthServer struct {
	config            config.Config
	handler           http.Handler
	httpServer        *server.HTTPServer
	store             storage.SessionStore
	cleanup           *storage.CleanupManager
	shutdownTelemetry func(context.Context) error
}

// NewAuthServer builds every component from cfg. Nothing is started.
func NewAuthServer(ctx context.Context, cfg config.Config) (*AuthServer, error) {
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("configuring logging: %w", err)
	}

	log.LogInfoWithFields("authserver", "Building auth server", map[string]any{
		"baseURL":   cfg.Server.BaseURL,
		"storage":   cfg.Storage.Type,
		"providers": len(cfg.Providers),
	})

	shutdownTelemetry, err := setupTelemetry(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to setup providers: %w", err)
	}

	store, err := setupStorage(ctx, cfg.Storage)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder()

	sessions := session.NewManager(store,
		session.WithExpiresIn(cfg.Session.ExpiresIn.Std()),
		session.WithRenewalThreshold(cfg.Session.RenewalThreshold.Std()),
		session.WithCookie(session.CookieOptions{
			Name:     cfg.Session.Cookie.Name,
			Domain:   cfg.Session.Cookie.Domain,
			Path:     cfg.Session.Cookie.Path,
			SameSite: session.ParseSameSite(cfg.Session.Cookie.SameSite),
			Secure:   cfg.Session.Cookie.Secure,
			Expires:  cfg.Session.Cookie.Expires,
		}),
		session.WithRecorder(recorder),
	)

	flow, err := authflow.NewController(authflow.Config{
		Providers:          registry,
		Sessions:           sessions,
		UserFunc:           DefaultUserFunc,
		SessionFunc:        DefaultSessionFunc,
		RedirectURL:        cfg.Auth.RedirectURL,
		SignOutRedirectURL: cfg.Auth.SignOutRedirectURL,
		StateTTL:           cfg.Auth.StateTTL.Std(),
		Recorder:           recorder,
	})
	if err != nil {
		_ = store.Close()
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("failed to setup auth flow: %w", err)
	}

	handler := server.NewHandler(server.Routes{
		BasePath:       cfg.Server.BasePath,
		Flow:           flow,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Sessions:       sessions,
		Metrics:        recorder.Handler(),
	})

	return &AuthServer{
		config:            cfg,
		handler:           handler,
		httpServer:        server.NewHTTPServer(handler, cfg.Server.Addr),
		store:             store,
		cleanup:           storage.NewCleanupManager(store, cfg.Storage.CleanupInterval.Std()),
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// Handler returns the HTTP handler serving every route.
func (a *AuthServer) Handler() http.Handler {
	return a.handler
}

// Run serves until SIGINT, SIGTERM or a server error, then shuts down gracefully.
func (a *AuthServer) Run() error {
	log.LogInfoWithFields("authserver", "Starting auth server", map[string]any{
		"addr":     a.config.Server.Addr,
		"basePath": a.config.Server.BasePath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	a.cleanup.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("authserver", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("authserver", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("authserver", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	return a.shutdown(shutdownCtx, shutdownReason)
}

func (a *AuthServer) shutdown(ctx context.Context, reason string) error {
	if err := a.httpServer.Stop(ctx); err != nil {
		log.LogErrorWithFields("authserver", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	a.cleanup.Stop()

	if err := a.store.Close(); err != nil {
		log.LogErrorWithFields("authserver", "Failed to close session store", map[string]any{
			"error": err.Error(),
		})
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		log.LogWarnWithFields("authserver", "Failed to flush traces", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("authserver", "Application shutdown complete", map[string]any{
		"reason": reason,
	})
	return nil
}

// setupProviders binds every configured provider and applies the
// per-provider overrides on top of the binding's defaults.
func setupProviders(ctx context.Context, cfg config.Config) (*oauth.Registry, error) {
	timeout := cfg.Auth.ProviderTimeout.Std()
	httpClient := &http.Client{Timeout: timeout}

	providers := make([]*oauth.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		client, err := idp.NewProvider(ctx, pc, httpClient)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.ID, err)
		}

		p := oauth.NewProvider(pc.ID, client)
		if pc.StateCookieName != "" {
			p.StateCookieName = pc.StateCookieName
		}
		if pc.PKCE != nil {
			p.PKCE = *pc.PKCE
		}
		if pc.ProfileURL != "" {
			p.Issuer = pc.ProfileURL
		}
		p.Timeout = timeout
		p.HTTPClient = httpClient

		log.LogInfoWithFields("authserver", "Registered identity provider", map[string]any{
			"provider": p.ID,
			"type":     client.Type(),
			"pkce":     p.PKCE,
		})
		providers = append(providers, p)
	}

	return oauth.NewRegistry(providers...)
}

// setupStorage opens the configured session store.
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.SessionStore, error) {
	switch cfg.Type {
	case config.StorageTypeMemory:
		log.LogWarnWithFields("authserver", "Using in-memory session storage; sessions are lost on restart", nil)
		return storage.NewMemoryStorage(), nil

	case config.StorageTypeSQLite:
		store, err := storage.NewSQLiteStorage(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.LogInfoWithFields("authserver", "Using SQLite session storage", map[string]any{
			"path": cfg.SQLitePath,
		})
		return store, nil

	case config.StorageTypePostgres:
		store, err := storage.NewPostgresStorage(ctx, string(cfg.PostgresDSN))
		if err != nil {
			return nil, err
		}
		log.LogInfoWithFields("authserver", "Using Postgres session storage", nil)
		return store, nil

	case config.StorageTypeFirestore:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		store, err := storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection, encryptor)
		if err != nil {
			return nil, err
		}
		log.LogInfoWithFields("authserver", "Using Firestore session storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// DefaultUserFunc maps a profile to the user "<provider>:<id>", taking the
// id from the profile's "id" or "sub" field. Display fields are kept as claims.
func DefaultUserFunc(_ context.Context, in authflow.ProfileInput) (authflow.User, error) {
	dec := json.NewDecoder(bytes.NewReader(in.Profile))
	dec.UseNumber()

	var profile map[string]any
	if err := dec.Decode(&profile); err != nil {
		return authflow.User{}, fmt.Errorf("decoding profile: %w", err)
	}

	subject := profileSubject(profile)
	if subject == "" {
		return authflow.User{}, fmt.Errorf("profile has no id or sub")
	}

	claims := map[string]any{"provider": in.ProviderID}
	if name := firstString(profile, "name", "login", "preferred_username"); name != "" {
		claims["name"] = name
	}
	if email, ok := emailutil.Normalize(firstString(profile, "email")); ok {
		claims["email"] = email
	}

	return authflow.User{ID: in.ProviderID + ":" + subject, Claims: claims}, nil
}

// DefaultSessionFunc stores the user id and its claims as session attributes.
func DefaultSessionFunc(_ context.Context, user authflow.User) (map[string]any, error) {
	attributes := make(map[string]any, len(user.Claims)+1)
	maps.Copy(attributes, user.Claims)
	attributes["id"] = user.ID
	return attributes, nil
}

func profileSubject(profile map[string]any) string {
	for _, key := range []string{"id", "sub"} {
		switch v := profile[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func firstString(profile map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := profile[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
