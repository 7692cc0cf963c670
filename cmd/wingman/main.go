package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/wingmanhq/wingman/internal/agents"
	"github.com/wingmanhq/wingman/internal/api"
	"github.com/wingmanhq/wingman/internal/auth/google"
	"github.com/wingmanhq/wingman/internal/auth/linkedin"
	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/config"
	"github.com/wingmanhq/wingman/internal/db"
	"github.com/wingmanhq/wingman/internal/director"
	"github.com/wingmanhq/wingman/internal/llm"
	"github.com/wingmanhq/wingman/internal/store"
	"github.com/wingmanhq/wingman/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	credStore := store.New(database)
	if cfg.LegacyUsersFile != "" {
		credStore.ImportLegacyUsers(cfg.LegacyUsersFile)
	}

	// Token manager: Google tokens refresh via OAuth; LinkedIn has no refresh
	// protocol, its stored tokens are used as-is until re-login.
	tokenManager := token.NewManager(credStore, map[string]token.Exchanger{
		google.ServiceID: &token.OAuthExchanger{Config: google.OAuthConfig("")},
	})

	// Agent catalog
	registry := agents.BuiltinRegistry()
	if cfg.AgentCatalog != "" {
		if err := registry.ApplyCatalog(cfg.AgentCatalog); err != nil {
			log.Fatalf("Failed to apply agent catalog %s: %v", cfg.AgentCatalog, err)
		}
	}

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.LLMTimeout)
	resolver := director.NewResolver(registry, tokenManager, credStore, agents.Deps{
		LLM:             llmClient,
		DefaultLocation: cfg.DefaultLocation,
	})
	sessions := api.NewSessionManager()

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// ============================================
	// Public Routes (No Auth Required)
	// ============================================

	// Optional admin auth middleware
	adminPassword := os.Getenv("WINGMAN_ADMIN_PASSWORD")
	optionalAdminAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminPassword == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || pass != adminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="WingMan Admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"` + version.Version + `"}`))
	})

	// OAuth flows
	r.Get("/auth/google/login", google.HandleLogin)
	r.Get("/auth/google/callback", google.HandleCallback(credStore))
	r.Get("/auth/linkedin/login", linkedin.HandleLogin)
	r.Get("/auth/linkedin/callback", linkedin.HandleCallback(credStore))

	// Management API (protected if WINGMAN_ADMIN_PASSWORD is set)
	r.Route("/api", func(r chi.Router) {
		r.Use(optionalAdminAuth)

		r.Get("/users", api.UsersHandler(credStore))
		r.Get("/users/{email}/agents", api.UserAgentsHandler(resolver))
		r.Get("/users/{email}/credentials", api.UserCredentialsHandler(credStore))
		r.Post("/users/{email}/refresh", api.RefreshCredentialHandler(tokenManager))

		// API Key management
		r.Get("/config/apikey", api.GetAPIKeyHandler(database))
		r.Post("/config/apikey/regenerate", api.RegenerateAPIKeyHandler(database))
	})

	// ============================================
	// Protected Routes (API Key Required)
	// ============================================

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.APIKeyAuth(database))
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", api.CreateSessionHandler(sessions, resolver, llmClient, registry, cfg.HistoryWindow))
			r.Post("/{id}/messages", api.SessionMessageHandler(sessions))
			r.Get("/{id}/agents", api.SessionAgentsHandler(sessions))
			r.Delete("/{id}", api.CloseSessionHandler(sessions))
		})
	})

	addr := cfg.Host + ":" + cfg.Port
	log.Printf("🚀 WingMan %s starting on http://%s", version.Version, addr)
	log.Printf("🔑 Google login: http://%s/auth/google/login", addr)
	log.Printf("🔑 LinkedIn login: http://%s/auth/linkedin/login", addr)
	log.Printf("💬 Sessions API: http://%s/v1/sessions", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
