package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wingmanhq/wingman/internal/agents"
	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/db"
	"github.com/wingmanhq/wingman/internal/director"
	"github.com/wingmanhq/wingman/internal/store"
	"gorm.io/gorm"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"message": message},
	})
}

// CreateSessionHandler handles POST /v1/sessions: resolve the user's active
// agents and open a session. Users with no authorized service get a
// remediation error instead of a session.
func CreateSessionHandler(sessions *SessionManager, resolver *director.Resolver, completer director.Completer, registry *agents.Registry, historyWindow int) http.HandlerFunc {
	type request struct {
		Email string `json:"email"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}

		set, err := resolver.Resolve(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, director.ErrNotEnrolled) {
				writeError(w, http.StatusForbidden, fmt.Sprintf("No services authorized for %s. Please log in first.", req.Email))
				return
			}
			log.Printf("❌ Session activation failed for %s: %v", req.Email, err)
			writeError(w, http.StatusInternalServerError, "Failed to activate agents")
			return
		}

		d := director.New(req.Email, completer, registry, set, historyWindow)
		s := sessions.Create(req.Email, d)
		log.Printf("💬 Session %s opened for %s (%d agents active)", s.ID, req.Email, len(set.ActiveIDs()))

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"session_id": s.ID,
			"email":      s.UserEmail,
			"agents":     s.AgentStates(),
		})
	}
}

// SessionMessageHandler handles POST /v1/sessions/{id}/messages. The response
// is always text; routing and agent failures surface as response content, not
// HTTP errors.
func SessionMessageHandler(sessions *SessionManager) http.HandlerFunc {
	type request struct {
		Query string `json:"query"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		response := s.Ask(r.Context(), req.Query)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"response": response,
			"agent":    s.LastAgent(),
		})
	}
}

// SessionAgentsHandler handles GET /v1/sessions/{id}/agents.
func SessionAgentsHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"email":  s.UserEmail,
			"agents": s.AgentStates(),
		})
	}
}

// CloseSessionHandler handles DELETE /v1/sessions/{id}.
func CloseSessionHandler(sessions *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := sessions.Get(id); !ok {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		sessions.Delete(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// UsersHandler handles GET /api/users: list of enrolled users.
func UsersHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := st.Users()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"users": users,
			"count": len(users),
		})
	}
}

// UserAgentsHandler handles GET /api/users/{email}/agents: per-agent
// availability without opening a session.
func UserAgentsHandler(resolver *director.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")

		set, err := resolver.Resolve(r.Context(), email)
		if err != nil {
			if errors.Is(err, director.ErrNotEnrolled) {
				writeError(w, http.StatusNotFound, "User not enrolled")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to resolve agents")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"email":  email,
			"agents": set.States(),
		})
	}
}

// UserCredentialsHandler handles GET /api/users/{email}/credentials. Token
// material never leaves the store; only service, validity and scopes do.
func UserCredentialsHandler(st *store.Store) http.HandlerFunc {
	type credentialView struct {
		Service   string    `json:"service"`
		ExpiresAt time.Time `json:"expires_at"`
		IsValid   bool      `json:"is_valid"`
		Scopes    []string  `json:"scopes"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")

		record, err := st.Get(email)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "User not enrolled")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to load credentials")
			return
		}

		views := make([]credentialView, 0, len(record.Services))
		for service, cred := range record.Services {
			views = append(views, credentialView{
				Service:   service,
				ExpiresAt: cred.ExpiresAt,
				IsValid:   cred.ExpiresAt.After(time.Now()),
				Scopes:    cred.ScopeList(),
			})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"email":       email,
			"credentials": views,
			"count":       len(views),
		})
	}
}

// RefreshCredentialHandler handles POST /api/users/{email}/refresh: force a
// refresh exchange for one service regardless of expiry.
func RefreshCredentialHandler(tokens *token.Manager) http.HandlerFunc {
	type request struct {
		Service string `json:"service"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Service == "" {
			writeError(w, http.StatusBadRequest, "service is required")
			return
		}

		cred, err := tokens.RefreshNow(r.Context(), email, req.Service)
		if err != nil {
			if errors.Is(err, token.ErrNotAuthorized) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("No %s credential for %s", req.Service, email))
				return
			}
			log.Printf("❌ Forced refresh failed for %s/%s: %v", email, req.Service, err)
			writeError(w, http.StatusBadGateway, fmt.Sprintf("Refresh failed: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"service":    req.Service,
			"expires_at": cred.ExpiresAt,
		})
	}
}

// GetAPIKeyHandler returns the current API key
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.GetAPIKey(database)
		masked := false
		if shouldMaskSensitiveData() {
			apiKey = maskAPIKey(apiKey)
			masked = true
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key": apiKey,
			"masked":  masked,
		})
	}
}

// RegenerateAPIKeyHandler generates a new API key
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.RegenerateAPIKey(database)

		displayKey := apiKey
		masked := false
		if shouldMaskSensitiveData() {
			displayKey = maskAPIKey(apiKey)
			masked = true
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key": displayKey,
			"masked":  masked,
		})
	}
}

func shouldMaskSensitiveData() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("WINGMAN_MASK_SENSITIVE")))
	return v == "1" || v == "true" || v == "yes"
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
