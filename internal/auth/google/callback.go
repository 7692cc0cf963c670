package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/wingmanhq/wingman/internal/store"
)

// HandleCallback processes the OAuth callback from Google and stores the
// resulting credential for the authenticated user.
func HandleCallback(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Verify state token
		state := r.URL.Query().Get("state")
		if state != GetStateToken() {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		config := OAuthConfig(redirectURL(r))

		token, err := config.Exchange(context.Background(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}

		// Fetch user info to key the credential by email
		client := config.Client(context.Background(), token)
		resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get user info: %v", err), http.StatusInternalServerError)
			return
		}
		defer resp.Body.Close()

		var userInfo struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
			http.Error(w, fmt.Sprintf("Failed to decode user info: %v", err), http.StatusInternalServerError)
			return
		}

		// The token response reports which scopes the user actually granted;
		// fall back to the requested set when the field is absent.
		granted := Scopes
		if raw, ok := token.Extra("scope").(string); ok && raw != "" {
			granted = strings.Fields(raw)
		}

		err = st.Upsert(userInfo.Email, ServiceID, store.CredentialData{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    token.Expiry,
			Scopes:       granted,
			Metadata:     map[string]string{"name": userInfo.Name},
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to save credentials: %v", err), http.StatusInternalServerError)
			return
		}

		log.Printf("✅ Google login completed for %s (%d scopes granted)", userInfo.Email, len(granted))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html><html><body><h2>Login successful</h2><p>Google services enabled for %s. You can close this tab.</p></body></html>", userInfo.Email)
	}
}
