package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/wingmanhq/wingman/internal/store"
)

// HandleCallback processes the OAuth callback from LinkedIn and stores the
// member's access token. The member id goes into credential metadata: the
// posting API needs it as the author URN.
func HandleCallback(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		client := config.Client(context.Background(), token)
		resp, err := client.Get("https://api.linkedin.com/v2/userinfo")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get user info: %v", err), http.StatusInternalServerError)
			return
		}
		defer resp.Body.Close()

		var userInfo struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
			http.Error(w, fmt.Sprintf("Failed to decode user info: %v", err), http.StatusInternalServerError)
			return
		}
		if userInfo.Email == "" {
			http.Error(w, "LinkedIn did not return an email; cannot key the credential", http.StatusInternalServerError)
			return
		}

		err = st.Upsert(userInfo.Email, ServiceID, store.CredentialData{
			AccessToken: token.AccessToken,
			ExpiresAt:   token.Expiry,
			Scopes:      Scopes,
			Metadata: map[string]string{
				"member_id": userInfo.Sub,
				"name":      userInfo.Name,
			},
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to save credentials: %v", err), http.StatusInternalServerError)
			return
		}

		log.Printf("✅ LinkedIn login completed for %s (member %s)", userInfo.Email, userInfo.Sub)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!DOCTYPE html><html><body><h2>Login successful</h2><p>LinkedIn enabled for %s. You can close this tab.</p></body></html>", userInfo.Email)
	}
}
