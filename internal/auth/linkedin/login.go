package linkedin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
)

var stateToken string

func init() {
	b := make([]byte, 16)
	rand.Read(b)
	stateToken = hex.EncodeToString(b)
}

// HandleLogin initiates the LinkedIn OAuth flow.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	config := OAuthConfig(redirectURL(r))
	url := config.AuthCodeURL(stateToken)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GetStateToken returns the current CSRF state token for validation.
func GetStateToken() string {
	return stateToken
}

func redirectURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/linkedin/callback", scheme, r.Host)
}
