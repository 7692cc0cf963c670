// Package linkedin implements the LinkedIn member authorization flow.
// LinkedIn issues long-lived access tokens without refresh support for
// standard apps, so the token manager treats it as a no-refresh service.
package linkedin

import (
	"os"

	"golang.org/x/oauth2"
	linkedinOAuth "golang.org/x/oauth2/linkedin"
)

// ServiceID is the credential-store key for LinkedIn authorizations.
const ServiceID = "linkedin"

// Scopes required for posting on a member's behalf plus identity.
var Scopes = []string{
	"w_member_social",
	"profile",
	"email",
	"openid",
}

// OAuthConfig returns the OAuth2 config for LinkedIn authentication.
func OAuthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     os.Getenv("LINKEDIN_CLIENT_ID"),
		ClientSecret: os.Getenv("LINKEDIN_CLIENT_SECRET"),
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     linkedinOAuth.Endpoint,
	}
}
