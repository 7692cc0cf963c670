package agents

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const ugcPostsAPI = "https://api.linkedin.com/v2/ugcPosts"

// LinkedInAgent publishes posts on the member's behalf.
type LinkedInAgent struct {
	deps Deps
	cred *token.ValidCredential
}

// NewLinkedInAgent builds the LinkedIn agent over a valid LinkedIn credential.
func NewLinkedInAgent(deps Deps, cred *token.ValidCredential) Agent {
	return &LinkedInAgent{deps: deps, cred: cred}
}

const linkedinSystemPrompt = `You draft LinkedIn posts. Given the user's request,
write the final post text only: professional, concise, no hashtag spam, no
surrounding quotes or commentary.`

// HandleQuery drafts the post text and publishes it as a UGC post.
func (a *LinkedInAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	memberID := a.cred.Metadata["member_id"]
	if memberID == "" {
		return "", fmt.Errorf("linkedin credential has no member id; re-run the LinkedIn login")
	}

	text, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: linkedinSystemPrompt},
		{Role: "user", Content: query},
	}, 0.7)
	if err != nil {
		return "", fmt.Errorf("draft post: %w", err)
	}

	post := map[string]any{
		"author":         "urn:li:person:" + memberID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	if err := a.publish(ctx, post); err != nil {
		return "", fmt.Errorf("publish post: %w", err)
	}
	return "Posted to LinkedIn:\n\n" + text, nil
}

// publish wraps doJSON to add the Restli protocol header LinkedIn requires.
func (a *LinkedInAgent) publish(ctx context.Context, post map[string]any) error {
	client := a.deps.httpClient()
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = restliTransport{base: base}
	return doJSON(ctx, &wrapped, http.MethodPost, ugcPostsAPI, a.cred.AccessToken, post, nil)
}

type restliTransport struct {
	base http.RoundTripper
}

func (t restliTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	return t.base.RoundTrip(req)
}
