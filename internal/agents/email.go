package agents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const gmailAPIBase = "https://gmail.googleapis.com/gmail/v1/users/me"

type emailAction string

const (
	emailSend emailAction = "send"
	emailList emailAction = "list"
)

type emailRequest struct {
	Action  emailAction `json:"action"`
	To      string      `json:"to"`
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	Query   string      `json:"query"`
}

func (r *emailRequest) validate() error {
	switch r.Action {
	case emailSend:
		if r.To == "" || r.Body == "" {
			return fmt.Errorf("send needs to and body")
		}
	case emailList:
		// query optional, defaults to unread
	default:
		return fmt.Errorf("unsupported action %q", r.Action)
	}
	return nil
}

// EmailAgent sends and lists Gmail messages.
type EmailAgent struct {
	deps Deps
	cred *token.ValidCredential
}

// NewEmailAgent builds the email agent over a valid Google credential.
func NewEmailAgent(deps Deps, cred *token.ValidCredential) Agent {
	return &EmailAgent{deps: deps, cred: cred}
}

const emailSystemPrompt = `You are an AI assistant that handles email requests.
Always respond with a single pure JSON object, double quotes, no extra text. Keys:
{"action", "to", "subject", "body", "query"}

Supported actions:
- "send": compose and send an email; write a polite, complete body from the user's request.
- "list": list messages; put a Gmail search expression in "query" (e.g. "is:unread", "from:google").`

// HandleQuery translates the query into a typed email action and runs it.
func (a *EmailAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	raw, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: emailSystemPrompt},
		{Role: "user", Content: query},
	}, 0)
	if err != nil {
		return "", fmt.Errorf("email analysis: %w", err)
	}

	var req emailRequest
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &req); err != nil {
		return "", fmt.Errorf("email analysis returned invalid JSON: %w", err)
	}
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("email request: %w", err)
	}

	switch req.Action {
	case emailSend:
		return a.send(ctx, req)
	case emailList:
		return a.list(ctx, req)
	}
	return "", fmt.Errorf("unsupported action %q", req.Action)
}

func (a *EmailAgent) send(ctx context.Context, req emailRequest) (string, error) {
	rfc822 := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", req.To, req.Subject, req.Body)
	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(rfc822)),
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodPost, gmailAPIBase+"/messages/send", a.cred.AccessToken, payload, nil); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return fmt.Sprintf("Email sent to %s with subject %q.", req.To, req.Subject), nil
}

func (a *EmailAgent) list(ctx context.Context, req emailRequest) (string, error) {
	q := req.Query
	if q == "" {
		q = "is:unread"
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", "5")

	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		ResultSizeEstimate int `json:"resultSizeEstimate"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, gmailAPIBase+"/messages?"+params.Encode(), a.cred.AccessToken, nil, &listing); err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(listing.Messages) == 0 {
		return fmt.Sprintf("No messages matching %q.", q), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found about %d message(s) matching %q. Most recent:\n", listing.ResultSizeEstimate, q)
	for _, m := range listing.Messages {
		var msg struct {
			Snippet string `json:"snippet"`
		}
		if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, gmailAPIBase+"/messages/"+m.ID+"?format=metadata", a.cred.AccessToken, nil, &msg); err != nil {
			continue
		}
		b.WriteString("- " + msg.Snippet + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
