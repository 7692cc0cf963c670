package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const instantAnswerAPI = "https://api.duckduckgo.com/"

// WebsearchAgent answers lookup questions. Public: needs no credential.
type WebsearchAgent struct {
	deps Deps
}

// NewWebsearchAgent builds the web search agent; cred is ignored.
func NewWebsearchAgent(deps Deps, _ *token.ValidCredential) Agent {
	return &WebsearchAgent{deps: deps}
}

const websearchPrompt = `You answer lookup questions clearly and concisely.
When search context is provided, ground the answer in it and mention the source.`

// HandleQuery queries the instant-answer API for context and composes a reply.
func (a *WebsearchAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	searchContext := a.lookup(ctx, query)

	user := query
	if searchContext != "" {
		user = fmt.Sprintf("Question: %s\n\nSearch context:\n%s", query, searchContext)
	}

	answer, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: websearchPrompt},
		{Role: "user", Content: user},
	}, 0.3)
	if err != nil {
		if searchContext != "" {
			return searchContext, nil
		}
		return "", fmt.Errorf("compose answer: %w", err)
	}
	return answer, nil
}

// lookup returns whatever abstract the instant-answer API has, empty on any
// failure: the LLM can still answer from its own knowledge.
func (a *WebsearchAgent) lookup(ctx context.Context, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")

	var result struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, instantAnswerAPI+"?"+params.Encode(), "", nil, &result); err != nil {
		return ""
	}
	if strings.TrimSpace(result.AbstractText) == "" {
		return ""
	}
	return fmt.Sprintf("%s (source: %s, %s)", result.AbstractText, result.AbstractSource, result.AbstractURL)
}
