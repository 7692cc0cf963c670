package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

const (
	docsAPIBase  = "https://docs.googleapis.com/v1/documents"
	driveAPIBase = "https://www.googleapis.com/drive/v3/files"
)

type docAction string

const (
	docCreate docAction = "create"
	docSearch docAction = "search"
)

type docRequest struct {
	Action  docAction `json:"action"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Query   string    `json:"query"`
}

func (r *docRequest) validate() error {
	switch r.Action {
	case docCreate:
		if r.Title == "" {
			return fmt.Errorf("create needs a title")
		}
	case docSearch:
		if r.Query == "" {
			return fmt.Errorf("search needs a query")
		}
	default:
		return fmt.Errorf("unsupported action %q", r.Action)
	}
	return nil
}

// DocAgent creates and finds Google Docs.
type DocAgent struct {
	deps Deps
	cred *token.ValidCredential
}

// NewDocAgent builds the doc agent over a valid Google credential.
func NewDocAgent(deps Deps, cred *token.ValidCredential) Agent {
	return &DocAgent{deps: deps, cred: cred}
}

const docSystemPrompt = `You are an AI assistant that works with documents and notes.
Always respond with a single pure JSON object, double quotes, no extra text. Keys:
{"action", "title", "content", "query"}

Supported actions:
- "create": create a document; write the full document text into "content".
- "search": find documents by name; put the search words in "query".`

// HandleQuery translates the query into a typed doc action and runs it.
func (a *DocAgent) HandleQuery(ctx context.Context, query string) (string, error) {
	raw, err := a.deps.LLM.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: docSystemPrompt},
		{Role: "user", Content: query},
	}, 0)
	if err != nil {
		return "", fmt.Errorf("doc analysis: %w", err)
	}

	var req docRequest
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &req); err != nil {
		return "", fmt.Errorf("doc analysis returned invalid JSON: %w", err)
	}
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("doc request: %w", err)
	}

	switch req.Action {
	case docCreate:
		return a.create(ctx, req)
	case docSearch:
		return a.search(ctx, req)
	}
	return "", fmt.Errorf("unsupported action %q", req.Action)
}

func (a *DocAgent) create(ctx context.Context, req docRequest) (string, error) {
	var created struct {
		DocumentID string `json:"documentId"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodPost, docsAPIBase, a.cred.AccessToken, map[string]string{"title": req.Title}, &created); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	if req.Content != "" {
		update := map[string]any{
			"requests": []map[string]any{
				{"insertText": map[string]any{
					"location": map[string]int{"index": 1},
					"text":     req.Content,
				}},
			},
		}
		if err := doJSON(ctx, a.deps.httpClient(), http.MethodPost, docsAPIBase+"/"+created.DocumentID+":batchUpdate", a.cred.AccessToken, update, nil); err != nil {
			return "", fmt.Errorf("write document body: %w", err)
		}
	}
	return fmt.Sprintf("Created document %q: https://docs.google.com/document/d/%s", req.Title, created.DocumentID), nil
}

func (a *DocAgent) search(ctx context.Context, req docRequest) (string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("name contains '%s' and mimeType = 'application/vnd.google-apps.document'", strings.ReplaceAll(req.Query, "'", "")))
	params.Set("pageSize", "5")
	params.Set("fields", "files(id,name)")

	var result struct {
		Files []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := doJSON(ctx, a.deps.httpClient(), http.MethodGet, driveAPIBase+"?"+params.Encode(), a.cred.AccessToken, nil, &result); err != nil {
		return "", fmt.Errorf("search documents: %w", err)
	}
	if len(result.Files) == 0 {
		return fmt.Sprintf("No documents matching %q.", req.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d document(s):\n", len(result.Files))
	for _, f := range result.Files {
		fmt.Fprintf(&b, "- %s: https://docs.google.com/document/d/%s\n", f.Name, f.ID)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
