// Package agents holds the service agents the director dispatches to, and the
// static registry describing which scopes each one needs.
package agents

import (
	"context"
	"net/http"
	"time"

	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/llm"
)

// Agent is the single entry point the director depends on.
type Agent interface {
	HandleQuery(ctx context.Context, query string) (string, error)
}

// Completer is the slice of the LLM client agents use.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Deps carries shared collaborators into agent factories.
type Deps struct {
	LLM        Completer
	HTTPClient *http.Client

	// DefaultLocation answers weather queries that don't name a place.
	DefaultLocation string
}

// Factory constructs an agent. cred is nil for public agents.
type Factory func(deps Deps, cred *token.ValidCredential) Agent

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
