// Package director routes user queries: it classifies each query against the
// session's active agents with an LLM, dispatches to the chosen agent, and
// keeps the conversation history that feeds the next classification.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/wingmanhq/wingman/internal/agents"
	"github.com/wingmanhq/wingman/internal/llm"
	"github.com/wingmanhq/wingman/internal/logging"
)

// SelfAgent is the built-in fallback: plain conversation with the LLM.
const SelfAgent = "self"

// DefaultHistoryWindow is how many recent turns feed the classification
// prompt. Bounds prompt size; not an architectural limit on history length.
const DefaultHistoryWindow = 5

// Completer is the slice of the LLM client the director uses.
type Completer interface {
	ChatCompletion(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Classification is the routing decision for one query.
type Classification struct {
	Agent string `json:"agent"`
	Query string `json:"query"`
}

// Director is the per-session router. Queries are processed one at a time to
// completion; the caller serializes access.
type Director struct {
	userEmail     string
	llm           Completer
	registry      *agents.Registry
	active        *ActiveSet
	history       *History
	historyWindow int
	lastAgent     string
	systemPrompt  string
}

// New builds a director for one session. historyWindow <= 0 uses the default.
func New(userEmail string, completer Completer, registry *agents.Registry, active *ActiveSet, historyWindow int) *Director {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	d := &Director{
		userEmail:     userEmail,
		llm:           completer,
		registry:      registry,
		active:        active,
		history:       &History{},
		historyWindow: historyWindow,
	}
	d.systemPrompt = d.buildSystemPrompt()
	return d
}

// buildSystemPrompt constrains classification to the session's active agents
// plus the self fallback.
func (d *Director) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(`You are WingMan's Director, a coordinator that routes user input to the correct specialized agent.

ALWAYS return a single valid JSON object of exactly this shape:
{"agent": "name_of_agent", "query": "the user's request for that agent"}

Only the "agent" and "query" keys. No other fields, no explanations, no markdown.

Available agents:
`)
	for _, id := range d.active.ActiveIDs() {
		def, ok := d.registry.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %q: %s\n", id, def.Description)
	}
	b.WriteString(`- "self": general conversation, jokes, questions about yourself. Use when no other agent fits.

Rules:
- Assume one request per message; pick the first or most important if there are several.
- Return only the JSON object, nothing else.`)
	return b.String()
}

// AgentStates reports availability per agent, for status endpoints.
func (d *Director) AgentStates() map[string]AgentState {
	return d.active.States()
}

// History exposes the session transcript for inspection.
func (d *Director) History() *History {
	return d.history
}

// LastAgent returns the id of the last successfully dispatched agent.
func (d *Director) LastAgent() string {
	return d.lastAgent
}

// Classify decides which agent should handle the query, using recent history
// as context. Classification failure never propagates: any unparsable model
// output degrades to the self fallback with the original query.
func (d *Director) Classify(ctx context.Context, query string) Classification {
	fallback := Classification{Agent: SelfAgent, Query: query}

	messages := []llm.Message{{Role: "system", Content: d.systemPrompt}}
	// Exclude the current query turn; it is appended separately below.
	recent := d.history.Recent(d.historyWindow + 1)
	if n := len(recent); n > 0 {
		recent = recent[:n-1]
	}
	for _, turn := range recent {
		role := turn.Role
		if role != "user" && role != "assistant" {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})

	raw, err := d.llm.ChatCompletion(ctx, messages, 0)
	if err != nil {
		log.Printf("⚠️ [%s] Classification call failed, falling back to self: %v", logging.GetRequestID(ctx), err)
		return fallback
	}

	var result Classification
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &result); err != nil {
		log.Printf("⚠️ [%s] Classification output unparsable, falling back to self", logging.GetRequestID(ctx))
		return fallback
	}
	if result.Agent == "" || result.Query == "" {
		log.Printf("⚠️ [%s] Classification missing agent/query, falling back to self", logging.GetRequestID(ctx))
		return fallback
	}

	log.Printf("🧭 [%s] Routed query to: %s", logging.GetRequestID(ctx), result.Agent)
	return result
}

// Dispatch forwards the sub-query to the resolved agent. Every failure mode
// converts to a deterministic message; dispatch never raises.
func (d *Director) Dispatch(ctx context.Context, agentID, subQuery string) string {
	agent, ok := d.active.Agent(agentID)
	if !ok {
		if _, known := d.registry.Get(agentID); known {
			state, _ := d.active.State(agentID)
			if state == StateNotConfigured {
				return fmt.Sprintf("Sorry, the %s agent isn't set up yet. Please log in and authorize it first.", agentID)
			}
			return fmt.Sprintf("Sorry, you haven't enabled the %s agent yet. Please log in again and grant it the required access.", agentID)
		}
		return fmt.Sprintf("Sorry, I don't have an agent named %q.", agentID)
	}

	response, err := d.callAgent(ctx, agent, subQuery)
	if err != nil {
		log.Printf("❌ [%s] Agent %s failed: %v", logging.GetRequestID(ctx), agentID, err)
		return fmt.Sprintf("An error occurred while using the %s agent: %v", agentID, err)
	}

	d.lastAgent = agentID
	return response
}

// callAgent isolates the collaborator call so a panicking agent degrades to an
// error instead of killing the session.
func (d *Director) callAgent(ctx context.Context, agent agents.Agent, subQuery string) (response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return agent.HandleQuery(ctx, subQuery)
}

// HandleQuery is the session's primary entry point: record, classify,
// dispatch (or self-chat), record, return. Never returns an error; every
// failure becomes response text.
func (d *Director) HandleQuery(ctx context.Context, query string) string {
	ctx = logging.WithRequestID(ctx, logging.GenerateRequestID())
	d.history.Append("user", query)

	decision := d.Classify(ctx, query)

	var response string
	if decision.Agent == SelfAgent {
		response = d.selfReply(ctx, query)
		d.history.Append("assistant", response)
	} else {
		response = d.Dispatch(ctx, decision.Agent, decision.Query)
		d.history.AppendWith("assistant", response, map[string]string{"agent": decision.Agent})
	}
	return structureResponse(response)
}

// selfReply answers conversationally with history context.
func (d *Director) selfReply(ctx context.Context, query string) string {
	messages := []llm.Message{{Role: "system", Content: "You are WingMan, a friendly personal assistant. Answer conversationally."}}
	for _, turn := range d.history.Recent(d.historyWindow) {
		role := turn.Role
		if role != "user" && role != "assistant" {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	reply, err := d.llm.ChatCompletion(ctx, messages, 0.7)
	if err != nil {
		log.Printf("⚠️ [%s] Self reply failed: %v", logging.GetRequestID(ctx), err)
		return "I'm having trouble thinking right now, please try again."
	}
	return reply
}

func structureResponse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "I couldn't find any useful information."
	}
	return strings.ReplaceAll(text, "\n\n", "\n")
}
