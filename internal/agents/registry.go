package agents

import (
	"fmt"
	"log"
	"os"
	"regexp"

	"github.com/wingmanhq/wingman/internal/auth/google"
	"github.com/wingmanhq/wingman/internal/auth/linkedin"
	"gopkg.in/yaml.v3"
)

var agentIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Definition declares one agent: its identity, the service that owns its
// credential (empty for public agents), the minimal scope set it needs, and
// the factory that builds it. The registry replaces runtime name lookup with
// an explicit table built at startup.
type Definition struct {
	ID          string
	Service     string
	Scopes      []string
	Description string
	New         Factory
}

// Public reports whether the agent needs no credential.
func (d Definition) Public() bool {
	return d.Service == ""
}

// Registry is the static agent table. Not mutated after startup.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry from definitions, rejecting duplicates and
// malformed ids.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if !agentIDRegexp.MatchString(d.ID) {
			return nil, fmt.Errorf("invalid agent id %q", d.ID)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", d.ID)
		}
		if d.New == nil {
			return nil, fmt.Errorf("agent %q has no factory", d.ID)
		}
		r.defs[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Get returns the definition for an agent id.
func (r *Registry) Get(id string) (Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// IDs returns agent ids in declaration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// RequiredScopes returns the minimal scope set for an agent, nil if unknown
// or public.
func (r *Registry) RequiredScopes(id string) []string {
	d, ok := r.defs[id]
	if !ok {
		return nil
	}
	return append([]string(nil), d.Scopes...)
}

type catalogFile struct {
	Agents []catalogEntry `yaml:"agents"`
}

type catalogEntry struct {
	ID          string   `yaml:"id"`
	Enabled     *bool    `yaml:"enabled"`
	Scopes      []string `yaml:"scopes"`
	Description string   `yaml:"description"`
}

// ApplyCatalog overlays a YAML catalog file on the built-in definitions:
// scopes and descriptions can be overridden, agents can be disabled outright.
// Entries for unknown agents are skipped with a log line.
func (r *Registry) ApplyCatalog(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agent catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse agent catalog: %w", err)
	}

	for _, entry := range file.Agents {
		d, ok := r.defs[entry.ID]
		if !ok {
			log.Printf("⚠️ Agent catalog names unknown agent %q, skipping", entry.ID)
			continue
		}
		if entry.Enabled != nil && !*entry.Enabled {
			delete(r.defs, entry.ID)
			for i, id := range r.order {
				if id == entry.ID {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
			log.Printf("🚫 Agent %q disabled by catalog", entry.ID)
			continue
		}
		if len(entry.Scopes) > 0 {
			d.Scopes = append([]string(nil), entry.Scopes...)
		}
		if entry.Description != "" {
			d.Description = entry.Description
		}
		r.defs[entry.ID] = d
	}
	return nil
}

// Builtin returns the full agent table.
func Builtin() []Definition {
	return []Definition{
		{
			ID:          "email",
			Service:     google.ServiceID,
			Scopes:      []string{"https://mail.google.com/"},
			Description: "Email Agent - sending, checking and searching email. Examples: 'Send an email to Riya about the presentation', 'Show me unread emails'.",
			New:         NewEmailAgent,
		},
		{
			ID:          "calendar",
			Service:     google.ServiceID,
			Scopes:      []string{"https://www.googleapis.com/auth/calendar"},
			Description: "Calendar Agent - scheduling, editing or checking events. Examples: 'Add a meeting with Dev at 10AM', 'Show my events for next week'.",
			New:         NewCalendarAgent,
		},
		{
			ID:      "doc",
			Service: google.ServiceID,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive",
			},
			Description: "Doc Agent - creating and finding documents or notes. Examples: 'Create a doc with my meeting notes', 'Find my notes on statistics'.",
			New:         NewDocAgent,
		},
		{
			ID:          "linkedin",
			Service:     linkedin.ServiceID,
			Scopes:      []string{"w_member_social", "profile", "email"},
			Description: "LinkedIn Agent - posting on LinkedIn. Examples: 'Post about my new project on LinkedIn', 'Share a note thanking my team'.",
			New:         NewLinkedInAgent,
		},
		{
			ID:          "weather",
			Description: "Weather Agent - current weather anywhere. Examples: 'What's the weather like in Mumbai?', 'Will it rain this weekend?'.",
			New:         NewWeatherAgent,
		},
		{
			ID:          "websearch",
			Description: "Web Search Agent - looking up anything online. Examples: 'What is generative AI?', 'Latest news about cricket'.",
			New:         NewWebsearchAgent,
		},
	}
}

// BuiltinRegistry builds the default registry; panics only on a programming
// error in the builtin table.
func BuiltinRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
