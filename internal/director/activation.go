package director

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wingmanhq/wingman/internal/agents"
	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/store"
)

// ErrNotEnrolled means the user has never authorized any service; session
// bootstrap requires an out-of-band login first.
var ErrNotEnrolled = errors.New("user not enrolled")

// AgentState is an agent's availability for one user.
type AgentState string

const (
	// StateActive: credential present with sufficient scope, or public agent.
	StateActive AgentState = "active"
	// StateDisabled: credential present but unusable (scope missing or
	// refresh failing). Remediation is re-granting access.
	StateDisabled AgentState = "disabled"
	// StateNotConfigured: the owning service was never authorized.
	// Remediation is a first-time login.
	StateNotConfigured AgentState = "not_configured"
)

// ActiveSet is the per-session result of activation: constructed agents for
// everything usable, plus the availability state of every known agent.
type ActiveSet struct {
	agents map[string]agents.Agent
	states map[string]AgentState
	order  []string
}

// Agent returns the constructed agent for an id, if active.
func (s *ActiveSet) Agent(id string) (agents.Agent, bool) {
	a, ok := s.agents[id]
	return a, ok
}

// State returns the availability of a known agent id.
func (s *ActiveSet) State(id string) (AgentState, bool) {
	st, ok := s.states[id]
	return st, ok
}

// States returns availability per agent, for status reporting.
func (s *ActiveSet) States() map[string]AgentState {
	out := make(map[string]AgentState, len(s.states))
	for id, st := range s.states {
		out[id] = st
	}
	return out
}

// ActiveIDs returns the ids of usable agents in registry order.
func (s *ActiveSet) ActiveIDs() []string {
	var ids []string
	for _, id := range s.order {
		if _, ok := s.agents[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Resolver computes the ActiveAgentSet for a user at session start.
type Resolver struct {
	registry *agents.Registry
	tokens   *token.Manager
	store    *store.Store
	deps     agents.Deps
}

// NewResolver builds an activation resolver.
func NewResolver(registry *agents.Registry, tokens *token.Manager, st *store.Store, deps agents.Deps) *Resolver {
	return &Resolver{registry: registry, tokens: tokens, store: st, deps: deps}
}

// Resolve computes which agents the user may invoke this session. Absence of
// any ServiceCredential at all is a bootstrap failure (ErrNotEnrolled);
// per-agent authorization problems resolve into the set instead of erroring.
func (r *Resolver) Resolve(ctx context.Context, userEmail string) (*ActiveSet, error) {
	if _, err := r.store.Get(userEmail); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotEnrolled, userEmail)
		}
		return nil, err
	}

	set := &ActiveSet{
		agents: make(map[string]agents.Agent),
		states: make(map[string]AgentState),
		order:  r.registry.IDs(),
	}

	for _, id := range set.order {
		def, _ := r.registry.Get(id)

		if def.Public() {
			set.agents[id] = def.New(r.deps, nil)
			set.states[id] = StateActive
			log.Printf("✅ Agent %s active (public)", id)
			continue
		}

		cred, err := r.tokens.LoadCredential(ctx, userEmail, def.Service)
		switch {
		case errors.Is(err, token.ErrNotAuthorized):
			set.states[id] = StateNotConfigured
			log.Printf("❌ Agent %s not configured for %s: no %s credential", id, userEmail, def.Service)
		case errors.Is(err, token.ErrRefreshFailed):
			// Credential exists but can't be made valid right now.
			set.states[id] = StateDisabled
			log.Printf("⚠️ Agent %s disabled for %s: %v", id, userEmail, err)
		case err != nil:
			set.states[id] = StateDisabled
			log.Printf("⚠️ Agent %s disabled for %s: %v", id, userEmail, err)
		case !cred.HasScopes(def.Scopes):
			set.states[id] = StateDisabled
			log.Printf("❌ Agent %s disabled for %s: scope not granted", id, userEmail)
		default:
			set.agents[id] = def.New(r.deps, cred)
			set.states[id] = StateActive
			log.Printf("✅ Agent %s active for %s", id, userEmail)
		}
	}

	return set, nil
}
