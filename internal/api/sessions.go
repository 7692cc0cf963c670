// Package api exposes the assistant over HTTP: session lifecycle, the message
// endpoint, and the user/credential management surface.
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wingmanhq/wingman/internal/director"
)

// Session binds one user's director to an opaque id. A session's queries run
// one at a time; concurrent posts to the same session queue on the lock.
type Session struct {
	ID        string
	UserEmail string
	CreatedAt time.Time

	mu       sync.Mutex
	director *director.Director
}

// Ask runs one query through the session's director.
func (s *Session) Ask(ctx context.Context, query string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.director.HandleQuery(ctx, query)
}

// AgentStates reports per-agent availability for this session.
func (s *Session) AgentStates() map[string]director.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.director.AgentStates()
}

// LastAgent returns the last successfully dispatched agent id.
func (s *Session) LastAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.director.LastAgent()
}

// SessionManager holds live sessions in memory. Transcripts die with the
// process; nothing conversational is persisted.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session table.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// Create registers a new session for the user's director.
func (m *SessionManager) Create(userEmail string, d *director.Director) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		UserEmail: userEmail,
		CreatedAt: time.Now(),
		director:  d,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks up a live session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete drops a session; its transcript is gone.
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count reports the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
