package director

import "time"

// Turn is one conversation entry. History is append-only for the lifetime of
// a session.
type Turn struct {
	Role      string
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// History holds the session's ordered conversation turns.
type History struct {
	turns []Turn
}

// Append records a turn.
func (h *History) Append(role, content string) {
	h.AppendWith(role, content, nil)
}

// AppendWith records a turn with metadata (e.g., which agent answered).
func (h *History) AppendWith(role, content string, metadata map[string]string) {
	h.turns = append(h.turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
}

// Recent returns the last n turns, oldest first. n <= 0 returns nothing.
func (h *History) Recent(n int) []Turn {
	if n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	return append([]Turn(nil), h.turns[len(h.turns)-n:]...)
}

// Len reports the number of recorded turns.
func (h *History) Len() int {
	return len(h.turns)
}
