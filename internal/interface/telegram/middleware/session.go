package middleware

import (
	"sync"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STORE
// ══════════════════════════════════════════════════════════════════════════════

// PendingInput describes what the bot expects the user's next plain-text
// message to be. The store is the conversational state machine: handlers set
// a pending state when they prompt for input, the router consults it when a
// non-command message arrives.
type PendingInput string

const (
	// PendingNone means no input is expected; free text is either a date
	// lookup or ignored.
	PendingNone PendingInput = ""

	// PendingKey means the user was asked for an invitation key.
	PendingKey PendingInput = "key"

	// PendingDate means the user was asked for a date.
	PendingDate PendingInput = "date"
)

// SessionStore keeps per-user pending input states in memory. States do not
// expire: like the rest of the conversation they survive until the user acts
// or the process restarts.
type SessionStore struct {
	mu      sync.RWMutex
	pending map[shared.TelegramID]PendingInput
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		pending: make(map[shared.TelegramID]PendingInput),
	}
}

// Set records what input is expected from the user next.
func (s *SessionStore) Set(userID shared.TelegramID, input PendingInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input == PendingNone {
		delete(s.pending, userID)
		return
	}
	s.pending[userID] = input
}

// Pending returns the input currently expected from the user.
func (s *SessionStore) Pending(userID shared.TelegramID) PendingInput {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pending[userID]
}

// Clear drops the user's pending state.
func (s *SessionStore) Clear(userID shared.TelegramID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, userID)
}

// Size returns the number of users with a pending state.
func (s *SessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pending)
}
