package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

func TestSessionStore_SetAndPending(t *testing.T) {
	store := NewSessionStore()
	user := shared.TelegramID(100)

	assert.Equal(t, PendingNone, store.Pending(user))

	store.Set(user, PendingKey)
	assert.Equal(t, PendingKey, store.Pending(user))

	// A new prompt replaces the old expectation.
	store.Set(user, PendingDate)
	assert.Equal(t, PendingDate, store.Pending(user))
}

func TestSessionStore_Clear(t *testing.T) {
	store := NewSessionStore()
	user := shared.TelegramID(100)

	store.Set(user, PendingDate)
	store.Clear(user)

	assert.Equal(t, PendingNone, store.Pending(user))
	assert.Equal(t, 0, store.Size())
}

func TestSessionStore_SetNoneDeletes(t *testing.T) {
	store := NewSessionStore()
	user := shared.TelegramID(100)

	store.Set(user, PendingKey)
	store.Set(user, PendingNone)

	assert.Equal(t, 0, store.Size())
}

func TestSessionStore_IsolatesUsers(t *testing.T) {
	store := NewSessionStore()

	store.Set(shared.TelegramID(1), PendingKey)
	store.Set(shared.TelegramID(2), PendingDate)

	assert.Equal(t, PendingKey, store.Pending(shared.TelegramID(1)))
	assert.Equal(t, PendingDate, store.Pending(shared.TelegramID(2)))
	assert.Equal(t, 2, store.Size())
}
