package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// fakeAccessRepo implements access.Repository with an in-memory user set and
// a call counter so tests can observe cache behavior.
type fakeAccessRepo struct {
	superUser  shared.TelegramID
	authorized map[shared.TelegramID]bool

	authCalls int
	authErr   error
}

func newFakeAccessRepo(superUser int64) *fakeAccessRepo {
	return &fakeAccessRepo{
		superUser:  shared.TelegramID(superUser),
		authorized: make(map[shared.TelegramID]bool),
	}
}

func (f *fakeAccessRepo) CreateKey(_ context.Context, _ *access.AccessKey) error { return nil }

func (f *fakeAccessRepo) GetKey(_ context.Context, _ access.KeyToken) (*access.AccessKey, error) {
	return nil, shared.ErrKeyNotFound
}

func (f *fakeAccessRepo) ActivateKey(_ context.Context, _ access.KeyToken, _ shared.TelegramID, _ string) (bool, error) {
	return false, nil
}

func (f *fakeAccessRepo) DeleteKey(_ context.Context, _ access.KeyToken) (bool, error) {
	return false, nil
}

func (f *fakeAccessRepo) ListKeys(_ context.Context) ([]*access.AccessKey, error) { return nil, nil }

func (f *fakeAccessRepo) TokenExists(_ access.KeyToken) (bool, error) { return false, nil }

func (f *fakeAccessRepo) GetUser(_ context.Context, _ shared.TelegramID) (*access.AuthorizedUser, error) {
	return nil, shared.ErrUserNotFound
}

func (f *fakeAccessRepo) ListUsers(_ context.Context) ([]*access.AuthorizedUser, error) {
	return nil, nil
}

func (f *fakeAccessRepo) CountUsers(_ context.Context) (int, error) { return 0, nil }

func (f *fakeAccessRepo) IsAuthorized(_ context.Context, userID shared.TelegramID) (bool, error) {
	f.authCalls++
	if f.authErr != nil {
		return false, f.authErr
	}
	if userID == f.superUser {
		return true, nil
	}
	return f.authorized[userID], nil
}

func (f *fakeAccessRepo) IsSuperUser(userID shared.TelegramID) bool {
	return userID == f.superUser
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	adminID    = int64(42)
	invitedID  = int64(100)
	strangerID = int64(999)
)

func newTestAuth(repo access.Repository, sessions *SessionStore) *AuthMiddleware {
	return NewAuthMiddleware(repo, sessions, DefaultAuthConfig())
}

func TestAuthenticate_AuthorizedUserContinues(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	repo.authorized[shared.TelegramID(invitedID)] = true
	mw := newTestAuth(repo, NewSessionStore())

	result, err := mw.Authenticate(context.Background(), invitedID, "week")
	require.NoError(t, err)

	assert.True(t, result.IsAuthorized)
	assert.True(t, result.ShouldContinue)
	assert.False(t, result.IsSuperUser)
	assert.Empty(t, result.ResponseMessage)
}

func TestAuthenticate_SuperUserFlagged(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	mw := newTestAuth(repo, NewSessionStore())

	result, err := mw.Authenticate(context.Background(), adminID, "week")
	require.NoError(t, err)

	assert.True(t, result.IsAuthorized)
	assert.True(t, result.IsSuperUser)
	assert.True(t, result.ShouldContinue)
}

func TestAuthenticate_RefusalPromptsForKey(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	sessions := NewSessionStore()
	mw := newTestAuth(repo, sessions)

	result, err := mw.Authenticate(context.Background(), strangerID, "week")
	require.NoError(t, err)

	assert.False(t, result.IsAuthorized)
	assert.False(t, result.ShouldContinue)
	assert.Contains(t, result.ResponseMessage, "Доступ ограничен")
	assert.Contains(t, result.ResponseMessage, "ключ доступа")

	// The refusal arms the key prompt.
	assert.Equal(t, PendingKey, sessions.Pending(shared.TelegramID(strangerID)))
}

func TestAuthenticate_PublicCommandAlwaysContinues(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	sessions := NewSessionStore()
	mw := newTestAuth(repo, sessions)

	for _, command := range []string{"start", "admin"} {
		result, err := mw.Authenticate(context.Background(), strangerID, command)
		require.NoError(t, err)

		assert.True(t, result.ShouldContinue, "command %q must reach its handler", command)
		assert.False(t, result.IsAuthorized)
		assert.Empty(t, result.ResponseMessage)
	}

	// Public commands never arm the key prompt by themselves.
	assert.Equal(t, PendingNone, sessions.Pending(shared.TelegramID(strangerID)))
}

func TestAuthenticateCallback_RefusalIsAlert(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	sessions := NewSessionStore()
	mw := newTestAuth(repo, sessions)

	result, err := mw.AuthenticateCallback(context.Background(), strangerID)
	require.NoError(t, err)

	assert.False(t, result.ShouldContinue)
	assert.Equal(t, "⛔ Нет доступа. Введи /start", result.CallbackAlert)
	assert.Empty(t, result.ResponseMessage)

	// Callback refusals do not change the conversation state.
	assert.Equal(t, PendingNone, sessions.Pending(shared.TelegramID(strangerID)))
}

func TestAuthenticate_CachesPositiveVerdicts(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	repo.authorized[shared.TelegramID(invitedID)] = true
	mw := newTestAuth(repo, NewSessionStore())

	for i := 0; i < 3; i++ {
		_, err := mw.Authenticate(context.Background(), invitedID, "week")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, repo.authCalls, "repeated checks must hit the cache")
}

func TestAuthenticate_NeverCachesRefusals(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	mw := newTestAuth(repo, NewSessionStore())

	_, err := mw.Authenticate(context.Background(), strangerID, "week")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.authCalls)

	// Key activated between the two checks.
	repo.authorized[shared.TelegramID(strangerID)] = true

	result, err := mw.Authenticate(context.Background(), strangerID, "week")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.authCalls, "refusals must not be cached")
	assert.True(t, result.IsAuthorized)
}

func TestHandleEvent_RevocationInvalidatesCache(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	repo.authorized[shared.TelegramID(invitedID)] = true
	mw := newTestAuth(repo, NewSessionStore())

	_, err := mw.Authenticate(context.Background(), invitedID, "week")
	require.NoError(t, err)
	require.Equal(t, 1, repo.authCalls)

	// Access revoked: the store no longer knows the user, the cache still does.
	delete(repo.authorized, shared.TelegramID(invitedID))

	token := access.NormalizeToken("AB12-CD34-EF56")
	event := access.NewUserRevokedEvent(shared.TelegramID(invitedID), token)
	require.NoError(t, mw.HandleEvent(event))

	result, err := mw.Authenticate(context.Background(), invitedID, "week")
	require.NoError(t, err)

	assert.False(t, result.IsAuthorized)
	assert.Equal(t, 2, repo.authCalls, "invalidation must force a fresh check")
}

func TestAuthMiddleware_EventTypes(t *testing.T) {
	mw := newTestAuth(newFakeAccessRepo(adminID), NewSessionStore())

	assert.Equal(t, []shared.EventType{shared.EventUserRevoked}, mw.EventTypes())
}

func TestAuthenticate_RepositoryErrorPropagates(t *testing.T) {
	repo := newFakeAccessRepo(adminID)
	repo.authErr = errors.New("disk gone")
	mw := newTestAuth(repo, NewSessionStore())

	_, err := mw.Authenticate(context.Background(), invitedID, "week")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorization check")
}

func TestContextHelpers_RoundTrip(t *testing.T) {
	ctx := context.Background()

	ctx = ContextWithTelegramID(ctx, invitedID)
	ctx = ContextWithRequestID(ctx, "req-123")

	assert.Equal(t, invitedID, TelegramIDFromContext(ctx))
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))

	// Missing values come back as zero values.
	empty := context.Background()
	assert.Zero(t, TelegramIDFromContext(empty))
	assert.Empty(t, RequestIDFromContext(empty))
	assert.True(t, StartTimeFromContext(empty).IsZero())
}
