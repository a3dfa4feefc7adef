package handler

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
)

func newAdminFixture(repo *fakeAccessRepo) *AdminHandler {
	return NewAdminHandler(
		command.NewIssueKeyHandler(repo, nil, testLogger()),
		command.NewRevokeKeyHandler(repo, nil, testLogger()),
		query.NewListKeysHandler(repo),
		query.NewGetAccessStatsHandler(repo),
		repo,
		presenter.NewAdminPresenter(),
	)
}

func ownerRequest() AdminRequest {
	return AdminRequest{TelegramID: ownerID}
}

func TestAdminCommand_SilentForNonOwner(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	h := newAdminFixture(repo)

	resp, err := h.HandleCommand(context.Background(), AdminRequest{TelegramID: strangerID})
	require.NoError(t, err)

	assert.True(t, resp.Skip)
	assert.Empty(t, resp.Text)
	assert.Empty(t, resp.Toast)
}

func TestAdminCommand_ShowsPanel(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	repo.keys = append(repo.keys, unusedKey("AB12-CD34-EF56", time.Now().UTC()))
	repo.seedActivated("GH78-IJ90-KL12", invitedID, "@friend", time.Now().UTC())
	h := newAdminFixture(repo)

	resp, err := h.HandleCommand(context.Background(), ownerRequest())
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "🔐 <b>Админ-панель</b>")
	assert.Contains(t, resp.Text, "• Активных ключей: 1")
	assert.Contains(t, resp.Text, "• Использованных ключей: 1")
	assert.Contains(t, resp.Text, "• Пользователей: 1")
	require.NotNil(t, resp.Keyboard)
	assert.Equal(t, "admin_create_key", resp.Keyboard.Rows[0][0].CallbackData)
	assert.False(t, resp.Skip)
}

func TestAdminCallbacks_DeniedWithAlert(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	h := newAdminFixture(repo)
	ctx := context.Background()
	req := AdminRequest{TelegramID: strangerID}

	calls := []func() (*AdminResponse, error){
		func() (*AdminResponse, error) { return h.HandleMenu(ctx, req) },
		func() (*AdminResponse, error) { return h.HandleCreateKey(ctx, req) },
		func() (*AdminResponse, error) { return h.HandleUnusedKeys(ctx, req) },
		func() (*AdminResponse, error) { return h.HandleUsedKeys(ctx, req) },
		func() (*AdminResponse, error) { return h.HandleDeleteKey(ctx, req, "AB12-CD34-EF56") },
	}

	for _, call := range calls {
		resp, err := call()
		require.NoError(t, err)
		assert.Equal(t, "⛔ Нет доступа", resp.Toast)
		assert.True(t, resp.ShowAlert)
		assert.Empty(t, resp.Text)
	}
}

func TestHandleCreateKey(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	h := newAdminFixture(repo)

	resp, err := h.HandleCreateKey(context.Background(), ownerRequest())
	require.NoError(t, err)

	assert.Equal(t, "Ключ создан!", resp.Toast)
	assert.False(t, resp.ShowAlert)
	assert.Contains(t, resp.Text, "✅ <b>Ключ создан!</b>")

	tokenPattern := regexp.MustCompile(`<code>([A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4})</code>`)
	match := tokenPattern.FindStringSubmatch(resp.Text)
	require.NotNil(t, match, "created key must appear in the message")

	// The generated key must actually be stored and activatable.
	exists, err := repo.TokenExists(access.KeyToken(match[1]))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleUnusedKeys_ListsWithDeleteButtons(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	repo.keys = append(repo.keys, unusedKey("AB12-CD34-EF56", time.Now().UTC()))
	h := newAdminFixture(repo)

	resp, err := h.HandleUnusedKeys(context.Background(), ownerRequest())
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "🔑 <b>Активные ключи:</b>")
	assert.Contains(t, resp.Text, "<code>AB12-CD34-EF56</code>")
	require.NotNil(t, resp.Keyboard)
	assert.Equal(t, "delete_key:AB12-CD34-EF56", resp.Keyboard.Rows[0][0].CallbackData)
}

func TestHandleUsedKeys_ListsActivations(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	repo.seedActivated("GH78-IJ90-KL12", invitedID, "@friend", time.Now().UTC())
	h := newAdminFixture(repo)

	resp, err := h.HandleUsedKeys(context.Background(), ownerRequest())
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "👥 <b>Использованные ключи:</b>")
	assert.Contains(t, resp.Text, "👤 @friend")
	require.NotNil(t, resp.Keyboard)
	assert.Equal(t, "delete_key:GH78-IJ90-KL12", resp.Keyboard.Rows[0][0].CallbackData)
}

func TestHandleDeleteKey_RevokesAndRefreshesPanel(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	repo.seedActivated("GH78-IJ90-KL12", invitedID, "@friend", time.Now().UTC())
	h := newAdminFixture(repo)

	resp, err := h.HandleDeleteKey(context.Background(), ownerRequest(), "GH78-IJ90-KL12")
	require.NoError(t, err)

	assert.Equal(t, "🗑 Ключ удалён!", resp.Toast)
	assert.True(t, resp.ShowAlert)

	// The panel is re-rendered with the key and its user gone.
	assert.Contains(t, resp.Text, "🔐 <b>Админ-панель</b>")
	assert.Contains(t, resp.Text, "• Использованных ключей: 0")
	assert.Contains(t, resp.Text, "• Пользователей: 0")

	authorized, err := repo.IsAuthorized(context.Background(), shared.TelegramID(invitedID))
	require.NoError(t, err)
	assert.False(t, authorized, "cascade delete must revoke the holder")
}

func TestHandleDeleteKey_MissingKey(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID)}
	h := newAdminFixture(repo)

	resp, err := h.HandleDeleteKey(context.Background(), ownerRequest(), "ZZZZ-ZZZZ-ZZZZ")
	require.NoError(t, err)

	assert.Equal(t, "❌ Ключ не найден", resp.Toast)
	assert.True(t, resp.ShowAlert)
	assert.Contains(t, resp.Text, "🔐 <b>Админ-панель</b>")
}

func TestAdminHandlers_StorageErrorPropagates(t *testing.T) {
	repo := &fakeAccessRepo{superID: shared.TelegramID(ownerID), err: assert.AnError}
	h := newAdminFixture(repo)

	_, err := h.HandleCommand(context.Background(), ownerRequest())
	assert.Error(t, err)

	_, err = h.HandleUnusedKeys(context.Background(), ownerRequest())
	assert.Error(t, err)
}
