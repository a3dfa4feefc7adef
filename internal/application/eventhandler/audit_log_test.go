package eventhandler

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// opaqueEvent is an event type none of the handlers know about.
type opaqueEvent struct{ shared.BaseEvent }

func (e opaqueEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"kind": "opaque"}
}

func mustToken(t *testing.T, raw string) access.KeyToken {
	t.Helper()
	token := access.NormalizeToken(raw)
	require.True(t, token.IsValid())
	return token
}

func weekPeriod(t *testing.T) homework.Period {
	t.Helper()
	return homework.Period{
		From: homework.MustParseDate("2025-12-15"),
		To:   homework.MustParseDate("2025-12-22"),
	}
}

func TestAuditLogHandler_LogsKeyLifecycle(t *testing.T) {
	var buf bytes.Buffer
	h := NewAuditLogHandler(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	token := mustToken(t, "AB12-CD34-EF56")
	userID := shared.TelegramID(555)

	require.NoError(t, h.Handle(access.NewKeyIssuedEvent(token)))
	require.NoError(t, h.Handle(access.NewKeyActivatedEvent(token, userID, "@petya")))
	require.NoError(t, h.Handle(access.NewKeyRevokedEvent(token, &userID)))
	require.NoError(t, h.Handle(access.NewUserRevokedEvent(userID, token)))

	out := buf.String()
	assert.Contains(t, out, "key issued")
	assert.Contains(t, out, "key activated")
	assert.Contains(t, out, "key revoked")
	assert.Contains(t, out, "user access revoked")
	assert.Contains(t, out, "AB12-CD34-EF56")
	assert.Contains(t, out, "@petya")
	assert.Contains(t, out, "revoked_user_id=555")
}

func TestAuditLogHandler_LogsFetchOutcomes(t *testing.T) {
	var buf bytes.Buffer
	h := NewAuditLogHandler(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	period := weekPeriod(t)
	require.NoError(t, h.Handle(homework.NewFetchedEvent(period, 7)))
	require.NoError(t, h.Handle(homework.NewFetchFailedEvent(period, "credentials")))

	out := buf.String()
	assert.Contains(t, out, "homework fetched")
	assert.Contains(t, out, "records=7")
	assert.Contains(t, out, "homework fetch failed")
	assert.Contains(t, out, "reason=credentials")
	assert.Contains(t, out, "2025-12-15")
}

func TestAuditLogHandler_UnknownEventStillLogged(t *testing.T) {
	var buf bytes.Buffer
	h := NewAuditLogHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	ev := opaqueEvent{shared.NewBaseEvent("something.else", "agg-1")}
	require.NoError(t, h.Handle(ev))

	assert.Contains(t, buf.String(), "something.else")
}

func TestAuditLogHandler_EventTypes(t *testing.T) {
	h := NewAuditLogHandler(nil)

	types := h.EventTypes()
	assert.Contains(t, types, shared.EventKeyActivated)
	assert.Contains(t, types, shared.EventHomeworkFetchFailed)
	assert.Len(t, types, 6)
}
