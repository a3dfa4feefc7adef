package access

import (
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// События жизненного цикла ключей. Публикуются прикладным слоем после
// успешной фиксации в хранилище и питают логи и метрики.
// ══════════════════════════════════════════════════════════════════════════════

// KeyIssuedEvent - выпущен новый ключ.
type KeyIssuedEvent struct {
	shared.BaseEvent
	Token string `json:"token"`
}

// Payload implements shared.Event.
func (e KeyIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"token": e.Token,
	}
}

// NewKeyIssuedEvent creates a new KeyIssuedEvent.
func NewKeyIssuedEvent(token KeyToken) KeyIssuedEvent {
	return KeyIssuedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventKeyIssued, token.String()),
		Token:     token.String(),
	}
}

// KeyActivatedEvent - ключ активирован пользователем.
type KeyActivatedEvent struct {
	shared.BaseEvent
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

// Payload implements shared.Event.
func (e KeyActivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"token":     e.Token,
		"user_id":   e.UserID,
		"user_name": e.UserName,
	}
}

// NewKeyActivatedEvent creates a new KeyActivatedEvent.
func NewKeyActivatedEvent(token KeyToken, userID shared.TelegramID, userName string) KeyActivatedEvent {
	return KeyActivatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventKeyActivated, token.String()),
		Token:     token.String(),
		UserID:    userID.Int64(),
		UserName:  userName,
	}
}

// KeyRevokedEvent - ключ удалён. Если ключ был активирован,
// RevokedUserID содержит каскадно отозванного пользователя.
type KeyRevokedEvent struct {
	shared.BaseEvent
	Token         string `json:"token"`
	RevokedUserID *int64 `json:"revoked_user_id,omitempty"`
}

// Payload implements shared.Event.
func (e KeyRevokedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"token": e.Token,
	}
	if e.RevokedUserID != nil {
		p["revoked_user_id"] = *e.RevokedUserID
	}
	return p
}

// NewKeyRevokedEvent creates a new KeyRevokedEvent.
func NewKeyRevokedEvent(token KeyToken, revokedUser *shared.TelegramID) KeyRevokedEvent {
	ev := KeyRevokedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventKeyRevoked, token.String()),
		Token:     token.String(),
	}
	if revokedUser != nil {
		id := revokedUser.Int64()
		ev.RevokedUserID = &id
	}
	return ev
}

// UserRevokedEvent - пользователь лишился доступа. Публикуется вместе с
// KeyRevokedEvent, когда удаление ключа каскадно отзывает пользователя.
type UserRevokedEvent struct {
	shared.BaseEvent
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// Payload implements shared.Event.
func (e UserRevokedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"token":   e.Token,
	}
}

// NewUserRevokedEvent creates a new UserRevokedEvent.
func NewUserRevokedEvent(userID shared.TelegramID, token KeyToken) UserRevokedEvent {
	return UserRevokedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserRevoked, userID.String()),
		UserID:    userID.Int64(),
		Token:     token.String(),
	}
}
