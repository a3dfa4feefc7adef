package access

import (
	"context"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт хранилища ключей и пользователей. Единственная реализация -
// JSON-файл с атомарной перезаписью (infrastructure/persistence/jsonfile).
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над ключами доступа и авторизованными
// пользователями. Каждая мутирующая операция долговечно фиксирует состояние
// до возврата успеха; конкурентные мутации сериализуются реализацией.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Key Operations
	// ─────────────────────────────────────────────────────────────────────────

	// CreateKey сохраняет новый неиспользованный ключ.
	// Возвращает ErrAlreadyExists, если токен уже занят.
	CreateKey(ctx context.Context, key *AccessKey) error

	// GetKey возвращает ключ по токену.
	// Возвращает ErrKeyNotFound, если ключ не найден.
	GetKey(ctx context.Context, token KeyToken) (*AccessKey, error)

	// ActivateKey атомарно активирует ключ для пользователя.
	// Возвращает false без мутации, если ключ не существует, уже использован,
	// пользователь уже авторизован или является супер-пользователем
	// (супер-пользователь авторизован конфигурацией и не расходует ключи).
	// Из двух конкурентных активаций одного ключа выигрывает ровно одна.
	ActivateKey(ctx context.Context, token KeyToken, userID shared.TelegramID, name string) (bool, error)

	// DeleteKey удаляет ключ; если ключ был активирован, каскадно удаляется
	// и связанный пользователь. Возвращает false, если токен не найден.
	DeleteKey(ctx context.Context, token KeyToken) (bool, error)

	// ListKeys возвращает все ключи в каноническом порядке:
	// сначала неиспользованные, внутри группы новые раньше старых.
	ListKeys(ctx context.Context) ([]*AccessKey, error)

	// TokenExists проверяет занятость токена (для генератора ключей).
	TokenExists(token KeyToken) (bool, error)

	// ─────────────────────────────────────────────────────────────────────────
	// User Operations
	// ─────────────────────────────────────────────────────────────────────────

	// GetUser возвращает авторизованного пользователя.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetUser(ctx context.Context, userID shared.TelegramID) (*AuthorizedUser, error)

	// ListUsers возвращает всех авторизованных пользователей.
	ListUsers(ctx context.Context) ([]*AuthorizedUser, error)

	// CountUsers возвращает количество авторизованных пользователей.
	CountUsers(ctx context.Context) (int, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Authorization
	// ─────────────────────────────────────────────────────────────────────────

	// IsAuthorized возвращает true для супер-пользователя и для любого
	// пользователя с записью в хранилище.
	IsAuthorized(ctx context.Context, userID shared.TelegramID) (bool, error)

	// IsSuperUser проверяет совпадение с настроенным супер-пользователем.
	// Чистое сравнение с конфигурацией, хранилище не читается.
	IsSuperUser(userID shared.TelegramID) bool
}
