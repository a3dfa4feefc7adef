package query

import (
	"context"
	"fmt"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST KEYS QUERY
// Читает ключи для админ-панели и CLI. Ключи приходят в каноническом
// порядке хранилища: сначала неиспользованные, новые раньше старых.
// ══════════════════════════════════════════════════════════════════════════════

// KeyFilter ограничивает выборку ключей.
type KeyFilter string

const (
	// KeysAll - все ключи.
	KeysAll KeyFilter = "all"

	// KeysUnused - только неактивированные ключи.
	KeysUnused KeyFilter = "unused"

	// KeysUsed - только активированные ключи.
	KeysUsed KeyFilter = "used"
)

// ListKeysQuery содержит параметры выборки ключей.
type ListKeysQuery struct {
	// Filter - какие ключи вернуть. Пустое значение равносильно KeysAll.
	Filter KeyFilter
}

// KeyDTO - ключ в пригодном для отображения виде.
type KeyDTO struct {
	// Token - токен ключа.
	Token string `json:"token"`

	// CreatedAt - время создания.
	CreatedAt time.Time `json:"created_at"`

	// IsUsed - активирован ли ключ.
	IsUsed bool `json:"is_used"`

	// ActivatedBy - Telegram ID активировавшего (0, пока ключ не использован).
	ActivatedBy int64 `json:"activated_by,omitempty"`

	// ActivatedByName - имя активировавшего ("", пока ключ не использован).
	ActivatedByName string `json:"activated_by_name,omitempty"`

	// ActivatedAt - время активации (nil, пока ключ не использован).
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// ListKeysResult содержит результат выборки ключей.
type ListKeysResult struct {
	// Keys - ключи после фильтрации, в каноническом порядке.
	Keys []KeyDTO `json:"keys"`

	// TotalCount - общее количество ключей до фильтрации.
	TotalCount int `json:"total_count"`

	// UnusedCount - количество неиспользованных ключей (до фильтрации).
	UnusedCount int `json:"unused_count"`

	// UsedCount - количество использованных ключей (до фильтрации).
	UsedCount int `json:"used_count"`
}

// ListKeysHandler обрабатывает выборку ключей.
type ListKeysHandler struct {
	repo access.Repository
}

// NewListKeysHandler creates a new ListKeysHandler.
func NewListKeysHandler(repo access.Repository) *ListKeysHandler {
	return &ListKeysHandler{repo: repo}
}

// Handle executes the list keys query.
func (h *ListKeysHandler) Handle(ctx context.Context, q ListKeysQuery) (*ListKeysResult, error) {
	keys, err := h.repo.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_keys: %w", err)
	}

	unused := access.FilterUnused(keys)
	used := access.FilterUsed(keys)

	var selected []*access.AccessKey
	switch q.Filter {
	case KeysUnused:
		selected = unused
	case KeysUsed:
		selected = used
	default:
		selected = keys
	}

	dtos := make([]KeyDTO, 0, len(selected))
	for _, k := range selected {
		dtos = append(dtos, keyToDTO(k))
	}

	return &ListKeysResult{
		Keys:        dtos,
		TotalCount:  len(keys),
		UnusedCount: len(unused),
		UsedCount:   len(used),
	}, nil
}

func keyToDTO(k *access.AccessKey) KeyDTO {
	dto := KeyDTO{
		Token:     k.Token.String(),
		CreatedAt: k.CreatedAt,
		IsUsed:    k.IsUsed(),
	}
	if k.ActivatedBy != nil {
		dto.ActivatedBy = k.ActivatedBy.Int64()
	}
	if k.ActivatedByName != nil {
		dto.ActivatedByName = *k.ActivatedByName
	}
	dto.ActivatedAt = k.ActivatedAt
	return dto
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS STATS QUERY
// Сводка для шапки админ-панели и keyctl stats.
// ══════════════════════════════════════════════════════════════════════════════

// GetAccessStatsQuery запрашивает сводную статистику доступа.
type GetAccessStatsQuery struct{}

// AccessStatsResult содержит счётчики ключей и пользователей.
type AccessStatsResult struct {
	// UnusedKeys - количество активных (неиспользованных) ключей.
	UnusedKeys int `json:"unused_keys"`

	// UsedKeys - количество использованных ключей.
	UsedKeys int `json:"used_keys"`

	// Users - количество авторизованных пользователей.
	Users int `json:"users"`

	// GeneratedAt - время генерации сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetAccessStatsHandler обрабатывает запрос статистики.
type GetAccessStatsHandler struct {
	repo access.Repository
}

// NewGetAccessStatsHandler creates a new GetAccessStatsHandler.
func NewGetAccessStatsHandler(repo access.Repository) *GetAccessStatsHandler {
	return &GetAccessStatsHandler{repo: repo}
}

// Handle executes the stats query.
func (h *GetAccessStatsHandler) Handle(ctx context.Context, _ GetAccessStatsQuery) (*AccessStatsResult, error) {
	keys, err := h.repo.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("access_stats: %w", err)
	}
	users, err := h.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("access_stats: %w", err)
	}

	return &AccessStatsResult{
		UnusedKeys:  len(access.FilterUnused(keys)),
		UsedKeys:    len(access.FilterUsed(keys)),
		Users:       users,
		GeneratedAt: time.Now(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST USERS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListUsersQuery запрашивает всех авторизованных пользователей.
type ListUsersQuery struct{}

// UserDTO - авторизованный пользователь в пригодном для отображения виде.
type UserDTO struct {
	// UserID - Telegram ID пользователя.
	UserID int64 `json:"user_id"`

	// Name - имя на момент активации.
	Name string `json:"name"`

	// KeyUsed - токен ключа, по которому выдан доступ.
	KeyUsed string `json:"key_used"`

	// ActivatedAt - время активации.
	ActivatedAt time.Time `json:"activated_at"`
}

// ListUsersResult содержит авторизованных пользователей по времени активации.
type ListUsersResult struct {
	// Users - пользователи, старые активации раньше новых.
	Users []UserDTO `json:"users"`
}

// ListUsersHandler обрабатывает выборку пользователей.
type ListUsersHandler struct {
	repo access.Repository
}

// NewListUsersHandler creates a new ListUsersHandler.
func NewListUsersHandler(repo access.Repository) *ListUsersHandler {
	return &ListUsersHandler{repo: repo}
}

// Handle executes the list users query.
func (h *ListUsersHandler) Handle(ctx context.Context, _ ListUsersQuery) (*ListUsersResult, error) {
	users, err := h.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_users: %w", err)
	}

	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, UserDTO{
			UserID:      u.UserID.Int64(),
			Name:        u.Name,
			KeyUsed:     u.KeyUsed.String(),
			ActivatedAt: u.ActivatedAt,
		})
	}

	return &ListUsersResult{Users: dtos}, nil
}
