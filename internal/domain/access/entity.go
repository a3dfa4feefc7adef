// Package access содержит доменную модель ключей доступа и авторизованных
// пользователей. Это ядро бизнес-логики - здесь нет внешних зависимостей.
package access

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// KeyToken представляет токен ключа доступа в формате XXXX-XXXX-XXXX
// (заглавные латинские буквы и цифры). Сравнение регистронезависимое:
// перед любой операцией токен нормализуется через NormalizeToken.
type KeyToken string

var keyTokenRegex = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// IsValid проверяет, что токен соответствует формату XXXX-XXXX-XXXX.
func (t KeyToken) IsValid() bool {
	return keyTokenRegex.MatchString(string(t))
}

// String возвращает строковое представление токена.
func (t KeyToken) String() string {
	return string(t)
}

// NormalizeToken приводит пользовательский ввод к каноническому виду токена.
func NormalizeToken(raw string) KeyToken {
	return KeyToken(strings.ToUpper(strings.TrimSpace(raw)))
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// AccessKey - одноразовый пригласительный ключ.
// Жизненный цикл: unused -> used (ровно один переход), любое состояние -> удалён.
type AccessKey struct {
	// Token - уникальный токен ключа.
	Token KeyToken

	// CreatedAt - время создания ключа.
	CreatedAt time.Time

	// ActivatedBy - Telegram ID активировавшего пользователя (nil, пока ключ не использован).
	ActivatedBy *shared.TelegramID

	// ActivatedByName - отображаемое имя активировавшего (nil, пока ключ не использован).
	ActivatedByName *string

	// ActivatedAt - время активации (nil, пока ключ не использован).
	// Инвариант: ActivatedBy и ActivatedAt либо оба nil, либо оба заполнены.
	ActivatedAt *time.Time
}

// IsUsed возвращает true, если ключ уже активирован.
func (k *AccessKey) IsUsed() bool {
	return k.ActivatedBy != nil
}

// Activate помечает ключ использованным. Возвращает ErrKeyAlreadyUsed,
// если переход unused -> used уже произошёл: ключ одноразовый и не
// возвращается в исходное состояние.
func (k *AccessKey) Activate(userID shared.TelegramID, name string, at time.Time) error {
	if k.IsUsed() {
		return shared.ErrKeyAlreadyUsed
	}

	k.ActivatedBy = &userID
	k.ActivatedByName = &name
	k.ActivatedAt = &at

	return nil
}

// NewAccessKey создаёт новый неиспользованный ключ.
func NewAccessKey(token KeyToken, createdAt time.Time) (*AccessKey, error) {
	if !token.IsValid() {
		return nil, shared.ErrInvalidKeyToken
	}

	return &AccessKey{
		Token:     token,
		CreatedAt: createdAt,
	}, nil
}

// AuthorizedUser - пользователь, получивший доступ по ключу.
type AuthorizedUser struct {
	// UserID - Telegram ID пользователя.
	UserID shared.TelegramID

	// Name - отображаемое имя на момент активации (@username или полное имя).
	Name string

	// KeyUsed - токен ключа, по которому выдан доступ.
	// Инвариант: не более одного пользователя на ключ.
	KeyUsed KeyToken

	// ActivatedAt - время активации.
	ActivatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// SortKeys упорядочивает ключи канонически: сначала неиспользованные,
// внутри группы - новые раньше старых.
func SortKeys(keys []*AccessKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].IsUsed() != keys[j].IsUsed() {
			return !keys[i].IsUsed()
		}
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}

// FilterUnused возвращает только неиспользованные ключи, сохраняя порядок.
func FilterUnused(keys []*AccessKey) []*AccessKey {
	out := make([]*AccessKey, 0, len(keys))
	for _, k := range keys {
		if !k.IsUsed() {
			out = append(out, k)
		}
	}
	return out
}

// FilterUsed возвращает только использованные ключи, сохраняя порядок.
func FilterUsed(keys []*AccessKey) []*AccessKey {
	out := make([]*AccessKey, 0, len(keys))
	for _, k := range keys {
		if k.IsUsed() {
			out = append(out, k)
		}
	}
	return out
}

// SortUsers упорядочивает пользователей по времени активации (старые раньше),
// при равенстве - по Telegram ID.
func SortUsers(users []*AuthorizedUser) {
	sort.SliceStable(users, func(i, j int) bool {
		if !users[i].ActivatedAt.Equal(users[j].ActivatedAt) {
			return users[i].ActivatedAt.Before(users[j].ActivatedAt)
		}
		return users[i].UserID < users[j].UserID
	})
}
