package access

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY GENERATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// tokenAlphabet - алфавит токена: 36 символов на позицию.
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	tokenGroupLen   = 4
	tokenGroupCount = 3
	tokenDelimiter  = "-"

	// maxGenerateAttempts ограничивает перегенерацию при коллизиях.
	// При пространстве 36^12 исчерпание лимита означает сбой хранилища,
	// а не реальную коллизию.
	maxGenerateAttempts = 100
)

// TokenChecker проверяет существование токена в хранилище.
// Реализуется репозиторием ключей.
type TokenChecker interface {
	TokenExists(token KeyToken) (bool, error)
}

// GenerateToken создаёт новый уникальный токен формата XXXX-XXXX-XXXX.
// При коллизии делается полностью новая случайная выборка - формат и
// пространство токена никогда не уменьшаются.
func GenerateToken(checker TokenChecker) (KeyToken, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}

		exists, err := checker.TokenExists(token)
		if err != nil {
			return "", fmt.Errorf("check token uniqueness: %w", err)
		}
		if !exists {
			return token, nil
		}
	}

	return "", fmt.Errorf("generate token: no unique token after %d attempts", maxGenerateAttempts)
}

// randomToken собирает токен из криптографически случайных символов алфавита.
func randomToken() (KeyToken, error) {
	groups := make([]string, 0, tokenGroupCount)
	alphabetLen := big.NewInt(int64(len(tokenAlphabet)))

	for g := 0; g < tokenGroupCount; g++ {
		var sb strings.Builder
		for i := 0; i < tokenGroupLen; i++ {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("read random: %w", err)
			}
			sb.WriteByte(tokenAlphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}

	return KeyToken(strings.Join(groups, tokenDelimiter)), nil
}
