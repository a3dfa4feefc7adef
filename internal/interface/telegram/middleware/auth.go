// Package middleware contains Telegram bot middlewares for request processing.
// These middlewares form a chain that processes every incoming update before
// it reaches the handler, and can modify the response after the handler completes.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT KEYS
// Used to pass data through the request context.
// ══════════════════════════════════════════════════════════════════════════════

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// TelegramIDContextKey is the context key for the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"

	// RequestIDContextKey is the context key for request tracing.
	RequestIDContextKey contextKey = "request_id"

	// StartTimeContextKey is the context key for request start time.
	StartTimeContextKey contextKey = "start_time"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH MIDDLEWARE
// Verifies that the user holds access before a protected command or callback
// reaches its handler. The bot is invitation-only: a refused user is asked
// for an invitation key, not shown an apology.
// ══════════════════════════════════════════════════════════════════════════════

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// PublicCommands are commands that don't require authorization.
	// These let a new user reach the onboarding flow.
	PublicCommands map[string]bool

	// CacheTTL is how long a positive authorization verdict is cached.
	// Refusals are never cached, so a freshly activated key works on the
	// very next message.
	CacheTTL time.Duration

	// OnUnauthorized is called when an unauthorized user sends a protected
	// command or plain text. Returns the message to send to the user.
	OnUnauthorized func(telegramID int64) string

	// CallbackAlertText is shown as a popup when an unauthorized user taps
	// an inline button. Buttons can outlive access: a revoked user still
	// has the old keyboard on screen.
	CallbackAlertText string
}

// DefaultAuthConfig returns sensible defaults for auth middleware.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		PublicCommands: map[string]bool{
			// start runs its own authorized/unauthorized branching.
			"/start": true,
			"start":  true,
			// admin silently ignores everyone but the administrator,
			// so the generic refusal must not fire first.
			"/admin": true,
			"admin":  true,
		},
		CacheTTL: 5 * time.Minute,
		OnUnauthorized: func(telegramID int64) string {
			return "🔐 <b>Доступ ограничен</b>\n\n" +
				"Отправь ключ доступа чтобы активировать бота."
		},
		CallbackAlertText: "⛔ Нет доступа. Введи /start",
	}
}

// AuthMiddleware provides authorization for bot commands and callbacks.
// It checks the access store, caches positive verdicts, and records that
// a refused user should be prompted for an invitation key.
type AuthMiddleware struct {
	accessRepo access.Repository
	sessions   *SessionStore
	config     AuthConfig
	cache      *verdictCache
}

// NewAuthMiddleware creates a new auth middleware with the given configuration.
func NewAuthMiddleware(repo access.Repository, sessions *SessionStore, config AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{
		accessRepo: repo,
		sessions:   sessions,
		config:     config,
		cache:      newVerdictCache(config.CacheTTL),
	}
}

// AuthResult represents the result of an authorization check.
type AuthResult struct {
	// IsAuthorized indicates whether the user holds access.
	IsAuthorized bool

	// IsSuperUser indicates whether the user is the administrator.
	IsSuperUser bool

	// ShouldContinue indicates whether request processing should continue.
	ShouldContinue bool

	// ResponseMessage is the HTML message to send when a command was refused.
	ResponseMessage string

	// CallbackAlert is the popup text to show when a callback was refused.
	CallbackAlert string
}

// Authenticate checks whether the user may run the given command.
// This is the entry point for message updates.
func (m *AuthMiddleware) Authenticate(
	ctx context.Context,
	telegramID int64,
	command string,
) (*AuthResult, error) {
	if m.isPublicCommand(command) {
		result, err := m.check(ctx, telegramID)
		if err != nil {
			return nil, err
		}
		result.ShouldContinue = true
		return result, nil
	}

	result, err := m.check(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if result.IsAuthorized {
		result.ShouldContinue = true
		return result, nil
	}

	// Ask for a key and expect the next plain-text message to be one.
	if m.sessions != nil {
		m.sessions.Set(shared.TelegramID(telegramID), PendingKey)
	}
	result.ResponseMessage = m.config.OnUnauthorized(telegramID)
	return result, nil
}

// AuthenticateCallback checks whether the user may trigger a callback.
// Refusals surface as a popup alert instead of a chat message.
func (m *AuthMiddleware) AuthenticateCallback(
	ctx context.Context,
	telegramID int64,
) (*AuthResult, error) {
	result, err := m.check(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if result.IsAuthorized {
		result.ShouldContinue = true
		return result, nil
	}

	result.CallbackAlert = m.config.CallbackAlertText
	return result, nil
}

// check resolves the authorization verdict, consulting the cache first.
func (m *AuthMiddleware) check(ctx context.Context, telegramID int64) (*AuthResult, error) {
	id := shared.TelegramID(telegramID)

	if m.cache.get(id) {
		return &AuthResult{
			IsAuthorized: true,
			IsSuperUser:  m.accessRepo.IsSuperUser(id),
		}, nil
	}

	authorized, err := m.accessRepo.IsAuthorized(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auth: authorization check: %w", err)
	}
	if authorized {
		m.cache.set(id)
	}

	return &AuthResult{
		IsAuthorized: authorized,
		IsSuperUser:  m.accessRepo.IsSuperUser(id),
	}, nil
}

// isPublicCommand checks if the command doesn't require authorization.
func (m *AuthMiddleware) isPublicCommand(command string) bool {
	return m.config.PublicCommands[command]
}

// InvalidateCache removes a user's cached verdict.
// Call this when the user's access changes.
func (m *AuthMiddleware) InvalidateCache(telegramID int64) {
	m.cache.delete(shared.TelegramID(telegramID))
}

// InvalidateAllCache clears the entire verdict cache.
func (m *AuthMiddleware) InvalidateAllCache() {
	m.cache.clear()
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT INTEGRATION
// Revocations invalidate the cached verdict so access ends within one
// request instead of one cache TTL.
// ══════════════════════════════════════════════════════════════════════════════

// EventTypes returns the event types the middleware wants to observe.
func (m *AuthMiddleware) EventTypes() []shared.EventType {
	return []shared.EventType{shared.EventUserRevoked}
}

// HandleEvent drops the cached verdict of a revoked user.
func (m *AuthMiddleware) HandleEvent(event shared.Event) error {
	if e, ok := event.(access.UserRevokedEvent); ok {
		m.cache.delete(shared.TelegramID(e.UserID))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT HELPERS
// Functions to work with request-scoped data in context.
// ══════════════════════════════════════════════════════════════════════════════

// ContextWithTelegramID adds the Telegram ID to the context.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext retrieves the Telegram ID from context.
// Returns 0 if not found.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, ok := ctx.Value(TelegramIDContextKey).(int64)
	if !ok {
		return 0
	}
	return id
}

// ContextWithRequestID adds the request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns "" if not found.
func RequestIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(RequestIDContextKey).(string)
	if !ok {
		return ""
	}
	return id
}

// ContextWithStartTime adds the request start time to the context.
func ContextWithStartTime(ctx context.Context, start time.Time) context.Context {
	return context.WithValue(ctx, StartTimeContextKey, start)
}

// StartTimeFromContext retrieves the request start time from context.
// Returns the zero time if not found.
func StartTimeFromContext(ctx context.Context) time.Time {
	start, ok := ctx.Value(StartTimeContextKey).(time.Time)
	if !ok {
		return time.Time{}
	}
	return start
}

// ══════════════════════════════════════════════════════════════════════════════
// VERDICT CACHE
// Simple in-memory cache for positive authorization verdicts. Only the fact
// of access is cached, so entries carry nothing but an expiry.
// ══════════════════════════════════════════════════════════════════════════════

// verdictCache is a thread-safe cache of authorized user IDs.
type verdictCache struct {
	mu      sync.RWMutex
	entries map[shared.TelegramID]time.Time
	ttl     time.Duration
}

func newVerdictCache(ttl time.Duration) *verdictCache {
	c := &verdictCache{
		entries: make(map[shared.TelegramID]time.Time),
		ttl:     ttl,
	}

	// Start background cleanup goroutine
	go c.cleanupLoop()

	return c
}

func (c *verdictCache) get(id shared.TelegramID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiresAt, ok := c.entries[id]
	if !ok || time.Now().After(expiresAt) {
		return false
	}

	return true
}

func (c *verdictCache) set(id shared.TelegramID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = time.Now().Add(c.ttl)
}

func (c *verdictCache) delete(id shared.TelegramID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

func (c *verdictCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[shared.TelegramID]time.Time)
}

func (c *verdictCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *verdictCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, id)
		}
	}
}
