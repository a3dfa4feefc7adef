package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/external/telegram"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/handler"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// MaxConcurrentUpdates bounds how many updates are processed at once.
	MaxConcurrentUpdates int

	// UpdateTimeout bounds the handling of a single update, including the
	// diary fetch with its retries.
	UpdateTimeout time.Duration

	// GracefulShutdownTimeout is how long Stop waits for in-flight
	// updates to finish.
	GracefulShutdownTimeout time.Duration

	// RateLimitExempt lists Telegram IDs exempt from rate limiting
	// (the administrator).
	RateLimitExempt []int64

	// FreeTextDates enables date lookup in free-form messages.
	FreeTextDates bool

	// AttachmentLinks enables attachment links in homework digests.
	AttachmentLinks bool
}

// DefaultBotConfig returns sensible defaults for the bot.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:                   token,
		Debug:                   false,
		MaxConcurrentUpdates:    32,
		UpdateTimeout:           45 * time.Second,
		GracefulShutdownTimeout: 15 * time.Second,
		FreeTextDates:           true,
		AttachmentLinks:         true,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// BotDependencies contains the application-layer dependencies of the bot.
type BotDependencies struct {
	// AccessRepo is the access key and user store.
	AccessRepo access.Repository

	// ActivateKey activates an invitation key for a user.
	ActivateKey *command.ActivateKeyHandler

	// IssueKey creates a new invitation key.
	IssueKey *command.IssueKeyHandler

	// RevokeKey deletes a key and revokes its user.
	RevokeKey *command.RevokeKeyHandler

	// GetHomework fetches homework from the diary.
	GetHomework *query.GetHomeworkHandler

	// ListKeys lists invitation keys for the admin panel.
	ListKeys *query.ListKeysHandler

	// AccessStats counts keys and users for the admin panel.
	AccessStats *query.GetAccessStatsHandler

	// Metrics records bot metrics. Optional: when nil, a middleware bound
	// to the default Prometheus registry is created.
	Metrics *middleware.MetricsMiddleware
}

func (d BotDependencies) validate() error {
	switch {
	case d.AccessRepo == nil:
		return errors.New("access repository is required")
	case d.ActivateKey == nil:
		return errors.New("activate key handler is required")
	case d.IssueKey == nil:
		return errors.New("issue key handler is required")
	case d.RevokeKey == nil:
		return errors.New("revoke key handler is required")
	case d.GetHomework == nil:
		return errors.New("get homework handler is required")
	case d.ListKeys == nil:
		return errors.New("list keys handler is required")
	case d.AccessStats == nil:
		return errors.New("access stats handler is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the Telegram bot: it polls for updates and pushes each one through
// rate limiting, authorization and panic recovery before routing.
type Bot struct {
	config BotConfig
	client *telegram.Client
	router *Router
	logger *slog.Logger

	sessions           *middleware.SessionStore
	authMiddleware     *middleware.AuthMiddleware
	rateLimiter        *middleware.RateLimiter
	recoveryMiddleware *middleware.RecoveryMiddleware
	metricsMiddleware  *middleware.MetricsMiddleware

	runningMu sync.RWMutex
	running   bool

	updateSem chan struct{}
	wg        sync.WaitGroup
	stats     *BotStats
}

// BotStats tracks bot runtime statistics.
type BotStats struct {
	mu              sync.RWMutex
	StartedAt       time.Time
	UpdatesReceived int64
	UpdatesHandled  int64
	ErrorsCount     int64
	CommandsCount   map[string]int64
}

// NewBot creates a new Telegram bot with all dependencies wired.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if config.Token == "" {
		return nil, errors.New("bot token is required")
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid bot dependencies: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 32
	}
	if config.UpdateTimeout <= 0 {
		config.UpdateTimeout = 45 * time.Second
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = 15 * time.Second
	}

	clientConfig := telegram.DefaultClientConfig(config.Token)
	clientConfig.Logger = logger
	clientConfig.Debug = config.Debug
	client := telegram.NewClient(clientConfig)

	sessions := middleware.NewSessionStore()
	keyboards := presenter.NewKeyboardBuilder()

	homeworkPresenter := presenter.NewHomeworkPresenter()
	if !config.AttachmentLinks {
		homeworkPresenter = homeworkPresenter.WithoutMaterials()
	}

	startHandler := handler.NewStartHandler(deps.ActivateKey, deps.AccessRepo, sessions, keyboards)
	homeworkHandler := handler.NewHomeworkHandler(deps.GetHomework, sessions, homeworkPresenter, keyboards)
	adminHandler := handler.NewAdminHandler(deps.IssueKey, deps.RevokeKey, deps.ListKeys, deps.AccessStats, deps.AccessRepo, presenter.NewAdminPresenter())

	authMiddleware := middleware.NewAuthMiddleware(deps.AccessRepo, sessions, middleware.DefaultAuthConfig())

	rateLimitConfig := middleware.DefaultRateLimitConfig()
	for _, id := range config.RateLimitExempt {
		rateLimitConfig.WhitelistedUsers[id] = true
	}
	rateLimiter := middleware.NewRateLimiter(rateLimitConfig)

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = logger
	recoveryMiddleware := middleware.NewRecoveryMiddleware(recoveryConfig)

	metricsMiddleware := deps.Metrics
	if metricsMiddleware == nil {
		metricsMiddleware = middleware.NewMetricsMiddleware(nil)
	}

	router := NewRouter(RouterConfig{
		Logger:        logger,
		Debug:         config.Debug,
		FreeTextDates: config.FreeTextDates,
	})
	router.Wire(startHandler, homeworkHandler, adminHandler, sessions)

	return &Bot{
		config:             config,
		client:             client,
		router:             router,
		logger:             logger.With("component", "telegram_bot"),
		sessions:           sessions,
		authMiddleware:     authMiddleware,
		rateLimiter:        rateLimiter,
		recoveryMiddleware: recoveryMiddleware,
		metricsMiddleware:  metricsMiddleware,
		updateSem:          make(chan struct{}, config.MaxConcurrentUpdates),
		stats: &BotStats{
			CommandsCount: make(map[string]int64),
		},
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and blocks polling for updates until the context
// is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.stats.mu.Lock()
	b.stats.StartedAt = time.Now()
	b.stats.mu.Unlock()
	b.runningMu.Unlock()

	b.logger.Info("starting telegram bot", "debug", b.config.Debug)

	if err := b.verifyToken(ctx); err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}

	// Drop any stale webhook so long polling receives the updates, and
	// discard whatever queued up while the bot was down.
	if err := b.client.DeleteWebhook(ctx, true); err != nil {
		b.logger.Warn("failed to delete webhook", "error", err)
	}

	return b.client.StartPolling(ctx, b.handleUpdate)
}

// Stop waits for in-flight updates to finish, up to the configured
// graceful shutdown timeout.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all update handlers completed")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// verifyToken verifies the bot token by calling getMe.
func (b *Bot) verifyToken(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}

	b.logger.Info("bot verified",
		"id", me.ID,
		"username", me.Username,
	)

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// handleUpdate admits a single update into the bounded worker pool.
//
// Processing runs in its own goroutine detached from the polling context,
// so a slow diary fetch does not stall the poll loop and in-flight replies
// survive the polling shutdown until Stop's grace period runs out.
func (b *Bot) handleUpdate(ctx context.Context, update *telegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.stats.mu.Lock()
	b.stats.UpdatesReceived++
	b.stats.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()

		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.UpdateTimeout)
		defer cancel()

		b.processUpdate(uctx, update)
	}()

	return nil
}

// processUpdate dispatches one update by type, with tracing and metrics.
func (b *Bot) processUpdate(ctx context.Context, update *telegram.Update) {
	start := time.Now()

	ctx = middleware.ContextWithRequestID(ctx, uuid.NewString())
	ctx = middleware.ContextWithTelegramID(ctx, b.extractTelegramID(update))
	ctx = middleware.ContextWithStartTime(ctx, start)

	var (
		label string
		err   error
	)
	switch {
	case update.Message != nil:
		label = "message"
		req := b.metricsMiddleware.Start(label)
		err = b.handleMessage(ctx, update.Message)
		req.End(err)
	case update.CallbackQuery != nil:
		label = "callback"
		req := b.metricsMiddleware.Start(label)
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
		req.End(err)
	default:
		// Edited messages and other update types are not handled.
		return
	}

	b.stats.mu.Lock()
	b.stats.UpdatesHandled++
	if err != nil {
		b.stats.ErrorsCount++
	}
	b.stats.mu.Unlock()

	if err != nil {
		b.logger.Error("update handling failed",
			"update_id", update.UpdateID,
			"type", label,
			"request_id", middleware.RequestIDFromContext(ctx),
			"duration", time.Since(start),
			"error", err,
		)
	} else if b.config.Debug {
		b.logger.Debug("update handled",
			"update_id", update.UpdateID,
			"type", label,
			"duration", time.Since(start),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// handleMessage processes an incoming message: rate limit first, then route
// as a command or as plain text.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	if !telegram.IsPrivateChat(msg) {
		if b.config.Debug {
			b.logger.Debug("ignoring non-private message", "chat_id", msg.Chat.ID)
		}
		return nil
	}

	telegramID := msg.From.ID
	chatID := msg.Chat.ID

	limit := b.rateLimiter.Check(ctx, telegramID)
	if !limit.Allowed {
		b.metricsMiddleware.RecordRefusal("rate_limited")
		b.logger.Warn("rate limited",
			"telegram_id", telegramID,
			"retry_after", limit.RetryAfter,
			"banned", limit.IsBanned,
		)
		_, err := b.client.SendHTML(ctx, chatID, limit.ResponseMessage)
		return err
	}

	if command := telegram.ExtractCommand(msg); command != "" {
		return b.handleCommand(ctx, telegramID, chatID, command, msg)
	}
	if msg.Text != "" {
		return b.handleTextMessage(ctx, telegramID, chatID, msg)
	}
	return nil
}

// handleCommand runs a command through authorization, recovery and routing.
func (b *Bot) handleCommand(
	ctx context.Context,
	telegramID, chatID int64,
	command string,
	msg *telegram.Message,
) error {
	authResult, err := b.authMiddleware.Authenticate(ctx, telegramID, command)
	if err != nil {
		b.logger.Error("authorization check failed",
			"telegram_id", telegramID,
			"command", command,
			"error", err,
		)
		return b.sendErrorMessage(ctx, chatID)
	}
	if !authResult.ShouldContinue {
		b.metricsMiddleware.RecordRefusal("unauthorized")
		if authResult.ResponseMessage != "" {
			_, err := b.client.SendHTML(ctx, chatID, authResult.ResponseMessage)
			return err
		}
		return nil
	}

	b.stats.mu.Lock()
	b.stats.CommandsCount[command]++
	b.stats.mu.Unlock()

	cmdCtx := CommandContext{
		TelegramID: telegramID,
		ChatID:     chatID,
		MessageID:  msg.MessageID,
		Args:       telegram.ExtractCommandArgs(msg),
		Message:    msg,
		Client:     b.client,
	}

	var handlerErr error
	recovery := b.recoveryMiddleware.RecoverWithHandler(ctx, telegramID, command, func() error {
		handlerErr = b.router.HandleCommand(ctx, command, cmdCtx)
		return handlerErr
	})
	if recovery.Recovered {
		b.metricsMiddleware.RecordPanic()
		if recovery.UserMessage != "" {
			_, _ = b.client.SendHTML(ctx, chatID, recovery.UserMessage)
		}
		return nil
	}
	if handlerErr != nil {
		if sendErr := b.sendErrorMessage(ctx, chatID); sendErr != nil {
			b.logger.Warn("failed to send error message", "error", sendErr)
		}
		return fmt.Errorf("command /%s: %w", command, handlerErr)
	}
	return nil
}

// handleTextMessage processes plain text: key submissions, date dialogs and
// free-form date lookups.
//
// A pending key submission skips the authorization check: the sender is by
// definition not authorized until the key activates.
func (b *Bot) handleTextMessage(ctx context.Context, telegramID, chatID int64, msg *telegram.Message) error {
	if b.sessions.Pending(shared.TelegramID(telegramID)) != middleware.PendingKey {
		authResult, err := b.authMiddleware.Authenticate(ctx, telegramID, "")
		if err != nil {
			b.logger.Error("authorization check failed",
				"telegram_id", telegramID,
				"error", err,
			)
			return b.sendErrorMessage(ctx, chatID)
		}
		if !authResult.ShouldContinue {
			b.metricsMiddleware.RecordRefusal("unauthorized")
			if authResult.ResponseMessage != "" {
				_, err := b.client.SendHTML(ctx, chatID, authResult.ResponseMessage)
				return err
			}
			return nil
		}
	}

	textCtx := TextInputContext{
		TelegramID: telegramID,
		ChatID:     chatID,
		MessageID:  msg.MessageID,
		Text:       msg.Text,
		Message:    msg,
		Client:     b.client,
	}

	var handlerErr error
	recovery := b.recoveryMiddleware.RecoverWithHandler(ctx, telegramID, "text_input", func() error {
		handlerErr = b.router.HandleTextInput(ctx, textCtx)
		return handlerErr
	})
	if recovery.Recovered {
		b.metricsMiddleware.RecordPanic()
		if recovery.UserMessage != "" {
			_, _ = b.client.SendHTML(ctx, chatID, recovery.UserMessage)
		}
		return nil
	}
	if handlerErr != nil {
		if sendErr := b.sendErrorMessage(ctx, chatID); sendErr != nil {
			b.logger.Warn("failed to send error message", "error", sendErr)
		}
		return fmt.Errorf("text input: %w", handlerErr)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// handleCallbackQuery processes an inline keyboard press.
func (b *Bot) handleCallbackQuery(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq == nil || cq.From == nil {
		return nil
	}

	telegramID := cq.From.ID

	// Answer unconditionally so the button stops spinning even when no
	// route matches. Telegram rejects the second answer of an already
	// answered query, which is fine.
	defer func() {
		_ = b.client.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}()

	limit := b.rateLimiter.Check(ctx, telegramID)
	if !limit.Allowed {
		b.metricsMiddleware.RecordRefusal("rate_limited")
		return b.client.AnswerCallbackQuery(ctx, cq.ID, "⏳ Слишком быстро! Подожди немного.", true)
	}

	authResult, err := b.authMiddleware.AuthenticateCallback(ctx, telegramID)
	if err != nil {
		b.logger.Error("authorization check failed",
			"telegram_id", telegramID,
			"error", err,
		)
		return nil
	}
	if !authResult.ShouldContinue {
		b.metricsMiddleware.RecordRefusal("unauthorized")
		return b.client.AnswerCallbackQuery(ctx, cq.ID, authResult.CallbackAlert, true)
	}

	if cq.Message == nil || cq.Message.Chat == nil {
		// The source message is too old for Telegram to reference;
		// there is nothing to edit or reply to.
		return nil
	}
	chatID := cq.Message.Chat.ID

	cbCtx := CallbackContext{
		TelegramID: telegramID,
		ChatID:     chatID,
		MessageID:  cq.Message.MessageID,
		QueryID:    cq.ID,
		Data:       cq.Data,
		Query:      cq,
		Client:     b.client,
	}

	var handlerErr error
	recovery := b.recoveryMiddleware.RecoverWithHandler(ctx, telegramID, "callback", func() error {
		handlerErr = b.router.HandleCallback(ctx, cq.Data, cbCtx)
		return handlerErr
	})
	if recovery.Recovered {
		b.metricsMiddleware.RecordPanic()
		_ = b.client.AnswerCallbackQuery(ctx, cq.ID, "😔 Произошла ошибка. Попробуй позже.", true)
		return nil
	}
	if handlerErr != nil {
		if sendErr := b.sendErrorMessage(ctx, chatID); sendErr != nil {
			b.logger.Warn("failed to send error message", "error", sendErr)
		}
		return fmt.Errorf("callback %q: %w", cq.Data, handlerErr)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// extractTelegramID extracts the user ID from any update type.
func (b *Bot) extractTelegramID(update *telegram.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}

// sendErrorMessage sends a generic error message to the user.
func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64) error {
	_, err := b.client.SendText(ctx, chatID, "😔 Произошла ошибка. Попробуй позже.")
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// GetStats returns a snapshot of bot runtime statistics.
func (b *Bot) GetStats() map[string]interface{} {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	commandsCopy := make(map[string]int64, len(b.stats.CommandsCount))
	for k, v := range b.stats.CommandsCount {
		commandsCopy[k] = v
	}

	return map[string]interface{}{
		"started_at":       b.stats.StartedAt,
		"uptime":           time.Since(b.stats.StartedAt).String(),
		"updates_received": b.stats.UpdatesReceived,
		"updates_handled":  b.stats.UpdatesHandled,
		"errors_count":     b.stats.ErrorsCount,
		"commands_count":   commandsCopy,
		"running":          b.IsRunning(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS
// ══════════════════════════════════════════════════════════════════════════════

// Client returns the Telegram client for direct API access.
// Use sparingly - prefer going through handlers.
func (b *Bot) Client() *telegram.Client {
	return b.client
}

// Router returns the router for handler registration.
func (b *Bot) Router() *Router {
	return b.router
}

// AuthMiddleware returns the authorization middleware, exposed so the event
// dispatcher can subscribe it for cache invalidation.
func (b *Bot) AuthMiddleware() *middleware.AuthMiddleware {
	return b.authMiddleware
}

// InvalidateAuthCache drops the cached authorization verdict for a user.
func (b *Bot) InvalidateAuthCache(telegramID int64) {
	b.authMiddleware.InvalidateCache(telegramID)
}
