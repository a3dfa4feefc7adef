// Package main - точка входа Telegram-бота школьного дневника.
//
// Бот отдаёт домашние задания из регионального дневника (authedu.mosreg.ru)
// и закрывает доступ одноразовыми ключами-приглашениями, которые выпускает
// владелец.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: JSON-хранилище ключей, клиент дневника, event bus
// - Interface: Telegram Bot handlers, служебные HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dnevnik-hub/dnevnik-homework-bot/config"

	// Application layer
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/eventhandler"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"

	// Domain layer
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"

	// Infrastructure layer
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/external/diary"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/messaging"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/persistence/jsonfile"

	// Interface layer
	httpserver "github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/http"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"

	// Packages
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting homework diary bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ КЛЮЧЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("loading key store...", "path", cfg.Storage.DataFile)
	accessRepo, err := jsonfile.New(jsonfile.Params{
		Path:      cfg.Storage.DataFile,
		SuperUser: shared.TelegramID(cfg.Telegram.AdminUserID),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS И ДИСПЕТЧЕР
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	dispatcherConfig := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherConfig.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherConfig)
	dispatcher.Use(messaging.RecoveryMiddleware(log))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	botMetrics := middleware.NewMetricsMiddleware(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. КЛИЕНТ ДНЕВНИКА
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing diary client...", "base_url", cfg.Diary.BaseURL)
	diaryConfig := diary.DefaultClientConfig()
	diaryConfig.BaseURL = cfg.Diary.BaseURL
	diaryConfig.BearerToken = cfg.Diary.BearerToken
	diaryConfig.Cookie = cfg.Diary.Cookie
	diaryConfig.StudentID = cfg.Diary.StudentID
	diaryConfig.ProfileID = cfg.Diary.ProfileID
	diaryConfig.ProfileType = cfg.Diary.ProfileType
	diaryConfig.Subsystem = cfg.Diary.Subsystem
	diaryConfig.Timeout = cfg.Diary.RequestTimeout
	diaryConfig.MaxRetries = cfg.Diary.MaxRetries
	diaryConfig.RetryInitialDelay = cfg.Diary.RetryBaseDelay
	diaryConfig.Logger = log
	diaryConfig.Debug = cfg.App.Debug
	diaryClient := diary.NewClient(diaryConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	issueKeyCmd := command.NewIssueKeyHandler(accessRepo, eventBus, log)
	activateKeyCmd := command.NewActivateKeyHandler(accessRepo, eventBus, log)
	revokeKeyCmd := command.NewRevokeKeyHandler(accessRepo, eventBus, log)

	getHomeworkQuery := query.NewGetHomeworkHandler(diaryClient, eventBus, cfg.App.Location, log)
	listKeysQuery := query.NewListKeysHandler(accessRepo)
	accessStatsQuery := query.NewGetAccessStatsHandler(accessRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Telegram bot...")

	botConfig := telegram.DefaultBotConfig(cfg.Telegram.Token)
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = log
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.UpdateTimeout = cfg.Telegram.UpdateTimeout
	botConfig.GracefulShutdownTimeout = cfg.Telegram.GracefulShutdownTimeout
	botConfig.RateLimitExempt = []int64{cfg.Telegram.AdminUserID}
	botConfig.FreeTextDates = cfg.Features.IsEnabled(config.FeatureFreeTextDates, nil)
	botConfig.AttachmentLinks = cfg.Features.IsEnabled(config.FeatureAttachmentLinks, nil)

	if cfg.Features.IsEnabled(config.FeatureWebhookUpdates, nil) {
		log.Warn("webhook updates are flagged on, but this build receives updates over long polling")
	}

	bot, err := telegram.NewBot(botConfig, telegram.BotDependencies{
		AccessRepo:  accessRepo,
		ActivateKey: activateKeyCmd,
		IssueKey:    issueKeyCmd,
		RevokeKey:   revokeKeyCmd,
		GetHomework: getHomeworkQuery,
		ListKeys:    listKeysQuery,
		AccessStats: accessStatsQuery,
		Metrics:     botMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. РЕГИСТРАЦИЯ ОБРАБОТЧИКОВ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")

	auditLog := eventhandler.NewAuditLogHandler(log)
	for _, eventType := range auditLog.EventTypes() {
		if err := dispatcher.Register(eventType, "audit_log", auditLog.Handle); err != nil {
			return fmt.Errorf("failed to register audit log handler: %w", err)
		}
	}

	eventMetrics := eventhandler.NewMetricsHandler(registry)
	for _, eventType := range eventMetrics.EventTypes() {
		if err := dispatcher.Register(eventType, "metrics", eventMetrics.Handle); err != nil {
			return fmt.Errorf("failed to register metrics handler: %w", err)
		}
	}

	// Отзыв ключа должен мгновенно закрывать доступ, а не ждать истечения
	// кеша авторизации.
	authCache := bot.AuthMiddleware()
	for _, eventType := range authCache.EventTypes() {
		if err := dispatcher.Register(eventType, "auth_cache_invalidation", authCache.HandleEvent); err != nil {
			return fmt.Errorf("failed to register auth cache handler: %w", err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER (health, readiness, metrics)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.Observability.HTTPHost
	httpConfig.Port = cfg.Observability.HTTPPort
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		AccessStats: accessStatsQuery,
		Store:       accessRepo,
		Telegram:    bot.Client(),
		BotStats:    bot.GetStats,
		Metrics:     registry,
		Logger:      logger.New(logger.Options{Level: logger.ParseLevel(cfg.Observability.LogLevel)}),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	errCh := make(chan error, 2)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	go func() {
		log.Info("starting Telegram bot (long polling)")
		if err := bot.Start(ctx); err != nil {
			errCh <- fmt.Errorf("telegram bot error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 12. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("homework diary bot is running",
		"http_address", httpServer.Address(),
		"store", cfg.Storage.DataFile,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Останавливаем бота: перестаём тянуть обновления, даём дообработать
	// начатые.
	log.Info("stopping Telegram bot...")
	if err := bot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Останавливаем HTTP сервер.
	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 3. Дожидаемся обработчиков событий: аудит-лог должен дописать хвост.
	log.Info("stopping event dispatcher...")
	if err := dispatcher.Stop(); err != nil {
		log.Error("failed to stop dispatcher gracefully", "error", err)
		shutdownErr = err
	}

	// 4. Event bus закроется через defer.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		// Текстовый формат читается глазами, для разработки.
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// JSON формат для production (лучше для агрегаторов логов).
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// parseLogLevel переводит строковый уровень в slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
