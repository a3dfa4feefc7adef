// Package telegram implements the Telegram bot interface for the homework
// diary. It wires command, callback and text-input routing to the handlers
// and owns the send/edit mechanics of every bot screen.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/external/telegram"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/handler"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool

	// FreeTextDates enables scanning free-form messages for a date.
	// Off, text outside a dialog is ignored.
	FreeTextDates bool
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// These types carry request information through the routing process.
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext contains context for command handling.
type CommandContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID where the command was sent.
	ChatID int64

	// MessageID is the ID of the message containing the command.
	MessageID int64

	// Args is the command arguments (text after the command).
	Args string

	// Message is the original Telegram message.
	Message *telegram.Message

	// Client is the Telegram client for sending responses.
	Client *telegram.Client
}

// CallbackContext contains context for callback query handling.
type CallbackContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID where the callback originated.
	ChatID int64

	// MessageID is the ID of the message the inline keyboard is attached to.
	MessageID int64

	// QueryID is the callback query ID for answering.
	QueryID string

	// Data is the callback data payload.
	Data string

	// Query is the original callback query.
	Query *telegram.CallbackQuery

	// Client is the Telegram client for sending responses.
	Client *telegram.Client
}

// TextInputContext contains context for plain text message handling.
type TextInputContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID where the message was sent.
	ChatID int64

	// MessageID is the ID of the message.
	MessageID int64

	// Text is the message text.
	Text string

	// Message is the original Telegram message.
	Message *telegram.Message

	// Client is the Telegram client for sending responses.
	Client *telegram.Client
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER TYPES
// ══════════════════════════════════════════════════════════════════════════════

// CommandFunc handles a bot command (e.g. /start).
type CommandFunc func(ctx context.Context, cmdCtx CommandContext) error

// CallbackFunc handles a callback query matched by data prefix.
type CallbackFunc func(ctx context.Context, cbCtx CallbackContext) error

// TextInputFunc handles a plain text message (no command).
type TextInputFunc func(ctx context.Context, textCtx TextInputContext) error

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// Router routes incoming updates to registered handlers.
//
// Commands are matched by name, callbacks by the longest registered prefix
// of their data payload. Plain text goes to a single text-input handler
// which dispatches on the user's dialog state.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	mu               sync.RWMutex
	commands         map[string]CommandFunc
	callbackPrefixes map[string]CallbackFunc
	textInput        TextInputFunc
	defaultCommand   CommandFunc
	defaultCallback  CallbackFunc
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig) *Router {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		config:           config,
		logger:           logger.With("component", "telegram_router"),
		commands:         make(map[string]CommandFunc),
		callbackPrefixes: make(map[string]CallbackFunc),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a handler for a command (without the leading slash).
func (r *Router) RegisterCommand(command string, fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	command = strings.TrimPrefix(strings.ToLower(command), "/")
	r.commands[command] = fn

	if r.config.Debug {
		r.logger.Debug("command registered", "command", command)
	}
}

// RegisterCallbackPrefix registers a handler for callback data starting with
// the given prefix. When several prefixes match, the longest one wins.
func (r *Router) RegisterCallbackPrefix(prefix string, fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbackPrefixes[prefix] = fn

	if r.config.Debug {
		r.logger.Debug("callback prefix registered", "prefix", prefix)
	}
}

// SetTextInputHandler sets the handler for plain text messages.
func (r *Router) SetTextInputHandler(fn TextInputFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textInput = fn
}

// SetDefaultCommandHandler sets the handler for unregistered commands.
func (r *Router) SetDefaultCommandHandler(fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultCommand = fn
}

// SetDefaultCallbackHandler sets the handler for unmatched callback data.
func (r *Router) SetDefaultCallbackHandler(fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultCallback = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand routes a command to its registered handler.
// Unknown commands are ignored: the bot stays silent.
func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) error {
	command = strings.TrimPrefix(strings.ToLower(command), "/")

	r.mu.RLock()
	fn, ok := r.commands[command]
	fallback := r.defaultCommand
	r.mu.RUnlock()

	if !ok {
		if fallback != nil {
			return fallback(ctx, cmdCtx)
		}
		if r.config.Debug {
			r.logger.Debug("unknown command ignored",
				"command", command,
				"telegram_id", cmdCtx.TelegramID,
			)
		}
		return nil
	}

	if r.config.Debug {
		r.logger.Debug("routing command",
			"command", command,
			"telegram_id", cmdCtx.TelegramID,
		)
	}

	return fn(ctx, cmdCtx)
}

// HandleCallback routes a callback query by the longest matching data prefix.
func (r *Router) HandleCallback(ctx context.Context, data string, cbCtx CallbackContext) error {
	r.mu.RLock()
	var (
		fn       CallbackFunc
		matched  string
		fallback = r.defaultCallback
	)
	for prefix, candidate := range r.callbackPrefixes {
		if strings.HasPrefix(data, prefix) && len(prefix) > len(matched) {
			fn = candidate
			matched = prefix
		}
	}
	r.mu.RUnlock()

	if fn == nil {
		if fallback != nil {
			return fallback(ctx, cbCtx)
		}
		r.logger.Warn("unmatched callback data",
			"data", data,
			"telegram_id", cbCtx.TelegramID,
		)
		return nil
	}

	if r.config.Debug {
		r.logger.Debug("routing callback",
			"prefix", matched,
			"telegram_id", cbCtx.TelegramID,
		)
	}

	return fn(ctx, cbCtx)
}

// HandleTextInput routes a plain text message to the text-input handler.
func (r *Router) HandleTextInput(ctx context.Context, textCtx TextInputContext) error {
	r.mu.RLock()
	fn := r.textInput
	r.mu.RUnlock()

	if fn == nil {
		return nil
	}

	return fn(ctx, textCtx)
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// Binds handlers to the bot's commands, callbacks and text input.
// ══════════════════════════════════════════════════════════════════════════════

// Wire registers all bot routes.
func (r *Router) Wire(
	start *handler.StartHandler,
	homework *handler.HomeworkHandler,
	admin *handler.AdminHandler,
	sessions *middleware.SessionStore,
) {
	r.RegisterCommand("start", r.startCommand(start))
	r.RegisterCommand("admin", r.adminCommand(admin))

	r.RegisterCallbackPrefix("hw_today", r.homeworkPeriodCallback(homework, query.PeriodToday))
	r.RegisterCallbackPrefix("hw_tomorrow", r.homeworkPeriodCallback(homework, query.PeriodTomorrow))
	r.RegisterCallbackPrefix("hw_week", r.homeworkPeriodCallback(homework, query.PeriodWeek))
	r.RegisterCallbackPrefix("hw_custom_date", r.datePromptCallback(homework))
	r.RegisterCallbackPrefix("faq", r.faqCallback(start))
	r.RegisterCallbackPrefix("back_to_menu", r.backToMenuCallback(start))

	r.RegisterCallbackPrefix("admin_menu", r.adminScreenCallback(admin.HandleMenu))
	r.RegisterCallbackPrefix("admin_create_key", r.adminScreenCallback(admin.HandleCreateKey))
	r.RegisterCallbackPrefix("admin_unused_keys", r.adminScreenCallback(admin.HandleUnusedKeys))
	r.RegisterCallbackPrefix("admin_used_keys", r.adminScreenCallback(admin.HandleUsedKeys))
	r.RegisterCallbackPrefix("delete_key:", r.deleteKeyCallback(admin))

	r.SetTextInputHandler(r.routeTextInput(start, homework, sessions))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// startCommand handles /start: greets the user or asks for an access key.
func (r *Router) startCommand(h *handler.StartHandler) CommandFunc {
	return func(ctx context.Context, cmdCtx CommandContext) error {
		resp, err := h.Handle(ctx, startRequestFrom(ctx, cmdCtx.TelegramID, cmdCtx.ChatID, cmdCtx.Message))
		if err != nil {
			return fmt.Errorf("start command: %w", err)
		}
		return r.send(ctx, cmdCtx.Client, cmdCtx.ChatID, resp.Text, resp.ParseMode, resp.Keyboard, false)
	}
}

// adminCommand handles /admin: shows the panel to the owner, nothing to others.
func (r *Router) adminCommand(h *handler.AdminHandler) CommandFunc {
	return func(ctx context.Context, cmdCtx CommandContext) error {
		resp, err := h.HandleCommand(ctx, adminRequestFrom(ctx, cmdCtx.TelegramID, cmdCtx.ChatID))
		if err != nil {
			return fmt.Errorf("admin command: %w", err)
		}
		if resp.Skip {
			return nil
		}
		return r.send(ctx, cmdCtx.Client, cmdCtx.ChatID, resp.Text, resp.ParseMode, resp.Keyboard, false)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// homeworkPeriodCallback handles hw_today / hw_tomorrow / hw_week.
// Answers the query immediately so the button stops spinning during the
// diary fetch, then sends the digest as a new message.
func (r *Router) homeworkPeriodCallback(h *handler.HomeworkHandler, kind query.PeriodKind) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		if err := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "Загружаю...", false); err != nil {
			r.logger.Warn("answer callback failed", "error", err)
		}

		view := h.HandlePeriod(ctx, homeworkRequestFrom(ctx, cbCtx.TelegramID, cbCtx.ChatID), kind)
		return r.send(ctx, cbCtx.Client, cbCtx.ChatID, view.Text, view.ParseMode, view.Keyboard, true)
	}
}

// datePromptCallback handles hw_custom_date: switches the menu message to
// the date prompt and arms the date dialog.
func (r *Router) datePromptCallback(h *handler.HomeworkHandler) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		view := h.DatePrompt(cbCtx.TelegramID)
		return r.edit(ctx, cbCtx.Client, cbCtx.ChatID, cbCtx.MessageID, view.Text, view.ParseMode, view.Keyboard)
	}
}

// faqCallback handles faq: switches the menu message to the FAQ screen.
func (r *Router) faqCallback(h *handler.StartHandler) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		resp := h.FAQ()
		return r.edit(ctx, cbCtx.Client, cbCtx.ChatID, cbCtx.MessageID, resp.Text, resp.ParseMode, resp.Keyboard)
	}
}

// backToMenuCallback handles back_to_menu: returns to the main menu and
// drops any pending dialog state.
func (r *Router) backToMenuCallback(h *handler.StartHandler) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		resp := h.MainMenu(cbCtx.TelegramID)
		return r.edit(ctx, cbCtx.Client, cbCtx.ChatID, cbCtx.MessageID, resp.Text, resp.ParseMode, resp.Keyboard)
	}
}

// adminScreenCallback adapts an admin panel action to a callback handler.
//
// Alert toasts are answered before the screen changes, plain toasts after.
// Denials carry no screen text and only answer the query.
func (r *Router) adminScreenCallback(
	action func(ctx context.Context, req handler.AdminRequest) (*handler.AdminResponse, error),
) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		resp, err := action(ctx, adminRequestFrom(ctx, cbCtx.TelegramID, cbCtx.ChatID))
		if err != nil {
			return fmt.Errorf("admin callback: %w", err)
		}
		return r.renderAdminResponse(ctx, cbCtx, resp)
	}
}

// deleteKeyCallback handles delete_key:<token>.
func (r *Router) deleteKeyCallback(h *handler.AdminHandler) CallbackFunc {
	return func(ctx context.Context, cbCtx CallbackContext) error {
		token := strings.TrimPrefix(cbCtx.Data, "delete_key:")
		resp, err := h.HandleDeleteKey(ctx, adminRequestFrom(ctx, cbCtx.TelegramID, cbCtx.ChatID), token)
		if err != nil {
			return fmt.Errorf("delete key callback: %w", err)
		}
		return r.renderAdminResponse(ctx, cbCtx, resp)
	}
}

// renderAdminResponse applies an admin response to the originating message.
func (r *Router) renderAdminResponse(ctx context.Context, cbCtx CallbackContext, resp *handler.AdminResponse) error {
	if resp.Toast != "" && resp.ShowAlert {
		if err := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, resp.Toast, true); err != nil {
			r.logger.Warn("answer callback failed", "error", err)
		}
	}

	if resp.Text != "" {
		if err := r.edit(ctx, cbCtx.Client, cbCtx.ChatID, cbCtx.MessageID, resp.Text, resp.ParseMode, resp.Keyboard); err != nil {
			return err
		}
	}

	if resp.Toast != "" && !resp.ShowAlert {
		if err := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, resp.Toast, false); err != nil {
			r.logger.Warn("answer callback failed", "error", err)
		}
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEXT INPUT
// ══════════════════════════════════════════════════════════════════════════════

// routeTextInput dispatches plain text on the user's dialog state:
// a pending key goes to activation, a pending date to the diary fetch,
// anything else is scanned for a date and otherwise ignored.
func (r *Router) routeTextInput(
	start *handler.StartHandler,
	homework *handler.HomeworkHandler,
	sessions *middleware.SessionStore,
) TextInputFunc {
	return func(ctx context.Context, textCtx TextInputContext) error {
		switch sessions.Pending(shared.TelegramID(textCtx.TelegramID)) {
		case middleware.PendingKey:
			resp, err := start.HandleKeyInput(ctx, startRequestFrom(ctx, textCtx.TelegramID, textCtx.ChatID, textCtx.Message), textCtx.Text)
			if err != nil {
				return fmt.Errorf("key input: %w", err)
			}
			return r.send(ctx, textCtx.Client, textCtx.ChatID, resp.Text, resp.ParseMode, resp.Keyboard, false)

		case middleware.PendingDate:
			view := homework.HandleDateInput(ctx, homeworkRequestFrom(ctx, textCtx.TelegramID, textCtx.ChatID), textCtx.Text)
			return r.send(ctx, textCtx.Client, textCtx.ChatID, view.Text, view.ParseMode, view.Keyboard, true)

		default:
			if !r.config.FreeTextDates {
				return nil
			}
			view := homework.HandleFreeText(ctx, homeworkRequestFrom(ctx, textCtx.TelegramID, textCtx.ChatID), textCtx.Text)
			if view == nil {
				return nil
			}
			return r.send(ctx, textCtx.Client, textCtx.ChatID, view.Text, view.ParseMode, view.Keyboard, true)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

func startRequestFrom(ctx context.Context, telegramID, chatID int64, msg *telegram.Message) handler.StartRequest {
	req := handler.StartRequest{
		TelegramID:    telegramID,
		ChatID:        chatID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
	}
	if msg != nil && msg.From != nil {
		req.Username = msg.From.Username
		req.FirstName = msg.From.FirstName
		req.LastName = msg.From.LastName
	}
	return req
}

func homeworkRequestFrom(ctx context.Context, telegramID, chatID int64) handler.HomeworkRequest {
	return handler.HomeworkRequest{
		TelegramID:    telegramID,
		ChatID:        chatID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
	}
}

func adminRequestFrom(ctx context.Context, telegramID, chatID int64) handler.AdminRequest {
	return handler.AdminRequest{
		TelegramID:    telegramID,
		ChatID:        chatID,
		CorrelationID: middleware.RequestIDFromContext(ctx),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// send delivers a new message to the chat.
func (r *Router) send(
	ctx context.Context,
	client *telegram.Client,
	chatID int64,
	text string,
	parseMode string,
	keyboard *presenter.InlineKeyboard,
	disablePreview bool,
) error {
	if text == "" {
		return nil
	}

	params := telegram.SendMessageParams{
		ChatID:            chatID,
		Text:              text,
		ParseMode:         parseMode,
		DisableWebPreview: disablePreview,
		ReplyMarkup:       convertKeyboard(keyboard),
	}

	if _, err := client.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// edit replaces the text and keyboard of an existing message.
func (r *Router) edit(
	ctx context.Context,
	client *telegram.Client,
	chatID int64,
	messageID int64,
	text string,
	parseMode string,
	keyboard *presenter.InlineKeyboard,
) error {
	if text == "" {
		return nil
	}

	if _, err := client.EditMessageText(ctx, chatID, messageID, text, parseMode, convertKeyboard(keyboard)); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// convertKeyboard converts a presenter keyboard to the Telegram wire format.
func convertKeyboard(kb *presenter.InlineKeyboard) *telegram.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(kb.Rows)),
	}
	for _, row := range kb.Rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{
				Text:         btn.Text,
				CallbackData: btn.CallbackData,
				URL:          btn.URL,
			})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// RegisteredCommands returns the names of all registered commands.
func (r *Router) RegisteredCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]string, 0, len(r.commands))
	for command := range r.commands {
		commands = append(commands, command)
	}
	return commands
}

// RegisteredCallbackPrefixes returns all registered callback prefixes.
func (r *Router) RegisteredCallbackPrefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.callbackPrefixes))
	for prefix := range r.callbackPrefixes {
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
