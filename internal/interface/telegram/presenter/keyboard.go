// Package presenter formats data for Telegram display.
// Presenters handle the conversion from domain objects to user-friendly
// Telegram messages, keyboards, and other UI elements.
package presenter

// ══════════════════════════════════════════════════════════════════════════════
// INLINE KEYBOARD TYPES
// These types represent Telegram inline keyboards in a library-agnostic way.
// The actual Telegram bot implementation will convert these to the library's format.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single inline button.
type InlineButton struct {
	// Text is the button text.
	Text string

	// CallbackData is the callback data (for callback buttons).
	CallbackData string

	// URL is the URL to open (for URL buttons).
	URL string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{
		Rows: make([][]InlineButton, 0),
	}
}

// AddRow adds a row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL button.
func URLButton(text, url string) InlineButton {
	return InlineButton{
		Text: text,
		URL:  url,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// Builds keyboards for different use cases.
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder builds inline keyboards for various handlers.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// ─────────────────────────────────────────────────────────────────────────────
// MAIN MENU KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// MainMenuKeyboard creates the period selection menu shown to every
// authorized user.
func (b *KeyboardBuilder) MainMenuKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("📚 ДЗ на сегодня", "hw_today"),
			CallbackButton("📖 ДЗ на завтра", "hw_tomorrow"),
		).
		AddRow(
			CallbackButton("📅 ДЗ на дату...", "hw_custom_date"),
			CallbackButton("🗓 ДЗ на неделю", "hw_week"),
		).
		AddRow(
			CallbackButton("❓ FAQ", "faq"),
		)
}

// BackToMenuKeyboard creates a single back button to the main menu.
func (b *KeyboardBuilder) BackToMenuKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("◀️ Назад в меню", "back_to_menu"),
		)
}

// ─────────────────────────────────────────────────────────────────────────────
// ADMIN KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// AdminMenuKeyboard creates the admin panel menu.
func (b *KeyboardBuilder) AdminMenuKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("➕ Создать ключ", "admin_create_key"),
		).
		AddRow(
			CallbackButton("🔑 Активные ключи", "admin_unused_keys"),
			CallbackButton("👥 Использованные", "admin_used_keys"),
		).
		AddRow(
			CallbackButton("◀️ В главное меню", "back_to_menu"),
		)
}

// BackToAdminKeyboard creates a single back button to the admin panel.
func (b *KeyboardBuilder) BackToAdminKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("◀️ Назад", "admin_menu"),
		)
}

// KeysDeleteKeyboard creates delete buttons for unused keys, one per row.
// At most eight keys fit; the label shows a token prefix, the callback
// carries the full token.
func (b *KeyboardBuilder) KeysDeleteKeyboard(tokens []string) *InlineKeyboard {
	kb := NewInlineKeyboard()

	if len(tokens) > 8 {
		tokens = tokens[:8]
	}
	for _, token := range tokens {
		label := token
		if len(label) > 8 {
			label = label[:8] + "..."
		}
		kb.AddRow(CallbackButton("🗑 "+label, "delete_key:"+token))
	}

	kb.AddRow(CallbackButton("◀️ Назад", "admin_menu"))

	return kb
}
