package announce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramAnnouncer posts rendered transitions to one chat.
type TelegramAnnouncer struct {
	client   *tgbot.Bot
	chatID   any
	template *template.Template
}

// NewTelegramAnnouncer builds a bot client without calling getMe.
// Params: Telegram announce config.
// Returns: announcer or setup error.
func NewTelegramAnnouncer(cfg config.TelegramAnnounce) (*TelegramAnnouncer, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram chat_id is required")
	}
	tmpl, err := templatefmt.ParseTransitionTemplate("telegram", strings.TrimSpace(cfg.Template))
	if err != nil {
		return nil, fmt.Errorf("parse telegram template: %w", err)
	}
	client, err := tgbot.New(cfg.BotToken,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramAnnouncer{client: client, chatID: normalizeChatID(cfg.ChatID), template: tmpl}, nil
}

// Name returns the sink label used in logs and metrics.
// Params: none.
// Returns: "telegram".
func (a *TelegramAnnouncer) Name() string { return "telegram" }

// Announce renders and sends one transition.
// Params: context and transition.
// Returns: render or send error.
func (a *TelegramAnnouncer) Announce(ctx context.Context, transition domain.Transition) error {
	text, err := templatefmt.RenderTransition(a.template, transition)
	if err != nil {
		return err
	}
	if _, err := a.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    a.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	}); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Close releases nothing; the bot client holds no connection between sends.
// Params: none.
// Returns: always nil.
func (a *TelegramAnnouncer) Close() error { return nil }

// normalizeChatID keeps numeric chat IDs numeric and @channel names as strings.
// Params: raw chat id from config.
// Returns: int64 or trimmed string accepted by SendMessageParams.ChatID.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
