// Package bot is the Telegram surface: the publishing sink for the target
// channel and a small admin command set.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cryptopost_bot/internal/config"
	"cryptopost_bot/internal/digest"
	"cryptopost_bot/internal/gate"
	"cryptopost_bot/internal/model"
	"cryptopost_bot/internal/synth"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// StatusReporter supplies the /status reply. Implemented by the scheduler.
type StatusReporter interface {
	StatusLine() string
}

// Bot handles admin commands and delivers posts to the channel.
type Bot struct {
	api     telegramAPI
	cfg     *config.Config
	synth   *synth.Synthesizer
	digests *digest.Builder
	status  StatusReporter
	publish func(ctx context.Context, content gate.Content) error
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Bot{api: api, cfg: cfg, log: log}, nil
}

// Wire attaches the collaborators the admin commands need. Called once
// after the gate and scheduler exist; keeps New free of ordering knots.
func (b *Bot) Wire(s *synth.Synthesizer, d *digest.Builder, status StatusReporter, publish func(ctx context.Context, content gate.Content) error) {
	b.synth = s
	b.digests = d
	b.status = status
	b.publish = publish
}

// Run starts the long-polling loop for admin commands, blocking until ctx
// is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsAdmin(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Send implements gate.Sink: it delivers one post to the target channel
// and classifies Bot API failures for the gate's retry policy.
func (b *Bot) Send(_ context.Context, channelID int64, content gate.Content) error {
	var chattable tgbotapi.Chattable
	if content.MediaURL != "" {
		photo := tgbotapi.NewPhoto(channelID, tgbotapi.FileURL(content.MediaURL))
		photo.Caption = content.Text
		chattable = photo
	} else {
		msg := tgbotapi.NewMessage(channelID, content.Text)
		msg.DisableWebPagePreview = true
		chattable = msg
	}

	if _, err := b.api.Send(chattable); err != nil {
		return classifySendError(err)
	}
	return nil
}

func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.RetryAfter > 0:
			return &model.PublishError{Kind: model.FailRateLimited, Err: err}
		case apiErr.Code == 400 || apiErr.Code == 403:
			return &model.PublishError{Kind: model.FailInvalid, Err: err}
		}
	}
	return &model.PublishError{Kind: model.FailNetwork, Err: err}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("admin command", "cmd", cmd, "chat_id", chatID)

	switch cmd {
	case "start", "help":
		b.handleHelp(chatID)
	case "status":
		b.handleStatus(chatID)
	case "post":
		b.handlePost(ctx, chatID, args)
	case "price":
		b.handlePrice(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
