package bot

import (
	"context"
	"fmt"

	"cryptopost_bot/internal/gate"
	"cryptopost_bot/internal/model"
)

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Channel autoposter admin commands:

/status — scheduler state and counters
/post <text> — rewrite <text> in the channel voice and publish it
/price — preview the current price digest (not published)`)
}

func (b *Bot) handleStatus(chatID int64) {
	if b.status == nil {
		b.reply(chatID, "Scheduler is not running.")
		return
	}
	b.reply(chatID, b.status.StatusLine())
}

// handlePost synthesizes an operator-supplied text and publishes it
// through the gate, same path as automatic posts.
func (b *Bot) handlePost(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /post <text>")
		return
	}
	if b.synth == nil || b.publish == nil {
		b.reply(chatID, "Publishing pipeline is not running.")
		return
	}

	item := model.NewsItem{SourceID: fmt.Sprintf("manual:%d", chatID), RawText: args}
	text, err := b.synth.NewsPost(ctx, item)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Synthesis failed: %v", err))
		return
	}

	if err := b.publish(ctx, gate.Content{Text: text}); err != nil {
		b.reply(chatID, fmt.Sprintf("Publish failed: %v", err))
		return
	}
	b.reply(chatID, "Published.")
}

// handlePrice previews the digest for the admin without publishing.
func (b *Bot) handlePrice(ctx context.Context, chatID int64) {
	if b.digests == nil {
		b.reply(chatID, "Digest builder is not running.")
		return
	}
	d, err := b.digests.Build(ctx, model.SlotMorning)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Digest build failed: %v", err))
		return
	}
	b.reply(chatID, d.Summary)
}
