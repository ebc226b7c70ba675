package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cryptopost_bot/internal/bot"
	"cryptopost_bot/internal/config"
	"cryptopost_bot/internal/dedup"
	"cryptopost_bot/internal/digest"
	"cryptopost_bot/internal/filter"
	"cryptopost_bot/internal/gate"
	"cryptopost_bot/internal/ingest"
	"cryptopost_bot/internal/llm"
	"cryptopost_bot/internal/price"
	"cryptopost_bot/internal/scheduler"
	"cryptopost_bot/internal/storage"
	"cryptopost_bot/internal/synth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dd := dedup.New(store, cfg.DedupRetention, log)
	if err := dd.Warm(ctx); err != nil {
		log.Error("warm dedup state", "error", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.TelegramBotToken, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	sy := synth.New(
		llm.New(httpClient, cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMAPIKey, cfg.MaxCompletion),
		cfg.PersonaPrompt, cfg.MaxPayloadLen)
	digests := digest.New(price.New(httpClient, cfg.PriceAPIURL, cfg.AssetID, cfg.AssetSymbol))
	g := gate.New(b, cfg.ChannelID, cfg.MaxRetries, cfg.BackoffDelay, cfg.PublishTimeout, log)

	sched := scheduler.New(cfg,
		ingest.New(httpClient, cfg.SourceFeeds, cfg.BatchLimit),
		filter.New(cfg.Keywords, cfg.StopKeywords, cfg.EmptyGroups),
		dd, sy, digests, g, log)

	b.Wire(sy, digests, sched, g.Publish)

	log.Info("starting bot", "channel_id", cfg.ChannelID, "feeds", len(cfg.SourceFeeds))

	runPipelines(ctx, sched.Run, b.Run)

	log.Info("bot stopped")
}

// runPipelines runs the scheduler loop alongside the bot's polling loop and
// returns only after both have exited. The scheduler finishes its in-flight
// item on shutdown; exiting before it returns would cut that short.
func runPipelines(ctx context.Context, runScheduler, runBot func(context.Context)) {
	done := make(chan struct{})
	go func() {
		runScheduler(ctx)
		close(done)
	}()

	runBot(ctx)
	<-done
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
