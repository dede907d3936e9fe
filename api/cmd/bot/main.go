package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"screenmind/api/internal/config"
	"screenmind/api/internal/container"
	"screenmind/api/internal/httpserver"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(cfg.LogLevel)
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		logger.Logger.Fatal("TELEGRAM_BOT_TOKEN is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("init")
	}
	defer c.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.WithError(err).Fatal("telegram")
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:      bot,
		Service:  c.Service,
		Analyzer: c.Analyzer,
		Pool:     c.Pool,
		Admins:   cfg.TelegramAdminIDs,
		Timeout:  cfg.RequestTimeout,
	}
	if c.Settings != nil {
		r.Settings = c.Settings
	}

	// DefaultServeMux: ListenForWebhook registers its handler there.
	if c.DB != nil {
		http.HandleFunc("/healthz", httpserver.Healthz(c.DB))
	} else {
		http.HandleFunc("/healthz", httpserver.Healthz(nil))
	}
	srv := &http.Server{Addr: "0.0.0.0:" + cfg.Port}

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, srv, bot, r, webhookURL)
	} else {
		startPollingMode(ctx, srv, bot, r)
	}
	logger.Info("bot stopped")
}

func startWebhookMode(ctx context.Context, srv *http.Server, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		logger.WithError(err).Fatal("webhook")
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		logger.WithError(err).Fatal("set webhook")
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(upd)
		}
	}()

	logger.WithFields(logrus.Fields{"address": srv.Addr, "path": path}).Info("webhook mode")
	if err := httpserver.Run(ctx, srv); err != nil {
		logger.WithError(err).Error("http server")
	}
}

func startPollingMode(ctx context.Context, srv *http.Server, bot *tgbotapi.BotAPI, r *telegram.Router) {
	go func() {
		if err := httpserver.Run(ctx, srv); err != nil {
			logger.WithError(err).Error("health server")
		}
	}()

	// the webhook has to be gone for getUpdates to work
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.WithError(err).Warn("delete webhook")
	}

	logger.Info("polling mode")
	runPolling(ctx, bot, r.HandleUpdate)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func clampDelay(d time.Duration) time.Duration {
	const (
		baseDelay = 1 * time.Second
		maxDelay  = 15 * time.Second
	)
	return min(max(d, baseDelay), maxDelay)
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update)) {
	offset := 0
	for {
		if ctx.Err() != nil {
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := clampDelay(retryDelayFromError(err))
			logger.WithError(err).WithField("retry_in", d.String()).Warn("polling error")
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// shortHash is FNV-1a of s as 16 hex digits; it keeps the token out of the
// webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
