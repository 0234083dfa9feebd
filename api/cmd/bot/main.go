package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"jlpt-snap/api/internal/config"
	"jlpt-snap/api/internal/httpserver"
	"jlpt-snap/api/internal/logging"
	"jlpt-snap/api/internal/ocr"
	"jlpt-snap/api/internal/ocr/backend"
	"jlpt-snap/api/internal/ocr/openai"
	"jlpt-snap/api/internal/pipeline"
	"jlpt-snap/api/internal/settings"
	"jlpt-snap/api/internal/store"
	"jlpt-snap/api/internal/telegram"
)

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Dir:    cfg.LogDir,
		Name:   "jlpt-bot.log",
	})

	if cfg.TelegramBotToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is empty")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := settings.Defaults()
	if cfg.DevMode {
		// local development talks to the upstreams directly
		defaults.UseServerKeys = false
	}

	// --- Settings store ---
	var db *sql.DB
	if cfg.SettingsStore == store.DriverPostgres {
		var err error
		db, err = openDB(ctx, resolveDSN(cfg.DatabaseURL), logger)
		if err != nil {
			logger.Error("postgres unavailable", "err", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	repo, err := store.New(ctx, store.Config{
		Driver: cfg.SettingsStore,
		Redis: store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Defaults: defaults,
	}, store.Dependencies{DB: db})
	if err != nil {
		logger.Error("settings store init failed", "driver", cfg.SettingsStore, "err", err)
		os.Exit(1)
	}
	if c, ok := repo.(io.Closer); ok {
		defer c.Close()
	}

	// --- Telegram bot ---
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}
	bot.Debug = false

	direct := openai.New().WithLogger(logger)
	engines := &ocr.Engines{
		Direct:  direct,
		Proxied: backend.New(cfg.BackendBaseURL).WithLogger(logger),
	}

	r := &telegram.Router{
		Bot:      bot,
		Runner:   pipeline.NewRunner(engines, cfg.StageTimeout, logger),
		Settings: repo,
		Models:   direct,
		Log:      logger,
		Defaults: defaults,
	}

	// ListenForWebhook registers on DefaultServeMux, so healthz goes there too.
	var check func(context.Context) error
	if db != nil {
		check = db.PingContext
	}
	http.Handle("/healthz", httpserver.Health("ok", check))
	srv := httpserver.New(cfg.BotAddr(), http.DefaultServeMux)

	logger.Info("jlpt-bot starting",
		"bot", bot.Self.UserName,
		"store", cfg.SettingsStore,
		"backend", cfg.BackendBaseURL,
		"dev_mode", cfg.DevMode,
	)

	// --- Choose mode: Webhook vs Polling ---
	dispatch := func(upd tgbotapi.Update) {
		go r.HandleUpdate(ctx, upd)
	}
	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		if err := startWebhook(bot, webhookURL, dispatch, logger); err != nil {
			logger.Error("webhook setup failed", "err", err)
			os.Exit(1)
		}
	} else {
		go runPolling(ctx, bot, dispatch, logger)
	}

	if err := httpserver.Run(ctx, srv, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, dsn string, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	log.Info("db connected", "dsn", safeDSNSummary(dsn))
	return db, nil
}

// ---------------- Modes -----------------

func startWebhook(bot *tgbotapi.BotAPI, baseURL string, handle func(tgbotapi.Update), log *slog.Logger) error {
	// secret path derived from the token
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			handle(upd)
		}
		log.Warn("webhook updates channel closed")
	}()
	log.Info("webhook registered", "path", path)
	return nil
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 from Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return 2 * time.Second
		}
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, handle func(tgbotapi.Update), log *slog.Logger) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	// drop the webhook so getUpdates is allowed
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn("delete webhook failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			log.Warn("polling error", "err", err, "retry_in", d)
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

// ---------------- Helpers -----------------

func resolveDSN(databaseURL string) string {
	if v := strings.TrimSpace(databaseURL); v != "" {
		return v
	}
	// Build DSN from POSTGRES_* / PG* env vars (single-container default)
	user := getenvDefault("POSTGRES_USER", "jlpt")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getenvDefault("PGHOST", "db")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "jlpt")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// shortHash is FNV-1a as 16 hex chars; stable for a token, not secret-grade.
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

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
