package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Vovarama1992/rental-intake-bot/internal/ai"
	"github.com/Vovarama1992/rental-intake-bot/internal/avito"
	"github.com/Vovarama1992/rental-intake-bot/internal/config"
	"github.com/Vovarama1992/rental-intake-bot/internal/history"
	"github.com/Vovarama1992/rental-intake-bot/internal/httpapi"
	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
	"github.com/Vovarama1992/rental-intake-bot/internal/metrics"
	"github.com/Vovarama1992/rental-intake-bot/internal/notify"
	"github.com/Vovarama1992/rental-intake-bot/internal/store"
	"github.com/Vovarama1992/rental-intake-bot/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("exited with error")
	}
	log.Info().Msg("bye")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	st, err := store.Open(openCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	// --- history window ---
	var buf history.Buffer
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(openCtx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		buf = history.NewRedisBuffer(rdb, cfg.MaxHistory, cfg.HistoryTTL)
	}

	// --- engine ---
	llm, err := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	if err != nil {
		return err
	}

	engCfg := cfg.Engine()
	engCfg.StoreLabel = store.Describe(cfg.DatabaseURL)
	engine, err := intake.New(ctx, engCfg, st, llm, buf, intake.WithMetrics(metrics.NewIntakeMetrics(nil)))
	if err != nil {
		return err
	}

	// --- notifications ---
	var (
		sender notify.Sender = notify.LogSender{}
		tg     *telegram.Client
	)
	if cfg.TelegramEnabled() {
		tg, err = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramBaseURL)
		if err != nil {
			return err
		}
		if len(cfg.OperatorIDs) > 0 {
			sender = tg
		} else {
			log.Warn().Msg("TELEGRAM_OPERATOR_IDS is empty, leads go to the log only")
		}
	}
	dispatcher := notify.NewDispatcher(st, sender, cfg.OperatorIDs, metrics.NewNotifyMetrics(nil))

	engine.
		OnCompletion(dispatcher.CompletionObserver()).
		OnError(intake.ErrorFunc(func(_ context.Context, ev intake.ErrorEvent) error {
			log.Warn().Err(ev.Err).Str("client_id", ev.ClientID).Msg("turn answered with technical error")
			return nil
		}))

	g, ctx := errgroup.WithContext(ctx)

	// --- HTTP ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(engine, st), nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("store", engCfg.StoreLabel).Str("model", engCfg.Model).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// --- channels ---
	if tg != nil {
		bot := telegram.NewBot(tg, engine, cfg.OperatorIDs, cfg.TelegramPollTimeout)
		g.Go(func() error { return bot.Run(ctx) })
	}

	if cfg.AvitoEnabled() {
		ac, err := avito.NewClient(cfg.AvitoAccessToken, cfg.AvitoUserID, cfg.AvitoBaseURL)
		if err != nil {
			return err
		}
		poller := avito.NewPoller(ac, engine, cfg.AvitoPollInterval, cfg.AvitoErrorBackoff)
		g.Go(func() error { return poller.Run(ctx) })
	}

	return g.Wait()
}
