package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobybot/pkg/bot"
	"jobybot/pkg/bot/telegramadapter"
	"jobybot/pkg/config"
	"jobybot/pkg/dispatch"
	"jobybot/pkg/fsm"
	"jobybot/pkg/logging"
	"jobybot/pkg/records"
	"jobybot/pkg/retry"
	"jobybot/pkg/server"
	"jobybot/pkg/state"
	"jobybot/pkg/store"
	"jobybot/pkg/store/memstore"
	"jobybot/pkg/store/noop"
	"jobybot/pkg/store/pgstore"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = 10 * time.Minute
	pollTimeout     = 60
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("jobybot: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	settings, err := config.LoadSettings(ctx)
	if err != nil {
		return err
	}

	base, err := logging.New(logging.Options{Level: settings.LogLevel, Development: settings.LogDevelopment})
	if err != nil {
		return err
	}
	defer func() { _ = base.Sync() }()

	flows, err := config.LoadFlowConfig(settings.FlowsFile)
	if err != nil {
		return err
	}
	base.Info("Configuration loaded", zap.String("flows_file", settings.FlowsFile))

	db, checks, err := openStore(ctx, settings, base)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			base.Warn("Error closing store", zap.Error(err))
		}
	}()

	logger := base
	if settings.EffectiveStoreMode() == config.StoreLive {
		sink := logging.NewStoreCore(db, zap.WarnLevel)
		defer sink.Close()
		logger = logging.WithStore(base, sink)
	}

	sessions, err := openSessions(ctx, settings, logger, checks)
	if err != nil {
		return err
	}

	exec := retry.NewExecutor(logger)
	exec.MaxAttempts = settings.RetryMaxAttempts
	exec.Delay = settings.RetryDelay
	repo := records.NewRepository(db, exec, logger)

	stepper, err := fsm.NewStepper(flows, repo, logger)
	if err != nil {
		return err
	}

	client, err := bot.NewClient(settings.BotToken, logger)
	if err != nil {
		return err
	}
	logger.Info("Authorized", zap.String("account", client.Self.UserName))

	port, err := telegramadapter.New(client, logger.Named("botport"))
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(dispatch.Deps{
		Config:    flows,
		Stepper:   stepper,
		Sessions:  sessions,
		Directory: repo,
		Bot:       port,
		Stats:     logging.NewRecorder(db, logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	opts := server.Options{
		Addr:   ":" + settings.Port,
		Checks: checks,
		Logger: logger,
	}
	if settings.WebhookMode() {
		opts.WebhookPath = settings.WebhookPath()
		opts.Handler = dispatcher
	}
	srv := server.New(opts)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	if settings.WebhookMode() {
		if err := client.SetWebhook(settings.WebhookURL()); err != nil {
			return err
		}
		logger.Info("Running in webhook mode", zap.String("host", settings.WebhookHost))
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}
		if err := client.DeleteWebhook(false); err != nil {
			logger.Warn("Failed to delete webhook", zap.Error(err))
		}
	} else {
		if err := client.DeleteWebhook(false); err != nil {
			logger.Warn("Failed to delete webhook", zap.Error(err))
		}
		logger.Info("Running in polling mode")
		poll(ctx, client, dispatcher, logger)
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}

// poll handles every update on its own goroutine until ctx is done.
func poll(ctx context.Context, client *bot.Client, d *dispatch.Dispatcher, logger *zap.Logger) {
	updates := client.GetUpdatesChan(pollTimeout)
	defer client.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.UpdateID == 0 {
				continue
			}
			go func(u tgbotapi.Update) {
				d.HandleUpdate(ctx, u)
			}(update)
		case <-ctx.Done():
			logger.Info("Stopping update processing loop...")
			return
		}
	}
}

func openStore(ctx context.Context, s *config.Settings, logger *zap.Logger) (store.Store, map[string]server.Check, error) {
	checks := map[string]server.Check{}

	switch mode := s.EffectiveStoreMode(); mode {
	case config.StoreLive:
		pg, err := pgstore.Open(ctx, s.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		checks["postgres"] = pg.Ping
		logger.Info("Using Postgres record store")
		return pg, checks, nil
	case config.StoreMemory:
		logger.Info("Using in-memory record store")
		return memstore.New(), checks, nil
	case config.StoreNoop:
		if s.StoreMode == config.StoreLive {
			logger.Warn("Database credentials missing, records are not persisted")
		} else {
			logger.Info("Using no-op record store")
		}
		return noop.New(), checks, nil
	default:
		return nil, nil, fmt.Errorf("unknown store mode %q", mode)
	}
}

func openSessions(ctx context.Context, s *config.Settings, logger *zap.Logger, checks map[string]server.Check) (state.Store, error) {
	switch s.SessionBackend {
	case config.SessionRedis:
		client, err := state.ConnectRedis(ctx, state.RedisConfig{Addr: s.Redis.Addr, DB: s.Redis.DB})
		if err != nil {
			return nil, err
		}
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		go closeOnDone(ctx, client, logger)
		logger.Info("Using Redis session store", zap.String("addr", s.Redis.Addr))
		return state.NewRedisStore(client, s.SessionTTL), nil
	case config.SessionMemory:
		mem := state.NewMemoryStore(s.SessionTTL, logger)
		if s.SessionTTL > 0 {
			go mem.RunJanitor(ctx, janitorInterval)
		}
		return mem, nil
	default:
		return nil, errors.New("unknown session backend " + s.SessionBackend)
	}
}

func closeOnDone(ctx context.Context, client *redis.Client, logger *zap.Logger) {
	<-ctx.Done()
	if err := client.Close(); err != nil {
		logger.Warn("Error closing redis client", zap.Error(err))
	}
}
