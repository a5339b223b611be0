package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forecast_bot/internal/app"
	"forecast_bot/internal/domain/forecast"
	"forecast_bot/internal/infra/config"
	idb "forecast_bot/internal/infra/database"
	"forecast_bot/internal/infra/forecastapi"
	"forecast_bot/internal/infra/formatter"
	"forecast_bot/internal/infra/logger"
	"forecast_bot/internal/infra/metrics"
	"forecast_bot/internal/infra/scheduler"
	"forecast_bot/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatalf("Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admins":      len(cfg.AdminTelegramIDs),
	}).Info("Forecast bot starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.Migrate(ctx, db); err != nil {
		log.Fatalf("Could not apply migrations: %v", err)
	}
	log.Info("Database connection established successfully.")

	// Initialize Repositories
	scheduleRepo := idb.NewPostgresScheduleRepository(db)
	subscriberRepo := idb.NewPostgresSubscriberRepository(db)
	runLedger := idb.NewPostgresRunLedger(db)

	seeds := idb.DefaultSeed
	if cfg.ScheduleSeedFile != "" {
		if seeds, err = idb.LoadSeedFile(cfg.ScheduleSeedFile); err != nil {
			log.Fatalf("Could not load schedule seed file: %v", err)
		}
	}
	created, err := idb.SeedSchedules(ctx, scheduleRepo, seeds)
	if err != nil {
		log.Fatalf("Could not seed schedules: %v", err)
	}
	if created > 0 {
		log.WithField("count", created).Info("Seeded default schedules.")
	}

	metrics.Register()
	checker := metrics.NewChecker(db, logger.Component("metrics"), prometheus.DefaultRegisterer)

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.Component("telebot").WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("Could not create Telegram bot: %v", err)
	}
	tgClient := telegram.NewTelebotAdapter(bot)

	fetcher := forecastapi.NewClient(forecastapi.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.ForecastTimeout,
		Retry: forecast.RetryPolicy{
			MaxAttempts: cfg.ForecastMaxAttempts,
			BaseDelay:   cfg.ForecastBaseDelay,
			MaxDelay:    cfg.ForecastMaxDelay,
		},
	}, logger.Component("forecast"))
	log.WithField("endpoint", fetcher.Endpoint()).Info("Forecast API client configured.")

	dispatcher := app.NewDispatcher(tgClient, app.DispatcherConfig{
		RatePerSec:      cfg.DispatchRatePerSec,
		Workers:         cfg.DispatchWorkers,
		MaxFloodRetries: cfg.DispatchMaxFloodRetries,
		MessageLimit:    cfg.MessageLimit,
	}, logger.Get().WithField("service", "broadcast"))

	executor := app.NewExecutor(
		scheduleRepo,
		runLedger,
		subscriberRepo,
		fetcher,
		formatter.NewHTMLFormatter(),
		dispatcher,
		telegram.NewAdminNotifier(tgClient, cfg.AdminTelegramIDs, logger.Component("notifier")),
		app.ExecutorConfig{RunTimeout: cfg.RunTimeout},
		logger.Get().WithField("service", "executor"),
	)

	adminService := app.NewAdminService(scheduleRepo, runLedger, subscriberRepo, executor, cfg.AdminTelegramIDs)
	subscriptionService := app.NewSubscriptionService(subscriberRepo)

	// Register Handlers
	telegram.RegisterBotCommands(ctx, bot, subscriptionService, adminService, logger.Component("telegram"))
	telegram.RegisterAdminHandlers(ctx, bot, adminService, logger.Component("telegram_admin"))

	triggerLoop := scheduler.NewTriggerLoop(scheduleRepo, runLedger, executor, scheduler.Config{
		MaxConcurrent:       cfg.SchedulerMaxConcurrent,
		FailedRetryInterval: cfg.FailedRetryInterval,
	}, logger.Get().WithField("service", "scheduler"))
	if err := triggerLoop.Start(ctx); err != nil {
		log.Fatalf("Could not start trigger loop: %v", err)
	}

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, checker)
	go func() {
		log.WithField("addr", cfg.MetricsAddr).Info("Metrics server started")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	log.Info("Application setup complete. Bot and trigger loop are running.")

	<-ctx.Done()
	log.Info("Shutting down application...")

	bot.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout+30*time.Second)
	defer cancel()
	if err := triggerLoop.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Trigger loop did not stop cleanly")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Metrics server shutdown failed")
	}
	log.Info("Application shut down gracefully.")
}
