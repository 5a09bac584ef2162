// Package driverbot собирает бот регистрации водителей из конфигурации окружения.
package driverbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"driver_bot/internal/config"
	"driver_bot/internal/i18n"
	"driver_bot/internal/logging"
	"driver_bot/internal/metrics"
	"driver_bot/internal/ratelimit"
	"driver_bot/internal/registration"
	"driver_bot/internal/review"
	"driver_bot/internal/telegram"
)

// Run запускает бота и блокирует выполнение до остановки.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load locales: %w", err)
	}
	if !catalog.Supported(cfg.ReviewLanguage) {
		return fmt.Errorf("REVIEW_LANGUAGE %q has no locale", cfg.ReviewLanguage)
	}
	form, err := registration.FormByMode(cfg.FormMode)
	if err != nil {
		return err
	}

	redisClient := openRedis(ctx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("redis close failed", slog.String("error", err.Error()))
			}
		}()
	}

	drivers, closeDrivers, err := openDriverStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDrivers()
	sessions, sessionLocker, sweep := newSessionStore(redisClient, cfg.SessionIdleTTL)

	telegramClient := telegram.NewClient(cfg.BotToken, &http.Client{Timeout: cfg.TelegramTimeout})
	pollerClient := telegramClient
	if cfg.TelegramPollingEnabled {
		pollTimeout := cfg.TelegramPollingTimeout + 5*time.Second
		if pollTimeout < cfg.TelegramTimeout {
			pollTimeout = cfg.TelegramTimeout
		}
		pollerClient = telegram.NewClient(cfg.BotToken, &http.Client{Timeout: pollTimeout})
	}

	collector := metrics.NewCollector()
	coordinator := review.NewCoordinator(drivers, telegramClient, catalog, review.Options{
		ReviewChatID:   cfg.ReviewChatID,
		ReviewLanguage: cfg.ReviewLanguage,
		StrictClaimant: cfg.ReviewStrictClaimant,
		Metrics:        collector,
		Logger:         logger,
	})
	engine := registration.NewEngine(sessions, coordinator, drivers, telegramClient, catalog, registration.Options{
		Form:        form,
		BotUsername: cfg.BotUsername,
		Locker:      sessionLocker,
		Logger:      logger,
	})
	inboundLimiter := ratelimit.New(redisClient, cfg.TelegramInboundRateLimit, time.Minute, "telegram:inbound", logger)
	bot := telegram.NewBot(telegramClient, engine, coordinator, catalog, inboundLimiter, collector, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(telegram.NewWebhookHandler(bot, cfg.WebhookSecret, logger), collector, logger),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("driver bot listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("driver bot shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})
	if sweep != nil {
		group.Go(func() error {
			sweep(groupCtx)
			return nil
		})
	}

	if cfg.TelegramPollingEnabled {
		poller := telegram.NewPoller(pollerClient, bot, logger, cfg.TelegramPollingTimeout, cfg.TelegramPollingInterval, cfg.TelegramPollingLimit, cfg.TelegramPollingDropPending, cfg.TelegramPollingDropWebhook)
		group.Go(func() error {
			poller.Run(groupCtx)
			return nil
		})
		logger.Info("telegram polling enabled", slog.Duration("timeout", cfg.TelegramPollingTimeout))
	} else if cfg.TelegramWebhookURL == "" {
		logger.Warn("telegram webhook url missing; bot will not receive updates")
	} else {
		hookCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := telegramClient.SetWebhook(hookCtx, cfg.TelegramWebhookURL, cfg.WebhookSecret, cfg.TelegramWebhookDropPending)
		cancel()
		if err != nil {
			stop()
			_ = group.Wait()
			return fmt.Errorf("telegram set webhook failed: %w", err)
		}
		logger.Info("telegram webhook configured", slog.String("url", cfg.TelegramWebhookURL))
	}

	return group.Wait()
}
