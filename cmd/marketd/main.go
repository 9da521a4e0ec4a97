package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Freeeeeet/local_services/internal/app"
	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/config"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/Freeeeeet/local_services/internal/repository"
	"github.com/Freeeeeet/local_services/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("marketd stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting marketd",
		zap.String("environment", cfg.Environment),
		zap.String("realtime_mode", cfg.RealtimeMode),
		zap.Int("config_warnings", len(cfg.Warnings)),
	)

	if cfg.GetDBDSN() == "" {
		return errors.New("DB_DSN is required to run marketd")
	}

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	if cfg.MigrationsEnabled {
		migrator, err := app.NewMigrator(pool, logger)
		if err != nil {
			return err
		}
		err = migrator.Run(ctx)
		migrator.Close()
		if err != nil {
			return err
		}
	}

	session := auth.NewSession(cfg.JWTSecret)
	if cfg.AccessToken != "" {
		user, err := session.SignIn(cfg.AccessToken)
		if err != nil {
			logger.Warn("ACCESS_TOKEN rejected, running signed out", zap.Error(err))
		} else {
			logger.Info("Signed in", zap.String("user_id", user.ID.String()))
		}
	}

	hub := realtime.NewHub()

	// Репозитории
	requestRepo := repository.NewRequestRepository(pool)
	applicationRepo := repository.NewApplicationRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)

	// Сервисы
	notifier := service.NewNotificationService(notificationRepo, logger)
	feed := service.NewRequestFeed(requestRepo, hub, logger)
	applications := service.NewApplicationService(requestRepo, applicationRepo, profileRepo, notifier, session, hub, logger)
	notifications := service.NewNotificationCenter(notificationRepo, hub, session, logger)
	requests := service.NewRequestService(requestRepo, applicationRepo, notifier, session, logger)
	profiles := service.NewProfileService(profileRepo, session, logger)

	var wg sync.WaitGroup
	switch cfg.RealtimeMode {
	case config.RealtimePostgres:
		listener := realtime.NewPGListener(pool, hub, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil {
				logger.Error("Postgres change listener failed", zap.Error(err))
			}
		}()
	case config.RealtimeSupabase:
		client := realtime.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, session.Token, hub, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Run(ctx); err != nil {
				logger.Error("Supabase realtime client failed", zap.Error(err))
			}
		}()
	}

	// Ошибки первичной загрузки не фатальны: представления перезагрузятся по событиям или опросу
	if err := feed.Start(ctx); err != nil {
		logger.Warn("Initial feed load failed", zap.Error(err))
	}
	defer feed.Close()

	if err := applications.Start(ctx); err != nil {
		logger.Warn("Initial applications load failed", zap.Error(err))
	}
	defer applications.Close()

	if err := notifications.Start(ctx); err != nil {
		logger.Warn("Initial notifications load failed", zap.Error(err))
	}
	defer notifications.Close()

	scheduler := app.NewScheduler(feed, logger)
	if cfg.RealtimeMode == config.RealtimePolling {
		scheduler.SetPollInterval(cfg.PollInterval)
		scheduler.AddPolling("feed", feed)
		scheduler.AddPolling("applications", applications)
		scheduler.AddPolling("notifications", notifications)
	}
	scheduler.Start(ctx)

	if session.User() != nil {
		mine, err := requests.MyRequests(ctx)
		if err != nil {
			logger.Warn("Failed to load own requests", zap.Error(err))
		}
		hasCard, err := profiles.HasBusinessCard(ctx)
		if err != nil {
			logger.Warn("Failed to load profile", zap.Error(err))
		}
		logger.Info("Current user",
			zap.Int("own_requests", len(mine)),
			zap.Bool("business_card", hasCard),
		)
	}

	logger.Info("marketd is running",
		zap.Int("feed_size", len(feed.Requests())),
		zap.Int("unread_notifications", notifications.UnreadCount()),
	)

	<-ctx.Done()

	logger.Info("Shutting down")
	scheduler.Stop()
	wg.Wait()

	return nil
}
