package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"geminichat/database"
	"geminichat/internal/billing"
	"geminichat/internal/config"
	"geminichat/internal/dispatch"
	"geminichat/internal/events"
	"geminichat/internal/logging"
	"geminichat/internal/microservices/http-api/handler"
	"geminichat/internal/microservices/http-api/middleware"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/microservices/http-api/service"
	"geminichat/internal/microservices/websocket"
	"geminichat/internal/quota"
	"geminichat/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("api_server_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return err
	}

	rdb, err := database.ConnectRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	otpRepo := repository.NewOTPRepository(db)
	chatroomRepo := repository.NewChatroomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	chatroomCache := repository.NewChatroomCache(rdb, cfg.ChatroomCacheTTL)

	counter := quota.NewRedisCounter(rdb)
	dispatcher, err := dispatch.NewStreamDispatcher(rdb, dispatch.Options{
		Stream:     cfg.DispatchStream,
		Partitions: cfg.DispatchPartitions,
		MaxLen:     cfg.DispatchMaxLen,
		NodeID:     cfg.DispatchNodeID,
	})
	if err != nil {
		return err
	}

	var gateway billing.Gateway
	if cfg.BillingEnabled() {
		gateway = billing.NewStripeGateway(billing.StripeOptions{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			ProPriceID:    cfg.StripeProPriceID,
			SuccessURL:    cfg.StripeSuccessURL,
			CancelURL:     cfg.StripeCancelURL,
		})
	} else {
		logger.Warn("billing_disabled", "reason", "STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET not set")
	}

	// Services
	authService := service.NewAuthService(userRepo, otpRepo, cfg, logger)
	chatroomService := service.NewChatroomService(chatroomRepo, chatroomCache, logger)
	messageService := service.NewMessageService(chatroomRepo, userRepo, counter, messageRepo, dispatcher, cfg.BasicDailyLimit, logger)
	subscriptionService := service.NewSubscriptionService(userRepo, subscriptionRepo, counter, gateway, cfg.BasicDailyLimit, logger)

	hub := websocket.NewHub(logger)
	otpLimiter := middleware.NewIPRateLimiter(cfg.OTPRatePerMinute)

	router := newRouter(cfg, routes{
		auth:          handler.NewAuthHandler(authService, cfg.AccessTokenTTL),
		chatrooms:     handler.NewChatroomHandler(chatroomService, messageService),
		subscriptions: handler.NewSubscriptionHandler(subscriptionService),
		live:          websocket.WSHandler(hub, chatroomRepo, websocket.NewUpgrader(cfg.CORSOrigins)),
		authMW:        middleware.AuthMiddleware(authService),
		otpLimit:      otpLimiter.Middleware(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched, err := scheduler.New(logger)
	if err != nil {
		return err
	}
	if err := sched.Every("purge_expired_otps", 15*time.Minute, func(ctx context.Context) error {
		n, err := otpRepo.DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired_otps_purged", "count", n)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := sched.Every("sweep_rate_limiter", 10*time.Minute, func(context.Context) error {
		otpLimiter.Sweep(time.Now())
		return nil
	}); err != nil {
		return err
	}
	sched.Start()

	sub := events.Subscribe(ctx, rdb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Forward(gctx, sub)
		return nil
	})
	g.Go(func() error {
		logger.Info("api_server_listening", "addr", srv.Addr, "env", cfg.GoEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api_server_shutting_down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		_ = sub.Close()
		if stopErr := sched.Stop(); stopErr != nil {
			logger.Warn("scheduler_stop_failed", "error", stopErr)
		}
		return err
	})

	err = g.Wait()
	logger.Info("api_server_stopped")
	return err
}
