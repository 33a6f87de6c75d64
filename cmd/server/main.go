package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/pixelchat_server/config"
	"github.com/qs3c/pixelchat_server/internal/api"
	"github.com/qs3c/pixelchat_server/internal/api/handler"
	"github.com/qs3c/pixelchat_server/internal/billing"
	"github.com/qs3c/pixelchat_server/internal/database"
	"github.com/qs3c/pixelchat_server/internal/pkg/ledger"
	"github.com/qs3c/pixelchat_server/internal/pkg/llm"
	"github.com/qs3c/pixelchat_server/internal/pkg/logging"
	"github.com/qs3c/pixelchat_server/internal/pkg/oauth"
	"github.com/qs3c/pixelchat_server/internal/pkg/pubsub"
	"github.com/qs3c/pixelchat_server/internal/pkg/queue"
	"github.com/qs3c/pixelchat_server/internal/pkg/ws"
	"github.com/qs3c/pixelchat_server/internal/repository"
	"github.com/qs3c/pixelchat_server/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log, "server")

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server shutdown complete")
}

func run(cfg *config.Config) error {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// 通知：Redis 队列交给 notifier 发邮件，pub/sub 推送到在线连接
	noticeQueue := queue.NewQueue(rdb, cfg.Notice.Queue)
	publisher := pubsub.NewPublisher(rdb)
	wsHub := ws.NewHub()

	// Repository
	userRepo := repository.NewUserRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	chatRepo := repository.NewChatRepository(db)

	// Stripe 未配置时结账与二次查询不可用，webhook 仍可对账
	var (
		fetcher  service.PeriodEndFetcher
		provider service.CheckoutProvider
	)
	if cfg.Stripe.SecretKey != "" {
		stripeClient := billing.NewClient(cfg.Stripe.SecretKey)
		fetcher = stripeClient
		provider = stripeClient
	} else {
		log.Warn().Msg("Stripe secret key not configured, checkout disabled")
	}

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey,
		time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, cfg.LLM.MaxTokens)

	// Service
	quotaService := service.NewQuotaService(userRepo, rdb, cfg)
	planService := service.NewPlanService(cfg)
	authService := service.NewAuthService(userRepo, quotaService, cfg)
	userService := service.NewUserService(userRepo, quotaService, planService)
	chatService := service.NewChatService(chatRepo, quotaService, planService, llmClient)
	promoService := service.NewPromoService(promoRepo)
	checkoutService := service.NewCheckoutService(provider, cfg)
	noticeService := service.NewNoticeService(noticeQueue, publisher)
	reconcilerService := service.NewReconcilerService(userRepo, fetcher, noticeService, cfg)

	// Handler
	authHandler := handler.NewAuthHandler(authService, oauth.NewStateStore(rdb), cfg.Stripe.FrontendURL)
	userHandler := handler.NewUserHandler(userService, quotaService)
	plansHandler := handler.NewPlansHandler(planService, userService)
	chatHandler := handler.NewChatHandler(chatService, userService, quotaService)
	billingHandler := handler.NewBillingHandler(checkoutService, promoService, userService)
	webhookHandler := handler.NewWebhookHandler(cfg.Stripe.WebhookSecret, reconcilerService,
		ledger.New(rdb, cfg.Stripe.EventLedgerTTL()))
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins)

	engine := api.NewRouter(
		authHandler,
		userHandler,
		plansHandler,
		chatHandler,
		billingHandler,
		webhookHandler,
		websocketHandler,
		cfg,
	).Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := pubsub.NewSubscriber(rdb).Subscribe(ctx, wsHub.DeliverNotice)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
