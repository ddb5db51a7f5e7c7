package main // Entry point package

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/config"
	"github.com/ticketcore/checkout-service/internal/database"
	"github.com/ticketcore/checkout-service/internal/handler"
	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/queue"
	"github.com/ticketcore/checkout-service/internal/repository"
	"github.com/ticketcore/checkout-service/internal/router"
	"github.com/ticketcore/checkout-service/internal/service"
	"github.com/ticketcore/checkout-service/migrations"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(context.Background(), db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	// Redis backs rate limiting and the availability response cache; both
	// degrade to pass-through when the client is nil.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting and caching disabled")
	}

	clk := clock.NewSystem()

	ledgerRepo := repository.NewLedgerRepo(db)
	holdRepo := repository.NewHoldRepo(db)
	sessionRepo := repository.NewSessionRepo(db)
	codeRepo := repository.NewAccessCodeRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	webhookRepo := repository.NewWebhookEventRepo(db)
	exceptionRepo := repository.NewReconciliationExceptionRepo(db)

	publisher := queue.NewPublisher()
	gateway := payment.NewHTTPGateway(payment.Config{
		BaseURL:   cfg.PaymentBaseURL,
		SecretKey: cfg.PaymentSecretKey,
		Mode:      payment.Mode(cfg.PaymentMode),
	})

	holdSvc := service.NewHoldService(ledgerRepo, holdRepo, clk, service.WithHoldTTL(cfg.HoldTTL))
	codeSvc := service.NewAccessCodeService(codeRepo, clk)
	checkoutSvc := service.NewCheckoutService(
		ledgerRepo, holdSvc, sessionRepo, codeSvc, orderRepo,
		gateway, publisher, clk,
		service.WithCurrency(cfg.Currency),
		service.WithExtension(cfg.MaxExtensions, cfg.ExtendTTL),
	)
	reconcileSvc := service.NewReconcileService(
		ledgerRepo, sessionRepo, codeSvc, orderRepo,
		webhookRepo, exceptionRepo, publisher, clk,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(ledgerRepo, holdRepo, sessionRepo, clk, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// Consume reconciliation alerts into the ops log.  Runs with its own
	// reconnect loop and dies with the process.
	go queue.StartAlertsConsumer()

	e := echo.New()
	router.Register(e, router.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutSvc),
		Tiers:    handler.NewTierHandler(checkoutSvc),
		Webhook:  handler.NewWebhookHandler(cfg.WebhookSecret, reconcileSvc),
	}, cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
