package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"ticket-settlement/config"
	"ticket-settlement/internal/handlers"
	"ticket-settlement/internal/services"
	"ticket-settlement/internal/services/gateway/flowpay"
	"ticket-settlement/internal/store"
	"ticket-settlement/monitoring"
	"ticket-settlement/security"
	"ticket-settlement/utils"

	_ "ticket-settlement/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-settlement/internal/services/gateway"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (buyer + ops notifications)
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := flowpay.New(ctx, &cfg.FlowPay)
	if err != nil {
		return err
	}
	defer gw.Close(context.Background())

	// Initialize services
	st := store.New(app)
	notifier := services.NewNotifyService(pn, cfg.OpsAlertChannel)
	pricingService := services.NewPricingService(st, cfg.DefaultCurrency, cfg.CurrencyExponent)
	paymentService := services.NewPaymentService(redisClient, st, pricingService, gw, cfg.IntentSessionTTL)
	settlementService := services.NewSettlementService(redisClient, st, gw, notifier, cfg.WebhookDedupTTL)
	redemptionService := services.NewRedemptionService(st, notifier)

	// FlowPay also pushes transaction notices over its PubNub channel. The
	// notice path re-verifies against the provider API before settling, so a
	// spoofed push cannot mint tickets.
	noticeChannel := make(chan *gateway.PaymentNotice, 1)
	gw.SetNoticeChannel(noticeChannel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-noticeChannel:
				slog.Info("=> flowpay push notice", "intentId", n.ProviderIntentID, "status", n.Status)
				if err := settlementService.SettleFromNotice(ctx, n); err != nil {
					slog.Error("settlementService.SettleFromNotice()", "intentId", n.ProviderIntentID, "error", err)
				}
			}
		}
	}()

	// Initialize handlers
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, limiter)
	webhookHandler := handlers.NewWebhookHandler(app, settlementService)
	redemptionHandler := handlers.NewRedemptionHandler(app, redemptionService, limiter, cfg.StaffKeyHash)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment endpoints
		e.Router.POST("/api/v1/payment-intents", paymentHandler.CreateIntent)
		e.Router.GET("/api/v1/payment-intents/{intentId}/status", paymentHandler.IntentStatus)
		e.Router.GET("/api/v1/orders/{orderId}/tickets", paymentHandler.OrderTickets)

		// Provider callback
		e.Router.POST("/api/v1/webhooks/payment", webhookHandler.PaymentCallback)

		// Gate scanning
		e.Router.POST("/api/v1/tickets/redeem", redemptionHandler.Redeem)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
