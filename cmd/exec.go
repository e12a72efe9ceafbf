package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
	"github.com/shopspring/decimal"

	"passaddis/config"
	"passaddis/internal/gate"
	"passaddis/internal/handlers"
	"passaddis/internal/notify"
	"passaddis/internal/payment"
	"passaddis/internal/payment/chapa"
	"passaddis/internal/payment/telebirr"
	"passaddis/internal/services"
	"passaddis/internal/store"
	"passaddis/models"
	"passaddis/security"
	"passaddis/utils"

	_ "passaddis/migrations"
)

func Start() error {
	app := pocketbase.New()
	cfg := config.LoadConfig()

	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher := buildPublisher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	pbStore := store.NewPBStore(app)
	var inventory store.InventoryRepository = pbStore
	var redisInventory *store.RedisInventory
	if cfg.FlashSaleMode {
		// Flash-sale events serialize their sold counters in Redis instead
		// of the SQL row.
		redisInventory = store.NewRedisInventory(redisClient)
		inventory = redisInventory
	}

	// Core services
	ledger := services.NewInventoryLedger(inventory)
	issuer := services.NewTicketIssuer()
	orchestrator := services.NewPurchaseOrchestrator(
		pbStore, pbStore, ledger, issuer, serviceFee(cfg), publisher,
	)
	validator := services.NewTicketValidator(pbStore, pbStore)
	coordinator := services.NewTransferCoordinator(pbStore, pbStore, publisher, cfg.TransferTTL)
	wallet := services.NewWallet(pbStore)

	// Payment gateways
	payments := buildPaymentRegistry(cfg)
	defer payments.CloseAll(ctx)

	// Handlers
	orderHandler := handlers.NewOrderHandler(orchestrator, payments, cfg.IssueOnPurchase)
	ticketHandler := handlers.NewTicketHandler(wallet)
	transferHandler := handlers.NewTransferHandler(coordinator)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, payments, cfg.Environment == "development")

	limiter := security.NewRateLimiter(redisClient)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Venue gate server runs beside the main app.
	gateServer := gate.NewServer(validator, limiter, gate.Config{
		Addr:      cfg.GateAddr,
		APIKey:    cfg.GateAPIKey,
		ScanLimit: cfg.GateScanLimit,
	})
	go func() {
		if err := gateServer.Start(); err != nil {
			slog.Error("gate server stopped", "error", err)
		}
	}()

	go sweepExpiredTransfers(ctx, coordinator, cfg.SweepInterval)
	go handleShutdown(cancel, gateServer)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if cfg.FlashSaleMode {
			syncInventoryToRedis(ctx, app, redisInventory)
		}

		// Order endpoints. Checkout is the abuse target, so it runs behind
		// the per-user purchase limiter.
		purchaseGuard := limiter.PurchaseGuard(cfg.PurchaseLimit, time.Minute)
		e.Router.POST("/api/passaddis/orders", purchaseGuard(orderHandler.CreateOrder))
		e.Router.GET("/api/passaddis/orders", orderHandler.ListOrders)
		e.Router.GET("/api/passaddis/orders/{id}", orderHandler.GetOrder)

		// Wallet
		e.Router.GET("/api/passaddis/tickets", ticketHandler.ListMyTickets)
		e.Router.GET("/api/passaddis/tickets/{id}", ticketHandler.GetTicket)

		// Transfer endpoints
		e.Router.POST("/api/passaddis/transfers", transferHandler.InitiateTransfer)
		e.Router.POST("/api/passaddis/transfers/claim", transferHandler.ClaimTransfer)
		e.Router.DELETE("/api/passaddis/transfers/{ticketId}", transferHandler.CancelTransfer)
		e.Router.GET("/api/passaddis/transfers", transferHandler.ListTransfers)

		// Payment callbacks
		e.Router.POST("/api/passaddis/payments/webhook/{provider}", paymentHandler.Webhook)
		if cfg.Environment == "development" {
			e.Router.POST("/api/passaddis/test/simulate-payment", paymentHandler.SimulatePayment)
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

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func buildPublisher(cfg *config.Config) notify.Publisher {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		slog.Info("pubnub not configured, notifications disabled")
		return notify.Nop{}
	}
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = cfg.PubNubUUID
	return notify.NewPubNubPublisher(pubnub.NewPubNub(pnConfig))
}

func buildPaymentRegistry(cfg *config.Config) *payment.Registry {
	registry := payment.NewRegistry(payment.NewFactory())

	if cfg.ChapaSecretKey != "" {
		if err := registry.Register(payment.ProviderChapa, &chapa.Config{
			SecretKey:     cfg.ChapaSecretKey,
			WebhookSecret: cfg.ChapaWebhookSecret,
			CallbackURL:   cfg.ChapaCallbackURL,
		}); err != nil {
			slog.Error("chapa registration failed", "error", err)
		}
	}
	if cfg.TelebirrAppID != "" {
		if err := registry.Register(payment.ProviderTelebirr, &telebirr.Config{
			AppID:     cfg.TelebirrAppID,
			AppKey:    cfg.TelebirrAppKey,
			ShortCode: cfg.TelebirrShortCode,
			NotifyURL: cfg.TelebirrNotifyURL,
			BaseURL:   cfg.TelebirrBaseURL,
		}); err != nil {
			slog.Error("telebirr registration failed", "error", err)
		}
	}

	if len(registry.Names()) == 0 {
		slog.Warn("no payment providers configured, only dev simulation available")
	}
	return registry
}

// serviceFee builds the platform fee policy from config: basis points of
// the subtotal plus a flat birr amount.
func serviceFee(cfg *config.Config) services.FeeFunc {
	flat, err := decimal.NewFromString(cfg.ServiceFeeFlat)
	if err != nil {
		flat = decimal.Zero
	}
	bps := decimal.New(int64(cfg.ServiceFeeBps), -4)
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(bps).Add(flat).Round(2)
	}
}

// syncInventoryToRedis seeds Redis counters for every ticket type of a
// published event so the Lua reserve path has capacities to work with.
func syncInventoryToRedis(ctx context.Context, app *pocketbase.PocketBase, inventory *store.RedisInventory) {
	records, err := app.FindRecordsByFilter(
		"ticket_types",
		"event_id != ''",
		"id",
		-1,
		0,
		nil,
	)
	if err != nil {
		slog.Error("inventory sync query failed", "error", err)
		return
	}

	seeded := 0
	for _, r := range records {
		tt := &models.TicketType{
			ID:       r.Id,
			Quantity: r.GetInt("quantity"),
			Sold:     r.GetInt("sold"),
		}
		if err := inventory.Seed(ctx, tt); err != nil {
			slog.Error("inventory seed failed", "ticket_type", r.Id, "error", err)
			continue
		}
		seeded++
	}
	slog.Info("synced inventory to redis", "ticket_types", seeded)
}

func sweepExpiredTransfers(ctx context.Context, coordinator *services.TransferCoordinator, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := coordinator.SweepExpired(ctx); err != nil {
				slog.Error("transfer sweep failed", "error", err)
			}
		}
	}
}

func handleShutdown(cancel context.CancelFunc, gateServer *gate.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := gateServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("gate shutdown failed", "error", err)
	}
	cancel()
}
