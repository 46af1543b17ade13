package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/donorlink/callops/internal/api/router"
	"github.com/donorlink/callops/internal/callsession"
	appconfig "github.com/donorlink/callops/internal/config"
	"github.com/donorlink/callops/internal/carrier"
	"github.com/donorlink/callops/internal/donors"
	"github.com/donorlink/callops/internal/inbound"
	"github.com/donorlink/callops/internal/messaging"
	"github.com/donorlink/callops/internal/notify"
	"github.com/donorlink/callops/internal/observability/metrics"
	"github.com/donorlink/callops/internal/payments"
	"github.com/donorlink/callops/internal/webhooklog"
	"github.com/donorlink/callops/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting callops API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	voiceMetrics := metrics.NewVoiceMetrics(registry)

	// Stores and repositories.
	donorRepo := donors.NewRepository(pool)
	sessions := callsession.NewStore(pool)
	webhookLog := webhooklog.NewStore(pool)
	records := inbound.NewRecordStore(pool)

	// Admin email alerts (optional). The interface variable stays nil unless a
	// sender was actually configured; a typed-nil sender would slip past the
	// alerter's nil check.
	var emailSender notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); s != nil {
		emailSender = s
	}
	alerter := notify.NewAdminAlerter(emailSender, cfg.AdminAlertEmail, cfg.OrgName, logger)

	// Messaging gateway plus the dispatch queue that keeps voice handlers
	// decoupled from its latency.
	gateway := messaging.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIToken, cfg.GatewayTimeout, logger)
	var dispatcher *messaging.Dispatcher
	var workers sync.WaitGroup
	if gateway != nil {
		queue := buildQueue(cfg, logger)
		dispatcher = messaging.NewDispatcher(queue, gateway, alerter, records, logger)
		for i := 0; i < cfg.DispatchWorkers; i++ {
			workers.Add(1)
			go func() {
				defer workers.Done()
				dispatcher.Run(ctx)
			}()
		}
	} else {
		logger.Warn("messaging gateway not configured; donor messages disabled")
	}

	// Outbound calling.
	carrierClient := carrier.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, logger)
	outboundURLs := callsession.NewURLBuilder(cfg.PublicBaseURL)
	launcher := callsession.NewLauncher(sessions, donorRepo, carrierClient, outboundURLs, cfg.TwilioCallerID, cfg.RecordCalls, logger)
	callHandler := callsession.NewHandler(launcher, sessions, logger)
	bridge := callsession.NewBridgeResponder(outboundURLs, cfg.TwilioCallerID, cfg.RecordCalls, logger)
	reconciler := callsession.NewReconciler(sessions, webhookLog, voiceMetrics, logger)

	// Inbound menu.
	org := inbound.Org{
		Name:              cfg.OrgName,
		BankAccountName:   cfg.BankAccountName,
		BankSortCode:      cfg.BankSortCode,
		BankAccountNumber: cfg.BankAccountNumber,
		ContactPhone:      cfg.ContactPhone,
		AdminContactPhone: cfg.AdminContactPhone,
	}
	inboundURLs := inbound.NewURLBuilder(cfg.PublicBaseURL)
	registrar := payments.NewRegistrar(pool, donorRepo, logger)
	engine := inbound.NewEngine(donorRepo, records, dispatcher, webhookLog, webhookLog, inboundURLs, org, voiceMetrics, logger)
	navigator := inbound.NewNavigator(donorRepo, records, dispatcher, webhookLog, registrar, inboundURLs, org, voiceMetrics, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		CallHandler:      callHandler,
		BridgeResponder:  bridge,
		Reconciler:       reconciler,
		InboundEngine:    engine,
		MenuNavigator:    navigator,
		CarrierAuthToken: cfg.TwilioAuthToken,
		PortalJWTSecret:  cfg.PortalJWTSecret,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	workers.Wait()
	logger.Info("shutdown complete")
}

// buildQueue picks the dispatch queue backing: Redis when configured, an
// in-process buffer otherwise.
func buildQueue(cfg *appconfig.Config, logger *logging.Logger) messaging.Queue {
	if cfg.UseMemoryQueue || cfg.RedisAddr == "" {
		logger.Info("using in-memory dispatch queue")
		return messaging.NewMemoryQueue(256)
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	logger.Info("using redis dispatch queue", "addr", cfg.RedisAddr, "key", cfg.DispatchQueueKey)
	return messaging.NewRedisQueue(client, cfg.DispatchQueueKey)
}
