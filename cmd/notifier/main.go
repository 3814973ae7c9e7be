package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sroepkeee/orderhub-notify/internal/alerts"
	"github.com/sroepkeee/orderhub-notify/internal/channel"
	"github.com/sroepkeee/orderhub-notify/internal/config"
	"github.com/sroepkeee/orderhub-notify/internal/dispatch"
	"github.com/sroepkeee/orderhub-notify/internal/orders"
	"github.com/sroepkeee/orderhub-notify/internal/queue"
	"github.com/sroepkeee/orderhub-notify/internal/ratelimit"
	"github.com/sroepkeee/orderhub-notify/internal/routing"
	"github.com/sroepkeee/orderhub-notify/pkg/apikey"
	"github.com/sroepkeee/orderhub-notify/pkg/database"
	"github.com/sroepkeee/orderhub-notify/pkg/jsonutil"
	"github.com/sroepkeee/orderhub-notify/pkg/messaging"
	"github.com/sroepkeee/orderhub-notify/pkg/observability"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger("notifier")

	if err := routing.ValidateMapping(); err != nil {
		log.Error("phase mapping is broken", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		if db == nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		// The pool recovers once the database is reachable; queries fail
		// cleanly until then.
		log.Warn("database connection degraded", "error", err)
	}
	defer db.Close()
	if schema, err := os.ReadFile("internal/queue/schema.sql"); err == nil {
		if err := database.Migrate(db, string(schema)); err != nil {
			log.Warn("queue schema migration failed", "error", err)
		}
	}

	store := queue.NewPostgresStore(db)
	orderStore := orders.NewPostgresStore(db)
	triggerStore := routing.NewPostgresTriggerStore(db)
	managerStore := routing.NewPostgresManagerStore(db)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, duplicate sends possible after crash", "error", err)
		}
	}

	var mirror alerts.Mirror
	if cfg.RabbitURL != "" {
		publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, log)
		if err != nil {
			log.Warn("alert mirror disabled", "error", err)
		} else {
			defer publisher.Close()
			mirror = alerts.NewQueueMirror(publisher, cfg.MirrorQueue)
		}
	}

	engine := routing.NewEngine(store, orderStore, triggerStore, managerStore, log)
	generator := alerts.NewGenerator(orderStore, store, managerStore, mirror, cfg.OrgID, log)

	limiters := ratelimit.NewRegistry(ratelimit.Config{
		PerMinute: cfg.RatePerMinute,
		PerHour:   cfg.RatePerHour,
		MinGap:    3 * time.Second,
		MaxGap:    5 * time.Second,
	})
	adapter := channel.NewWhatsAppGateway(cfg.WhatsAppURL, cfg.WhatsAppToken)
	dispatcher := dispatch.New(store, limiters.For(cfg.WhatsAppAccount), adapter, redisClient, log)

	go dispatcher.Run(ctx, cfg.PollInterval)
	go dispatcher.RunSweeper(ctx, cfg.SweepInterval)
	go runAlertSchedule(ctx, cfg.AlertInterval, cfg.SummaryHour, generator, log)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := messaging.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, log)
		defer consumer.Close()
		go consumer.Consume(ctx, func(key string, value []byte) error {
			var ev routing.OrderEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return err
			}
			_, err := engine.Route(ctx, ev)
			return err
		})
		log.Info("consuming order events", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
	}

	handler := &NotifierHandler{
		engine:    engine,
		generator: generator,
		store:     store,
		log:       log,
	}

	api := http.NewServeMux()
	api.HandleFunc("/events/order-status", handler.RouteEvent)
	api.HandleFunc("/alerts/run", handler.RunAlerts)
	api.HandleFunc("/reports/daily-summary", handler.RunDailySummary)
	api.HandleFunc("/queue", handler.ListQueue)
	api.HandleFunc("/queue/", handler.QueueAction)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonutil.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "active",
			"service": "notifier",
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apikey.Middleware(cfg.APIKeyHash, api))

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info("notifier HTTP listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	log.Info("notifier stopped")
}

// runAlertSchedule drives the periodic detector battery and the daily
// summary at the configured local hour.
func runAlertSchedule(ctx context.Context, interval time.Duration, summaryHour int, g *alerts.Generator, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	summaryTimer := time.NewTimer(untilNextHour(time.Now(), summaryHour))
	defer summaryTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Run(ctx); err != nil {
				log.Error("scheduled alert run failed", "error", err)
			}
		case <-summaryTimer.C:
			if _, err := g.RunDailySummary(ctx); err != nil {
				log.Error("scheduled daily summary failed", "error", err)
			}
			summaryTimer.Reset(untilNextHour(time.Now(), summaryHour))
		}
	}
}

func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
