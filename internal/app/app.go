// Package app собирает сервис заказов: хранилище, NATS message patterns,
// Kafka event plane, метрики и health checks.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/orders-ms/internal/health"
	"github.com/vladislavdragonenkov/orders-ms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/catalog"
	natssvc "github.com/vladislavdragonenkov/orders-ms/internal/service/nats"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/orders"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/outbox"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/payments"
	"github.com/vladislavdragonenkov/orders-ms/internal/service/settlement"
	"github.com/vladislavdragonenkov/orders-ms/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orders-ms/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	deps := NewDependencies(logger)

	var store *postgres.Store
	if cfg.PostgresDSN != "" {
		opened, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer func() { _ = opened.Close() }()

		if err := opened.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}

		store = opened
		deps.Repo = postgres.NewOrderRepository(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		logger.Warn("postgres is not configured, using in-memory storage")
	}

	conn, err := initNATS(cfg.NATSUrl, logger)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	if conn != nil {
		deps.Catalog = catalog.NewClient(conn, logger.WithField("layer", "catalog"))
		deps.Payments = payments.NewClient(conn, logger.WithField("layer", "payments"))
	} else {
		logger.Warn("nats is not configured, using mock catalog and payments")
	}

	svc := orders.NewService(
		deps.Repo,
		deps.Catalog,
		deps.Payments,
		deps.OutboxRepo,
		logger.WithField("layer", "orders"),
	)

	handlers := natssvc.NewHandlers(svc, logger.WithField("layer", "nats"))
	if conn != nil {
		if err := handlers.Register(conn); err != nil {
			closeNATS(conn, logger)
			return fmt.Errorf("register message patterns: %w", err)
		}
	}

	// Kafka опционален: без брокеров сервис не публикует события
	// и не принимает подтверждения оплаты.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		worker := outbox.NewWorker(
			deps.OutboxRepo,
			publisher,
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
		)
		go worker.Run(ctx)
	}

	listener := settlement.NewListener(svc, logger.WithField("layer", "settlement"))
	consumer, _ := initSettlementConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, listener.Handle, producer, logger)
	if consumer != nil {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start settlement consumer")
		}
	}

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	if store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}))
	}
	if conn != nil {
		healthHandler.RegisterChecker("nats", healthcheck.NewSimpleChecker("nats", func() error {
			if !conn.IsConnected() {
				return errors.New("nats connection is not established")
			}
			return nil
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	logger.Info("orders service started")
	<-ctx.Done()
	logger.Info("shutdown signal received")

	if conn != nil {
		if err := handlers.Drain(); err != nil {
			logger.WithError(err).Warn("failed to drain message pattern subscriptions")
		}
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop settlement consumer")
		}
	}
	closeNATS(conn, logger)
	closeKafka(producer, logger)
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчики /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
