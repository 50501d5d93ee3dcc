package main

import (
	"context"

	"github.com/septivank/utility-billing-service/internal/anomaly"
	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/config"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/mq"
	"github.com/septivank/utility-billing-service/internal/repository"
	"github.com/septivank/utility-billing-service/internal/server"
	"github.com/septivank/utility-billing-service/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting API server", zap.Int("port", cfg.Server.Port))
			srv.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}

func startReadingConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	readings *service.ReadingService,
) (*mq.Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: readings.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting reading consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("reading consumer stopped")
			return nil
		},
	})

	return consumer, nil
}

// ProvideDBPool creates the database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates the repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideMQConnection creates the RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the domain event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideAuthenticator creates the request authenticator
func ProvideAuthenticator(repo *repository.Repository, logger *zap.Logger) *auth.Authenticator {
	return auth.NewAuthenticator(repo, logger)
}

// ProvideAnomalyDetector creates the reading anomaly detector
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideBillingService creates the billing calculator
func ProvideBillingService(repo *repository.Repository, publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) (*service.BillingService, error) {
	return service.NewBillingService(repo, publisher, cfg, logger)
}

// ProvidePaymentService creates the payment recorder
func ProvidePaymentService(repo *repository.Repository, publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) *service.PaymentService {
	return service.NewPaymentService(repo, publisher, cfg, logger)
}

// ProvideReportService creates the report assembler
func ProvideReportService(repo *repository.Repository, publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) *service.ReportService {
	return service.NewReportService(repo, publisher, cfg, logger)
}

// ProvideReadingService creates the reading ingestion service
func ProvideReadingService(repo *repository.Repository, detector *anomaly.Detector, publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) *service.ReadingService {
	return service.NewReadingService(repo, detector, publisher, cfg, logger)
}

// ProvideHandler creates the API handler
func ProvideHandler(
	authenticator *auth.Authenticator,
	billing *service.BillingService,
	payments *service.PaymentService,
	reports *service.ReportService,
	readings *service.ReadingService,
	logger *zap.Logger,
) *server.Handler {
	return server.NewHandler(authenticator, billing, payments, reports, readings, logger)
}

// ProvideHTTPServer creates the HTTP server
func ProvideHTTPServer(cfg *config.Config, handler *server.Handler, logger *zap.Logger) *server.HTTPServer {
	return server.NewHTTPServer(cfg, handler, logger)
}
