package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"erp-service/config"
	"erp-service/internal/api"
	"erp-service/internal/broker"
	"erp-service/internal/redisclient"
	"erp-service/internal/service"
	"erp-service/internal/store"
	"erp-service/internal/util"
	"erp-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ERP service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.RunMigrations {
		if err := db.Migrate(logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))

	eventPublisher := broker.NewEventPublisher(producer)

	var counter service.Counter = db
	if cfg.Business.SequenceBackend == config.SequenceBackendRedis {
		counter = redisClient
	}
	seq := service.NewSequenceGenerator(counter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Numbers already issued must never be handed out again, whichever
	// backend holds the counter.
	if err := seq.SyncFromHighWater(ctx, service.SeriesOrder, service.PrefixOrder, db.MaxOrderNumber); err != nil {
		logger.Fatal("Failed to sync order sequence", zap.Error(err))
	}
	if err := seq.SyncFromHighWater(ctx, service.SeriesInvoice, service.PrefixInvoice, db.MaxInvoiceNumber); err != nil {
		logger.Fatal("Failed to sync invoice sequence", zap.Error(err))
	}

	stock := service.NewStockLedger(db, eventPublisher)
	journal := service.NewJournalPoster(db)
	orderService := service.NewOrderService(db, db, seq)
	approvals := service.NewOrderApprovalWorkflow(db, stock, journal, eventPublisher, service.ApprovalConfig{
		ReceivableCode: cfg.Ledger.ReceivableCode,
		RevenueCode:    cfg.Ledger.RevenueCode,
		Timeout:        cfg.Business.ApprovalTimeout,
	})
	invoices := service.NewInvoiceIssuance(db, db, seq, journal, redisClient, eventPublisher, service.InvoiceConfig{
		CashCode:       cfg.Ledger.CashCode,
		ReceivableCode: cfg.Ledger.ReceivableCode,
		DueDays:        cfg.Business.InvoiceDueDays,
		IdempotencyTTL: cfg.Business.IdempotencyTTL,
	})
	reconciler := service.NewReconciler(db)

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	reconciliationWorker := worker.NewReconciliationWorker(consumer, reconciler)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, approvals, invoices, stock, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := reconciliationWorker.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := reconciliationWorker.Stop(); err != nil {
			logger.Error("Failed to stop reconciliation worker", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
