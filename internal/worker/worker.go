package worker

import (
	"context"

	"erp-service/internal/broker"
	"erp-service/internal/service"
	"erp-service/internal/util"

	"go.uber.org/zap"
)

// MessageSource delivers messages from a topic until ctx is cancelled.
// *broker.Consumer satisfies it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ReconciliationWorker consumes approval failures and low-stock events
type ReconciliationWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(consumer MessageSource, reconciler *service.Reconciler) *ReconciliationWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnApprovalFailed(reconciler.HandleApprovalFailed)
	eventHandler.OnStockLow(reconciler.HandleStockLow)

	return &ReconciliationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("worker"),
	}
}

// Start blocks until ctx is cancelled
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconciliationWorker) Stop() error {
	w.logger.Info("Stopping reconciliation worker")
	return w.consumer.Close()
}
