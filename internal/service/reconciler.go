package service

import (
	"context"
	"fmt"
	"strconv"

	"erp-service/internal/models"
	"erp-service/internal/util"

	"go.uber.org/zap"
)

// ReconcileStore is what the reconciler reads to audit a failed approval.
type ReconcileStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	GetMovementsByReference(ctx context.Context, reference string) ([]models.StockMovement, error)
}

// Reconciler consumes approval failures and low-stock signals. It never
// compensates: it checks what was actually recorded and flags it for an
// operator, who releases the claim once the order is sorted out.
type Reconciler struct {
	store  ReconcileStore
	logger *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store ReconcileStore) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: util.ComponentLogger("reconciler"),
	}
}

// HandleApprovalFailed audits the movements recorded for a partially applied approval
func (r *Reconciler) HandleApprovalFailed(ctx context.Context, event *models.ApprovalFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleApprovalFailed")
	defer span.End()

	processed, err := r.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return util.RecordError(span, err)
	}
	if processed {
		r.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	movements, err := r.store.GetMovementsByReference(ctx, event.OrderNumber)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("failed to load movements for %s: %w", event.OrderNumber, err))
	}

	missing := unrecordedItems(event.AppliedItems, movements)
	util.ApprovalsNeedingReconciliation.Inc()

	r.logger.Warn("Approval requires reconciliation",
		zap.Int64("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("stage", event.Stage),
		zap.String("reason", event.Reason),
		zap.Int("applied_items", len(event.AppliedItems)),
		zap.Int("recorded_movements", len(movements)),
		zap.Int("unrecorded_items", len(missing)))

	for _, item := range missing {
		r.logger.Error("Applied item has no matching stock movement",
			zap.String("order_number", event.OrderNumber),
			zap.Int64("product_id", item.ProductID),
			zap.Int("quantity", item.Quantity))
	}

	if err := r.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		r.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// HandleStockLow records the level of a product that needs reordering
func (r *Reconciler) HandleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	util.ProductStockLevel.WithLabelValues(strconv.FormatInt(event.ProductID, 10)).Set(float64(event.Stock))

	r.logger.Warn("Product at or below reorder level",
		zap.Int64("product_id", event.ProductID),
		zap.String("product_name", event.ProductName),
		zap.Int("stock", event.Stock),
		zap.Int("reorder_level", event.ReorderLevel),
		zap.String("reference", event.Reference))
	return nil
}

// unrecordedItems returns applied items with no out movement of the same
// product and quantity. Each movement matches at most one item.
func unrecordedItems(items []models.OrderItemData, movements []models.StockMovement) []models.OrderItemData {
	used := make([]bool, len(movements))
	var missing []models.OrderItemData
	for _, item := range items {
		found := false
		for i, m := range movements {
			if used[i] || m.Type != models.MovementOut {
				continue
			}
			if m.ProductID == item.ProductID && m.Quantity == item.Quantity {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, item)
		}
	}
	return missing
}
