package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"
	"erp-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ApprovalConfig names the accounts an approval posts against.
type ApprovalConfig struct {
	ReceivableCode string
	RevenueCode    string
	// Timeout bounds an approval once it starts. Zero means no bound.
	Timeout time.Duration
}

// failureCleanupTimeout bounds the claim release and event publish of a failed approval.
const failureCleanupTimeout = 5 * time.Second

// OrderApprovalWorkflow approves and rejects pending orders.
//
// Approve claims the order, dispatches stock line by line, posts the
// receivable/revenue pair and finally marks the order approved. The steps are
// not wrapped in one transaction: a failure after some lines were dispatched
// leaves those deductions in place, keeps the claim, and returns an
// *apperrors.ApprovalError listing what must be reconciled.
type OrderApprovalWorkflow struct {
	orders  OrderStore
	stock   *StockLedger
	journal *JournalPoster
	events  EventPublisher
	cfg     ApprovalConfig
	now     func() time.Time
	logger  *zap.Logger
}

// NewOrderApprovalWorkflow creates a new approval workflow
func NewOrderApprovalWorkflow(
	orders OrderStore,
	stock *StockLedger,
	journal *JournalPoster,
	events EventPublisher,
	cfg ApprovalConfig,
) *OrderApprovalWorkflow {
	return &OrderApprovalWorkflow{
		orders:  orders,
		stock:   stock,
		journal: journal,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		logger:  util.ComponentLogger("approval"),
	}
}

// Approve runs the approval of a pending order on behalf of actor.
// Once started it is not abandoned when the caller goes away.
func (w *OrderApprovalWorkflow) Approve(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	ctx = context.WithoutCancel(ctx)
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	ctx, span := util.StartSpan(ctx, "OrderApprovalWorkflow.Approve", attribute.Int64("order_id", orderID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ApprovalLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := w.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if err := requirePendingUnclaimed(order); err != nil {
		return nil, util.RecordError(span, err)
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("order %s has no lines: %w", order.Number, apperrors.ErrValidation)
	}

	now := w.now()
	claimed, err := w.orders.ClaimApproval(ctx, orderID, actor, now)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to claim order %s: %w", order.Number, err))
	}
	if !claimed {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s is being handled by another request: %w", order.Number, apperrors.ErrConflict))
	}

	// Accounts are resolved before any stock moves.
	var entries []models.JournalEntry
	if order.Total.IsPositive() {
		entries, err = w.journal.NewPair(ctx, order.Number, "Sales order "+order.Number,
			w.cfg.ReceivableCode, w.cfg.RevenueCode, order.Total, actor, now)
		if err != nil {
			return nil, util.RecordError(span, w.fail(ctx, order, apperrors.StageJournal, nil, err))
		}
	}

	applied := make([]apperrors.AppliedLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		movement := &models.StockMovement{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Reference:   order.Number,
			CreatedBy:   actor,
			CreatedAt:   now,
		}
		if _, err := w.stock.Dispatch(ctx, movement); err != nil {
			return nil, util.RecordError(span, w.fail(ctx, order, apperrors.StageStock, applied, lineError(line, err)))
		}
		applied = append(applied, apperrors.AppliedLine{
			Position:   line.Position,
			ProductID:  line.ProductID,
			Product:    line.ProductName,
			Quantity:   line.Quantity,
			MovementID: movement.ID,
		})
	}

	if len(entries) > 0 {
		if err := w.journal.PostSet(ctx, entries); err != nil {
			return nil, util.RecordError(span, w.fail(ctx, order, apperrors.StageJournal, applied, err))
		}
	} else {
		w.logger.Info("Zero-total order, no journal posted", zap.String("order_number", order.Number))
	}

	ok, err := w.orders.CompleteApproval(ctx, orderID, actor, now)
	if err == nil && !ok {
		err = fmt.Errorf("order %s left pending_approval during approval: %w", order.Number, apperrors.ErrConflict)
	}
	if err != nil {
		return nil, util.RecordError(span, w.fail(ctx, order, apperrors.StageStatus, applied, err))
	}

	order.Status = models.OrderStatusApproved
	order.ApprovedBy = &actor
	order.ApprovalClaimedBy = nil
	order.ApprovalClaimedAt = nil
	order.UpdatedAt = now

	util.OrdersApprovedTotal.Inc()
	w.logger.Info("Order approved",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("approved_by", actor),
		zap.String("total", order.Total.StringFixed(2)))

	event := &models.OrderApprovedEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		ApprovedBy:  actor,
		Total:       order.Total,
		Items:       itemData(order.Lines),
	}
	if err := w.events.PublishOrderApproved(ctx, event); err != nil {
		w.logger.Error("Failed to publish OrderApproved event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	return order, nil
}

// fail ends an approval. With nothing applied the claim is released and the
// cause is returned as is. Otherwise the claim stays in place so retries get
// a conflict instead of deducting again, and an ApprovalError is returned.
func (w *OrderApprovalWorkflow) fail(
	ctx context.Context,
	order *models.Order,
	stage string,
	applied []apperrors.AppliedLine,
	cause error,
) error {
	util.ApprovalsFailedTotal.WithLabelValues(failureReason(cause)).Inc()

	// The approval deadline may already have passed; releasing the claim and
	// reporting the failure must still happen.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureCleanupTimeout)
	defer cancel()

	if len(applied) == 0 {
		if _, err := w.orders.ReleaseApprovalClaim(ctx, order.ID); err != nil {
			w.logger.Error("Failed to release approval claim",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
		w.logger.Warn("Order approval refused",
			zap.Int64("order_id", order.ID),
			zap.String("order_number", order.Number),
			zap.String("stage", stage),
			zap.Error(cause))
		return cause
	}

	appErr := &apperrors.ApprovalError{
		OrderID:      order.ID,
		OrderNumber:  order.Number,
		Stage:        stage,
		AppliedLines: applied,
		Err:          cause,
	}
	w.logger.Error("Order approval partially applied, reconciliation required",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("stage", stage),
		zap.Int("applied_lines", len(applied)),
		zap.Error(cause))

	event := &models.ApprovalFailedEvent{
		OrderID:      order.ID,
		OrderNumber:  order.Number,
		Stage:        stage,
		Reason:       cause.Error(),
		AppliedItems: appliedItemData(order.Lines, applied),
	}
	if err := w.events.PublishApprovalFailed(ctx, event); err != nil {
		w.logger.Error("Failed to publish ApprovalFailed event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
	return appErr
}

// Reject cancels a pending order. It has no stock or ledger effects.
func (w *OrderApprovalWorkflow) Reject(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderApprovalWorkflow.Reject", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := w.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if err := requirePendingUnclaimed(order); err != nil {
		return nil, util.RecordError(span, err)
	}

	ok, err := w.orders.TransitionOrderStatus(ctx, orderID, models.OrderStatusPendingApproval, models.OrderStatusCancelled)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to reject order %s: %w", order.Number, err))
	}
	if !ok {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s changed while rejecting: %w", order.Number, apperrors.ErrConflict))
	}

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = w.now()

	util.OrdersRejectedTotal.Inc()
	w.logger.Info("Order rejected",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("rejected_by", actor))

	event := &models.OrderRejectedEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		RejectedBy:  actor,
	}
	if err := w.events.PublishOrderRejected(ctx, event); err != nil {
		w.logger.Error("Failed to publish OrderRejected event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	return order, nil
}

// ReleaseClaim clears the approval claim left by a partially applied
// approval, after an operator has reconciled it.
func (w *OrderApprovalWorkflow) ReleaseClaim(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderApprovalWorkflow.ReleaseClaim", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := w.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if order.Status != models.OrderStatusPendingApproval || !order.IsClaimed() {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s has no approval claim to release: %w", order.Number, apperrors.ErrInvalidState))
	}

	ok, err := w.orders.ReleaseApprovalClaim(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to release claim on %s: %w", order.Number, err))
	}
	if !ok {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s changed while releasing claim: %w", order.Number, apperrors.ErrConflict))
	}

	w.logger.Warn("Approval claim released",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.Stringp("claimed_by", order.ApprovalClaimedBy),
		zap.String("released_by", actor))

	order.ApprovalClaimedBy = nil
	order.ApprovalClaimedAt = nil
	order.UpdatedAt = w.now()
	return order, nil
}

func requirePendingUnclaimed(order *models.Order) error {
	if order.Status != models.OrderStatusPendingApproval {
		return fmt.Errorf("order %s is %s, expected %s: %w",
			order.Number, order.Status, models.OrderStatusPendingApproval, apperrors.ErrInvalidState)
	}
	if order.IsClaimed() {
		return fmt.Errorf("order %s is being approved by another request: %w", order.Number, apperrors.ErrConflict)
	}
	return nil
}

// lineError names the line's product when the product itself is missing.
func lineError(line models.OrderLine, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("line %d product %q (id %d): %w", line.Position, line.ProductName, line.ProductID, err)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, apperrors.ErrUnbalancedEntry):
		return "unbalanced"
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func itemData(lines []models.OrderLine) []models.OrderItemData {
	items := make([]models.OrderItemData, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return items
}

func appliedItemData(lines []models.OrderLine, applied []apperrors.AppliedLine) []models.OrderItemData {
	byPosition := make(map[int]models.OrderLine, len(lines))
	for _, l := range lines {
		byPosition[l.Position] = l
	}
	items := make([]models.OrderItemData, 0, len(applied))
	for _, a := range applied {
		items = append(items, models.OrderItemData{
			ProductID: a.ProductID,
			Quantity:  a.Quantity,
			UnitPrice: byPosition[a.Position].UnitPrice,
		})
	}
	return items
}
