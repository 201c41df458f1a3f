package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"
	"erp-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockLedger is the only writer of product stock.
type StockLedger struct {
	products ProductStore
	events   EventPublisher
	logger   *zap.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger(products ProductStore, events EventPublisher) *StockLedger {
	return &StockLedger{
		products: products,
		events:   events,
		logger:   util.ComponentLogger("stock"),
	}
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d: %w", qty, apperrors.ErrValidation)
	}
	return nil
}

// CheckAndDeduct removes qty from a product's stock if enough is available and
// returns the new level.
func (l *StockLedger) CheckAndDeduct(ctx context.Context, productID int64, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.CheckAndDeduct", attribute.Int64("product_id", productID))
	defer span.End()

	if err := validateQuantity(qty); err != nil {
		return 0, err
	}

	stock, err := l.products.DeductStock(ctx, productID, qty)
	if err != nil {
		l.observeRejection(err)
		return 0, util.RecordError(span, err)
	}

	util.StockUnitsMovedTotal.WithLabelValues(models.MovementOut).Add(float64(qty))
	return stock, nil
}

// Credit adds qty to a product's stock and returns the new level.
func (l *StockLedger) Credit(ctx context.Context, productID int64, qty int) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Credit", attribute.Int64("product_id", productID))
	defer span.End()

	if err := validateQuantity(qty); err != nil {
		return 0, err
	}

	stock, err := l.products.CreditStock(ctx, productID, qty)
	if err != nil {
		return 0, util.RecordError(span, err)
	}

	util.StockUnitsMovedTotal.WithLabelValues(models.MovementIn).Add(float64(qty))
	return stock, nil
}

// RecordMovement appends a movement record without touching stock.
func (l *StockLedger) RecordMovement(ctx context.Context, m *models.StockMovement) error {
	if err := validateMovement(m); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return l.products.InsertMovement(ctx, m)
}

// Dispatch deducts stock and records the outbound movement in one transaction.
func (l *StockLedger) Dispatch(ctx context.Context, m *models.StockMovement) (int, error) {
	m.Type = models.MovementOut
	return l.Apply(ctx, m)
}

// Receive credits stock and records the inbound movement in one transaction.
func (l *StockLedger) Receive(ctx context.Context, m *models.StockMovement) (int, error) {
	m.Type = models.MovementIn
	return l.Apply(ctx, m)
}

// Apply changes stock in the movement's direction and records the movement.
// Stock never changes without its record.
func (l *StockLedger) Apply(ctx context.Context, m *models.StockMovement) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockLedger.Apply",
		attribute.Int64("product_id", m.ProductID),
		attribute.String("type", m.Type),
		attribute.String("reference", m.Reference))
	defer span.End()

	if err := validateMovement(m); err != nil {
		return 0, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	stock, err := l.products.ApplyMovement(ctx, m)
	if err != nil {
		if m.Type == models.MovementOut {
			l.observeRejection(err)
		}
		return 0, util.RecordError(span, err)
	}

	util.StockUnitsMovedTotal.WithLabelValues(m.Type).Add(float64(m.Quantity))
	l.logger.Debug("Stock movement applied",
		zap.Int64("product_id", m.ProductID),
		zap.String("type", m.Type),
		zap.Int("quantity", m.Quantity),
		zap.Int("stock", stock),
		zap.String("reference", m.Reference))

	if m.Type == models.MovementOut {
		l.checkReorder(ctx, m.ProductID, stock, m.Reference)
	}
	return stock, nil
}

func validateMovement(m *models.StockMovement) error {
	if m.Type != models.MovementIn && m.Type != models.MovementOut {
		return fmt.Errorf("movement type %q: %w", m.Type, apperrors.ErrValidation)
	}
	if m.ProductID == 0 {
		return fmt.Errorf("movement has no product: %w", apperrors.ErrValidation)
	}
	return validateQuantity(m.Quantity)
}

func (l *StockLedger) observeRejection(err error) {
	if errors.Is(err, apperrors.ErrInsufficientStock) {
		util.StockDeductionsRejected.Inc()
	}
}

// checkReorder publishes a low-stock event when a deduction leaves the product
// at or below its reorder level. Failures here never fail the deduction.
func (l *StockLedger) checkReorder(ctx context.Context, productID int64, stock int, reference string) {
	if l.events == nil {
		return
	}

	product, err := l.products.GetProductByID(ctx, productID)
	if err != nil {
		l.logger.Warn("Failed to load product for reorder check",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return
	}
	if stock > product.ReorderLevel {
		return
	}

	util.ProductStockLevel.WithLabelValues(strconv.FormatInt(productID, 10)).Set(float64(stock))
	event := &models.StockLowEvent{
		ProductID:    productID,
		ProductName:  product.Name,
		Stock:        stock,
		ReorderLevel: product.ReorderLevel,
		Reference:    reference,
	}
	if err := l.events.PublishStockLow(ctx, event); err != nil {
		l.logger.Error("Failed to publish StockLow event",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}
