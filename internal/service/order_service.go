package service

import (
	"context"
	"fmt"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"
	"erp-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService handles order entry and the non-approval status moves
type OrderService struct {
	orders   OrderStore
	products ProductStore
	seq      *SequenceGenerator
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderStore, products ProductStore, seq *SequenceGenerator) *OrderService {
	return &OrderService{
		orders:   orders,
		products: products,
		seq:      seq,
		logger:   util.ComponentLogger("orders"),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerID   string             `json:"customer_id" binding:"required"`
	CustomerName string             `json:"customer_name" binding:"required"`
	Items        []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	// Submit places the order straight into pending_approval.
	Submit bool `json:"submit"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID         int64            `json:"product_id" binding:"required"`
	VariantID         *string          `json:"variant_id,omitempty"`
	PriceTierName     *string          `json:"price_tier_name,omitempty"`
	Quantity          int              `json:"quantity" binding:"required,min=1"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	CommissionPercent *decimal.Decimal `json:"commission_percent,omitempty"`
}

// Create validates the items, prices them and stores a new order.
func (s *OrderService) Create(ctx context.Context, req *CreateOrderRequest, actor string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order needs at least one item: %w", apperrors.ErrValidation)
	}

	order := &models.Order{
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Status:       models.OrderStatusDraft,
		CreatedBy:    actor,
		Lines:        make([]models.OrderLine, 0, len(req.Items)),
	}
	if req.Submit {
		order.Status = models.OrderStatusPendingApproval
	}

	for i := range req.Items {
		line, err := s.buildLine(ctx, &req.Items[i])
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("item %d: %w", i+1, err))
		}
		order.Lines = append(order.Lines, line)
	}
	order.Recalculate()

	number, err := s.seq.Next(ctx, SeriesOrder, PrefixOrder)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	order.Number = number

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, util.RecordError(span, err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("status", order.Status),
		zap.String("total", order.Total.StringFixed(2)))

	return order, nil
}

func (s *OrderService) buildLine(ctx context.Context, item *OrderItemRequest) (models.OrderLine, error) {
	if item.Quantity <= 0 {
		return models.OrderLine{}, fmt.Errorf("quantity must be positive: %w", apperrors.ErrValidation)
	}
	if item.Price != nil && item.Price.IsNegative() {
		return models.OrderLine{}, fmt.Errorf("price must not be negative: %w", apperrors.ErrValidation)
	}
	if pct := item.CommissionPercent; pct != nil && (pct.IsNegative() || pct.GreaterThan(hundredPercent)) {
		return models.OrderLine{}, fmt.Errorf("commission percent must be within 0-100: %w", apperrors.ErrValidation)
	}

	product, err := s.products.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return models.OrderLine{}, err
	}

	line := models.OrderLine{
		ProductID:         product.ID,
		ProductName:       product.Name,
		Quantity:          item.Quantity,
		UnitPrice:         product.Price,
		CommissionPercent: item.CommissionPercent,
	}

	var tiers []models.PriceTier
	if item.VariantID != nil {
		variant := findVariant(product.Variants, *item.VariantID)
		if variant == nil {
			return models.OrderLine{}, fmt.Errorf("variant %s of %s: %w", *item.VariantID, product.Name, apperrors.ErrNotFound)
		}
		line.VariantID = &variant.VariantID
		line.VariantName = &variant.Name
		tiers = variant.PriceTiers
	}

	if item.PriceTierName != nil {
		tier := findTier(tiers, *item.PriceTierName)
		if tier == nil {
			return models.OrderLine{}, fmt.Errorf("price tier %q: %w", *item.PriceTierName, apperrors.ErrValidation)
		}
		line.PriceTier = &tier.Name
		line.UnitPrice = tier.Price
	}

	// An explicit price wins over catalog and tier prices.
	if item.Price != nil {
		line.UnitPrice = *item.Price
	}
	return line, nil
}

var hundredPercent = decimal.NewFromInt(100)

func findVariant(variants models.ProductVariants, id string) *models.ProductVariant {
	for i := range variants {
		if variants[i].VariantID == id {
			return &variants[i]
		}
	}
	return nil
}

func findTier(tiers []models.PriceTier, name string) *models.PriceTier {
	for i := range tiers {
		if tiers[i].Name == name {
			return &tiers[i]
		}
	}
	return nil
}

// Get returns an order with its lines
func (s *OrderService) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Get", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return order, nil
}

// Submit sends a draft order for approval
func (s *OrderService) Submit(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	return s.transition(ctx, "OrderService.Submit", orderID, actor,
		models.OrderStatusDraft, models.OrderStatusPendingApproval)
}

// Complete closes an invoiced order
func (s *OrderService) Complete(ctx context.Context, orderID int64, actor string) (*models.Order, error) {
	return s.transition(ctx, "OrderService.Complete", orderID, actor,
		models.OrderStatusInvoiced, models.OrderStatusCompleted)
}

func (s *OrderService) transition(ctx context.Context, op string, orderID int64, actor, from, to string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, op, attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if order.Status != from || !models.CanTransition(from, to) {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s is %s, expected %s: %w", order.Number, order.Status, from, apperrors.ErrInvalidState))
	}

	ok, err := s.orders.TransitionOrderStatus(ctx, orderID, from, to)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to update order %s: %w", order.Number, err))
	}
	if !ok {
		return nil, util.RecordError(span,
			fmt.Errorf("order %s changed concurrently: %w", order.Number, apperrors.ErrConflict))
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("actor", actor))

	return s.orders.GetOrderByID(ctx, orderID)
}
