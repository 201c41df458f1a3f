package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"erp-service/internal/models"
	"erp-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	base.EventType = eventType
}

// PublishOrderApproved publishes OrderApproved event
func (ep *EventPublisher) PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderApproved)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishOrderRejected publishes OrderRejected event
func (ep *EventPublisher) PublishOrderRejected(ctx context.Context, event *models.OrderRejectedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeOrderRejected)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishApprovalFailed publishes ApprovalFailed event
func (ep *EventPublisher) PublishApprovalFailed(ctx context.Context, event *models.ApprovalFailedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeApprovalFailed)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishInvoiceIssued publishes InvoiceIssued event
func (ep *EventPublisher) PublishInvoiceIssued(ctx context.Context, event *models.InvoiceIssuedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeInvoiceIssued)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("invoice-%d", event.InvoiceID), event)
}

// PublishInvoicePaid publishes InvoicePaid event
func (ep *EventPublisher) PublishInvoicePaid(ctx context.Context, event *models.InvoicePaidEvent) error {
	stamp(&event.BaseEvent, models.EventTypeInvoicePaid)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("invoice-%d", event.InvoiceID), event)
}

// PublishStockLow publishes StockLow event
func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	stamp(&event.BaseEvent, models.EventTypeStockLow)
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("product-%d", event.ProductID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onApprovalFailed func(context.Context, *models.ApprovalFailedEvent) error
	onStockLow       func(context.Context, *models.StockLowEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("events")}
}

// OnApprovalFailed registers a handler for ApprovalFailed events
func (eh *EventHandler) OnApprovalFailed(handler func(context.Context, *models.ApprovalFailedEvent) error) {
	eh.onApprovalFailed = handler
}

// OnStockLow registers a handler for StockLow events
func (eh *EventHandler) OnStockLow(handler func(context.Context, *models.StockLowEvent) error) {
	eh.onStockLow = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeApprovalFailed:
		if eh.onApprovalFailed != nil {
			var event models.ApprovalFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ApprovalFailed event: %w", err)
			}
			return eh.onApprovalFailed(ctx, &event)
		}

	case models.EventTypeStockLow:
		if eh.onStockLow != nil {
			var event models.StockLowEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockLow event: %w", err)
			}
			return eh.onStockLow(ctx, &event)
		}

	default:
		// Events this service publishes for other consumers land here too.
		eh.logger.Debug("Ignoring event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
