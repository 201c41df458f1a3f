package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderApproved  = "ORDER_APPROVED"
	EventTypeOrderRejected  = "ORDER_REJECTED"
	EventTypeApprovalFailed = "APPROVAL_FAILED"
	EventTypeInvoiceIssued  = "INVOICE_ISSUED"
	EventTypeInvoicePaid    = "INVOICE_PAID"
	EventTypeStockLow       = "STOCK_LOW"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderApprovedEvent published once stock, journal and status are all committed
type OrderApprovedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	ApprovedBy  string          `json:"approved_by"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItemData `json:"items"`
}

// OrderRejectedEvent published when a pending order is cancelled
type OrderRejectedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	RejectedBy  string `json:"rejected_by"`
}

// ApprovalFailedEvent published when an approval fails after committing stock
// deductions; consumers must reconcile the applied items
type ApprovalFailedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	Stage        string          `json:"stage"`
	Reason       string          `json:"reason"`
	AppliedItems []OrderItemData `json:"applied_items"`
}

// InvoiceIssuedEvent published when an invoice is created from an order
type InvoiceIssuedEvent struct {
	BaseEvent
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	OrderID       int64           `json:"order_id"`
	Total         decimal.Decimal `json:"total"`
}

// InvoicePaidEvent published when an invoice is settled in full
type InvoicePaidEvent struct {
	BaseEvent
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
}

// StockLowEvent published when a deduction leaves stock at or below the reorder level
type StockLowEvent struct {
	BaseEvent
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorder_level"`
	Reference    string `json:"reference"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
