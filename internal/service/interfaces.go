package service

import (
	"context"
	"time"

	"erp-service/internal/models"

	"github.com/shopspring/decimal"
)

// ProductStore holds product stock. Deductions must be single conditional
// updates so stock can never go negative.
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	DeductStock(ctx context.Context, productID int64, quantity int) (int, error)
	CreditStock(ctx context.Context, productID int64, quantity int) (int, error)
	ApplyMovement(ctx context.Context, m *models.StockMovement) (int, error)
	InsertMovement(ctx context.Context, m *models.StockMovement) error
}

// OrderStore persists orders. Every status write is conditional on the
// current status and reports whether it matched.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ClaimApproval(ctx context.Context, orderID int64, actor string, at time.Time) (bool, error)
	ReleaseApprovalClaim(ctx context.Context, orderID int64) (bool, error)
	CompleteApproval(ctx context.Context, orderID int64, actor string, at time.Time) (bool, error)
	TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
}

// LedgerStore resolves accounts and writes journal sets atomically.
type LedgerStore interface {
	GetAccountByCode(ctx context.Context, code string) (*models.Account, error)
	PostJournalEntries(ctx context.Context, entries []models.JournalEntry) error
}

// InvoiceStore persists invoices. ApplyPayment returns nil when its guard
// (not yet paid, within total) does not match.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error)
	ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (*models.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id int64, status string) (bool, error)
}

// Counter is an atomic per-series counter.
type Counter interface {
	IncrementSequence(ctx context.Context, series string) (int64, error)
	SyncSequence(ctx context.Context, series string, floor int64) error
}

// IdempotencyStore remembers request results and serializes retries of the same request.
type IdempotencyStore interface {
	GetIdempotentResult(ctx context.Context, key string) (string, bool, error)
	SetIdempotentResult(ctx context.Context, key, value string, ttl time.Duration) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher publishes domain events. Failures are logged by callers and
// never fail the operation that produced the event.
type EventPublisher interface {
	PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error
	PublishOrderRejected(ctx context.Context, event *models.OrderRejectedEvent) error
	PublishApprovalFailed(ctx context.Context, event *models.ApprovalFailedEvent) error
	PublishInvoiceIssued(ctx context.Context, event *models.InvoiceIssuedEvent) error
	PublishInvoicePaid(ctx context.Context, event *models.InvoicePaidEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
}
