package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"
	"erp-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InvoiceConfig holds the accounts and defaults used when invoicing.
type InvoiceConfig struct {
	CashCode       string
	ReceivableCode string
	DueDays        int
	IdempotencyTTL time.Duration
}

const idempotencyLockTTL = 30 * time.Second

// InvoiceIssuance turns orders into invoices and records payments against them
type InvoiceIssuance struct {
	invoices InvoiceStore
	orders   OrderStore
	seq      *SequenceGenerator
	journal  *JournalPoster
	idem     IdempotencyStore
	events   EventPublisher
	cfg      InvoiceConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewInvoiceIssuance creates a new invoice service. idem may be nil, in
// which case idempotency keys are ignored.
func NewInvoiceIssuance(
	invoices InvoiceStore,
	orders OrderStore,
	seq *SequenceGenerator,
	journal *JournalPoster,
	idem IdempotencyStore,
	events EventPublisher,
	cfg InvoiceConfig,
) *InvoiceIssuance {
	return &InvoiceIssuance{
		invoices: invoices,
		orders:   orders,
		seq:      seq,
		journal:  journal,
		idem:     idem,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		logger:   util.ComponentLogger("invoice"),
	}
}

// IssueInvoiceRequest represents a request to invoice an order
type IssueInvoiceRequest struct {
	OrderID        int64      `json:"order_id" binding:"required"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	IdempotencyKey string     `json:"-"`
}

// Issue creates an invoice for the full total of an order. An approved order
// moves to invoiced; an order in any other status is left as it is.
func (s *InvoiceIssuance) Issue(ctx context.Context, req *IssueInvoiceRequest, actor string) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceIssuance.Issue", attribute.Int64("order_id", req.OrderID))
	defer span.End()

	if req.IdempotencyKey != "" && s.idem != nil {
		if inv, err := s.previousResult(ctx, req.IdempotencyKey); inv != nil || err != nil {
			return inv, util.RecordError(span, err)
		}

		lockKey := "invoice:" + req.IdempotencyKey
		token, err := s.idem.AcquireLock(ctx, lockKey, idempotencyLockTTL)
		if err != nil {
			return nil, util.RecordError(span, fmt.Errorf("failed to lock idempotency key: %w", err))
		}
		if token == "" {
			return nil, util.RecordError(span,
				fmt.Errorf("request %s is already in progress: %w", req.IdempotencyKey, apperrors.ErrConflict))
		}
		defer func() {
			if err := s.idem.ReleaseLock(ctx, lockKey, token); err != nil {
				s.logger.Warn("Failed to release idempotency lock", zap.String("key", req.IdempotencyKey), zap.Error(err))
			}
		}()

		// The lock holder before us may have finished.
		if inv, err := s.previousResult(ctx, req.IdempotencyKey); inv != nil || err != nil {
			return inv, util.RecordError(span, err)
		}
	}

	order, err := s.orders.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	number, err := s.seq.Next(ctx, SeriesInvoice, PrefixInvoice)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	now := s.now()
	due := now.AddDate(0, 0, s.cfg.DueDays)
	if req.DueDate != nil {
		due = *req.DueDate
	}

	inv := &models.Invoice{
		Number:       number,
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		Date:         now,
		DueDate:      due,
		Status:       models.InvoiceStatusDraft,
		Total:        order.Total,
		Paid:         decimal.Zero,
		Balance:      order.Total,
		CreatedBy:    actor,
	}
	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, util.RecordError(span, err)
	}

	s.advanceOrder(ctx, order, inv.Number)

	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.SetIdempotentResult(ctx, req.IdempotencyKey,
			strconv.FormatInt(inv.ID, 10), s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency result", zap.String("key", req.IdempotencyKey), zap.Error(err))
		}
	}

	util.InvoicesIssuedTotal.Inc()
	s.logger.Info("Invoice issued",
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.Number),
		zap.String("order_number", order.Number),
		zap.String("total", inv.Total.StringFixed(2)))

	event := &models.InvoiceIssuedEvent{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		OrderID:       order.ID,
		Total:         inv.Total,
	}
	if err := s.events.PublishInvoiceIssued(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoiceIssued event",
			zap.Int64("invoice_id", inv.ID),
			zap.Error(err))
	}

	return inv, nil
}

func (s *InvoiceIssuance) previousResult(ctx context.Context, key string) (*models.Invoice, error) {
	val, found, err := s.idem.GetIdempotentResult(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !found {
		return nil, nil
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt idempotency result %q: %w", val, err)
	}
	s.logger.Info("Duplicate invoice request detected",
		zap.String("idempotency_key", key),
		zap.Int64("invoice_id", id))
	return s.invoices.GetInvoiceByID(ctx, id)
}

func (s *InvoiceIssuance) advanceOrder(ctx context.Context, order *models.Order, invoiceNumber string) {
	if order.Status != models.OrderStatusApproved {
		s.logger.Info("Invoiced order not advanced",
			zap.String("order_number", order.Number),
			zap.String("status", order.Status),
			zap.String("invoice_number", invoiceNumber))
		return
	}

	ok, err := s.orders.TransitionOrderStatus(ctx, order.ID, models.OrderStatusApproved, models.OrderStatusInvoiced)
	if err != nil {
		s.logger.Error("Failed to mark order invoiced",
			zap.String("order_number", order.Number),
			zap.Error(err))
		return
	}
	if !ok {
		s.logger.Warn("Order changed before it could be marked invoiced",
			zap.String("order_number", order.Number))
		return
	}
	order.Status = models.OrderStatusInvoiced
}

// RecordPayment adds amount to what has been paid on an invoice. Payments
// that would take paid above the total are rejected. The caller whose payment
// settles the invoice posts the cash/receivable pair, so it is posted once.
func (s *InvoiceIssuance) RecordPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal, actor string) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceIssuance.RecordPayment", attribute.Int64("invoice_id", invoiceID))
	defer span.End()

	if amount.IsNegative() {
		util.PaymentsRejectedTotal.WithLabelValues("negative").Inc()
		return nil, util.RecordError(span,
			fmt.Errorf("payment amount %s is negative: %w", amount.String(), apperrors.ErrInvalidAmount))
	}

	inv, err := s.invoices.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if err := checkPayable(inv, amount); err != nil {
		return nil, util.RecordError(span, err)
	}

	updated, err := s.invoices.ApplyPayment(ctx, invoiceID, amount)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if updated == nil {
		// Another payment landed between our read and write.
		current, err := s.invoices.GetInvoiceByID(ctx, invoiceID)
		if err != nil {
			return nil, util.RecordError(span, err)
		}
		if err := checkPayable(current, amount); err != nil {
			return nil, util.RecordError(span, err)
		}
		return nil, util.RecordError(span,
			fmt.Errorf("invoice %s changed concurrently: %w", inv.Number, apperrors.ErrConflict))
	}

	s.logger.Info("Payment recorded",
		zap.String("invoice_number", updated.Number),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", updated.Balance.StringFixed(2)),
		zap.String("actor", actor))

	if updated.Status != models.InvoiceStatusPaid {
		return updated, nil
	}

	if updated.Total.IsPositive() {
		entries, err := s.journal.NewPair(ctx, updated.Number, "Payment of invoice "+updated.Number,
			s.cfg.CashCode, s.cfg.ReceivableCode, updated.Total, actor, s.now())
		if err == nil {
			err = s.journal.PostSet(ctx, entries)
		}
		if err != nil {
			s.logger.Error("Invoice marked paid but payment journal not posted",
				zap.String("invoice_number", updated.Number),
				zap.Error(err))
			return nil, util.RecordError(span, &apperrors.PostingError{Reference: updated.Number, Err: err})
		}
	}

	util.InvoicesPaidTotal.Inc()
	event := &models.InvoicePaidEvent{
		InvoiceID:     updated.ID,
		InvoiceNumber: updated.Number,
		Total:         updated.Total,
	}
	if err := s.events.PublishInvoicePaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoicePaid event",
			zap.Int64("invoice_id", updated.ID),
			zap.Error(err))
	}

	return updated, nil
}

func checkPayable(inv *models.Invoice, amount decimal.Decimal) error {
	if inv.Status == models.InvoiceStatusPaid {
		util.PaymentsRejectedTotal.WithLabelValues("already_paid").Inc()
		return fmt.Errorf("invoice %s is already paid: %w", inv.Number, apperrors.ErrInvalidState)
	}
	if inv.Paid.Add(amount).GreaterThan(inv.Total) {
		util.PaymentsRejectedTotal.WithLabelValues("overpayment").Inc()
		return fmt.Errorf("payment %s exceeds balance %s of invoice %s: %w",
			amount.StringFixed(2), inv.Balance.StringFixed(2), inv.Number, apperrors.ErrInvalidAmount)
	}
	return nil
}

// UpdateStatus changes an unpaid invoice's status. Setting paid settles the
// remaining balance through RecordPayment.
func (s *InvoiceIssuance) UpdateStatus(ctx context.Context, invoiceID int64, status, actor string) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceIssuance.UpdateStatus", attribute.Int64("invoice_id", invoiceID))
	defer span.End()

	if !models.ValidInvoiceStatus(status) {
		return nil, util.RecordError(span, fmt.Errorf("unknown invoice status %q: %w", status, apperrors.ErrValidation))
	}

	inv, err := s.invoices.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if inv.Status == models.InvoiceStatusPaid {
		return nil, util.RecordError(span,
			fmt.Errorf("invoice %s is already paid: %w", inv.Number, apperrors.ErrInvalidState))
	}

	if status == models.InvoiceStatusPaid {
		return s.RecordPayment(ctx, invoiceID, inv.Balance, actor)
	}

	ok, err := s.invoices.SetInvoiceStatus(ctx, invoiceID, status)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to update invoice %s: %w", inv.Number, err))
	}
	if !ok {
		return nil, util.RecordError(span,
			fmt.Errorf("invoice %s was paid concurrently: %w", inv.Number, apperrors.ErrInvalidState))
	}

	s.logger.Info("Invoice status updated",
		zap.String("invoice_number", inv.Number),
		zap.String("from", inv.Status),
		zap.String("to", status),
		zap.String("actor", actor))

	return s.invoices.GetInvoiceByID(ctx, invoiceID)
}

// Get returns an invoice
func (s *InvoiceIssuance) Get(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "InvoiceIssuance.Get", attribute.Int64("invoice_id", invoiceID))
	defer span.End()

	inv, err := s.invoices.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return inv, nil
}
