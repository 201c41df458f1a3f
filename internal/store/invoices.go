package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"

	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, number, order_id, customer_id, customer_name, date, due_date, status,
	total, paid, balance, created_by, created_at, updated_at`

// CreateInvoice inserts a new invoice
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	err := s.db.GetContext(ctx, inv,
		`INSERT INTO invoices (number, order_id, customer_id, customer_name, date, due_date, status, total, paid, balance, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		inv.Number, inv.OrderID, inv.CustomerID, inv.CustomerName, inv.Date, inv.DueDate,
		inv.Status, inv.Total, inv.Paid, inv.Balance, inv.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetInvoiceByID retrieves an invoice by ID
func (s *Store) GetInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.GetContext(ctx, &inv, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ApplyPayment adds amount to an unpaid invoice, recomputes its balance and
// flips it to paid once fully settled. The guard rejects payments that would
// exceed the total. It returns nil when the guard did not match.
func (s *Store) ApplyPayment(ctx context.Context, id int64, amount decimal.Decimal) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.GetContext(ctx, &inv,
		`UPDATE invoices SET
		   paid = paid + $2,
		   balance = total - (paid + $2),
		   status = CASE WHEN paid + $2 >= total THEN 'paid' ELSE status END,
		   updated_at = NOW()
		 WHERE id = $1 AND status <> 'paid' AND paid + $2 <= total
		 RETURNING `+invoiceColumns, id, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment: %w", err)
	}
	return &inv, nil
}

// SetInvoiceStatus changes the status of an invoice that is not yet paid
func (s *Store) SetInvoiceStatus(ctx context.Context, id int64, status string) (bool, error) {
	return s.execAffected(ctx,
		`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> 'paid'`,
		id, status)
}

// MaxInvoiceNumber returns the highest numeric suffix among existing invoice numbers
func (s *Store) MaxInvoiceNumber(ctx context.Context, prefix string) (int64, error) {
	return s.maxNumber(ctx, "invoices", prefix)
}
