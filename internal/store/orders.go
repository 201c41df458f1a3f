package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, number, customer_id, customer_name, status, total, total_commission,
	approved_by, approval_claimed_by, approval_claimed_at, created_by, created_at, updated_at`

const lineColumns = `id, order_id, position, product_id, product_name, variant_id, variant_name,
	price_tier, quantity, unit_price, commission_percent, commission_value`

// CreateOrder inserts an order and its lines in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, order,
			`INSERT INTO orders (number, customer_id, customer_name, status, total, total_commission, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at, updated_at`,
			order.Number, order.CustomerID, order.CustomerName, order.Status,
			order.Total, order.TotalCommission, order.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			line.OrderID = order.ID
			err := tx.GetContext(ctx, &line.ID,
				`INSERT INTO order_lines (order_id, position, product_id, product_name, variant_id, variant_name,
				 price_tier, quantity, unit_price, commission_percent, commission_value)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 RETURNING id`,
				line.OrderID, line.Position, line.ProductID, line.ProductName, line.VariantID, line.VariantName,
				line.PriceTier, line.Quantity, line.UnitPrice, line.CommissionPercent, line.CommissionValue)
			if err != nil {
				return fmt.Errorf("failed to create order line %d: %w", line.Position, err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order with its lines in position order
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &order.Lines,
		"SELECT "+lineColumns+" FROM order_lines WHERE order_id = $1 ORDER BY position", id); err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	return &order, nil
}

// ClaimApproval marks a pending order as being approved by actor. Only one
// caller can hold the claim; it returns false if the order is not pending or
// is already claimed.
func (s *Store) ClaimApproval(ctx context.Context, orderID int64, actor string, at time.Time) (bool, error) {
	return s.execAffected(ctx,
		`UPDATE orders SET approval_claimed_by = $2, approval_claimed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = 'pending_approval' AND approval_claimed_at IS NULL`,
		orderID, actor, at)
}

// ReleaseApprovalClaim clears an approval claim on a still-pending order
func (s *Store) ReleaseApprovalClaim(ctx context.Context, orderID int64) (bool, error) {
	return s.execAffected(ctx,
		`UPDATE orders SET approval_claimed_by = NULL, approval_claimed_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending_approval' AND approval_claimed_at IS NOT NULL`,
		orderID)
}

// CompleteApproval moves a claimed pending order to approved
func (s *Store) CompleteApproval(ctx context.Context, orderID int64, actor string, at time.Time) (bool, error) {
	return s.execAffected(ctx,
		`UPDATE orders SET status = 'approved', approved_by = $2,
		 approval_claimed_by = NULL, approval_claimed_at = NULL, updated_at = $3
		 WHERE id = $1 AND status = 'pending_approval' AND approval_claimed_by = $2`,
		orderID, actor, at)
}

// TransitionOrderStatus moves an unclaimed order from one status to another.
// It returns false if the order was not in the expected status.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	return s.execAffected(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2 AND approval_claimed_at IS NULL`,
		orderID, from, to)
}

// MaxOrderNumber returns the highest numeric suffix among existing order numbers
func (s *Store) MaxOrderNumber(ctx context.Context, prefix string) (int64, error) {
	return s.maxNumber(ctx, "orders", prefix)
}

func (s *Store) maxNumber(ctx context.Context, table, prefix string) (int64, error) {
	var max int64
	err := s.db.GetContext(ctx, &max,
		`SELECT COALESCE(MAX(CAST(substring(number FROM '[0-9]+$') AS BIGINT)), 0)
		 FROM `+table+` WHERE number LIKE $1`, prefix+"-%")
	if err != nil {
		return 0, fmt.Errorf("failed to read %s high-water mark: %w", table, err)
	}
	return max, nil
}

func (s *Store) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
