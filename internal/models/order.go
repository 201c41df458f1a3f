package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusDraft           = "draft"
	OrderStatusPendingApproval = "pending_approval"
	OrderStatusApproved        = "approved"
	OrderStatusInvoiced        = "invoiced"
	OrderStatusCompleted       = "completed"
	OrderStatusCancelled       = "cancelled"
)

var orderTransitions = map[string][]string{
	OrderStatusDraft:           {OrderStatusPendingApproval},
	OrderStatusPendingApproval: {OrderStatusApproved, OrderStatusCancelled},
	OrderStatusApproved:        {OrderStatusInvoiced},
	OrderStatusInvoiced:        {OrderStatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return status == OrderStatusCancelled || status == OrderStatusCompleted
}

// Order is the aggregate root for a sales order.
type Order struct {
	ID                int64           `db:"id" json:"id"`
	Number            string          `db:"number" json:"order_number"`
	CustomerID        string          `db:"customer_id" json:"customer_id"`
	CustomerName      string          `db:"customer_name" json:"customer_name"`
	Status            string          `db:"status" json:"status"`
	Total             decimal.Decimal `db:"total" json:"total"`
	TotalCommission   decimal.Decimal `db:"total_commission" json:"total_commission"`
	ApprovedBy        *string         `db:"approved_by" json:"approved_by,omitempty"`
	ApprovalClaimedBy *string         `db:"approval_claimed_by" json:"approval_claimed_by,omitempty"`
	ApprovalClaimedAt *time.Time      `db:"approval_claimed_at" json:"approval_claimed_at,omitempty"`
	CreatedBy         string          `db:"created_by" json:"created_by"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	Lines             []OrderLine     `db:"-" json:"items"`
}

// OrderLine is owned by its order. Position fixes the approval order.
type OrderLine struct {
	ID                int64            `db:"id" json:"id"`
	OrderID           int64            `db:"order_id" json:"-"`
	Position          int              `db:"position" json:"position"`
	ProductID         int64            `db:"product_id" json:"product_id"`
	ProductName       string           `db:"product_name" json:"product_name"`
	VariantID         *string          `db:"variant_id" json:"variant_id,omitempty"`
	VariantName       *string          `db:"variant_name" json:"variant_name,omitempty"`
	PriceTier         *string          `db:"price_tier" json:"price_tier_name,omitempty"`
	Quantity          int              `db:"quantity" json:"quantity"`
	UnitPrice         decimal.Decimal  `db:"unit_price" json:"price"`
	CommissionPercent *decimal.Decimal `db:"commission_percent" json:"commission_percent,omitempty"`
	CommissionValue   *decimal.Decimal `db:"commission_value" json:"commission_value,omitempty"`
}

// Subtotal is quantity times unit price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

var hundred = decimal.NewFromInt(100)

// Recalculate renumbers lines and recomputes commissions and totals.
// It must be called after every line mutation.
func (o *Order) Recalculate() {
	total := decimal.Zero
	commission := decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		line.Position = i + 1
		sub := line.Subtotal()
		total = total.Add(sub)
		if line.CommissionPercent != nil {
			v := sub.Mul(*line.CommissionPercent).Div(hundred).Round(2)
			line.CommissionValue = &v
			commission = commission.Add(v)
		} else {
			line.CommissionValue = nil
		}
	}
	o.Total = total
	o.TotalCommission = commission
}

// IsClaimed reports whether an approval is in flight or awaiting reconciliation.
func (o *Order) IsClaimed() bool {
	return o.ApprovalClaimedAt != nil
}
