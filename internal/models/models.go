package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the single source of truth for stock availability.
type Product struct {
	ID           int64           `db:"id" json:"id"`
	SKU          string          `db:"sku" json:"sku"`
	Name         string          `db:"name" json:"name"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int             `db:"stock" json:"stock"`
	ReorderLevel int             `db:"reorder_level" json:"reorder_level"`
	Variants     ProductVariants `db:"variants" json:"variants"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// NeedsReorder reports whether stock has fallen to the reorder threshold.
func (p *Product) NeedsReorder() bool {
	return p.Stock <= p.ReorderLevel
}

type PriceTier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type ProductVariant struct {
	VariantID  string      `json:"variant_id"`
	Name       string      `json:"name"`
	Stock      int         `json:"stock"`
	PriceTiers []PriceTier `json:"price_tiers,omitempty"`
}

// ProductVariants is stored as a JSONB column.
type ProductVariants []ProductVariant

func (v ProductVariants) Value() (driver.Value, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func (v *ProductVariants) Scan(src interface{}) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		raw = s
	case string:
		raw = []byte(s)
	default:
		return fmt.Errorf("unsupported variants type %T", src)
	}
	return json.Unmarshal(raw, v)
}

// Movement directions
const (
	MovementIn  = "in"
	MovementOut = "out"
)

// DefaultLocation is used when a movement does not name a warehouse.
const DefaultLocation = "Main Warehouse"

// StockMovement is an immutable stock fact. Rows are never updated or deleted.
type StockMovement struct {
	ID          int64     `db:"id" json:"id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	Type        string    `db:"type" json:"type"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Reference   string    `db:"reference" json:"reference"`
	Location    string    `db:"location" json:"location"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Account types
const (
	AccountAsset     = "asset"
	AccountLiability = "liability"
	AccountEquity    = "equity"
	AccountRevenue   = "revenue"
	AccountExpense   = "expense"
)

// ValidAccountType reports whether t is a known account type.
func ValidAccountType(t string) bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// Account carries a running balance maintained by journal posting.
type Account struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	Type      string          `db:"type" json:"type"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Journal statuses
const (
	JournalDraft  = "draft"
	JournalPosted = "posted"
)

// JournalEntry is one side of a double-entry transaction. Entries sharing a
// reference form one transaction.
type JournalEntry struct {
	ID          int64           `db:"id" json:"id"`
	Reference   string          `db:"reference" json:"reference"`
	Description string          `db:"description" json:"description"`
	AccountID   int64           `db:"account_id" json:"account_id"`
	AccountCode string          `db:"account_code" json:"account_code"`
	AccountName string          `db:"account_name" json:"account_name"`
	AccountType string          `db:"-" json:"-"`
	Debit       decimal.Decimal `db:"debit" json:"debit"`
	Credit      decimal.Decimal `db:"credit" json:"credit"`
	Status      string          `db:"status" json:"status"`
	CreatedBy   string          `db:"created_by" json:"created_by"`
	Date        time.Time       `db:"date" json:"date"`
}

// BalanceDelta is the signed change this entry makes to its account balance.
// Asset and expense accounts grow with debits; the rest grow with credits.
func (e JournalEntry) BalanceDelta() decimal.Decimal {
	switch e.AccountType {
	case AccountAsset, AccountExpense:
		return e.Debit.Sub(e.Credit)
	default:
		return e.Credit.Sub(e.Debit)
	}
}

// Invoice statuses
const (
	InvoiceStatusDraft   = "draft"
	InvoiceStatusSent    = "sent"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusOverdue = "overdue"
)

// Invoice is issued from an order. Balance always equals Total - Paid.
type Invoice struct {
	ID           int64           `db:"id" json:"id"`
	Number       string          `db:"number" json:"invoice_number"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	CustomerID   string          `db:"customer_id" json:"customer_id"`
	CustomerName string          `db:"customer_name" json:"customer_name"`
	Date         time.Time       `db:"date" json:"date"`
	DueDate      time.Time       `db:"due_date" json:"due_date"`
	Status       string          `db:"status" json:"status"`
	Total        decimal.Decimal `db:"total" json:"total"`
	Paid         decimal.Decimal `db:"paid" json:"paid"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// ValidInvoiceStatus reports whether s is a known invoice status.
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}
