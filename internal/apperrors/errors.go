package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that an order, product, invoice or account could not be found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidState indicates the operation is never valid for the current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrConflict indicates a concurrent update won the conditional write first.
	ErrConflict = errors.New("concurrent update conflict")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnbalancedEntry   = errors.New("journal entries do not balance")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrValidation        = errors.New("validation error")
	ErrUnknownAccount    = errors.New("unknown ledger account")

	// ErrPartiallyApplied marks failures that happened after at least one side effect committed.
	ErrPartiallyApplied = errors.New("operation partially applied")
)

// InsufficientStockError names the product and the quantities involved in a failed deduction.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Approval stages.
const (
	StageStock   = "stock"
	StageJournal = "journal"
	StageStatus  = "status"
)

// AppliedLine is a stock deduction that committed before an approval failed.
type AppliedLine struct {
	Position   int    `json:"position"`
	ProductID  int64  `json:"product_id"`
	Product    string `json:"product"`
	Quantity   int    `json:"quantity"`
	MovementID int64  `json:"movement_id"`
}

// ApprovalError reports an approval that failed after committing some of its side effects.
// The applied lines are not compensated and must be reconciled.
type ApprovalError struct {
	OrderID      int64
	OrderNumber  string
	Stage        string
	AppliedLines []AppliedLine
	Err          error
}

func (e *ApprovalError) Error() string {
	parts := make([]string, 0, len(e.AppliedLines))
	for _, l := range e.AppliedLines {
		parts = append(parts, fmt.Sprintf("#%d %s x%d", l.Position, l.Product, l.Quantity))
	}
	return fmt.Sprintf("approval of %s failed at %s stage after applying [%s]: %v",
		e.OrderNumber, e.Stage, strings.Join(parts, ", "), e.Err)
}

func (e *ApprovalError) Unwrap() []error { return []error{ErrPartiallyApplied, e.Err} }

// PostingError reports a journal set that could not be posted after the business
// state it describes had already changed.
type PostingError struct {
	Reference string
	Err       error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("journal posting for %s failed after state change: %v", e.Reference, e.Err)
}

func (e *PostingError) Unwrap() []error { return []error{ErrPartiallyApplied, e.Err} }
