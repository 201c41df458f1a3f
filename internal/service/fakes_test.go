package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"erp-service/internal/apperrors"
	"erp-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory store honouring the same atomic contracts as the
// Postgres store: conditional decrements, guarded status updates and
// all-or-nothing journal sets.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	products  map[int64]*models.Product
	movements []models.StockMovement
	orders    map[int64]*models.Order
	accounts  map[string]*models.Account
	entries   []models.JournalEntry
	invoices  map[int64]*models.Invoice
	sequences map[string]int64
	processed map[string]bool

	failPost error
}

func newMemStore() *memStore {
	s := &memStore{
		products:  make(map[int64]*models.Product),
		orders:    make(map[int64]*models.Order),
		accounts:  make(map[string]*models.Account),
		invoices:  make(map[int64]*models.Invoice),
		sequences: make(map[string]int64),
		processed: make(map[string]bool),
	}
	for _, a := range []models.Account{
		{Code: "1000", Name: "Cash", Type: models.AccountAsset},
		{Code: "1200", Name: "Accounts Receivable", Type: models.AccountAsset},
		{Code: "4000", Name: "Revenue", Type: models.AccountRevenue},
	} {
		a := a
		a.ID = s.id()
		s.accounts[a.Code] = &a
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addProduct(name string, stock int, price string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Product{
		ID:           s.id(),
		SKU:          fmt.Sprintf("SKU-%s", name),
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Stock:        stock,
		ReorderLevel: 10,
	}
	s.products[p.ID] = p
	return p.ID
}

type lineSpec struct {
	productID int64
	qty       int
	price     string
}

func (s *memStore) addOrder(status string, lines ...lineSpec) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &models.Order{
		ID:           s.id(),
		CustomerID:   "cust-1",
		CustomerName: "Acme Corp",
		Status:       status,
		CreatedBy:    "sales-1",
	}
	o.Number = FormatNumber(PrefixOrder, o.ID)
	for _, l := range lines {
		o.Lines = append(o.Lines, models.OrderLine{
			OrderID:     o.ID,
			ProductID:   l.productID,
			ProductName: s.productName(l.productID),
			Quantity:    l.qty,
			UnitPrice:   decimal.RequireFromString(l.price),
		})
	}
	o.Recalculate()
	s.orders[o.ID] = o
	return copyOrder(o)
}

func (s *memStore) productName(id int64) string {
	if p, ok := s.products[id]; ok {
		return p.Name
	}
	return fmt.Sprintf("product-%d", id)
}

func (s *memStore) stockOf(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) order(id int64) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.orders[id])
}

func (s *memStore) allMovements() []models.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StockMovement(nil), s.movements...)
}

func (s *memStore) allEntries() []models.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JournalEntry(nil), s.entries...)
}

func (s *memStore) balance(code string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[code].Balance
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Lines = append([]models.OrderLine(nil), o.Lines...)
	return &c
}

// ProductStore

func (s *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, apperrors.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *memStore) deduct(productID int64, qty int) (int, error) {
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, apperrors.ErrNotFound)
	}
	if p.Stock < qty {
		return 0, &apperrors.InsufficientStockError{
			ProductID: productID, ProductName: p.Name, Available: p.Stock, Requested: qty,
		}
	}
	p.Stock -= qty
	return p.Stock, nil
}

func (s *memStore) credit(productID int64, qty int) (int, error) {
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", productID, apperrors.ErrNotFound)
	}
	p.Stock += qty
	return p.Stock, nil
}

func (s *memStore) DeductStock(_ context.Context, productID int64, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deduct(productID, qty)
}

func (s *memStore) CreditStock(_ context.Context, productID int64, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit(productID, qty)
}

func (s *memStore) ApplyMovement(_ context.Context, m *models.StockMovement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stock int
	var err error
	switch m.Type {
	case models.MovementOut:
		stock, err = s.deduct(m.ProductID, m.Quantity)
	case models.MovementIn:
		stock, err = s.credit(m.ProductID, m.Quantity)
	default:
		err = apperrors.ErrValidation
	}
	if err != nil {
		return 0, err
	}
	s.insertMovement(m)
	return stock, nil
}

func (s *memStore) insertMovement(m *models.StockMovement) {
	m.ID = s.id()
	if m.Location == "" {
		m.Location = models.DefaultLocation
	}
	s.movements = append(s.movements, *m)
}

func (s *memStore) InsertMovement(_ context.Context, m *models.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertMovement(m)
	return nil
}

func (s *memStore) GetMovementsByReference(_ context.Context, reference string) ([]models.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StockMovement
	for _, m := range s.movements {
		if m.Reference == reference {
			out = append(out, m)
		}
	}
	return out, nil
}

// OrderStore

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Lines {
		order.Lines[i].ID = s.id()
		order.Lines[i].OrderID = order.ID
	}
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, apperrors.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (s *memStore) ClaimApproval(_ context.Context, id int64, actor string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPendingApproval || o.ApprovalClaimedAt != nil {
		return false, nil
	}
	o.ApprovalClaimedBy = &actor
	o.ApprovalClaimedAt = &at
	return true, nil
}

func (s *memStore) ReleaseApprovalClaim(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPendingApproval || o.ApprovalClaimedAt == nil {
		return false, nil
	}
	o.ApprovalClaimedBy = nil
	o.ApprovalClaimedAt = nil
	return true, nil
}

func (s *memStore) CompleteApproval(_ context.Context, id int64, actor string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPendingApproval ||
		o.ApprovalClaimedBy == nil || *o.ApprovalClaimedBy != actor {
		return false, nil
	}
	o.Status = models.OrderStatusApproved
	o.ApprovedBy = &actor
	o.ApprovalClaimedBy = nil
	o.ApprovalClaimedAt = nil
	o.UpdatedAt = at
	return true, nil
}

func (s *memStore) TransitionOrderStatus(_ context.Context, id int64, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from || o.ApprovalClaimedAt != nil {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

// LedgerStore

func (s *memStore) GetAccountByCode(_ context.Context, code string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[code]
	if !ok {
		return nil, fmt.Errorf("account code %s: %w", code, apperrors.ErrUnknownAccount)
	}
	c := *a
	return &c, nil
}

func (s *memStore) PostJournalEntries(_ context.Context, entries []models.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPost != nil {
		return s.failPost
	}

	byID := make(map[int64]*models.Account, len(s.accounts))
	for _, a := range s.accounts {
		byID[a.ID] = a
	}
	for _, e := range entries {
		if _, ok := byID[e.AccountID]; !ok {
			return fmt.Errorf("account %d: %w", e.AccountID, apperrors.ErrUnknownAccount)
		}
	}
	for i := range entries {
		entries[i].ID = s.id()
		a := byID[entries[i].AccountID]
		a.Balance = a.Balance.Add(entries[i].BalanceDelta())
		s.entries = append(s.entries, entries[i])
	}
	return nil
}

// InvoiceStore

func (s *memStore) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.ID = s.id()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	c := *inv
	s.invoices[inv.ID] = &c
	return nil
}

func (s *memStore) addInvoice(total string) *models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := decimal.RequireFromString(total)
	inv := &models.Invoice{
		ID:      s.id(),
		Status:  models.InvoiceStatusDraft,
		Total:   t,
		Paid:    decimal.Zero,
		Balance: t,
	}
	inv.Number = FormatNumber(PrefixInvoice, inv.ID)
	s.invoices[inv.ID] = inv
	c := *inv
	return &c
}

func (s *memStore) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *memStore) GetInvoiceByID(_ context.Context, id int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, apperrors.ErrNotFound)
	}
	c := *inv
	return &c, nil
}

func (s *memStore) ApplyPayment(_ context.Context, id int64, amount decimal.Decimal) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.Status == models.InvoiceStatusPaid || inv.Paid.Add(amount).GreaterThan(inv.Total) {
		return nil, nil
	}
	inv.Paid = inv.Paid.Add(amount)
	inv.Balance = inv.Total.Sub(inv.Paid)
	if inv.Paid.GreaterThanOrEqual(inv.Total) {
		inv.Status = models.InvoiceStatusPaid
	}
	c := *inv
	return &c, nil
}

func (s *memStore) SetInvoiceStatus(_ context.Context, id int64, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.Status == models.InvoiceStatusPaid {
		return false, nil
	}
	inv.Status = status
	return true, nil
}

// Counter

func (s *memStore) IncrementSequence(_ context.Context, series string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[series]++
	return s.sequences[series], nil
}

func (s *memStore) SyncSequence(_ context.Context, series string, floor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sequences[series] < floor {
		s.sequences[series] = floor
	}
	return nil
}

// ReconcileStore

func (s *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[eventID], nil
}

func (s *memStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID] = true
	return nil
}

// memIdempotency mirrors the Redis key and lock semantics.
type memIdempotency struct {
	mu      sync.Mutex
	results map[string]string
	locks   map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{
		results: make(map[string]string),
		locks:   make(map[string]string),
	}
}

func (m *memIdempotency) GetIdempotentResult(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[key]
	return v, ok, nil
}

func (m *memIdempotency) SetIdempotentResult(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = value
	return nil
}

func (m *memIdempotency) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", nil
	}
	token := fmt.Sprintf("token-%d", len(m.locks)+1)
	m.locks[key] = token
	return token, nil
}

func (m *memIdempotency) ReleaseLock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// newMockPublisher accepts every event; tests assert on the calls they care about.
func newMockPublisher() *MockEventPublisher {
	p := new(MockEventPublisher)
	for _, method := range []string{
		"PublishOrderApproved", "PublishOrderRejected", "PublishApprovalFailed",
		"PublishInvoiceIssued", "PublishInvoicePaid", "PublishStockLow",
	} {
		p.On(method, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return p
}

func (m *MockEventPublisher) PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishOrderRejected(ctx context.Context, event *models.OrderRejectedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishApprovalFailed(ctx context.Context, event *models.ApprovalFailedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishInvoiceIssued(ctx context.Context, event *models.InvoiceIssuedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishInvoicePaid(ctx context.Context, event *models.InvoicePaidEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	return m.Called(ctx, event).Error(0)
}

// fixture wires every service against one in-memory store.
type fixture struct {
	store     *memStore
	events    *MockEventPublisher
	idem      *memIdempotency
	seq       *SequenceGenerator
	stock     *StockLedger
	journal   *JournalPoster
	approvals *OrderApprovalWorkflow
	invoices  *InvoiceIssuance
	orders    *OrderService
}

func newFixture() *fixture {
	st := newMemStore()
	events := newMockPublisher()
	idem := newMemIdempotency()
	seq := NewSequenceGenerator(st)
	stock := NewStockLedger(st, events)
	journal := NewJournalPoster(st)

	return &fixture{
		store:   st,
		events:  events,
		idem:    idem,
		seq:     seq,
		stock:   stock,
		journal: journal,
		approvals: NewOrderApprovalWorkflow(st, stock, journal, events, ApprovalConfig{
			ReceivableCode: "1200",
			RevenueCode:    "4000",
			Timeout:        5 * time.Second,
		}),
		invoices: NewInvoiceIssuance(st, st, seq, journal, idem, events, InvoiceConfig{
			CashCode:       "1000",
			ReceivableCode: "1200",
			DueDays:        30,
			IdempotencyTTL: time.Hour,
		}),
		orders: NewOrderService(st, st, seq),
	}
}
