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
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection pool.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const productColumns = `id, sku, name, price, stock, reorder_level, variants, created_at, updated_at`

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySKU retrieves a product by SKU
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE sku = $1", sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", sku, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DeductStock decrements stock by quantity only if enough is available, in a
// single conditional UPDATE. It returns the new stock level.
func (s *Store) DeductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return deductStock(ctx, s.db, productID, quantity)
}

// CreditStock increments stock by quantity and returns the new level.
func (s *Store) CreditStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return creditStock(ctx, s.db, productID, quantity)
}

// ApplyMovement changes stock by the movement's direction and appends the
// movement record in one transaction, so stock never changes without its record.
func (s *Store) ApplyMovement(ctx context.Context, m *models.StockMovement) (int, error) {
	var stock int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		switch m.Type {
		case models.MovementOut:
			stock, err = deductStock(ctx, tx, m.ProductID, m.Quantity)
		case models.MovementIn:
			stock, err = creditStock(ctx, tx, m.ProductID, m.Quantity)
		default:
			err = fmt.Errorf("movement type %q: %w", m.Type, apperrors.ErrValidation)
		}
		if err != nil {
			return err
		}
		return insertMovement(ctx, tx, m)
	})
	if err != nil {
		return 0, err
	}
	return stock, nil
}

// InsertMovement appends a stock movement record
func (s *Store) InsertMovement(ctx context.Context, m *models.StockMovement) error {
	return insertMovement(ctx, s.db, m)
}

// GetMovementsByReference lists movements recorded for a document number
func (s *Store) GetMovementsByReference(ctx context.Context, reference string) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := s.db.SelectContext(ctx, &movements,
		`SELECT id, product_id, product_name, type, quantity, reference, location, created_by, created_at
		 FROM stock_movements WHERE reference = $1 ORDER BY id`, reference)
	return movements, err
}

func deductStock(ctx context.Context, q sqlx.QueryerContext, productID int64, quantity int) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, q, &stock,
		`UPDATE products SET stock = stock - $1, updated_at = NOW()
		 WHERE id = $2 AND stock >= $1
		 RETURNING stock`, quantity, productID)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to deduct stock: %w", err)
	}

	// The guard failed: either the product is gone or stock is short.
	var current struct {
		Name  string `db:"name"`
		Stock int    `db:"stock"`
	}
	err = sqlx.GetContext(ctx, q, &current, "SELECT name, stock FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, apperrors.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return 0, &apperrors.InsufficientStockError{
		ProductID:   productID,
		ProductName: current.Name,
		Available:   current.Stock,
		Requested:   quantity,
	}
}

func creditStock(ctx context.Context, q sqlx.QueryerContext, productID int64, quantity int) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, q, &stock,
		`UPDATE products SET stock = stock + $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock`, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, apperrors.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit stock: %w", err)
	}
	return stock, nil
}

func insertMovement(ctx context.Context, q sqlx.QueryerContext, m *models.StockMovement) error {
	if m.Location == "" {
		m.Location = models.DefaultLocation
	}
	err := sqlx.GetContext(ctx, q, m,
		`INSERT INTO stock_movements (product_id, product_name, type, quantity, reference, location, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		m.ProductID, m.ProductName, m.Type, m.Quantity, m.Reference, m.Location, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record stock movement: %w", err)
	}
	return nil
}
