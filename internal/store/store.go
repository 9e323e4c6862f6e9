package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"maketheprint/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the session-scoped database handle. Every method that touches
// user-owned data takes the caller's user id and filters on it, mirroring
// the row-level-security the hosted original relied on. Privileged access
// goes through Admin instead.
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

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product and resolves its custom config.
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	product.CustomConfig = models.ResolveCustomConfig(product.Category, product.RawCustomConfig)
	return &product, nil
}

// ListProducts retrieves the catalog, newest first.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].CustomConfig = models.ResolveCustomConfig(products[i].Category, products[i].RawCustomConfig)
	}
	return products, nil
}

const cartSelect = `
	SELECT ci.*, p.name AS product_name, p.price AS product_price
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

// GetCartItems retrieves a user's cart lines joined with the product
// name and base price so totals can be recomputed on every call.
func (s *Store) GetCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		cartSelect+" WHERE ci.user_id = $1 ORDER BY ci.created_at", userID)
	return items, err
}

// AddCartItem inserts a cart line.
func (s *Store) AddCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, material, customizations)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return s.db.GetContext(ctx, &item.CreatedAt, query,
		item.ID, item.UserID, item.ProductID, item.Quantity, item.Material, item.Customizations)
}

// UpdateCartItemQuantity changes the quantity of one of the user's own
// cart lines.
func (s *Store) UpdateCartItemQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3",
		quantity, itemID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	return nil
}

// DeleteCartItem removes one of the user's own cart lines.
func (s *Store) DeleteCartItem(ctx context.Context, userID, itemID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	return nil
}

// ClearCart removes every cart line belonging to the user. Clearing an
// already-empty cart is a no-op, which keeps the paid-transition side
// effects safely re-runnable.
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}
