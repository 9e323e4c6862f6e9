package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maketheprint/internal/models"
)

// Admin is the privileged database handle. The webhook reconciliation
// path and the back office run without an end-user session, so they get
// this capability explicitly instead of a session-scoped Store. Keeping
// the two handles as distinct types stops a handler from silently
// escalating privilege.
type Admin struct {
	s *Store
}

// NewAdmin wraps a store's connection pool in the privileged handle.
func NewAdmin(s *Store) *Admin {
	return &Admin{s: s}
}

// GetOrderForUser loads an order by id and owner. The owner id comes from
// payment-intent metadata here, not from a session.
func (a *Admin) GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error) {
	return a.s.GetOrderForUser(ctx, orderID, userID)
}

// MarkOrderPaid runs the same conditional transition as the user handle.
func (a *Admin) MarkOrderPaid(ctx context.Context, orderID, userID, paymentIntentID string) (bool, error) {
	return a.s.MarkOrderPaid(ctx, orderID, userID, paymentIntentID)
}

// ClearCart clears a user's cart on behalf of the webhook path.
func (a *Admin) ClearCart(ctx context.Context, userID string) error {
	return a.s.ClearCart(ctx, userID)
}

// ClaimConfirmationEmail delegates to the sentinel claim.
func (a *Admin) ClaimConfirmationEmail(ctx context.Context, orderID string) (bool, error) {
	return a.s.ClaimConfirmationEmail(ctx, orderID)
}

// GetOrderWithItems loads an order regardless of owner, with its line
// snapshots. Only the mailer and the back office need this view.
func (a *Admin) GetOrderWithItems(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	var order models.Order
	err := a.s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := a.s.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

// UpdateOrderFulfillment applies an admin-driven status transition
// (shipped, delivered) and optionally records a tracking number.
func (a *Admin) UpdateOrderFulfillment(ctx context.Context, orderID, status string, trackingNumber *string) error {
	res, err := a.s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, tracking_number = COALESCE($2, tracking_number), updated_at = NOW()
		WHERE id = $3`,
		status, trackingNumber, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}

// CreateProduct inserts a catalog product.
func (a *Admin) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, name_localized, description, price, images, product_type, category, custom_config, featured, seasonal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	row := a.s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.NameLocalized, p.Description, p.Price, p.Images,
		p.ProductType, p.Category, p.RawCustomConfig, p.Featured, p.Seasonal)
	return row.Scan(&p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct replaces a catalog product's mutable fields.
func (a *Admin) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := a.s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, name_localized = $2, description = $3, price = $4, images = $5,
		    product_type = $6, category = $7, custom_config = $8, featured = $9, seasonal = $10,
		    updated_at = NOW()
		WHERE id = $11`,
		p.Name, p.NameLocalized, p.Description, p.Price, p.Images,
		p.ProductType, p.Category, p.RawCustomConfig, p.Featured, p.Seasonal, p.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", p.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteProduct removes a catalog product.
func (a *Admin) DeleteProduct(ctx context.Context, productID string) error {
	res, err := a.s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
	}
	return nil
}
