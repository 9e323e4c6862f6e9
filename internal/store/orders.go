package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maketheprint/internal/models"
)

// CreateOrder inserts a pending order row.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, total_amount, shipping_address, billing_address, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.TotalAmount,
		order.ShippingAddress, order.BillingAddress,
		order.PaymentStatus, order.Status)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

// CreateOrderItem inserts one order line snapshot.
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price, material, customizations)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.OrderID, item.ProductID, item.Quantity,
		item.Price, item.Material, item.Customizations)
	return err
}

// DeleteOrder removes an order and its items. Used as the compensating
// action when item insertion fails after the order row was created.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	return err
}

// GetOrderForUser retrieves an order the user owns. An order belonging
// to someone else is indistinguishable from a missing one.
func (s *Store) GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersForUser retrieves the user's orders, newest first.
func (s *Store) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItems retrieves an order's line snapshots with product names
// joined in for display and email rendering.
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT oi.*, p.name AS product_name
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1`, orderID)
	return items, err
}

// MarkOrderPaid performs the single atomic pending→paid transition. The
// WHERE clause is the whole race guard: of any number of concurrent
// callers (client confirm, webhook, redelivered webhook) exactly one sees
// an affected row and wins the transition.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID, userID, paymentIntentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, payment_intent_id = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5 AND payment_status <> $1`,
		models.PaymentStatusPaid, models.OrderStatusConfirmed, paymentIntentID, orderID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClaimConfirmationEmail flips the sentinel column from null to now, and
// reports whether this caller won the claim. A lost claim means another
// path already owns (or finished) sending the emails.
func (s *Store) ClaimConfirmationEmail(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET confirmation_email_sent_at = NOW()
		WHERE id = $1 AND confirmation_email_sent_at IS NULL`, orderID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
