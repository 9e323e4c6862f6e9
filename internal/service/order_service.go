package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"maketheprint/config"
	"maketheprint/internal/models"
	"maketheprint/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type orderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	DeleteOrder(ctx context.Context, orderID string) error
	GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
}

type orderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// OrderService handles order intake and owner-scoped reads.
type OrderService struct {
	store     orderStore
	catalog   productGetter
	publisher orderEventPublisher
	business  config.BusinessConfig
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store orderStore, catalog productGetter, publisher orderEventPublisher, business config.BusinessConfig) *OrderService {
	return &OrderService{
		store:     store,
		catalog:   catalog,
		publisher: publisher,
		business:  business,
		logger:    util.NamedLogger("orders"),
	}
}

// CreateOrderRequest carries the priced cart snapshot and addresses.
type CreateOrderRequest struct {
	TotalAmount     float64            `json:"total_amount" binding:"required"`
	ShippingAddress models.Address     `json:"shipping_address" binding:"required"`
	BillingAddress  *models.Address    `json:"billing_address"`
	Items           []OrderItemRequest `json:"order_items" binding:"required,min=1"`
}

// OrderItemRequest represents a line in the order snapshot.
type OrderItemRequest struct {
	ProductID      string                 `json:"product_id" binding:"required"`
	Quantity       int                    `json:"quantity" binding:"required,min=1"`
	Material       string                 `json:"material"`
	Customizations *models.Customizations `json:"customizations"`
}

// CreatePendingOrder creates a durable pending order plus its line
// snapshots. The stored total is computed here, on the server, from the
// product catalog and pricing config: the client's claimed total is only
// cross-checked, never trusted. A material change to the cart or address
// means the caller creates a fresh pending order; an existing pending
// order's total is never mutated.
func (s *OrderService) CreatePendingOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreatePendingOrder")
	defer span.End()

	if req.ShippingAddress.IsEmpty() {
		return nil, fmt.Errorf("shipping address incomplete: %w", models.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order has no items: %w", models.ErrValidation)
	}

	items, subtotal, err := s.priceItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	total := checkoutTotal(subtotal, s.business)
	if total <= 0 {
		return nil, fmt.Errorf("order total must be positive: %w", models.ErrValidation)
	}
	if math.Abs(total-req.TotalAmount) > 0.01 {
		util.OrdersFailedTotal.WithLabelValues("total_mismatch").Inc()
		return nil, fmt.Errorf("submitted total %.2f does not match priced total %.2f: %w",
			req.TotalAmount, total, models.ErrValidation)
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		TotalAmount:     total,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		item.OrderID = order.ID
		if err := s.store.CreateOrderItem(ctx, item); err != nil {
			// Compensate so a half-written order never lingers in pending.
			if delErr := s.store.DeleteOrder(ctx, order.ID); delErr != nil {
				s.logger.Error("Failed to roll back order after item failure",
					zap.String("order_id", order.ID), zap.Error(delErr))
			}
			util.OrdersFailedTotal.WithLabelValues("item_db_error").Inc()
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Pending order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Float64("total", total))

	if s.publisher != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			UserID:      userID,
			TotalAmount: total,
			Items:       eventItems,
		}
		if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return order, nil
}

// priceItems builds the order line snapshots with server-derived unit
// prices: the pricing engine for preset lines, the base price otherwise.
func (s *OrderService) priceItems(ctx context.Context, reqs []OrderItemRequest) ([]*models.OrderItem, float64, error) {
	items := make([]*models.OrderItem, 0, len(reqs))
	var subtotal float64

	for _, req := range reqs {
		if req.Quantity < 1 || req.Quantity > s.business.MaxItemQuantity {
			return nil, 0, fmt.Errorf("quantity must be between 1 and %d: %w", s.business.MaxItemQuantity, models.ErrValidation)
		}

		product, err := s.catalog.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if product.Category == models.CategoryInquire {
			return nil, 0, fmt.Errorf("inquire products have no online checkout: %w", models.ErrValidation)
		}

		item := &models.OrderItem{
			ID:        uuid.New().String(),
			ProductID: product.ID,
			Quantity:  req.Quantity,
			Price:     product.Price,
		}
		if req.Material != "" {
			item.Material.String = req.Material
			item.Material.Valid = true
		}

		if product.Category == models.CategoryPreset {
			cfg, _ := models.PresetConfigOf(product)
			custom, err := pricedCustomizations(cfg, req.Customizations)
			if err != nil {
				return nil, 0, err
			}
			item.Customizations = models.NullCustomizations{Customizations: *custom, Valid: true}
			item.Price = custom.TotalPrice
		}

		subtotal += item.Price * float64(item.Quantity)
		items = append(items, item)
	}

	return items, subtotal, nil
}

// checkoutTotal applies the checkout aggregation rules to a subtotal.
func checkoutTotal(subtotal float64, business config.BusinessConfig) float64 {
	if subtotal <= 0 {
		return 0
	}
	total := subtotal + subtotal*business.TaxRate
	if subtotal <= business.FreeShippingThreshold {
		total += business.ShippingFlatRate
	}
	return total
}

// GetOrder retrieves one of the user's orders with its line snapshots.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListOrders retrieves the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListOrdersForUser(ctx, userID)
}
