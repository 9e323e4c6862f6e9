package service

import (
	"context"
	"fmt"

	"maketheprint/config"
	"maketheprint/internal/models"
	"maketheprint/internal/pricing"
	"maketheprint/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartSummary is recomputed from the stored lines on every read and
// mutation. Nothing is cached between requests, so totals cannot drift.
type CartSummary struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// ComputeTotals aggregates cart lines into a summary. The checkout
// summary includes tax; the cart-page summary deliberately does not,
// matching the storefront's design.
func ComputeTotals(items []models.CartItem, business config.BusinessConfig, includeTax bool) CartSummary {
	var summary CartSummary
	if len(items) == 0 {
		return summary
	}

	for i := range items {
		summary.Subtotal += items[i].UnitPrice() * float64(items[i].Quantity)
	}

	if summary.Subtotal <= business.FreeShippingThreshold {
		summary.Shipping = business.ShippingFlatRate
	}
	if includeTax {
		summary.Tax = summary.Subtotal * business.TaxRate
	}
	summary.Total = summary.Subtotal + summary.Shipping + summary.Tax
	return summary
}

type cartStore interface {
	GetCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
	AddCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, userID, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, userID, itemID string) error
}

type productGetter interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// CartService handles cart line CRUD and aggregation.
type CartService struct {
	store    cartStore
	catalog  productGetter
	business config.BusinessConfig
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store cartStore, catalog productGetter, business config.BusinessConfig) *CartService {
	return &CartService{
		store:    store,
		catalog:  catalog,
		business: business,
		logger:   util.NamedLogger("cart"),
	}
}

// CartView is a cart snapshot plus its freshly computed summary.
type CartView struct {
	Items   []models.CartItem `json:"items"`
	Summary CartSummary       `json:"summary"`
}

// Get returns the user's cart with totals. Checkout mode adds tax.
func (s *CartService) Get(ctx context.Context, userID string, checkout bool) (*CartView, error) {
	items, err := s.store.GetCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &CartView{
		Items:   items,
		Summary: ComputeTotals(items, s.business, checkout),
	}, nil
}

// AddItemRequest represents a request to add a cart line.
type AddItemRequest struct {
	ProductID      string                 `json:"product_id" binding:"required"`
	Quantity       int                    `json:"quantity" binding:"required,min=1"`
	Material       string                 `json:"material"`
	Customizations *models.Customizations `json:"customizations"`
}

// AddItem validates and stores a new cart line. For preset products the
// customization snapshot's price is recomputed server-side from the
// admin-defined config; a zero-priced custom line never enters the cart.
func (s *CartService) AddItem(ctx context.Context, userID string, req *AddItemRequest) (*CartView, error) {
	if req.Quantity < 1 || req.Quantity > s.business.MaxItemQuantity {
		return nil, fmt.Errorf("quantity must be between 1 and %d: %w", s.business.MaxItemQuantity, models.ErrValidation)
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.Category == models.CategoryInquire {
		return nil, fmt.Errorf("inquire products have no online checkout: %w", models.ErrValidation)
	}

	item := &models.CartItem{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: product.ID,
	}
	item.Quantity = req.Quantity
	if req.Material != "" {
		item.Material.String = req.Material
		item.Material.Valid = true
	}

	if product.Category == models.CategoryPreset {
		cfg, _ := models.PresetConfigOf(product)
		custom, err := pricedCustomizations(cfg, req.Customizations)
		if err != nil {
			return nil, err
		}
		item.Customizations = models.NullCustomizations{Customizations: *custom, Valid: true}
	}

	if err := s.store.AddCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	s.logger.Info("Cart item added",
		zap.String("user_id", userID),
		zap.String("product_id", product.ID),
		zap.Int("quantity", item.Quantity))

	return s.Get(ctx, userID, false)
}

// pricedCustomizations recomputes a preset selection's character count
// and total from the stored config, overwriting whatever the client sent.
func pricedCustomizations(cfg *models.PresetConfig, custom *models.Customizations) (*models.Customizations, error) {
	if custom == nil {
		return nil, fmt.Errorf("customizations required for preset products: %w", models.ErrValidation)
	}

	sel := pricing.Selection{
		Text:       custom.Text,
		Size:       custom.Size,
		Outdoor:    custom.Outdoor,
		LEDStrip:   custom.LEDStrip,
		ColorAddon: custom.ColorAddon,
	}

	priced := *custom
	priced.CharacterCount = pricing.CharacterCount(custom.Text)
	priced.TotalPrice = pricing.Total(cfg, sel)
	if priced.TotalPrice <= 0 {
		return nil, fmt.Errorf("customization prices at zero: %w", models.ErrValidation)
	}
	return &priced, nil
}

// UpdateQuantity changes a line's quantity within the allowed range.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*CartView, error) {
	if quantity < 1 || quantity > s.business.MaxItemQuantity {
		return nil, fmt.Errorf("quantity must be between 1 and %d: %w", s.business.MaxItemQuantity, models.ErrValidation)
	}
	if err := s.store.UpdateCartItemQuantity(ctx, userID, itemID, quantity); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, false)
}

// RemoveItem deletes a cart line.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) (*CartView, error) {
	if err := s.store.DeleteCartItem(ctx, userID, itemID); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, false)
}
