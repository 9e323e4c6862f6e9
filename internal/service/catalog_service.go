package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"maketheprint/internal/models"
	"maketheprint/internal/util"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type catalogStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

type catalogAdmin interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, productID string) error
}

type productCache interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product) error
	InvalidateProduct(ctx context.Context, id string) error
}

// CatalogService serves the product catalog with a Redis read-through
// cache and handles the admin-side writes that invalidate it.
type CatalogService struct {
	store  catalogStore
	admin  catalogAdmin
	cache  productCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(store catalogStore, admin catalogAdmin, cache productCache) *CatalogService {
	return &CatalogService{
		store:  store,
		admin:  admin,
		cache:  cache,
		logger: util.NamedLogger("catalog"),
	}
}

// GetProduct returns one product, served from Redis when possible. Cache
// failures fall through to Postgres.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProduct(ctx, id)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
		} else if cached != nil {
			util.ProductCacheHits.Inc()
			return cached, nil
		}
		util.ProductCacheMisses.Inc()
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.logger.Warn("Product cache write failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	return product, nil
}

// ListProducts returns the catalog straight from the database.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

// ProductInput is the admin payload for creating or replacing a product.
type ProductInput struct {
	Name          string          `json:"name" binding:"required"`
	NameLocalized string          `json:"name_localized"`
	Description   string          `json:"description"`
	Price         float64         `json:"price"`
	Images        []string        `json:"images"`
	ProductType   string          `json:"product_type" binding:"required,oneof=custom seasonal"`
	Category      string          `json:"category" binding:"required,oneof=preset inquire finished"`
	CustomConfig  json.RawMessage `json:"custom_config"`
	Featured      bool            `json:"featured"`
	Seasonal      bool            `json:"seasonal"`
}

// validateConfig enforces the category/config invariant: preset needs
// pricing rules, inquire needs a contact channel, finished carries none.
func (in *ProductInput) validateConfig() ([]byte, error) {
	switch in.Category {
	case models.CategoryPreset:
		cfg, ok := models.ResolveCustomConfig(in.Category, in.CustomConfig).(*models.PresetConfig)
		if !ok || cfg == nil {
			return nil, fmt.Errorf("preset products need a pricing config: %w", models.ErrValidation)
		}
		return in.CustomConfig, nil
	case models.CategoryInquire:
		cfg, ok := models.ResolveCustomConfig(in.Category, in.CustomConfig).(*models.InquireConfig)
		if !ok || cfg == nil || cfg.WhatsAppNumber == "" {
			return nil, fmt.Errorf("inquire products need a whatsapp number: %w", models.ErrValidation)
		}
		return in.CustomConfig, nil
	default:
		return nil, nil
	}
}

func (in *ProductInput) toProduct(id string) (*models.Product, error) {
	raw, err := in.validateConfig()
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:              id,
		Name:            in.Name,
		Description:     in.Description,
		Price:           in.Price,
		Images:          pq.StringArray(in.Images),
		ProductType:     in.ProductType,
		Category:        in.Category,
		RawCustomConfig: raw,
		Featured:        in.Featured,
		Seasonal:        in.Seasonal,
	}
	if in.NameLocalized != "" {
		p.NameLocalized = models.NullString{NullString: sql.NullString{String: in.NameLocalized, Valid: true}}
	}
	p.CustomConfig = models.ResolveCustomConfig(p.Category, p.RawCustomConfig)
	return p, nil
}

// CreateProduct inserts a new catalog product.
func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	product, err := in.toProduct(uuid.New().String())
	if err != nil {
		return nil, err
	}
	if err := s.admin.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.logger.Info("Product created", zap.String("product_id", product.ID), zap.String("category", product.Category))
	return product, nil
}

// UpdateProduct replaces a product and drops its cache entry.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in *ProductInput) (*models.Product, error) {
	product, err := in.toProduct(id)
	if err != nil {
		return nil, err
	}
	if err := s.admin.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return product, nil
}

// DeleteProduct removes a product and drops its cache entry.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.admin.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}
