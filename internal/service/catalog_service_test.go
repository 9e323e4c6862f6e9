package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"maketheprint/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalogStore struct {
	products map[string]*models.Product
	reads    int
}

func (s *stubCatalogStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	s.reads++
	p, ok := s.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (s *stubCatalogStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

type stubCatalogAdmin struct {
	created []*models.Product
	updated []*models.Product
	deleted []string
}

func (s *stubCatalogAdmin) CreateProduct(ctx context.Context, p *models.Product) error {
	s.created = append(s.created, p)
	return nil
}

func (s *stubCatalogAdmin) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.updated = append(s.updated, p)
	return nil
}

func (s *stubCatalogAdmin) DeleteProduct(ctx context.Context, productID string) error {
	s.deleted = append(s.deleted, productID)
	return nil
}

type stubProductCache struct {
	entries     map[string]*models.Product
	invalidated []string
	err         error
}

func (c *stubProductCache) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries[id], nil
}

func (c *stubProductCache) SetProduct(ctx context.Context, product *models.Product) error {
	if c.err != nil {
		return c.err
	}
	if c.entries == nil {
		c.entries = make(map[string]*models.Product)
	}
	c.entries[product.ID] = product
	return nil
}

func (c *stubProductCache) InvalidateProduct(ctx context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	delete(c.entries, id)
	return nil
}

func TestGetProductReadsThroughCache(t *testing.T) {
	store := &stubCatalogStore{products: map[string]*models.Product{"p1": finishedProduct("p1", 20)}}
	cache := &stubProductCache{}
	svc := NewCatalogService(store, &stubCatalogAdmin{}, cache)

	// Miss populates the cache; the second read never hits the store.
	first, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	second, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.reads)
}

func TestGetProductCacheOutageFallsThrough(t *testing.T) {
	store := &stubCatalogStore{products: map[string]*models.Product{"p1": finishedProduct("p1", 20)}}
	cache := &stubProductCache{err: errors.New("redis down")}
	svc := NewCatalogService(store, &stubCatalogAdmin{}, cache)

	product, err := svc.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", product.ID)
}

func TestGetProductUnknown(t *testing.T) {
	svc := NewCatalogService(&stubCatalogStore{}, &stubCatalogAdmin{}, nil)

	_, err := svc.GetProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateProductValidatesPresetConfig(t *testing.T) {
	admin := &stubCatalogAdmin{}
	svc := NewCatalogService(&stubCatalogStore{}, admin, nil)

	_, err := svc.CreateProduct(context.Background(), &ProductInput{
		Name:        "Wall Letters",
		ProductType: models.ProductTypeCustom,
		Category:    models.CategoryPreset,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, admin.created)

	cfg := json.RawMessage(`{"sizePrices":[{"label":"10cm","pricePerLetter":1.0}],"outdoor":{"enabled":true,"price":10}}`)
	product, err := svc.CreateProduct(context.Background(), &ProductInput{
		Name:         "Wall Letters",
		ProductType:  models.ProductTypeCustom,
		Category:     models.CategoryPreset,
		CustomConfig: cfg,
	})
	require.NoError(t, err)

	preset, ok := models.PresetConfigOf(product)
	require.True(t, ok)
	assert.Equal(t, 1.0, preset.SizePrices[0].PricePerLetter)
	assert.True(t, preset.Outdoor.Enabled)
}

func TestCreateProductValidatesInquireConfig(t *testing.T) {
	svc := NewCatalogService(&stubCatalogStore{}, &stubCatalogAdmin{}, nil)

	_, err := svc.CreateProduct(context.Background(), &ProductInput{
		Name:         "Neon Sign",
		ProductType:  models.ProductTypeCustom,
		Category:     models.CategoryInquire,
		CustomConfig: json.RawMessage(`{"whatsappMessage":"hi"}`),
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateProductInvalidatesCache(t *testing.T) {
	admin := &stubCatalogAdmin{}
	cache := &stubProductCache{entries: map[string]*models.Product{"p1": finishedProduct("p1", 20)}}
	svc := NewCatalogService(&stubCatalogStore{}, admin, cache)

	_, err := svc.UpdateProduct(context.Background(), "p1", &ProductInput{
		Name:        "Desk Print v2",
		Price:       25,
		ProductType: models.ProductTypeSeasonal,
		Category:    models.CategoryFinished,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, cache.invalidated)
	require.Len(t, admin.updated, 1)
	assert.Equal(t, "Desk Print v2", admin.updated[0].Name)
}

func TestDeleteProductInvalidatesCache(t *testing.T) {
	admin := &stubCatalogAdmin{}
	cache := &stubProductCache{entries: map[string]*models.Product{"p1": finishedProduct("p1", 20)}}
	svc := NewCatalogService(&stubCatalogStore{}, admin, cache)

	require.NoError(t, svc.DeleteProduct(context.Background(), "p1"))
	assert.Equal(t, []string{"p1"}, admin.deleted)
	assert.Equal(t, []string{"p1"}, cache.invalidated)
}
