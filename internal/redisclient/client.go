package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"maketheprint/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	productCacheTTL = 10 * time.Minute
	eventDedupeTTL  = 24 * time.Hour
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// cachedProduct carries the raw config column alongside the product so
// the tagged union can be re-resolved after the JSON round trip.
type cachedProduct struct {
	Product   models.Product  `json:"product"`
	RawConfig json.RawMessage `json:"raw_config,omitempty"`
}

// GetProduct returns a cached product, or (nil, nil) on a cache miss.
func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry cachedProduct
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt product cache entry: %w", err)
	}
	product := entry.Product
	product.RawCustomConfig = entry.RawConfig
	product.CustomConfig = models.ResolveCustomConfig(product.Category, product.RawCustomConfig)
	return &product, nil
}

// SetProduct caches a product with a TTL.
func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	clone := *product
	clone.CustomConfig = nil
	data, err := json.Marshal(cachedProduct{Product: clone, RawConfig: product.RawCustomConfig})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, productCacheTTL).Err()
}

// InvalidateProduct drops a product from the cache after an admin write.
func (c *Client) InvalidateProduct(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

func webhookEventKey(eventID string) string {
	return fmt.Sprintf("stripe:event:%s", eventID)
}

// SeenWebhookEvent reports whether a Stripe event id was already handled
// to completion. Redis is only a cheap first-pass filter here; the
// database conditional update remains the authoritative guard.
func (c *Client) SeenWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, webhookEventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkWebhookEvent records a Stripe event id as handled. Called only
// once handling succeeded: an event that errored must stay unmarked so
// Stripe's redelivery gets a real retry, not a short-circuit.
func (c *Client) MarkWebhookEvent(ctx context.Context, eventID string) error {
	return c.rdb.Set(ctx, webhookEventKey(eventID), "1", eventDedupeTTL).Err()
}
