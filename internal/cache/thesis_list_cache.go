package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"cloudpdf/internal/model"
)

// ThesisListCache stores listing results per scope: one key for the
// unscoped listing and one per owner.
type ThesisListCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewThesisListCache(client *redisv9.Client, ttl time.Duration) *ThesisListCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ThesisListCache{client: client, ttl: ttl}
}

func (c *ThesisListCache) Get(ctx context.Context, ownerID *uint) ([]model.Thesis, bool, error) {
	raw, err := c.client.Get(ctx, listKey(ownerID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get thesis list failed: %w", err)
	}

	var theses []model.Thesis
	if err := json.Unmarshal(raw, &theses); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached thesis list failed: %w", err)
	}
	return theses, true, nil
}

func (c *ThesisListCache) Set(ctx context.Context, ownerID *uint, theses []model.Thesis) error {
	payload, err := json.Marshal(theses)
	if err != nil {
		return fmt.Errorf("marshal thesis list cache failed: %w", err)
	}
	if err := c.client.Set(ctx, listKey(ownerID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set thesis list failed: %w", err)
	}
	return nil
}

// Invalidate drops the unscoped listing and, when ownerID is set, that owner's listing.
func (c *ThesisListCache) Invalidate(ctx context.Context, ownerID *uint) error {
	keys := []string{listKey(nil)}
	if ownerID != nil {
		keys = append(keys, listKey(ownerID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete thesis list failed: %w", err)
	}
	return nil
}

func listKey(ownerID *uint) string {
	if ownerID == nil {
		return "theses:list:all"
	}
	return fmt.Sprintf("theses:list:owner:%d", *ownerID)
}
