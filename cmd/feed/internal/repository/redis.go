package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

const (
	priceKeyPrefix     = "stock:"
	watchlistKeyPrefix = "watchlist:"
)

// Compile-time checks
var (
	_ SubscriptionStore = (*RedisStore)(nil)
	_ PriceCache        = (*RedisStore)(nil)
)

type RedisStore struct {
	client   *redis.Client
	cacheTTL time.Duration
}

func NewRedisStore(client *redis.Client, cacheTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		cacheTTL: cacheTTL,
	}
}

// GetSubscriptions returns the persisted watchlist for a user (SMEMBERS)
func (r *RedisStore) GetSubscriptions(ctx context.Context, userID string) ([]string, error) {
	return r.client.SMembers(ctx, watchlistKeyPrefix+userID).Result()
}

func (r *RedisStore) AddSubscription(ctx context.Context, userID, symbol string) error {
	return r.client.SAdd(ctx, watchlistKeyPrefix+userID, symbol).Err()
}

func (r *RedisStore) RemoveSubscription(ctx context.Context, userID, symbol string) error {
	return r.client.SRem(ctx, watchlistKeyPrefix+userID, symbol).Err()
}

// Publish stores the latest tick per symbol.
// TTL prevents unbounded memory growth if a symbol is retired.
func (r *RedisStore) Publish(ctx context.Context, update models.PriceUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	return r.client.Set(ctx, priceKeyPrefix+update.Symbol, payload, r.cacheTTL).Err()
}

// GetSnapshots fetches the latest cached tick for a list of symbols (MGET)
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceUpdate, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = priceKeyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var snapshots []models.PriceUpdate
	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var update models.PriceUpdate
		if err := json.Unmarshal([]byte(payload), &update); err != nil {
			continue
		}
		snapshots = append(snapshots, update)
	}
	return snapshots, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
