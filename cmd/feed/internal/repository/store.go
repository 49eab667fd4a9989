package repository

import (
	"context"

	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

// SubscriptionStore is the durable watchlist source of truth.
type SubscriptionStore interface {
	GetSubscriptions(ctx context.Context, userID string) ([]string, error)
	AddSubscription(ctx context.Context, userID, symbol string) error
	RemoveSubscription(ctx context.Context, userID, symbol string) error
	Close() error
}

// PriceCache holds the last published tick per symbol for snapshot reads.
type PriceCache interface {
	Publish(ctx context.Context, update models.PriceUpdate) error
	GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceUpdate, error)
	Close() error
}
