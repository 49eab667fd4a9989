package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var _ SubscriptionStore = (*PostgresStore)(nil)

const subscriptionsSchema = `
CREATE TABLE IF NOT EXISTS user_subscriptions (
	user_id TEXT NOT NULL,
	symbol  TEXT NOT NULL,
	PRIMARY KEY (user_id, symbol)
)`

// PostgresStore keeps watchlists in a user_subscriptions table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the schema if it does not exist yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, subscriptionsSchema)
	return err
}

func (p *PostgresStore) GetSubscriptions(ctx context.Context, userID string) ([]string, error) {
	var symbols []string
	err := p.db.SelectContext(ctx, &symbols,
		"SELECT symbol FROM user_subscriptions WHERE user_id = $1 ORDER BY symbol", userID)
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func (p *PostgresStore) AddSubscription(ctx context.Context, userID, symbol string) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO user_subscriptions (user_id, symbol) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, symbol)
	return err
}

func (p *PostgresStore) RemoveSubscription(ctx context.Context, userID, symbol string) error {
	_, err := p.db.ExecContext(ctx,
		"DELETE FROM user_subscriptions WHERE user_id = $1 AND symbol = $2", userID, symbol)
	return err
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
