package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Store    StoreConfig    `mapstructure:"store"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type StoreConfig struct {
	// Backend selects the watchlist source of truth: "redis" or "postgres"
	Backend string `mapstructure:"backend"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type EngineConfig struct {
	TickPeriod time.Duration `mapstructure:"tick_period"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type FeedConfig struct {
	Tickers []string `mapstructure:"tickers"`
}

type WatchConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	// This ensures variables like APP_PORT are available as real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults (12-Factor App: Dev/Prod Parity)
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "168h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "postgres://localhost:5432/tickerfeed?sslmode=disable")
	v.SetDefault("store.backend", "redis")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_ticks")
	v.SetDefault("journal.enabled", false)

	v.SetDefault("engine.tick_period", "1s")
	v.SetDefault("engine.cache_ttl", "1h")

	v.SetDefault("feed.tickers", []string{"GOOG", "TSLA", "AMZN", "META", "NVDA"})

	v.SetDefault("watch.url", "ws://localhost:8080/ws")
	v.SetDefault("watch.token", "")

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	// This is crucial for Viper to map flat Env Vars (APP_PORT) to nested structs (App.Port)
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "auth.secret", "auth.token_ttl")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "postgres.dsn", "store.backend")
	bindEnv(v, "kafka.brokers", "kafka.topic", "journal.enabled")
	bindEnv(v, "engine.tick_period", "engine.cache_ttl")
	bindEnv(v, "feed.tickers")
	bindEnv(v, "watch.url", "watch.token")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret cannot be empty")
	}
	if len(cfg.Feed.Tickers) == 0 {
		return nil, fmt.Errorf("feed tickers cannot be empty")
	}
	if cfg.Store.Backend != "redis" && cfg.Store.Backend != "postgres" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if cfg.Journal.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty when the journal is enabled")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
