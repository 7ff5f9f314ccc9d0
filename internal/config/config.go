// Package config loads and validates tradepilot configuration from TOML
// files with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for a tradepilot process.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	PriceFeed  PriceFeedConfig  `toml:"pricefeed"`
	Chain      ChainConfig      `toml:"chain"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Market     MarketConfig     `toml:"market"`
	Trigger    TriggerConfig    `toml:"trigger"`
	Executor   ExecutorConfig   `toml:"executor"`
	AutoSell   AutoSellConfig   `toml:"autosell"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`

	LogLevel string `toml:"log_level"`
}

// WalletConfig holds the signing key material. Exactly one of PrivateKey or
// EncryptedKeyPath must be set; EncryptedKeyPath requires KeyPassword.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ProxyAddress     string `toml:"proxy_address"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	WsHost        string `toml:"ws_host"`
	DataHost      string `toml:"data_host"`
	RelayerHost   string `toml:"relayer_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// BuilderConfig holds relayer (gasless settlement) API credentials. All
// three fields must be set together; when empty the process falls back to
// on-chain allowance management via the RPC endpoint.
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// PriceFeedConfig holds the reference price source endpoints.
type PriceFeedConfig struct {
	WsURL   string `toml:"ws_url"`
	RestURL string `toml:"rest_url"`
}

// ChainConfig holds the Polygon RPC endpoint used for the standard
// (non-gasless) allowance path.
type ChainConfig struct {
	RpcURL string `toml:"rpc_url"`
}

// PostgresConfig holds the order journal database connection.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"sslmode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ConnString returns the DSN when set, otherwise one assembled from the
// individual host fields.
func (p PostgresConfig) ConnString() string {
	if strings.TrimSpace(p.DSN) != "" {
		return p.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds the live quote cache connection.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// MarketConfig identifies the single market a session trades.
type MarketConfig struct {
	ConditionID string   `toml:"condition_id"`
	Title       string   `toml:"title"`
	Slug        string   `toml:"slug"`
	TokenIDs    []string `toml:"token_ids"`
	Outcomes    []string `toml:"outcomes"`
	EndDate     string   `toml:"end_date"` // RFC 3339, optional
}

// TriggerConfig holds the default entry rule applied to every outcome at
// startup. Rules start disabled; the control API arms them.
type TriggerConfig struct {
	TargetReturn float64 `toml:"target_return"`
	AmountUSD    float64 `toml:"amount_usd"`
}

// ExecutorConfig holds order submission behavior.
type ExecutorConfig struct {
	AutoConfirm           bool     `toml:"auto_confirm"`
	PassiveCancelAfter    duration `toml:"passive_cancel_after"`
	AggressiveCancelAfter duration `toml:"aggressive_cancel_after"`
}

// AutoSellConfig holds the position exit monitor parameters. Percentages
// are expressed as whole numbers (25 means +25%).
type AutoSellConfig struct {
	Enabled           bool    `toml:"enabled"`
	TakeProfitPercent float64 `toml:"take_profit_percent"`
	StopLossPercent   float64 `toml:"stop_loss_percent"`
}

// ServerConfig holds the HTTP control API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "2s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with production endpoint defaults.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			RelayerHost:   "https://relayer-v2.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		PriceFeed: PriceFeedConfig{
			WsURL:   "wss://ws-live-data.polymarket.com",
			RestURL: "https://api.binance.com/api/v3",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradepilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Trigger: TriggerConfig{
			TargetReturn: 2.0,
			AmountUSD:    5.0,
		},
		Executor: ExecutorConfig{
			AutoConfirm:           false,
			PassiveCancelAfter:    duration{30 * time.Second},
			AggressiveCancelAfter: duration{2 * time.Second},
		},
		AutoSell: AutoSellConfig{
			Enabled:           false,
			TakeProfitPercent: 25,
			StopLossPercent:   50,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "position_closed", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — exactly one key source.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Builder — all three fields must be set together, or all empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if (bk || bs || bp) && !(bk && bs && bp) {
		errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
	}
	if !bk && c.Chain.RpcURL == "" {
		errs = append(errs, "chain: rpc_url is required when builder credentials are not configured")
	}

	// Market
	if c.Market.ConditionID == "" {
		errs = append(errs, "market: condition_id must not be empty")
	}
	if len(c.Market.TokenIDs) == 0 {
		errs = append(errs, "market: token_ids must not be empty")
	}
	if len(c.Market.Outcomes) != 0 && len(c.Market.Outcomes) != len(c.Market.TokenIDs) {
		errs = append(errs, "market: outcomes must match token_ids in length when set")
	}
	if c.Market.EndDate != "" {
		if _, err := time.Parse(time.RFC3339, c.Market.EndDate); err != nil {
			errs = append(errs, fmt.Sprintf("market: end_date must be RFC 3339: %v", err))
		}
	}

	// Trigger
	if c.Trigger.TargetReturn <= 1 {
		errs = append(errs, "trigger: target_return must be > 1")
	}
	if c.Trigger.AmountUSD <= 0 {
		errs = append(errs, "trigger: amount_usd must be > 0")
	}

	// Executor
	if c.Executor.PassiveCancelAfter.Duration <= 0 {
		errs = append(errs, "executor: passive_cancel_after must be > 0")
	}
	if c.Executor.AggressiveCancelAfter.Duration <= 0 {
		errs = append(errs, "executor: aggressive_cancel_after must be > 0")
	}

	// AutoSell
	if c.AutoSell.Enabled {
		if c.AutoSell.TakeProfitPercent <= 0 {
			errs = append(errs, "autosell: take_profit_percent must be > 0 when enabled")
		}
		if c.AutoSell.StopLossPercent <= 0 {
			errs = append(errs, "autosell: stop_loss_percent must be > 0 when enabled")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
