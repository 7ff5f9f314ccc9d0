package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEPILOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TRADEPILOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TRADEPILOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TRADEPILOT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.ProxyAddress, "TRADEPILOT_WALLET_PROXY_ADDRESS")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "TRADEPILOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "TRADEPILOT_POLYMARKET_WS_HOST")
	setStr(&cfg.Polymarket.DataHost, "TRADEPILOT_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.RelayerHost, "TRADEPILOT_POLYMARKET_RELAYER_HOST")
	setInt(&cfg.Polymarket.ChainID, "TRADEPILOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "TRADEPILOT_POLYMARKET_SIGNATURE_TYPE")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "TRADEPILOT_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "TRADEPILOT_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "TRADEPILOT_BUILDER_API_PASSPHRASE")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.WsURL, "TRADEPILOT_PRICEFEED_WS_URL")
	setStr(&cfg.PriceFeed.RestURL, "TRADEPILOT_PRICEFEED_REST_URL")

	// ── Chain ──
	setStr(&cfg.Chain.RpcURL, "TRADEPILOT_CHAIN_RPC_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEPILOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEPILOT_REDIS_TLS_ENABLED")

	// ── Market ──
	setStr(&cfg.Market.ConditionID, "TRADEPILOT_MARKET_CONDITION_ID")
	setStr(&cfg.Market.Title, "TRADEPILOT_MARKET_TITLE")
	setStr(&cfg.Market.Slug, "TRADEPILOT_MARKET_SLUG")
	setStringSlice(&cfg.Market.TokenIDs, "TRADEPILOT_MARKET_TOKEN_IDS")
	setStringSlice(&cfg.Market.Outcomes, "TRADEPILOT_MARKET_OUTCOMES")
	setStr(&cfg.Market.EndDate, "TRADEPILOT_MARKET_END_DATE")

	// ── Trigger ──
	setFloat64(&cfg.Trigger.TargetReturn, "TRADEPILOT_TRIGGER_TARGET_RETURN")
	setFloat64(&cfg.Trigger.AmountUSD, "TRADEPILOT_TRIGGER_AMOUNT_USD")

	// ── Executor ──
	setBool(&cfg.Executor.AutoConfirm, "TRADEPILOT_EXECUTOR_AUTO_CONFIRM")
	setDuration(&cfg.Executor.PassiveCancelAfter, "TRADEPILOT_EXECUTOR_PASSIVE_CANCEL_AFTER")
	setDuration(&cfg.Executor.AggressiveCancelAfter, "TRADEPILOT_EXECUTOR_AGGRESSIVE_CANCEL_AFTER")

	// ── AutoSell ──
	setBool(&cfg.AutoSell.Enabled, "TRADEPILOT_AUTOSELL_ENABLED")
	setFloat64(&cfg.AutoSell.TakeProfitPercent, "TRADEPILOT_AUTOSELL_TAKE_PROFIT_PERCENT")
	setFloat64(&cfg.AutoSell.StopLossPercent, "TRADEPILOT_AUTOSELL_STOP_LOSS_PERCENT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEPILOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADEPILOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEPILOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEPILOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADEPILOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
