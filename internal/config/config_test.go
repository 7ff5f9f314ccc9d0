package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalTOML = `
log_level = "info"

[wallet]
private_key = "0xabc"

[market]
condition_id = "0xcond"
title = "Bitcoin above $100k?"
token_ids = ["111", "222"]
outcomes = ["Yes", "No"]

[chain]
rpc_url = "https://polygon-rpc.com"
`

func TestLoadMergesDefaults(t *testing.T) {
	path := writeTOML(t, minimalTOML)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Values from the file.
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"111", "222"}, cfg.Market.TokenIDs)

	// Untouched defaults survive the merge.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
	assert.Equal(t, 30*time.Second, cfg.Executor.PassiveCancelAfter.Duration)
	assert.Equal(t, 2*time.Second, cfg.Executor.AggressiveCancelAfter.Duration)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTOML(t, minimalTOML)

	t.Setenv("TRADEPILOT_WALLET_PRIVATE_KEY", "0xfromenv")
	t.Setenv("TRADEPILOT_EXECUTOR_AUTO_CONFIRM", "true")
	t.Setenv("TRADEPILOT_EXECUTOR_PASSIVE_CANCEL_AFTER", "45s")
	t.Setenv("TRADEPILOT_MARKET_TOKEN_IDS", "333, 444")
	t.Setenv("TRADEPILOT_AUTOSELL_TAKE_PROFIT_PERCENT", "30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xfromenv", cfg.Wallet.PrivateKey)
	assert.True(t, cfg.Executor.AutoConfirm)
	assert.Equal(t, 45*time.Second, cfg.Executor.PassiveCancelAfter.Duration)
	assert.Equal(t, []string{"333", "444"}, cfg.Market.TokenIDs)
	assert.Equal(t, 30.0, cfg.AutoSell.TakeProfitPercent)
}

func TestDurationTOMLDecoding(t *testing.T) {
	path := writeTOML(t, minimalTOML+`
[executor]
passive_cancel_after = "1m"
aggressive_cancel_after = "500ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Executor.PassiveCancelAfter.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.AggressiveCancelAfter.Duration)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Wallet.PrivateKey = "0xabc"
		cfg.Chain.RpcURL = "https://polygon-rpc.com"
		cfg.Market.ConditionID = "0xcond"
		cfg.Market.TokenIDs = []string{"111", "222"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name: "missing key source",
			mutate: func(c *Config) {
				c.Wallet.PrivateKey = ""
			},
			wantErr: "private_key or encrypted_key_path",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *Config) {
				c.Wallet.PrivateKey = ""
				c.Wallet.EncryptedKeyPath = "/keys/wallet.json"
			},
			wantErr: "key_password is required",
		},
		{
			name: "partial builder creds",
			mutate: func(c *Config) {
				c.Builder.ApiKey = "key"
			},
			wantErr: "must all be set together",
		},
		{
			name: "no builder and no rpc",
			mutate: func(c *Config) {
				c.Chain.RpcURL = ""
			},
			wantErr: "rpc_url is required",
		},
		{
			name: "builder creds make rpc optional",
			mutate: func(c *Config) {
				c.Chain.RpcURL = ""
				c.Builder.ApiKey = "key"
				c.Builder.ApiSecret = "c2VjcmV0"
				c.Builder.ApiPassphrase = "pass"
			},
		},
		{
			name: "missing market",
			mutate: func(c *Config) {
				c.Market.ConditionID = ""
				c.Market.TokenIDs = nil
			},
			wantErr: "condition_id must not be empty",
		},
		{
			name: "outcomes length mismatch",
			mutate: func(c *Config) {
				c.Market.Outcomes = []string{"Yes"}
			},
			wantErr: "outcomes must match token_ids",
		},
		{
			name: "bad end date",
			mutate: func(c *Config) {
				c.Market.EndDate = "tomorrow"
			},
			wantErr: "end_date must be RFC 3339",
		},
		{
			name: "target return too low",
			mutate: func(c *Config) {
				c.Trigger.TargetReturn = 1.0
			},
			wantErr: "target_return must be > 1",
		},
		{
			name: "bad signature type",
			mutate: func(c *Config) {
				c.Polymarket.SignatureType = 3
			},
			wantErr: "signature_type",
		},
		{
			name: "autosell enabled needs thresholds",
			mutate: func(c *Config) {
				c.AutoSell.Enabled = true
				c.AutoSell.StopLossPercent = 0
			},
			wantErr: "stop_loss_percent must be > 0",
		},
		{
			name: "bad log level",
			mutate: func(c *Config) {
				c.LogLevel = "verbose"
			},
			wantErr: "unknown log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	p := PostgresConfig{
		Host: "db.internal", Port: 5432, Database: "tradepilot",
		User: "svc", Password: "pw", SSLMode: "require",
	}
	assert.Equal(t, "postgres://svc:pw@db.internal:5432/tradepilot?sslmode=require", p.ConnString())

	p.DSN = "postgres://direct"
	assert.Equal(t, "postgres://direct", p.ConnString())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xsecret"
	cfg.Builder.ApiSecret = "c2VjcmV0"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tok"
	cfg.Market.TokenIDs = []string{"111"}

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Builder.ApiSecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)

	// Slice copies are independent.
	out.Market.TokenIDs[0] = "999"
	assert.Equal(t, "111", cfg.Market.TokenIDs[0])
}
