package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/cache/redis"
	"github.com/alanyoungcy/tradepilot/internal/config"
	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/executor"
	"github.com/alanyoungcy/tradepilot/internal/notify"
	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
	"github.com/alanyoungcy/tradepilot/internal/platform/pricefeed"
	"github.com/alanyoungcy/tradepilot/internal/platform/relayer"
	"github.com/alanyoungcy/tradepilot/internal/session"
	"github.com/alanyoungcy/tradepilot/internal/store/postgres"
)

// Dependencies bundles everything the running engine needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Session *session.Session

	Clob   *polymarket.ClobClient
	Data   *polymarket.DataClient
	Stream *polymarket.MarketStream

	RefStream *pricefeed.StreamClient
	RefREST   *pricefeed.RESTClient

	Executor *executor.Coordinator
	Funds    *executor.FundsPreparer

	Journal    *postgres.OrderJournal
	QuoteCache *redis.QuoteCache
	Notifier   *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Signing key ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: load key: %w", err)
	}
	signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	// --- Session ---
	market := session.MarketInfo{
		ConditionID: cfg.Market.ConditionID,
		Title:       cfg.Market.Title,
		Slug:        cfg.Market.Slug,
		TokenIDs:    cfg.Market.TokenIDs,
		Outcomes:    cfg.Market.Outcomes,
	}
	if cfg.Market.EndDate != "" {
		endDate, err := time.Parse(time.RFC3339, cfg.Market.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: market end_date: %w", err)
		}
		market.EndDate = endDate
	}
	sess := session.New(market)

	// Seed rule defaults; rules stay disabled until armed over the API.
	for i := range market.Outcomes {
		sess.WithRule(i, func(r *domain.TriggerRule) {
			r.TargetReturn = cfg.Trigger.TargetReturn
			r.AmountUSD = cfg.Trigger.AmountUSD
		})
	}
	sess.WithAutoSell(func(a *domain.AutoSellConfig) {
		a.Enabled = cfg.AutoSell.Enabled
		a.TakeProfitPercent = cfg.AutoSell.TakeProfitPercent
		a.StopLossPercent = cfg.AutoSell.StopLossPercent
	})
	deps.Session = sess

	// --- CLOB client ---
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, nil, fmt.Errorf("wire: clob auth: %w", err)
	}
	if err := clob.SyncServerTime(ctx); err != nil {
		return nil, nil, fmt.Errorf("wire: clob time sync: %w", err)
	}
	deps.Clob = clob
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost)
	deps.Stream = polymarket.NewMarketStream(cfg.Polymarket.WsHost)

	// --- Reference price feed ---
	deps.RefStream = pricefeed.NewStreamClient(cfg.PriceFeed.WsURL, market.ReferenceSymbol())
	deps.RefREST = pricefeed.NewRESTClient(cfg.PriceFeed.RestURL)

	// --- PostgreSQL order journal ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.Journal = postgres.NewOrderJournal(pgClient.Pool())

	// --- Redis quote cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.QuoteCache = redis.NewQuoteCache(redisClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	// --- Settlement paths ---
	var relay executor.RelaySubmitter
	if cfg.Builder.ApiKey != "" {
		relayClient := relayer.NewClient(cfg.Polymarket.RelayerHost, clob.Address(), crypto.APICredentials{
			APIKey:     cfg.Builder.ApiKey,
			Secret:     cfg.Builder.ApiSecret,
			Passphrase: cfg.Builder.ApiPassphrase,
		})
		relay = executor.RelayAdapter{Client: relayClient}
	}
	var standard executor.AllowanceEnsurer
	if cfg.Chain.RpcURL != "" {
		sp, err := executor.NewStandardPath(cfg.Chain.RpcURL, signer)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: standard path: %w", err)
		}
		standard = sp
	}
	deps.Funds = executor.NewFundsPreparer(logger, relay, standard)

	// --- Execution coordinator ---
	deps.Executor = executor.New(logger, executor.Config{
		AutoConfirm:           cfg.Executor.AutoConfirm,
		PassiveCancelAfter:    cfg.Executor.PassiveCancelAfter.Duration,
		AggressiveCancelAfter: cfg.Executor.AggressiveCancelAfter.Duration,
	}, sess, clob, deps.Funds, deps.Journal, deps.Notifier)

	return deps, cleanup, nil
}
