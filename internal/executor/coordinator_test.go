package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/platform/polymarket"
	"github.com/alanyoungcy/tradepilot/internal/platform/relayer"
	"github.com/alanyoungcy/tradepilot/internal/session"
)

type fakeVenue struct {
	book      domain.BookSnapshot
	bookErr   error
	posted    []polymarket.OrderArgs
	postErr   error
	filled    bool
	cancelErr error
	cancelled []string
}

func (f *fakeVenue) GetOrderBook(context.Context, string) (domain.BookSnapshot, error) {
	return f.book, f.bookErr
}

func (f *fakeVenue) CreateAndPostOrder(_ context.Context, args polymarket.OrderArgs) (domain.OrderResult, error) {
	f.posted = append(f.posted, args)
	if f.postErr != nil {
		return domain.OrderResult{Success: false, Message: f.postErr.Error()}, f.postErr
	}
	return domain.OrderResult{
		Success: true,
		OrderID: fmt.Sprintf("ord-%d", len(f.posted)),
		Price:   args.Price,
		Shares:  args.Size,
		Side:    args.Side,
	}, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeVenue) GetOrder(context.Context, string) (polymarket.APIOrder, error) {
	if f.filled {
		return polymarket.APIOrder{SizeMatched: "10"}, nil
	}
	return polymarket.APIOrder{SizeMatched: "0"}, nil
}

type fakeRelay struct {
	deployErr  error
	execErr    error
	executions [][]relayer.Transaction
}

func (f *fakeRelay) DeployAndWait(context.Context) (relayer.TaskResult, error) {
	return relayer.TaskResult{}, f.deployErr
}

func (f *fakeRelay) ExecuteAndWait(_ context.Context, txs []relayer.Transaction, _ string) (relayer.TaskResult, error) {
	if f.execErr != nil {
		return relayer.TaskResult{}, f.execErr
	}
	f.executions = append(f.executions, txs)
	return relayer.TaskResult{TransactionHash: "0xrelayed"}, nil
}

type fakeAllowance struct {
	hash string
	err  error
}

func (f *fakeAllowance) EnsureAllowance(context.Context, *big.Int) (string, error) {
	return f.hash, f.err
}

type recordedResult struct {
	intent domain.TradeIntent
	result domain.OrderResult
}

type fakeJournal struct{ rows []recordedResult }

func (f *fakeJournal) Record(_ context.Context, intent domain.TradeIntent, result domain.OrderResult) error {
	f.rows = append(f.rows, recordedResult{intent, result})
	return nil
}

func testBook() domain.BookSnapshot {
	return domain.BookSnapshot{
		AssetID: "tok-up",
		Bids:    []domain.PriceLevel{{Price: 0.48, Size: 200}},
		Asks:    []domain.PriceLevel{{Price: 0.52, Size: 150}},
	}
}

func newTestCoordinator(venue *fakeVenue, funds *FundsPreparer, journal Journal) (*Coordinator, *session.Session) {
	sess := session.New(session.MarketInfo{
		ConditionID: "cond-1",
		Title:       "Bitcoin Up or Down",
		TokenIDs:    []string{"tok-up", "tok-down"},
		Outcomes:    []string{"Up", "Down"},
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{PassiveCancelAfter: 10 * time.Millisecond, AggressiveCancelAfter: 5 * time.Millisecond}
	return New(logger, cfg, sess, venue, funds, journal, nil), sess
}

func TestMarketOrderPriceClamp(t *testing.T) {
	assert.InDelta(t, 0.55*1.05, marketOrderPrice(0.55, false), 1e-9)
	assert.InDelta(t, 0.55*1.10, marketOrderPrice(0.55, true), 1e-9)
	// 0.95 * 1.05 = 0.9975, clamped to the venue cap.
	assert.InDelta(t, 0.99, marketOrderPrice(0.95, false), 1e-9)
	assert.InDelta(t, 0.01, marketOrderPrice(0.001, false), 1e-9)

	assert.InDelta(t, 0.48*0.95, marketSellPrice(0.48, false), 1e-9)
	assert.InDelta(t, 0.01, marketSellPrice(0.005, true), 1e-9)
}

func TestBumpToMinNotional(t *testing.T) {
	// $0.50 order bumps to the venue minimum.
	shares := bumpToMinNotional(1.0, 0.50)
	assert.InDelta(t, domain.MinNotional/0.50, shares, 1e-9)
	assert.InDelta(t, domain.MinNotional, shares*0.50, 1e-9)

	// At the 0.99 cap a $1 order still clears the minimum.
	shares = bumpToMinNotional(1.0, 0.99)
	assert.InDelta(t, domain.MinNotional/0.99, shares, 1e-9)

	// Large orders pass through untouched.
	assert.InDelta(t, 100.0, bumpToMinNotional(100, 0.50), 1e-9)
}

func TestDollarsToSharesBuffer(t *testing.T) {
	assert.InDelta(t, 10/0.50*1.001, dollarsToShares(10, 0.50), 1e-9)
	assert.Zero(t, dollarsToShares(10, 0))
}

func TestWorstCasePrice(t *testing.T) {
	assert.InDelta(t, 0.525, worstCasePrice(domain.StrategyAggressive, 0.52), 1e-9)
	assert.InDelta(t, 0.99, worstCasePrice(domain.StrategyAggressive, 0.988), 1e-9)
	assert.InDelta(t, 0.48, worstCasePrice(domain.StrategyPassive, 0.48), 1e-9)
}

func TestInitiateBuySizing(t *testing.T) {
	venue := &fakeVenue{book: testBook()}
	c, sess := newTestCoordinator(venue, nil, nil)
	seedQuotes(sess, venue.book)

	intent, err := c.Initiate(context.Background(), InitiateRequest{
		Side: domain.OrderSideBuy, Strategy: domain.StrategyAggressive, OutcomeIndex: 0, AmountUSD: 10,
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.52, intent.Price, 1e-9)
	assert.InDelta(t, 0.525, intent.WorstCasePrice, 1e-9)
	assert.InDelta(t, 10/0.52, intent.Shares, 1e-9)
	assert.Equal(t, "manual", intent.Source)
}

func TestInitiatePassiveUsesBid(t *testing.T) {
	venue := &fakeVenue{book: testBook()}
	c, sess := newTestCoordinator(venue, nil, nil)
	seedQuotes(sess, venue.book)

	intent, err := c.Initiate(context.Background(), InitiateRequest{
		Side: domain.OrderSideBuy, Strategy: domain.StrategyPassive, OutcomeIndex: 0, AmountUSD: 10,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.48, intent.Price, 1e-9)
	assert.InDelta(t, 0.48, intent.WorstCasePrice, 1e-9)
}

func TestInitiateFallsBackToFreshBook(t *testing.T) {
	venue := &fakeVenue{book: testBook()}
	c, _ := newTestCoordinator(venue, nil, nil)

	// No seeded quote; coordinator must fetch the book itself.
	intent, err := c.Initiate(context.Background(), InitiateRequest{
		Side: domain.OrderSideBuy, Strategy: domain.StrategyAggressive, OutcomeIndex: 0, AmountUSD: 5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.52, intent.Price, 1e-9)
}

func TestConfirmSecondWhileBusy(t *testing.T) {
	venue := &fakeVenue{book: testBook(), filled: true}
	c, sess := newTestCoordinator(venue, nil, nil)

	require.True(t, sess.TryAcquireOrder())
	defer sess.ReleaseOrder()

	_, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy, TokenID: "tok-up",
	})
	assert.ErrorIs(t, err, domain.ErrOrderInFlight)
	assert.Empty(t, venue.posted)
}

func TestConfirmAggressiveEmptyBookAborts(t *testing.T) {
	venue := &fakeVenue{book: domain.BookSnapshot{AssetID: "tok-up"}}
	c, _ := newTestCoordinator(venue, nil, nil)

	_, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", EstCost: 10, Shares: 20,
	})
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
	assert.Empty(t, venue.posted)
}

func TestConfirmResolvedMarket(t *testing.T) {
	venue := &fakeVenue{bookErr: fmt.Errorf("polymarket/clob: get book: %w", domain.ErrNotFound)}
	c, sess := newTestCoordinator(venue, nil, nil)

	_, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy, TokenID: "tok-up",
	})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
	assert.True(t, sess.IsResolved("tok-up"))
}

func TestConfirmAggressiveFilled(t *testing.T) {
	venue := &fakeVenue{book: testBook(), filled: true}
	journal := &fakeJournal{}
	c, sess := newTestCoordinator(venue, nil, journal)

	result, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.52, WorstCasePrice: 0.99, EstCost: 10, Shares: 19.2, Source: "trigger",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, venue.posted, 1)
	posted := venue.posted[0]
	// Trigger source takes the 10% fast path.
	assert.InDelta(t, 0.52*1.10, posted.Price, 1e-9)
	assert.InDelta(t, dollarsToShares(10, posted.Price), posted.Size, 1e-9)
	assert.Equal(t, "FAK", posted.OrderType)

	state, _ := sess.OrderStatus()
	assert.Equal(t, domain.OrderStateIdle, state, "slot released after lifecycle")
	require.Len(t, journal.rows, 1)
	assert.True(t, journal.rows[0].result.Success)
}

func TestConfirmWorstCaseCapsLimit(t *testing.T) {
	venue := &fakeVenue{book: testBook(), filled: true}
	c, _ := newTestCoordinator(venue, nil, nil)

	_, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.52, WorstCasePrice: 0.525, EstCost: 10, Shares: 19.2,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.525, venue.posted[0].Price, 1e-9)
}

func TestConfirmPassiveUnfilledCancels(t *testing.T) {
	venue := &fakeVenue{book: testBook(), filled: false}
	c, _ := newTestCoordinator(venue, nil, nil)

	result, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyPassive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.48, WorstCasePrice: 0.48, Shares: 20, EstCost: 9.6,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, venue.cancelled, 1)
	assert.Equal(t, "GTC", venue.posted[0].OrderType)
	assert.InDelta(t, 0.48, venue.posted[0].Price, 1e-9)
}

func TestConfirmCancelFailureTreatedAsFilled(t *testing.T) {
	venue := &fakeVenue{book: testBook(), filled: false, cancelErr: errors.New("order already matched")}
	c, _ := newTestCoordinator(venue, nil, nil)

	result, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyPassive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.48, Shares: 20, EstCost: 9.6,
	})
	require.NoError(t, err)
	assert.True(t, result.Success, "unfillable cancel means the order matched")
}

func TestGaslessFallbackToStandard(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := &fakeRelay{execErr: errors.New("HTTP 503: relayer down")}
	standard := &fakeAllowance{hash: "0xstandard"}
	funds := NewFundsPreparer(logger, relay, standard)

	venue := &fakeVenue{book: testBook(), filled: true}
	c, _ := newTestCoordinator(venue, funds, nil)

	result, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.52, WorstCasePrice: 0.99, EstCost: 10, Shares: 19.2,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Gasless, "fallback path must report gasless=false")
	assert.Equal(t, "0xstandard", result.TxHash)
}

func TestGaslessHappyPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := &fakeRelay{deployErr: errors.New("HTTP 400: Safe already exists")}
	funds := NewFundsPreparer(logger, relay, nil)

	venue := &fakeVenue{book: testBook(), filled: true}
	c, _ := newTestCoordinator(venue, funds, nil)

	result, err := c.ConfirmIntent(context.Background(), domain.TradeIntent{
		ID: "i1", Strategy: domain.StrategyAggressive, Side: domain.OrderSideBuy,
		TokenID: "tok-up", Price: 0.52, WorstCasePrice: 0.99, EstCost: 10, Shares: 19.2,
	})
	require.NoError(t, err)
	assert.True(t, result.Gasless)
	assert.Equal(t, "0xrelayed", result.TxHash)
	require.Len(t, relay.executions, 1, "existing safe must not block the approval")
}

func seedQuotes(sess *session.Session, book domain.BookSnapshot) {
	sess.ApplyBook(book, time.Now())
}
