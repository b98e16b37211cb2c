package trader

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx_sentinel_go/broker"
	"fx_sentinel_go/config"
	"fx_sentinel_go/journal"
	"fx_sentinel_go/state"
)

type captureJournal struct {
	mu     sync.Mutex
	trades []journal.TradeEntry
	equity []journal.EquitySnapshot
}

func (j *captureJournal) RecordTrade(e journal.TradeEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, e)
	return nil
}

func (j *captureJournal) RecordEquity(s journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, s)
	return nil
}

func (j *captureJournal) RecentTrades(limit int) ([]journal.TradeEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journal.TradeEntry, len(j.trades))
	copy(out, j.trades)
	return out, nil
}

func (j *captureJournal) Close() error { return nil }

// 14:00 UTC falls in the London/New York overlap, the best session score.
var overlapHour = time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)

func testTradingConfig(instruments ...string) *config.TradingConfig {
	return &config.TradingConfig{
		Instruments:         instruments,
		MaxSpread:           0.0003,
		ConfidenceThreshold: 0.6,
		StopLossPercent:     0.01,
		TakeProfitPercent:   0.02,
		UnitScaling:         100,
		CandleCount:         50,
		CandleGranularity:   "M15",
		MarketCacheSeconds:  300,
	}
}

func testRiskConfig() *config.RiskConfig {
	return &config.RiskConfig{
		MaxDailyLossPercent:   20,
		MaxCapitalLossPercent: 70,
		MaxRiskPerTrade:       0.02,
		MaxOpenTrades:         3,
	}
}

func newTestEngine(t *testing.T, instruments ...string) (*Engine, *broker.MockClient, *state.Store, *captureJournal) {
	t.Helper()
	mock := broker.NewMockClient(instruments, 10000)
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), 10000)
	jrnl := &captureJournal{}
	e := NewEngine(mock, store, jrnl, testTradingConfig(instruments...), testRiskConfig())
	e.nowFn = func() time.Time { return overlapHour }
	return e, mock, store, jrnl
}

func TestWideSpreadDisqualifiesInstrument(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "EUR_USD")

	md := marketData{
		price:  broker.Price{Instrument: "EUR_USD", Bid: 1.1000, Ask: 1.1005},
		closes: risingCloses(1.1, 50),
	}
	// Spread 0.0005 exceeds the 0.0003 ceiling; even maximal sentiment
	// cannot rescue the score.
	assert.Equal(t, 0.0, e.scoreInstrument("EUR_USD", md, 1.0))
}

func TestSpreadAtCeilingStillScores(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "EUR_USD")

	md := marketData{price: broker.Price{Instrument: "EUR_USD", Bid: 1.1000, Ask: 1.1003}}
	assert.Greater(t, e.scoreInstrument("EUR_USD", md, 1.0), 0.0)
}

func TestDecideDirection(t *testing.T) {
	assert.Equal(t, 1, DecideDirection(0.5))
	assert.Equal(t, 1, DecideDirection(0.0001))
	assert.Equal(t, -1, DecideDirection(0))
	assert.Equal(t, -1, DecideDirection(-0.3))
}

func TestSelectBestPrefersLowerSpreadOnTie(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "EUR_USD", "GBP_USD")

	// No candle history keeps both technical scores neutral; identical
	// sentiment makes the totals equal, so the spread decides.
	market := map[string]marketData{
		"EUR_USD": {price: broker.Price{Instrument: "EUR_USD", Bid: 1.1000, Ask: 1.1002}},
		"GBP_USD": {price: broker.Price{Instrument: "GBP_USD", Bid: 1.2500, Ask: 1.2501}},
	}
	sentiment := map[string]float64{"EUR_USD": 0.9, "GBP_USD": 0.9}

	best, found := e.selectBest(market, sentiment)
	require.True(t, found)
	assert.Equal(t, "GBP_USD", best)
}

func TestSelectBestFallsBackToWatchlistOrder(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "EUR_USD", "GBP_USD")

	market := map[string]marketData{
		"EUR_USD": {price: broker.Price{Instrument: "EUR_USD", Bid: 1.1000, Ask: 1.1001}},
		"GBP_USD": {price: broker.Price{Instrument: "GBP_USD", Bid: 1.2500, Ask: 1.2501}},
	}
	sentiment := map[string]float64{"EUR_USD": 0.9, "GBP_USD": 0.9}

	best, found := e.selectBest(market, sentiment)
	require.True(t, found)
	assert.Equal(t, "EUR_USD", best)
}

func TestSelectBestRespectsThreshold(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "EUR_USD")

	market := map[string]marketData{
		"EUR_USD": {price: broker.Price{Instrument: "EUR_USD", Bid: 1.1000, Ask: 1.1001}},
	}
	// Neutral technical (0.5*0.5) + zero sentiment + overlap session
	// (0.9*0.2) totals 0.43, below the 0.6 threshold.
	_, found := e.selectBest(market, map[string]float64{})
	assert.False(t, found)
}

func TestAnalyzeAndTradeExecutesBestCandidate(t *testing.T) {
	e, mock, store, jrnl := newTestEngine(t, "EUR_USD", "GBP_USD")

	report, err := e.AnalyzeAndTrade(context.Background(), map[string]float64{"EUR_USD": 0.9})
	require.NoError(t, err)
	assert.Contains(t, report, "Trade executed: BUY")
	assert.Contains(t, report, "EUR_USD")

	snap := store.Snapshot()
	require.NotNil(t, snap.LastTrade)
	assert.Equal(t, "EUR_USD", snap.LastTrade.Instrument)
	assert.Equal(t, "BUY", snap.LastTrade.Direction)
	// floor(10000 * 0.02 / 1.1001 * 100) units at the mock ask.
	assert.Equal(t, 18180, snap.LastTrade.Units)
	assert.Equal(t, 0.9, snap.LastTrade.Sentiment)
	assert.Equal(t, 10000.0, snap.TotalCapital)

	require.Len(t, jrnl.trades, 1)
	assert.Equal(t, snap.LastTrade.ID, jrnl.trades[0].TradeID)

	trades, err := mock.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestAnalyzeAndTradeNoOpportunity(t *testing.T) {
	e, _, store, _ := newTestEngine(t, "EUR_USD")

	report, err := e.AnalyzeAndTrade(context.Background(), map[string]float64{})
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Nil(t, store.Snapshot().LastTrade)
}

func TestAnalyzeAndTradeCapacityGate(t *testing.T) {
	e, mock, store, _ := newTestEngine(t, "EUR_USD")
	e.riskCfg.MaxOpenTrades = 1

	_, err := mock.CreateMarketOrder(context.Background(), broker.OrderRequest{Instrument: "EUR_USD", Units: 100})
	require.NoError(t, err)

	report, err := e.AnalyzeAndTrade(context.Background(), map[string]float64{"EUR_USD": 0.9})
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Nil(t, store.Snapshot().LastTrade)
}

func TestAnalyzeAndTradeAccountFailure(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, "EUR_USD")
	mock.FailNext("account", true)

	_, err := e.AnalyzeAndTrade(context.Background(), map[string]float64{"EUR_USD": 0.9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account")
}

func TestAnalyzeAndTradeRefreshesCapital(t *testing.T) {
	e, mock, store, _ := newTestEngine(t, "EUR_USD")
	mock.SetBalance(9500)

	_, err := e.AnalyzeAndTrade(context.Background(), map[string]float64{})
	require.NoError(t, err)

	snap := store.Snapshot()
	assert.Equal(t, 9500.0, snap.TotalCapital)
	assert.Equal(t, -500.0, snap.DailyPnL)
	assert.Equal(t, -500.0, snap.WeeklyPnL)
}

func TestMarketDataCacheServesRepeatCalls(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, "EUR_USD")

	_, err := e.fetchMarketData(context.Background())
	require.NoError(t, err)

	mock.FailNext("pricing", true)
	market, err := e.fetchMarketData(context.Background())
	require.NoError(t, err)
	assert.Contains(t, market, "EUR_USD")
}

func TestExecuteTradeShortSide(t *testing.T) {
	e, _, store, _ := newTestEngine(t, "EUR_USD")

	md := marketData{price: broker.Price{Instrument: "EUR_USD", Bid: 1.0999, Ask: 1.1001}}
	report, err := e.executeTrade(context.Background(), "EUR_USD", md, -0.5)
	require.NoError(t, err)
	assert.Contains(t, report, "SELL")

	snap := store.Snapshot()
	require.NotNil(t, snap.LastTrade)
	assert.Negative(t, snap.LastTrade.Units)
	assert.Equal(t, "SELL", snap.LastTrade.Direction)
	// Short: the stop sits above the bid entry, the target below.
	assert.Greater(t, snap.LastTrade.StopLoss, 1.0999)
	assert.Less(t, snap.LastTrade.TakeProfit, 1.0999)
}

func TestExecuteTradeZeroSize(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, "EUR_USD")
	e.cfg.UnitScaling = 1
	mock.SetBalance(1)

	md := marketData{price: broker.Price{Instrument: "EUR_USD", Bid: 1.0999, Ask: 1.1001}}
	_, err := e.executeTrade(context.Background(), "EUR_USD", md, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position size is zero")
}

func TestForceTrade(t *testing.T) {
	e, _, store, _ := newTestEngine(t, "EUR_USD")

	result := e.ForceTrade(context.Background())
	assert.Contains(t, result, "Forced trade: Trade executed:")
	assert.NotNil(t, store.Snapshot().LastTrade)
}

func TestForceTradeReportsGatewayFailure(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, "EUR_USD")
	mock.FailNext("pricing", true)

	result := e.ForceTrade(context.Background())
	assert.Contains(t, result, "Forced trade failed")
}

func TestTechnicalScoreNeutralWithoutHistory(t *testing.T) {
	assert.Equal(t, 0.5, technicalScore(nil))
	assert.Equal(t, 0.5, technicalScore(risingCloses(1.1, 19)))
}

func TestSessionScore(t *testing.T) {
	day := func(hour int) time.Time {
		return time.Date(2025, 3, 4, hour, 30, 0, 0, time.UTC)
	}
	assert.Equal(t, 0.9, sessionScore(day(13)))
	assert.Equal(t, 0.9, sessionScore(day(16)))
	assert.Equal(t, 0.7, sessionScore(day(8)))
	assert.Equal(t, 0.7, sessionScore(day(21)))
	assert.Equal(t, 0.3, sessionScore(day(3)))
	assert.Equal(t, 0.3, sessionScore(day(23)))
}

func risingCloses(start float64, n int) []float64 {
	closes := make([]float64, n)
	price := start
	for i := range closes {
		price += start * 0.0001
		closes[i] = price
	}
	return closes
}
