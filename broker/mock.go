// broker/mock.go
package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// Ensure MockClient implements the Client interface.
var _ Client = (*MockClient)(nil)

// MockClient simulates the gateway for simulation mode and tests: a
// random-walk price per instrument, immediate market-order fills, and
// stop-loss/take-profit settlement that realizes P&L into the balance.
type MockClient struct {
	mu           sync.RWMutex
	balance      float64
	currency     string
	prices       map[string]Price
	candles      map[string][]Candle
	positions    []mockPosition
	closedTrades []OpenTrade
	nextTradeID  int
	rng          *rand.Rand
	stopChan     chan struct{}
	stopOnce     sync.Once

	// Fault injection hooks for tests.
	failAccount bool
	failPricing bool
	failOrders  bool
}

// mockPosition is an open trade plus the fill triggers the simulator
// settles against.
type mockPosition struct {
	trade      OpenTrade
	stopLoss   float64
	takeProfit float64
}

// NewMockClient creates a simulator seeded with flat mid prices for the
// given instruments.
func NewMockClient(instruments []string, balance float64) *MockClient {
	mc := &MockClient{
		balance:     balance,
		currency:    "GBP",
		prices:      make(map[string]Price),
		candles:     make(map[string][]Candle),
		nextTradeID: 1,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan:    make(chan struct{}),
	}
	now := time.Now().UTC()
	for i, instr := range instruments {
		mid := 1.1 + 0.05*float64(i)
		mc.prices[instr] = Price{Instrument: instr, Bid: mid - 0.0001, Ask: mid + 0.0001, Time: now}
		mc.candles[instr] = syntheticCandles(mid, 50, now)
	}
	return mc
}

// syntheticCandles builds a gently trending series so the technical
// indicators have something to chew on.
func syntheticCandles(mid float64, count int, end time.Time) []Candle {
	candles := make([]Candle, 0, count)
	price := mid * 0.995
	step := mid * 0.0001
	for i := 0; i < count; i++ {
		price += step
		candles = append(candles, Candle{
			Time:     end.Add(-time.Duration(count-i) * 15 * time.Minute),
			Open:     price - step/2,
			High:     price + step,
			Low:      price - step,
			Close:    price,
			Volume:   100 + i,
			Complete: true,
		})
	}
	return candles
}

// Start launches the random-walk price simulator. Stop halts it.
func (c *MockClient) Start() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.walkPrices()
			}
		}
	}()
}

// Stop halts the price simulator.
func (c *MockClient) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *MockClient) walkPrices() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	for instr, p := range c.prices {
		mid := (p.Bid + p.Ask) / 2
		mid += mid * (c.rng.Float64() - 0.5) * 0.0004
		half := p.Spread() / 2
		c.prices[instr] = Price{Instrument: instr, Bid: mid - half, Ask: mid + half, Time: now}
	}
	c.settleLocked()
}

// settleLocked closes every position whose stop-loss or take-profit the
// current quote has crossed, realizing the P&L into the balance. Longs
// settle against the bid, shorts against the ask. Callers must hold c.mu.
func (c *MockClient) settleLocked() {
	remaining := c.positions[:0]
	for _, pos := range c.positions {
		p, ok := c.prices[pos.trade.Instrument]
		if !ok {
			remaining = append(remaining, pos)
			continue
		}

		exit := 0.0
		if pos.trade.Units > 0 {
			switch {
			case pos.stopLoss > 0 && p.Bid <= pos.stopLoss:
				exit = pos.stopLoss
			case pos.takeProfit > 0 && p.Bid >= pos.takeProfit:
				exit = pos.takeProfit
			}
		} else {
			switch {
			case pos.stopLoss > 0 && p.Ask >= pos.stopLoss:
				exit = pos.stopLoss
			case pos.takeProfit > 0 && p.Ask <= pos.takeProfit:
				exit = pos.takeProfit
			}
		}
		if exit == 0 {
			remaining = append(remaining, pos)
			continue
		}

		pnl := (exit - pos.trade.Price) * pos.trade.Units
		c.balance += pnl

		closed := pos.trade
		closed.Price = exit
		closed.UnrealizedPL = 0
		c.closedTrades = append(c.closedTrades, closed)
	}
	c.positions = remaining
}

// SetPrice overrides the quote for one instrument (test hook). Like the
// price walker, the new quote settles any crossed fill triggers.
func (c *MockClient) SetPrice(instrument string, bid, ask float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[instrument] = Price{Instrument: instrument, Bid: bid, Ask: ask, Time: time.Now().UTC()}
	c.settleLocked()
}

// SetCandles overrides the candle history for one instrument (test hook).
func (c *MockClient) SetCandles(instrument string, candles []Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles[instrument] = candles
}

// SetBalance overrides the simulated account balance (test hook).
func (c *MockClient) SetBalance(balance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = balance
}

// FailNext toggles fault injection for the named call family:
// "account", "pricing" or "orders".
func (c *MockClient) FailNext(call string, fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch call {
	case "account":
		c.failAccount = fail
	case "pricing":
		c.failPricing = fail
	case "orders":
		c.failOrders = fail
	}
}

func (c *MockClient) GetAccount(ctx context.Context) (*Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.failAccount {
		return nil, fmt.Errorf("mock gateway: account endpoint unavailable")
	}
	return &Account{
		ID:             "mock-account",
		Balance:        c.balance,
		Currency:       c.currency,
		OpenTradeCount: len(c.positions),
	}, nil
}

func (c *MockClient) OpenTrades(ctx context.Context) ([]OpenTrade, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.failAccount {
		return nil, fmt.Errorf("mock gateway: trades endpoint unavailable")
	}
	out := make([]OpenTrade, 0, len(c.positions))
	for _, pos := range c.positions {
		out = append(out, pos.trade)
	}
	return out, nil
}

// ClosedTrades returns the positions the simulator has settled (test hook).
func (c *MockClient) ClosedTrades() []OpenTrade {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]OpenTrade, len(c.closedTrades))
	copy(out, c.closedTrades)
	return out
}

func (c *MockClient) Pricing(ctx context.Context, instruments []string) (map[string]Price, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.failPricing {
		return nil, fmt.Errorf("mock gateway: pricing endpoint unavailable")
	}
	out := make(map[string]Price, len(instruments))
	for _, instr := range instruments {
		if p, ok := c.prices[instr]; ok {
			out[instr] = p
		}
	}
	return out, nil
}

func (c *MockClient) Candles(ctx context.Context, instrument string, count int, granularity string) ([]Candle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.failPricing {
		return nil, fmt.Errorf("mock gateway: candles endpoint unavailable")
	}
	candles, ok := c.candles[instrument]
	if !ok {
		return nil, fmt.Errorf("mock gateway: unknown instrument %s", instrument)
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (c *MockClient) CreateMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOrders {
		return nil, fmt.Errorf("mock gateway: order endpoint unavailable")
	}
	p, ok := c.prices[req.Instrument]
	if !ok {
		return nil, fmt.Errorf("mock gateway: no price for %s", req.Instrument)
	}

	fill := p.Ask
	if req.Units < 0 {
		fill = p.Bid
	}

	tradeID := strconv.Itoa(c.nextTradeID)
	c.nextTradeID++
	c.positions = append(c.positions, mockPosition{
		trade: OpenTrade{
			ID:         tradeID,
			Instrument: req.Instrument,
			Units:      float64(req.Units),
			Price:      fill,
		},
		stopLoss:   req.StopLoss,
		takeProfit: req.TakeProfit,
	})

	return &OrderResult{
		TradeID:    tradeID,
		Instrument: req.Instrument,
		Units:      req.Units,
		Price:      math.Round(fill*1e5) / 1e5,
	}, nil
}

func (c *MockClient) Ping(ctx context.Context) error {
	_, err := c.GetAccount(ctx)
	return err
}
