// broker/broker.go
package broker

import (
	"context"
	"time"
)

// Account is the subset of the account summary the bot cares about.
type Account struct {
	ID             string
	Balance        float64
	Currency       string
	OpenTradeCount int
}

// OpenTrade is a currently open position at the gateway.
type OpenTrade struct {
	ID           string
	Instrument   string
	Units        float64
	Price        float64
	UnrealizedPL float64
}

// Price is a live two-sided quote for one instrument.
type Price struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

// Spread returns the ask/bid distance in price units.
func (p Price) Spread() float64 {
	return p.Ask - p.Bid
}

// Candle is one OHLC bar of mid prices.
type Candle struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int
	Complete bool
}

// OrderRequest describes a market order. Units is signed: positive opens a
// long, negative a short. StopLoss/TakeProfit of zero omit the fill trigger.
type OrderRequest struct {
	Instrument string
	Units      int
	StopLoss   float64
	TakeProfit float64
}

// OrderResult is the fill confirmation for a placed market order.
type OrderResult struct {
	TradeID    string
	Instrument string
	Units      int
	Price      float64
}

// Client is the Broker Gateway contract. Implementations must be safe for
// concurrent use; both the control loop and the command processor call it.
type Client interface {
	// GetAccount fetches the account summary (balance, open trade count).
	GetAccount(ctx context.Context) (*Account, error)

	// OpenTrades lists all currently open trades.
	OpenTrades(ctx context.Context) ([]OpenTrade, error)

	// Pricing returns the latest quotes for the given instruments, keyed
	// by instrument. Instruments with no quote are absent from the map.
	Pricing(ctx context.Context, instruments []string) (map[string]Price, error)

	// Candles returns up to count historical bars for one instrument.
	Candles(ctx context.Context, instrument string, count int, granularity string) ([]Candle, error)

	// CreateMarketOrder submits a market order and returns the fill.
	CreateMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// Ping verifies connectivity to the gateway.
	Ping(ctx context.Context) error
}
