// journal/journal.go
package journal

import "time"

// TradeEntry is one executed order, mirrored out of the persisted state
// into the audit journal.
type TradeEntry struct {
	TradeID    string
	Instrument string
	Units      int
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Direction  string
	Sentiment  float64
	Time       time.Time
}

// EquitySnapshot is the account balance observed on one control-loop tick.
type EquitySnapshot struct {
	Time     time.Time
	Balance  float64
	DailyPnL float64
}

// Journal is the append-only audit trail of trades and equity.
type Journal interface {
	RecordTrade(TradeEntry) error
	RecordEquity(EquitySnapshot) error
	RecentTrades(limit int) ([]TradeEntry, error)
	Close() error
}
