// trader/reports.go
package trader

import (
	"context"
	"fmt"
	"strings"

	"fx_sentinel_go/state"
)

// Expected return targets used by the P&L estimates. Placeholder figures
// carried over from the strategy this replaces.
const (
	expectedDailyReturn = 0.005
	tradingDaysPerWeek  = 5
)

// EstimateDailyProfit projects end-of-day profit from the current capital.
func (e *Engine) EstimateDailyProfit(capital float64) float64 {
	return capital * expectedDailyReturn
}

// EstimateWeeklyProfit projects end-of-week profit from the current capital.
func (e *Engine) EstimateWeeklyProfit(capital float64) float64 {
	return e.EstimateDailyProfit(capital) * tradingDaysPerWeek
}

// StrategySummary describes the active strategy parameters for the
// operator's start confirmation.
func (e *Engine) StrategySummary() string {
	return fmt.Sprintf(`Trading strategy summary:
- Instruments: %d pairs (%s)
- Max risk/trade: %.1f%%
- Max open trades: %d
- Max spread: %.1f pips
- Analysis: technical (50%%) + sentiment (30%%) + session (20%%)
- Timeframe: %s candles
- Stop loss: %.0f%% | Take profit: %.0f%%`,
		len(e.cfg.Instruments), strings.Join(e.cfg.Instruments, ", "),
		e.riskCfg.MaxRiskPerTrade*100,
		e.riskCfg.MaxOpenTrades,
		e.cfg.MaxSpread*10000,
		e.cfg.CandleGranularity,
		e.cfg.StopLossPercent*100, e.cfg.TakeProfitPercent*100)
}

// StatusSummary renders the operator status report from a state snapshot.
func (e *Engine) StatusSummary(s state.BotState) string {
	mode := string(s.Mode)
	recovery := "NO"
	if s.Recovery {
		recovery = "YES"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", mode)
	fmt.Fprintf(&b, "Daily P&L: %.2f\n", s.DailyPnL)
	fmt.Fprintf(&b, "Weekly P&L: %.2f\n", s.WeeklyPnL)
	fmt.Fprintf(&b, "Capital: %.2f\n", s.TotalCapital)
	fmt.Fprintf(&b, "Trades recorded: %d\n", len(s.Trades))
	fmt.Fprintf(&b, "Recovery mode: %s\n", recovery)

	if s.LastTrade != nil {
		t := s.LastTrade
		fmt.Fprintf(&b, "Last trade: %s %d units of %s at %.5f\n",
			t.Direction, abs(t.Units), t.Instrument, t.Price)
	} else {
		b.WriteString("Last trade: none\n")
	}

	fmt.Fprintf(&b, "Est. EOD: %.2f\n", e.EstimateDailyProfit(s.TotalCapital))
	fmt.Fprintf(&b, "Est. EOW: %.2f", e.EstimateWeeklyProfit(s.TotalCapital))
	return b.String()
}

// Diagnostics probes the gateway and summarizes system health for the
// operator.
func (e *Engine) Diagnostics(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("System diagnostics:\n")

	account, err := e.client.GetAccount(ctx)
	if err != nil {
		fmt.Fprintf(&b, "FAIL gateway: %v\n", err)
	} else {
		b.WriteString("OK   gateway: connected\n")
		fmt.Fprintf(&b, "OK   account balance: %.2f %s\n", account.Balance, account.Currency)
		fmt.Fprintf(&b, "OK   open trades: %d\n", account.OpenTradeCount)
	}

	if e.journal != nil {
		recent, err := e.journal.RecentTrades(10)
		if err != nil {
			fmt.Fprintf(&b, "FAIL journal: %v\n", err)
		} else {
			fmt.Fprintf(&b, "OK   journal: %d recent trades\n", len(recent))
		}
	} else {
		b.WriteString("WARN journal: disabled\n")
	}

	fmt.Fprintf(&b, "OK   instruments: %d configured\n", len(e.cfg.Instruments))

	s := e.store.Snapshot()
	fmt.Fprintf(&b, "OK   state: mode=%s, %d trades recorded", s.Mode, len(s.Trades))
	return b.String()
}
