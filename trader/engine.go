// trader/engine.go
package trader

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"fx_sentinel_go/broker"
	"fx_sentinel_go/config"
	"fx_sentinel_go/journal"
	"fx_sentinel_go/logs"
	"fx_sentinel_go/metrics"
	"fx_sentinel_go/state"
	"fx_sentinel_go/utils"

	"github.com/google/uuid"
)

// marketData is one instrument's snapshot for a single decision cycle.
type marketData struct {
	price  broker.Price
	closes []float64
}

// Engine scores the watchlist each cycle and executes at most one trade.
// It holds no position state of its own; executed trades land in the
// persisted state and the journal.
type Engine struct {
	client  broker.Client
	store   *state.Store
	journal journal.Journal
	cfg     *config.TradingConfig
	riskCfg *config.RiskConfig

	nowFn func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	cacheMu   sync.Mutex
	cache     map[string]marketData
	lastFetch time.Time
}

// NewEngine builds the decision engine. jrnl may be nil when the journal
// could not be opened; trades are then only persisted in the state file.
func NewEngine(client broker.Client, store *state.Store, jrnl journal.Journal, trading *config.TradingConfig, risk *config.RiskConfig) *Engine {
	return &Engine{
		client:  client,
		store:   store,
		journal: jrnl,
		cfg:     trading,
		riskCfg: risk,
		nowFn:   time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AnalyzeAndTrade runs one full decision cycle: account, capacity check,
// market data, scoring, execution. It returns a non-empty report only when
// a trade was executed; a fetch failure aborts the cycle with an error and
// the next scheduled tick retries naturally.
func (e *Engine) AnalyzeAndTrade(ctx context.Context, sentiment map[string]float64) (string, error) {
	account, err := e.client.GetAccount(ctx)
	if err != nil {
		metrics.Decisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("could not fetch account information: %w", err)
	}

	// The gateway balance is the live capital figure the risk policy
	// evaluates against; persist it before anything can report it.
	if err := e.store.Update(func(s *state.BotState) {
		s.TotalCapital = account.Balance
		s.DailyPnL = account.Balance - s.DayStartCapital
		s.WeeklyPnL = account.Balance - s.WeekStartCapital
	}); err != nil {
		logs.Errorf("[Trader] Failed to persist capital refresh: %v", err)
	}
	metrics.Capital.Set(account.Balance)

	openTrades, err := e.client.OpenTrades(ctx)
	if err != nil {
		metrics.Decisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("could not fetch open trades: %w", err)
	}
	if len(openTrades) >= e.riskCfg.MaxOpenTrades {
		logs.Infof("[Trader] Max trades reached (%d/%d), skipping cycle.", len(openTrades), e.riskCfg.MaxOpenTrades)
		metrics.Decisions.WithLabelValues("no_opportunity").Inc()
		return "", nil
	}

	market, err := e.fetchMarketData(ctx)
	if err != nil {
		metrics.Decisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("could not fetch market data: %w", err)
	}

	best, found := e.selectBest(market, sentiment)
	if !found {
		logs.Debug("[Trader] No trading opportunities found.")
		metrics.Decisions.WithLabelValues("no_opportunity").Inc()
		return "", nil
	}

	report, err := e.executeTrade(ctx, best, market[best], sentiment[best])
	if err != nil {
		metrics.Decisions.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.Decisions.WithLabelValues("trade").Inc()
	return report, nil
}

// ForceTrade places an operator-requested trade on a random instrument
// with a randomized sentiment, bypassing the scoring gates.
func (e *Engine) ForceTrade(ctx context.Context) string {
	e.rngMu.Lock()
	instrument := e.cfg.Instruments[e.rng.Intn(len(e.cfg.Instruments))]
	sentiment := e.rng.Float64()*1.6 - 0.8
	e.rngMu.Unlock()

	market, err := e.fetchMarketData(ctx)
	if err != nil {
		return fmt.Sprintf("Forced trade failed: could not fetch market data: %v", err)
	}
	md, ok := market[instrument]
	if !ok {
		return fmt.Sprintf("Forced trade failed: no market data for %s", instrument)
	}

	report, err := e.executeTrade(ctx, instrument, md, sentiment)
	if err != nil {
		return fmt.Sprintf("Forced trade failed: %v", err)
	}
	return "Forced trade: " + report
}

// fetchMarketData returns quotes plus candle history for the watchlist,
// cached for the configured window so command-driven and scheduled cycles
// do not hammer the gateway.
func (e *Engine) fetchMarketData(ctx context.Context) (map[string]marketData, error) {
	e.cacheMu.Lock()
	if e.cache != nil && time.Since(e.lastFetch) < time.Duration(e.cfg.MarketCacheSeconds)*time.Second {
		cached := e.cache
		e.cacheMu.Unlock()
		return cached, nil
	}
	e.cacheMu.Unlock()

	prices, err := e.client.Pricing(ctx, e.cfg.Instruments)
	if err != nil {
		return nil, err
	}

	market := make(map[string]marketData, len(prices))
	for _, instr := range e.cfg.Instruments {
		price, ok := prices[instr]
		if !ok {
			continue
		}
		md := marketData{price: price}
		candles, err := e.client.Candles(ctx, instr, e.cfg.CandleCount, e.cfg.CandleGranularity)
		if err != nil {
			// Missing history only degrades the technical score.
			logs.Errorf("[Trader] Failed to get candles for %s: %v", instr, err)
		} else {
			for _, c := range candles {
				if c.Complete {
					md.closes = append(md.closes, c.Close)
				}
			}
		}
		market[instr] = md
	}

	e.cacheMu.Lock()
	e.cache = market
	e.lastFetch = time.Now()
	e.cacheMu.Unlock()
	return market, nil
}

// selectBest returns the highest-scoring instrument above the confidence
// threshold. Ties break on lower spread, then on watchlist order.
func (e *Engine) selectBest(market map[string]marketData, sentiment map[string]float64) (string, bool) {
	best := ""
	bestScore := 0.0
	bestSpread := math.MaxFloat64

	for _, instr := range e.cfg.Instruments {
		md, ok := market[instr]
		if !ok {
			continue
		}
		score := e.scoreInstrument(instr, md, sentiment[instr])
		if score <= e.cfg.ConfidenceThreshold {
			continue
		}
		spread := md.price.Spread()
		if score > bestScore+utils.Epsilon {
			best, bestScore, bestSpread = instr, score, spread
		} else if utils.FloatEquals(score, bestScore) && spread < bestSpread {
			best, bestSpread = instr, spread
		}
	}
	return best, best != ""
}

// executeTrade sizes, places and records one market order.
func (e *Engine) executeTrade(ctx context.Context, instrument string, md marketData, sentiment float64) (string, error) {
	account, err := e.client.GetAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("could not refresh balance before trade: %w", err)
	}

	direction := DecideDirection(sentiment)
	entry := md.price.Ask
	label := "BUY"
	if direction < 0 {
		entry = md.price.Bid
		label = "SELL"
	}
	if entry <= 0 {
		return "", fmt.Errorf("no usable price for %s", instrument)
	}

	riskAmount := account.Balance * e.riskCfg.MaxRiskPerTrade
	units := int(math.Floor(riskAmount / entry * e.cfg.UnitScaling))
	if units <= 0 {
		return "", fmt.Errorf("calculated position size is zero for %s", instrument)
	}
	units *= direction

	stopLoss := utils.RoundToPrecision(entry*(1-e.cfg.StopLossPercent*float64(direction)), 5)
	takeProfit := utils.RoundToPrecision(entry*(1+e.cfg.TakeProfitPercent*float64(direction)), 5)

	result, err := e.client.CreateMarketOrder(ctx, broker.OrderRequest{
		Instrument: instrument,
		Units:      units,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
	if err != nil {
		return "", fmt.Errorf("trade execution failed: %w", err)
	}

	record := state.TradeRecord{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Units:      units,
		Price:      result.Price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Direction:  label,
		Time:       e.nowFn().UTC(),
		Sentiment:  sentiment,
	}

	// Persist before the report leaves this function; callers send it to
	// the operator and the message must never outrun the state file.
	if err := e.store.Update(func(s *state.BotState) {
		s.AppendTrade(record)
	}); err != nil {
		logs.Errorf("[Trader] Failed to persist trade %s: %v", record.ID, err)
	}

	if e.journal != nil {
		if err := e.journal.RecordTrade(journal.TradeEntry{
			TradeID:    record.ID,
			Instrument: record.Instrument,
			Units:      record.Units,
			Price:      record.Price,
			StopLoss:   record.StopLoss,
			TakeProfit: record.TakeProfit,
			Direction:  record.Direction,
			Sentiment:  record.Sentiment,
			Time:       record.Time,
		}); err != nil {
			logs.Errorf("[Trader] Failed to journal trade %s: %v", record.ID, err)
		}
	}

	metrics.Orders.WithLabelValues(label).Inc()
	logs.Infof("[Trader] %s %d units of %s at %.5f (trade %s)", label, abs(units), instrument, result.Price, result.TradeID)
	return fmt.Sprintf("Trade executed: %s %d units of %s at %.5f", label, abs(units), instrument, result.Price), nil
}

// DecideDirection maps sentiment sign to trade direction: positive goes
// long, everything else (including exactly zero) goes short. The zero case
// mirrors the behavior of the system this replaces; see DESIGN.md.
func DecideDirection(sentiment float64) int {
	if sentiment > 0 {
		return 1
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
