// monitor/loop.go
package monitor

import (
	"context"
	"time"

	"fx_sentinel_go/journal"
	"fx_sentinel_go/logs"
	"fx_sentinel_go/metrics"
	"fx_sentinel_go/notify"
	"fx_sentinel_go/risk"
	"fx_sentinel_go/sentiment"
	"fx_sentinel_go/state"
)

// Engine is the slice of the decision engine the loop drives each tick.
type Engine interface {
	AnalyzeAndTrade(ctx context.Context, sentiment map[string]float64) (string, error)
}

// Loop is the periodic scheduler: it gates on the running mode, fires the
// day/week rollover reset, drives the decision engine, enforces the risk
// limits and persists state at the end of every tick.
type Loop struct {
	store   *state.Store
	engine  Engine
	source  sentiment.Source
	channel notify.Channel
	jrnl    journal.Journal
	limits  risk.Limits

	scanInterval      time.Duration
	idlePoll          time.Duration
	errorBackoff      time.Duration
	heartbeatInterval time.Duration

	// nowFn and exitFn are injectable for tests; exitFn terminates the
	// process on the capital-breach path.
	nowFn  func() time.Time
	exitFn func(code int)

	lastHeartbeat time.Time
}

// Config carries the loop intervals.
type Config struct {
	ScanInterval      time.Duration
	IdlePoll          time.Duration
	ErrorBackoff      time.Duration
	HeartbeatInterval time.Duration
}

// New builds the control loop. jrnl may be nil.
func New(store *state.Store, engine Engine, source sentiment.Source, channel notify.Channel, jrnl journal.Journal, limits risk.Limits, cfg Config, exitFn func(int)) *Loop {
	return &Loop{
		store:             store,
		engine:            engine,
		source:            source,
		channel:           channel,
		jrnl:              jrnl,
		limits:            limits,
		scanInterval:      cfg.ScanInterval,
		idlePoll:          cfg.IdlePoll,
		errorBackoff:      cfg.ErrorBackoff,
		heartbeatInterval: cfg.HeartbeatInterval,
		nowFn:             time.Now,
		exitFn:            exitFn,
	}
}

// Run executes ticks until ctx is cancelled. The loop itself never exits
// on error; only the capital-breach path ends the process, via exitFn.
func (l *Loop) Run(ctx context.Context) {
	logs.Info("[Loop] Trading loop started.")
	l.lastHeartbeat = l.nowFn()

	for {
		var sleep time.Duration
		if l.store.Mode() != state.Running {
			metrics.Ticks.WithLabelValues("idle").Inc()
			sleep = l.idlePoll
		} else {
			sleep = l.Tick(ctx)
		}

		select {
		case <-ctx.Done():
			logs.Info("[Loop] Trading loop stopped.")
			return
		case <-time.After(sleep):
		}
	}
}

// Tick runs one active cycle and returns how long to sleep before the
// next one. Exported for the loop tests; Run is the production driver.
func (l *Loop) Tick(ctx context.Context) (sleep time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Loop] Panic in tick: %v", r)
			metrics.Ticks.WithLabelValues("error").Inc()
			sleep = l.errorBackoff
		}
	}()

	l.resetIfRollover()

	signals, err := l.source.Fetch(ctx)
	if err != nil {
		// An unavailable sentiment source degrades to all-zero signals.
		logs.Errorf("[Loop] Sentiment fetch failed: %v", err)
		signals = map[string]float64{}
	}

	report, err := l.engine.AnalyzeAndTrade(ctx, signals)
	if err != nil {
		logs.Errorf("[Loop] Decision cycle failed: %v", err)
		l.send("Trading analysis error: " + err.Error())
		metrics.Ticks.WithLabelValues("error").Inc()
		return l.errorBackoff
	}
	if report != "" {
		l.send(report)
	}

	l.enforceRiskLimits()

	// Persist unconditionally at end of tick; idempotent when nothing
	// changed.
	if err := l.store.Save(); err != nil {
		logs.Errorf("[Loop] End-of-tick persist failed: %v", err)
	}

	snap := l.store.Snapshot()
	if l.jrnl != nil {
		if err := l.jrnl.RecordEquity(journal.EquitySnapshot{
			Time:     l.nowFn().UTC(),
			Balance:  snap.TotalCapital,
			DailyPnL: snap.DailyPnL,
		}); err != nil {
			logs.Errorf("[Loop] Failed to journal equity snapshot: %v", err)
		}
	}

	if l.heartbeatInterval > 0 && l.nowFn().Sub(l.lastHeartbeat) >= l.heartbeatInterval {
		logs.Infof("[Loop] Heartbeat: mode=%s capital=%.2f dailyPnL=%.2f trades=%d",
			snap.Mode, snap.TotalCapital, snap.DailyPnL, len(snap.Trades))
		l.lastHeartbeat = l.nowFn()
	}

	metrics.Ticks.WithLabelValues("active").Inc()
	return l.scanInterval
}

// resetIfRollover fires the daily (and ISO-week) counters reset once per
// boundary. DailyPnL and LastReset move together inside a single Update so
// they can never be observed half-applied.
func (l *Loop) resetIfRollover() {
	now := l.nowFn().UTC()
	var dayReset, weekReset bool

	if err := l.store.Update(func(s *state.BotState) {
		last := s.LastReset.UTC()
		if now.Year() != last.Year() || now.YearDay() != last.YearDay() {
			s.DailyPnL = 0
			s.Recovery = false
			s.DayStartCapital = s.TotalCapital
			s.LastReset = now
			dayReset = true
		}
		lastYear, lastWeek := last.ISOWeek()
		nowYear, nowWeek := now.ISOWeek()
		if nowYear != lastYear || nowWeek != lastWeek {
			s.WeeklyPnL = 0
			s.WeekStartCapital = s.TotalCapital
			weekReset = true
		}
	}); err != nil {
		logs.Errorf("[Loop] Failed to persist rollover reset: %v", err)
	}

	if dayReset {
		logs.Info("[Loop] Daily counters reset for the new day.")
	}
	if weekReset {
		logs.Info("[Loop] Weekly counters reset for the new week.")
	}
}

// enforceRiskLimits applies the risk policy to a consistent snapshot. A
// daily breach stops the bot into recovery; a capital breach halts it and
// terminates the process. Capital protection overrides availability.
func (l *Loop) enforceRiskLimits() {
	snap := l.store.Snapshot()
	outcomes := risk.Evaluate(snap, l.limits)

	if risk.Breached(outcomes, risk.CapitalLimitBreached) {
		logs.Errorf("[Loop] Capital loss beyond %.0f%% of initial capital. Halting permanently.", l.limits.MaxCapitalLossPercent)
		metrics.RiskBreaches.WithLabelValues("capital").Inc()
		if err := l.store.Update(func(s *state.BotState) {
			s.Mode = state.Halted
		}); err != nil {
			logs.Errorf("[Loop] Failed to persist halt: %v", err)
		}
		l.send(risk.CapitalLimitBreached.Description())
		l.exitFn(1)
		return
	}

	if risk.Breached(outcomes, risk.DailyLimitBreached) && snap.Mode == state.Running {
		logs.Warnf("[Loop] Max daily loss reached, stopping bot for the day.")
		metrics.RiskBreaches.WithLabelValues("daily").Inc()
		if err := l.store.Update(func(s *state.BotState) {
			s.Mode = state.Stopped
			s.Recovery = true
		}); err != nil {
			logs.Errorf("[Loop] Failed to persist daily stop: %v", err)
		}
		l.send(risk.DailyLimitBreached.Description())
	}
}

func (l *Loop) send(text string) {
	if err := l.channel.Send(text); err != nil {
		logs.Errorf("[Loop] Failed to send message: %v", err)
	}
}
