// command/processor.go
package command

import (
	"context"
	"fmt"

	"fx_sentinel_go/logs"
	"fx_sentinel_go/metrics"
	"fx_sentinel_go/notify"
	"fx_sentinel_go/state"
)

// TradeEngine is the slice of the decision engine the processor drives.
type TradeEngine interface {
	ForceTrade(ctx context.Context) string
	Diagnostics(ctx context.Context) string
	StrategySummary() string
	StatusSummary(s state.BotState) string
	EstimateDailyProfit(capital float64) float64
	EstimateWeeklyProfit(capital float64) float64
}

const helpText = `Available commands:
start       - start the trading loop
stop        - stop the trading loop
status      - current mode, P&L and open trades
daily       - today's P&L and end-of-day estimate
weekly      - this week's P&L and end-of-week estimate
maketrade   - force a trade now
diagnostics - gateway connectivity and system checks
help        - this message`

// Processor drains operator commands one at a time from a FIFO queue.
// Commands are never handled concurrently with each other; state mutations
// go through the store (which persists before Reply is sent), satisfying
// the save-then-notify ordering.
type Processor struct {
	store   *state.Store
	channel notify.Channel
	engine  TradeEngine
	queue   chan string
}

// NewProcessor builds a processor with the given queue capacity.
func NewProcessor(store *state.Store, channel notify.Channel, engine TradeEngine, queueSize int) *Processor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Processor{
		store:   store,
		channel: channel,
		engine:  engine,
		queue:   make(chan string, queueSize),
	}
}

// Queue is the write side of the command FIFO, fed by the listener.
func (p *Processor) Queue() chan<- string {
	return p.queue
}

// Run consumes commands until ctx is cancelled. Each command produces
// exactly one outbound message before the next one is dequeued. Errors in
// a handler are logged and reported; the loop itself never exits on error.
func (p *Processor) Run(ctx context.Context) {
	logs.Info("[Commands] Processor started.")
	for {
		select {
		case <-ctx.Done():
			logs.Info("[Commands] Processor stopped.")
			return
		case raw := <-p.queue:
			p.handle(ctx, raw)
		}
	}
}

func (p *Processor) handle(ctx context.Context, raw string) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Commands] Panic handling %q: %v", raw, r)
			p.reply(fmt.Sprintf("Command failed: internal error (%v).", r))
		}
	}()

	cmd := Parse(raw)
	logs.Infof("[Commands] Handling %q -> %s", raw, cmd)
	metrics.Commands.WithLabelValues(cmd.String()).Inc()

	switch cmd {
	case Start:
		p.handleStart()
	case Stop:
		p.handleStop()
	case Status:
		p.reply(p.engine.StatusSummary(p.store.Snapshot()))
	case Daily:
		s := p.store.Snapshot()
		p.reply(fmt.Sprintf("Today's P&L: %.2f\nExpected EOD: %.2f",
			s.DailyPnL, p.engine.EstimateDailyProfit(s.TotalCapital)))
	case Weekly:
		s := p.store.Snapshot()
		p.reply(fmt.Sprintf("This week's P&L: %.2f\nExpected EOW: %.2f",
			s.WeeklyPnL, p.engine.EstimateWeeklyProfit(s.TotalCapital)))
	case MakeTrade:
		// The engine does its own locking per fetch; the state lock is
		// never held across its network calls.
		p.reply(p.engine.ForceTrade(ctx))
	case Diagnostics:
		p.reply(p.engine.Diagnostics(ctx))
	case Help:
		p.reply(helpText)
	default:
		p.reply("I didn't understand that. Use help for available commands.")
	}
}

func (p *Processor) handleStart() {
	switch p.store.Mode() {
	case state.Halted:
		p.reply("Bot is halted by the capital protection limit and cannot be restarted.")
		return
	case state.Running:
		p.reply("Bot already running.")
		return
	}

	if err := p.store.Update(func(s *state.BotState) {
		s.Mode = state.Running
	}); err != nil {
		p.reply(fmt.Sprintf("Failed to persist state: %v", err))
		return
	}
	p.reply("Bot started.\nStrategy today:\n" + p.engine.StrategySummary())
}

func (p *Processor) handleStop() {
	switch p.store.Mode() {
	case state.Halted:
		p.reply("Bot is halted; nothing to stop.")
		return
	case state.Stopped, state.Recovery:
		p.reply("Bot already stopped.")
		return
	}

	if err := p.store.Update(func(s *state.BotState) {
		s.Mode = state.Stopped
	}); err != nil {
		p.reply(fmt.Sprintf("Failed to persist state: %v", err))
		return
	}
	p.reply("Bot stopped.\nCheck logs for issues if any.")
}

func (p *Processor) reply(text string) {
	if err := p.channel.Send(text); err != nil {
		logs.Errorf("[Commands] Failed to send reply: %v", err)
	}
}
