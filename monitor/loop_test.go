package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx_sentinel_go/journal"
	"fx_sentinel_go/risk"
	"fx_sentinel_go/state"
)

type fakeEngine struct {
	mu         sync.Mutex
	calls      int
	gotSignals map[string]float64
	report     string
	err        error
}

func (e *fakeEngine) AnalyzeAndTrade(ctx context.Context, signals map[string]float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.gotSignals = signals
	return e.report, e.err
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeSource struct {
	signals map[string]float64
	err     error
}

func (s *fakeSource) Fetch(ctx context.Context) (map[string]float64, error) {
	return s.signals, s.err
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []string
}

func (c *fakeChannel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Listen(ctx context.Context, out chan<- string) {
	<-ctx.Done()
}

func (c *fakeChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeJournal struct {
	mu     sync.Mutex
	equity []journal.EquitySnapshot
}

func (j *fakeJournal) RecordTrade(journal.TradeEntry) error { return nil }
func (j *fakeJournal) RecordEquity(s journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, s)
	return nil
}
func (j *fakeJournal) RecentTrades(limit int) ([]journal.TradeEntry, error) { return nil, nil }
func (j *fakeJournal) Close() error                                         { return nil }

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *exitRecorder) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *exitRecorder) called() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes
}

// Tuesday 2025-03-04 14:00 UTC, ISO week 10.
var tickTime = time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)

type loopFixture struct {
	loop    *Loop
	store   *state.Store
	engine  *fakeEngine
	channel *fakeChannel
	jrnl    *fakeJournal
	exits   *exitRecorder
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	f := &loopFixture{
		store:   state.NewStore(filepath.Join(t.TempDir(), "state.json"), 10000),
		engine:  &fakeEngine{},
		channel: &fakeChannel{},
		jrnl:    &fakeJournal{},
		exits:   &exitRecorder{},
	}
	f.loop = New(f.store, f.engine, &fakeSource{signals: map[string]float64{}}, f.channel, f.jrnl,
		risk.Limits{MaxDailyLossPercent: 20, MaxCapitalLossPercent: 70},
		Config{
			ScanInterval: 30 * time.Second,
			IdlePoll:     time.Millisecond,
			ErrorBackoff: 5 * time.Second,
		},
		f.exits.exit,
	)
	f.loop.nowFn = func() time.Time { return tickTime }

	// Anchor LastReset on the tick day so individual tests opt in to
	// rollover behavior explicitly.
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.Mode = state.Running
		s.LastReset = tickTime.Add(-time.Hour)
	}))
	return f
}

func TestDailyResetFiresOncePerDay(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.LastReset = tickTime.AddDate(0, 0, -1) // Monday, same ISO week
		s.DailyPnL = -150
		s.WeeklyPnL = -400
		s.Recovery = true
		s.TotalCapital = 9500
		s.DayStartCapital = 9650
	}))

	f.loop.Tick(context.Background())

	snap := f.store.Snapshot()
	assert.Equal(t, 0.0, snap.DailyPnL)
	assert.False(t, snap.Recovery)
	assert.Equal(t, 9500.0, snap.DayStartCapital)
	assert.True(t, snap.LastReset.Equal(tickTime))
	// Same ISO week, so the weekly counter survives the daily rollover.
	assert.Equal(t, -400.0, snap.WeeklyPnL)

	// A later tick on the same day must not reset again.
	require.NoError(t, f.store.Update(func(s *state.BotState) { s.DailyPnL = -10 }))
	f.loop.Tick(context.Background())
	assert.Equal(t, -10.0, f.store.Snapshot().DailyPnL)
}

func TestWeeklyResetOnISOWeekChange(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.LastReset = time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC) // Sunday, ISO week 9
		s.WeeklyPnL = -400
		s.TotalCapital = 9600
	}))

	f.loop.Tick(context.Background())

	snap := f.store.Snapshot()
	assert.Equal(t, 0.0, snap.WeeklyPnL)
	assert.Equal(t, 9600.0, snap.WeekStartCapital)
}

func TestDailyBreachStopsIntoRecovery(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.DailyPnL = -2500
	}))

	f.loop.Tick(context.Background())

	snap := f.store.Snapshot()
	assert.Equal(t, state.Stopped, snap.Mode)
	assert.True(t, snap.Recovery)
	assert.Empty(t, f.exits.called())

	msgs := f.channel.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "Daily loss limit reached")
}

func TestCapitalBreachHaltsAndExits(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.TotalCapital = 2500
	}))

	f.loop.Tick(context.Background())

	assert.Equal(t, state.Halted, f.store.Mode())
	assert.Equal(t, []int{1}, f.exits.called())

	msgs := f.channel.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "Hard capital loss limit")
}

// Once halted, Run idles and the engine is never driven again.
func TestHaltedLoopDoesNotResume(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.Mode = state.Halted
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f.loop.Run(ctx)

	assert.Zero(t, f.engine.callCount())
	assert.Equal(t, state.Halted, f.store.Mode())
}

func TestEngineErrorBacksOff(t *testing.T) {
	f := newLoopFixture(t)
	f.engine.err = errors.New("gateway unreachable")

	sleep := f.loop.Tick(context.Background())

	assert.Equal(t, 5*time.Second, sleep)
	msgs := f.channel.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Trading analysis error: gateway unreachable")
}

func TestTradeReportForwarded(t *testing.T) {
	f := newLoopFixture(t)
	f.engine.report = "Trade executed: BUY 100 units of EUR_USD at 1.10010"

	sleep := f.loop.Tick(context.Background())

	assert.Equal(t, 30*time.Second, sleep)
	require.NotEmpty(t, f.channel.messages())
	assert.Equal(t, f.engine.report, f.channel.messages()[0])
}

func TestSentimentFailureDegradesToZeroSignals(t *testing.T) {
	f := newLoopFixture(t)
	f.loop.source = &fakeSource{err: errors.New("scrape failed")}

	sleep := f.loop.Tick(context.Background())

	assert.Equal(t, 30*time.Second, sleep)
	assert.Equal(t, 1, f.engine.callCount())
	assert.Empty(t, f.engine.gotSignals)
}

func TestEquitySnapshotJournaled(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.TotalCapital = 9800
		s.DailyPnL = -200
	}))

	f.loop.Tick(context.Background())

	require.Len(t, f.jrnl.equity, 1)
	assert.Equal(t, 9800.0, f.jrnl.equity[0].Balance)
	assert.Equal(t, -200.0, f.jrnl.equity[0].DailyPnL)
}

func TestIdleLoopSkipsEngine(t *testing.T) {
	f := newLoopFixture(t)
	require.NoError(t, f.store.Update(func(s *state.BotState) {
		s.Mode = state.Stopped
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f.loop.Run(ctx)

	assert.Zero(t, f.engine.callCount())
}
