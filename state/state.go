// state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"fx_sentinel_go/logs"
)

// Mode is the bot lifecycle state. Halted is terminal: once entered, the
// only permitted follow-up is a final flush and process exit.
type Mode string

const (
	Stopped Mode = "STOPPED"
	Running Mode = "RUNNING"
	// Recovery is never assigned here; a daily breach is recorded as
	// Stopped plus the Recovery flag. The value is kept so state files
	// written by the predecessor system still load and restart cleanly.
	Recovery Mode = "RECOVERY"
	Halted   Mode = "HALTED"
)

// TradeRecord is one executed order. Records are immutable once appended
// and owned exclusively by BotState.
type TradeRecord struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Units      int       `json:"units"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Direction  string    `json:"direction"`
	Time       time.Time `json:"time"`
	Sentiment  float64   `json:"sentiment"`
}

// BotState is the durable record of the bot. It is only ever mutated
// through Store.Update so that every change is persisted before any
// observer can describe it.
type BotState struct {
	Mode             Mode          `json:"mode"`
	Recovery         bool          `json:"recovery_mode"`
	DailyPnL         float64       `json:"daily_profit_loss"`
	WeeklyPnL        float64       `json:"weekly_profit_loss"`
	TotalCapital     float64       `json:"total_capital"`
	InitialCapital   float64       `json:"initial_capital"`
	DayStartCapital  float64       `json:"day_start_capital"`
	WeekStartCapital float64       `json:"week_start_capital"`
	LastReset        time.Time     `json:"last_reset"`
	Trades           []TradeRecord `json:"trades"`
	LastTrade        *TradeRecord  `json:"last_trade,omitempty"`
}

// AppendTrade records an executed trade. Trades is append-only; nothing
// ever edits or removes an entry.
func (s *BotState) AppendTrade(t TradeRecord) {
	s.Trades = append(s.Trades, t)
	last := s.Trades[len(s.Trades)-1]
	s.LastTrade = &last
}

func (s *BotState) clone() BotState {
	out := *s
	out.Trades = make([]TradeRecord, len(s.Trades))
	copy(out.Trades, s.Trades)
	if s.LastTrade != nil {
		last := *s.LastTrade
		out.LastTrade = &last
	}
	return out
}

// Store owns the persisted bot state. A single mutex serializes every
// mutation and the save that follows it, so a load never observes a
// half-written record and no two workers interleave field-level writes.
type Store struct {
	mu       sync.Mutex
	filePath string
	state    BotState
}

// NewStore loads the state file or falls back to a fresh default state.
// A missing or corrupt file is logged and never fails startup; the first
// successful save will overwrite it.
func NewStore(filePath string, startingCapital float64) *Store {
	now := time.Now().UTC()
	st := &Store{
		filePath: filePath,
		state: BotState{
			Mode:             Stopped,
			TotalCapital:     startingCapital,
			InitialCapital:   startingCapital,
			DayStartCapital:  startingCapital,
			WeekStartCapital: startingCapital,
			LastReset:        now,
			Trades:           make([]TradeRecord, 0),
		},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			logs.Infof("[State] No previous state found at %s, starting fresh.", filePath)
		} else {
			logs.Errorf("[State] Failed to read state file %s: %v. Starting fresh.", filePath, err)
		}
		return st
	}
	if len(data) == 0 {
		logs.Warnf("[State] State file %s is empty, starting fresh.", filePath)
		return st
	}

	var loaded BotState
	if err := json.Unmarshal(data, &loaded); err != nil {
		logs.Errorf("[State] State file %s is corrupt: %v. Starting fresh.", filePath, err)
		return st
	}

	// InitialCapital is the fixed reference point for the hard capital
	// limit; only a first-ever state creation may set it.
	if loaded.InitialCapital <= 0 {
		loaded.InitialCapital = startingCapital
	}
	if loaded.DayStartCapital <= 0 {
		loaded.DayStartCapital = loaded.TotalCapital
	}
	if loaded.WeekStartCapital <= 0 {
		loaded.WeekStartCapital = loaded.TotalCapital
	}
	if loaded.Mode == "" {
		loaded.Mode = Stopped
	}
	if loaded.Trades == nil {
		loaded.Trades = make([]TradeRecord, 0)
	}
	if loaded.LastReset.IsZero() {
		loaded.LastReset = now
	}
	st.state = loaded
	logs.Infof("[State] State loaded from %s (mode=%s, trades=%d).", filePath, loaded.Mode, len(loaded.Trades))
	return st
}

// Update applies fn to the state under the store lock and persists the
// result before returning. A persistence failure is logged and returned but
// the in-memory state remains authoritative; callers must not send any
// message describing the new state before Update returns.
func (s *Store) Update(fn func(*BotState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	if err := s.save(); err != nil {
		logs.Errorf("[State] Failed to persist state: %v", err)
		return err
	}
	return nil
}

// Save persists the current state without mutating it. Idempotent;
// safe to call twice in quick succession (shutdown runs it concurrently
// with an in-flight tick).
func (s *Store) Save() error {
	return s.Update(func(*BotState) {})
}

// View runs fn with a consistent read-only snapshot under the lock.
func (s *Store) View(fn func(BotState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state.clone())
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() BotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Mode returns the current lifecycle mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// save writes the state atomically: marshal, write a temp file, rename.
// Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
