// risk/policy.go
package risk

import (
	"fmt"

	"fx_sentinel_go/state"
	"fx_sentinel_go/utils"
)

// Outcome classifies one detected limit breach.
type Outcome int

const (
	OK Outcome = iota
	DailyLimitBreached
	CapitalLimitBreached
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case DailyLimitBreached:
		return "DAILY_LIMIT_BREACHED"
	case CapitalLimitBreached:
		return "CAPITAL_LIMIT_BREACHED"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Description returns the operator-facing explanation of a breach.
func (o Outcome) Description() string {
	switch o {
	case DailyLimitBreached:
		return "Daily loss limit reached. Bot stopped for the day. Recovery mode enabled."
	case CapitalLimitBreached:
		return "Hard capital loss limit exceeded. Bot permanently stopped."
	default:
		return "No limit breached."
	}
}

// Limits are the capital-preservation thresholds, fixed for the process
// lifetime.
type Limits struct {
	MaxDailyLossPercent   float64
	MaxCapitalLossPercent float64
}

// Evaluate is a pure check of the given state against the limits. Both
// breaches are evaluated independently and may be reported together; the
// caller decides the transition (daily is recoverable, capital is terminal).
func Evaluate(s state.BotState, l Limits) []Outcome {
	var breaches []Outcome

	// A loss of exactly the limit is still OK; the breach fires on the
	// first cent beyond it.
	dailyLimit := l.MaxDailyLossPercent / 100 * s.TotalCapital
	if s.DailyPnL < -dailyLimit {
		breaches = append(breaches, DailyLimitBreached)
	}

	if s.InitialCapital > 0 {
		drawdown := (s.InitialCapital - s.TotalCapital) / s.InitialCapital * 100
		// Tolerance keeps a drawdown landing exactly on the limit from
		// slipping under it through float rounding.
		if drawdown >= l.MaxCapitalLossPercent-utils.Epsilon {
			breaches = append(breaches, CapitalLimitBreached)
		}
	}

	if len(breaches) == 0 {
		return []Outcome{OK}
	}
	return breaches
}

// Breached reports whether outcomes contain the given breach.
func Breached(outcomes []Outcome, o Outcome) bool {
	for _, got := range outcomes {
		if got == o {
			return true
		}
	}
	return false
}
