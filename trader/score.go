// trader/score.go
package trader

import (
	"time"

	"fx_sentinel_go/indicators"
	"fx_sentinel_go/logs"
	"fx_sentinel_go/utils"
)

// Sub-score weights: technical 50%, sentiment 30%, session liquidity 20%.
const (
	technicalWeight = 0.5
	sentimentWeight = 0.3
	sessionWeight   = 0.2
)

// scoreInstrument returns a confidence score in [0, 1] for one instrument.
// A spread above the ceiling disqualifies the instrument outright rather
// than penalizing it.
func (e *Engine) scoreInstrument(instrument string, md marketData, sentiment float64) float64 {
	if md.price.Spread() > e.cfg.MaxSpread {
		return 0
	}

	technical := technicalScore(md.closes)
	sentimentScore := utils.Clamp01(absF(sentiment))
	session := sessionScore(e.nowFn().UTC())

	total := technical*technicalWeight + sentimentScore*sentimentWeight + session*sessionWeight
	logs.Debugf("[Trader] %s: technical=%.2f sentiment=%.2f session=%.2f total=%.2f",
		instrument, technical, sentimentScore, session, total)
	return utils.Clamp01(total)
}

// technicalScore blends trend (SMA10 vs SMA20 alignment), momentum (RSI
// band) and a volatility check. With fewer than 20 usable closes it stays
// neutral at 0.5.
func technicalScore(closes []float64) float64 {
	if len(closes) < 20 {
		return 0.5
	}

	latest := closes[len(closes)-1]
	sma10, err10 := indicators.SMA(closes, 10)
	sma20, err20 := indicators.SMA(closes, 20)
	if err10 != nil || err20 != nil {
		return 0.5
	}

	trend := 0.5
	if (latest > sma10 && sma10 > sma20) || (latest < sma10 && sma10 < sma20) {
		// Short and long averages agree on direction.
		trend = 0.8
	}

	rsi := indicators.RSI(closes, 14)
	momentum := 0.8
	if rsi < 30 || rsi > 70 {
		momentum = 0.9 // potential reversal
	}

	volatility := indicators.Volatility(closes)
	volScore := 0.3
	if volatility >= 0.001 && volatility <= 0.01 {
		volScore = 0.7
	}

	return trend*0.4 + momentum*0.4 + volScore*0.2
}

// sessionScore rates time-of-day liquidity: the London/New York overlap is
// prime, general trading hours are fine, everything else is thin.
func sessionScore(now time.Time) float64 {
	hour := now.UTC().Hour()
	switch {
	case hour >= 13 && hour <= 16:
		return 0.9
	case hour >= 8 && hour <= 21:
		return 0.7
	default:
		return 0.3
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
