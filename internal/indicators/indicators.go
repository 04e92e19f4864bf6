// Package indicators computes technical indicators over daily close
// series. All functions take chronologically ordered closes (oldest
// first) and return (value, ok); ok is false when the series is too
// short to support the calculation.
package indicators

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultRSIPeriod is the standard 14-day RSI lookback.
	DefaultRSIPeriod = 14
	// DefaultBollingerPeriod is the standard 20-day Bollinger window.
	DefaultBollingerPeriod = 20
	// DefaultBollingerStdDev is the band width in standard deviations.
	DefaultBollingerStdDev = 2.0
	// TradingDaysPerYear bounds the 52-week range lookback.
	TradingDaysPerYear = 252
)

// RSI returns the Relative Strength Index over the last period deltas.
// Gains and losses are simple means, not Wilder-smoothed. A lossless
// window returns 100.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	deltas := closes[len(closes)-period-1:]
	var gain, loss float64
	for i := 1; i < len(deltas); i++ {
		d := deltas[i] - deltas[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	if loss == 0 {
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

// BollingerPctB returns %B: where the last close sits within the
// Bollinger Bands over the trailing period, as a percentage. Below the
// lower band is negative, above the upper band exceeds 100.
func BollingerPctB(closes []float64, period int, stdDev float64) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}

	window := closes[len(closes)-period:]
	mean := stat.Mean(window, nil)
	sd := stat.StdDev(window, nil)

	upper := mean + sd*stdDev
	lower := mean - sd*stdDev
	if upper == lower {
		return 50, true
	}

	last := closes[len(closes)-1]
	return (last - lower) / (upper - lower) * 100, true
}

// FiftyTwoWeekPct returns where the last close sits in the trailing
// 252-session high/low range, as a percentage. Shorter series use the
// full range they have. A flat range returns 50.
func FiftyTwoWeekPct(closes []float64) (float64, bool) {
	if len(closes) == 0 {
		return 0, false
	}

	window := closes
	if len(window) > TradingDaysPerYear {
		window = window[len(window)-TradingDaysPerYear:]
	}

	high, low := window[0], window[0]
	for _, c := range window {
		high = math.Max(high, c)
		low = math.Min(low, c)
	}
	if high == low {
		return 50, true
	}

	last := closes[len(closes)-1]
	return (last - low) / (high - low) * 100, true
}

// IVRank places the current implied volatility within its historical
// range, clamped to [0, 100]. NaN and infinite history entries are
// dropped; an empty or flat history returns 0.
func IVRank(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	minIV, maxIV := clean[0], clean[0]
	for _, iv := range clean {
		minIV = math.Min(minIV, iv)
		maxIV = math.Max(maxIV, iv)
	}
	if maxIV == minIV {
		return 0
	}

	r := (currentIV - minIV) / (maxIV - minIV) * 100
	return math.Max(0, math.Min(100, r))
}

// RealizedVolSeries returns a rolling annualized realized volatility
// series, in percent, from daily closes. Each point is the standard
// deviation of log returns over the trailing window scaled by sqrt(252).
// Used as the ranking history when implied volatility history is not
// available from the provider.
func RealizedVolSeries(closes []float64, window int) []float64 {
	if window <= 1 || len(closes) < window+1 {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return nil
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	out := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		sd := stat.StdDev(returns[i-window:i], nil)
		out = append(out, sd*math.Sqrt(TradingDaysPerYear)*100)
	}
	return out
}

// ReadinessScore blends RSI, Bollinger %B, and 52-week position into a
// 0-100 entry-timing score for selling puts. Oversold and
// low-in-range readings score highest. Weights are 40/30/30; a nil
// input contributes zero.
func ReadinessScore(rsi, bbPct, week52Pct *float64) float64 {
	var rsiScore float64
	if rsi != nil {
		switch v := *rsi; {
		case v < 30:
			rsiScore = 100
		case v < 35:
			rsiScore = 80
		case v < 40:
			rsiScore = 60
		case v < 50:
			rsiScore = 40
		case v <= 70:
			rsiScore = 20
		}
	}

	score := rsiScore*0.40 + bandScore(bbPct)*0.30 + bandScore(week52Pct)*0.30
	return math.Round(score*10) / 10
}

// bandScore maps a 0-100 range position to its readiness contribution.
// Both %B and 52-week position use the same bands.
func bandScore(pct *float64) float64 {
	if pct == nil {
		return 0
	}
	switch v := *pct; {
	case v <= 20:
		return 100
	case v <= 30:
		return 80
	case v <= 40:
		return 60
	case v <= 50:
		return 40
	case v <= 60:
		return 20
	default:
		return 0
	}
}
