// Package metrics computes derived option economics from raw quote data.
// Every function is pure and deterministic: no network, no clock. DTE is
// supplied by the caller as a precomputed integer so results are
// reproducible for a fixed as-of date.
package metrics

import (
	"errors"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// ErrInvalidQuote is returned when a bid/ask pair is negative or crossed
// and cannot form a mid price.
var ErrInvalidQuote = errors.New("invalid quote: negative or crossed bid/ask")

// daysPerYear is the annualization basis for option returns.
const daysPerYear = 365.0

// Mid returns the midpoint between bid and ask, the execution reference
// price for limit orders.
func Mid(bid, ask float64) (float64, error) {
	if bid < 0 || ask < 0 || bid > ask {
		return 0, ErrInvalidQuote
	}
	return (bid + ask) / 2, nil
}

// Collateral returns the cash required to secure a short put:
// strike x 100 x contracts.
func Collateral(strike float64, contracts int) float64 {
	return strike * models.SharesPerContract * float64(contracts)
}

// ROI returns premiumTotal / collateral as a fraction. ok is false when
// collateral is zero; the metric is absent, never a division error.
func ROI(premiumTotal, collateral float64) (float64, bool) {
	if collateral == 0 {
		return 0, false
	}
	return premiumTotal / collateral, true
}

// AnnualizedReturn scales a fractional ROI to a yearly rate. ok is false
// when dte is not positive; expired or same-day contracts have no
// meaningful annualization.
func AnnualizedReturn(roi float64, dte int) (float64, bool) {
	if dte <= 0 {
		return 0, false
	}
	return roi * daysPerYear / float64(dte), true
}

// SpreadPct returns the bid/ask spread as a percentage of the mid price.
// ok is false when mid is zero.
func SpreadPct(bid, ask, mid float64) (float64, bool) {
	if mid == 0 {
		return 0, false
	}
	return (ask - bid) / mid * 100, true
}

// WeeklyReturnPct converts a per-period return percentage over dte days
// into a 7-day rate. ok is false when dte is not positive.
func WeeklyReturnPct(returnPct float64, dte int) (float64, bool) {
	if dte <= 0 {
		return 0, false
	}
	return returnPct / float64(dte) * 7, true
}

// BreakevenDropPct returns how far the underlying can fall, in percent,
// before a covered call position loses money. ok is false when the
// underlying price is zero.
func BreakevenDropPct(premiumPerShare, underlyingPrice float64) (float64, bool) {
	if underlyingPrice == 0 {
		return 0, false
	}
	return premiumPerShare / underlyingPrice * 100, true
}

// DistanceOTMPct returns how far the strike sits from the underlying
// price, in percent of the underlying. Positive values are above the
// price. ok is false when the underlying price is zero.
func DistanceOTMPct(strike, underlyingPrice float64) (float64, bool) {
	if underlyingPrice == 0 {
		return 0, false
	}
	return (strike - underlyingPrice) / underlyingPrice * 100, true
}
