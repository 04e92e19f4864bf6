// Package risk classifies assignment risk for short option legs.
package risk

import (
	"fmt"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// ITM-proximity threshold: out-of-the-money legs whose underlying sits
// within this fraction of the strike are flagged moderate.
const moderateBandPct = 0.05

// Expiring legs in the money inside this many days are critical.
const criticalDTE = 7

// Classify assigns an assignment-risk tier to one short option leg.
// A strike exactly at the underlying price counts as in the money.
func Classify(underlyingPrice, strike float64, optType models.OptionType, dte int) models.RiskTier {
	itm := inTheMoney(underlyingPrice, strike, optType)

	switch {
	case itm && dte <= criticalDTE:
		return models.RiskCritical
	case itm:
		return models.RiskHigh
	case withinModerateBand(underlyingPrice, strike):
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}

// Assess builds the full assessment record for a short leg, including
// the operator-facing message.
func Assess(symbol, underlying string, underlyingPrice, strike float64, optType models.OptionType, dte int) models.RiskAssessment {
	itm := inTheMoney(underlyingPrice, strike, optType)
	tier := Classify(underlyingPrice, strike, optType, dte)

	return models.RiskAssessment{
		Symbol:          symbol,
		Underlying:      underlying,
		OptionType:      optType,
		UnderlyingPrice: underlyingPrice,
		Strike:          strike,
		DTE:             dte,
		InTheMoney:      itm,
		Tier:            tier,
		Message:         message(tier, optType, underlyingPrice, strike, dte),
	}
}

func inTheMoney(underlyingPrice, strike float64, optType models.OptionType) bool {
	if optType == models.OptionTypePut {
		return underlyingPrice <= strike
	}
	return underlyingPrice >= strike
}

func withinModerateBand(underlyingPrice, strike float64) bool {
	if strike == 0 {
		return false
	}
	dist := underlyingPrice - strike
	if dist < 0 {
		dist = -dist
	}
	return dist/strike <= moderateBandPct
}

func message(tier models.RiskTier, optType models.OptionType, underlyingPrice, strike float64, dte int) string {
	switch tier {
	case models.RiskCritical:
		return fmt.Sprintf("%s is in the money with %d days to expiry; assignment likely without action", optType, dte)
	case models.RiskHigh:
		return fmt.Sprintf("%s is in the money (underlying %.2f vs strike %.2f); monitor for early assignment", optType, underlyingPrice, strike)
	case models.RiskModerate:
		return fmt.Sprintf("underlying %.2f is within 5%% of the %.2f strike", underlyingPrice, strike)
	default:
		return "strike is comfortably out of the money"
	}
}
